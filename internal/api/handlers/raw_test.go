package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/gobytedrop/internal/config"
	"github.com/bigkaa/gobytedrop/internal/storage"
)

// newTestRawRouter создаёт chi-роутер с raw-маршрутами поверх мока хранилища.
func newTestRawRouter(store storage.BlobStore) *chi.Mux {
	cfg := &config.Config{
		PublicURL:   "http://localhost:8080",
		MaxFileSize: 1024 * 1024,
	}
	h := NewRawHandler(cfg, store, slog.Default())

	r := chi.NewRouter()
	r.Post("/api/upload", h.Upload)
	r.Get("/api/download/{bucket}/*", h.Download)
	return r
}

// TestRawHandler_Upload_Success — запись объекта по явному пути: {path, url}.
func TestRawHandler_Upload_Success(t *testing.T) {
	var putBucket, putKey string
	store := &mockBlobStore{
		putFn: func(_ context.Context, bucket, key string, _ io.Reader, _ int64, _ string) error {
			putBucket = bucket
			putKey = key
			return nil
		},
	}
	router := newTestRawRouter(store)

	body, contentType := multipartBody(t, "report.pdf", "pdf-bytes")
	req := httptest.NewRequest(http.MethodPost, "/api/upload?bucket=docs&path=2026/report.pdf", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, ожидался 200; body=%s", rec.Code, rec.Body.String())
	}
	if putBucket != "docs" || putKey != "2026/report.pdf" {
		t.Errorf("Put(%q, %q), ожидался Put(docs, 2026/report.pdf)", putBucket, putKey)
	}

	var resp struct {
		Path string `json:"path"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if resp.Path != "2026/report.pdf" {
		t.Errorf("path = %q", resp.Path)
	}
	if resp.URL != "http://localhost:8080/api/download/docs/2026/report.pdf" {
		t.Errorf("url = %q", resp.URL)
	}
}

// TestRawHandler_Upload_MissingParams — bucket/path обязательны: 400.
func TestRawHandler_Upload_MissingParams(t *testing.T) {
	router := newTestRawRouter(&mockBlobStore{})

	for _, query := range []string{"", "?bucket=docs", "?path=a.txt"} {
		body, contentType := multipartBody(t, "a.txt", "x")
		req := httptest.NewRequest(http.MethodPost, "/api/upload"+query, body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("query %q: status = %d, ожидался 400", query, rec.Code)
		}
	}
}

// TestRawHandler_Upload_Duplicate — существующий путь: 409 DUPLICATE_PATH.
func TestRawHandler_Upload_Duplicate(t *testing.T) {
	store := &mockBlobStore{
		putFn: func(_ context.Context, _, _ string, _ io.Reader, _ int64, _ string) error {
			return storage.ErrObjectExists
		},
	}
	router := newTestRawRouter(store)

	body, contentType := multipartBody(t, "a.txt", "x")
	req := httptest.NewRequest(http.MethodPost, "/api/upload?bucket=docs&path=a.txt", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, ожидался 409", rec.Code)
	}
	assertErrorEnvelope(t, rec.Body.Bytes(), "DUPLICATE_PATH")
}

// TestRawHandler_Download_Success — объект по произвольному пути.
func TestRawHandler_Download_Success(t *testing.T) {
	store := &mockBlobStore{
		getFn: func(_ context.Context, bucket, key string) (io.ReadCloser, storage.ObjectInfo, error) {
			if bucket != "docs" {
				t.Errorf("bucket = %q, ожидался docs", bucket)
			}
			if key != "2026/report.pdf" {
				t.Errorf("key = %q, ожидался 2026/report.pdf", key)
			}
			return io.NopCloser(strings.NewReader("pdf-bytes")),
				storage.ObjectInfo{Size: 9, ContentType: "application/pdf"}, nil
		},
	}
	router := newTestRawRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/download/docs/2026/report.pdf", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, ожидался 200; body=%s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "pdf-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="report.pdf"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

// TestRawHandler_Download_NotFound — отсутствующий объект: 404 envelope.
func TestRawHandler_Download_NotFound(t *testing.T) {
	router := newTestRawRouter(&mockBlobStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/download/docs/missing.txt", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, ожидался 404", rec.Code)
	}
	assertErrorEnvelope(t, rec.Body.Bytes(), "NOT_FOUND")
}

// TestCleanObjectPath — нормализация пути объекта.
func TestCleanObjectPath(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"обычный путь", "a/b.txt", "a/b.txt"},
		{"ведущий слэш", "/a/b.txt", "a/b.txt"},
		{"двойные слэши", "a//b.txt", "a/b.txt"},
		{"traversal", "../etc/passwd", "etc/passwd"},
		{"traversal внутри", "a/../../b.txt", "b.txt"},
		{"пустой", "", ""},
		{"только точка", ".", ""},
		{"только слэш", "/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanObjectPath(tt.raw); got != tt.want {
				t.Errorf("cleanObjectPath(%q) = %q, ожидался %q", tt.raw, got, tt.want)
			}
		})
	}
}
