package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestResponseTap проверяет перехват статус-кода и объёма ответа.
func TestResponseTap(t *testing.T) {
	rec := httptest.NewRecorder()
	tap := newResponseTap(rec)

	tap.WriteHeader(http.StatusCreated)
	if _, err := tap.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() вернул ошибку: %v", err)
	}
	if _, err := tap.Write([]byte(" world")); err != nil {
		t.Fatalf("Write() вернул ошибку: %v", err)
	}

	if tap.status != http.StatusCreated {
		t.Errorf("status = %d, ожидался %d", tap.status, http.StatusCreated)
	}
	if tap.bytes != 11 {
		t.Errorf("bytes = %d, ожидался 11", tap.bytes)
	}
}

// TestResponseTap_DefaultStatus проверяет, что без явного WriteHeader
// статус считается 200.
func TestResponseTap_DefaultStatus(t *testing.T) {
	tap := newResponseTap(httptest.NewRecorder())
	if tap.status != http.StatusOK {
		t.Errorf("status = %d, ожидался %d", tap.status, http.StatusOK)
	}
}

// TestRequestLogger_Levels проверяет выбор уровня лога по статус-коду:
// 2xx — INFO, 4xx — WARN, 5xx — ERROR.
func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"успешный запрос", http.StatusOK, "level=INFO"},
		{"клиентская ошибка", http.StatusNotFound, "level=WARN"},
		{"серверная ошибка", http.StatusInternalServerError, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			handler := RequestLogger(logger)(http.HandlerFunc(
				func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
				}))

			req := httptest.NewRequest(http.MethodGet, "/dashboard-data", nil)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			out := buf.String()
			if !strings.Contains(out, tt.wantLevel) {
				t.Errorf("лог %q не содержит %q", out, tt.wantLevel)
			}
			if !strings.Contains(out, "path=/dashboard-data") {
				t.Errorf("лог %q не содержит path", out)
			}
		})
	}
}
