package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/gobytedrop/internal/domain/model"
	"github.com/bigkaa/gobytedrop/internal/repository"
	"github.com/bigkaa/gobytedrop/internal/storage"
)

// newTestDownloadService создаёт DownloadService для unit-тестов.
func newTestDownloadService(repo repository.FileRepository, store storage.BlobStore) *DownloadService {
	cache := NewCacheService(100, 5*time.Minute)
	return NewDownloadService(newTestConfig(), repo, store, cache, testLogger())
}

// completeRecord возвращает complete-запись для тестов.
func completeRecord(id, filename string) *model.FileRecord {
	size := int64(17)
	return &model.FileRecord{
		ID:        id,
		Filename:  filename,
		Mimetype:  "text/plain",
		Size:      &size,
		Downloads: 3,
		Status:    model.StatusComplete,
		CreatedAt: time.Now().UTC(),
	}
}

// --- Тесты Serve ---

// TestDownloadService_Serve_Success проверяет успешное скачивание:
// заголовки, тело и ровно один инкремент счётчика.
func TestDownloadService_Serve_Success(t *testing.T) {
	fileContent := "test file content"
	incrementCount := 0

	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, fileID string) (*model.FileRecord, error) {
			return completeRecord(fileID, "test.txt"), nil
		},
		incrementDownloadsFn: func(_ context.Context, fileID string) (int64, error) {
			incrementCount++
			if fileID != "file-1" {
				t.Errorf("IncrementDownloads fileID = %q, ожидался file-1", fileID)
			}
			return 4, nil
		},
	}
	store := &mockBlobStore{
		getFn: func(_ context.Context, bucket, key string) (io.ReadCloser, storage.ObjectInfo, error) {
			if bucket != "files" {
				t.Errorf("bucket = %q, ожидался files", bucket)
			}
			if key != "file-1/test.txt" {
				t.Errorf("key = %q, ожидался file-1/test.txt", key)
			}
			return io.NopCloser(strings.NewReader(fileContent)),
				storage.ObjectInfo{Size: int64(len(fileContent)), ContentType: "text/plain"}, nil
		},
	}

	svc := newTestDownloadService(repo, store)

	rec := httptest.NewRecorder()
	if err := svc.Serve(context.Background(), rec, "file-1"); err != nil {
		t.Fatalf("Serve ошибка: %v", err)
	}

	resp := rec.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, ожидался 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != fileContent {
		t.Errorf("Body = %q, ожидался %q", string(body), fileContent)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, ожидался text/plain", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="test.txt"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if cl := rec.Header().Get("Content-Length"); cl != "17" {
		t.Errorf("Content-Length = %q, ожидался 17", cl)
	}

	if incrementCount != 1 {
		t.Errorf("IncrementDownloads вызван %d раз, ожидался 1", incrementCount)
	}
}

// TestDownloadService_Serve_NotFound — записи нет в БД.
func TestDownloadService_Serve_NotFound(t *testing.T) {
	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, _ string) (*model.FileRecord, error) {
			return nil, repository.ErrNotFound
		},
	}

	svc := newTestDownloadService(repo, &mockBlobStore{})

	rec := httptest.NewRecorder()
	err := svc.Serve(context.Background(), rec, "non-existent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, ожидалась ErrNotFound", err)
	}
}

// TestDownloadService_Serve_PendingInvisible — pending-запись снаружи
// неотличима от отсутствующей.
func TestDownloadService_Serve_PendingInvisible(t *testing.T) {
	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, fileID string) (*model.FileRecord, error) {
			return &model.FileRecord{
				ID:       fileID,
				Filename: "partial.bin",
				Status:   model.StatusPending,
			}, nil
		},
	}

	svc := newTestDownloadService(repo, &mockBlobStore{})

	rec := httptest.NewRecorder()
	err := svc.Serve(context.Background(), rec, "file-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, ожидалась ErrNotFound для pending-записи", err)
	}
}

// TestDownloadService_Serve_BlobMissing — метаданные есть, blob'а нет:
// consistency error, не not-found.
func TestDownloadService_Serve_BlobMissing(t *testing.T) {
	incrementCalled := false

	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, fileID string) (*model.FileRecord, error) {
			return completeRecord(fileID, "lost.txt"), nil
		},
		incrementDownloadsFn: func(_ context.Context, _ string) (int64, error) {
			incrementCalled = true
			return 0, nil
		},
	}
	store := &mockBlobStore{
		getFn: func(_ context.Context, _, _ string) (io.ReadCloser, storage.ObjectInfo, error) {
			return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
		},
	}

	svc := newTestDownloadService(repo, store)

	rec := httptest.NewRecorder()
	err := svc.Serve(context.Background(), rec, "file-1")
	if !errors.Is(err, ErrBlobMissing) {
		t.Errorf("ошибка = %v, ожидалась ErrBlobMissing", err)
	}
	if incrementCalled {
		t.Error("IncrementDownloads вызван при отсутствующем blob'е")
	}
}

// TestDownloadService_Serve_StreamError — обрыв streaming после отправки
// заголовков: счётчик не инкрементируется, ошибка наружу не уходит.
func TestDownloadService_Serve_StreamError(t *testing.T) {
	incrementCalled := false

	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, fileID string) (*model.FileRecord, error) {
			return completeRecord(fileID, "test.txt"), nil
		},
		incrementDownloadsFn: func(_ context.Context, _ string) (int64, error) {
			incrementCalled = true
			return 0, nil
		},
	}
	store := &mockBlobStore{
		getFn: func(_ context.Context, _, _ string) (io.ReadCloser, storage.ObjectInfo, error) {
			return io.NopCloser(&failingReader{}), storage.ObjectInfo{Size: 17}, nil
		},
	}

	svc := newTestDownloadService(repo, store)

	rec := httptest.NewRecorder()
	if err := svc.Serve(context.Background(), rec, "file-1"); err != nil {
		t.Errorf("Serve вернул ошибку после отправки заголовков: %v", err)
	}
	if incrementCalled {
		t.Error("IncrementDownloads вызван при обрыве streaming")
	}
}

// TestDownloadService_Serve_CacheHit — второй Serve берёт запись из кэша,
// GetByID вызывается один раз.
func TestDownloadService_Serve_CacheHit(t *testing.T) {
	getByIDCount := 0

	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, fileID string) (*model.FileRecord, error) {
			getByIDCount++
			return completeRecord(fileID, "test.txt"), nil
		},
		// Инкремент падает — иначе Serve инвалидирует кэш после успеха
		incrementDownloadsFn: func(_ context.Context, _ string) (int64, error) {
			return 0, errors.New("недоступно")
		},
	}
	store := &mockBlobStore{
		getFn: func(_ context.Context, _, _ string) (io.ReadCloser, storage.ObjectInfo, error) {
			return io.NopCloser(strings.NewReader("content")), storage.ObjectInfo{Size: 7}, nil
		},
	}

	svc := newTestDownloadService(repo, store)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		if err := svc.Serve(context.Background(), rec, "file-1"); err != nil {
			t.Fatalf("Serve #%d ошибка: %v", i+1, err)
		}
	}

	if getByIDCount != 1 {
		t.Errorf("GetByID вызван %d раз, ожидался 1 (cache hit)", getByIDCount)
	}
}

// TestDownloadService_Serve_CacheInvalidation — после успешного инкремента
// кэшированная запись инвалидируется, следующий запрос идёт в БД.
func TestDownloadService_Serve_CacheInvalidation(t *testing.T) {
	getByIDCount := 0

	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, fileID string) (*model.FileRecord, error) {
			getByIDCount++
			return completeRecord(fileID, "test.txt"), nil
		},
	}
	store := &mockBlobStore{
		getFn: func(_ context.Context, _, _ string) (io.ReadCloser, storage.ObjectInfo, error) {
			return io.NopCloser(strings.NewReader("content")), storage.ObjectInfo{Size: 7}, nil
		},
	}

	svc := newTestDownloadService(repo, store)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		if err := svc.Serve(context.Background(), rec, "file-1"); err != nil {
			t.Fatalf("Serve #%d ошибка: %v", i+1, err)
		}
	}

	// Кэш инвалидирован после первого скачивания — второй Serve снова в БД
	if getByIDCount != 2 {
		t.Errorf("GetByID вызван %d раз, ожидался 2 (кэш инвалидирован)", getByIDCount)
	}
}

// --- Тесты Metadata ---

// TestDownloadService_Metadata проверяет получение метаданных по id.
func TestDownloadService_Metadata(t *testing.T) {
	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, fileID string) (*model.FileRecord, error) {
			return completeRecord(fileID, "report.pdf"), nil
		},
	}

	svc := newTestDownloadService(repo, &mockBlobStore{})

	record, err := svc.Metadata(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("Metadata ошибка: %v", err)
	}
	if record.Filename != "report.pdf" {
		t.Errorf("Filename = %q, ожидался report.pdf", record.Filename)
	}
	if record.Downloads != 3 {
		t.Errorf("Downloads = %d, ожидался 3", record.Downloads)
	}
}

// TestDownloadService_Metadata_Pending — pending-запись не видна.
func TestDownloadService_Metadata_Pending(t *testing.T) {
	repo := &mockFileRepo{
		getByIDFn: func(_ context.Context, fileID string) (*model.FileRecord, error) {
			return &model.FileRecord{ID: fileID, Status: model.StatusPending}, nil
		},
	}

	svc := newTestDownloadService(repo, &mockBlobStore{})

	_, err := svc.Metadata(context.Background(), "file-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, ожидалась ErrNotFound", err)
	}
}

// failingReader — reader, возвращающий ошибку после первых байт.
type failingReader struct {
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.read {
		return 0, errors.New("обрыв соединения")
	}
	r.read = true
	n := copy(p, []byte("partial"))
	return n, nil
}
