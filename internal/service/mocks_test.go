package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/bigkaa/gobytedrop/internal/config"
	"github.com/bigkaa/gobytedrop/internal/domain/model"
	"github.com/bigkaa/gobytedrop/internal/repository"
	"github.com/bigkaa/gobytedrop/internal/storage"
)

// mockFileRepo — мок FileRepository для unit-тестов.
type mockFileRepo struct {
	createFn             func(ctx context.Context, record *model.FileRecord) error
	markCompleteFn       func(ctx context.Context, fileID string, size int64) error
	getByIDFn            func(ctx context.Context, fileID string) (*model.FileRecord, error)
	listFn               func(ctx context.Context, params repository.ListParams) ([]*model.FileRecord, error)
	incrementDownloadsFn func(ctx context.Context, fileID string) (int64, error)
	listStalePendingFn   func(ctx context.Context, olderThan time.Time) ([]*model.FileRecord, error)
	deleteFn             func(ctx context.Context, fileID string) error
}

func (m *mockFileRepo) Create(ctx context.Context, record *model.FileRecord) error {
	if m.createFn != nil {
		return m.createFn(ctx, record)
	}
	return nil
}

func (m *mockFileRepo) MarkComplete(ctx context.Context, fileID string, size int64) error {
	if m.markCompleteFn != nil {
		return m.markCompleteFn(ctx, fileID, size)
	}
	return nil
}

func (m *mockFileRepo) GetByID(ctx context.Context, fileID string) (*model.FileRecord, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, fileID)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFileRepo) List(ctx context.Context, params repository.ListParams) ([]*model.FileRecord, error) {
	if m.listFn != nil {
		return m.listFn(ctx, params)
	}
	return nil, nil
}

func (m *mockFileRepo) IncrementDownloads(ctx context.Context, fileID string) (int64, error) {
	if m.incrementDownloadsFn != nil {
		return m.incrementDownloadsFn(ctx, fileID)
	}
	return 1, nil
}

func (m *mockFileRepo) ListStalePending(ctx context.Context, olderThan time.Time) ([]*model.FileRecord, error) {
	if m.listStalePendingFn != nil {
		return m.listStalePendingFn(ctx, olderThan)
	}
	return nil, nil
}

func (m *mockFileRepo) Delete(ctx context.Context, fileID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, fileID)
	}
	return nil
}

// mockBlobStore — мок BlobStore для unit-тестов.
type mockBlobStore struct {
	ensureBucketFn func(ctx context.Context, bucket string) error
	putFn          func(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error
	getFn          func(ctx context.Context, bucket, key string) (io.ReadCloser, storage.ObjectInfo, error)
	removeFn       func(ctx context.Context, bucket, key string) error
	listKeysFn     func(ctx context.Context, bucket, prefix string) ([]string, error)
}

func (m *mockBlobStore) EnsureBucket(ctx context.Context, bucket string) error {
	if m.ensureBucketFn != nil {
		return m.ensureBucketFn(ctx, bucket)
	}
	return nil
}

func (m *mockBlobStore) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	if m.putFn != nil {
		return m.putFn(ctx, bucket, key, reader, size, contentType)
	}
	return nil
}

func (m *mockBlobStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	if m.getFn != nil {
		return m.getFn(ctx, bucket, key)
	}
	return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
}

func (m *mockBlobStore) Remove(ctx context.Context, bucket, key string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, bucket, key)
	}
	return nil
}

func (m *mockBlobStore) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	if m.listKeysFn != nil {
		return m.listKeysFn(ctx, bucket, prefix)
	}
	return nil, nil
}

// newTestConfig возвращает конфигурацию для unit-тестов сервисов.
func newTestConfig() *config.Config {
	return &config.Config{
		PublicURL:     "http://localhost:8080",
		S3Bucket:      "files",
		MaxFileSize:   1024 * 1024, // 1 MiB — достаточно для тестов
		RetentionDays: 10,
	}
}

// testLogger — логгер для тестов (пишет только ошибки).
func testLogger() *slog.Logger {
	return slog.Default()
}
