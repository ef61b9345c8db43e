// Пакет minio — реализация storage.BlobStore поверх MinIO SDK.
// Работает с любым S3-совместимым хранилищем (MinIO, S3, Supabase Storage).
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bigkaa/gobytedrop/internal/storage"
)

// Проверка соответствия интерфейсу на этапе компиляции.
var _ storage.BlobStore = (*Client)(nil)

// Client — обёртка над MinIO SDK, реализует storage.BlobStore.
type Client struct {
	client *minio.Client
}

// New создаёт клиент Blob Store.
// endpoint — host:port хранилища, accessKey/secretKey — учётные данные.
func New(endpoint, accessKey, secretKey string, useSSL bool) (*Client, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента хранилища: %w", err)
	}

	return &Client{client: mc}, nil
}

// EnsureBucket создаёт bucket, если он не существует.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("ошибка проверки bucket %q: %w", bucket, err)
	}
	if exists {
		return nil
	}

	if err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("ошибка создания bucket %q: %w", bucket, err)
	}
	return nil
}

// Put записывает объект по ключу (streaming, без буферизации на диск).
// No-overwrite: существующий объект не перезаписывается.
// Проверка существования и запись не атомарны между собой; record-store
// пути используют свежий UUID в ключе, поэтому коллизии исключены
// вероятностно, а не блокировкой.
func (c *Client) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	_, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return storage.ErrObjectExists
	}
	if !isNotFound(err) {
		return fmt.Errorf("ошибка проверки объекта %q: %w", key, err)
	}

	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := c.client.PutObject(ctx, bucket, key, reader, size, opts); err != nil {
		return fmt.Errorf("ошибка записи объекта %q: %w", key, err)
	}
	return nil
}

// Get возвращает поток содержимого объекта и его атрибуты.
// GetObject в MinIO SDK ленивый — фактическая проверка существования
// выполняется через Stat до возврата потока.
func (c *Client) Get(ctx context.Context, bucket, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("ошибка получения объекта %q: %w", key, err)
	}

	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("ошибка чтения атрибутов объекта %q: %w", key, err)
	}

	return obj, storage.ObjectInfo{
		Size:        stat.Size,
		ContentType: stat.ContentType,
	}, nil
}

// Remove удаляет объект по ключу. Отсутствие объекта — не ошибка.
func (c *Client) Remove(ctx context.Context, bucket, key string) error {
	err := c.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("ошибка удаления объекта %q: %w", key, err)
	}
	return nil
}

// ListKeys возвращает ключи объектов с указанным префиксом.
func (c *Client) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for obj := range c.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("ошибка листинга объектов с префиксом %q: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// ReadinessChecker — проверка готовности Blob Store для readiness probe.
type ReadinessChecker struct {
	client *Client
	bucket string
}

// NewReadinessChecker создаёт проверку готовности хранилища.
func NewReadinessChecker(client *Client, bucket string) *ReadinessChecker {
	return &ReadinessChecker{client: client, bucket: bucket}
}

// CheckReady проверяет доступность хранилища через BucketExists.
// Возвращает статус ("ok", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	exists, err := c.client.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return "fail", fmt.Sprintf("хранилище недоступно: %v", err)
	}
	if !exists {
		return "fail", fmt.Sprintf("bucket %q не существует", c.bucket)
	}
	return "ok", "хранилище доступно"
}

// isNotFound распознаёт ответ хранилища "объект/ключ не существует".
func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
	}
	return false
}
