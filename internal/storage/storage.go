// Пакет storage — абстракция Blob Store (внешнее S3-совместимое хранилище).
// Blob Store владеет долговечностью байтов файлов; bytedrop хранит в нём
// объекты с ключами {id}/{filename} плюс произвольные bucket/path
// через raw-storage API.
package storage

import (
	"context"
	"errors"
	"io"
)

// Ошибки Blob Store.
var (
	// ErrObjectNotFound — объект по указанному ключу отсутствует.
	// Отличается от сетевых ошибок хранилища: запись метаданных при этом
	// может существовать (consistency error, см. retrieval service).
	ErrObjectNotFound = errors.New("объект не найден в хранилище")

	// ErrObjectExists — объект по указанному ключу уже существует
	// (no-overwrite семантика записи).
	ErrObjectExists = errors.New("объект уже существует в хранилище")
)

// ObjectInfo — атрибуты объекта в хранилище.
type ObjectInfo struct {
	// Size — размер объекта в байтах
	Size int64
	// ContentType — MIME-тип объекта
	ContentType string
}

// BlobStore — интерфейс S3-совместимого объектного хранилища.
type BlobStore interface {
	// EnsureBucket создаёт bucket, если он не существует.
	EnsureBucket(ctx context.Context, bucket string) error

	// Put записывает объект по ключу. No-overwrite: если объект уже
	// существует — ErrObjectExists. size = -1, если длина неизвестна.
	Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error

	// Get возвращает поток содержимого объекта и его атрибуты.
	// Вызывающий обязан закрыть ReadCloser.
	// Отсутствующий объект — ErrObjectNotFound.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)

	// Remove удаляет объект по ключу. Идемпотентен.
	Remove(ctx context.Context, bucket, key string) error

	// ListKeys возвращает ключи объектов с указанным префиксом
	// (используется сверкой для поиска частично записанных blob'ов).
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
}
