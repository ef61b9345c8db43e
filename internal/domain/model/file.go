// Пакет model — доменные модели bytedrop.
// FileRecord — единственная доменная сущность: запись об одном
// загруженном файле в таблице files_meta.
package model

import (
	"fmt"
	"time"
)

// FileStatus — статус записи файла.
type FileStatus string

const (
	// StatusPending — строка метаданных создана, blob ещё не записан.
	// Записи pending не видны ни в листинге, ни в lookup по id.
	StatusPending FileStatus = "pending"
	// StatusComplete — blob записан, запись доступна для всех операций
	StatusComplete FileStatus = "complete"
)

// FileRecord — запись об одном загруженном файле.
// Поле Status — внутреннее (служит write-path'у pending → complete),
// в API-ответы не попадает.
type FileRecord struct {
	// ID — уникальный идентификатор файла (UUID v4).
	// Неизменяем после создания, одновременно префикс пути в Blob Store.
	ID string `json:"id"`

	// Filename — оригинальное имя файла при загрузке (непустое)
	Filename string `json:"filename"`

	// Mimetype — MIME-тип, как его сообщил клиент.
	// Используется только для отображения, не для решений безопасности.
	Mimetype string `json:"mimetype"`

	// Size — размер файла в байтах. nil пока запись pending,
	// после завершения — фактически сохранённый объём.
	Size *int64 `json:"size"`

	// Downloads — счётчик скачиваний. Монотонно неубывающий,
	// инкрементируется ровно один раз на успешное скачивание.
	Downloads int64 `json:"downloads"`

	// CreatedAt — время создания записи (серверное, UTC)
	CreatedAt time.Time `json:"created_at"`

	// Status — внутренний статус write-path (pending/complete)
	Status FileStatus `json:"-"`
}

// ObjectKey возвращает ключ blob'а в Blob Store: {id}/{filename}.
func (f *FileRecord) ObjectKey() string {
	return fmt.Sprintf("%s/%s", f.ID, f.Filename)
}

// ExpiresAt возвращает момент истечения срока хранения:
// created_at + retention (окно хранения, по умолчанию 10 дней).
func (f *FileRecord) ExpiresAt(retention time.Duration) time.Time {
	return f.CreatedAt.Add(retention)
}

// IsExpired проверяет, истёк ли срок хранения файла.
// Граница: ровно в момент expires_at файл ещё НЕ истёк,
// секундой позже — истёк (now > expires_at, строго).
func (f *FileRecord) IsExpired(now time.Time, retention time.Duration) bool {
	return now.After(f.ExpiresAt(retention))
}

// IsComplete проверяет, что запись прошла полный write-path.
func (f *FileRecord) IsComplete() bool {
	return f.Status == StatusComplete
}
