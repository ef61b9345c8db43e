// raw.go — HTTP handlers raw storage API: прямой доступ к Blob Store
// по произвольному пути bucket/path, мимо record store.
// Метаданные в files_meta не создаются, счётчики не ведутся.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/gobytedrop/internal/api/errors"
	"github.com/bigkaa/gobytedrop/internal/config"
	"github.com/bigkaa/gobytedrop/internal/storage"
)

// RawHandler — обработчик raw storage endpoints.
type RawHandler struct {
	cfg    *config.Config
	store  storage.BlobStore
	logger *slog.Logger
}

// NewRawHandler создаёт обработчик raw storage endpoints.
func NewRawHandler(cfg *config.Config, store storage.BlobStore, logger *slog.Logger) *RawHandler {
	return &RawHandler{
		cfg:    cfg,
		store:  store,
		logger: logger.With(slog.String("component", "raw_handler")),
	}
}

// rawUploadResponse — ответ POST /api/upload.
type rawUploadResponse struct {
	// Path — ключ объекта внутри bucket
	Path string `json:"path"`
	// URL — полный URL скачивания объекта
	URL string `json:"url"`
}

// Upload обрабатывает POST /api/upload?bucket=&path=.
// Multipart form: file (обязательно). Перезапись существующего
// объекта запрещена: 409.
func (h *RawHandler) Upload(w http.ResponseWriter, r *http.Request) {
	bucket := r.URL.Query().Get("bucket")
	objectPath := cleanObjectPath(r.URL.Query().Get("path"))

	if bucket == "" {
		apierrors.ValidationError(w, "Параметр 'bucket' обязателен")
		return
	}
	if objectPath == "" {
		apierrors.ValidationError(w, "Параметр 'path' обязателен")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSize+(1<<20))

	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32 MB buffer
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Размер запроса превышает максимум %d байт", h.cfg.MaxFileSize))
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := h.store.Put(r.Context(), bucket, objectPath, file, header.Size, contentType); err != nil {
		if errors.Is(err, storage.ErrObjectExists) {
			apierrors.DuplicatePath(w, fmt.Sprintf("Объект %s уже существует", objectPath))
			return
		}
		h.logger.Error("Ошибка записи объекта",
			slog.String("bucket", bucket),
			slog.String("path", objectPath),
			slog.String("error", err.Error()),
		)
		apierrors.StorageError(w, "Ошибка записи объекта в хранилище")
		return
	}

	h.logger.Info("Объект записан",
		slog.String("bucket", bucket),
		slog.String("path", objectPath),
		slog.Int64("size", header.Size),
	)

	writeJSON(w, http.StatusOK, rawUploadResponse{
		Path: objectPath,
		URL:  fmt.Sprintf("%s/api/download/%s/%s", h.cfg.PublicURL, bucket, objectPath),
	})
}

// Download обрабатывает GET /api/download/{bucket}/*.
// Отдаёт объект attachment-потоком по произвольному пути.
func (h *RawHandler) Download(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	objectPath := cleanObjectPath(chi.URLParam(r, "*"))

	if objectPath == "" {
		apierrors.ValidationError(w, "Путь объекта обязателен")
		return
	}

	body, info, err := h.store.Get(r.Context(), bucket, objectPath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			apierrors.NotFound(w, fmt.Sprintf("Объект %s не найден", objectPath))
			return
		}
		h.logger.Error("Ошибка чтения объекта",
			slog.String("bucket", bucket),
			slog.String("path", objectPath),
			slog.String("error", err.Error()),
		)
		apierrors.StorageError(w, "Ошибка чтения объекта из хранилища")
		return
	}
	defer body.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(objectPath)))
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		// Заголовки уже отправлены — только логируем
		h.logger.Error("Ошибка streaming объекта",
			slog.String("bucket", bucket),
			slog.String("path", objectPath),
			slog.String("error", err.Error()),
		)
	}
}

// cleanObjectPath нормализует путь объекта: убирает ведущие слэши
// и path traversal. Пустой результат означает невалидный путь.
func cleanObjectPath(raw string) string {
	cleaned := path.Clean("/" + raw)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "." || cleaned == "" || strings.HasPrefix(cleaned, "..") {
		return ""
	}
	return cleaned
}
