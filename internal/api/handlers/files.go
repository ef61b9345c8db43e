// files.go — HTTP handlers record store: загрузка, метаданные,
// скачивание, данные дашборда.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/gobytedrop/internal/api/errors"
	"github.com/bigkaa/gobytedrop/internal/config"
	"github.com/bigkaa/gobytedrop/internal/domain/model"
	"github.com/bigkaa/gobytedrop/internal/service"
)

// FilesHandler — обработчик файловых endpoints record store.
type FilesHandler struct {
	cfg         *config.Config
	uploadSvc   *service.UploadService
	downloadSvc *service.DownloadService
	listingSvc  *service.ListingService
	logger      *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	cfg *config.Config,
	uploadSvc *service.UploadService,
	downloadSvc *service.DownloadService,
	listingSvc *service.ListingService,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		cfg:         cfg,
		uploadSvc:   uploadSvc,
		downloadSvc: downloadSvc,
		listingSvc:  listingSvc,
		logger:      logger.With(slog.String("component", "files_handler")),
	}
}

// fileMetadataResponse — API-представление FileRecord с display-полями
// срока хранения. Истечение вычисляется на лету и ни на что, кроме
// отображения, не влияет.
type fileMetadataResponse struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Mimetype  string    `json:"mimetype"`
	Size      *int64    `json:"size"`
	Downloads int64     `json:"downloads"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Expired   bool      `json:"expired"`
}

// toMetadataResponse конвертирует domain модель в API-представление.
func (h *FilesHandler) toMetadataResponse(record *model.FileRecord) fileMetadataResponse {
	retention := h.cfg.Retention()
	return fileMetadataResponse{
		ID:        record.ID,
		Filename:  record.Filename,
		Mimetype:  record.Mimetype,
		Size:      record.Size,
		Downloads: record.Downloads,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt(retention),
		Expired:   record.IsExpired(time.Now().UTC(), retention),
	}
}

// Upload обрабатывает POST /upload.
// Multipart form: file (обязательно).
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Ограничиваем размер тела запроса: MaxFileSize + запас на заголовки multipart
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSize+(1<<20))

	// Парсим multipart form (буфер в памяти, остальное на диск)
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

	result, uploadErr := h.uploadSvc.Upload(r.Context(), service.UploadParams{
		Reader:      file,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	})
	if uploadErr != nil {
		apierrors.WriteError(w, uploadErr.StatusCode, uploadErr.Code, uploadErr.Message)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// GetMetadata обрабатывает GET /api/{fileID}.
// 404 для отсутствующей или ещё pending записи.
func (h *FilesHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	fileID, ok := h.fileIDParam(w, r)
	if !ok {
		return
	}

	record, err := h.downloadSvc.Metadata(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, fmt.Sprintf("Файл %s не найден", fileID))
			return
		}
		h.logger.Error("Ошибка получения метаданных файла",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при получении метаданных файла")
		return
	}

	writeJSON(w, http.StatusOK, h.toMetadataResponse(record))
}

// Download обрабатывает GET /file/{fileID}.
// Отдаёт файл attachment-потоком, после успешной передачи
// инкрементирует счётчик скачиваний.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	fileID, ok := h.fileIDParam(w, r)
	if !ok {
		return
	}

	err := h.downloadSvc.Serve(r.Context(), w, fileID)
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, fmt.Sprintf("Файл %s не найден", fileID))
	case errors.Is(err, service.ErrBlobMissing):
		apierrors.InternalError(w, "Содержимое файла недоступно")
	default:
		h.logger.Error("Ошибка скачивания файла",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при скачивании файла")
	}
}

// DashboardData обрабатывает GET /dashboard-data.
// Все complete-записи, новые первыми; опциональный параметр search —
// фильтр по подстроке имени.
func (h *FilesHandler) DashboardData(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")

	records, err := h.listingSvc.List(r.Context(), search)
	if err != nil {
		h.logger.Error("Ошибка получения данных дашборда",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при получении списка файлов")
		return
	}

	items := make([]fileMetadataResponse, 0, len(records))
	for _, record := range records {
		items = append(items, h.toMetadataResponse(record))
	}

	writeJSON(w, http.StatusOK, items)
}

// fileIDParam извлекает и валидирует UUID из пути.
// При невалидном значении пишет 404 (не раскрываем формат id)
// и возвращает ok=false.
func (h *FilesHandler) fileIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "fileID")
	parsed, err := uuid.Parse(raw)
	if err != nil {
		apierrors.NotFound(w, fmt.Sprintf("Файл %s не найден", raw))
		return "", false
	}
	return parsed.String(), true
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
