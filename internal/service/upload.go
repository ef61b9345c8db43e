// upload.go — сервис загрузки файлов.
//
// Write-path спроектирован metadata-first: двухфазная запись вместо
// "blob, потом строка" исходной схемы:
//  1. INSERT строки files_meta со статусом pending
//  2. Запись blob'а в Blob Store по ключу {id}/{filename}
//  3. UPDATE статуса pending → complete (фиксирует фактический размер)
//
// Брошенные pending-записи (упавший шаг 2 или 3) подбирает фоновая
// сверка (reconcile.go). Записи pending не видны ни в листинге,
// ни в lookup — с точки зрения клиента загрузка атомарна.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/gobytedrop/internal/api/errors"
	"github.com/bigkaa/gobytedrop/internal/config"
	"github.com/bigkaa/gobytedrop/internal/domain/model"
	"github.com/bigkaa/gobytedrop/internal/repository"
	"github.com/bigkaa/gobytedrop/internal/storage"
)

// Prometheus-метрики загрузки.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bd_uploads_total",
		Help: "Общее количество загрузок (по статусу).",
	}, []string{"status"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bd_upload_bytes_total",
		Help: "Общее количество принятых байт при загрузке.",
	})
)

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// Filename — оригинальное имя файла (обязательно, непустое)
	Filename string
	// ContentType — MIME-тип файла, как его сообщил клиент
	ContentType string
	// Size — размер файла (из multipart part)
	Size int64
}

// UploadResult — дескриптор успешной загрузки.
type UploadResult struct {
	// UID — идентификатор созданной записи
	UID string `json:"uid"`
	// DownloadURL — пользовательский URL скачивания
	DownloadURL string `json:"download_url"`
	// APIURL — машинный URL метаданных
	APIURL string `json:"api_url"`
	// ExpiresInDays — окно хранения в днях
	ExpiresInDays int `json:"expires_in_days"`
}

// UploadError — ошибка загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	cfg    *config.Config
	repo   repository.FileRepository
	store  storage.BlobStore
	logger *slog.Logger
}

// NewUploadService создаёт сервис загрузки файлов.
func NewUploadService(
	cfg *config.Config,
	repo repository.FileRepository,
	store storage.BlobStore,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		cfg:    cfg,
		repo:   repo,
		store:  store,
		logger: logger.With(slog.String("component", "upload_service")),
	}
}

// Upload выполняет полный write-path загрузки файла.
// Валидация без побочных эффектов выполняется до первой записи.
func (s *UploadService) Upload(ctx context.Context, params UploadParams) (*UploadResult, *UploadError) {
	// 1. Валидация входных данных — до любых побочных эффектов
	if params.Filename == "" {
		uploadsTotal.WithLabelValues("validation_error").Inc()
		return nil, &UploadError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Имя файла не может быть пустым",
		}
	}
	if params.Size <= 0 {
		uploadsTotal.WithLabelValues("validation_error").Inc()
		return nil, &UploadError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Файл пуст или отсутствует",
		}
	}
	if params.Size > s.cfg.MaxFileSize {
		uploadsTotal.WithLabelValues("too_large").Inc()
		return nil, &UploadError{
			StatusCode: 413,
			Code:       apierrors.CodeFileTooLarge,
			Message:    fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", params.Size, s.cfg.MaxFileSize),
		}
	}

	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// 2. Генерируем идентификатор (UUID v4, коллизии исключены
	// вероятностно энтропией идентификатора)
	record := &model.FileRecord{
		ID:       uuid.New().String(),
		Filename: params.Filename,
		Mimetype: contentType,
	}

	// 3. INSERT pending-строки — blob ещё не записан
	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Error("Ошибка создания записи файла",
			slog.String("file_id", record.ID),
			slog.String("error", err.Error()),
		)
		uploadsTotal.WithLabelValues("db_error").Inc()
		return nil, &UploadError{
			StatusCode: 502,
			Code:       apierrors.CodeStorageError,
			Message:    "Ошибка записи метаданных",
		}
	}

	// 4. Запись blob'а по ключу {id}/{filename}
	if err := s.store.Put(ctx, s.cfg.S3Bucket, record.ObjectKey(), params.Reader, params.Size, contentType); err != nil {
		// Pending-строка без blob'а: убираем сразу (best effort),
		// сверка — backstop на случай падения и этого шага
		if delErr := s.repo.Delete(ctx, record.ID); delErr != nil {
			s.logger.Error("Ошибка отката pending-записи, оставлена для сверки",
				slog.String("file_id", record.ID),
				slog.String("error", delErr.Error()),
			)
		}
		s.logger.Error("Ошибка записи blob'а",
			slog.String("file_id", record.ID),
			slog.String("object_key", record.ObjectKey()),
			slog.String("error", err.Error()),
		)
		uploadsTotal.WithLabelValues("blob_error").Inc()
		return nil, &UploadError{
			StatusCode: 502,
			Code:       apierrors.CodeStorageError,
			Message:    "Ошибка записи файла в хранилище",
		}
	}

	// 5. pending → complete, фиксируем фактический размер
	if err := s.repo.MarkComplete(ctx, record.ID, params.Size); err != nil {
		// Blob записан, строка осталась pending — подберёт сверка
		s.logger.Error("Ошибка завершения записи файла",
			slog.String("file_id", record.ID),
			slog.String("error", err.Error()),
		)
		uploadsTotal.WithLabelValues("db_error").Inc()
		return nil, &UploadError{
			StatusCode: 502,
			Code:       apierrors.CodeStorageError,
			Message:    "Ошибка завершения записи метаданных",
		}
	}

	uploadsTotal.WithLabelValues("success").Inc()
	uploadBytesTotal.Add(float64(params.Size))

	s.logger.Info("Файл загружен",
		slog.String("file_id", record.ID),
		slog.String("filename", record.Filename),
		slog.Int64("size", params.Size),
		slog.String("mimetype", contentType),
	)

	return &UploadResult{
		UID:           record.ID,
		DownloadURL:   fmt.Sprintf("%s/file/%s", s.cfg.PublicURL, record.ID),
		APIURL:        fmt.Sprintf("%s/api/%s", s.cfg.PublicURL, record.ID),
		ExpiresInDays: s.cfg.RetentionDays,
	}, nil
}
