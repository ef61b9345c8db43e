// download.go — retrieval service: метаданные и скачивание файлов.
//
// Два независимых read-path'а:
//   - Metadata: FileRecord по id (LRU-кэш → БД), not-found отличается
//     от ошибки хранилища
//   - Serve: streaming blob'а с Content-Disposition; после успешной
//     передачи — атомарный инкремент счётчика скачиваний в БД
//
// Blob отсутствует при живой записи метаданных — consistency error,
// наружу уходит ошибкой retrieval, не маскируется под not-found.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gobytedrop/internal/config"
	"github.com/bigkaa/gobytedrop/internal/domain/model"
	"github.com/bigkaa/gobytedrop/internal/repository"
	"github.com/bigkaa/gobytedrop/internal/storage"
)

// Ошибки retrieval service.
var (
	// ErrNotFound — запись с указанным id отсутствует (или ещё pending).
	ErrNotFound = errors.New("файл не найден")

	// ErrBlobMissing — запись метаданных существует, но blob в хранилище
	// отсутствует. Результат неатомарной двухфазной записи.
	ErrBlobMissing = errors.New("blob отсутствует при живой записи метаданных")
)

// Prometheus-метрики скачивания.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bd_downloads_total",
		Help: "Общее количество запросов на скачивание (по статусу).",
	}, []string{"status"})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bd_download_duration_seconds",
		Help:    "Длительность скачивания (от запроса до завершения streaming).",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bd_download_bytes_total",
		Help: "Общее количество переданных байт при скачивании.",
	})

	activeDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bd_active_downloads",
		Help: "Количество активных (in-progress) скачиваний.",
	})
)

// DownloadService — retrieval service bytedrop.
type DownloadService struct {
	cfg    *config.Config
	repo   repository.FileRepository
	store  storage.BlobStore
	cache  *CacheService
	logger *slog.Logger
}

// NewDownloadService создаёт retrieval service.
func NewDownloadService(
	cfg *config.Config,
	repo repository.FileRepository,
	store storage.BlobStore,
	cache *CacheService,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		cfg:    cfg,
		repo:   repo,
		store:  store,
		cache:  cache,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// Metadata возвращает FileRecord по id (кэш или БД).
// Записи pending наружу не видны: ErrNotFound.
func (ds *DownloadService) Metadata(ctx context.Context, fileID string) (*model.FileRecord, error) {
	return ds.getRecord(ctx, fileID)
}

// Serve выполняет полный pipeline скачивания файла.
//
// Pipeline:
//  1. Получить FileRecord (кэш или БД), pending → not found
//  2. Получить blob из Blob Store по ключу {id}/{filename}
//  3. Заголовки (Content-Disposition: attachment) + streaming copy
//  4. После успешной передачи — атомарный инкремент downloads
//
// Инкремент выполняется ровно один раз на успешное скачивание; при
// обрыве streaming счётчик не увеличивается.
func (ds *DownloadService) Serve(ctx context.Context, w http.ResponseWriter, fileID string) error {
	start := time.Now()
	activeDownloads.Inc()
	defer activeDownloads.Dec()

	// 1. FileRecord
	record, err := ds.getRecord(ctx, fileID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			downloadsTotal.WithLabelValues("not_found").Inc()
		} else {
			downloadsTotal.WithLabelValues("db_error").Inc()
		}
		return err
	}

	// 2. Blob
	body, info, err := ds.store.Get(ctx, ds.cfg.S3Bucket, record.ObjectKey())
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			// Метаданные есть, blob'а нет — consistency error
			ds.logger.Error("Blob отсутствует при живой записи метаданных",
				slog.String("file_id", fileID),
				slog.String("object_key", record.ObjectKey()),
			)
			downloadsTotal.WithLabelValues("blob_missing").Inc()
			return ErrBlobMissing
		}
		downloadsTotal.WithLabelValues("blob_error").Inc()
		return fmt.Errorf("получение blob'а %s: %w", record.ObjectKey(), err)
	}
	defer body.Close()

	// 3. Заголовки + streaming
	contentType := record.Mimetype
	if contentType == "" {
		contentType = info.ContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.Filename))
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, body)
	if err != nil {
		// Заголовки уже отправлены — логируем, счётчик не трогаем
		ds.logger.Error("Ошибка streaming скачивания",
			slog.String("file_id", fileID),
			slog.Int64("bytes_written", written),
			slog.String("error", err.Error()),
		)
		downloadsTotal.WithLabelValues("stream_error").Inc()
		return nil
	}

	// 4. Атомарный инкремент счётчика — ровно один раз на успешное скачивание
	downloads, err := ds.repo.IncrementDownloads(ctx, fileID)
	if err != nil {
		// Байты клиент уже получил; недосчитанный инкремент только логируем
		ds.logger.Error("Ошибка инкремента счётчика скачиваний",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	} else {
		// Кэшированная запись устарела (downloads) — инвалидируем
		ds.cache.Delete(fileID)
	}

	duration := time.Since(start)
	downloadsTotal.WithLabelValues("success").Inc()
	downloadDuration.Observe(duration.Seconds())
	downloadBytesTotal.Add(float64(written))

	ds.logger.Debug("Скачивание завершено",
		slog.String("file_id", fileID),
		slog.Int64("bytes", written),
		slog.Int64("downloads", downloads),
		slog.Duration("duration", duration),
	)

	return nil
}

// getRecord получает FileRecord из кэша или БД.
// Pending-записи не видны: write-path ещё не завершён.
func (ds *DownloadService) getRecord(ctx context.Context, fileID string) (*model.FileRecord, error) {
	if record, ok := ds.cache.Get(fileID); ok {
		return record, nil
	}

	record, err := ds.repo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение записи файла: %w", err)
	}

	if !record.IsComplete() {
		return nil, ErrNotFound
	}

	ds.cache.Set(fileID, record)
	return record, nil
}
