// reconcile.go — фоновая сверка брошенных загрузок.
//
// Двухфазная запись (pending-строка → blob → complete) не атомарна:
// упавший или прерванный запрос оставляет pending-строку, возможно
// с частично записанным blob'ом. Сверка периодически находит
// pending-записи старше порога и удаляет их вместе с blob'ами
// под префиксом {id}/.
//
// Сверка НЕ трогает истёкшие complete-файлы: окно хранения —
// display-only, удаление по истечению сознательно не реализовано.
//
// Запускается как горутина с периодическим тикером (BD_RECONCILE_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gobytedrop/internal/repository"
	"github.com/bigkaa/gobytedrop/internal/storage"
)

// Prometheus-метрики сверки.
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bd_reconcile_runs_total",
		Help: "Общее количество запусков сверки.",
	})

	reconcileSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bd_reconcile_swept_total",
		Help: "Общее количество убранных брошенных pending-записей.",
	})

	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bd_reconcile_duration_seconds",
		Help:    "Длительность выполнения сверки в секундах.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// ReconcileResult — результат одного запуска сверки.
type ReconcileResult struct {
	// SweptCount — количество убранных pending-записей
	SweptCount int
	// Errors — количество ошибок при обработке записей
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// ReconcileService — сервис фоновой сверки pending-записей.
type ReconcileService struct {
	repo       repository.FileRepository
	store      storage.BlobStore
	bucket     string
	interval   time.Duration
	pendingTTL time.Duration
	logger     *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewReconcileService создаёт сервис сверки.
// pendingTTL — возраст pending-записи, после которого она считается брошенной.
func NewReconcileService(
	repo repository.FileRepository,
	store storage.BlobStore,
	bucket string,
	interval time.Duration,
	pendingTTL time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		repo:       repo,
		store:      store,
		bucket:     bucket,
		interval:   interval,
		pendingTTL: pendingTTL,
		logger:     logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину сверки с периодическим тикером.
// Вызывается один раз при старте приложения.
func (rs *ReconcileService) Start(ctx context.Context) {
	rCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel

	go rs.run(rCtx)

	rs.logger.Info("Сверка запущена",
		slog.String("interval", rs.interval.String()),
		slog.String("pending_ttl", rs.pendingTTL.String()),
	)
}

// Stop останавливает фоновый процесс сверки.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.logger.Info("Сверка остановлена")
}

// run — основной цикл фоновой горутины.
func (rs *ReconcileService) run(ctx context.Context) {
	// Первый запуск — сразу после старта
	rs.RunOnce(ctx)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл сверки.
// Потокобезопасен: mutex защищает от параллельного запуска.
//
// Для каждой брошенной pending-записи:
//  1. Удаление всех blob'ов под префиксом {id}/ (частичные записи)
//  2. Удаление строки files_meta
func (rs *ReconcileService) RunOnce(ctx context.Context) *ReconcileResult {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	start := time.Now()
	result := &ReconcileResult{}
	reconcileRunsTotal.Inc()

	rs.logger.Debug("Сверка: запуск начат")

	cutoff := time.Now().UTC().Add(-rs.pendingTTL)
	stale, err := rs.repo.ListStalePending(ctx, cutoff)
	if err != nil {
		rs.logger.Error("Сверка: ошибка выборки pending-записей",
			slog.String("error", err.Error()),
		)
		result.Errors++
		result.Duration = time.Since(start)
		return result
	}

	for _, record := range stale {
		if ctx.Err() != nil {
			break
		}

		// 1. Частично записанные blob'ы под префиксом {id}/
		keys, err := rs.store.ListKeys(ctx, rs.bucket, record.ID+"/")
		if err != nil {
			rs.logger.Error("Сверка: ошибка листинга blob'ов",
				slog.String("file_id", record.ID),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		removeFailed := false
		for _, key := range keys {
			if err := rs.store.Remove(ctx, rs.bucket, key); err != nil {
				rs.logger.Error("Сверка: ошибка удаления blob'а",
					slog.String("file_id", record.ID),
					slog.String("object_key", key),
					slog.String("error", err.Error()),
				)
				result.Errors++
				removeFailed = true
			}
		}
		if removeFailed {
			// Строку оставляем — повторная попытка на следующем цикле
			continue
		}

		// 2. Строка files_meta
		if err := rs.repo.Delete(ctx, record.ID); err != nil {
			rs.logger.Error("Сверка: ошибка удаления pending-записи",
				slog.String("file_id", record.ID),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}

		result.SweptCount++
		reconcileSweptTotal.Inc()

		rs.logger.Info("Сверка: брошенная загрузка убрана",
			slog.String("file_id", record.ID),
			slog.String("filename", record.Filename),
			slog.Int("blobs_removed", len(keys)),
		)
	}

	result.Duration = time.Since(start)
	reconcileDuration.Observe(result.Duration.Seconds())

	if result.SweptCount > 0 || result.Errors > 0 {
		rs.logger.Info("Сверка завершена",
			slog.Int("swept", result.SweptCount),
			slog.Int("errors", result.Errors),
			slog.Duration("duration", result.Duration),
		)
	}

	return result
}
