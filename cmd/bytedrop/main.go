// Точка входа bytedrop — минималистичный сервис обмена файлами.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL
// и Blob Store, создаёт сервисный слой и API handlers, запускает фоновую
// сверку и мониторинг зависимостей, HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/gobytedrop/internal/api/handlers"
	"github.com/bigkaa/gobytedrop/internal/api/middleware"
	"github.com/bigkaa/gobytedrop/internal/config"
	"github.com/bigkaa/gobytedrop/internal/database"
	"github.com/bigkaa/gobytedrop/internal/repository"
	"github.com/bigkaa/gobytedrop/internal/server"
	"github.com/bigkaa/gobytedrop/internal/service"
	storageminio "github.com/bigkaa/gobytedrop/internal/storage/minio"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("bytedrop запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Blob Store
	blobStore, err := storageminio.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL)
	if err != nil {
		logger.Error("Ошибка создания клиента Blob Store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := blobStore.EnsureBucket(ctx, cfg.S3Bucket); err != nil {
		logger.Error("Ошибка инициализации bucket",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info("Blob Store подключен",
		slog.String("endpoint", cfg.S3Endpoint),
		slog.String("bucket", cfg.S3Bucket),
	)

	// 6. Repository
	fileRepo := repository.NewFileRepository(pool)

	// 7. Services
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	uploadSvc := service.NewUploadService(cfg, fileRepo, blobStore, logger)
	downloadSvc := service.NewDownloadService(cfg, fileRepo, blobStore, cache, logger)
	listingSvc := service.NewListingService(fileRepo, logger)

	// 8. Фоновая сверка брошенных pending-загрузок
	reconcileSvc := service.NewReconcileService(
		fileRepo, blobStore, cfg.S3Bucket,
		cfg.ReconcileInterval, cfg.PendingTTL,
		logger,
	)
	reconcileSvc.Start(ctx)
	defer reconcileSvc.Stop()

	// 9. topologymetrics — мониторинг зависимостей (PostgreSQL + Blob Store)
	blobScheme := "http"
	if cfg.S3UseSSL {
		blobScheme = "https"
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(
		cfg.DephealthName,
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseDSN(),
		fmt.Sprintf("%s://%s", blobScheme, cfg.S3Endpoint),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			defer dephealthSvc.Stop()
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 10. API handlers
	filesHandler := handlers.NewFilesHandler(cfg, uploadSvc, downloadSvc, listingSvc, logger)
	rawHandler := handlers.NewRawHandler(cfg, blobStore, logger)
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		storageminio.NewReadinessChecker(blobStore, cfg.S3Bucket),
	)

	// 11. HTTP-сервер: metrics → logging → routes
	srv := server.New(cfg, logger, filesHandler, rawHandler, healthHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	// 12. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("bytedrop остановлен")
}
