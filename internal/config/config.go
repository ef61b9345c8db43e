// Пакет config — загрузка и валидация конфигурации bytedrop
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации bytedrop.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Публичный базовый URL сервиса (для download_url/api_url в ответах)
	PublicURL string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL (Metadata Store) ---

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// --- S3-совместимое хранилище (Blob Store) ---

	// Endpoint хранилища (host:port), обязательный
	S3Endpoint string
	// Ключ доступа, обязательный
	S3AccessKey string
	// Секретный ключ, обязательный
	S3SecretKey string
	// Имя bucket'а для файлов record store
	S3Bucket string
	// Использовать TLS при подключении к хранилищу
	S3UseSSL bool

	// --- Лимиты и retention ---

	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// Окно хранения файла (display-only, по умолчанию 10 дней)
	RetentionDays int

	// --- Фоновая сверка (reconcile) ---

	// Интервал запуска сверки pending-записей
	ReconcileInterval time.Duration
	// Возраст pending-записи, после которого она считается брошенной
	PendingTTL time.Duration

	// --- Кэш метаданных ---

	// Максимальное количество записей в LRU-кэше
	CacheSize int
	// TTL записи кэша
	CacheTTL time.Duration

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration

	// --- topologymetrics ---

	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя вершины графа текущего приложения
	DephealthName string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Endpoint и учётные данные внешних хранилищ обязательны —
// без них процесс отказывается стартовать.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// BD_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("BD_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("BD_PORT: %w", err)
	}

	// BD_PUBLIC_URL — публичный базовый URL (по умолчанию из порта)
	cfg.PublicURL = getEnvDefault("BD_PUBLIC_URL", fmt.Sprintf("http://localhost:%d", cfg.Port))
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	// BD_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("BD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("BD_LOG_LEVEL: %w", err)
	}

	// BD_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("BD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("BD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// BD_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("BD_DB_HOST")
	if err != nil {
		return nil, err
	}

	// BD_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("BD_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("BD_DB_PORT: %w", err)
	}

	// BD_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("BD_DB_USER")
	if err != nil {
		return nil, err
	}

	// BD_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("BD_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// BD_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("BD_DB_NAME")
	if err != nil {
		return nil, err
	}

	// BD_DB_SSLMODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("BD_DB_SSLMODE", "disable")

	// --- Blob Store ---

	// BD_S3_ENDPOINT — обязательный
	cfg.S3Endpoint, err = getEnvRequired("BD_S3_ENDPOINT")
	if err != nil {
		return nil, err
	}

	// BD_S3_ACCESS_KEY — обязательный
	cfg.S3AccessKey, err = getEnvRequired("BD_S3_ACCESS_KEY")
	if err != nil {
		return nil, err
	}

	// BD_S3_SECRET_KEY — обязательный
	cfg.S3SecretKey, err = getEnvRequired("BD_S3_SECRET_KEY")
	if err != nil {
		return nil, err
	}

	// BD_S3_BUCKET — bucket record store (по умолчанию "files")
	cfg.S3Bucket = getEnvDefault("BD_S3_BUCKET", "files")

	// BD_S3_USE_SSL — TLS к хранилищу (по умолчанию false)
	cfg.S3UseSSL = getEnvDefault("BD_S3_USE_SSL", "false") == "true"

	// --- Лимиты и retention ---

	// BD_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 100 MiB)
	cfg.MaxFileSize, err = getEnvInt64("BD_MAX_FILE_SIZE", 104857600)
	if err != nil {
		return nil, fmt.Errorf("BD_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("BD_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// BD_RETENTION_DAYS — окно хранения в днях (по умолчанию 10)
	cfg.RetentionDays, err = getEnvInt("BD_RETENTION_DAYS", 10)
	if err != nil {
		return nil, fmt.Errorf("BD_RETENTION_DAYS: %w", err)
	}
	if cfg.RetentionDays <= 0 {
		return nil, fmt.Errorf("BD_RETENTION_DAYS: значение должно быть положительным, получено %d", cfg.RetentionDays)
	}

	// --- Reconcile ---

	// BD_RECONCILE_INTERVAL — интервал сверки (по умолчанию 1h)
	cfg.ReconcileInterval, err = getEnvDuration("BD_RECONCILE_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("BD_RECONCILE_INTERVAL: %w", err)
	}

	// BD_PENDING_TTL — возраст брошенной pending-записи (по умолчанию 1h)
	cfg.PendingTTL, err = getEnvDuration("BD_PENDING_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("BD_PENDING_TTL: %w", err)
	}

	// --- Кэш ---

	// BD_CACHE_SIZE — размер LRU-кэша (по умолчанию 1024)
	cfg.CacheSize, err = getEnvInt("BD_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("BD_CACHE_SIZE: %w", err)
	}

	// BD_CACHE_TTL — TTL записи кэша (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvDuration("BD_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("BD_CACHE_TTL: %w", err)
	}

	// --- HTTP Timeouts ---

	// BD_HTTP_READ_TIMEOUT — таймаут чтения (по умолчанию 60s, multipart upload)
	cfg.HTTPReadTimeout, err = getEnvDuration("BD_HTTP_READ_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BD_HTTP_READ_TIMEOUT: %w", err)
	}

	// BD_HTTP_WRITE_TIMEOUT — таймаут записи (по умолчанию 120s, streaming download)
	cfg.HTTPWriteTimeout, err = getEnvDuration("BD_HTTP_WRITE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BD_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// BD_HTTP_IDLE_TIMEOUT — таймаут простоя (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("BD_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BD_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	// BD_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("BD_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BD_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- topologymetrics ---

	// BD_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("BD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// BD_DEPHEALTH_GROUP — имя группы в метриках (по умолчанию "bytedrop")
	cfg.DephealthGroup = getEnvDefault("BD_DEPHEALTH_GROUP", "bytedrop")

	// BD_DEPHEALTH_NAME — имя вершины графа (по умолчанию "bytedrop")
	cfg.DephealthName = getEnvDefault("BD_DEPHEALTH_NAME", "bytedrop")

	return cfg, nil
}

// DatabaseDSN формирует DSN для pgx из параметров подключения.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Retention возвращает окно хранения как time.Duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
