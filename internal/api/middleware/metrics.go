// metrics.go — Prometheus HTTP метрики bytedrop.
// Регистрирует метрики: bd_http_requests_total, bd_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики bytedrop
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bd_http_requests_total",
			Help: "Общее количество HTTP-запросов к bytedrop",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bd_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к bytedrop в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем UUID на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			tap := newResponseTap(w)
			next.ServeHTTP(tap, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(tap.status)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// normalizePath заменяет динамические сегменты пути на плейсхолдеры
// для предотвращения взрывного роста кардинальности метрик.
// /api/a1b2c3d4-...           → /api/{id}
// /file/a1b2c3d4-...          → /file/{id}
// /api/download/files/a/b.txt → /api/download/{bucket}/{path}
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/upload", "/dashboard-data", "/api/upload":
		return path
	}

	// Raw download: /api/download/{bucket}/{path...}
	if strings.HasPrefix(path, "/api/download/") {
		return "/api/download/{bucket}/{path}"
	}

	// Метаданные: /api/{fileID}
	if strings.HasPrefix(path, "/api/") {
		return "/api/{id}"
	}

	// Скачивание: /file/{fileID}
	if strings.HasPrefix(path, "/file/") {
		return "/file/{id}"
	}

	return path
}
