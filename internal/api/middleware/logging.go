// logging.go — slog-логирование HTTP-запросов bytedrop.
// Одна обёртка responseTap перехватывает статус и объём ответа
// и переиспользуется метриками (metrics.go).
package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// responseTap перехватывает статус-код и число записанных байт ответа.
// Общая обёртка для логирования и метрик.
type responseTap struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func newResponseTap(w http.ResponseWriter) *responseTap {
	return &responseTap{ResponseWriter: w, status: http.StatusOK}
}

func (t *responseTap) WriteHeader(code int) {
	t.status = code
	t.ResponseWriter.WriteHeader(code)
}

func (t *responseTap) Write(b []byte) (int, error) {
	n, err := t.ResponseWriter.Write(b)
	t.bytes += int64(n)
	return n, err
}

// Unwrap отдаёт оригинальный ResponseWriter для http.ResponseController.
func (t *responseTap) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}

// RequestLogger возвращает middleware, пишущий строку лога на каждый
// завершённый запрос. 4xx логируются как WARN, 5xx — как ERROR,
// всё остальное — INFO.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			tap := newResponseTap(w)

			next.ServeHTTP(tap, r)

			var level slog.Level
			switch {
			case tap.status >= 500:
				level = slog.LevelError
			case tap.status >= 400:
				level = slog.LevelWarn
			default:
				level = slog.LevelInfo
			}

			logger.LogAttrs(r.Context(), level, "запрос обработан",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", tap.status),
				slog.Int64("bytes", tap.bytes),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
