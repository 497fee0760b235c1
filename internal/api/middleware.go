package api

import (
	"log/slog"
	"net/http"
	"time"

	"Agentica/internal/auth"
	"Agentica/internal/observability/metrics"
	"Agentica/pkg/logger"
)

// statusWriter 捕获响应状态码。
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withAccessLog 记录请求指标与审计日志。指标按路由模式聚合，
// 因此必须直接包裹 ServeMux。
func withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.ObserveHTTPRequest(pattern, r.Method, sw.status, elapsed)

		attrs := []any{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		}
		if keyID, ok := auth.KeyIDFromContext(r.Context()); ok {
			attrs = append(attrs, slog.String("key_id", keyID))
		}
		logger.Audit().Info("api access", attrs...)
	})
}
