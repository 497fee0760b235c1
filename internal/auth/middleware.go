package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	xerrors "Agentica/internal/errors"
)

// Middleware 返回鉴权中间件。拒绝的请求写入审计日志并返回 401。
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s == nil || s.mode == ModeDisabled || s.exempted(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		subject, err := s.Authenticate(r)
		if err != nil {
			s.audit.Warn("access denied",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("reason", detail(err)),
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="agentica"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"detail":     detail(err),
				"error_code": string(xerrors.CodeOf(err)),
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, *subject)))
	})
}

type subjectKey struct{}

// KeyIDFromContext 返回当前请求所用 API Key 的指纹，未经鉴权的请求返回 false。
func KeyIDFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey{}).(Subject)
	if !ok {
		return "", false
	}
	return subject.KeyID, true
}

func detail(err error) string {
	if e, ok := xerrors.From(err); ok {
		return e.Detail()
	}
	return err.Error()
}
