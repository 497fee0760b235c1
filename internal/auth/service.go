package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"Agentica/internal/config"
	"Agentica/pkg/logger"
)

// Service 使用静态 API Key 列表校验请求。
type Service struct {
	mode   Mode
	keys   [][]byte
	exempt map[string]struct{}
	audit  *slog.Logger
}

// Option 定义 Service 的可选配置。
type Option func(*Service)

// WithExemptPaths 设置无需鉴权的路径。
func WithExemptPaths(paths ...string) Option {
	return func(s *Service) {
		for _, p := range paths {
			s.exempt[p] = struct{}{}
		}
	}
}

// WithAuditLogger 替换审计日志。
func WithAuditLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.audit = l
		}
	}
}

// NewService 根据配置创建 Service。未启用时所有请求直接放行。
func NewService(cfg config.AuthConfig, opts ...Option) *Service {
	s := &Service{
		mode:   ModeDisabled,
		exempt: map[string]struct{}{"/health": {}, "/metrics": {}},
		audit:  logger.Audit(),
	}
	if cfg.Enabled {
		s.mode = ModeAPIKey
		for _, key := range cfg.APIKeys {
			if key = strings.TrimSpace(key); key != "" {
				s.keys = append(s.keys, []byte(key))
			}
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Mode 返回当前鉴权模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// Authenticate 从 Authorization: Bearer 或 X-API-Key 头中读取并校验 Key。
func (s *Service) Authenticate(r *http.Request) (*Subject, error) {
	key := extractKey(r)
	if key == "" {
		return nil, ErrMissingKey
	}
	candidate := []byte(key)
	matched := false
	for _, allowed := range s.keys {
		// 遍历全部 Key，比较耗时与命中位置无关。
		if subtle.ConstantTimeCompare(candidate, allowed) == 1 {
			matched = true
		}
	}
	if !matched {
		return nil, ErrInvalidKey
	}
	return &Subject{KeyID: KeyID(key)}, nil
}

func (s *Service) exempted(path string) bool {
	_, ok := s.exempt[path]
	return ok
}

func extractKey(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
