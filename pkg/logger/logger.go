// Package logger owns the process-wide slog loggers used by agenticad.
//
// Two streams exist: the operational logger returned by L, and the audit
// stream returned by Audit, which records wallet, room and saga state changes
// to a rotating JSON file. Attributes that carry credentials are redacted
// before they reach either stream.
package logger

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Config 描述主日志的级别、格式与输出。
type Config struct {
	Level       string
	Format      string
	Service     string
	OutputPaths []string
	Audit       AuditConfig
}

// AuditConfig 控制审计日志的落盘与轮转。
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// state 保存全局日志句柄，Init 只生效一次。
type state struct {
	mu      sync.RWMutex
	main    *slog.Logger
	audit   *slog.Logger
	closers []io.Closer
	inited  bool
}

var global state

// Init 初始化全局日志，重复调用返回 nil 且不覆盖首次配置。
func Init(cfg Config) error {
	global.mu.Lock()
	defer global.mu.Unlock()
	if global.inited {
		return nil
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   true,
		ReplaceAttr: redact,
	}
	writer, closers, err := openOutputs(cfg.OutputPaths)
	if err != nil {
		return err
	}
	main := slog.New(newHandler(cfg.Format, writer, opts))
	if cfg.Service != "" {
		main = main.With(slog.String("service", cfg.Service))
	}

	audit := main.With(slog.String("stream", "audit"))
	if cfg.Audit.Enabled {
		a, closer, err := buildAuditLogger(cfg.Audit)
		if err != nil {
			closeAll(closers)
			return err
		}
		closers = append(closers, closer)
		audit = a
		if cfg.Service != "" {
			audit = audit.With(slog.String("service", cfg.Service))
		}
	}

	global.main = main
	global.audit = audit
	global.closers = closers
	global.inited = true
	return nil
}

// L 返回主日志，未初始化时退化为 stdout 上的 JSON 日志。
func L() *slog.Logger {
	global.mu.RLock()
	l := global.main
	global.mu.RUnlock()
	if l != nil {
		return l
	}
	_ = Init(Config{})
	global.mu.RLock()
	defer global.mu.RUnlock()
	return global.main
}

// Audit 返回审计日志；未启用独立文件时与主日志共用输出。
func Audit() *slog.Logger {
	global.mu.RLock()
	a := global.audit
	global.mu.RUnlock()
	if a != nil {
		return a
	}
	return L().With(slog.String("stream", "audit"))
}

// Named 返回带 component 标签的子日志。
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// Sync 关闭所有文件输出。
func Sync() error {
	global.mu.Lock()
	closers := global.closers
	global.closers = nil
	global.mu.Unlock()
	return closeAll(closers)
}

func closeAll(closers []io.Closer) error {
	var err error
	for _, c := range closers {
		err = errors.Join(err, c.Close())
	}
	return err
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err == nil {
		return l
	}
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// sensitiveKeys 中的字段值一律打码输出。
var sensitiveKeys = map[string]struct{}{
	"api_key":       {},
	"wallet_secret": {},
	"private_key":   {},
	"authorization": {},
	"password":      {},
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok && a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, mask(a.Value.String()))
	}
	return a
}

func mask(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return v[:2] + "****" + v[len(v)-2:]
}
