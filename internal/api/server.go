package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Agentica/internal/agent"
	"Agentica/internal/agentruntime"
	"Agentica/internal/auth"
	"Agentica/internal/config"
	"Agentica/internal/dispatch"
	xerrors "Agentica/internal/errors"
	"Agentica/internal/ledger"
	"Agentica/internal/observability/metrics"
	"Agentica/internal/room"
	"Agentica/internal/wallet"
	"Agentica/pkg/logger"
)

// WalletResolver 提供钱包创建与查询。
type WalletResolver interface {
	Provision(ctx context.Context, roomID string) (*wallet.Identity, error)
	Resolve(ctx context.Context, roomID string) (*wallet.Identity, error)
}

// Dispatcher 执行钱包动作。
type Dispatcher interface {
	Dispatch(ctx context.Context, roomID, action string, params map[string]any) (*dispatch.Outcome, error)
}

// History 查询钱包流水。
type History interface {
	Query(ctx context.Context, roomID string, opts ...ledger.ListOption) (*ledger.Page, error)
}

// AgentService 管理用户代理。
type AgentService interface {
	Create(ctx context.Context, req agent.CreateRequest) (*agent.Agent, error)
	List(ctx context.Context, userID string) ([]*agent.Agent, error)
	Delete(ctx context.Context, id, userID string) error
}

// RoomService 管理房间。
type RoomService interface {
	Create(ctx context.Context, req room.CreateRequest) (*room.Room, error)
	SendMessage(ctx context.Context, roomID string, msg room.Message) (*room.MessageResult, error)
	List(ctx context.Context, userID string) ([]agentruntime.Room, error)
	Transactions(ctx context.Context, roomID string, limit, offset int, status string) (*ledger.Page, error)
}

var (
	_ WalletResolver = (*wallet.Resolver)(nil)
	_ Dispatcher     = (*dispatch.Dispatcher)(nil)
	_ History        = (*ledger.Ledger)(nil)
	_ AgentService   = (*agent.Service)(nil)
	_ RoomService    = (*room.Service)(nil)
)

// Dependencies 汇总 API 使用的业务组件，未配置的组件对应的接口返回 503。
type Dependencies struct {
	Wallets    WalletResolver
	Dispatcher Dispatcher
	History    History
	Agents     AgentService
	Rooms      RoomService
	Auth       *auth.Service
}

// Server 负责暴露 REST 接口。
type Server struct {
	cfg  config.ServerConfig
	deps Dependencies

	metricsPath string
}

// Option 定义 Server 的可选配置。
type Option func(*Server)

// WithMetricsPath 在 API 端口上暴露 Prometheus 指标，空路径表示不暴露。
func WithMetricsPath(path string) Option {
	return func(s *Server) {
		s.metricsPath = path
	}
}

// NewServer 构造 API 服务实例。
func NewServer(cfg config.ServerConfig, deps Dependencies, opts ...Option) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agentica-platform"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{cfg: cfg, deps: deps}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回挂载全部路由与中间件的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metricsPath != "" {
		mux.Handle("GET "+s.metricsPath, metrics.Handler())
	}

	mux.HandleFunc("POST /wallets", s.handleProvisionWallet)
	mux.HandleFunc("POST /wallets/{room_id}/{action}", s.handleDispatch)
	mux.HandleFunc("GET /wallets/{room_id}/transactions", s.handleWalletTransactions)

	mux.HandleFunc("POST /agents", s.handleCreateAgent)
	mux.HandleFunc("GET /agents", s.handleListAgents)
	mux.HandleFunc("DELETE /agents/{agent_id}", s.handleDeleteAgent)

	mux.HandleFunc("POST /rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /rooms", s.handleListRooms)
	mux.HandleFunc("POST /rooms/{room_id}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /rooms/{room_id}/transactions", s.handleRoomTransactions)

	return s.deps.Auth.Middleware(withAccessLog(mux))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.L().Info("API 服务已启动", slog.String("address", s.cfg.Address))

	select {
	case <-ctx.Done():
		timeout := s.cfg.ShutdownTimeout()
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": s.cfg.ServiceName,
	})
}

// decodeBody 解析 JSON 请求体，空请求体视为 {}。
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return xerrors.Newf(xerrors.CodeInvalidArgument, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid JSON body")
	}
	return nil
}

// pagination 读取 limit/offset/status 查询参数，limit 默认 50。
func pagination(r *http.Request) (limit, offset int, status string, err error) {
	q := r.URL.Query()
	limit, offset = ledger.DefaultLimit, 0
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			return 0, 0, "", xerrors.Newf(xerrors.CodeInvalidArgument, "invalid limit: %s", raw)
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil {
			return 0, 0, "", xerrors.Newf(xerrors.CodeInvalidArgument, "invalid offset: %s", raw)
		}
	}
	return limit, offset, strings.TrimSpace(q.Get("status")), nil
}

func unavailable(component string) error {
	return xerrors.Newf(xerrors.CodeInitializationFailure, "%s not initialized", component)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 按错误类别映射状态码，响应体为 {"detail","error_code"}。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := xerrors.HTTPStatus(err)
	detail := err.Error()
	if e, ok := xerrors.From(err); ok {
		detail = e.Detail()
	}
	if status >= http.StatusInternalServerError {
		logger.L().Error("请求处理失败",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, map[string]string{
		"detail":     detail,
		"error_code": string(xerrors.CodeOf(err)),
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, r, xerrors.New(xerrors.CodeInitializationFailure, "服务已关闭"))
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
