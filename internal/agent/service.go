package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"Agentica/internal/agentruntime"
	xerrors "Agentica/internal/errors"
	"Agentica/pkg/logger"
)

const (
	defaultCallTimeout    = 30 * time.Second
	defaultCleanupTimeout = 10 * time.Second
)

// CreateRequest 描述一次代理创建。
type CreateRequest struct {
	UserID         string         `json:"user_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	AdvancedConfig map[string]any `json:"advanced_config,omitempty"`
}

// Service 协调远端运行时与本地存储完成代理的增删查。
type Service struct {
	store   Store
	runtime agentruntime.Runtime

	callTimeout    time.Duration
	cleanupTimeout time.Duration
	now            func() time.Time
	newID          func() string
}

// Option 定义 Service 的可选配置。
type Option func(*Service)

// WithCallTimeout 设置远端调用超时。
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithCleanupTimeout 设置停止与删除远端代理时的超时。
func WithCleanupTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cleanupTimeout = d
		}
	}
}

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator 替换本地 ID 生成器。
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService 创建 Service。
func NewService(store Store, runtime agentruntime.Runtime, opts ...Option) *Service {
	s := &Service{
		store:          store,
		runtime:        runtime,
		callTimeout:    defaultCallTimeout,
		cleanupTimeout: defaultCleanupTimeout,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Create 先创建并尽力启动远端代理，再写入本地镜像。
// 本地写入失败时尽力删除远端代理。
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Agent, error) {
	if err := ValidateInput(req.Name, req.Description, req.UserID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	description := strings.TrimSpace(req.Description)
	character := agentruntime.BuildCharacter(name, description, req.AdvancedConfig)

	remoteID, err := s.createRemote(ctx, character)
	if err != nil {
		return nil, err
	}

	now := s.now()
	agent := &Agent{
		ID:              s.newID(),
		UserID:          req.UserID,
		RemoteAgentID:   remoteID,
		Name:            name,
		Description:     description,
		CharacterConfig: character,
		AdvancedConfig:  req.AdvancedConfig,
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, agent); err != nil {
		s.removeRemote(ctx, remoteID, false)
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "Failed to store agent in database")
	}

	logger.Audit().Info("agent created",
		slog.String("agent_id", agent.ID),
		slog.String("remote_agent_id", remoteID),
		slog.String("user_id", agent.UserID),
		slog.String("name", agent.Name),
	)
	return agent, nil
}

// Register 为已在远端创建的代理写入本地镜像，不触发任何远端调用。
func (s *Service) Register(ctx context.Context, userID, remoteID string, character *agentruntime.Character, description string) (*Agent, error) {
	now := s.now()
	agent := &Agent{
		ID:              s.newID(),
		UserID:          userID,
		RemoteAgentID:   remoteID,
		Description:     description,
		CharacterConfig: character,
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if character != nil {
		agent.Name = character.Name
	}
	if err := s.store.Create(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// List 返回用户的全部代理，新建的在前。
func (s *Service) List(ctx context.Context, userID string) ([]*Agent, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.store.ListByUser(ctx, userID)
}

// RemoteIDsForUser 返回用户全部代理的远端 ID。
func (s *Service) RemoteIDsForUser(ctx context.Context, userID string) ([]string, error) {
	agents, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(agents))
	for _, agent := range agents {
		ids = append(ids, agent.RemoteAgentID)
	}
	return ids, nil
}

// RemoteIDs 把本地代理 ID 映射为远端 ID，未知 ID 被忽略。
func (s *Service) RemoteIDs(ctx context.Context, ids []string) ([]string, error) {
	return s.store.RemoteIDs(ctx, ids)
}

// Delete 校验归属后尽力停止并删除远端代理，然后删除本地记录。
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "user_id is required for ownership verification")
	}
	agent, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if agent.UserID != userID {
		return ErrAgentNotFound
	}

	s.removeRemote(ctx, agent.RemoteAgentID, true)

	if err := s.store.Delete(ctx, id); err != nil {
		if !xerrors.IsCode(err, CodeAgentNotFound) {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "Failed to delete agent from database")
		}
		logger.L().Warn("代理记录已不存在", slog.String("agent_id", id))
	}

	logger.Audit().Info("agent deleted",
		slog.String("agent_id", id),
		slog.String("remote_agent_id", agent.RemoteAgentID),
		slog.String("user_id", userID),
	)
	return nil
}

func (s *Service) createRemote(ctx context.Context, character *agentruntime.Character) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	remoteID, err := s.runtime.CreateAgent(callCtx, character)
	if err != nil {
		return "", err
	}
	if err := s.runtime.StartAgent(callCtx, remoteID); err != nil {
		logger.L().Warn("启动远端代理失败", slog.String("remote_agent_id", remoteID), slog.Any("error", err))
	}
	return remoteID, nil
}

// removeRemote 的失败只记录日志。
func (s *Service) removeRemote(ctx context.Context, remoteID string, stop bool) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cleanupTimeout)
	defer cancel()

	if stop {
		if err := s.runtime.StopAgent(cleanupCtx, remoteID); err != nil {
			logger.L().Warn("停止远端代理失败", slog.String("remote_agent_id", remoteID), slog.Any("error", err))
		}
	}
	if err := s.runtime.DeleteAgent(cleanupCtx, remoteID); err != nil {
		logger.L().Warn("删除远端代理失败", slog.String("remote_agent_id", remoteID), slog.Any("error", err))
	}
}
