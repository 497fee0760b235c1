package room

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"Agentica/internal/agent"
	"Agentica/internal/agentruntime"
	xerrors "Agentica/internal/errors"
	"Agentica/internal/intent"
	"Agentica/internal/ledger"
	"Agentica/internal/observability/metrics"
	"Agentica/internal/wallet"
	"Agentica/pkg/logger"
)

// 建房流程的步骤名，用于指标与审计。
const (
	stepStrategy    = "generate_strategy"
	stepIntent      = "record_intent"
	stepWallet      = "provision_wallet"
	stepAgent       = "create_agent"
	stepAgentStart  = "start_agent"
	stepRoom        = "create_room"
	stepPersist     = "persist_room"
	stepAgentMirror = "persist_agent"
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

const CodeSagaStepFailed xerrors.Code = "SAGA_STEP_FAILED"

func init() {
	xerrors.Register(CodeSagaStepFailed, xerrors.Attributes{
		Message:  "room creation step failed",
		Category: xerrors.CategoryInternal,
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
}

// WalletProvisioner 为新房间创建钱包身份。
type WalletProvisioner interface {
	Provision(ctx context.Context, roomID string) (*wallet.Identity, error)
}

// AgentDirectory 提供本地代理镜像的查询与登记。
type AgentDirectory interface {
	RemoteIDs(ctx context.Context, ids []string) ([]string, error)
	RemoteIDsForUser(ctx context.Context, userID string) ([]string, error)
	Register(ctx context.Context, userID, remoteID string, character *agentruntime.Character, description string) (*agent.Agent, error)
}

var _ AgentDirectory = (*agent.Service)(nil)

// Message 是转发给房间的消息请求。
type Message struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MessageResult 是消息转发的结果。
type MessageResult struct {
	Success     bool   `json:"success"`
	MessageID   string `json:"message_id,omitempty"`
	RoomID      string `json:"room_id"`
	Content     string `json:"content"`
	SubmittedAt string `json:"submitted_at,omitempty"`
}

// Service 编排建房流程，并提供房间消息、列表与流水查询。
type Service struct {
	store    Store
	strategy *StrategyGenerator
	wallets  WalletProvisioner
	runtime  agentruntime.Runtime
	agents   AgentDirectory
	history  *ledger.Ledger

	journal     *intent.Journal
	compensator *intent.Compensator
	policy      intent.Policy

	callTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

// Option 定义 Service 的可选配置。
type Option func(*Service)

// WithHistory 配置房间流水查询使用的账本。
func WithHistory(l *ledger.Ledger) Option {
	return func(s *Service) {
		s.history = l
	}
}

// WithJournal 开启意图日志。
func WithJournal(j *intent.Journal) Option {
	return func(s *Service) {
		s.journal = j
	}
}

// WithFailurePolicy 设置失败策略。compensate 策略需要提供补偿器。
func WithFailurePolicy(policy intent.Policy, compensator *intent.Compensator) Option {
	return func(s *Service) {
		if policy != "" {
			s.policy = policy
		}
		s.compensator = compensator
	}
}

// WithCallTimeout 设置单次远端调用的超时。
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.callTimeout = d
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

// WithIDGenerator 替换房间 ID 生成器。
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService 创建 Service。
func NewService(store Store, strategy *StrategyGenerator, wallets WalletProvisioner, runtime agentruntime.Runtime, agents AgentDirectory, opts ...Option) *Service {
	s := &Service{
		store:       store,
		strategy:    strategy,
		wallets:     wallets,
		runtime:     runtime,
		agents:      agents,
		policy:      intent.PolicyFailFast,
		callTimeout: 30 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Create 执行建房流程：生成策略、创建钱包、创建并启动策略代理、
// 创建远端房间、写入房间记录、登记代理镜像。
//
// 任一必需步骤失败即中止并返回该步骤的错误。fail_fast 策略下已创建的资源保留，
// compensate 策略下尽力回收代理与钱包记录。
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Room, error) {
	if s.store == nil || s.wallets == nil || s.runtime == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "建房服务未初始化")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(req.AgentIDs) > 0 && s.agents == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "agent directory not configured; cannot attach agent_ids")
	}
	name := strings.TrimSpace(req.Name)
	description := strings.TrimSpace(req.Description)
	prompt := strings.TrimSpace(req.Prompt)
	roomID := s.newID()

	generated, err := s.strategy.Generate(ctx, prompt)
	if err != nil {
		return nil, s.abort(ctx, nil, stepStrategy, err, "Failed to generate AI strategy")
	}
	s.observe(stepStrategy, outcomeOK)

	// 第一个远端副作用之前写入意图。
	record, err := s.journal.Begin(ctx, roomID, req.UserID)
	if err != nil {
		return nil, s.abort(ctx, nil, stepIntent, err, "Failed to record room intent")
	}

	identity, err := s.provisionWallet(ctx, roomID)
	if err != nil {
		return nil, s.abort(ctx, record, stepWallet, err, "Failed to create wallet")
	}
	record.WalletProvisioned = true
	s.journal.Advance(ctx, record, intent.StageWalletReady)
	s.observe(stepWallet, outcomeOK)

	character := agentruntime.BuildCharacter(name+" Strategy", generated, nil)
	agentID, err := s.createAgent(ctx, character)
	if err != nil {
		return nil, s.abort(ctx, record, stepAgent, err, "Failed to create strategy agent")
	}
	record.StrategyAgentID = agentID
	s.journal.Advance(ctx, record, intent.StageAgentCreated)
	s.observe(stepAgent, outcomeOK)

	s.startAgent(ctx, agentID)

	remoteRoomID, err := s.createRemoteRoom(ctx, name, description, agentID, req.AgentIDs)
	if err != nil {
		return nil, s.abort(ctx, record, stepRoom, err, "Failed to create agent runtime room")
	}
	record.RemoteRoomID = remoteRoomID
	s.journal.Advance(ctx, record, intent.StageRoomCreated)
	s.observe(stepRoom, outcomeOK)

	room := &Room{
		ID:                      roomID,
		UserID:                  req.UserID,
		Name:                    name,
		Description:             description,
		RemoteRoomID:            remoteRoomID,
		StrategyAgentID:         agentID,
		WalletAddress:           identity.OwnerAddress,
		CustodialAccountAddress: identity.SpendAddress(),
		UserPrompt:              prompt,
		GeneratedContent:        generated,
		Frequency:               strings.TrimSpace(req.Frequency),
		Status:                  StatusActive,
		CreatedAt:               s.now(),
	}
	if err := s.store.Create(ctx, room); err != nil {
		return nil, s.abort(ctx, record, stepPersist, err, "Failed to store room in database")
	}
	record.Stage = intent.StageRoomPersisted
	s.journal.Close(ctx, record, intent.StatusCompleted, nil)
	s.observe(stepPersist, outcomeOK)

	s.registerAgent(ctx, req.UserID, agentID, character, generated)

	logger.Audit().Info("saga completed",
		slog.String("room_id", roomID),
		slog.String("user_id", req.UserID),
		slog.String("remote_room_id", remoteRoomID),
		slog.String("strategy_agent_id", agentID),
		slog.String("custodial_account_address", room.CustodialAccountAddress),
	)
	return room, nil
}

// Get 读取房间记录。
func (s *Service) Get(ctx context.Context, roomID string) (*Room, error) {
	room, err := s.store.Get(ctx, strings.TrimSpace(roomID))
	if err != nil {
		if xerrors.IsCode(err, CodeRoomNotFound) {
			return nil, xerrors.New(CodeRoomNotFound, fmt.Sprintf("Room not found: %s", roomID))
		}
		return nil, err
	}
	return room, nil
}

// SendMessage 把消息转发到远端房间频道，不校验房间是否存在于本地。
func (s *Service) SendMessage(ctx context.Context, roomID string, msg Message) (*MessageResult, error) {
	if s.runtime == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "代理运行时未配置")
	}
	if strings.TrimSpace(roomID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "room_id is required")
	}
	if msg.Content == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "content must be at least 1 character long")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	receipt, err := s.runtime.SubmitMessage(callCtx, agentruntime.NewMessage(roomID, msg.Content, msg.Metadata))
	if err != nil {
		return nil, err
	}
	result := &MessageResult{Success: true, RoomID: roomID, Content: msg.Content}
	if receipt != nil {
		result.MessageID = receipt.ID
		result.SubmittedAt = receipt.CreatedAt
	}
	return result, nil
}

// List 返回包含用户任一代理的远端房间。用户没有代理时不访问远端。
func (s *Service) List(ctx context.Context, userID string) ([]agentruntime.Room, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "user_id is required and must be a non-empty string")
	}
	if s.agents == nil || s.runtime == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "房间列表依赖未配置")
	}
	remoteIDs, err := s.agents.RemoteIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(remoteIDs) == 0 {
		return []agentruntime.Room{}, nil
	}
	owned := make(map[string]struct{}, len(remoteIDs))
	for _, id := range remoteIDs {
		owned[id] = struct{}{}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	rooms, err := s.runtime.ListRooms(callCtx)
	if err != nil {
		return nil, err
	}
	matched := make([]agentruntime.Room, 0, len(rooms))
	for _, room := range rooms {
		if room.HasAnyAgent(owned) {
			matched = append(matched, room)
		}
	}
	return matched, nil
}

// Transactions 校验房间存在后返回其钱包流水。limit 超过上限时截断。
func (s *Service) Transactions(ctx context.Context, roomID string, limit, offset int, status string) (*ledger.Page, error) {
	if s.history == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "账本未配置")
	}
	if _, err := s.Get(ctx, roomID); err != nil {
		return nil, err
	}
	opts := []ledger.ListOption{ledger.WithLimit(limit), ledger.WithOffset(offset)}
	if strings.TrimSpace(status) != "" {
		parsed, err := ledger.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ledger.WithStatuses(parsed))
	}
	return s.history.Query(ctx, roomID, opts...)
}

func (s *Service) provisionWallet(ctx context.Context, roomID string) (*wallet.Identity, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.wallets.Provision(callCtx, roomID)
}

func (s *Service) createAgent(ctx context.Context, character *agentruntime.Character) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.runtime.CreateAgent(callCtx, character)
}

// startAgent 失败只记录日志。
func (s *Service) startAgent(ctx context.Context, agentID string) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := s.runtime.StartAgent(callCtx, agentID); err != nil {
		s.observe(stepAgentStart, outcomeFailed)
		logger.L().Warn("启动策略代理失败", slog.String("remote_agent_id", agentID), slog.Any("error", err))
		return
	}
	s.observe(stepAgentStart, outcomeOK)
}

func (s *Service) createRemoteRoom(ctx context.Context, name, description, agentID string, extra []string) (string, error) {
	agentIDs := []string{agentID}
	if len(extra) > 0 {
		remoteIDs, err := s.agents.RemoteIDs(ctx, extra)
		if err != nil {
			return "", err
		}
		for _, id := range remoteIDs {
			if id != "" && id != agentID {
				agentIDs = append(agentIDs, id)
			}
		}
	}
	if description == "" {
		description = fmt.Sprintf("Portfolio room with AI strategy: %s", name)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.runtime.CreateRoom(callCtx, agentruntime.RoomSpec{
		Name:        name,
		Description: description,
		AgentIDs:    agentIDs,
	})
}

// registerAgent 失败只记录日志，房间已经可用。
func (s *Service) registerAgent(ctx context.Context, userID, agentID string, character *agentruntime.Character, description string) {
	if s.agents == nil {
		return
	}
	if _, err := s.agents.Register(context.WithoutCancel(ctx), userID, agentID, character, description); err != nil {
		s.observe(stepAgentMirror, outcomeFailed)
		logger.L().Warn("登记策略代理失败", slog.String("remote_agent_id", agentID), slog.Any("error", err))
		return
	}
	s.observe(stepAgentMirror, outcomeOK)
}

// abort 记录失败步骤，按失败策略处理已创建的资源并关闭意图。
func (s *Service) abort(ctx context.Context, record *intent.Intent, step string, cause error, message string) error {
	s.observe(step, outcomeFailed)
	err := xerrors.Wrap(CodeSagaStepFailed, cause, message, xerrors.WithMetadata("step", step))

	status := intent.StatusFailed
	var orphans []string
	if record != nil && s.policy == intent.PolicyCompensate && s.compensator != nil {
		var undoErr error
		orphans, undoErr = s.compensator.Undo(ctx, record)
		if undoErr == nil {
			status = intent.StatusCompensated
		} else {
			logger.L().Error("回收建房资源失败", slog.String("room_id", record.RoomID), slog.Any("error", undoErr))
		}
	}
	if record != nil {
		s.journal.Close(ctx, record, status, cause)
	}

	attrs := []any{
		slog.String("step", step),
		slog.String("policy", string(s.policy)),
		slog.String("error", cause.Error()),
	}
	if record != nil {
		attrs = append(attrs,
			slog.String("room_id", record.RoomID),
			slog.String("user_id", record.UserID),
			slog.String("intent_status", string(status)),
		)
	}
	if len(orphans) > 0 {
		attrs = append(attrs, slog.Any("orphaned", orphans))
	}
	logger.Audit().Warn("saga aborted", attrs...)
	return err
}

func (s *Service) observe(step, outcome string) {
	metrics.ObserveSagaStep(step, outcome)
}
