package intent

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/observability/alerting"
	"Agentica/internal/observability/metrics"
	"Agentica/pkg/logger"
)

// 对账决策。
const (
	DecisionCompleted          = "completed"
	DecisionCompensated        = "compensated"
	DecisionCompensationFailed = "compensation_failed"
	DecisionOrphaned           = "orphaned"
	DecisionSkipped            = "skipped"
)

const (
	defaultReconcileInterval = time.Minute
	defaultStaleAfter        = 5 * time.Minute
	defaultBatchSize         = 50
)

// Summary 汇总一次巡检的结果。
type Summary struct {
	Scanned   int            `json:"scanned"`
	Decisions map[string]int `json:"decisions"`
}

// RoomLookup 报告房间记录是否已经落库。
type RoomLookup func(ctx context.Context, roomID string) (bool, error)

// Reconciler 扫描悬挂的 open 意图并按失败策略收尾。
type Reconciler struct {
	store       Store
	rooms       RoomLookup
	queue       Queue
	compensator *Compensator
	policy      Policy
	alerter     alerting.Dispatcher

	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	workers    int
	now        func() time.Time
}

// ReconcilerOption 定义可选配置。
type ReconcilerOption func(*Reconciler)

// WithPolicy 设置失败策略。
func WithPolicy(policy Policy) ReconcilerOption {
	return func(r *Reconciler) {
		if policy != "" {
			r.policy = policy
		}
	}
}

// WithRoomLookup 配置房间查询。房间已落库的意图一律按 completed 关闭，不做补偿。
func WithRoomLookup(lookup RoomLookup) ReconcilerOption {
	return func(r *Reconciler) {
		r.rooms = lookup
	}
}

// WithQueue 配置巡检与处理之间的队列。
func WithQueue(queue Queue) ReconcilerOption {
	return func(r *Reconciler) {
		r.queue = queue
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ReconcilerOption {
	return func(r *Reconciler) {
		r.alerter = dispatcher
	}
}

// WithSchedule 设置巡检间隔、悬挂阈值与单批数量。
func WithSchedule(interval, staleAfter time.Duration, batchSize int) ReconcilerOption {
	return func(r *Reconciler) {
		if interval > 0 {
			r.interval = interval
		}
		if staleAfter > 0 {
			r.staleAfter = staleAfter
		}
		if batchSize > 0 {
			r.batchSize = batchSize
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ReconcilerOption {
	return func(r *Reconciler) {
		if workers > 0 {
			r.workers = workers
		}
	}
}

// WithReconcilerClock 替换时间来源。
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler 创建 Reconciler。
func NewReconciler(store Store, compensator *Compensator, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:       store,
		compensator: compensator,
		policy:      PolicyFailFast,
		interval:    defaultReconcileInterval,
		staleAfter:  defaultStaleAfter,
		batchSize:   defaultBatchSize,
		workers:     1,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Start 周期巡检并把悬挂意图投递到队列，同时消费队列，直到 ctx 取消。
func (r *Reconciler) Start(ctx context.Context) error {
	if r.store == nil || r.queue == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "对账器未配置存储或队列")
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.queue.Consume(ctx, r.workers, r.Handle)
	})
	g.Go(func() error {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				logger.L().Error("巡检悬挂意图失败", slog.Any("error", err))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
	err := g.Wait()
	if stdErrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Sweep 查找悬挂意图并投递到队列，返回投递数量。
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	stale, err := r.store.ListStale(ctx, r.now().Add(-r.staleAfter), r.batchSize)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, intent := range stale {
		if err := r.queue.Publish(ctx, intent.RoomID); err != nil {
			return published, err
		}
		published++
	}
	if published > 0 {
		logger.L().Info("悬挂意图已投递", slog.Int("count", published))
	}
	return published, nil
}

// RunOnce 不经队列直接处理一批悬挂意图，用于单次对账命令。
func (r *Reconciler) RunOnce(ctx context.Context) (*Summary, error) {
	stale, err := r.store.ListStale(ctx, r.now().Add(-r.staleAfter), r.batchSize)
	if err != nil {
		return nil, err
	}
	summary := &Summary{Scanned: len(stale), Decisions: make(map[string]int)}
	for _, intent := range stale {
		decision, err := r.reconcile(ctx, intent)
		if err != nil {
			logger.L().Error("对账失败", slog.String("room_id", intent.RoomID), slog.Any("error", err))
		}
		summary.Decisions[decision]++
	}
	return summary, nil
}

// Handle 处理单个房间的意图，供队列消费者调用。
func (r *Reconciler) Handle(ctx context.Context, roomID string) error {
	intent, err := r.store.Get(ctx, roomID)
	if err != nil {
		if xerrors.IsCode(err, CodeIntentNotFound) {
			return nil
		}
		return err
	}
	_, err = r.reconcile(ctx, intent)
	return err
}

func (r *Reconciler) reconcile(ctx context.Context, intent *Intent) (string, error) {
	if intent.Status != StatusOpen || intent.UpdatedAt.After(r.now().Add(-r.staleAfter)) {
		metrics.ObserveReconcile(DecisionSkipped)
		return DecisionSkipped, nil
	}

	persisted, err := r.roomPersisted(ctx, intent)
	if err != nil {
		metrics.ObserveReconcile(DecisionSkipped)
		return DecisionSkipped, xerrors.Wrap(CodeReconcile, err, "查询房间记录失败")
	}

	var (
		decision string
		status   Status
		cause    error
		orphans  []string
	)
	switch {
	case persisted:
		// 房间记录已写入，只差关闭意图。
		decision, status = DecisionCompleted, StatusCompleted
	case r.policy == PolicyCompensate && r.compensator != nil:
		orphans, err = r.compensator.Undo(ctx, intent)
		if err != nil {
			decision, status, cause = DecisionCompensationFailed, StatusFailed, err
		} else {
			decision, status = DecisionCompensated, StatusCompensated
		}
	default:
		decision, status = DecisionOrphaned, StatusOrphaned
		orphans = describeResources(intent)
	}

	closed := intent.clone()
	closed.Status = status
	closed.UpdatedAt = r.now()
	if cause != nil {
		closed.Error = cause.Error()
	} else if closed.Error == "" && status != StatusCompleted {
		closed.Error = "saga abandoned at stage " + string(intent.Stage)
	}
	if err := r.store.Update(ctx, closed); err != nil {
		if xerrors.IsCode(err, CodeIntentClosed) {
			metrics.ObserveReconcile(DecisionSkipped)
			return DecisionSkipped, nil
		}
		return decision, err
	}

	metrics.ObserveReconcile(decision)
	logger.Audit().Info("saga intent reconciled",
		slog.String("room_id", intent.RoomID),
		slog.String("user_id", intent.UserID),
		slog.String("stage", string(intent.Stage)),
		slog.String("decision", decision),
		slog.Any("orphaned", orphans),
	)
	if decision != DecisionCompleted {
		r.emitAlert(ctx, intent, decision, orphans, cause)
	}
	if cause != nil {
		return decision, xerrors.Wrap(CodeReconcile, cause, "补偿悬挂意图失败")
	}
	return decision, nil
}

// roomPersisted 建房成功但关闭意图失败时，意图停留在落库之前的阶段，需以房间表为准。
func (r *Reconciler) roomPersisted(ctx context.Context, intent *Intent) (bool, error) {
	if intent.Stage == StageRoomPersisted {
		return true, nil
	}
	if r.rooms == nil {
		return false, nil
	}
	return r.rooms(ctx, intent.RoomID)
}

func (r *Reconciler) emitAlert(ctx context.Context, intent *Intent, decision string, orphans []string, cause error) {
	attrs := xerrors.AttributesOf(CodeReconcile)
	if r.alerter == nil || !attrs.Alert {
		return
	}
	message := "saga intent " + decision
	if cause != nil {
		message = cause.Error()
	}
	event := alerting.Event{
		Code:     CodeReconcile,
		Message:  message,
		Severity: attrs.Severity,
		Subject:  intent.RoomID,
		Metadata: map[string]string{
			"decision": decision,
			"stage":    string(intent.Stage),
			"user_id":  intent.UserID,
		},
		OccurredAt: r.now(),
	}
	if len(orphans) > 0 {
		event.Metadata["orphaned"] = strings.Join(orphans, ",")
	}
	if err := r.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败", slog.String("room_id", intent.RoomID), slog.Any("error", err))
	}
}

func describeResources(intent *Intent) []string {
	var out []string
	if intent.StrategyAgentID != "" {
		out = append(out, "agent:"+intent.StrategyAgentID)
	}
	if intent.WalletProvisioned {
		out = append(out, "wallet:"+intent.RoomID)
	}
	if intent.RemoteRoomID != "" {
		out = append(out, "room:"+intent.RemoteRoomID)
	}
	return out
}
