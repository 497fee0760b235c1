package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "Agentica/internal/errors"
	"Agentica/pkg/logger"
)

// Page 是一次流水查询的结果。
type Page struct {
	RoomID       string    `json:"room_id"`
	Transactions []*Record `json:"transactions"`
	Total        int       `json:"total"`
	Limit        int       `json:"limit"`
	Offset       int       `json:"offset"`
}

// Ledger 负责动作调用的追加写与终态回写。
type Ledger struct {
	store Store
	now   func() time.Time
	newID func() string
}

// Option 定义 Ledger 的可选配置。
type Option func(*Ledger)

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator 替换流水 ID 生成器。
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) {
		if gen != nil {
			l.newID = gen
		}
	}
}

// New 创建 Ledger。
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Append 写入一条 pending 流水并返回其 ID。写入完成后调用方才能执行动作。
func (l *Ledger) Append(ctx context.Context, roomID, action string, params map[string]any) (string, error) {
	if strings.TrimSpace(roomID) == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "room_id 不能为空")
	}
	now := l.now()
	rec := &Record{
		ID:        l.newID(),
		RoomID:    roomID,
		Action:    action,
		Params:    cloneParams(params),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.store.Append(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Succeed 将流水标记为成功并保存结果。
func (l *Ledger) Succeed(ctx context.Context, id string, result any) error {
	var encoded json.RawMessage
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInternal, err, "编码动作结果失败")
		}
		encoded = raw
	}
	return l.finalize(ctx, id, StatusSuccess, encoded, "")
}

// Fail 将流水标记为失败并保存错误描述。
func (l *Ledger) Fail(ctx context.Context, id string, message string) error {
	return l.finalize(ctx, id, StatusFailed, nil, message)
}

func (l *Ledger) finalize(ctx context.Context, id string, status Status, result json.RawMessage, errMsg string) error {
	if err := l.store.Finalize(ctx, id, status, result, errMsg, l.now()); err != nil {
		logger.L().Error("回写流水终态失败",
			slog.String("transaction_id", id),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

// Get 返回单条流水。
func (l *Ledger) Get(ctx context.Context, id string) (*Record, error) {
	return l.store.Get(ctx, id)
}

// Query 按创建时间倒序分页返回房间流水，并附带过滤后的总数。
func (l *Ledger) Query(ctx context.Context, roomID string, opts ...ListOption) (*Page, error) {
	options := buildListOptions(opts)

	records, err := l.store.List(ctx, roomID, options)
	if err != nil {
		return nil, err
	}
	total, err := l.store.Count(ctx, roomID, options)
	if err != nil {
		return nil, err
	}
	return &Page{
		RoomID:       roomID,
		Transactions: records,
		Total:        total,
		Limit:        options.Limit,
		Offset:       options.Offset,
	}, nil
}

// ParseStatus 将外部输入转换为状态，空字符串表示不过滤。
func ParseStatus(raw string) (Status, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", nil
	}
	status := Status(raw)
	if !IsValidStatus(status) {
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "invalid status: %s. Supported statuses: pending, success, failed", raw)
	}
	return status, nil
}
