package intent

import (
	"context"
	"log/slog"
	"time"

	"Agentica/pkg/logger"
)

// Journal 是建房流程写意图日志的入口。nil Journal 的所有方法都是空操作，
// 对应关闭意图日志的配置。
type Journal struct {
	store Store
	now   func() time.Time
}

// NewJournal 创建 Journal。
func NewJournal(store Store, now func() time.Time) *Journal {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Journal{store: store, now: now}
}

// Begin 在第一个远端副作用之前写入 open 意图。
func (j *Journal) Begin(ctx context.Context, roomID, userID string) (*Intent, error) {
	now := j.clock()
	intent := &Intent{
		RoomID:    roomID,
		UserID:    userID,
		Stage:     StageStarted,
		Status:    StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if j == nil {
		return intent, nil
	}
	if err := j.store.Create(ctx, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

// Advance 记录已完成的步骤及其产生的资源。
// 写入失败只记录日志，不中断流程。
func (j *Journal) Advance(ctx context.Context, intent *Intent, stage Stage) {
	intent.Stage = stage
	intent.UpdatedAt = j.clock()
	if j == nil {
		return
	}
	if err := j.store.Update(ctx, intent); err != nil {
		logger.L().Warn("更新建房意图失败",
			slog.String("room_id", intent.RoomID),
			slog.String("stage", string(stage)),
			slog.Any("error", err),
		)
	}
}

// Close 把意图置为终态。
func (j *Journal) Close(ctx context.Context, intent *Intent, status Status, cause error) {
	intent.Status = status
	intent.UpdatedAt = j.clock()
	if cause != nil {
		intent.Error = cause.Error()
	}
	if j == nil {
		return
	}
	if err := j.store.Update(context.WithoutCancel(ctx), intent); err != nil {
		logger.L().Warn("关闭建房意图失败",
			slog.String("room_id", intent.RoomID),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
	}
}

func (j *Journal) clock() time.Time {
	if j == nil || j.now == nil {
		return time.Now().UTC()
	}
	return j.now()
}
