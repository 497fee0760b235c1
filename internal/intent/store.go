package intent

import (
	"context"
	"time"
)

// Store 持久化建房意图。
type Store interface {
	// Create 在 room_id 已存在时返回 ErrIntentExists。
	Create(ctx context.Context, intent *Intent) error
	Get(ctx context.Context, roomID string) (*Intent, error)
	// Update 整行覆盖，仅当当前状态为 open 时生效，否则返回 ErrIntentClosed。
	Update(ctx context.Context, intent *Intent) error
	// ListStale 按 updated_at 升序返回早于 before 的 open 意图。
	ListStale(ctx context.Context, before time.Time, limit int) ([]*Intent, error)
}
