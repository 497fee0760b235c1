package ledger

import (
	"context"
	"encoding/json"
	"time"
)

// Store 抽象了流水的持久化接口。
type Store interface {
	Append(ctx context.Context, record *Record) error
	Finalize(ctx context.Context, id string, status Status, result json.RawMessage, errMsg string, at time.Time) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, roomID string, opts ListOptions) ([]*Record, error)
	Count(ctx context.Context, roomID string, opts ListOptions) (int, error)
}
