// Package lock serialises wallet actions per room. Acquire blocks until the
// lock is obtained or the context ends.
package lock

import (
	"context"
	"time"

	xerrors "Agentica/internal/errors"
)

// Lease 表示已持有的锁。
type Lease interface {
	Release(ctx context.Context) error
}

// Locker 按键获取互斥锁。ttl 为持有上限，进程崩溃后锁会自动过期。
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

const CodeLockUnavailable xerrors.Code = "ROOM_LOCK_UNAVAILABLE"

func init() {
	xerrors.Register(CodeLockUnavailable, xerrors.Attributes{
		Message:   "room is busy",
		Category:  xerrors.CategoryConflict,
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
}

// Noop 不做任何互斥。
type Noop struct{}

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

// Acquire 实现 Locker 接口。
func (Noop) Acquire(context.Context, string, time.Duration) (Lease, error) {
	return noopLease{}, nil
}
