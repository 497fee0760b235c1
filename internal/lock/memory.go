package lock

import (
	"context"
	"sync"
	"time"

	xerrors "Agentica/internal/errors"
)

// Memory 是进程内的按键互斥锁。
type Memory struct {
	mu    sync.Mutex
	slots map[string]*memorySlot
}

type memorySlot struct {
	ch      chan struct{}
	holders int
}

var _ Locker = (*Memory)(nil)

// NewMemory 创建 Memory。
func NewMemory() *Memory {
	return &Memory{slots: make(map[string]*memorySlot)}
}

// Acquire 实现 Locker 接口。进程内不会崩溃遗留锁，ttl 被忽略。
func (m *Memory) Acquire(ctx context.Context, key string, _ time.Duration) (Lease, error) {
	m.mu.Lock()
	slot, ok := m.slots[key]
	if !ok {
		slot = &memorySlot{ch: make(chan struct{}, 1)}
		m.slots[key] = slot
	}
	slot.holders++
	m.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return &memoryLease{owner: m, key: key, slot: slot}, nil
	case <-ctx.Done():
		m.forget(key, slot)
		return nil, xerrors.Wrap(CodeLockUnavailable, ctx.Err(), "等待房间锁超时")
	}
}

func (m *Memory) forget(key string, slot *memorySlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot.holders--
	if slot.holders == 0 {
		delete(m.slots, key)
	}
}

type memoryLease struct {
	once  sync.Once
	owner *Memory
	key   string
	slot  *memorySlot
}

func (l *memoryLease) Release(context.Context) error {
	l.once.Do(func() {
		<-l.slot.ch
		l.owner.forget(l.key, l.slot)
	})
	return nil
}
