package intent

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "Agentica/internal/errors"
)

// MemoryStore 以内存方式保存意图。
type MemoryStore struct {
	mu      sync.RWMutex
	intents map[string]*Intent
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{intents: make(map[string]*Intent)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, intent *Intent) error {
	if intent == nil || intent.RoomID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "room_id 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[intent.RoomID]; ok {
		return ErrIntentExists
	}
	m.intents[intent.RoomID] = intent.clone()
	return nil
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, roomID string) (*Intent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	intent, ok := m.intents[roomID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return intent.clone(), nil
}

// Update 实现 Store 接口。
func (m *MemoryStore) Update(_ context.Context, intent *Intent) error {
	if intent == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "意图不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.intents[intent.RoomID]
	if !ok {
		return ErrIntentNotFound
	}
	if current.Status != StatusOpen {
		return ErrIntentClosed
	}
	updated := intent.clone()
	updated.CreatedAt = current.CreatedAt
	updated.UserID = current.UserID
	m.intents[intent.RoomID] = updated
	return nil
}

// ListStale 实现 Store 接口。
func (m *MemoryStore) ListStale(_ context.Context, before time.Time, limit int) ([]*Intent, error) {
	m.mu.RLock()
	out := make([]*Intent, 0)
	for _, intent := range m.intents {
		if intent.Status == StatusOpen && intent.UpdatedAt.Before(before) {
			out = append(out, intent.clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].RoomID < out[j].RoomID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
