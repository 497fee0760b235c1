package room

import (
	"context"
	"sync"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/intent"
)

// Store 持久化房间记录。
type Store interface {
	Create(ctx context.Context, room *Room) error
	Get(ctx context.Context, id string) (*Room, error)
}

// Lookup 把房间表暴露给意图对账器，用于识别已经落库的房间。
func Lookup(store Store) intent.RoomLookup {
	return func(ctx context.Context, roomID string) (bool, error) {
		_, err := store.Get(ctx, roomID)
		switch {
		case err == nil:
			return true, nil
		case xerrors.IsCode(err, CodeRoomNotFound):
			return false, nil
		default:
			return false, err
		}
	}
}

// MemoryStore 以内存方式保存房间。
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*Room)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, room *Room) error {
	if room == nil || room.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "房间 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.ID]; ok {
		return ErrRoomExists
	}
	m.rooms[room.ID] = room.clone()
	return nil
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, id string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room.clone(), nil
}
