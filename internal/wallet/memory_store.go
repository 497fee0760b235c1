package wallet

import (
	"context"
	"sort"
	"sync"

	xerrors "Agentica/internal/errors"
)

// MemoryStore 以内存方式保存钱包身份。
type MemoryStore struct {
	mu      sync.RWMutex
	wallets map[string]*Identity
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{wallets: make(map[string]*Identity)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, identity *Identity) error {
	if identity == nil || identity.RoomID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "room_id 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[identity.RoomID]; ok {
		return ErrWalletExists
	}
	m.wallets[identity.RoomID] = identity.clone()
	return nil
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, roomID string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	identity, ok := m.wallets[roomID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return identity.clone(), nil
}

// Delete 实现 Store 接口。
func (m *MemoryStore) Delete(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[roomID]; !ok {
		return ErrWalletNotFound
	}
	delete(m.wallets, roomID)
	return nil
}

// List 按创建时间倒序返回钱包。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Identity, error) {
	opts.applyDefaults()
	m.mu.RLock()
	all := make([]*Identity, 0, len(m.wallets))
	for _, identity := range m.wallets {
		all = append(all, identity.clone())
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].RoomID < all[j].RoomID
	})
	if opts.Offset >= len(all) {
		return []*Identity{}, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[opts.Offset:end], nil
}
