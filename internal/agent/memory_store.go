package agent

import (
	"context"
	"sort"
	"sync"

	xerrors "Agentica/internal/errors"
)

// MemoryStore 以内存方式保存代理镜像。
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[string]*Agent)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, agent *Agent) error {
	if agent == nil || agent.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "代理 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[agent.ID]; ok {
		return ErrAgentExists
	}
	for _, existing := range m.agents {
		if existing.RemoteAgentID == agent.RemoteAgentID {
			return ErrAgentExists
		}
	}
	m.agents[agent.ID] = agent.clone()
	return nil
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return agent.clone(), nil
}

// ListByUser 实现 Store 接口。
func (m *MemoryStore) ListByUser(_ context.Context, userID string) ([]*Agent, error) {
	m.mu.RLock()
	out := make([]*Agent, 0)
	for _, agent := range m.agents {
		if agent.UserID == userID {
			out = append(out, agent.clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RemoteIDs 实现 Store 接口。
func (m *MemoryStore) RemoteIDs(_ context.Context, ids []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if agent, ok := m.agents[id]; ok {
			out = append(out, agent.RemoteAgentID)
		}
	}
	return out, nil
}

// Delete 实现 Store 接口。
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[id]; !ok {
		return ErrAgentNotFound
	}
	delete(m.agents, id)
	return nil
}
