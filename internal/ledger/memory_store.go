package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	xerrors "Agentica/internal/errors"
)

// MemoryStore 以内存方式保存流水，主要用于测试与单机部署。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
	seq     int64
}

type memoryRecord struct {
	*Record
	seq int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*memoryRecord)}
}

// Append 实现 Store 接口。
func (m *MemoryStore) Append(_ context.Context, record *Record) error {
	if record == nil || record.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "流水 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.ID]; ok {
		return ErrRecordConflict
	}
	m.seq++
	m.records[record.ID] = &memoryRecord{Record: record.clone(), seq: m.seq}
	return nil
}

// Finalize 实现 Store 接口，重复调用以最后一次为准。
func (m *MemoryStore) Finalize(_ context.Context, id string, status Status, result json.RawMessage, errMsg string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Status = status
	rec.Result = append(json.RawMessage(nil), result...)
	if result == nil {
		rec.Result = nil
	}
	rec.Error = errMsg
	rec.UpdatedAt = at
	return nil
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Record.clone(), nil
}

// List 按创建时间倒序返回房间的流水。
func (m *MemoryStore) List(_ context.Context, roomID string, opts ListOptions) ([]*Record, error) {
	opts.applyDefaults()
	matched := m.filter(roomID, opts)
	if opts.Offset >= len(matched) {
		return []*Record{}, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]*Record, 0, end-opts.Offset)
	for _, rec := range matched[opts.Offset:end] {
		out = append(out, rec.Record.clone())
	}
	return out, nil
}

// Count 返回符合过滤条件的总条数，忽略分页参数。
func (m *MemoryStore) Count(_ context.Context, roomID string, opts ListOptions) (int, error) {
	opts.applyDefaults()
	return len(m.filter(roomID, opts)), nil
}

func (m *MemoryStore) filter(roomID string, opts ListOptions) []*memoryRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	allowed := make(map[Status]struct{}, len(opts.Statuses))
	for _, s := range opts.Statuses {
		allowed[s] = struct{}{}
	}

	matched := make([]*memoryRecord, 0)
	for _, rec := range m.records {
		if rec.RoomID != roomID {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[rec.Status]; !ok {
				continue
			}
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})
	return matched
}
