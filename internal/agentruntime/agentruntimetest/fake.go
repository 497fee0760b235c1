// Package agentruntimetest provides an in-memory agentruntime.Runtime for
// tests of the room and agent services.
package agentruntimetest

import (
	"context"
	"fmt"
	"sync"

	"Agentica/internal/agentruntime"
)

// Call 记录一次对 Fake 的调用。
type Call struct {
	Method    string
	AgentID   string
	Character *agentruntime.Character
	Room      *agentruntime.RoomSpec
	Message   *agentruntime.Message
}

// Fake 是线程安全的内存运行时。
type Fake struct {
	mu       sync.Mutex
	agents   map[string]*agentruntime.Character
	running  map[string]bool
	rooms    []agentruntime.Room
	messages []agentruntime.Message
	calls    []Call
	seq      int

	// 以方法名为键注入错误。
	Errors map[string]error
}

var _ agentruntime.Runtime = (*Fake)(nil)

// New 创建 Fake。
func New() *Fake {
	return &Fake{
		agents:  make(map[string]*agentruntime.Character),
		running: make(map[string]bool),
		Errors:  make(map[string]error),
	}
}

// FailOn 让指定方法返回错误，err 为 nil 时清除。
func (f *Fake) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Errors, method)
		return
	}
	f.Errors[method] = err
}

// Calls 返回调用记录的副本。
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo 返回指定方法的调用记录。
func (f *Fake) CallsTo(method string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// HasAgent 判断代理是否仍存在。
func (f *Fake) HasAgent(agentID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.agents[agentID]
	return ok
}

// Running 判断代理是否处于运行状态。
func (f *Fake) Running(agentID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[agentID]
}

// SeedRoom 预置一个远端房间。
func (f *Fake) SeedRoom(room agentruntime.Room) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, room)
}

// Messages 返回已投递的消息。
func (f *Fake) Messages() []agentruntime.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]agentruntime.Message, len(f.messages))
	copy(out, f.messages)
	return out
}

func (f *Fake) record(c Call) error {
	f.calls = append(f.calls, c)
	return f.Errors[c.Method]
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%04d", prefix, f.seq)
}

// CreateAgent 实现 agentruntime.Runtime。
func (f *Fake) CreateAgent(_ context.Context, character *agentruntime.Character) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "CreateAgent", Character: character}); err != nil {
		return "", err
	}
	id := f.nextID("agent")
	f.agents[id] = character
	return id, nil
}

// StartAgent 实现 agentruntime.Runtime。
func (f *Fake) StartAgent(_ context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "StartAgent", AgentID: agentID}); err != nil {
		return err
	}
	f.running[agentID] = true
	return nil
}

// StopAgent 实现 agentruntime.Runtime。
func (f *Fake) StopAgent(_ context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "StopAgent", AgentID: agentID}); err != nil {
		return err
	}
	delete(f.running, agentID)
	return nil
}

// DeleteAgent 实现 agentruntime.Runtime。
func (f *Fake) DeleteAgent(_ context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "DeleteAgent", AgentID: agentID}); err != nil {
		return err
	}
	delete(f.agents, agentID)
	delete(f.running, agentID)
	return nil
}

// CreateRoom 实现 agentruntime.Runtime。
func (f *Fake) CreateRoom(_ context.Context, spec agentruntime.RoomSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := spec
	copied.AgentIDs = append([]string(nil), spec.AgentIDs...)
	if err := f.record(Call{Method: "CreateRoom", Room: &copied}); err != nil {
		return "", err
	}
	id := f.nextID("room")
	f.rooms = append(f.rooms, agentruntime.Room{
		ID:          id,
		Name:        spec.Name,
		Description: spec.Description,
		AgentIDs:    copied.AgentIDs,
	})
	return id, nil
}

// ListRooms 实现 agentruntime.Runtime。
func (f *Fake) ListRooms(_ context.Context) ([]agentruntime.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "ListRooms"}); err != nil {
		return nil, err
	}
	out := make([]agentruntime.Room, len(f.rooms))
	copy(out, f.rooms)
	return out, nil
}

// SubmitMessage 实现 agentruntime.Runtime。
func (f *Fake) SubmitMessage(_ context.Context, msg agentruntime.Message) (*agentruntime.MessageReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "SubmitMessage", Message: &msg}); err != nil {
		return nil, err
	}
	f.messages = append(f.messages, msg)
	return &agentruntime.MessageReceipt{ID: f.nextID("msg"), CreatedAt: "2025-01-01T00:00:00Z"}, nil
}
