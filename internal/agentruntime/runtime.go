// Package agentruntime defines the contract with the external agent runtime
// that hosts agents and rooms, and builds the character descriptors it
// consumes.
package agentruntime

import (
	"context"

	xerrors "Agentica/internal/errors"
)

// ZeroServerID 是消息投递时使用的默认 server_id。
const ZeroServerID = "00000000-0000-0000-0000-000000000000"

// RoomSpec 描述待创建的远端房间。
type RoomSpec struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	AgentIDs    []string `json:"agentIds"`
}

// Room 是远端房间的摘要。
type Room struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	CreatedAt   string   `json:"created_at"`
	AgentIDs    []string `json:"agent_ids"`
}

// HasAnyAgent 判断房间是否包含给定代理中的任意一个。
func (r Room) HasAnyAgent(agentIDs map[string]struct{}) bool {
	for _, id := range r.AgentIDs {
		if _, ok := agentIDs[id]; ok {
			return true
		}
	}
	return false
}

// Message 是投递到房间频道的消息。
type Message struct {
	ChannelID  string         `json:"channel_id"`
	ServerID   string         `json:"server_id"`
	AuthorID   string         `json:"author_id"`
	Content    string         `json:"content"`
	SourceType string         `json:"source_type"`
	RawMessage map[string]any `json:"raw_message"`
	Metadata   map[string]any `json:"metadata"`
}

// NewMessage 按默认规则组装消息：author_id 与 source_type 可由 metadata 覆盖，
// raw_message 以 {text} 为基础合并 metadata.raw_message。
func NewMessage(channelID, content string, metadata map[string]any) Message {
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw := map[string]any{"text": content}
	if extra, ok := metadata["raw_message"].(map[string]any); ok {
		for k, v := range extra {
			raw[k] = v
		}
	}
	return Message{
		ChannelID:  channelID,
		ServerID:   ZeroServerID,
		AuthorID:   stringOr(metadata["author_id"], "system"),
		Content:    content,
		SourceType: stringOr(metadata["source_type"], "agent_response"),
		RawMessage: raw,
		Metadata:   metadata,
	}
}

func stringOr(value any, fallback string) string {
	if s, ok := value.(string); ok && s != "" {
		return s
	}
	return fallback
}

// MessageReceipt 是投递结果。远端未返回时字段为空。
type MessageReceipt struct {
	ID        string `json:"message_id,omitempty"`
	CreatedAt string `json:"submitted_at,omitempty"`
}

// Runtime 抽象外部代理运行时。实现必须可被并发调用。
type Runtime interface {
	CreateAgent(ctx context.Context, character *Character) (string, error)
	StartAgent(ctx context.Context, agentID string) error
	StopAgent(ctx context.Context, agentID string) error
	DeleteAgent(ctx context.Context, agentID string) error
	CreateRoom(ctx context.Context, spec RoomSpec) (string, error)
	ListRooms(ctx context.Context) ([]Room, error)
	SubmitMessage(ctx context.Context, msg Message) (*MessageReceipt, error)
}

const CodeRuntimeError xerrors.Code = "AGENT_RUNTIME_ERROR"

func init() {
	xerrors.Register(CodeRuntimeError, xerrors.Attributes{
		Message:   "agent runtime error",
		Category:  xerrors.CategoryUpstreamUnavailable,
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}
