package agent

import "context"

// Store 持久化代理镜像。
type Store interface {
	Create(ctx context.Context, agent *Agent) error
	Get(ctx context.Context, id string) (*Agent, error)
	// ListByUser 按创建时间倒序返回用户的代理。
	ListByUser(ctx context.Context, userID string) ([]*Agent, error)
	// RemoteIDs 按输入顺序返回本地 ID 对应的远端 ID，未知 ID 被跳过。
	RemoteIDs(ctx context.Context, ids []string) ([]string, error)
	Delete(ctx context.Context, id string) error
}
