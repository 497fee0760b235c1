package wallet

import "context"

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// ListOptions 控制钱包列表分页。
type ListOptions struct {
	Limit  int
	Offset int
}

func (o *ListOptions) applyDefaults() {
	if o.Limit <= 0 {
		o.Limit = defaultListLimit
	}
	if o.Limit > maxListLimit {
		o.Limit = maxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// Store 持久化钱包身份。Create 在 room_id 已存在时必须返回 ErrWalletExists。
type Store interface {
	Create(ctx context.Context, identity *Identity) error
	Get(ctx context.Context, roomID string) (*Identity, error)
	Delete(ctx context.Context, roomID string) error
	List(ctx context.Context, opts ListOptions) ([]*Identity, error)
}
