// Package wallet maps a room to its durable custodial wallet identity and
// re-resolves the live Wallet Service handles needed to sign operations.
package wallet

import (
	"context"
	"log/slog"
	"strings"
	"time"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/walletservice"
	"Agentica/pkg/logger"
)

const defaultCallTimeout = 30 * time.Second

// Resolver 负责钱包身份的创建与解析。
type Resolver struct {
	store       Store
	service     walletservice.Service
	network     string
	callTimeout time.Duration
	now         func() time.Time
}

// Option 定义 Resolver 的可选配置。
type Option func(*Resolver)

// WithNetwork 设置新钱包记录的网络标识。
func WithNetwork(network string) Option {
	return func(r *Resolver) {
		if strings.TrimSpace(network) != "" {
			r.network = network
		}
	}
}

// WithCallTimeout 设置单次远程调用的超时。
func WithCallTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver 创建 Resolver。
func NewResolver(store Store, service walletservice.Service, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		service:     service,
		network:     DefaultNetwork,
		callTimeout: defaultCallTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Network 返回默认网络。
func (r *Resolver) Network() string {
	return r.network
}

// Provision 为房间创建钱包身份。远程账户的获取或创建是幂等的，
// 任一远程步骤失败时不写入本地记录，已创建的远程账户不回收。
func (r *Resolver) Provision(ctx context.Context, roomID string) (*Identity, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "room_id 不能为空")
	}
	if _, err := r.store.Get(ctx, roomID); err == nil {
		return nil, ErrWalletExists
	} else if !xerrors.IsCode(err, CodeWalletNotFound) {
		return nil, err
	}

	ownerName := OwnerAccountName(roomID)
	owner, custodial, err := r.fetchAccounts(ctx, ownerName)
	if err != nil {
		return nil, err
	}

	identity := &Identity{
		RoomID:                  roomID,
		OwnerAccountName:        ownerName,
		OwnerAddress:            owner.Address,
		CustodialAccountAddress: custodial.Address,
		Network:                 r.network,
		CreatedAt:               r.now(),
	}
	// 并发创建同一房间时由存储的唯一约束决定胜者。
	if err := r.store.Create(ctx, identity); err != nil {
		return nil, err
	}

	logger.Audit().Info("wallet provisioned",
		slog.String("room_id", roomID),
		slog.String("owner_account_name", ownerName),
		slog.String("owner_address", identity.OwnerAddress),
		slog.String("custodial_account_address", identity.CustodialAccountAddress),
		slog.String("network", identity.Network),
	)
	return identity, nil
}

// Resolve 从存储读取钱包身份。
func (r *Resolver) Resolve(ctx context.Context, roomID string) (*Identity, error) {
	return r.store.Get(ctx, strings.TrimSpace(roomID))
}

// ResolveAccounts 每次都按存储的所有者名称重新获取远程句柄，不做缓存。
func (r *Resolver) ResolveAccounts(ctx context.Context, roomID string) (*walletservice.Account, *walletservice.CustodialAccount, error) {
	identity, err := r.Resolve(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	ownerName := identity.OwnerAccountName
	if ownerName == "" {
		ownerName = OwnerAccountName(identity.RoomID)
	}
	return r.fetchAccounts(ctx, ownerName)
}

// Delete 删除本地钱包记录，远程账户保持不变。
func (r *Resolver) Delete(ctx context.Context, roomID string) error {
	if err := r.store.Delete(ctx, strings.TrimSpace(roomID)); err != nil {
		return err
	}
	logger.Audit().Info("wallet deleted", slog.String("room_id", roomID))
	return nil
}

// List 分页列出钱包身份。
func (r *Resolver) List(ctx context.Context, limit, offset int) ([]*Identity, error) {
	return r.store.List(ctx, ListOptions{Limit: limit, Offset: offset})
}

func (r *Resolver) fetchAccounts(ctx context.Context, ownerName string) (*walletservice.Account, *walletservice.CustodialAccount, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	owner, err := r.service.GetOrCreateAccount(callCtx, ownerName)
	if err != nil {
		return nil, nil, upstreamError(err, "获取所有者账户失败")
	}
	custodial, err := r.service.GetOrCreateCustodialAccount(callCtx, ownerName, owner)
	if err != nil {
		return nil, nil, upstreamError(err, "获取托管账户失败")
	}
	return owner, custodial, nil
}

func upstreamError(err error, message string) error {
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(walletservice.CodeServiceError, err, message)
}
