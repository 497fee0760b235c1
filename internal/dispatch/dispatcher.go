package dispatch

import (
	"context"
	"log/slog"
	"time"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/ledger"
	"Agentica/internal/lock"
	"Agentica/internal/observability/metrics"
	"Agentica/internal/wallet"
	"Agentica/internal/walletservice"
	"Agentica/internal/web3"
	"Agentica/pkg/logger"
)

// WalletResolver 定义分发器所需的钱包解析能力。
type WalletResolver interface {
	Resolve(ctx context.Context, roomID string) (*wallet.Identity, error)
	ResolveAccounts(ctx context.Context, roomID string) (*walletservice.Account, *walletservice.CustodialAccount, error)
}

// Chains 提供链上只读访问与区块浏览器链接。
type Chains interface {
	Reader(network string) (web3.ChainReader, bool)
	ExplorerURL(network, txHash string) string
}

// Outcome 是一次分发的结果，成功时携带 Result，失败时携带 Error。
type Outcome struct {
	Success       bool   `json:"success"`
	Action        Action `json:"action"`
	RoomID        string `json:"room_id"`
	TransactionID string `json:"transaction_id"`
	Result        any    `json:"result,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Dispatcher 校验动作、写入流水并执行对应处理逻辑。
type Dispatcher struct {
	ledger   *ledger.Ledger
	resolver WalletResolver
	service  walletservice.Service
	tokens   *web3.TokenRegistry
	chains   Chains

	locker  lock.Locker
	lockTTL time.Duration

	callTimeout        time.Duration
	confirmTimeout     time.Duration
	approvalMultiplier int64
	defaultSlippage    int
	swapsEnabled       bool
}

// Option 定义 Dispatcher 的可选配置。
type Option func(*Dispatcher)

// WithTokenRegistry 配置兑换所用的代币表。
func WithTokenRegistry(tokens *web3.TokenRegistry) Option {
	return func(d *Dispatcher) {
		d.tokens = tokens
	}
}

// WithChains 配置链上读取器，用于余额查询与区块浏览器链接。
func WithChains(chains Chains) Option {
	return func(d *Dispatcher) {
		d.chains = chains
	}
}

// WithRoomLock 让同一房间的动作串行执行。
func WithRoomLock(locker lock.Locker, ttl time.Duration) Option {
	return func(d *Dispatcher) {
		d.locker = locker
		if ttl > 0 {
			d.lockTTL = ttl
		}
	}
}

// WithCallTimeout 设置单次外部调用的超时。
func WithCallTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.callTimeout = timeout
		}
	}
}

// WithConfirmationTimeout 设置等待确认的上限。
func WithConfirmationTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.confirmTimeout = timeout
		}
	}
}

// WithApprovalMultiplier 设置 ERC-20 授权额度相对卖出数量的倍数。
func WithApprovalMultiplier(multiplier int64) Option {
	return func(d *Dispatcher) {
		if multiplier > 0 {
			d.approvalMultiplier = multiplier
		}
	}
}

// WithDefaultSlippage 设置默认滑点（基点）。
func WithDefaultSlippage(bps int) Option {
	return func(d *Dispatcher) {
		if bps >= 0 && bps <= maxSlippageBps {
			d.defaultSlippage = bps
		}
	}
}

// WithSwapsEnabled 控制是否开放兑换。
func WithSwapsEnabled(enabled bool) Option {
	return func(d *Dispatcher) {
		d.swapsEnabled = enabled
	}
}

// New 创建 Dispatcher。
func New(l *ledger.Ledger, resolver WalletResolver, service walletservice.Service, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ledger:             l,
		resolver:           resolver,
		service:            service,
		lockTTL:            2 * time.Minute,
		callTimeout:        30 * time.Second,
		confirmTimeout:     60 * time.Second,
		approvalMultiplier: 10,
		defaultSlippage:    100,
		swapsEnabled:       true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch 执行一次钱包动作。
//
// 动作名未知或钱包不存在时直接返回错误，不写流水。
// 其余情况先写入 pending 流水，再解析参数并执行，最后回写 success 或 failed；
// 参数非法同样按 failed 落账。失败时同时返回 Outcome 与原始错误。
func (d *Dispatcher) Dispatch(ctx context.Context, roomID, action string, params map[string]any) (*Outcome, error) {
	if d.ledger == nil || d.resolver == nil || d.service == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "分发器未初始化")
	}
	name, err := ParseAction(action)
	if err != nil {
		return nil, err
	}
	identity, err := d.resolver.Resolve(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if d.locker != nil {
		lease, err := d.locker.Acquire(ctx, "room:"+roomID, d.lockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				logger.L().Warn("释放房间锁失败", slog.String("room_id", roomID), slog.Any("error", err))
			}
		}()
	}

	start := time.Now()
	txID, err := d.ledger.Append(ctx, roomID, string(name), params)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Action: name, RoomID: roomID, TransactionID: txID}
	result, execErr := d.run(ctx, name, params, identity)

	// 终态回写不受调用方取消影响。
	finalCtx := context.WithoutCancel(ctx)
	if execErr != nil {
		outcome.Error = errorMessage(execErr)
		if err := d.ledger.Fail(finalCtx, txID, outcome.Error); err != nil {
			return nil, err
		}
		d.observe(name, ledger.StatusFailed, start, outcome, execErr)
		return outcome, execErr
	}

	if err := d.ledger.Succeed(finalCtx, txID, result); err != nil {
		return nil, err
	}
	outcome.Success = true
	outcome.Result = result
	d.observe(name, ledger.StatusSuccess, start, outcome, nil)
	return outcome, nil
}

func (d *Dispatcher) run(ctx context.Context, name Action, params map[string]any, identity *wallet.Identity) (any, error) {
	req, err := ParseRequest(string(name), params)
	if err != nil {
		return nil, err
	}
	return req.execute(ctx, d, identity)
}

func (d *Dispatcher) observe(action Action, status ledger.Status, start time.Time, outcome *Outcome, err error) {
	metrics.ObserveDispatch(string(action), string(status), time.Since(start))
	attrs := []any{
		slog.String("room_id", outcome.RoomID),
		slog.String("action", string(action)),
		slog.String("transaction_id", outcome.TransactionID),
		slog.String("status", string(status)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error_code", string(xerrors.CodeOf(err))), slog.String("error", outcome.Error))
	}
	logger.Audit().Info("wallet action finalized", attrs...)
}

// withCallTimeout 为单次外部调用设置超时。
func (d *Dispatcher) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.callTimeout)
}

func (d *Dispatcher) explorerURL(network, txHash string) string {
	if d.chains == nil || txHash == "" {
		return ""
	}
	return d.chains.ExplorerURL(network, txHash)
}

func (d *Dispatcher) reader(network string) web3.ChainReader {
	if d.chains == nil {
		return nil
	}
	reader, ok := d.chains.Reader(network)
	if !ok {
		return nil
	}
	return reader
}

func errorMessage(err error) string {
	if e, ok := xerrors.From(err); ok {
		return e.Detail()
	}
	return err.Error()
}
