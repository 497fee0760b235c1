package intent

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"Agentica/internal/agentruntime"
	xerrors "Agentica/internal/errors"
	"Agentica/internal/wallet"
	"Agentica/pkg/logger"
)

const defaultCompensateTimeout = 10 * time.Second

// WalletRemover 删除本地钱包记录。
type WalletRemover interface {
	Delete(ctx context.Context, roomID string) error
}

// Compensator 尽力回收建房流程已创建的资源。
// 远端房间与钱包服务中的账户无法回收，只作为遗留资源返回。
type Compensator struct {
	runtime agentruntime.Runtime
	wallets WalletRemover
	timeout time.Duration
}

// NewCompensator 创建 Compensator，timeout 为 0 时使用 10 秒。
func NewCompensator(runtime agentruntime.Runtime, wallets WalletRemover, timeout time.Duration) *Compensator {
	if timeout <= 0 {
		timeout = defaultCompensateTimeout
	}
	return &Compensator{runtime: runtime, wallets: wallets, timeout: timeout}
}

// Undo 停止并删除策略代理、删除钱包记录，返回无法回收的资源描述。
func (c *Compensator) Undo(ctx context.Context, intent *Intent) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	var (
		errs    []error
		orphans []string
	)
	if intent.StrategyAgentID != "" && c.runtime != nil {
		if err := c.runtime.StopAgent(ctx, intent.StrategyAgentID); err != nil {
			logger.L().Warn("补偿时停止代理失败",
				slog.String("room_id", intent.RoomID),
				slog.String("remote_agent_id", intent.StrategyAgentID),
				slog.Any("error", err),
			)
		}
		if err := c.runtime.DeleteAgent(ctx, intent.StrategyAgentID); err != nil {
			errs = append(errs, err)
			orphans = append(orphans, "agent:"+intent.StrategyAgentID)
		}
	}
	if intent.WalletProvisioned {
		if c.wallets != nil {
			if err := c.wallets.Delete(ctx, intent.RoomID); err != nil && !xerrors.IsCode(err, wallet.CodeWalletNotFound) {
				errs = append(errs, err)
			}
		}
		orphans = append(orphans, "wallet_accounts:"+wallet.OwnerAccountName(intent.RoomID))
	}
	if intent.RemoteRoomID != "" {
		orphans = append(orphans, "room:"+intent.RemoteRoomID)
	}

	if len(orphans) > 0 {
		logger.Audit().Warn("saga resources left orphaned",
			slog.String("room_id", intent.RoomID),
			slog.Any("resources", orphans),
		)
	}
	return orphans, stdErrors.Join(errs...)
}
