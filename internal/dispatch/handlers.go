package dispatch

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/observability/metrics"
	"Agentica/internal/wallet"
	"Agentica/internal/walletservice"
	"Agentica/internal/web3"
	"Agentica/pkg/logger"
)

// Confirmation 标记操作是否在等待期内完成确认。
type Confirmation string

const (
	Confirmed            Confirmation = "confirmed"
	SubmittedUnconfirmed Confirmation = "submitted_unconfirmed"
)

// OperationResult 是一次托管账户操作的结果。
// 确认超时或失败时 TransactionHash 与 BlockExplorer 为 null。
type OperationResult struct {
	UserOpHash      string       `json:"user_op_hash"`
	TransactionHash *string      `json:"transaction_hash"`
	Status          string       `json:"status"`
	BlockExplorer   *string      `json:"block_explorer"`
	Confirmation    Confirmation `json:"confirmation"`
}

// BalanceResult 是 balance 动作的结果。
type BalanceResult struct {
	Address       string         `json:"address"`
	AccountName   string         `json:"account_name"`
	RoomID        string         `json:"room_id"`
	Network       string         `json:"network"`
	NativeBalance *string        `json:"native_balance,omitempty"`
	Tokens        []TokenBalance `json:"tokens,omitempty"`
}

// TokenBalance 是单个 ERC-20 代币的余额。
type TokenBalance struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// TransferResult 是 transfer 动作的结果。
type TransferResult struct {
	OperationResult
	ToAddress string `json:"to_address"`
	Amount    string `json:"amount"`
	Network   string `json:"network"`
}

// SwapLeg 描述兑换的一侧代币。
type SwapLeg struct {
	Symbol  string `json:"symbol,omitempty"`
	Address string `json:"address"`
}

// SwapResult 是 swap 动作的结果。原生币卖出时 Approval 为空。
type SwapResult struct {
	OperationResult
	FromToken   SwapLeg          `json:"from_token"`
	ToToken     SwapLeg          `json:"to_token"`
	Amount      string           `json:"amount"`
	SlippageBps int              `json:"slippage_bps"`
	Network     string           `json:"network"`
	Approval    *OperationResult `json:"approval,omitempty"`
}

func (BalanceRequest) execute(ctx context.Context, d *Dispatcher, identity *wallet.Identity) (any, error) {
	address := identity.SpendAddress()
	if address == "" {
		return nil, xerrors.Newf(xerrors.CodeInternal, "wallet for room %s has no address", identity.RoomID)
	}
	result := &BalanceResult{
		Address:     address,
		AccountName: identity.OwnerAccountName,
		RoomID:      identity.RoomID,
		Network:     networkOf(identity),
	}

	reader := d.reader(result.Network)
	if reader == nil || !common.IsHexAddress(address) {
		return result, nil
	}
	account := common.HexToAddress(address)

	// 链上余额为附加信息，查询失败不影响结果。
	callCtx, cancel := d.withCallTimeout(ctx)
	defer cancel()
	if balance, err := reader.NativeBalance(callCtx, account); err == nil {
		formatted := web3.FormatUnits(balance, nativeDecimals)
		result.NativeBalance = &formatted
	} else {
		logger.L().Warn("查询原生币余额失败", slog.String("room_id", identity.RoomID), slog.Any("error", err))
	}
	if d.tokens == nil {
		return result, nil
	}
	for _, token := range d.tokens.Tokens(result.Network) {
		balance, err := reader.TokenBalance(callCtx, token.Address, account)
		if err != nil {
			logger.L().Warn("查询代币余额失败",
				slog.String("room_id", identity.RoomID),
				slog.String("token", token.Symbol),
				slog.Any("error", err),
			)
			continue
		}
		result.Tokens = append(result.Tokens, TokenBalance{
			Symbol:  token.Symbol,
			Address: token.Address.Hex(),
			Balance: web3.FormatUnits(balance, token.Decimals),
		})
	}
	return result, nil
}

func (r *TransferRequest) execute(ctx context.Context, d *Dispatcher, identity *wallet.Identity) (any, error) {
	network := networkOf(identity)
	custodial, err := d.custodialAccount(ctx, identity.RoomID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := d.withCallTimeout(ctx)
	op, err := d.service.SubmitValueTransfer(callCtx, custodial, network, r.ToAddress, r.Value)
	cancel()
	if err != nil {
		return nil, submitError(err, "Failed to send user operation")
	}

	return &TransferResult{
		OperationResult: d.awaitOperation(ctx, ActionTransfer, network, custodial, op),
		ToAddress:       r.ToAddress,
		Amount:          r.Amount,
		Network:         network,
	}, nil
}

func (r *SwapRequest) execute(ctx context.Context, d *Dispatcher, identity *wallet.Identity) (any, error) {
	network := networkOf(identity)
	if !d.swapsEnabled {
		return nil, xerrors.New(CodeSwapUnavailable, "Swap action is disabled")
	}
	if !d.tokens.Supports(network) {
		return nil, xerrors.Newf(CodeSwapUnavailable, "Swap is not supported on network %s", network)
	}

	sell, err := d.tokens.Resolve(network, r.FromToken)
	if err != nil {
		return nil, err
	}
	buy, err := d.tokens.Resolve(network, r.ToToken)
	if err != nil {
		return nil, err
	}
	if sell.Address == buy.Address {
		return nil, xerrors.New(CodeInvalidParameter, "from_token and to_token must differ")
	}
	if !sell.DecimalsKnown {
		decimals, err := d.tokenDecimals(ctx, network, sell.Address)
		if err != nil {
			return nil, err
		}
		sell.Decimals = decimals
	}
	amount, err := web3.ParseUnits(r.Amount, sell.Decimals)
	if err != nil {
		return nil, err
	}

	slippage := d.defaultSlippage
	if r.SlippageSet {
		slippage = r.SlippageBps
	}

	custodial, err := d.custodialAccount(ctx, identity.RoomID)
	if err != nil {
		return nil, err
	}

	result := &SwapResult{
		FromToken:   SwapLeg{Symbol: sell.Symbol, Address: sell.Address.Hex()},
		ToToken:     SwapLeg{Symbol: buy.Symbol, Address: buy.Address.Hex()},
		Amount:      r.Amount,
		SlippageBps: slippage,
		Network:     network,
	}
	if !sell.Native {
		approval, err := d.approve(ctx, network, custodial, sell.Address, amount)
		if err != nil {
			return nil, err
		}
		result.Approval = approval
	}

	callCtx, cancel := d.withCallTimeout(ctx)
	op, err := d.service.SubmitSwap(callCtx, custodial, walletservice.SwapRequest{
		Network:     network,
		FromToken:   sell.Address.Hex(),
		ToToken:     buy.Address.Hex(),
		Amount:      amount,
		SlippageBps: slippage,
	})
	cancel()
	if err != nil {
		return nil, submitError(err, "Failed to submit swap")
	}
	result.OperationResult = d.awaitOperation(ctx, ActionSwap, network, custodial, op)
	return result, nil
}

// approve 提交 ERC-20 授权并等待确认，授权未完成时兑换不会提交。
func (d *Dispatcher) approve(ctx context.Context, network string, custodial *walletservice.CustodialAccount, token common.Address, amount *big.Int) (*OperationResult, error) {
	allowance := web3.MultiplyAmount(amount, d.approvalMultiplier)
	data, err := web3.EncodeApprove(d.tokens.AllowanceContract(), allowance)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInternal, err, "encode approve calldata")
	}

	callCtx, cancel := d.withCallTimeout(ctx)
	op, err := d.service.SubmitContractCall(callCtx, custodial, network, walletservice.Call{
		To:    token.Hex(),
		Value: big.NewInt(0),
		Data:  data,
	})
	cancel()
	if err != nil {
		return nil, submitError(err, "Failed to submit token approval")
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.confirmTimeout)
	defer cancel()
	receipt, err := d.service.AwaitConfirmation(waitCtx, custodial, op.Hash)
	if err != nil {
		return nil, xerrors.Wrap(walletservice.CodeNotConfirmed, err, "Token approval was not confirmed",
			xerrors.WithMetadata("user_op_hash", op.Hash))
	}
	if receipt.Status != walletservice.OperationComplete {
		return nil, xerrors.Newf(walletservice.CodeNotConfirmed, "Token approval %s ended with status %s", op.Hash, receipt.Status)
	}
	return d.confirmedResult(network, op.Hash, receipt), nil
}

// awaitOperation 等待确认；超时或未完成时返回部分结果而不是错误。
func (d *Dispatcher) awaitOperation(ctx context.Context, action Action, network string, custodial *walletservice.CustodialAccount, op *walletservice.Operation) OperationResult {
	partial := OperationResult{
		UserOpHash:   op.Hash,
		Status:       string(op.Status),
		Confirmation: SubmittedUnconfirmed,
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.confirmTimeout)
	defer cancel()
	receipt, err := d.service.AwaitConfirmation(waitCtx, custodial, op.Hash)
	if err != nil {
		metrics.ObserveUnconfirmed(string(action))
		logger.L().Warn("等待操作确认失败，返回部分结果",
			slog.String("action", string(action)),
			slog.String("user_op_hash", op.Hash),
			slog.Any("error", err),
		)
		return partial
	}
	// 操作已提交上链，链上失败也按 success 落账，结果中的 status 记录对端终态。
	if receipt.Status != walletservice.OperationComplete || receipt.TransactionHash == "" {
		metrics.ObserveUnconfirmed(string(action))
		partial.Status = string(receipt.Status)
		return partial
	}
	return *d.confirmedResult(network, op.Hash, receipt)
}

func (d *Dispatcher) confirmedResult(network, opHash string, receipt *walletservice.Receipt) *OperationResult {
	result := &OperationResult{
		UserOpHash:   opHash,
		Status:       string(receipt.Status),
		Confirmation: Confirmed,
	}
	if receipt.TransactionHash != "" {
		txHash := receipt.TransactionHash
		result.TransactionHash = &txHash
		if link := d.explorerURL(network, txHash); link != "" {
			result.BlockExplorer = &link
		}
	}
	return result
}

func (d *Dispatcher) custodialAccount(ctx context.Context, roomID string) (*walletservice.CustodialAccount, error) {
	callCtx, cancel := d.withCallTimeout(ctx)
	defer cancel()
	_, custodial, err := d.resolver.ResolveAccounts(callCtx, roomID)
	if err != nil {
		return nil, err
	}
	return custodial, nil
}

func (d *Dispatcher) tokenDecimals(ctx context.Context, network string, token common.Address) (int32, error) {
	reader := d.reader(network)
	if reader == nil {
		return 0, xerrors.Newf(CodeInvalidParameter, "token %s is not registered on %s; use a registered symbol", token.Hex(), network)
	}
	callCtx, cancel := d.withCallTimeout(ctx)
	defer cancel()
	decimals, err := reader.TokenDecimals(callCtx, token)
	if err != nil {
		return 0, xerrors.Wrap(CodeInvalidParameter, err, "read token decimals")
	}
	return decimals, nil
}

func networkOf(identity *wallet.Identity) string {
	if identity.Network != "" {
		return identity.Network
	}
	return wallet.DefaultNetwork
}

func submitError(err error, message string) error {
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(walletservice.CodeServiceError, err, message)
}
