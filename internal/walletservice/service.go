// Package walletservice defines the contract with the external custodial
// wallet provider: named owner accounts, sponsored custodial (smart) accounts
// and the operations submitted through them.
package walletservice

import (
	"context"
	"math/big"

	xerrors "Agentica/internal/errors"
)

// OperationStatus 是托管账户操作在服务端的状态。
type OperationStatus string

const (
	OperationPending   OperationStatus = "pending"
	OperationBroadcast OperationStatus = "broadcast"
	OperationComplete  OperationStatus = "complete"
	OperationFailed    OperationStatus = "failed"
)

// IsTerminal 判断操作是否已经结束。
func (s OperationStatus) IsTerminal() bool {
	return s == OperationComplete || s == OperationFailed
}

// Account 是以名称寻址的所有者账户。
type Account struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// CustodialAccount 是由所有者账户控制、支持代付 gas 的托管账户。
type CustodialAccount struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Owner   Account `json:"owner"`
}

// Call 是一次合约调用。Data 为 ABI 编码后的 calldata。
type Call struct {
	To    string
	Value *big.Int
	Data  []byte
}

// Operation 是提交后得到的操作句柄。
type Operation struct {
	Hash   string          `json:"operation_hash"`
	Status OperationStatus `json:"status"`
}

// Receipt 是操作确认后的结果。TransactionHash 仅在 complete 时存在。
type Receipt struct {
	OperationHash   string          `json:"operation_hash"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
	Status          OperationStatus `json:"status"`
}

// SwapRequest 描述一次聚合交易。Amount 以卖出代币的最小单位计。
type SwapRequest struct {
	Network     string
	FromToken   string
	ToToken     string
	Amount      *big.Int
	SlippageBps int
}

// MaxAccountNameLength 是钱包服务允许的账户名最大长度。
const MaxAccountNameLength = 36

// Service 抽象托管钱包服务。实现必须可被并发调用。
type Service interface {
	GetOrCreateAccount(ctx context.Context, name string) (*Account, error)
	GetOrCreateCustodialAccount(ctx context.Context, name string, owner *Account) (*CustodialAccount, error)
	SubmitValueTransfer(ctx context.Context, account *CustodialAccount, network, to string, value *big.Int) (*Operation, error)
	SubmitContractCall(ctx context.Context, account *CustodialAccount, network string, call Call) (*Operation, error)
	AwaitConfirmation(ctx context.Context, account *CustodialAccount, operationHash string) (*Receipt, error)
	SubmitSwap(ctx context.Context, account *CustodialAccount, req SwapRequest) (*Operation, error)
}

const (
	CodeServiceError xerrors.Code = "WALLET_SERVICE_ERROR"
	CodeNotConfirmed xerrors.Code = "WALLET_OPERATION_NOT_CONFIRMED"
)

func init() {
	xerrors.Register(CodeServiceError, xerrors.Attributes{
		Message:   "wallet service error",
		Category:  xerrors.CategoryUpstreamUnavailable,
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeNotConfirmed, xerrors.Attributes{
		Message:  "operation not confirmed",
		Category: xerrors.CategoryUpstreamUnavailable,
		Severity: xerrors.SeverityWarning,
	})
}
