// Package walletservicetest provides an in-memory walletservice.Service for
// tests of the components that drive the custodial wallet provider.
package walletservicetest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"Agentica/internal/walletservice"
)

// Call 记录一次对 Fake 的调用。
type Call struct {
	Method  string
	Account string
	Network string
	To      string
	Value   *big.Int
	Data    []byte
	Swap    *walletservice.SwapRequest
}

// Fake 是线程安全的内存实现。
type Fake struct {
	mu        sync.Mutex
	accounts  map[string]walletservice.Account
	custodial map[string]walletservice.CustodialAccount
	calls     []Call
	seq       int

	// 以方法名为键注入错误。
	Errors map[string]error
	// AwaitStatus 决定 AwaitConfirmation 返回的终态，默认 complete。
	AwaitStatus walletservice.OperationStatus
	// AwaitHook 在 AwaitConfirmation 返回前调用，可返回错误模拟超时。
	AwaitHook func(ctx context.Context, operationHash string) error
}

var _ walletservice.Service = (*Fake)(nil)

// New 创建 Fake。
func New() *Fake {
	return &Fake{
		accounts:  make(map[string]walletservice.Account),
		custodial: make(map[string]walletservice.CustodialAccount),
		Errors:    make(map[string]error),
	}
}

// FailOn 让指定方法返回错误。
func (f *Fake) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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

// AddressFor 返回名称对应的确定性地址。
func AddressFor(seed string) string {
	return common.BytesToAddress(crypto.Keccak256([]byte(seed))[12:]).Hex()
}

func (f *Fake) record(c Call) error {
	f.calls = append(f.calls, c)
	if err := f.Errors[c.Method]; err != nil {
		return err
	}
	return nil
}

func (f *Fake) GetOrCreateAccount(_ context.Context, name string) (*walletservice.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "GetOrCreateAccount", Account: name}); err != nil {
		return nil, err
	}
	if len(name) > walletservice.MaxAccountNameLength {
		return nil, fmt.Errorf("account name %q exceeds %d characters", name, walletservice.MaxAccountNameLength)
	}
	account, ok := f.accounts[name]
	if !ok {
		account = walletservice.Account{Name: name, Address: AddressFor("owner:" + name)}
		f.accounts[name] = account
	}
	return &account, nil
}

func (f *Fake) GetOrCreateCustodialAccount(_ context.Context, name string, owner *walletservice.Account) (*walletservice.CustodialAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "GetOrCreateCustodialAccount", Account: name}); err != nil {
		return nil, err
	}
	account, ok := f.custodial[name]
	if !ok {
		account = walletservice.CustodialAccount{Name: name, Address: AddressFor("custodial:" + name), Owner: *owner}
		f.custodial[name] = account
	}
	return &account, nil
}

func (f *Fake) SubmitValueTransfer(_ context.Context, account *walletservice.CustodialAccount, network, to string, value *big.Int) (*walletservice.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "SubmitValueTransfer", Account: account.Address, Network: network, To: to, Value: value}); err != nil {
		return nil, err
	}
	return f.nextOperation(), nil
}

func (f *Fake) SubmitContractCall(_ context.Context, account *walletservice.CustodialAccount, network string, call walletservice.Call) (*walletservice.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "SubmitContractCall", Account: account.Address, Network: network, To: call.To, Value: call.Value, Data: call.Data}); err != nil {
		return nil, err
	}
	return f.nextOperation(), nil
}

func (f *Fake) SubmitSwap(_ context.Context, account *walletservice.CustodialAccount, req walletservice.SwapRequest) (*walletservice.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	swap := req
	if err := f.record(Call{Method: "SubmitSwap", Account: account.Address, Network: req.Network, Swap: &swap}); err != nil {
		return nil, err
	}
	return f.nextOperation(), nil
}

func (f *Fake) AwaitConfirmation(ctx context.Context, account *walletservice.CustodialAccount, operationHash string) (*walletservice.Receipt, error) {
	f.mu.Lock()
	err := f.record(Call{Method: "AwaitConfirmation", Account: account.Address, To: operationHash})
	status := f.AwaitStatus
	hook := f.AwaitHook
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if hook != nil {
		if err := hook(ctx, operationHash); err != nil {
			return nil, err
		}
	}
	if status == "" {
		status = walletservice.OperationComplete
	}
	receipt := &walletservice.Receipt{OperationHash: operationHash, Status: status}
	if status == walletservice.OperationComplete {
		receipt.TransactionHash = "0x" + strings.TrimPrefix(operationHash, "0x") + "00"
	}
	return receipt, nil
}

func (f *Fake) nextOperation() *walletservice.Operation {
	f.seq++
	return &walletservice.Operation{Hash: fmt.Sprintf("0xop%04d", f.seq), Status: walletservice.OperationBroadcast}
}
