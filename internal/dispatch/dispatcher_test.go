package dispatch

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Agentica/internal/config"
	xerrors "Agentica/internal/errors"
	"Agentica/internal/ledger"
	"Agentica/internal/lock"
	"Agentica/internal/wallet"
	"Agentica/internal/walletservice"
	"Agentica/internal/walletservice/walletservicetest"
	"Agentica/internal/web3"
	"Agentica/internal/web3/ethereum"
	"Agentica/internal/web3/provider"
)

const recipient = "0x1111111111111111111111111111111111111111"

type stubReader struct {
	native   *big.Int
	token    *big.Int
	decimals int32
	err      error
}

func (s *stubReader) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	return s.native, s.err
}

func (s *stubReader) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return s.token, s.err
}

func (s *stubReader) TokenDecimals(context.Context, common.Address) (int32, error) {
	return s.decimals, s.err
}

func (s *stubReader) Close() {}

type fixture struct {
	dispatcher *Dispatcher
	ledger     *ledger.Ledger
	resolver   *wallet.Resolver
	store      *wallet.MemoryStore
	fake       *walletservicetest.Fake
}

func newFixture(t *testing.T, reader web3.ChainReader, opts ...Option) *fixture {
	t.Helper()

	store := wallet.NewMemoryStore()
	fake := walletservicetest.New()
	resolver := wallet.NewResolver(store, fake)
	l := ledger.New(ledger.NewMemoryStore())

	table, err := web3.LoadTokenTable("")
	require.NoError(t, err)
	tokens, err := web3.NewTokenRegistry(table)
	require.NoError(t, err)

	network := config.NetworkConfig{Name: "base-sepolia", ChainID: 84532, ExplorerTxURL: "https://sepolia.basescan.org/tx/%s"}
	if reader != nil {
		network.RPCURL = "http://rpc"
	}
	chains, err := provider.NewRegistry(context.Background(), config.Web3Config{
		DefaultNetwork: "base-sepolia",
		Networks:       []config.NetworkConfig{network},
	}, provider.WithDialer(func(context.Context, ethereum.Config) (web3.ChainReader, error) {
		return reader, nil
	}))
	require.NoError(t, err)

	base := []Option{
		WithTokenRegistry(tokens),
		WithChains(chains),
		WithConfirmationTimeout(time.Second),
	}
	return &fixture{
		dispatcher: New(l, resolver, fake, append(base, opts...)...),
		ledger:     l,
		resolver:   resolver,
		store:      store,
		fake:       fake,
	}
}

func (f *fixture) provision(t *testing.T, roomID string) *wallet.Identity {
	t.Helper()
	identity, err := f.resolver.Provision(context.Background(), roomID)
	require.NoError(t, err)
	return identity
}

func (f *fixture) records(t *testing.T, roomID string) []*ledger.Record {
	t.Helper()
	page, err := f.ledger.Query(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, len(page.Transactions), page.Total)
	return page.Transactions
}

func TestDispatchUnknownActionWritesNoRecord(t *testing.T) {
	f := newFixture(t, nil)
	f.provision(t, "room-1")

	outcome, err := f.dispatcher.Dispatch(context.Background(), "room-1", "stake", nil)
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.Equal(t, xerrors.CategoryInvalidInput, xerrors.CategoryOf(err))
	assert.Contains(t, err.Error(), "Invalid action: stake. Supported actions: balance, transfer, swap")
	assert.Empty(t, f.records(t, "room-1"))
}

func TestDispatchMissingWalletWritesNoRecord(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.dispatcher.Dispatch(context.Background(), "ghost", "balance", nil)
	require.Error(t, err)
	assert.Equal(t, xerrors.CategoryNotFound, xerrors.CategoryOf(err))
	assert.Empty(t, f.records(t, "ghost"))
}

func TestDispatchInvalidParametersAreRecordedAsFailed(t *testing.T) {
	f := newFixture(t, nil)
	f.provision(t, "room-1")

	outcome, err := f.dispatcher.Dispatch(context.Background(), "room-1", "transfer", map[string]any{"to_address": recipient})
	require.Error(t, err)
	assert.True(t, xerrors.IsCode(err, CodeMissingParameter))
	assert.Equal(t, xerrors.CategoryInvalidInput, xerrors.CategoryOf(err))
	require.NotNil(t, outcome)
	assert.False(t, outcome.Success)
	assert.Equal(t, "Missing required parameter: amount", outcome.Error)

	records := f.records(t, "room-1")
	require.Len(t, records, 1)
	assert.Equal(t, outcome.TransactionID, records[0].ID)
	assert.Equal(t, "transfer", records[0].Action)
	assert.Equal(t, ledger.StatusFailed, records[0].Status)
	assert.Equal(t, "Missing required parameter: amount", records[0].Error)

	outcome, err = f.dispatcher.Dispatch(context.Background(), "room-1", "swap", map[string]any{
		"from_token": "ETH",
		"to_token":   "USDC",
		"amount":     "abc",
	})
	require.Error(t, err)
	assert.True(t, xerrors.IsCode(err, CodeInvalidParameter))
	require.NotNil(t, outcome)
	assert.Equal(t, "Invalid amount: abc", outcome.Error)

	records = f.records(t, "room-1")
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, ledger.StatusFailed, r.Status)
	}
	assert.Empty(t, f.fake.CallsTo("SubmitValueTransfer"))
	assert.Empty(t, f.fake.CallsTo("SubmitSwap"))
}

func TestBalanceReturnsCustodialAddress(t *testing.T) {
	f := newFixture(t, nil)
	identity := f.provision(t, "room-1")

	outcome, err := f.dispatcher.Dispatch(context.Background(), "room-1", "balance", nil)
	require.NoError(t, err)
	require.True(t, outcome.Success)

	result, ok := outcome.Result.(*BalanceResult)
	require.True(t, ok)
	assert.Equal(t, identity.CustodialAccountAddress, result.Address)
	assert.NotEqual(t, identity.OwnerAddress, result.Address)
	assert.Equal(t, "room-1", result.AccountName)
	assert.Equal(t, "base-sepolia", result.Network)
	assert.Nil(t, result.NativeBalance)

	records := f.records(t, "room-1")
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StatusSuccess, records[0].Status)
	assert.Equal(t, outcome.TransactionID, records[0].ID)
}

func TestBalanceFallsBackToLegacyAddress(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Create(context.Background(), &wallet.Identity{
		RoomID:           "legacy",
		OwnerAccountName: wallet.OwnerAccountName("legacy"),
		LegacyAddress:    recipient,
		Network:          "base-sepolia",
		CreatedAt:        time.Now(),
	}))

	outcome, err := f.dispatcher.Dispatch(context.Background(), "legacy", "balance", nil)
	require.NoError(t, err)
	assert.Equal(t, recipient, outcome.Result.(*BalanceResult).Address)
}

func TestBalanceIncludesOnChainBalances(t *testing.T) {
	reader := &stubReader{native: big.NewInt(1_500_000_000_000_000_000), token: big.NewInt(2_500_000), decimals: 6}
	f := newFixture(t, reader)
	f.provision(t, "room-1")

	outcome, err := f.dispatcher.Dispatch(context.Background(), "room-1", "balance", nil)
	require.NoError(t, err)

	result := outcome.Result.(*BalanceResult)
	require.NotNil(t, result.NativeBalance)
	assert.Equal(t, "1.5", *result.NativeBalance)
	require.Len(t, result.Tokens, 2)
	assert.Equal(t, "USDC", result.Tokens[0].Symbol)
	assert.Equal(t, "2.5", result.Tokens[0].Balance)
}

func TestBalanceIgnoresReaderFailures(t *testing.T) {
	f := newFixture(t, &stubReader{err: stdErrors.New("rpc down")})
	f.provision(t, "room-1")

	outcome, err := f.dispatcher.Dispatch(context.Background(), "room-1", "balance", nil)
	require.NoError(t, err)
	result := outcome.Result.(*BalanceResult)
	assert.Nil(t, result.NativeBalance)
	assert.Empty(t, result.Tokens)
}

func TestTransferMovesRecordFromPendingToSuccess(t *testing.T) {
	f := newFixture(t, nil)
	identity := f.provision(t, "room-1")

	outcome, err := f.dispatcher.Dispatch(context.Background(), "room-1", "transfer", map[string]any{
		"to_address": recipient,
		"amount":     "0.001",
	})
	require.NoError(t, err)
	require.True(t, outcome.Success)

	result := outcome.Result.(*TransferResult)
	assert.Equal(t, "0xop0001", result.UserOpHash)
	require.NotNil(t, result.TransactionHash)
	assert.Equal(t, "0xop000100", *result.TransactionHash)
	require.NotNil(t, result.BlockExplorer)
	assert.Equal(t, "https://sepolia.basescan.org/tx/0xop000100", *result.BlockExplorer)
	assert.Equal(t, Confirmed, result.Confirmation)
	assert.Equal(t, "complete", result.Status)

	calls := f.fake.CallsTo("SubmitValueTransfer")
	require.Len(t, calls, 1)
	assert.Equal(t, identity.CustodialAccountAddress, calls[0].Account)
	assert.Equal(t, recipient, calls[0].To)
	assert.Equal(t, big.NewInt(1_000_000_000_000_000), calls[0].Value)

	records := f.records(t, "room-1")
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StatusSuccess, records[0].Status)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(records[0].Result, &stored))
	assert.Equal(t, "0xop000100", stored["transaction_hash"])
}

func TestTransferConfirmationTimeoutReturnsPartialResult(t *testing.T) {
	f := newFixture(t, nil, WithConfirmationTimeout(20*time.Millisecond))
	f.provision(t, "room-1")
	f.fake.AwaitHook = func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	outcome, err := f.dispatcher.Dispatch(context.Background(), "room-1", "transfer", map[string]any{
		"to_address": recipient,
		"amount":     0.5,
	})
	require.NoError(t, err)
	require.True(t, outcome.Success)

	result := outcome.Result.(*TransferResult)
	assert.Equal(t, "0xop0001", result.UserOpHash)
	assert.Nil(t, result.TransactionHash)
	assert.Nil(t, result.BlockExplorer)
	assert.Equal(t, string(walletservice.OperationBroadcast), result.Status)
	assert.Equal(t, SubmittedUnconfirmed, result.Confirmation)

	records := f.records(t, "room-1")
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StatusSuccess, records[0].Status)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(records[0].Result, &stored))
	assert.Nil(t, stored["transaction_hash"])
	assert.Equal(t, "submitted_unconfirmed", stored["confirmation"])
}

func TestTransferSubmitFailureIsRecordedAndReturned(t *testing.T) {
	f := newFixture(t, nil)
	f.provision(t, "room-1")
	f.fake.FailOn("SubmitValueTransfer", stdErrors.New("insufficient funds"))

	outcome, err := f.dispatcher.Dispatch(context.Background(), "room-1", "transfer", map[string]any{
		"to_address": recipient,
		"amount":     "1",
	})
	require.Error(t, err)
	assert.True(t, xerrors.IsCode(err, walletservice.CodeServiceError))
	require.NotNil(t, outcome)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "insufficient funds")

	records := f.records(t, "room-1")
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StatusFailed, records[0].Status)
	assert.Equal(t, outcome.Error, records[0].Error)
}

func TestSwapNativeSellTokenSkipsApproval(t *testing.T) {
	f := newFixture(t, nil)
	f.provision(t, "room-1")

	outcome, err := f.dispatcher.Dispatch(context.Background(), "room-1", "swap", map[string]any{
		"from_token": "ETH",
		"to_token":   "USDC",
		"amount":     "0.01",
	})
	require.NoError(t, err)

	result := outcome.Result.(*SwapResult)
	assert.Nil(t, result.Approval)
	assert.Equal(t, 100, result.SlippageBps)
	assert.Empty(t, f.fake.CallsTo("SubmitContractCall"))

	swaps := f.fake.CallsTo("SubmitSwap")
	require.Len(t, swaps, 1)
	assert.Equal(t, big.NewInt(10_000_000_000_000_000), swaps[0].Swap.Amount)
	assert.Equal(t, "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE", swaps[0].Swap.FromToken)
}

func TestSwapERC20ApprovesOnceBeforeSwap(t *testing.T) {
	f := newFixture(t, nil)
	f.provision(t, "room-1")

	outcome, err := f.dispatcher.Dispatch(context.Background(), "room-1", "swap", map[string]any{
		"from_token":   "USDC",
		"to_token":     "WETH",
		"amount":       "2.5",
		"slippage_bps": 50,
	})
	require.NoError(t, err)

	result := outcome.Result.(*SwapResult)
	require.NotNil(t, result.Approval)
	assert.Equal(t, Confirmed, result.Approval.Confirmation)
	assert.Equal(t, 50, result.SlippageBps)

	approvalIdx, swapIdx := -1, -1
	approvals := 0
	for i, call := range f.fake.Calls() {
		switch call.Method {
		case "SubmitContractCall":
			approvals++
			approvalIdx = i
			assert.Equal(t, "0x036CbD53842c5426634e7929541eC2318f3dCF7e", call.To)
			require.Len(t, call.Data, 4+32+32)
			assert.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, call.Data[:4])
			spender := common.BytesToAddress(call.Data[4:36])
			assert.Equal(t, common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3"), spender)
			assert.Equal(t, big.NewInt(25_000_000), new(big.Int).SetBytes(call.Data[36:]))
		case "SubmitSwap":
			swapIdx = i
			assert.Equal(t, big.NewInt(2_500_000), call.Swap.Amount)
			assert.Equal(t, 50, call.Swap.SlippageBps)
		}
	}
	assert.Equal(t, 1, approvals)
	require.NotEqual(t, -1, swapIdx)
	assert.Less(t, approvalIdx, swapIdx)
}

func TestSwapConfirmationTimeoutAfterApprovalReturnsPartialResult(t *testing.T) {
	f := newFixture(t, nil, WithConfirmationTimeout(20*time.Millisecond))
	f.provision(t, "room-1")
	// 0xop0001 是授权，0xop0002 是兑换。
	f.fake.AwaitHook = func(ctx context.Context, hash string) error {
		if hash != "0xop0002" {
			return nil
		}
		<-ctx.Done()
		return ctx.Err()
	}

	outcome, err := f.dispatcher.Dispatch(context.Background(), "room-1", "swap", map[string]any{
		"from_token": "USDC",
		"to_token":   "WETH",
		"amount":     "1",
	})
	require.NoError(t, err)
	require.True(t, outcome.Success)

	result := outcome.Result.(*SwapResult)
	assert.Equal(t, "0xop0002", result.UserOpHash)
	assert.Nil(t, result.TransactionHash)
	assert.Nil(t, result.BlockExplorer)
	assert.Equal(t, SubmittedUnconfirmed, result.Confirmation)
	require.NotNil(t, result.Approval)
	assert.Equal(t, Confirmed, result.Approval.Confirmation)
	assert.Equal(t, "0xop0001", result.Approval.UserOpHash)
	require.NotNil(t, result.Approval.TransactionHash)

	records := f.records(t, "room-1")
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StatusSuccess, records[0].Status)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(records[0].Result, &stored))
	assert.Nil(t, stored["transaction_hash"])
	assert.Equal(t, "submitted_unconfirmed", stored["confirmation"])
}

func TestTransferFailedOnChainIsStillRecordedAsSuccess(t *testing.T) {
	f := newFixture(t, nil)
	f.provision(t, "room-1")
	f.fake.AwaitStatus = walletservice.OperationFailed

	outcome, err := f.dispatcher.Dispatch(context.Background(), "room-1", "transfer", map[string]any{
		"to_address": recipient,
		"amount":     "0.1",
	})
	require.NoError(t, err)
	result := outcome.Result.(*TransferResult)
	assert.Equal(t, string(walletservice.OperationFailed), result.Status)
	assert.Equal(t, SubmittedUnconfirmed, result.Confirmation)
	assert.Nil(t, result.TransactionHash)

	records := f.records(t, "room-1")
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StatusSuccess, records[0].Status)
}

func TestSwapAbortsWhenApprovalNotConfirmed(t *testing.T) {
	f := newFixture(t, nil)
	f.provision(t, "room-1")
	f.fake.AwaitStatus = walletservice.OperationFailed

	outcome, err := f.dispatcher.Dispatch(context.Background(), "room-1", "swap", map[string]any{
		"from_token": "USDC",
		"to_token":   "WETH",
		"amount":     "1",
	})
	require.Error(t, err)
	assert.True(t, xerrors.IsCode(err, walletservice.CodeNotConfirmed))
	assert.False(t, outcome.Success)
	assert.Empty(t, f.fake.CallsTo("SubmitSwap"))

	records := f.records(t, "room-1")
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StatusFailed, records[0].Status)
}

func TestSwapRawAddressUsesOnChainDecimals(t *testing.T) {
	f := newFixture(t, &stubReader{native: big.NewInt(0), token: big.NewInt(0), decimals: 8})
	f.provision(t, "room-1")

	_, err := f.dispatcher.Dispatch(context.Background(), "room-1", "swap", map[string]any{
		"from_token": recipient,
		"to_token":   "USDC",
		"amount":     "1.5",
	})
	require.NoError(t, err)

	swaps := f.fake.CallsTo("SubmitSwap")
	require.Len(t, swaps, 1)
	assert.Equal(t, big.NewInt(150_000_000), swaps[0].Swap.Amount)
}

func TestSwapRawAddressWithoutReaderIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.provision(t, "room-1")

	outcome, err := f.dispatcher.Dispatch(context.Background(), "room-1", "swap", map[string]any{
		"from_token": recipient,
		"to_token":   "USDC",
		"amount":     "1",
	})
	require.Error(t, err)
	assert.Equal(t, xerrors.CategoryInvalidInput, xerrors.CategoryOf(err))
	assert.False(t, outcome.Success)
	assert.Empty(t, f.fake.CallsTo("SubmitSwap"))
}

func TestSwapDisabledIsNotImplemented(t *testing.T) {
	f := newFixture(t, nil, WithSwapsEnabled(false))
	f.provision(t, "room-1")

	_, err := f.dispatcher.Dispatch(context.Background(), "room-1", "swap", map[string]any{
		"from_token": "ETH",
		"to_token":   "USDC",
		"amount":     "1",
	})
	require.Error(t, err)
	assert.Equal(t, xerrors.CategoryNotImplemented, xerrors.CategoryOf(err))

	records := f.records(t, "room-1")
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StatusFailed, records[0].Status)
}

func TestDispatchWithRoomLock(t *testing.T) {
	f := newFixture(t, nil, WithRoomLock(lock.NewMemory(), time.Second))
	f.provision(t, "room-1")

	for i := 0; i < 3; i++ {
		_, err := f.dispatcher.Dispatch(context.Background(), "room-1", "balance", nil)
		require.NoError(t, err)
	}
	assert.Len(t, f.records(t, "room-1"), 3)
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest(" Transfer ", map[string]any{"to_address": recipient, "amount": json.Number("0.25")})
	require.NoError(t, err)
	transfer := req.(*TransferRequest)
	assert.Equal(t, big.NewInt(250_000_000_000_000_000), transfer.Value)

	_, err = ParseRequest("transfer", map[string]any{"to_address": recipient, "amount": "0"})
	assert.Equal(t, xerrors.CategoryInvalidInput, xerrors.CategoryOf(err))

	_, err = ParseRequest("swap", map[string]any{"from_token": "ETH", "to_token": "eth", "amount": "1"})
	assert.Equal(t, xerrors.CategoryInvalidInput, xerrors.CategoryOf(err))

	_, err = ParseRequest("swap", map[string]any{"from_token": "ETH", "to_token": "USDC", "amount": "1", "slippage_bps": 12.5})
	assert.True(t, xerrors.IsCode(err, CodeInvalidParameter))

	_, err = ParseRequest("swap", map[string]any{"from_token": "ETH", "to_token": "USDC"})
	assert.True(t, xerrors.IsCode(err, CodeMissingParameter))

	assert.Len(t, SupportedActions(), 3)
}
