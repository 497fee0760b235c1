package rest

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/walletservice"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:             server.URL,
		APIKey:              "key",
		WalletSecret:        "secret",
		ConfirmationTimeout: 200 * time.Millisecond,
		PollInterval:        10 * time.Millisecond,
		Retries:             2,
	})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresBaseURLAndKey(t *testing.T) {
	_, err := NewClient(Config{APIKey: "key"})
	require.Error(t, err)
	_, err = NewClient(Config{BaseURL: "http://localhost"})
	require.Error(t, err)
}

func TestGetOrCreateAccountReturnsExisting(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/evm/accounts/by-name/{name}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "secret", r.Header.Get("X-Wallet-Auth"))
		_ = json.NewEncoder(w).Encode(accountPayload{Name: r.PathValue("name"), Address: "0xowner"})
	})
	mux.HandleFunc("POST /v2/evm/accounts", func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("account should not be created")
	})

	account, err := newTestClient(t, mux).GetOrCreateAccount(context.Background(), "room-7")
	require.NoError(t, err)
	assert.Equal(t, "room-7", account.Name)
	assert.Equal(t, "0xowner", account.Address)
}

func TestGetOrCreateAccountCreatesWhenMissing(t *testing.T) {
	var created atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/evm/accounts/by-name/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errorType":"not_found","errorMessage":"account not found"}`))
	})
	mux.HandleFunc("POST /v2/evm/accounts", func(w http.ResponseWriter, r *http.Request) {
		created.Add(1)
		var body accountPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(accountPayload{Name: body.Name, Address: "0xnew"})
	})

	account, err := newTestClient(t, mux).GetOrCreateAccount(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, "0xnew", account.Address)
	assert.EqualValues(t, 1, created.Load())
}

func TestGetOrCreateAccountDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/evm/accounts/by-name/{name}", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errorType":"unauthorized","errorMessage":"bad key"}`))
	})

	_, err := newTestClient(t, mux).GetOrCreateAccount(context.Background(), "room-1")
	require.Error(t, err)
	assert.True(t, xerrors.IsCode(err, walletservice.CodeServiceError))
	assert.Contains(t, err.Error(), "bad key")
	assert.EqualValues(t, 1, calls.Load())
}

func TestGetOrCreateCustodialAccountCreatesByName(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/evm/smart-accounts/by-name/{name}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "room-1", r.PathValue("name"))
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /v2/evm/smart-accounts", func(w http.ResponseWriter, r *http.Request) {
		var body smartAccountPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "room-1", body.Name)
		assert.Equal(t, []string{"0xowner"}, body.Owners)
		_ = json.NewEncoder(w).Encode(smartAccountPayload{Name: body.Name, Address: "0xsmart", Owners: body.Owners})
	})

	owner := &walletservice.Account{Name: "room-1", Address: "0xowner"}
	account, err := newTestClient(t, mux).GetOrCreateCustodialAccount(context.Background(), "room-1", owner)
	require.NoError(t, err)
	assert.Equal(t, "room-1", account.Name)
	assert.Equal(t, "0xsmart", account.Address)
	assert.Equal(t, *owner, account.Owner)
}

func TestGetOrCreateCustodialAccountFindsExistingByName(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/evm/smart-accounts/by-name/{name}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(smartAccountPayload{Name: r.PathValue("name"), Address: "0xexisting"})
	})
	mux.HandleFunc("POST /v2/evm/smart-accounts", func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("custodial account should not be created")
	})

	owner := &walletservice.Account{Name: "room-1", Address: "0xowner"}
	account, err := newTestClient(t, mux).GetOrCreateCustodialAccount(context.Background(), "room-1", owner)
	require.NoError(t, err)
	assert.Equal(t, "0xexisting", account.Address)
}

func TestAccountNamesOverLimitAreRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
	})
	client := newTestClient(t, mux)
	long := "room-2423ab1a-0000-4000-8000-689a1a47053f-owner"

	_, err := client.GetOrCreateAccount(context.Background(), long)
	require.Error(t, err)
	assert.Equal(t, xerrors.CategoryInvalidInput, xerrors.CategoryOf(err))

	_, err = client.GetOrCreateCustodialAccount(context.Background(), long, &walletservice.Account{Address: "0xowner"})
	require.Error(t, err)
	assert.Equal(t, xerrors.CategoryInvalidInput, xerrors.CategoryOf(err))
}

func TestSubmitValueTransferEncodesCall(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/evm/smart-accounts/{address}/user-operations", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xsmart", r.PathValue("address"))
		var body userOperationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "base-sepolia", body.Network)
		assert.True(t, body.Sponsored)
		require.Len(t, body.Calls, 1)
		assert.Equal(t, "0xabc", body.Calls[0].To)
		assert.Equal(t, "1000000000000000", body.Calls[0].Value)
		assert.Equal(t, "0x", body.Calls[0].Data)
		_ = json.NewEncoder(w).Encode(userOperationPayload{UserOpHash: "0xop", Status: "broadcast"})
	})

	account := &walletservice.CustodialAccount{Address: "0xsmart"}
	op, err := newTestClient(t, mux).SubmitValueTransfer(context.Background(), account, "base-sepolia", "0xabc", big.NewInt(1_000_000_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, "0xop", op.Hash)
	assert.Equal(t, walletservice.OperationBroadcast, op.Status)
}

func TestSubmitContractCallHexEncodesData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/evm/smart-accounts/{address}/user-operations", func(w http.ResponseWriter, r *http.Request) {
		var body userOperationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0x095ea7b3", body.Calls[0].Data)
		assert.Equal(t, "0", body.Calls[0].Value)
		_ = json.NewEncoder(w).Encode(userOperationPayload{UserOpHash: "0xapprove", Status: "pending"})
	})

	account := &walletservice.CustodialAccount{Address: "0xsmart"}
	op, err := newTestClient(t, mux).SubmitContractCall(context.Background(), account, "base-sepolia", walletservice.Call{
		To:   "0xtoken",
		Data: []byte{0x09, 0x5e, 0xa7, 0xb3},
	})
	require.NoError(t, err)
	assert.Equal(t, "0xapprove", op.Hash)
}

func TestAwaitConfirmationPollsUntilComplete(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/evm/smart-accounts/{address}/user-operations/{hash}", func(w http.ResponseWriter, r *http.Request) {
		status := "broadcast"
		if polls.Add(1) >= 3 {
			status = "complete"
		}
		_ = json.NewEncoder(w).Encode(userOperationPayload{
			UserOpHash:      r.PathValue("hash"),
			Status:          status,
			TransactionHash: "0xtx",
		})
	})

	account := &walletservice.CustodialAccount{Address: "0xsmart"}
	receipt, err := newTestClient(t, mux).AwaitConfirmation(context.Background(), account, "0xop")
	require.NoError(t, err)
	assert.Equal(t, walletservice.OperationComplete, receipt.Status)
	assert.Equal(t, "0xtx", receipt.TransactionHash)
	assert.Equal(t, "0xop", receipt.OperationHash)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestAwaitConfirmationReturnsFailedReceipt(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/evm/smart-accounts/{address}/user-operations/{hash}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(userOperationPayload{UserOpHash: "0xop", Status: "failed", TransactionHash: "0xignored"})
	})

	account := &walletservice.CustodialAccount{Address: "0xsmart"}
	receipt, err := newTestClient(t, mux).AwaitConfirmation(context.Background(), account, "0xop")
	require.NoError(t, err)
	assert.Equal(t, walletservice.OperationFailed, receipt.Status)
	assert.Empty(t, receipt.TransactionHash)
}

func TestAwaitConfirmationTimesOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/evm/smart-accounts/{address}/user-operations/{hash}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(userOperationPayload{UserOpHash: "0xop", Status: "broadcast"})
	})

	account := &walletservice.CustodialAccount{Address: "0xsmart"}
	_, err := newTestClient(t, mux).AwaitConfirmation(context.Background(), account, "0xop")
	require.Error(t, err)
	assert.True(t, xerrors.IsCode(err, xerrors.CodeTimeout))
}

func TestSubmitSwapRejectsZeroAmount(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())
	_, err := client.SubmitSwap(context.Background(), &walletservice.CustodialAccount{Address: "0xsmart"}, walletservice.SwapRequest{Amount: big.NewInt(0)})
	require.Error(t, err)
	assert.Equal(t, xerrors.CategoryInvalidInput, xerrors.CategoryOf(err))
}

func TestSubmitSwapPostsRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/evm/smart-accounts/{address}/swaps", func(w http.ResponseWriter, r *http.Request) {
		var body swapRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2500000", body.FromAmount)
		assert.Equal(t, 100, body.SlippageBps)
		_ = json.NewEncoder(w).Encode(userOperationPayload{UserOpHash: "0xswap", Status: "pending"})
	})

	op, err := newTestClient(t, mux).SubmitSwap(context.Background(), &walletservice.CustodialAccount{Address: "0xsmart"}, walletservice.SwapRequest{
		Network:     "base-sepolia",
		FromToken:   "0xusdc",
		ToToken:     "0xweth",
		Amount:      big.NewInt(2_500_000),
		SlippageBps: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xswap", op.Hash)
	assert.Equal(t, walletservice.OperationPending, op.Status)
}
