package ethereum

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimulated(t *testing.T, funded common.Address, balance *big.Int) *Client {
	t.Helper()
	alloc := coretypes.GenesisAlloc{
		funded: {Balance: balance},
	}
	backend := backends.NewSimulatedBackend(alloc, 8_000_000)
	t.Cleanup(func() { _ = backend.Close() })

	client := NewSimulatedClient("simulated", big.NewInt(1337), backend)
	t.Cleanup(client.Close)
	return client
}

func TestNativeBalanceReadsAllocatedFunds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	oneEther := big.NewInt(1_000_000_000_000_000_000)
	client := newSimulated(t, from, oneEther)

	balance, err := client.NativeBalance(ctx, from)
	require.NoError(t, err)
	assert.Equal(t, 0, balance.Cmp(oneEther))

	empty, err := client.NativeBalance(ctx, common.HexToAddress("0x0000000000000000000000000000000000000001"))
	require.NoError(t, err)
	assert.Zero(t, empty.Sign())
}

func TestTokenBalanceFailsForAccountWithoutCode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	holder := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	client := newSimulated(t, holder, big.NewInt(1))

	_, err := client.TokenBalance(ctx, common.HexToAddress("0x00000000000000000000000000000000000000bb"), holder)
	require.Error(t, err)

	_, err = client.TokenDecimals(ctx, common.HexToAddress("0x00000000000000000000000000000000000000bb"))
	require.Error(t, err)
}

func TestClosedClientRejectsCalls(t *testing.T) {
	holder := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	client := newSimulated(t, holder, big.NewInt(1))
	client.Close()

	_, err := client.NativeBalance(context.Background(), holder)
	require.Error(t, err)
}

func TestNewClientRequiresRPCURL(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Name: "base-sepolia"})
	require.Error(t, err)
}
