package provider

import (
	"context"
	stdErrors "errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Agentica/internal/config"
	"Agentica/internal/web3"
	"Agentica/internal/web3/ethereum"
)

type stubReader struct {
	closed bool
}

func (s *stubReader) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(42), nil
}

func (s *stubReader) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return big.NewInt(7), nil
}

func (s *stubReader) TokenDecimals(context.Context, common.Address) (int32, error) {
	return 6, nil
}

func (s *stubReader) Close() { s.closed = true }

func TestNewRegistryDialsOnlyNetworksWithRPC(t *testing.T) {
	reader := &stubReader{}
	var dialed []string
	dialer := func(_ context.Context, cfg ethereum.Config) (web3.ChainReader, error) {
		dialed = append(dialed, cfg.Name)
		return reader, nil
	}

	registry, err := NewRegistry(context.Background(), config.Web3Config{
		DefaultNetwork: "base-sepolia",
		Networks: []config.NetworkConfig{
			{Name: "base-sepolia", ChainID: 84532, RPCURL: "http://rpc", ExplorerTxURL: "https://sepolia.basescan.org/tx/%s"},
			{Name: "base-mainnet", ChainID: 8453},
		},
	}, WithDialer(dialer))
	require.NoError(t, err)

	assert.Equal(t, []string{"base-sepolia"}, dialed)
	assert.Equal(t, []string{"base-mainnet", "base-sepolia"}, registry.Networks())

	got, ok := registry.Reader("base-sepolia")
	require.True(t, ok)
	assert.Same(t, reader, got)
	_, ok = registry.Reader("base-mainnet")
	assert.False(t, ok)

	assert.Equal(t, "https://sepolia.basescan.org/tx/0xabc", registry.ExplorerURL("base-sepolia", "0xabc"))
	assert.Empty(t, registry.ExplorerURL("base-mainnet", "0xabc"))

	registry.Close()
	assert.True(t, reader.closed)
}

func TestNewRegistrySkipsFailedDial(t *testing.T) {
	dialer := func(context.Context, ethereum.Config) (web3.ChainReader, error) {
		return nil, stdErrors.New("connection refused")
	}
	registry, err := NewRegistry(context.Background(), config.Web3Config{
		Networks: []config.NetworkConfig{{Name: "base-sepolia", RPCURL: "http://rpc"}},
	}, WithDialer(dialer))
	require.NoError(t, err)
	assert.Equal(t, "base-sepolia", registry.DefaultNetwork())
	_, ok := registry.Reader("base-sepolia")
	assert.False(t, ok)
}

func TestNewRegistryRejectsUnknownDefault(t *testing.T) {
	_, err := NewRegistry(context.Background(), config.Web3Config{
		DefaultNetwork: "mainnet",
		Networks:       []config.NetworkConfig{{Name: "base-sepolia"}},
	})
	require.Error(t, err)
}
