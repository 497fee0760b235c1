// Package ethereum implements web3.ChainReader for EVM compatible networks on
// top of go-ethereum's RPC client.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"Agentica/internal/web3"
)

// Config describes how to construct an EVM compatible reader.
type Config struct {
	Name    string
	RPCURL  string
	ChainID int64
}

// chainBackend mirrors the subset of go-ethereum methods the reader needs.
type chainBackend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client implements web3.ChainReader.
type Client struct {
	name      string
	chainID   *big.Int
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	backend   chainBackend
	mu        sync.Mutex
}

var _ web3.ChainReader = (*Client)(nil)

// NewClient dials the configured RPC endpoint and verifies the chain id when
// one is configured.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接节点 %s 失败: %w", cfg.Name, err)
	}
	eth := ethclient.NewClient(rpcClient)

	client := &Client{
		name:      cfg.Name,
		rpcClient: rpcClient,
		eth:       eth,
		backend:   eth,
	}
	if cfg.ChainID > 0 {
		remote, err := eth.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("获取链 %s 的 ID 失败: %w", cfg.Name, err)
		}
		if remote.Int64() != cfg.ChainID {
			client.Close()
			return nil, fmt.Errorf("链 %s 的 ID 不匹配: 配置 %d, 节点 %s", cfg.Name, cfg.ChainID, remote)
		}
		client.chainID = remote
	}
	return client, nil
}

// NewSimulatedClient wraps a go-ethereum simulated backend for testing purposes.
func NewSimulatedClient(name string, chainID *big.Int, backend *backends.SimulatedBackend) *Client {
	return &Client{
		name:    name,
		chainID: new(big.Int).Set(chainID),
		backend: backend,
	}
}

// Name returns the network name.
func (c *Client) Name() string {
	return c.name
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	c.rpcClient = nil
	c.backend = nil
}

// NativeBalance returns the native coin balance in wei.
func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	backend, err := c.chain()
	if err != nil {
		return nil, err
	}
	balance, err := backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance, nil
}

// TokenBalance returns an ERC-20 balance in the token's base units.
func (c *Client) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data, err := web3.EncodeBalanceOf(account)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	return web3.DecodeBalanceOf(out)
}

// TokenDecimals reads decimals() from an ERC-20 contract.
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (int32, error) {
	data, err := web3.EncodeDecimals()
	if err != nil {
		return 0, err
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return 0, err
	}
	return web3.DecodeDecimals(out)
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	backend, err := c.chain()
	if err != nil {
		return nil, err
	}
	out, err := backend.CallContract(ctx, gethcore.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("调用合约 %s 失败: %w", to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("合约 %s 无返回数据", to.Hex())
	}
	return out, nil
}

func (c *Client) chain() (chainBackend, error) {
	if c == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		return nil, fmt.Errorf("链客户端 %s 已关闭", c.name)
	}
	return c.backend, nil
}
