// Package provider keeps the configured networks and their chain readers.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"Agentica/internal/config"
	"Agentica/internal/web3"
	"Agentica/internal/web3/ethereum"
	"Agentica/pkg/logger"
)

// Dialer 为一个网络创建链读取器。
type Dialer func(ctx context.Context, cfg ethereum.Config) (web3.ChainReader, error)

func dialEthereum(ctx context.Context, cfg ethereum.Config) (web3.ChainReader, error) {
	return ethereum.NewClient(ctx, cfg)
}

// Registry manages network metadata and chain readers keyed by network name.
type Registry struct {
	mu             sync.RWMutex
	defaultNetwork string
	networks       map[string]web3.Network
	readers        map[string]web3.ChainReader
}

// Option 定义 Registry 的可选配置。
type Option func(*options)

type options struct {
	dialer Dialer
}

// WithDialer 替换链读取器的创建方式。
func WithDialer(d Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// NewRegistry 加载网络配置。配置了 rpc_url 的网络会建立读取器，
// 连接失败只记录告警，该网络退化为无链上查询。
func NewRegistry(ctx context.Context, cfg config.Web3Config, opts ...Option) (*Registry, error) {
	o := options{dialer: dialEthereum}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	r := &Registry{
		defaultNetwork: strings.TrimSpace(cfg.DefaultNetwork),
		networks:       make(map[string]web3.Network, len(cfg.Networks)),
		readers:        make(map[string]web3.ChainReader),
	}
	for _, n := range cfg.Networks {
		name := strings.TrimSpace(n.Name)
		if name == "" {
			return nil, errors.New("网络名称不能为空")
		}
		if _, dup := r.networks[name]; dup {
			return nil, fmt.Errorf("网络 %s 重复配置", name)
		}
		r.networks[name] = web3.Network{Name: name, ChainID: n.ChainID, ExplorerTxURL: n.ExplorerTxURL}

		if strings.TrimSpace(n.RPCURL) == "" {
			continue
		}
		reader, err := o.dialer(ctx, ethereum.Config{Name: name, RPCURL: n.RPCURL, ChainID: n.ChainID})
		if err != nil {
			logger.L().Warn("初始化链读取器失败，跳过链上查询",
				slog.String("network", name),
				slog.Any("error", err),
			)
			continue
		}
		r.readers[name] = reader
	}

	if len(r.networks) == 0 {
		return nil, errors.New("未配置任何网络")
	}
	if r.defaultNetwork == "" {
		names := r.Networks()
		r.defaultNetwork = names[0]
	}
	if _, ok := r.networks[r.defaultNetwork]; !ok {
		return nil, fmt.Errorf("默认网络 %s 未在配置中找到", r.defaultNetwork)
	}
	return r, nil
}

// DefaultNetwork 返回默认网络名称。
func (r *Registry) DefaultNetwork() string {
	return r.defaultNetwork
}

// Network 返回网络元数据。
func (r *Registry) Network(name string) (web3.Network, bool) {
	if r == nil {
		return web3.Network{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.networks[name]
	return n, ok
}

// Reader 返回网络的链读取器。
func (r *Registry) Reader(name string) (web3.ChainReader, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	reader, ok := r.readers[name]
	return reader, ok
}

// ExplorerURL 返回交易的区块浏览器链接，未配置时为空。
func (r *Registry) ExplorerURL(network, txHash string) string {
	n, ok := r.Network(network)
	if !ok {
		return ""
	}
	return n.ExplorerURL(txHash)
}

// Networks returns the list of configured network names.
func (r *Registry) Networks() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.networks))
	for name := range r.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases all readers managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, reader := range r.readers {
		if reader != nil {
			reader.Close()
		}
		delete(r.readers, name)
	}
}
