package web3

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ChainReader defines the read-only chain access that wallet actions use to
// enrich their results. Implementations must be safe for concurrent use.
type ChainReader interface {
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error)
	TokenDecimals(ctx context.Context, token common.Address) (int32, error)
	Close()
}

// Network describes a configured EVM network.
type Network struct {
	Name          string
	ChainID       int64
	ExplorerTxURL string
}

// ExplorerURL renders the block explorer link for a transaction hash.
func (n Network) ExplorerURL(txHash string) string {
	if n.ExplorerTxURL == "" || txHash == "" {
		return ""
	}
	if strings.Contains(n.ExplorerTxURL, "%s") {
		return fmt.Sprintf(n.ExplorerTxURL, txHash)
	}
	return strings.TrimRight(n.ExplorerTxURL, "/") + "/" + txHash
}
