package web3

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "Agentica/internal/errors"
)

const (
	CodeNetworkUnsupported xerrors.Code = "WEB3_NETWORK_UNSUPPORTED"
	CodeUnknownToken       xerrors.Code = "WEB3_UNKNOWN_TOKEN"
)

func init() {
	xerrors.Register(CodeNetworkUnsupported, xerrors.Attributes{
		Message:  "network has no token table",
		Category: xerrors.CategoryNotImplemented,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeUnknownToken, xerrors.Attributes{
		Message:  "unknown token",
		Category: xerrors.CategoryInvalidInput,
		Severity: xerrors.SeverityInfo,
	})
}

// Token 是解析后的代币。DecimalsKnown 为 false 时表示直接传入的未登记地址。
type Token struct {
	Symbol        string         `json:"symbol,omitempty"`
	Address       common.Address `json:"address"`
	Decimals      int32          `json:"decimals"`
	DecimalsKnown bool           `json:"-"`
	Native        bool           `json:"native"`
}

type networkTokens struct {
	native    Token
	bySymbol  map[string]Token
	byAddress map[common.Address]Token
}

// TokenRegistry 按网络解析代币符号或地址。构建后只读，可并发使用。
type TokenRegistry struct {
	nativeSentinel    common.Address
	allowanceContract common.Address
	networks          map[string]networkTokens
}

// NewTokenRegistry 校验代币表并建立索引。
func NewTokenRegistry(table TokenTable) (*TokenRegistry, error) {
	if !common.IsHexAddress(table.NativeSentinel) {
		return nil, fmt.Errorf("native_sentinel 不是合法地址: %q", table.NativeSentinel)
	}
	if !common.IsHexAddress(table.AllowanceContract) {
		return nil, fmt.Errorf("allowance_contract 不是合法地址: %q", table.AllowanceContract)
	}
	sentinel := common.HexToAddress(table.NativeSentinel)
	registry := &TokenRegistry{
		nativeSentinel:    sentinel,
		allowanceContract: common.HexToAddress(table.AllowanceContract),
		networks:          make(map[string]networkTokens, len(table.Networks)),
	}

	for name, def := range table.Networks {
		native := Token{
			Symbol:        strings.ToUpper(strings.TrimSpace(def.Native.Symbol)),
			Address:       sentinel,
			Decimals:      def.Native.Decimals,
			DecimalsKnown: true,
			Native:        true,
		}
		if native.Symbol == "" {
			native.Symbol = "ETH"
		}
		if native.Decimals == 0 {
			native.Decimals = 18
		}
		entry := networkTokens{
			native:    native,
			bySymbol:  map[string]Token{native.Symbol: native},
			byAddress: map[common.Address]Token{sentinel: native},
		}
		for _, tok := range def.Tokens {
			symbol := strings.ToUpper(strings.TrimSpace(tok.Symbol))
			if symbol == "" {
				return nil, fmt.Errorf("网络 %s 存在未命名的代币", name)
			}
			if !common.IsHexAddress(tok.Address) {
				return nil, fmt.Errorf("网络 %s 代币 %s 地址不合法: %q", name, symbol, tok.Address)
			}
			if tok.Decimals < 0 || tok.Decimals > 36 {
				return nil, fmt.Errorf("网络 %s 代币 %s 精度不合法: %d", name, symbol, tok.Decimals)
			}
			token := Token{
				Symbol:        symbol,
				Address:       common.HexToAddress(tok.Address),
				Decimals:      tok.Decimals,
				DecimalsKnown: true,
			}
			entry.bySymbol[symbol] = token
			entry.byAddress[token.Address] = token
		}
		registry.networks[name] = entry
	}
	return registry, nil
}

// NativeSentinel 返回代表原生币的占位地址。
func (r *TokenRegistry) NativeSentinel() common.Address {
	return r.nativeSentinel
}

// AllowanceContract 返回授权合约地址，兑换前需对其 approve。
func (r *TokenRegistry) AllowanceContract() common.Address {
	return r.allowanceContract
}

// Supports 判断网络是否有代币表。
func (r *TokenRegistry) Supports(network string) bool {
	if r == nil {
		return false
	}
	_, ok := r.networks[network]
	return ok
}

// Resolve 将符号或地址解析为代币。已登记地址返回登记信息，
// 未登记的地址原样透传，精度标记为未知。
func (r *TokenRegistry) Resolve(network, ref string) (Token, error) {
	entry, ok := r.networks[network]
	if !ok {
		return Token{}, xerrors.Newf(CodeNetworkUnsupported, "network %s has no token table", network)
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Token{}, xerrors.New(xerrors.CodeInvalidArgument, "token must not be empty")
	}

	if strings.HasPrefix(ref, "0x") || strings.HasPrefix(ref, "0X") {
		if !common.IsHexAddress(ref) {
			return Token{}, xerrors.Newf(xerrors.CodeInvalidArgument, "invalid token address: %s", ref)
		}
		addr := common.HexToAddress(ref)
		if tok, ok := entry.byAddress[addr]; ok {
			return tok, nil
		}
		return Token{Address: addr}, nil
	}

	if tok, ok := entry.bySymbol[strings.ToUpper(ref)]; ok {
		return tok, nil
	}
	return Token{}, xerrors.Newf(CodeUnknownToken, "unknown token symbol %s on %s", ref, network)
}

// Symbols 返回网络上登记的代币符号。
func (r *TokenRegistry) Symbols(network string) []string {
	entry, ok := r.networks[network]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(entry.bySymbol))
	for symbol := range entry.bySymbol {
		out = append(out, symbol)
	}
	return out
}

// Tokens 返回网络上登记的非原生代币，按符号排序。
func (r *TokenRegistry) Tokens(network string) []Token {
	if r == nil {
		return nil
	}
	entry, ok := r.networks[network]
	if !ok {
		return nil
	}
	out := make([]Token, 0, len(entry.bySymbol))
	for _, tok := range entry.bySymbol {
		if !tok.Native {
			out = append(out, tok)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
