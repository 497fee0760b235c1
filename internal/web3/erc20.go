package web3

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("解析 ERC-20 ABI 失败: %v", err))
	}
	return parsed
}

// EncodeApprove 编码 approve(spender, amount) 调用数据。
func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("授权数量不合法")
	}
	return erc20ABI.Pack("approve", spender, amount)
}

// EncodeBalanceOf 编码 balanceOf(account) 调用数据。
func EncodeBalanceOf(account common.Address) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", account)
}

// EncodeDecimals 编码 decimals() 调用数据。
func EncodeDecimals() ([]byte, error) {
	return erc20ABI.Pack("decimals")
}

// DecodeBalanceOf 解析 balanceOf 的返回值。
func DecodeBalanceOf(data []byte) (*big.Int, error) {
	out, err := erc20ABI.Unpack("balanceOf", data)
	if err != nil {
		return nil, fmt.Errorf("解析 balanceOf 返回值失败: %w", err)
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf 返回值类型异常: %T", out[0])
	}
	return value, nil
}

// DecodeDecimals 解析 decimals 的返回值。
func DecodeDecimals(data []byte) (int32, error) {
	out, err := erc20ABI.Unpack("decimals", data)
	if err != nil {
		return 0, fmt.Errorf("解析 decimals 返回值失败: %w", err)
	}
	value, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals 返回值类型异常: %T", out[0])
	}
	return int32(value), nil
}
