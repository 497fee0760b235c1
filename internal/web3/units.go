package web3

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	xerrors "Agentica/internal/errors"
)

var amountPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ValidAmount 判断字符串是否为非负十进制数。
func ValidAmount(amount string) bool {
	return amountPattern.MatchString(strings.TrimSpace(amount))
}

// ParseUnits 将十进制数量转换为最小单位，精度超出 decimals 时报错。
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if !amountPattern.MatchString(amount) {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "invalid amount: %s", amount)
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid amount")
	}
	if value.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "amount must be greater than 0")
	}
	scaled := value.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "amount %s has more than %d decimal places", amount, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits 将最小单位转换为十进制字符串。
func FormatUnits(value *big.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -decimals).String()
}

// MultiplyAmount 返回 value * factor。
func MultiplyAmount(value *big.Int, factor int64) *big.Int {
	return new(big.Int).Mul(value, big.NewInt(factor))
}
