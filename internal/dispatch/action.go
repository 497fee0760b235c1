package dispatch

import (
	"context"
	"encoding/json"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/wallet"
	"Agentica/internal/web3"
)

// Action 是钱包动作名称。
type Action string

const (
	ActionBalance  Action = "balance"
	ActionTransfer Action = "transfer"
	ActionSwap     Action = "swap"
)

const (
	CodeUnsupportedAction xerrors.Code = "ACTION_UNSUPPORTED"
	CodeMissingParameter  xerrors.Code = "ACTION_MISSING_PARAMETER"
	CodeInvalidParameter  xerrors.Code = "ACTION_INVALID_PARAMETER"
	CodeSwapUnavailable   xerrors.Code = "ACTION_SWAP_UNAVAILABLE"
)

func init() {
	xerrors.Register(CodeUnsupportedAction, xerrors.Attributes{
		Message:  "unsupported action",
		Category: xerrors.CategoryInvalidInput,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeMissingParameter, xerrors.Attributes{
		Message:  "missing required parameter",
		Category: xerrors.CategoryInvalidInput,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInvalidParameter, xerrors.Attributes{
		Message:  "invalid parameter",
		Category: xerrors.CategoryInvalidInput,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeSwapUnavailable, xerrors.Attributes{
		Message:  "swap is not available",
		Category: xerrors.CategoryNotImplemented,
		Severity: xerrors.SeverityInfo,
	})
}

// ActionInfo 描述一个受支持的动作。
type ActionInfo struct {
	Name           Action   `json:"name"`
	Description    string   `json:"description"`
	RequiredParams []string `json:"required_params"`
	OptionalParams []string `json:"optional_params,omitempty"`
}

var actionRegistry = []ActionInfo{
	{
		Name:           ActionBalance,
		Description:    "Get wallet balance and address information",
		RequiredParams: []string{},
	},
	{
		Name:           ActionTransfer,
		Description:    "Send ETH transfer via smart account (gas-sponsored)",
		RequiredParams: []string{"to_address", "amount"},
	},
	{
		Name:           ActionSwap,
		Description:    "Swap tokens via DEX integration",
		RequiredParams: []string{"from_token", "to_token", "amount"},
		OptionalParams: []string{"slippage_bps"},
	},
}

// SupportedActions 返回动作注册表的副本。
func SupportedActions() []ActionInfo {
	out := make([]ActionInfo, len(actionRegistry))
	copy(out, actionRegistry)
	return out
}

func supportedActionNames() string {
	names := make([]string, len(actionRegistry))
	for i, info := range actionRegistry {
		names[i] = string(info.Name)
	}
	return strings.Join(names, ", ")
}

// Request 是解析后的动作请求。实现集合是封闭的，只有本包内的三种变体。
type Request interface {
	Action() Action
	execute(ctx context.Context, d *Dispatcher, identity *wallet.Identity) (any, error)
}

// BalanceRequest 查询托管账户地址与余额。
type BalanceRequest struct{}

// TransferRequest 从托管账户发送原生币。
type TransferRequest struct {
	ToAddress string
	Amount    string
	Value     *big.Int
}

// SwapRequest 通过聚合交易兑换代币。
type SwapRequest struct {
	FromToken   string
	ToToken     string
	Amount      string
	SlippageBps int
	// SlippageSet 为 false 时使用默认滑点。
	SlippageSet bool
}

func (BalanceRequest) Action() Action   { return ActionBalance }
func (*TransferRequest) Action() Action { return ActionTransfer }
func (*SwapRequest) Action() Action     { return ActionSwap }

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

const (
	nativeDecimals = 18
	maxSlippageBps = 10_000
)

// ParseAction 只校验动作名，未知动作返回 InvalidInput。
func ParseAction(action string) (Action, error) {
	name := Action(strings.ToLower(strings.TrimSpace(action)))
	for _, info := range actionRegistry {
		if info.Name == name {
			return name, nil
		}
	}
	return "", xerrors.Newf(CodeUnsupportedAction, "Invalid action: %s. Supported actions: %s", action, supportedActionNames())
}

// ParseRequest 校验动作名与参数，返回对应的请求变体。所有错误均属于 InvalidInput。
func ParseRequest(action string, params map[string]any) (Request, error) {
	name, err := ParseAction(action)
	if err != nil {
		return nil, err
	}
	switch name {
	case ActionTransfer:
		return parseTransfer(params)
	case ActionSwap:
		return parseSwap(params)
	default:
		return BalanceRequest{}, nil
	}
}

func parseTransfer(params map[string]any) (Request, error) {
	to, err := requiredParam(params, "to_address")
	if err != nil {
		return nil, err
	}
	if !addressPattern.MatchString(to) {
		return nil, xerrors.Newf(CodeInvalidParameter, "Invalid to_address format: %s", to)
	}
	amount, err := requiredParam(params, "amount")
	if err != nil {
		return nil, err
	}
	value, err := web3.ParseUnits(amount, nativeDecimals)
	if err != nil {
		return nil, xerrors.Wrap(CodeInvalidParameter, err, "Invalid amount")
	}
	return &TransferRequest{ToAddress: to, Amount: amount, Value: value}, nil
}

func parseSwap(params map[string]any) (Request, error) {
	from, err := requiredParam(params, "from_token")
	if err != nil {
		return nil, err
	}
	to, err := requiredParam(params, "to_token")
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(from, to) {
		return nil, xerrors.New(CodeInvalidParameter, "from_token and to_token must differ")
	}
	amount, err := requiredParam(params, "amount")
	if err != nil {
		return nil, err
	}
	if !web3.ValidAmount(amount) {
		return nil, xerrors.Newf(CodeInvalidParameter, "Invalid amount: %s", amount)
	}
	req := &SwapRequest{FromToken: from, ToToken: to, Amount: amount}

	if raw, ok := params["slippage_bps"]; ok && raw != nil {
		bps, err := intParam(raw)
		if err != nil || bps < 0 || bps > maxSlippageBps {
			return nil, xerrors.Newf(CodeInvalidParameter, "Invalid slippage_bps: must be an integer between 0 and %d", maxSlippageBps)
		}
		req.SlippageBps = bps
		req.SlippageSet = true
	}
	return req, nil
}

func requiredParam(params map[string]any, name string) (string, error) {
	raw, ok := params[name]
	if !ok || raw == nil {
		return "", xerrors.Newf(CodeMissingParameter, "Missing required parameter: %s", name)
	}
	value, ok := stringParam(raw)
	if !ok {
		return "", xerrors.Newf(CodeInvalidParameter, "Invalid parameter type: %s", name)
	}
	if value == "" {
		return "", xerrors.Newf(CodeMissingParameter, "Missing required parameter: %s", name)
	}
	return value, nil
}

// stringParam 接受字符串与 JSON 数字。
func stringParam(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}

func intParam(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, strconv.ErrSyntax
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		return int(n), err
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	default:
		return 0, strconv.ErrSyntax
	}
}
