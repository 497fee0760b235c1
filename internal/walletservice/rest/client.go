// Package rest implements walletservice.Service against the custodial wallet
// provider's v2 EVM REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/walletservice"
	"Agentica/pkg/logger"
)

const (
	defaultTimeout             = 30 * time.Second
	defaultConfirmationTimeout = 60 * time.Second
	defaultPollInterval        = time.Second
	defaultRetries             = 3
)

// Config 描述托管钱包服务的访问参数。
type Config struct {
	BaseURL             string
	APIKey              string
	WalletSecret        string
	Timeout             time.Duration
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	Retries             int
}

// Client 通过 HTTP 调用托管钱包服务。
type Client struct {
	baseURL      *url.URL
	apiKey       string
	walletSecret string
	httpClient   *http.Client
	confirmWait  time.Duration
	pollInterval time.Duration
	retries      uint
}

var _ walletservice.Service = (*Client)(nil)

// NewClient 创建客户端。
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "wallet service base_url 未配置")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "wallet service api_key 未配置")
	}
	parsed, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析 wallet service 地址失败")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = defaultConfirmationTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Retries <= 0 {
		cfg.Retries = defaultRetries
	}
	return &Client{
		baseURL:      parsed,
		apiKey:       cfg.APIKey,
		walletSecret: cfg.WalletSecret,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		confirmWait:  cfg.ConfirmationTimeout,
		pollInterval: cfg.PollInterval,
		retries:      uint(cfg.Retries),
	}, nil
}

// APIError 表示服务端返回的错误。
type APIError struct {
	StatusCode int
	Code       string `json:"errorType"`
	Message    string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("wallet service error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("wallet service error (%d): %s", e.StatusCode, e.Message)
}

type accountPayload struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type smartAccountPayload struct {
	Name    string   `json:"name,omitempty"`
	Address string   `json:"address"`
	Owners  []string `json:"owners"`
}

type callPayload struct {
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

type userOperationRequest struct {
	Network   string        `json:"network"`
	Calls     []callPayload `json:"calls"`
	Sponsored bool          `json:"sponsored"`
}

type userOperationPayload struct {
	UserOpHash      string `json:"userOpHash"`
	Status          string `json:"status"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

type swapRequest struct {
	Network     string `json:"network"`
	FromToken   string `json:"fromToken"`
	ToToken     string `json:"toToken"`
	FromAmount  string `json:"fromAmount"`
	SlippageBps int    `json:"slippageBps"`
}

// GetOrCreateAccount 按名称查找所有者账户，不存在时创建。
func (c *Client) GetOrCreateAccount(ctx context.Context, name string) (*walletservice.Account, error) {
	if err := checkAccountName(name); err != nil {
		return nil, err
	}
	op := func() (*walletservice.Account, error) {
		var payload accountPayload
		err := c.get(ctx, "/v2/evm/accounts/by-name/"+url.PathEscape(name), &payload)
		if err == nil {
			return &walletservice.Account{Name: payload.Name, Address: payload.Address}, nil
		}
		if !isStatus(err, http.StatusNotFound) {
			return nil, classifyForRetry(err)
		}
		err = c.post(ctx, "/v2/evm/accounts", accountPayload{Name: name}, &payload)
		if err != nil {
			// 并发创建时对端返回 409，下一轮重试会查到已存在的账户。
			if isStatus(err, http.StatusConflict) {
				return nil, err
			}
			return nil, classifyForRetry(err)
		}
		return &walletservice.Account{Name: payload.Name, Address: payload.Address}, nil
	}
	account, err := retry(ctx, c, "get_or_create_account", op)
	if err != nil {
		return nil, wrapError(err, "获取或创建所有者账户失败")
	}
	return account, nil
}

// GetOrCreateCustodialAccount 按名称查找托管账户，不存在时以 owner 为所有者创建。
func (c *Client) GetOrCreateCustodialAccount(ctx context.Context, name string, owner *walletservice.Account) (*walletservice.CustodialAccount, error) {
	if err := checkAccountName(name); err != nil {
		return nil, err
	}
	if owner == nil || owner.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "所有者账户不能为空")
	}
	op := func() (*walletservice.CustodialAccount, error) {
		var payload smartAccountPayload
		err := c.get(ctx, "/v2/evm/smart-accounts/by-name/"+url.PathEscape(name), &payload)
		if err == nil {
			return &walletservice.CustodialAccount{Name: name, Address: payload.Address, Owner: *owner}, nil
		}
		if !isStatus(err, http.StatusNotFound) {
			return nil, classifyForRetry(err)
		}
		body := smartAccountPayload{Name: name, Owners: []string{owner.Address}}
		if err := c.post(ctx, "/v2/evm/smart-accounts", body, &payload); err != nil {
			if isStatus(err, http.StatusConflict) {
				return nil, err
			}
			return nil, classifyForRetry(err)
		}
		return &walletservice.CustodialAccount{Name: name, Address: payload.Address, Owner: *owner}, nil
	}
	account, err := retry(ctx, c, "get_or_create_custodial_account", op)
	if err != nil {
		return nil, wrapError(err, "获取或创建托管账户失败")
	}
	return account, nil
}

// checkAccountName 对端要求账户名不超过 36 个字符。
func checkAccountName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "账户名称不能为空")
	}
	if len(name) > walletservice.MaxAccountNameLength {
		return xerrors.Newf(xerrors.CodeInvalidArgument, "账户名称 %s 超过 %d 个字符", name, walletservice.MaxAccountNameLength)
	}
	return nil
}

// SubmitValueTransfer 以代付方式提交原生币转账。
func (c *Client) SubmitValueTransfer(ctx context.Context, account *walletservice.CustodialAccount, network, to string, value *big.Int) (*walletservice.Operation, error) {
	return c.submitCalls(ctx, account, network, []walletservice.Call{{To: to, Value: value}})
}

// SubmitContractCall 以代付方式提交合约调用。
func (c *Client) SubmitContractCall(ctx context.Context, account *walletservice.CustodialAccount, network string, call walletservice.Call) (*walletservice.Operation, error) {
	return c.submitCalls(ctx, account, network, []walletservice.Call{call})
}

func (c *Client) submitCalls(ctx context.Context, account *walletservice.CustodialAccount, network string, calls []walletservice.Call) (*walletservice.Operation, error) {
	if account == nil || account.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "托管账户不能为空")
	}
	req := userOperationRequest{Network: network, Sponsored: true}
	for _, call := range calls {
		value := "0"
		if call.Value != nil {
			value = call.Value.String()
		}
		data := "0x"
		if len(call.Data) > 0 {
			data = hexutil.Encode(call.Data)
		}
		req.Calls = append(req.Calls, callPayload{To: call.To, Value: value, Data: data})
	}

	var payload userOperationPayload
	endpoint := path.Join("/v2/evm/smart-accounts", url.PathEscape(account.Address), "user-operations")
	if err := c.post(ctx, endpoint, req, &payload); err != nil {
		return nil, wrapError(err, "提交托管账户操作失败")
	}
	return &walletservice.Operation{Hash: payload.UserOpHash, Status: normalizeStatus(payload.Status)}, nil
}

// SubmitSwap 通过服务端聚合交易能力提交兑换。
func (c *Client) SubmitSwap(ctx context.Context, account *walletservice.CustodialAccount, req walletservice.SwapRequest) (*walletservice.Operation, error) {
	if account == nil || account.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "托管账户不能为空")
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "兑换数量必须大于 0")
	}
	body := swapRequest{
		Network:     req.Network,
		FromToken:   req.FromToken,
		ToToken:     req.ToToken,
		FromAmount:  req.Amount.String(),
		SlippageBps: req.SlippageBps,
	}
	var payload userOperationPayload
	endpoint := path.Join("/v2/evm/smart-accounts", url.PathEscape(account.Address), "swaps")
	if err := c.post(ctx, endpoint, body, &payload); err != nil {
		return nil, wrapError(err, "提交兑换失败")
	}
	return &walletservice.Operation{Hash: payload.UserOpHash, Status: normalizeStatus(payload.Status)}, nil
}

var errStillPending = stdErrors.New("operation still pending")

// AwaitConfirmation 轮询操作状态直至终态或超过确认等待上限。
func (c *Client) AwaitConfirmation(ctx context.Context, account *walletservice.CustodialAccount, operationHash string) (*walletservice.Receipt, error) {
	if account == nil || account.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "托管账户不能为空")
	}
	endpoint := path.Join("/v2/evm/smart-accounts", url.PathEscape(account.Address), "user-operations", url.PathEscape(operationHash))

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.pollInterval
	policy.MaxInterval = c.pollInterval * 5

	op := func() (*walletservice.Receipt, error) {
		var payload userOperationPayload
		if err := c.get(ctx, endpoint, &payload); err != nil {
			return nil, classifyForRetry(err)
		}
		status := normalizeStatus(payload.Status)
		if !status.IsTerminal() {
			return nil, errStillPending
		}
		receipt := &walletservice.Receipt{OperationHash: payload.UserOpHash, Status: status}
		if receipt.OperationHash == "" {
			receipt.OperationHash = operationHash
		}
		if status == walletservice.OperationComplete {
			receipt.TransactionHash = payload.TransactionHash
		}
		return receipt, nil
	}

	receipt, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(c.confirmWait),
	)
	if err != nil {
		if stdErrors.Is(err, errStillPending) || stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "等待操作确认超时")
		}
		return nil, wrapError(err, "查询操作状态失败")
	}
	return receipt, nil
}

func retry[T any](ctx context.Context, c *Client, name string, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.retries),
		backoff.WithNotify(retryNotifier(name)),
	)
}

func retryNotifier(name string) backoff.Notify {
	return func(err error, wait time.Duration) {
		logger.L().Warn("wallet service 调用失败，准备重试",
			slog.String("operation", name),
			slog.Duration("backoff", wait),
			slog.Any("error", err),
		)
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if c.walletSecret != "" {
		req.Header.Set("X-Wallet-Auth", c.walletSecret)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isStatus(err error, status int) bool {
	var apiErr *APIError
	return stdErrors.As(err, &apiErr) && apiErr.StatusCode == status
}

// classifyForRetry 将 4xx 错误标记为不可重试。
func classifyForRetry(err error) error {
	var apiErr *APIError
	if stdErrors.As(err, &apiErr) && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

func wrapError(err error, message string) error {
	if _, ok := xerrors.From(err); ok {
		return err
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, message)
	}
	var apiErr *APIError
	if stdErrors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, message)
	}
	return xerrors.Wrap(walletservice.CodeServiceError, err, message)
}

func normalizeStatus(raw string) walletservice.OperationStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "complete", "completed", "confirmed", "success":
		return walletservice.OperationComplete
	case "failed", "reverted", "dropped":
		return walletservice.OperationFailed
	case "broadcast", "submitted", "signed":
		return walletservice.OperationBroadcast
	default:
		return walletservice.OperationPending
	}
}
