// Package agentica is a thin Go client for the Agentica platform REST API.
package agentica

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Room creation waits on the strategy model and the agent runtime, so it is
// longer than a typical API call.
const DefaultHTTPTimeout = 90 * time.Second

// Client wraps the HTTP interactions with the Agentica API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAPIKey sends the key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// Wallet is the identity bound to a room.
type Wallet struct {
	RoomID                  string `json:"room_id"`
	OwnerAccountName        string `json:"owner_account_name"`
	OwnerAddress            string `json:"owner_address"`
	CustodialAccountAddress string `json:"custodial_account_address"`
	Network                 string `json:"network"`
}

// Outcome is the result of a wallet action.
type Outcome struct {
	Success       bool            `json:"success"`
	Action        string          `json:"action"`
	RoomID        string          `json:"room_id"`
	TransactionID string          `json:"transaction_id"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Transaction is one ledger entry.
type Transaction struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Action    string          `json:"action"`
	Params    map[string]any  `json:"params,omitempty"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TransactionPage is a page of ledger history.
type TransactionPage struct {
	RoomID       string         `json:"room_id"`
	Transactions []*Transaction `json:"transactions"`
	Total        int            `json:"total"`
	Limit        int            `json:"limit"`
	Offset       int            `json:"offset"`
}

// ListOptions filters and paginates transaction history. Zero values use
// the server defaults.
type ListOptions struct {
	Limit  int
	Offset int
	Status string
}

// AgentInput describes a new agent.
type AgentInput struct {
	UserID         string         `json:"user_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	AdvancedConfig map[string]any `json:"advanced_config,omitempty"`
}

// Agent is a user owned agent.
type Agent struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	RemoteAgentID string    `json:"remote_agent_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RoomInput describes a new portfolio room.
type RoomInput struct {
	UserID      string   `json:"user_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Prompt      string   `json:"prompt"`
	Frequency   string   `json:"frequency"`
	AgentIDs    []string `json:"agent_ids,omitempty"`
}

// Room is a created portfolio room.
type Room struct {
	ID                      string    `json:"id"`
	UserID                  string    `json:"user_id"`
	Name                    string    `json:"name"`
	Description             string    `json:"description"`
	RemoteRoomID            string    `json:"remote_room_id"`
	StrategyAgentID         string    `json:"strategy_agent_id"`
	WalletAddress           string    `json:"wallet_address"`
	CustodialAccountAddress string    `json:"custodial_account_address"`
	UserPrompt              string    `json:"user_prompt"`
	GeneratedContent        string    `json:"generated_content"`
	Frequency               string    `json:"frequency"`
	Status                  string    `json:"status"`
	CreatedAt               time.Time `json:"created_at"`
}

// RuntimeRoom is a room as reported by the agent runtime.
type RuntimeRoom struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	AgentIDs    []string `json:"agent_ids"`
}

// MessageResult acknowledges a relayed message.
type MessageResult struct {
	Success     bool   `json:"success"`
	MessageID   string `json:"message_id"`
	RoomID      string `json:"room_id"`
	Content     string `json:"content"`
	SubmittedAt string `json:"submitted_at"`
}

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error_code"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentica api error (%d): %s - %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("agentica api error (%d): %s", e.StatusCode, e.Detail)
}

// NewClient instantiates a client for the Agentica API.
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	c := &Client{baseURL: parsed, httpClient: &http.Client{Timeout: DefaultHTTPTimeout}}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Health reports the service status.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	if err := c.call(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProvisionWallet creates the wallet bound to roomID.
func (c *Client) ProvisionWallet(ctx context.Context, roomID string) (*Wallet, error) {
	var out Wallet
	if err := c.call(ctx, http.MethodPost, "/wallets", nil, map[string]string{"room_id": roomID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Dispatch runs a wallet action (balance, transfer or swap) for the room.
func (c *Client) Dispatch(ctx context.Context, roomID, action string, params map[string]any) (*Outcome, error) {
	if params == nil {
		params = map[string]any{}
	}
	var out Outcome
	endpoint := "/wallets/" + url.PathEscape(roomID) + "/" + url.PathEscape(action)
	if err := c.call(ctx, http.MethodPost, endpoint, nil, map[string]any{"params": params}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WalletTransactions lists the ledger history of a wallet.
func (c *Client) WalletTransactions(ctx context.Context, roomID string, opts ListOptions) (*TransactionPage, error) {
	var out TransactionPage
	endpoint := "/wallets/" + url.PathEscape(roomID) + "/transactions"
	if err := c.call(ctx, http.MethodGet, endpoint, opts.query(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAgent creates an agent owned by input.UserID.
func (c *Client) CreateAgent(ctx context.Context, input AgentInput) (*Agent, error) {
	var out struct {
		Agent *Agent `json:"agent"`
	}
	if err := c.call(ctx, http.MethodPost, "/agents", nil, input, &out); err != nil {
		return nil, err
	}
	return out.Agent, nil
}

// ListAgents lists the agents owned by userID, newest first.
func (c *Client) ListAgents(ctx context.Context, userID string) ([]*Agent, error) {
	var out struct {
		Agents []*Agent `json:"agents"`
	}
	if err := c.call(ctx, http.MethodGet, "/agents", url.Values{"user_id": {userID}}, nil, &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

// DeleteAgent deletes an agent after the server verifies ownership.
func (c *Client) DeleteAgent(ctx context.Context, agentID, userID string) error {
	return c.call(ctx, http.MethodDelete, "/agents/"+url.PathEscape(agentID), url.Values{"user_id": {userID}}, nil, nil)
}

// CreateRoom creates a portfolio room.
func (c *Client) CreateRoom(ctx context.Context, input RoomInput) (*Room, error) {
	var out struct {
		Room *Room `json:"room"`
	}
	if err := c.call(ctx, http.MethodPost, "/rooms", nil, input, &out); err != nil {
		return nil, err
	}
	return out.Room, nil
}

// ListRooms lists the runtime rooms that include one of the user's agents.
func (c *Client) ListRooms(ctx context.Context, userID string) ([]RuntimeRoom, error) {
	var out struct {
		Rooms []RuntimeRoom `json:"rooms"`
	}
	if err := c.call(ctx, http.MethodGet, "/rooms", url.Values{"user_id": {userID}}, nil, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

// SendMessage relays a message into a runtime room.
func (c *Client) SendMessage(ctx context.Context, roomID, content string, metadata map[string]any) (*MessageResult, error) {
	var out MessageResult
	body := map[string]any{"content": content}
	if metadata != nil {
		body["metadata"] = metadata
	}
	if err := c.call(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/messages", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RoomTransactions lists the ledger history of a room.
func (c *Client) RoomTransactions(ctx context.Context, roomID string, opts ListOptions) (*TransactionPage, error) {
	var out TransactionPage
	endpoint := "/rooms/" + url.PathEscape(roomID) + "/transactions"
	if err := c.call(ctx, http.MethodGet, endpoint, opts.query(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	return q
}

func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	u := c.baseURL.ResolveReference(&url.URL{Path: path.Join(c.baseURL.Path, endpoint)})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Detail == "" {
			apiErr.Detail = string(bytes.TrimSpace(data))
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
