// Package rest implements agentruntime.Runtime over the runtime's HTTP API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"Agentica/internal/agentruntime"
	xerrors "Agentica/internal/errors"
	"Agentica/pkg/logger"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultBaseURLEnv = "ELIZA_SERVER_URL"
	listRetries       = 3
)

// Config 描述运行时的访问方式。BaseURL 为空时每次调用前读取 BaseURLEnv。
type Config struct {
	BaseURL    string
	BaseURLEnv string
	Timeout    time.Duration
	// Getenv 用于读取环境变量，默认 os.Getenv。
	Getenv func(string) string
}

// Client 通过 HTTP 调用代理运行时。
type Client struct {
	baseURL    string
	baseURLEnv string
	getenv     func(string) string
	httpClient *http.Client
}

var _ agentruntime.Runtime = (*Client)(nil)

// NewClient 创建客户端。地址缺失不会在此报错，而是在调用时返回 UpstreamUnavailable。
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BaseURLEnv == "" {
		cfg.BaseURLEnv = defaultBaseURLEnv
	}
	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}
	return &Client{
		baseURL:    strings.TrimSpace(cfg.BaseURL),
		baseURLEnv: cfg.BaseURLEnv,
		getenv:     cfg.Getenv,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// CreateAgent 创建远端代理并返回其 ID。
func (c *Client) CreateAgent(ctx context.Context, character *agentruntime.Character) (string, error) {
	var body map[string]any
	if err := c.call(ctx, http.MethodPost, "/api/agents", map[string]any{"characterJson": character}, &body); err != nil {
		return "", err
	}
	id := extractID(body, "id", "agentId")
	if id == "" {
		return "", xerrors.Newf(agentruntime.CodeRuntimeError, "agent runtime did not return agent ID. Response: %v", body)
	}
	return id, nil
}

// StartAgent 启动代理。
func (c *Client) StartAgent(ctx context.Context, agentID string) error {
	return c.call(ctx, http.MethodPost, "/api/agents/"+url.PathEscape(agentID)+"/start", nil, nil)
}

// StopAgent 停止代理。
func (c *Client) StopAgent(ctx context.Context, agentID string) error {
	return c.call(ctx, http.MethodPost, "/api/agents/"+url.PathEscape(agentID)+"/stop", nil, nil)
}

// DeleteAgent 删除代理。
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	return c.call(ctx, http.MethodDelete, "/api/agents/"+url.PathEscape(agentID), nil, nil)
}

// CreateRoom 创建远端房间并返回其 ID。
func (c *Client) CreateRoom(ctx context.Context, spec agentruntime.RoomSpec) (string, error) {
	var body map[string]any
	if err := c.call(ctx, http.MethodPost, "/api/rooms", spec, &body); err != nil {
		return "", err
	}
	id := extractID(body, "id", "roomId")
	if id == "" {
		return "", xerrors.Newf(agentruntime.CodeRuntimeError, "agent runtime did not return room ID. Response: %v", body)
	}
	return id, nil
}

// ListRooms 返回运行时中的全部房间。
func (c *Client) ListRooms(ctx context.Context) ([]agentruntime.Room, error) {
	if _, err := c.resolveBaseURL(); err != nil {
		return nil, err
	}
	body, err := backoff.Retry(ctx, func() (any, error) {
		var out any
		if err := c.call(ctx, http.MethodGet, "/api/rooms", nil, &out); err != nil {
			if !retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return out, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(listRetries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.L().Warn("查询运行时房间失败，准备重试", slog.Duration("backoff", wait), slog.Any("error", err))
		}),
	)
	if err != nil {
		return nil, err
	}
	return decodeRooms(body), nil
}

// SubmitMessage 向房间频道投递消息。
func (c *Client) SubmitMessage(ctx context.Context, msg agentruntime.Message) (*agentruntime.MessageReceipt, error) {
	var body map[string]any
	if err := c.call(ctx, http.MethodPost, "/api/messaging/submit", msg, &body); err != nil {
		return nil, err
	}
	return &agentruntime.MessageReceipt{
		ID:        extractID(body, "id", "messageId"),
		CreatedAt: firstString(body, "created_at", "createdAt"),
	}, nil
}

func (c *Client) resolveBaseURL() (string, error) {
	base := c.baseURL
	if base == "" {
		base = strings.TrimSpace(c.getenv(c.baseURLEnv))
	}
	if base == "" {
		return "", xerrors.Newf(xerrors.CodeUpstreamUnavailable,
			"%s environment variable not set. Please set it to your agent runtime URL", c.baseURLEnv)
	}
	return strings.TrimRight(base, "/"), nil
}

func (c *Client) call(ctx context.Context, method, endpoint string, payload any, out any) error {
	base, err := c.resolveBaseURL()
	if err != nil {
		return err
	}

	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInternal, err, "encode agent runtime request")
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+endpoint, reader)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInternal, err, "create agent runtime request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return xerrors.Wrap(xerrors.CodeTimeout, err, "Failed to communicate with agent runtime")
		}
		return xerrors.Wrap(agentruntime.CodeRuntimeError, err, "Failed to communicate with agent runtime")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return xerrors.New(agentruntime.CodeRuntimeError,
			fmt.Sprintf("agent runtime API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(data))),
			xerrors.WithMetadata("status", strconv.Itoa(resp.StatusCode)),
		)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !stdErrors.Is(err, io.EOF) {
		return xerrors.Wrap(agentruntime.CodeRuntimeError, err, "decode agent runtime response")
	}
	return nil
}

// retryable 只重试传输错误与 5xx。
func retryable(err error) bool {
	e, ok := xerrors.From(err)
	if !ok || !e.Retryable() {
		return false
	}
	return !strings.HasPrefix(e.Metadata()["status"], "4")
}

// extractID 依次尝试顶层与 data 下的候选字段。
func extractID(body map[string]any, keys ...string) string {
	if id := firstString(body, keys...); id != "" {
		return id
	}
	if data, ok := body["data"].(map[string]any); ok {
		return firstString(data, keys...)
	}
	return ""
}

func firstString(body map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := body[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

// decodeRooms 兼容 {rooms: [...]}、{data: [...]} 与裸数组三种格式。
func decodeRooms(body any) []agentruntime.Room {
	var items []any
	switch v := body.(type) {
	case []any:
		items = v
	case map[string]any:
		if rooms, ok := v["rooms"].([]any); ok {
			items = rooms
		} else if data, ok := v["data"].([]any); ok {
			items = data
		}
	}

	rooms := make([]agentruntime.Room, 0, len(items))
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		room := agentruntime.Room{
			ID:          firstString(raw, "id"),
			Name:        firstString(raw, "name"),
			Description: firstString(raw, "description"),
			CreatedAt:   firstString(raw, "created_at", "createdAt"),
		}
		for _, key := range []string{"agentIds", "agent_ids"} {
			if ids, ok := raw[key].([]any); ok && len(ids) > 0 {
				for _, id := range ids {
					if s, ok := id.(string); ok {
						room.AgentIDs = append(room.AgentIDs, s)
					}
				}
				break
			}
		}
		if room.AgentIDs == nil {
			room.AgentIDs = []string{}
		}
		rooms = append(rooms, room)
	}
	return rooms
}
