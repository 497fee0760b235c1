package room

import (
	"strings"
	"time"

	xerrors "Agentica/internal/errors"
)

// Status 表示房间状态。
type Status string

const StatusActive Status = "active"

// Room 是建房流程最终写入的房间记录。
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
	Status                  Status    `json:"status"`
	CreatedAt               time.Time `json:"created_at"`
}

func (r *Room) clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// CreateRequest 描述一次建房请求。AgentIDs 为需要加入房间的已有本地代理。
type CreateRequest struct {
	UserID      string   `json:"user_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Prompt      string   `json:"prompt"`
	Frequency   string   `json:"frequency"`
	AgentIDs    []string `json:"agent_ids,omitempty"`
}

// Validate 校验建房参数。
func (r CreateRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.UserID) == "":
		return xerrors.New(xerrors.CodeInvalidArgument, "user_id is required and must be a non-empty string")
	case strings.TrimSpace(r.Name) == "":
		return xerrors.New(xerrors.CodeInvalidArgument, "name is required")
	case len(r.Name) > 100:
		return xerrors.New(xerrors.CodeInvalidArgument, "name must be 100 characters or less")
	case len(r.Description) > 500:
		return xerrors.New(xerrors.CodeInvalidArgument, "description must be 500 characters or less")
	case len(strings.TrimSpace(r.Prompt)) < 10:
		return xerrors.New(xerrors.CodeInvalidArgument, "prompt must be at least 10 characters long")
	case len(r.Prompt) > 1000:
		return xerrors.New(xerrors.CodeInvalidArgument, "prompt must be 1000 characters or less")
	case strings.TrimSpace(r.Frequency) == "":
		return xerrors.New(xerrors.CodeInvalidArgument, "frequency is required")
	}
	return nil
}

const (
	CodeRoomNotFound xerrors.Code = "ROOM_NOT_FOUND"
	CodeRoomExists   xerrors.Code = "ROOM_EXISTS"
)

var (
	// ErrRoomNotFound 表示房间不存在。
	ErrRoomNotFound = xerrors.New(CodeRoomNotFound, "room not found")
	// ErrRoomExists 表示房间 ID 冲突。
	ErrRoomExists = xerrors.New(CodeRoomExists, "room already exists")
)

func init() {
	xerrors.Register(CodeRoomNotFound, xerrors.Attributes{
		Message:  "room not found",
		Category: xerrors.CategoryNotFound,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeRoomExists, xerrors.Attributes{
		Message:  "room already exists",
		Category: xerrors.CategoryConflict,
		Severity: xerrors.SeverityWarning,
	})
}
