package agent

import (
	"regexp"
	"strings"
	"time"

	"Agentica/internal/agentruntime"
	xerrors "Agentica/internal/errors"
)

// Status 表示本地代理记录的状态。
type Status string

const (
	StatusActive  Status = "active"
	StatusStopped Status = "stopped"
)

// Agent 是远端代理的本地镜像。
type Agent struct {
	ID              string                  `json:"id"`
	UserID          string                  `json:"user_id"`
	RemoteAgentID   string                  `json:"remote_agent_id"`
	Name            string                  `json:"name"`
	Description     string                  `json:"description"`
	CharacterConfig *agentruntime.Character `json:"-"`
	AdvancedConfig  map[string]any          `json:"-"`
	Status          Status                  `json:"status"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

func (a *Agent) clone() *Agent {
	if a == nil {
		return nil
	}
	c := *a
	if a.AdvancedConfig != nil {
		c.AdvancedConfig = make(map[string]any, len(a.AdvancedConfig))
		for k, v := range a.AdvancedConfig {
			c.AdvancedConfig[k] = v
		}
	}
	return &c
}

const (
	minNameLength        = 3
	maxNameLength        = 50
	minDescriptionLength = 10
	maxDescriptionLength = 500
	maxUserIDLength      = 255
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-_]+$`)

// ValidateUserID 校验调用方身份。
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "user_id is required and must be a non-empty string")
	}
	if len(userID) > maxUserIDLength {
		return xerrors.New(xerrors.CodeInvalidArgument, "user_id must be 255 characters or less")
	}
	return nil
}

// ValidateInput 校验代理创建参数，名称与描述按去除首尾空白后的长度计算。
func ValidateInput(name, description, userID string) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}

	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return xerrors.New(xerrors.CodeInvalidArgument, "name is required and must be a string")
	case len(name) < minNameLength:
		return xerrors.New(xerrors.CodeInvalidArgument, "name must be at least 3 characters long")
	case len(name) > maxNameLength:
		return xerrors.New(xerrors.CodeInvalidArgument, "name must be 50 characters or less")
	case !namePattern.MatchString(name):
		return xerrors.New(xerrors.CodeInvalidArgument, "name can only contain letters, numbers, spaces, hyphens, and underscores")
	}

	description = strings.TrimSpace(description)
	switch {
	case description == "":
		return xerrors.New(xerrors.CodeInvalidArgument, "description is required and must be a string")
	case len(description) < minDescriptionLength:
		return xerrors.New(xerrors.CodeInvalidArgument, "description must be at least 10 characters long")
	case len(description) > maxDescriptionLength:
		return xerrors.New(xerrors.CodeInvalidArgument, "description must be 500 characters or less")
	}
	return nil
}

const (
	CodeAgentNotFound xerrors.Code = "AGENT_NOT_FOUND"
	CodeAgentExists   xerrors.Code = "AGENT_EXISTS"
)

var (
	// ErrAgentNotFound 同时覆盖记录不存在与不属于调用方两种情况。
	ErrAgentNotFound = xerrors.New(CodeAgentNotFound, "Agent not found or you don't have permission to delete it")
	// ErrAgentExists 表示远端代理已有本地镜像。
	ErrAgentExists = xerrors.New(CodeAgentExists, "agent already registered")
)

func init() {
	xerrors.Register(CodeAgentNotFound, xerrors.Attributes{
		Message:  "agent not found",
		Category: xerrors.CategoryNotFound,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeAgentExists, xerrors.Attributes{
		Message:  "agent already registered",
		Category: xerrors.CategoryConflict,
		Severity: xerrors.SeverityInfo,
	})
}
