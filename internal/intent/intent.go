// Package intent keeps the write-ahead log of room-creation sagas. Each saga
// opens an intent before its first remote side effect and records the
// identifiers it collects, so that a crashed or abandoned saga can later be
// found by the reconciler and either compensated or reported as orphaned.
package intent

import (
	"strings"
	"time"

	xerrors "Agentica/internal/errors"
)

// Stage 是建房流程最后完成的步骤。
type Stage string

const (
	StageStarted       Stage = "started"
	StageWalletReady   Stage = "wallet_provisioned"
	StageAgentCreated  Stage = "agent_created"
	StageRoomCreated   Stage = "remote_room_created"
	StageRoomPersisted Stage = "room_persisted"
)

// Status 是意图的生命周期状态。
type Status string

const (
	StatusOpen        Status = "open"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCompensated Status = "compensated"
	StatusOrphaned    Status = "orphaned"
)

// Intent 记录一次建房流程及其已创建的资源。
type Intent struct {
	RoomID            string    `json:"room_id"`
	UserID            string    `json:"user_id"`
	Stage             Stage     `json:"stage"`
	Status            Status    `json:"status"`
	WalletProvisioned bool      `json:"wallet_provisioned"`
	StrategyAgentID   string    `json:"strategy_agent_id,omitempty"`
	RemoteRoomID      string    `json:"remote_room_id,omitempty"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (i *Intent) clone() *Intent {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Policy 决定建房失败后的处理方式。
type Policy string

const (
	// PolicyFailFast 不做补偿，直接返回首个错误。
	PolicyFailFast Policy = "fail_fast"
	// PolicyCompensate 尽力回收已创建的代理与钱包记录。
	PolicyCompensate Policy = "compensate"
)

// ParsePolicy 解析失败策略，空值视为 fail_fast。
func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyFailFast:
		return PolicyFailFast, nil
	case PolicyCompensate:
		return PolicyCompensate, nil
	default:
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "unknown failure policy: %s", value)
	}
}

const (
	CodeIntentNotFound xerrors.Code = "INTENT_NOT_FOUND"
	CodeIntentExists   xerrors.Code = "INTENT_EXISTS"
	CodeIntentClosed   xerrors.Code = "INTENT_CLOSED"
	CodeReconcile      xerrors.Code = "INTENT_RECONCILE_FAILED"
)

var (
	// ErrIntentNotFound 表示意图不存在。
	ErrIntentNotFound = xerrors.New(CodeIntentNotFound, "room intent not found")
	// ErrIntentExists 表示房间已有意图记录。
	ErrIntentExists = xerrors.New(CodeIntentExists, "room intent already exists")
	// ErrIntentClosed 表示意图已不处于 open 状态，更新被拒绝。
	ErrIntentClosed = xerrors.New(CodeIntentClosed, "room intent already closed")
)

func init() {
	xerrors.Register(CodeIntentNotFound, xerrors.Attributes{
		Message:  "room intent not found",
		Category: xerrors.CategoryNotFound,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeIntentExists, xerrors.Attributes{
		Message:  "room intent already exists",
		Category: xerrors.CategoryConflict,
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeIntentClosed, xerrors.Attributes{
		Message:  "room intent already closed",
		Category: xerrors.CategoryConflict,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeReconcile, xerrors.Attributes{
		Message:  "room intent reconciliation failed",
		Category: xerrors.CategoryInternal,
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}
