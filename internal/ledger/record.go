package ledger

import (
	"encoding/json"
	"time"

	xerrors "Agentica/internal/errors"
)

// Status 表示一条流水在生命周期中的状态。
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// IsValidStatus 判断状态是否合法。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal 判断状态是否为终态。
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Record 是一次动作调用的审计记录。
type Record struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Action    string          `json:"action"`
	Params    map[string]any  `json:"params"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Params = cloneParams(r.Params)
	if r.Result != nil {
		c.Result = append(json.RawMessage(nil), r.Result...)
	}
	return &c
}

func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

const (
	CodeRecordNotFound xerrors.Code = "LEDGER_RECORD_NOT_FOUND"
	CodeRecordConflict xerrors.Code = "LEDGER_RECORD_CONFLICT"
)

var (
	// ErrRecordNotFound 表示流水不存在。
	ErrRecordNotFound = xerrors.New(CodeRecordNotFound, "transaction record not found")
	// ErrRecordConflict 表示流水 ID 重复。
	ErrRecordConflict = xerrors.New(CodeRecordConflict, "transaction record already exists")
)

func init() {
	xerrors.Register(CodeRecordNotFound, xerrors.Attributes{
		Message:  "transaction record not found",
		Category: xerrors.CategoryNotFound,
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeRecordConflict, xerrors.Attributes{
		Message:  "transaction record already exists",
		Category: xerrors.CategoryConflict,
		Severity: xerrors.SeverityWarning,
	})
}
