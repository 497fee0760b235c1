package auth

import (
	"crypto/sha256"
	"encoding/hex"

	xerrors "Agentica/internal/errors"
)

// Mode 表示鉴权模式。
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeAPIKey   Mode = "api_key"
)

const CodeUnauthorized xerrors.Code = "UNAUTHORIZED"

var (
	// ErrMissingKey 表示请求未携带 API Key。
	ErrMissingKey = xerrors.New(CodeUnauthorized, "missing API key")
	// ErrInvalidKey 表示 API Key 不在允许列表中。
	ErrInvalidKey = xerrors.New(CodeUnauthorized, "invalid API key")
)

func init() {
	xerrors.Register(CodeUnauthorized, xerrors.Attributes{
		Message:  "unauthorized",
		Category: xerrors.CategoryInvalidInput,
		Severity: xerrors.SeverityWarning,
	})
}

// Subject 是通过鉴权的调用方。日志中只出现 KeyID，不出现原始 Key。
type Subject struct {
	KeyID string
}

// KeyID 返回 API Key 的短指纹。
func KeyID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}
