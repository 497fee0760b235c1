package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"time"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/walletservice"
)

// Identity 是房间绑定的托管钱包身份，创建后不再修改。
type Identity struct {
	RoomID                  string    `json:"room_id"`
	OwnerAccountName        string    `json:"owner_account_name"`
	OwnerAddress            string    `json:"owner_address"`
	CustodialAccountAddress string    `json:"custodial_account_address"`
	// LegacyAddress 仅存在于早期的单地址钱包记录。
	LegacyAddress string    `json:"address,omitempty"`
	Network       string    `json:"network"`
	CreatedAt     time.Time `json:"created_at"`
}

// SpendAddress 返回应当充值和观察的地址，旧记录回退到单地址字段。
func (i *Identity) SpendAddress() string {
	if i == nil {
		return ""
	}
	if i.CustodialAccountAddress != "" {
		return i.CustodialAccountAddress
	}
	return i.LegacyAddress
}

func (i *Identity) clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// DefaultNetwork 是未显式配置时钱包所在的网络。
const DefaultNetwork = "base-sepolia"

var accountNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*[A-Za-z0-9]$`)

// OwnerAccountName 由房间 ID 推导所有者账户名，托管账户沿用同一名称。
// 钱包服务限制账户名最多 36 个字符，UUID 形式的房间 ID 恰好直接可用；
// 其他不合规的 ID 取 SHA-256 前缀，保证同一房间总是得到同一名称。
func OwnerAccountName(roomID string) string {
	if len(roomID) <= walletservice.MaxAccountNameLength && accountNamePattern.MatchString(roomID) {
		return roomID
	}
	sum := sha256.Sum256([]byte(roomID))
	const prefix = "room-"
	return prefix + hex.EncodeToString(sum[:])[:walletservice.MaxAccountNameLength-len(prefix)]
}

const (
	CodeWalletExists   xerrors.Code = "WALLET_EXISTS"
	CodeWalletNotFound xerrors.Code = "WALLET_NOT_FOUND"
)

var (
	// ErrWalletExists 表示房间已经绑定钱包。
	ErrWalletExists = xerrors.New(CodeWalletExists, "wallet already exists for room")
	// ErrWalletNotFound 表示房间没有钱包。
	ErrWalletNotFound = xerrors.New(CodeWalletNotFound, "wallet not found for room")
)

func init() {
	xerrors.Register(CodeWalletExists, xerrors.Attributes{
		Message:  "wallet already exists for room",
		Category: xerrors.CategoryConflict,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeWalletNotFound, xerrors.Attributes{
		Message:  "wallet not found for room",
		Category: xerrors.CategoryNotFound,
		Severity: xerrors.SeverityInfo,
	})
}
