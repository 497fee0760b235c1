package wallet

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"time"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/storage/mysql"
)

// MySQLStore 使用 wallets 表保存钱包身份，room_id 为主键。
type MySQLStore struct {
	db *sql.DB
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore 创建 MySQLStore。
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const selectWalletColumns = `SELECT room_id, owner_account_name, owner_address, custodial_account_address, legacy_address, network, created_at FROM wallets`

// Create 插入钱包身份，主键冲突映射为 ErrWalletExists。
func (s *MySQLStore) Create(ctx context.Context, identity *Identity) error {
	if identity == nil || identity.RoomID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "room_id 不能为空")
	}
	const stmt = `INSERT INTO wallets
        (room_id, owner_account_name, owner_address, custodial_account_address, legacy_address, network, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt,
		identity.RoomID,
		identity.OwnerAccountName,
		identity.OwnerAddress,
		identity.CustodialAccountAddress,
		identity.LegacyAddress,
		identity.Network,
		identity.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if mysql.IsDuplicateKey(err) {
			return ErrWalletExists
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入钱包失败")
	}
	return nil
}

// Get 实现 Store 接口。
func (s *MySQLStore) Get(ctx context.Context, roomID string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx, selectWalletColumns+` WHERE room_id = ?`, roomID)
	identity, err := scanIdentity(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询钱包失败")
	}
	return identity, nil
}

// Delete 实现 Store 接口。
func (s *MySQLStore) Delete(ctx context.Context, roomID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wallets WHERE room_id = ?`, roomID)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除钱包失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// List 实现 Store 接口。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Identity, error) {
	opts.applyDefaults()
	rows, err := s.db.QueryContext(ctx, selectWalletColumns+` ORDER BY created_at DESC, room_id ASC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询钱包列表失败")
	}
	defer rows.Close()

	out := make([]*Identity, 0, opts.Limit)
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析钱包记录失败")
		}
		out = append(out, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历钱包失败")
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*Identity, error) {
	var (
		identity  Identity
		legacy    sql.NullString
		createdAt int64
	)
	if err := row.Scan(
		&identity.RoomID,
		&identity.OwnerAccountName,
		&identity.OwnerAddress,
		&identity.CustodialAccountAddress,
		&legacy,
		&identity.Network,
		&createdAt,
	); err != nil {
		return nil, err
	}
	identity.LegacyAddress = legacy.String
	identity.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &identity, nil
}
