package intent

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"time"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/storage/mysql"
)

// MySQLStore 使用 room_intents 表保存意图。
type MySQLStore struct {
	db *sql.DB
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore 创建 MySQLStore。
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const selectIntentColumns = `SELECT room_id, user_id, stage, status, wallet_provisioned, strategy_agent_id, remote_room_id, error, created_at, updated_at FROM room_intents`

// Create 实现 Store 接口。
func (s *MySQLStore) Create(ctx context.Context, intent *Intent) error {
	if intent == nil || intent.RoomID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "room_id 不能为空")
	}
	const stmt = `INSERT INTO room_intents
        (room_id, user_id, stage, status, wallet_provisioned, strategy_agent_id, remote_room_id, error, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt,
		intent.RoomID,
		intent.UserID,
		string(intent.Stage),
		string(intent.Status),
		intent.WalletProvisioned,
		intent.StrategyAgentID,
		intent.RemoteRoomID,
		nullableText(intent.Error),
		intent.CreatedAt.UnixMilli(),
		intent.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if mysql.IsDuplicateKey(err) {
			return ErrIntentExists
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入建房意图失败")
	}
	return nil
}

// Get 实现 Store 接口。
func (s *MySQLStore) Get(ctx context.Context, roomID string) (*Intent, error) {
	row := s.db.QueryRowContext(ctx, selectIntentColumns+` WHERE room_id = ?`, roomID)
	intent, err := scanIntent(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询建房意图失败")
	}
	return intent, nil
}

// Update 实现 Store 接口。
func (s *MySQLStore) Update(ctx context.Context, intent *Intent) error {
	if intent == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "意图不能为空")
	}
	const stmt = `UPDATE room_intents
        SET stage = ?, status = ?, wallet_provisioned = ?, strategy_agent_id = ?, remote_room_id = ?, error = ?, updated_at = ?
        WHERE room_id = ? AND status = ?`

	res, err := s.db.ExecContext(ctx, stmt,
		string(intent.Stage),
		string(intent.Status),
		intent.WalletProvisioned,
		intent.StrategyAgentID,
		intent.RemoteRoomID,
		nullableText(intent.Error),
		intent.UpdatedAt.UnixMilli(),
		intent.RoomID,
		string(StatusOpen),
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新建房意图失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		// 值未变化时 MySQL 同样返回 0，需要区分记录不存在与已关闭。
		current, getErr := s.Get(ctx, intent.RoomID)
		if getErr != nil {
			return getErr
		}
		if current.Status != StatusOpen {
			return ErrIntentClosed
		}
	}
	return nil
}

// ListStale 实现 Store 接口。
func (s *MySQLStore) ListStale(ctx context.Context, before time.Time, limit int) ([]*Intent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		selectIntentColumns+` WHERE status = ? AND updated_at < ? ORDER BY updated_at ASC, room_id ASC LIMIT ?`,
		string(StatusOpen), before.UnixMilli(), limit,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询悬挂意图失败")
	}
	defer rows.Close()

	out := make([]*Intent, 0, limit)
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析建房意图失败")
		}
		out = append(out, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历建房意图失败")
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*Intent, error) {
	var (
		intent               Intent
		stage, status        string
		errMsg               sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&intent.RoomID,
		&intent.UserID,
		&stage,
		&status,
		&intent.WalletProvisioned,
		&intent.StrategyAgentID,
		&intent.RemoteRoomID,
		&errMsg,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	intent.Stage = Stage(stage)
	intent.Status = Status(status)
	intent.Error = errMsg.String
	intent.CreatedAt = time.UnixMilli(createdAt).UTC()
	intent.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &intent, nil
}

func nullableText(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
