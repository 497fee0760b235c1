package room

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"time"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/storage/mysql"
)

// MySQLStore 使用 rooms 表保存房间。
type MySQLStore struct {
	db *sql.DB
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore 创建 MySQLStore。
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const selectRoomColumns = `SELECT id, user_id, name, description, remote_room_id, strategy_agent_id, wallet_address, custodial_account_address, user_prompt, generated_content, frequency, status, created_at FROM rooms`

// Create 实现 Store 接口。
func (s *MySQLStore) Create(ctx context.Context, room *Room) error {
	if room == nil || room.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "房间 ID 不能为空")
	}
	const stmt = `INSERT INTO rooms
        (id, user_id, name, description, remote_room_id, strategy_agent_id, wallet_address, custodial_account_address, user_prompt, generated_content, frequency, status, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt,
		room.ID,
		room.UserID,
		room.Name,
		room.Description,
		room.RemoteRoomID,
		room.StrategyAgentID,
		room.WalletAddress,
		room.CustodialAccountAddress,
		room.UserPrompt,
		room.GeneratedContent,
		room.Frequency,
		string(room.Status),
		room.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if mysql.IsDuplicateKey(err) {
			return ErrRoomExists
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入房间失败")
	}
	return nil
}

// Get 实现 Store 接口。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Room, error) {
	var (
		room                     Room
		description, prompt, gen sql.NullString
		status                   string
		createdAt                int64
	)
	err := s.db.QueryRowContext(ctx, selectRoomColumns+` WHERE id = ?`, id).Scan(
		&room.ID,
		&room.UserID,
		&room.Name,
		&description,
		&room.RemoteRoomID,
		&room.StrategyAgentID,
		&room.WalletAddress,
		&room.CustodialAccountAddress,
		&prompt,
		&gen,
		&room.Frequency,
		&status,
		&createdAt,
	)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询房间失败")
	}
	room.Description = description.String
	room.UserPrompt = prompt.String
	room.GeneratedContent = gen.String
	room.Status = Status(status)
	room.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &room, nil
}
