package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/storage/mysql"
)

// MySQLStore 使用 wallet_transactions 表记录流水。
type MySQLStore struct {
	db *sql.DB
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore 基于已建立的连接池创建 MySQLStore。
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const selectRecordColumns = `SELECT id, room_id, action, params, status, result, error, created_at, updated_at FROM wallet_transactions`

// Append 插入一条 pending 流水。
func (s *MySQLStore) Append(ctx context.Context, record *Record) error {
	if record == nil || strings.TrimSpace(record.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "流水 ID 不能为空")
	}
	params, err := marshalJSON(record.Params)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码流水参数失败")
	}

	const stmt = `INSERT INTO wallet_transactions
        (id, room_id, action, params, status, result, error, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, NULL, NULL, ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		record.ID,
		record.RoomID,
		record.Action,
		params,
		string(record.Status),
		record.CreatedAt.UnixMilli(),
		record.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if mysql.IsDuplicateKey(err) {
			return ErrRecordConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入流水失败")
	}
	return nil
}

// Finalize 更新流水终态。
func (s *MySQLStore) Finalize(ctx context.Context, id string, status Status, result json.RawMessage, errMsg string, at time.Time) error {
	const stmt = `UPDATE wallet_transactions SET status = ?, result = ?, error = ?, updated_at = ? WHERE id = ?`

	res, err := s.db.ExecContext(ctx, stmt,
		string(status),
		nullableText(string(result)),
		nullableText(errMsg),
		at.UnixMilli(),
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新流水状态失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		// MySQL 在值未变化时也会返回 0，需要确认记录是否存在。
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

// Get 查询单条流水。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecordColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询流水失败")
	}
	return rec, nil
}

// List 按创建时间倒序分页查询。
func (s *MySQLStore) List(ctx context.Context, roomID string, opts ListOptions) ([]*Record, error) {
	opts.applyDefaults()

	clause, args := buildFilterClause(roomID, opts)
	query := selectRecordColumns + " WHERE " + clause + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询流水列表失败")
	}
	defer rows.Close()

	records := make([]*Record, 0, opts.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析流水记录失败")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历流水失败")
	}
	return records, nil
}

// Count 使用独立的 COUNT 查询统计总数。
func (s *MySQLStore) Count(ctx context.Context, roomID string, opts ListOptions) (int, error) {
	opts.applyDefaults()

	clause, args := buildFilterClause(roomID, opts)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallet_transactions WHERE `+clause, args...).Scan(&total); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计流水失败")
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec       Record
		params    sql.NullString
		result    sql.NullString
		errMsg    sql.NullString
		status    string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&rec.ID, &rec.RoomID, &rec.Action, &params, &status, &result, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if params.Valid && strings.TrimSpace(params.String) != "" {
		if err := json.Unmarshal([]byte(params.String), &rec.Params); err != nil {
			return nil, fmt.Errorf("解析流水参数失败: %w", err)
		}
	}
	if result.Valid && result.String != "" {
		rec.Result = json.RawMessage(result.String)
	}
	rec.Status = Status(status)
	rec.Error = errMsg.String
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &rec, nil
}

func buildFilterClause(roomID string, opts ListOptions) (string, []any) {
	conditions := []string{"room_id = ?"}
	args := []any{roomID}
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for _, status := range opts.Statuses {
			placeholders = append(placeholders, "?")
			args = append(args, string(status))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	return strings.Join(conditions, " AND "), args
}

func marshalJSON(value map[string]any) (sql.NullString, error) {
	if len(value) == 0 {
		return sql.NullString{}, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

func nullableText(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
