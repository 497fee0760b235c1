package agent

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	"Agentica/internal/agentruntime"
	xerrors "Agentica/internal/errors"
	"Agentica/internal/storage/mysql"
)

// MySQLStore 使用 agents 表保存代理镜像，remote_agent_id 唯一。
type MySQLStore struct {
	db *sql.DB
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore 创建 MySQLStore。
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const selectAgentColumns = `SELECT id, user_id, remote_agent_id, name, description, character_config, advanced_config, status, created_at, updated_at FROM agents`

// Create 实现 Store 接口。
func (s *MySQLStore) Create(ctx context.Context, agent *Agent) error {
	if agent == nil || agent.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "代理 ID 不能为空")
	}
	var (
		character, advanced sql.NullString
		err                 error
	)
	if agent.CharacterConfig != nil {
		if character, err = encodeJSON(agent.CharacterConfig); err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码代理配置失败")
		}
	}
	if len(agent.AdvancedConfig) > 0 {
		if advanced, err = encodeJSON(agent.AdvancedConfig); err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码高级配置失败")
		}
	}

	const stmt = `INSERT INTO agents
        (id, user_id, remote_agent_id, name, description, character_config, advanced_config, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		agent.ID,
		agent.UserID,
		agent.RemoteAgentID,
		agent.Name,
		agent.Description,
		character,
		advanced,
		string(agent.Status),
		agent.CreatedAt.UnixMilli(),
		agent.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if mysql.IsDuplicateKey(err) {
			return ErrAgentExists
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入代理失败")
	}
	return nil
}

// Get 实现 Store 接口。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, selectAgentColumns+` WHERE id = ?`, id)
	agent, err := scanAgent(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询代理失败")
	}
	return agent, nil
}

// ListByUser 实现 Store 接口。
func (s *MySQLStore) ListByUser(ctx context.Context, userID string) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, selectAgentColumns+` WHERE user_id = ? ORDER BY created_at DESC, id ASC`, userID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询代理列表失败")
	}
	defer rows.Close()

	out := make([]*Agent, 0)
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析代理记录失败")
		}
		out = append(out, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历代理失败")
	}
	return out, nil
}

// RemoteIDs 实现 Store 接口。
func (s *MySQLStore) RemoteIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, remote_agent_id FROM agents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询远端代理 ID 失败")
	}
	defer rows.Close()

	remote := make(map[string]string, len(ids))
	for rows.Next() {
		var id, remoteID string
		if err := rows.Scan(&id, &remoteID); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析远端代理 ID 失败")
		}
		remote[id] = remoteID
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历远端代理 ID 失败")
	}

	out := make([]string, 0, len(remote))
	for _, id := range ids {
		if remoteID, ok := remote[id]; ok {
			out = append(out, remoteID)
		}
	}
	return out, nil
}

// Delete 实现 Store 接口。
func (s *MySQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除代理失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var (
		agent                Agent
		description          sql.NullString
		character, advanced  sql.NullString
		status               string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&agent.ID,
		&agent.UserID,
		&agent.RemoteAgentID,
		&agent.Name,
		&description,
		&character,
		&advanced,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	agent.Description = description.String
	agent.Status = Status(status)
	agent.CreatedAt = time.UnixMilli(createdAt).UTC()
	agent.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if character.Valid && character.String != "" {
		var c agentruntime.Character
		if err := json.Unmarshal([]byte(character.String), &c); err != nil {
			return nil, err
		}
		agent.CharacterConfig = &c
	}
	if advanced.Valid && advanced.String != "" {
		if err := json.Unmarshal([]byte(advanced.String), &agent.AdvancedConfig); err != nil {
			return nil, err
		}
	}
	return &agent, nil
}

func encodeJSON(value any) (sql.NullString, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}
