package agent

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/storage/mysql/mysqltest"
)

const insertAgent = `INSERT INTO agents
        (id, user_id, remote_agent_id, name, description, character_config, advanced_config, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

var agentColumns = []string{"id", "user_id", "remote_agent_id", "name", "description", "character_config", "advanced_config", "status", "created_at", "updated_at"}

func sampleAgent() *Agent {
	at := time.UnixMilli(1714564800000).UTC()
	return &Agent{
		ID:             "local-1",
		UserID:         "user-1",
		RemoteAgentID:  "agent-1",
		Name:           "Bot",
		Description:    "a helpful bot",
		AdvancedConfig: map[string]any{"topics": []any{"defi"}},
		Status:         StatusActive,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func TestMySQLStoreCreate(t *testing.T) {
	db, drv := mysqltest.NewDB(t,
		mysqltest.Exec(insertAgent, mysqltest.Result{RowsAffected: 1}).
			WithArgs("local-1", "user-1", "agent-1", "Bot", "a helpful bot", nil, `{"topics":["defi"]}`, "active", int64(1714564800000), int64(1714564800000)),
	)
	require.NoError(t, NewMySQLStore(db).Create(context.Background(), sampleAgent()))
	drv.AssertConsumed(t)
}

func TestMySQLStoreCreateDuplicateRemote(t *testing.T) {
	db, _ := mysqltest.NewDB(t,
		mysqltest.Exec(insertAgent, mysqltest.Result{}).
			WithError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry 'agent-1' for key 'uk_agents_remote'"}),
	)
	err := NewMySQLStore(db).Create(context.Background(), sampleAgent())
	assert.True(t, xerrors.IsCode(err, CodeAgentExists))
}

func TestMySQLStoreListByUser(t *testing.T) {
	db, drv := mysqltest.NewDB(t,
		mysqltest.Query(selectAgentColumns+` WHERE user_id = ? ORDER BY created_at DESC, id ASC`, mysqltest.Rows{
			Columns: agentColumns,
			Values: [][]driver.Value{
				{"local-2", "user-1", "agent-2", "Two", nil, `{"name":"Two","plugins":["p"]}`, nil, "active", int64(1714564802000), int64(1714564802000)},
				{"local-1", "user-1", "agent-1", "One", "first", nil, `{"topics":["defi"]}`, "active", int64(1714564801000), int64(1714564801000)},
			},
		}).WithArgs("user-1"),
	)
	agents, err := NewMySQLStore(db).ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "local-2", agents[0].ID)
	require.NotNil(t, agents[0].CharacterConfig)
	assert.Equal(t, []string{"p"}, agents[0].CharacterConfig.Plugins)
	assert.Equal(t, "", agents[0].Description)
	assert.Equal(t, []any{"defi"}, agents[1].AdvancedConfig["topics"])
	drv.AssertConsumed(t)
}

func TestMySQLStoreRemoteIDsPreservesInputOrder(t *testing.T) {
	db, drv := mysqltest.NewDB(t,
		mysqltest.Query(`SELECT id, remote_agent_id FROM agents WHERE id IN (?, ?, ?)`, mysqltest.Rows{
			Columns: []string{"id", "remote_agent_id"},
			Values:  [][]driver.Value{{"b", "remote-b"}, {"a", "remote-a"}},
		}).WithArgs("a", "missing", "b"),
	)
	ids, err := NewMySQLStore(db).RemoteIDs(context.Background(), []string{"a", "missing", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"remote-a", "remote-b"}, ids)
	drv.AssertConsumed(t)
}

func TestMySQLStoreDeleteMissing(t *testing.T) {
	db, drv := mysqltest.NewDB(t,
		mysqltest.Exec(`DELETE FROM agents WHERE id = ?`, mysqltest.Result{RowsAffected: 0}).WithArgs("nope"),
	)
	err := NewMySQLStore(db).Delete(context.Background(), "nope")
	assert.True(t, xerrors.IsCode(err, CodeAgentNotFound))
	drv.AssertConsumed(t)
}
