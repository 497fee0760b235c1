package intent

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "Agentica/internal/errors"
	"Agentica/internal/storage/mysql/mysqltest"
)

func TestMemoryStoreRejectsUpdatesAfterClose(t *testing.T) {
	store := NewMemoryStore()
	seedIntent(t, store, "room-1", StageStarted, base, nil)

	intent, err := store.Get(context.Background(), "room-1")
	require.NoError(t, err)
	intent.Status = StatusCompleted
	require.NoError(t, store.Update(context.Background(), intent))

	intent.Status = StatusOrphaned
	assert.True(t, xerrors.IsCode(store.Update(context.Background(), intent), CodeIntentClosed))
	assert.True(t, xerrors.IsCode(store.Update(context.Background(), &Intent{RoomID: "missing"}), CodeIntentNotFound))
	assert.True(t, xerrors.IsCode(store.Create(context.Background(), intent), CodeIntentExists))
}

func TestMemoryStoreListStaleOldestFirst(t *testing.T) {
	store := NewMemoryStore()
	seedIntent(t, store, "room-b", StageStarted, base.Add(2*time.Minute), nil)
	seedIntent(t, store, "room-a", StageStarted, base.Add(time.Minute), nil)
	seedIntent(t, store, "room-c", StageStarted, base.Add(10*time.Minute), nil)

	stale, err := store.ListStale(context.Background(), base.Add(5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "room-a", stale[0].RoomID)
	assert.Equal(t, "room-b", stale[1].RoomID)

	stale, err = store.ListStale(context.Background(), base.Add(time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, stale, 1)
}

func TestJournalRecordsProgress(t *testing.T) {
	store := NewMemoryStore()
	tick := base
	journal := NewJournal(store, func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	})

	intent, err := journal.Begin(context.Background(), "room-1", "user-1")
	require.NoError(t, err)
	intent.WalletProvisioned = true
	journal.Advance(context.Background(), intent, StageWalletReady)
	journal.Close(context.Background(), intent, StatusFailed, errors.New("agent runtime down"))

	stored, err := store.Get(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, StageWalletReady, stored.Stage)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.True(t, stored.WalletProvisioned)
	assert.Equal(t, "agent runtime down", stored.Error)
	assert.Equal(t, base.Add(time.Second), stored.CreatedAt)
	assert.Equal(t, base.Add(3*time.Second), stored.UpdatedAt)
}

func TestNilJournalIsNoop(t *testing.T) {
	var journal *Journal
	intent, err := journal.Begin(context.Background(), "room-1", "user-1")
	require.NoError(t, err)
	journal.Advance(context.Background(), intent, StageAgentCreated)
	journal.Close(context.Background(), intent, StatusCompleted, nil)
	assert.Equal(t, StatusCompleted, intent.Status)
	assert.Equal(t, StageAgentCreated, intent.Stage)
}

func TestMemoryQueueDeliversToHandler(t *testing.T) {
	q := NewMemoryQueue(2)
	require.NoError(t, q.Publish(context.Background(), "room-1"))

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 1)
	go func() {
		_ = q.Consume(ctx, 1, func(_ context.Context, roomID string) error {
			got <- roomID
			return nil
		})
	}()

	select {
	case roomID := <-got:
		assert.Equal(t, "room-1", roomID)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	cancel()

	require.NoError(t, q.Close())
	assert.True(t, xerrors.IsCode(q.Publish(context.Background(), "room-2"), xerrors.CodeQueueFailure))
}

const updateIntent = `UPDATE room_intents
        SET stage = ?, status = ?, wallet_provisioned = ?, strategy_agent_id = ?, remote_room_id = ?, error = ?, updated_at = ?
        WHERE room_id = ? AND status = ?`

var intentColumns = []string{"room_id", "user_id", "stage", "status", "wallet_provisioned", "strategy_agent_id", "remote_room_id", "error", "created_at", "updated_at"}

func TestMySQLStoreCreateDuplicate(t *testing.T) {
	db, drv := mysqltest.NewDB(t,
		mysqltest.Exec(`INSERT INTO room_intents
        (room_id, user_id, stage, status, wallet_provisioned, strategy_agent_id, remote_room_id, error, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, mysqltest.Result{}).
			WithArgs("room-1", "user-1", "started", "open", false, "", "", nil, int64(1714564800000), int64(1714564800000)).
			WithError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry"}),
	)
	err := NewMySQLStore(db).Create(context.Background(), &Intent{
		RoomID: "room-1", UserID: "user-1", Stage: StageStarted, Status: StatusOpen, CreatedAt: base, UpdatedAt: base,
	})
	assert.True(t, xerrors.IsCode(err, CodeIntentExists))
	drv.AssertConsumed(t)
}

func TestMySQLStoreUpdateClosedIntent(t *testing.T) {
	db, drv := mysqltest.NewDB(t,
		mysqltest.Exec(updateIntent, mysqltest.Result{RowsAffected: 0}).
			WithArgs("agent_created", "orphaned", true, "agent-1", "", "saga abandoned", int64(1714564860000), "room-1", "open"),
		mysqltest.Query(selectIntentColumns+` WHERE room_id = ?`, mysqltest.Rows{
			Columns: intentColumns,
			Values:  [][]driver.Value{{"room-1", "user-1", "agent_created", "completed", int64(1), "agent-1", "", nil, int64(1714564800000), int64(1714564830000)}},
		}).WithArgs("room-1"),
	)
	err := NewMySQLStore(db).Update(context.Background(), &Intent{
		RoomID:            "room-1",
		Stage:             StageAgentCreated,
		Status:            StatusOrphaned,
		WalletProvisioned: true,
		StrategyAgentID:   "agent-1",
		Error:             "saga abandoned",
		UpdatedAt:         base.Add(time.Minute),
	})
	assert.True(t, xerrors.IsCode(err, CodeIntentClosed))
	drv.AssertConsumed(t)
}

func TestMySQLStoreListStale(t *testing.T) {
	db, drv := mysqltest.NewDB(t,
		mysqltest.Query(selectIntentColumns+` WHERE status = ? AND updated_at < ? ORDER BY updated_at ASC, room_id ASC LIMIT ?`, mysqltest.Rows{
			Columns: intentColumns,
			Values:  [][]driver.Value{{"room-1", "user-1", "wallet_provisioned", "open", int64(1), "", "", nil, int64(1714564800000), int64(1714564800000)}},
		}).WithArgs("open", int64(1714565100000), int64(25)),
	)
	stale, err := NewMySQLStore(db).ListStale(context.Background(), base.Add(5*time.Minute), 25)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.True(t, stale[0].WalletProvisioned)
	assert.Equal(t, StageWalletReady, stale[0].Stage)
	drv.AssertConsumed(t)
}
