package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "Agentica/internal/errors"
)

func newTestLedger(t *testing.T) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	seq := 0
	l := New(store,
		WithClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		}),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("tx-%02d", seq)
		}),
	)
	return l, store
}

func TestQueryPaginatesNewestFirstWithTotal(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := l.Append(ctx, "room-1", "balance", nil)
		require.NoError(t, err)
	}
	_, err := l.Append(ctx, "room-2", "balance", nil)
	require.NoError(t, err)

	page, err := l.Query(ctx, "room-1", WithLimit(10))
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 10)
	assert.Equal(t, 25, page.Total)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, "tx-25", page.Transactions[0].ID)
	assert.Equal(t, "tx-16", page.Transactions[9].ID)

	page, err = l.Query(ctx, "room-1", WithLimit(10), WithOffset(20))
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 5)
	assert.Equal(t, 25, page.Total)
}

func TestQueryClampsLimit(t *testing.T) {
	l, _ := newTestLedger(t)

	page, err := l.Query(context.Background(), "room-1", WithLimit(1000), WithOffset(-3))
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, page.Limit)
	assert.Equal(t, 0, page.Offset)
	assert.Empty(t, page.Transactions)

	page, err = l.Query(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, page.Limit)
}

func TestFinalizeMovesRecordToTerminalState(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	okID, err := l.Append(ctx, "room-1", "transfer", map[string]any{"amount": "0.1"})
	require.NoError(t, err)
	failID, err := l.Append(ctx, "room-1", "swap", nil)
	require.NoError(t, err)
	pendingID, err := l.Append(ctx, "room-1", "balance", nil)
	require.NoError(t, err)

	require.NoError(t, l.Succeed(ctx, okID, map[string]string{"transaction_hash": "0xabc"}))
	require.NoError(t, l.Fail(ctx, failID, "upstream down"))

	rec, err := l.Get(ctx, okID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, rec.Status)
	assert.JSONEq(t, `{"transaction_hash":"0xabc"}`, string(rec.Result))
	assert.Equal(t, "0.1", rec.Params["amount"])
	assert.True(t, rec.UpdatedAt.After(rec.CreatedAt))

	failed, err := l.Query(ctx, "room-1", WithStatuses(StatusFailed))
	require.NoError(t, err)
	require.Len(t, failed.Transactions, 1)
	assert.Equal(t, failID, failed.Transactions[0].ID)
	assert.Equal(t, "upstream down", failed.Transactions[0].Error)

	pending, err := l.Query(ctx, "room-1", WithStatuses(StatusPending))
	require.NoError(t, err)
	require.Equal(t, 1, pending.Total)
	assert.Equal(t, pendingID, pending.Transactions[0].ID)
}

func TestFinalizeLastWriteWins(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Append(ctx, "room-1", "transfer", nil)
	require.NoError(t, err)
	require.NoError(t, l.Fail(ctx, id, "first"))
	require.NoError(t, l.Succeed(ctx, id, map[string]int{"n": 1}))

	rec, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Empty(t, rec.Error)
}

func TestFinalizeUnknownRecord(t *testing.T) {
	l, _ := newTestLedger(t)
	err := l.Succeed(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.True(t, xerrors.IsCode(err, CodeRecordNotFound))
	assert.Equal(t, xerrors.CategoryNotFound, xerrors.CategoryOf(err))
}

func TestAppendRequiresRoom(t *testing.T) {
	l, store := newTestLedger(t)
	_, err := l.Append(context.Background(), " ", "balance", nil)
	require.Error(t, err)
	assert.Equal(t, xerrors.CategoryInvalidInput, xerrors.CategoryOf(err))

	total, err := store.Count(context.Background(), " ", ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus(" Failed ")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status)

	status, err = ParseStatus("")
	require.NoError(t, err)
	assert.Empty(t, status)

	_, err = ParseStatus("done")
	require.Error(t, err)
	assert.Equal(t, xerrors.CategoryInvalidInput, xerrors.CategoryOf(err))
}
