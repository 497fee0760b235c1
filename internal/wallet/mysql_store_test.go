package wallet

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

const insertWallet = `INSERT INTO wallets
        (room_id, owner_account_name, owner_address, custodial_account_address, legacy_address, network, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`

func sampleIdentity() *Identity {
	return &Identity{
		RoomID:                  "room-1",
		OwnerAccountName:        "room-1",
		OwnerAddress:            "0xowner",
		CustodialAccountAddress: "0xsmart",
		Network:                 "base-sepolia",
		CreatedAt:               time.UnixMilli(1714564800000).UTC(),
	}
}

func TestMySQLStoreCreate(t *testing.T) {
	db, drv := mysqltest.NewDB(t,
		mysqltest.Exec(insertWallet, mysqltest.Result{RowsAffected: 1}).
			WithArgs("room-1", "room-1", "0xowner", "0xsmart", "", "base-sepolia", int64(1714564800000)),
	)
	require.NoError(t, NewMySQLStore(db).Create(context.Background(), sampleIdentity()))
	drv.AssertConsumed(t)
}

func TestMySQLStoreCreateDuplicateMapsToConflict(t *testing.T) {
	db, drv := mysqltest.NewDB(t,
		mysqltest.Exec(insertWallet, mysqltest.Result{}).
			WithError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry 'room-1' for key 'PRIMARY'"}),
	)
	err := NewMySQLStore(db).Create(context.Background(), sampleIdentity())
	require.Error(t, err)
	assert.True(t, xerrors.IsCode(err, CodeWalletExists))
	assert.Equal(t, xerrors.CategoryConflict, xerrors.CategoryOf(err))
	drv.AssertConsumed(t)
}

func TestMySQLStoreGet(t *testing.T) {
	db, drv := mysqltest.NewDB(t,
		mysqltest.Query(selectWalletColumns+` WHERE room_id = ?`, mysqltest.Rows{
			Columns: []string{"room_id", "owner_account_name", "owner_address", "custodial_account_address", "legacy_address", "network", "created_at"},
			Values:  [][]driver.Value{{"room-1", "room-1", "0xowner", "", "0xlegacy", "base-sepolia", int64(1714564800000)}},
		}).WithArgs("room-1"),
	)
	identity, err := NewMySQLStore(db).Get(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, "0xlegacy", identity.SpendAddress())
	assert.Equal(t, time.UnixMilli(1714564800000).UTC(), identity.CreatedAt)
	drv.AssertConsumed(t)
}

func TestMySQLStoreGetMissing(t *testing.T) {
	db, _ := mysqltest.NewDB(t,
		mysqltest.Query(selectWalletColumns+` WHERE room_id = ?`, mysqltest.Rows{
			Columns: []string{"room_id", "owner_account_name", "owner_address", "custodial_account_address", "legacy_address", "network", "created_at"},
		}),
	)
	_, err := NewMySQLStore(db).Get(context.Background(), "room-x")
	assert.True(t, xerrors.IsCode(err, CodeWalletNotFound))
}

func TestMySQLStoreDeleteMissing(t *testing.T) {
	db, drv := mysqltest.NewDB(t,
		mysqltest.Exec(`DELETE FROM wallets WHERE room_id = ?`, mysqltest.Result{RowsAffected: 0}),
	)
	err := NewMySQLStore(db).Delete(context.Background(), "room-x")
	assert.True(t, xerrors.IsCode(err, CodeWalletNotFound))
	drv.AssertConsumed(t)
}
