package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrdersByVersion(t *testing.T) {
	scripts, err := Load(fstest.MapFS{
		"0002_index.sql": {Data: []byte("CREATE INDEX i ON a (b);")},
		"0001_init.sql":  {Data: []byte("-- header\nCREATE TABLE a (b INT);\nCREATE TABLE c (d INT);")},
		"0003_empty.sql": {Data: []byte("-- nothing yet\n")},
		"notes.txt":      {Data: []byte("ignored")},
	})
	require.NoError(t, err)
	require.Len(t, scripts, 2)
	assert.Equal(t, "0001", scripts[0].Version)
	assert.Equal(t, []string{"CREATE TABLE a (b INT)", "CREATE TABLE c (d INT)"}, scripts[0].Statements)
	assert.Equal(t, "0002", scripts[1].Version)
}

func TestLoadRejectsBadNames(t *testing.T) {
	_, err := Load(fstest.MapFS{"init.sql": {Data: []byte("SELECT 1;")}})
	require.Error(t, err)

	_, err = Load(fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1;")},
		"0001_b.sql": {Data: []byte("SELECT 2;")},
	})
	require.Error(t, err)
}

func TestEmbeddedCoversAllTables(t *testing.T) {
	scripts, err := Embedded()
	require.NoError(t, err)
	require.NotEmpty(t, scripts)

	var joined string
	for _, s := range scripts {
		for _, stmt := range s.Statements {
			joined += stmt + "\n"
		}
	}
	for _, table := range []string{"wallets", "wallet_transactions", "agents", "rooms", "room_intents"} {
		assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}
