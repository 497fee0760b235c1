package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAuditLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	audit, closer, err := buildAuditLogger(AuditConfig{Enabled: true, Path: path})
	require.NoError(t, err)

	audit.Info("wallet provisioned", slog.String("room_id", "r-1"), slog.String("wallet_secret", "s3cr3t-value"))
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"wallet provisioned"`)
	assert.Contains(t, string(data), `"room_id":"r-1"`)
	assert.Contains(t, string(data), `"wallet_secret":"s3****ue"`)
	assert.NotContains(t, string(data), "s3cr3t-value")
}

func TestBuildAuditLoggerRequiresPath(t *testing.T) {
	_, _, err := buildAuditLogger(AuditConfig{Enabled: true})
	require.Error(t, err)
}

func TestOpenOutputsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w, closers, err := openOutputs([]string{path})
	require.NoError(t, err)
	require.Len(t, closers, 1)

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, closeAll(closers))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", mask("abc"))
	assert.Equal(t, "sk****yz", mask("sk-123xyz"))
}
