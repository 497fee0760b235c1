package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "ELIZA_SERVER_URL", cfg.AgentRuntime.BaseURLEnv)
	assert.Equal(t, "base-sepolia", cfg.WalletService.Network)
	assert.Equal(t, 100, cfg.WalletService.DefaultSlippageBasisPoints)
	assert.EqualValues(t, 10, cfg.WalletService.ApprovalMultiplier)
	assert.Equal(t, "fail_fast", cfg.Saga.FailurePolicy)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.OpenAI.Model)
	require.Len(t, cfg.Web3.Networks, 1)
	assert.Equal(t, "https://sepolia.basescan.org/tx/%s", cfg.Web3.Networks[0].ExplorerTxURL)
}

func TestLoadReadsYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentica.yaml")
	content := `
server:
  address: ":9090"
storage:
  driver: mysql
  mysql:
    dsn: "user:pass@tcp(localhost:3306)/agentica"
saga:
  failure_policy: compensate
web3:
  networks:
    - name: base-mainnet
      chain_id: 8453
      rpc_url: https://mainnet.base.org
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("AGENTICA_DISPATCH_ROOM_LOCK", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "mysql", cfg.Storage.Driver)
	assert.Equal(t, "compensate", cfg.Saga.FailurePolicy)
	assert.Equal(t, "memory", cfg.Dispatch.RoomLock)
	require.Len(t, cfg.Web3.Networks, 1)
	assert.Equal(t, "base-mainnet", cfg.Web3.Networks[0].Name)
}

func TestLoadRejectsUnknownEnums(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("saga:\n  failure_policy: retry\nqueue:\n  driver: kafka\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry")
	assert.Contains(t, err.Error(), "kafka")
}

func TestResolveAPIKeyFallsBackToEnv(t *testing.T) {
	t.Setenv("TEST_WALLET_KEY", "  secret ")
	cfg := WalletServiceConfig{APIKeyEnv: "TEST_WALLET_KEY"}
	assert.Equal(t, "secret", cfg.ResolveAPIKey())

	cfg.APIKey = "explicit"
	assert.Equal(t, "explicit", cfg.ResolveAPIKey())
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "agentica.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.True(t, cfg.Logging.Audit.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	require.Len(t, cfg.Web3.Networks, 1)
	assert.EqualValues(t, 84532, cfg.Web3.Networks[0].ChainID)
}
