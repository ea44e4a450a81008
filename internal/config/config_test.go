package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinflip-relay/internal/config"
)

var envKeys = []string{
	"ENV", "PORT", "SUI_NETWORK", "SUI_RPC_URL", "PACKAGE_ID", "COINFLIP_MODULE",
	"ESCROW_PRIVATE_KEY", "ESCROW_ADDRESS", "GAS_BUDGET", "SUBMIT_TIMEOUT",
	"REDIS_URL", "REDIS_PASSWORD", "REDIS_DB", "INDEX_PATH", "INDEX_INTERVAL",
	"RELAY_JWT_SECRET", "FLIP_SEED", "LOG_FILE", "DEPLOYMENT_FILE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.DefaultPort, cfg.Port)
	assert.Equal(t, config.DefaultSuiRPCURL, cfg.SuiRPCURL)
	assert.Equal(t, config.DefaultPackageID, cfg.PackageID)
	assert.Equal(t, "coinflip", cfg.Module)
	assert.Equal(t, uint64(100_000_000), cfg.GasBudget)
	assert.Equal(t, 30*time.Second, cfg.SubmitTimeout)
	assert.False(t, cfg.HasEscrowKey(), "missing key is a supported configuration")
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("PACKAGE_ID", "0xpkg")
	t.Setenv("ESCROW_PRIVATE_KEY", "suiprivkey1secret")
	t.Setenv("SUBMIT_TIMEOUT", "5s")
	t.Setenv("REDIS_DB", "2")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "0xpkg", cfg.PackageID)
	assert.True(t, cfg.HasEscrowKey())
	assert.Equal(t, 5*time.Second, cfg.SubmitTimeout)
	assert.Equal(t, 2, cfg.RedisDB)
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUBMIT_TIMEOUT", "soon")
	_, err := config.Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("GAS_BUDGET", "0")
	_, err = config.Load()
	assert.Error(t, err)
}

func TestDeploymentFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "deployment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
network: devnet
networks:
  devnet:
    rpc_url: http://127.0.0.1:9000
    package_id: "0xdev"
  testnet:
    package_id: "0xtest"
`), 0o600))
	t.Setenv("DEPLOYMENT_FILE", path)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "devnet", cfg.Network)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.SuiRPCURL)
	assert.Equal(t, "0xdev", cfg.PackageID)

	t.Setenv("PACKAGE_ID", "0xoverride")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Equal(t, "0xoverride", cfg.PackageID, "environment wins over the file")

	t.Setenv("SUI_NETWORK", "mainnet")
	_, err = config.Load()
	assert.Error(t, err)
}

func TestStringRedactsSecrets(t *testing.T) {
	cfg := &config.Config{EscrowKey: "suiprivkey1verysecret", JWTSecret: "hunter2", FlipSeed: "seedsecret"}

	s := cfg.String()
	assert.NotContains(t, s, "verysecret")
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "seedsecret")
	assert.Contains(t, s, "escrow_key=set")
}
