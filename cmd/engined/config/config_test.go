package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("FullConfig", func(t *testing.T) {
		path := writeConfig(t, `
custodian: "0x00000000000000000000000000000000000000CC"
operator: "0x00000000000000000000000000000000000000AD"
chainRpcUrl: "ws://localhost:8546"
snapshotPath: "/var/lib/engined/state.json"
snapshotIntervalSeconds: 60
settleIntervalSeconds: 5
metricsListenAddr: ":9100"
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000CC"), cfg.CustodianAddress())
		assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000AD"), cfg.OperatorAddress())
		assert.Equal(t, "ws://localhost:8546", cfg.ChainRPCURL)
		assert.Equal(t, time.Minute, cfg.SnapshotInterval())
		assert.Equal(t, 5*time.Second, cfg.SettleInterval())
		assert.Equal(t, ":9100", cfg.MetricsListenAddr)
	})

	t.Run("DefaultsApplied", func(t *testing.T) {
		path := writeConfig(t, `custodian: "0x00000000000000000000000000000000000000CC"`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 5*time.Minute, cfg.SnapshotInterval())
		assert.Equal(t, 15*time.Second, cfg.SettleInterval())
		assert.Equal(t, ":9090", cfg.MetricsListenAddr)
		assert.Equal(t, common.Address{}, cfg.OperatorAddress())
	})

	t.Run("MissingCustodian", func(t *testing.T) {
		path := writeConfig(t, `metricsListenAddr: ":9100"`)
		_, err := LoadConfig(path)
		require.Error(t, err)
	})

	t.Run("MalformedCustodian", func(t *testing.T) {
		path := writeConfig(t, `custodian: "not-an-address"`)
		_, err := LoadConfig(path)
		require.Error(t, err)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}
