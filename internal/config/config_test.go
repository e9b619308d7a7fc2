package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/identity"
	"github.com/ArkLabsHQ/intentd/pkg/envelope"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func networkId(t *testing.T) string {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return hex.EncodeToString(schnorr.SerializePubKey(key.PubKey()))
}

func setup(t *testing.T, env map[string]string) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	datadir := t.TempDir()
	t.Setenv("INTENTD_DATADIR", datadir)
	for k, v := range env {
		t.Setenv("INTENTD_"+k, v)
	}
	return datadir
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		datadir := setup(t, map[string]string{"SAFETY_MARGIN": "30m"})

		cfg, err := LoadConfig()
		require.NoError(t, err)
		require.Equal(t, datadir, cfg.Datadir)
		require.Equal(t, 30*time.Minute, cfg.SafetyMargin)
		require.Equal(t, uint32(defaultPort), cfg.Port)
		require.Equal(t, uint32(4), cfg.LogLevel)
		require.Equal(t, "badger", cfg.DbType)
		require.Equal(t, "websocket", cfg.Transport)
		require.Equal(t, defaultSweepInterval, cfg.SweepInterval)
		require.Equal(t, identity.SchemeStellar, cfg.Schemes["stellar"])
		require.Empty(t, cfg.Peers)
		require.Nil(t, cfg.UnlockerService())

		coord := cfg.CoordinatorConfig()
		require.Equal(t, 30*time.Minute, coord.SafetyMargin)
	})

	t.Run("config file", func(t *testing.T) {
		datadir := setup(t, map[string]string{
			"SAFETY_MARGIN":     "1h",
			"UNLOCKER_TYPE":     "env",
			"UNLOCKER_MNEMONIC": "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
		})
		peer := networkId(t)
		content := `
peers:
  - network_id: ` + peer + `
    address: ws://127.0.0.1:7071
whitelist:
  - network_id: ` + peer + `
    allow_swaps: true
    max_amount: 1000
gateways:
  - chain: stellar
    type: remote
    url: http://127.0.0.1:8000
    timeout: 15s
  - chain: ethereum
    type: memory
accounts:
  stellar: GABC
  ethereum: "0xabc"
schemes:
  bitcoin: schnorr
policy:
  pairs:
    - XLM@stellar/ETH@ethereum
  max_slippage_bps: 100
  min_lock_duration: 2h
`
		require.NoError(t, os.WriteFile(filepath.Join(datadir, defaultConfigFile), []byte(content), 0600))

		cfg, err := LoadConfig()
		require.NoError(t, err)
		require.NotNil(t, cfg.UnlockerService())
		require.Equal(t, map[string]string{peer: "ws://127.0.0.1:7071"}, cfg.PeerBook())

		whitelist := cfg.Whitelist()
		require.Len(t, whitelist, 1)
		require.True(t, whitelist[0].AllowSwaps)
		require.False(t, whitelist[0].AllowPayments)
		require.Equal(t, uint64(1000), whitelist[0].MaxAmount)

		require.Len(t, cfg.Gateways, 2)
		require.Equal(t, 15*time.Second, cfg.Gateways[0].Timeout)
		require.Equal(t, identity.SchemeSchnorr, cfg.Schemes["bitcoin"])
		require.Equal(t, identity.SchemeStellar, cfg.Schemes["stellar"])

		coord := cfg.CoordinatorConfig()
		require.Equal(t, "0xabc", coord.Accounts["ethereum"])
		require.Equal(t, uint32(100), coord.Policy.MaxSlippageBps)
		require.Equal(t, 2*time.Hour, coord.Policy.MinLockDuration)
		require.Len(t, coord.Policy.Pairs, 1)
		require.Equal(t, envelope.Asset{Chain: "stellar", Code: "XLM"}, coord.Policy.Pairs[0].From)
		require.Equal(t, envelope.Asset{Chain: "ethereum", Code: "ETH"}, coord.Policy.Pairs[0].To)
	})
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
		err  string
	}{
		{
			name: "missing safety margin",
			err:  "missing SAFETY_MARGIN",
		},
		{
			name: "sub-second safety margin",
			env:  map[string]string{"SAFETY_MARGIN": "500ms"},
			err:  "SAFETY_MARGIN must be at least 1s",
		},
		{
			name: "unknown db",
			env:  map[string]string{"SAFETY_MARGIN": "1h", "DB_TYPE": "postgres"},
			err:  "unsupported db type",
		},
		{
			name: "nats without url",
			env:  map[string]string{"SAFETY_MARGIN": "1h", "TRANSPORT": "nats"},
			err:  "missing NATS_URL",
		},
		{
			name: "unknown unlocker",
			env:  map[string]string{"SAFETY_MARGIN": "1h", "UNLOCKER_TYPE": "vault"},
			err:  "unknown unlocker type",
		},
		{
			name: "invalid peer",
			env:  map[string]string{"SAFETY_MARGIN": "1h"},
			file: "peers:\n  - network_id: nope\n    address: ws://x\n",
			err:  "peer nope",
		},
		{
			name: "invalid pair",
			env:  map[string]string{"SAFETY_MARGIN": "1h"},
			file: "policy:\n  pairs:\n    - XLM@stellar\n",
			err:  "invalid pair",
		},
		{
			name: "unknown gateway type",
			env:  map[string]string{"SAFETY_MARGIN": "1h"},
			file: "gateways:\n  - chain: stellar\n    type: horizon\n",
			err:  "unknown type",
		},
		{
			name: "unknown scheme",
			env:  map[string]string{"SAFETY_MARGIN": "1h"},
			file: "schemes:\n  ethereum: ecdsa\n",
			err:  "unknown account scheme",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			datadir := setup(t, tt.env)
			if tt.file != "" {
				require.NoError(t, os.WriteFile(filepath.Join(datadir, defaultConfigFile), []byte(tt.file), 0600))
			}
			_, err := LoadConfig()
			require.ErrorContains(t, err, tt.err)
		})
	}
}
