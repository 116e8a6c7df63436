package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ValidateBasic())

	cfg.SetRoot("/foo")
	assert.Equal(t, "/foo/config/guard_set.json", cfg.GuardSetFile())
	assert.Equal(t, "/foo/config/guard_key.json", cfg.GuardKeyFile())
	assert.Equal(t, "/foo/config/node_key.json", cfg.NodeKeyFile())
	assert.Equal(t, "/foo/config/config.toml", cfg.ConfigFile())

	assert.NoError(t, TestConfig().ValidateBasic())
}

func TestConfigValidateBasic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Consensus.TimeoutPropose = 0
	assert.Error(t, cfg.ValidateBasic())

	cfg = DefaultConfig()
	cfg.Feed.SendBufferSize = 0
	assert.Error(t, cfg.ValidateBasic())

	cfg = DefaultConfig()
	cfg.Chain.ResubscribeDelay = -time.Second
	assert.Error(t, cfg.ValidateBasic())
}

func TestEnsureRootAndLoad(t *testing.T) {
	root := t.TempDir()
	EnsureRoot(root)

	bz, err := ioutil.ReadFile(filepath.Join(root, "config", "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(bz), "[consensus]")

	v := viper.New()
	v.SetConfigFile(filepath.Join(root, "config", "config.toml"))
	require.NoError(t, v.ReadInConfig())

	cfg := DefaultConfig()
	require.NoError(t, v.Unmarshal(cfg))
	cfg.SetRoot(root)
	require.NoError(t, cfg.ValidateBasic())

	def := DefaultConfig()
	assert.Equal(t, def.Consensus.TimeoutPropose, cfg.Consensus.TimeoutPropose)
	assert.Equal(t, 30*time.Second, cfg.Feed.PingPeriod)
	assert.Equal(t, 2*time.Second, cfg.Chain.ResubscribeDelay)
	assert.Empty(t, cfg.Chain.EthURL)
	assert.Equal(t, def.RPC.ListenAddress, cfg.RPC.ListenAddress)
	assert.Equal(t, filepath.Join(root, "config", "guard_set.json"), cfg.GuardSetFile())
}
