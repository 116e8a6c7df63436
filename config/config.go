package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	tmcfg "github.com/tendermint/tendermint/config"
)

const (
	// DefaultGuardDir is the default home directory of a guard node.
	DefaultGuardDir = ".guardbft"

	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName   = "config.toml"
	defaultGuardSetFileName = "guard_set.json"
	defaultGuardKeyName     = "guard_key.json"
	defaultNodeKeyName      = "node_key.json"
)

var (
	defaultGuardSetPath = filepath.Join(defaultConfigDir, defaultGuardSetFileName)
	defaultGuardKeyPath = filepath.Join(defaultConfigDir, defaultGuardKeyName)
	defaultNodeKeyPath  = filepath.Join(defaultConfigDir, defaultNodeKeyName)
)

// Config defines the top level configuration of a guard node.
// The base, rpc and p2p sections are the tendermint ones.
type Config struct {
	tmcfg.BaseConfig `mapstructure:",squash"`

	RPC       *tmcfg.RPCConfig `mapstructure:"rpc"`
	P2P       *tmcfg.P2PConfig `mapstructure:"p2p"`
	Consensus *ConsensusConfig `mapstructure:"consensus"`
	Feed      *FeedConfig      `mapstructure:"feed"`
	Chain     *ChainConfig     `mapstructure:"chain"`
}

// DefaultConfig returns a default configuration for a guard node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig: defaultBaseConfig(tmcfg.DefaultBaseConfig()),
		RPC:        tmcfg.DefaultRPCConfig(),
		P2P:        tmcfg.DefaultP2PConfig(),
		Consensus:  DefaultConsensusConfig(),
		Feed:       DefaultFeedConfig(),
		Chain:      DefaultChainConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig: defaultBaseConfig(tmcfg.TestBaseConfig()),
		RPC:        tmcfg.TestRPCConfig(),
		P2P:        tmcfg.TestP2PConfig(),
		Consensus:  TestConsensusConfig(),
		Feed:       DefaultFeedConfig(),
		Chain:      DefaultChainConfig(),
	}
}

func defaultBaseConfig(base tmcfg.BaseConfig) tmcfg.BaseConfig {
	base.Moniker = "guard"
	base.Genesis = defaultGuardSetPath
	base.PrivValidatorKey = defaultGuardKeyPath
	base.NodeKey = defaultNodeKeyPath
	return base
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.RPC.RootDir = root
	cfg.P2P.RootDir = root
	cfg.Consensus.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.RPC.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [rpc] section: %w", err)
	}
	if err := cfg.P2P.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [p2p] section: %w", err)
	}
	if err := cfg.Consensus.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [consensus] section: %w", err)
	}
	if err := cfg.Feed.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [feed] section: %w", err)
	}
	if err := cfg.Chain.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [chain] section: %w", err)
	}
	return nil
}

// GuardSetFile returns the full path to the guard set file.
func (cfg *Config) GuardSetFile() string {
	return cfg.GenesisFile()
}

// GuardKeyFile returns the full path to the guard secp256k1 key file.
func (cfg *Config) GuardKeyFile() string {
	return cfg.PrivValidatorKeyFile()
}

// ConfigFile returns the full path to config.toml.
func (cfg *Config) ConfigFile() string {
	return filepath.Join(cfg.RootDir, defaultConfigDir, defaultConfigFileName)
}

//-----------------------------------------------------------------------------
// ConsensusConfig

// ConsensusConfig defines the configuration for the guard consensus core.
type ConsensusConfig struct {
	RootDir string `mapstructure:"home"`

	// Height of the last block before the guards start. The first block
	// handed to the core must be GenesisHeight+1.
	GenesisHeight uint64 `mapstructure:"genesis_height"`

	// How long a guard waits for the leader proposal before voting nil
	TimeoutPropose time.Duration `mapstructure:"timeout_propose"`
	// How long a guard waits for 2/3 commits before moving to the next round
	TimeoutCommit time.Duration `mapstructure:"timeout_commit"`

	// Capacity of the inbound peer message queue
	PeerQueueSize int `mapstructure:"peer_queue_size"`
}

// DefaultConsensusConfig returns a default configuration for the consensus service
func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		GenesisHeight:  0,
		TimeoutPropose: 3000 * time.Millisecond,
		TimeoutCommit:  2000 * time.Millisecond,
		PeerQueueSize:  1000,
	}
}

// TestConsensusConfig returns a configuration for testing the consensus service
func TestConsensusConfig() *ConsensusConfig {
	cfg := DefaultConsensusConfig()
	cfg.TimeoutPropose = 400 * time.Millisecond
	cfg.TimeoutCommit = 400 * time.Millisecond
	cfg.PeerQueueSize = 100
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *ConsensusConfig) ValidateBasic() error {
	if cfg.TimeoutPropose <= 0 {
		return errors.New("timeout_propose must be positive")
	}
	if cfg.TimeoutCommit <= 0 {
		return errors.New("timeout_commit must be positive")
	}
	if cfg.PeerQueueSize < 0 {
		return errors.New("peer_queue_size can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// FeedConfig

// FeedConfig defines the websocket feed of outbound consensus messages.
type FeedConfig struct {
	// Route on the rpc listen address, empty disables the feed
	Path string `mapstructure:"path"`

	MaxConnections int           `mapstructure:"max_connections"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	// Messages buffered per connection before it is dropped
	SendBufferSize int `mapstructure:"send_buffer_size"`
}

func DefaultFeedConfig() *FeedConfig {
	return &FeedConfig{
		Path:           "/feed",
		MaxConnections: 100,
		WriteWait:      10 * time.Second,
		PingPeriod:     30 * time.Second,
		SendBufferSize: 256,
	}
}

func (cfg *FeedConfig) ValidateBasic() error {
	if cfg.MaxConnections < 0 {
		return errors.New("max_connections can't be negative")
	}
	if cfg.WriteWait <= 0 {
		return errors.New("write_wait must be positive")
	}
	if cfg.PingPeriod <= 0 {
		return errors.New("ping_period must be positive")
	}
	if cfg.SendBufferSize <= 0 {
		return errors.New("send_buffer_size must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// ChainConfig

// ChainConfig defines where the guard follows the chain it settles on.
type ChainConfig struct {
	// Websocket endpoint of an ethereum node, empty disables the head watcher
	EthURL string `mapstructure:"eth_url"`

	// Delay before resubscribing after the head subscription failed
	ResubscribeDelay time.Duration `mapstructure:"resubscribe_delay"`
}

func DefaultChainConfig() *ChainConfig {
	return &ChainConfig{
		ResubscribeDelay: 2 * time.Second,
	}
}

func (cfg *ChainConfig) ValidateBasic() error {
	if cfg.ResubscribeDelay <= 0 {
		return errors.New("resubscribe_delay must be positive")
	}
	return nil
}
