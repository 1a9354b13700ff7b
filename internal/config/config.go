// Package config loads the immutable, startup-time configuration and
// secrets for a single market-maker instance from a YAML file and the
// process environment, matching the chain id / network tag the instance
// targets.
package config

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// TokenConfig describes one ERC20 token's on-chain identity and display
// metadata.
type TokenConfig struct {
	Address  common.Address `yaml:"address"`
	Symbol   string         `yaml:"symbol"`
	Decimals uint8          `yaml:"decimals"`
}

// PriceFeedConfig selects and parameterizes the reference price source.
type PriceFeedConfig struct {
	Type    string         `yaml:"type"` // "chainlink" or "websocket"
	URL     string         `yaml:"url"`
	Oracle  common.Address `yaml:"oracle"`
	Reverse bool           `yaml:"reverse"`
}

// ExecutionConfig selects and parameterizes one of the three chain
// submission policies under exec/chain.
type ExecutionConfig struct {
	// Policy is "public_rpc", "private_relay", or "fast_preconf".
	Policy string `yaml:"policy"`

	InclusionBlocks     uint64 `yaml:"inclusion_blocks"`
	InclusionBlockDelay uint64 `yaml:"inclusion_block_delay"`
	MaxBundleBlocks     uint64 `yaml:"max_bundle_blocks"`
	PollIntervalMs      uint64 `yaml:"poll_interval_ms"`
	AckTimeoutMs        uint64 `yaml:"ack_timeout_ms"`

	RelayURL   string `yaml:"relay_url"`
	PreconfURL string `yaml:"preconf_url"`

	MaxFeePerGasCapGwei uint64 `yaml:"max_fee_per_gas_cap_gwei"`
}

// EventBusConfig names the Redis pub/sub channel both the publisher and the
// monitor's consumer use; the connection URL itself is a secret (see
// Secrets.EventBusURL), never committed alongside this file.
type EventBusConfig struct {
	Channel string `yaml:"channel"`
}

// Config is the full, immutable instance configuration loaded at startup.
type Config struct {
	InstanceID string   `yaml:"instance_id"`
	PairTag    string   `yaml:"pair_tag"`
	Network    string   `yaml:"network"`
	ChainID    uint64   `yaml:"chain_id"`
	RPCURLs    []string `yaml:"rpc_urls"`

	BaseToken  TokenConfig `yaml:"base_token"`
	QuoteToken TokenConfig `yaml:"quote_token"`
	GasToken   TokenConfig `yaml:"gas_token"`

	MinUSDTradeFloor float64 `yaml:"min_usd_trade_floor"`
	ReserveEpsilon   float64 `yaml:"reserve_epsilon"`

	MinWatchSpreadBps      float64 `yaml:"min_watch_spread_bps"`
	MinExecutableSpreadBps float64 `yaml:"min_executable_spread_bps"`
	MaxInventoryRatio      float64 `yaml:"max_inventory_ratio"`
	MaxSlippagePct         float64 `yaml:"max_slippage_pct"`
	OutlierThresholdBps    float64 `yaml:"outlier_threshold_bps"`

	TxGasLimit          uint64 `yaml:"tx_gas_limit"`
	BlockOffset         uint64 `yaml:"block_offset"`
	InclusionBlockDelay uint64 `yaml:"inclusion_block_delay"`
	DeadlineOffsetSec   uint64 `yaml:"deadline_offset_sec"`

	PollIntervalMs        uint64 `yaml:"poll_interval_ms"`
	MinPublishTimeframeMs uint64 `yaml:"min_publish_timeframe_ms"`

	RestartDelayMs        uint64 `yaml:"restart_delay_ms"`
	TestingRestartDelayMs uint64 `yaml:"testing_restart_delay_ms"`
	HeartbeatIntervalMs   uint64 `yaml:"heartbeat_interval_ms"`

	SkipSimulation   bool `yaml:"skip_simulation"`
	InfiniteApproval bool `yaml:"infinite_approval"`
	PublishEvents    bool `yaml:"publish_events"`
	Testing          bool `yaml:"testing"`

	PriceFeed         PriceFeedConfig `yaml:"price_feed"`
	GasTokenPriceFeed PriceFeedConfig `yaml:"gas_token_price_feed"`

	Execution ExecutionConfig `yaml:"execution"`
	EventBus  EventBusConfig  `yaml:"event_bus"`

	IndexerURL string         `yaml:"indexer_url"`
	Router     common.Address `yaml:"router"`
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// applyDefaults fills in fields that have a sane default when left unset in
// the YAML file, so existing config files stay valid as new knobs are added.
func (c *Config) applyDefaults() {
	if c.Execution.Policy == "" {
		c.Execution.Policy = "public_rpc"
	}
	if c.EventBus.Channel == "" {
		c.EventBus.Channel = "market-maker"
	}
}

// Validate checks the invariants the rest of the system assumes hold.
func (c *Config) Validate() error {
	if c.PairTag == "" {
		return fmt.Errorf("pair_tag is required")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("chain_id is required")
	}
	if len(c.RPCURLs) == 0 {
		return fmt.Errorf("at least one RPC URL is required")
	}
	if c.BaseToken.Address == (common.Address{}) {
		return fmt.Errorf("base_token.address is required")
	}
	if c.QuoteToken.Address == (common.Address{}) {
		return fmt.Errorf("quote_token.address is required")
	}
	if c.PriceFeed.Type != "chainlink" && c.PriceFeed.Type != "websocket" {
		return fmt.Errorf("price_feed.type must be \"chainlink\" or \"websocket\", got %q", c.PriceFeed.Type)
	}
	if c.MaxInventoryRatio <= 0 || c.MaxInventoryRatio > 1 {
		return fmt.Errorf("max_inventory_ratio must be in (0, 1]")
	}
	if c.MaxSlippagePct < 0 || c.MaxSlippagePct > 1 {
		return fmt.Errorf("max_slippage_pct must be in [0, 1]")
	}
	if c.TxGasLimit == 0 {
		return fmt.Errorf("tx_gas_limit is required")
	}
	if c.PollIntervalMs == 0 {
		return fmt.Errorf("poll_interval_ms is required")
	}
	switch c.Execution.Policy {
	case "public_rpc", "private_relay", "fast_preconf":
	default:
		return fmt.Errorf("execution.policy must be one of public_rpc, private_relay, fast_preconf, got %q", c.Execution.Policy)
	}
	return nil
}
