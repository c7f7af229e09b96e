// Package config handles configuration loading and validation.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gateway-fm/cyclebot/internal/network"
	"github.com/gateway-fm/cyclebot/pkg/types"
)

// ConfigurationError reports an invalid or missing configuration value.
// It is fatal at startup.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Msg)
}

// NewConfigurationError creates a ConfigurationError for field.
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// UniswapConfig holds the V2-style router used by the swap-pair adapter.
type UniswapConfig struct {
	Router string            `yaml:"router"`
	WETH   string            `yaml:"weth"`
	Tokens map[string]string `yaml:"tokens"` // symbol -> address
}

// BeanSwapConfig holds the router used by the router wrap/unwrap adapter.
type BeanSwapConfig struct {
	Router string `yaml:"router"`
	WMON   string `yaml:"wmon"`
	USDC   string `yaml:"usdc"`
}

// RawCallConfig holds a pre-encoded contract call. Occurrences of {wallet} in
// Data are replaced with the wallet address (hex, no 0x prefix).
type RawCallConfig struct {
	Router string `yaml:"router"`
	Data   string `yaml:"data"`
}

// Contracts holds per-protocol contract addresses.
type Contracts struct {
	WMON           string         `yaml:"wmon"`
	Monorail       RawCallConfig  `yaml:"monorail"`
	Uniswap        UniswapConfig  `yaml:"uniswap"`
	BeanSwap       BeanSwapConfig `yaml:"beanswap"`
	Magma          string         `yaml:"magma"`
	APrioriStaking string         `yaml:"aPrioriStaking"`
	Kitsu          string         `yaml:"kitsu"`
}

// GasConfig holds per-operation gas limits.
type GasConfig struct {
	Stake    uint64  `yaml:"stake"`
	Unstake  uint64  `yaml:"unstake"`
	Swap     uint64  `yaml:"swap"`
	Transfer uint64  `yaml:"transfer"`
	Deploy   uint64  `yaml:"deploy"`
	MaxGwei  float64 `yaml:"maxGwei"` // 0 disables the gas price guard
}

// RetryConfig holds retry parameters.
type RetryConfig struct {
	MaxRetries     int `yaml:"maxRetries"`
	BackoffMS      int `yaml:"backoffMs"`
	VaultBackoffMS int `yaml:"vaultBackoffMs"`
}

// Backoff returns the default backoff as a duration.
func (r RetryConfig) Backoff() time.Duration {
	return time.Duration(r.BackoffMS) * time.Millisecond
}

// VaultBackoff returns the vault staking backoff as a duration.
func (r RetryConfig) VaultBackoff() time.Duration {
	return time.Duration(r.VaultBackoffMS) * time.Millisecond
}

// Config holds cycle bot configuration.
type Config struct {
	RPCURL         string            `yaml:"rpc"`
	RPCRateLimit   float64           `yaml:"rpcRateLimit"` // requests per second, 0 = unlimited
	Network        string            `yaml:"network"`
	ChainID        int64             `yaml:"chainId"` // 0 = from network profile
	KeysFile       string            `yaml:"keysFile"`
	RecipientsFile string            `yaml:"recipientsFile"`
	ListenAddr     string            `yaml:"listen"`   // empty disables the HTTP API
	DatabasePath   string            `yaml:"database"` // empty disables the run journal
	LogLevel       string            `yaml:"logLevel"`
	LogFormat      string            `yaml:"logFormat"`
	Seed           uint64            `yaml:"seed"` // 0 = random
	Cycles         types.CycleConfig `yaml:"cycles"`
	Contracts      Contracts         `yaml:"contracts"`
	Gas            GasConfig         `yaml:"gas"`
	Retry          RetryConfig       `yaml:"retry"`
	InterWalletMS  int               `yaml:"interWalletMs"`
	InitDelayMS    int               `yaml:"initDelayMs"`

	// Profile holds the resolved network profile.
	// This is populated automatically based on Network.
	Profile *network.Profile `yaml:"-"`
}

// Defaults
const (
	DefaultRPCURL         = "https://testnet-rpc.monad.xyz"
	DefaultNetwork        = "monad-testnet"
	DefaultKeysFile       = "./private.key"
	DefaultRecipientsFile = "./wallets.txt"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultCycles         = 10
	DefaultAmountMin      = 0.001
	DefaultAmountMax      = 0.003
	DefaultDelayMinMS     = 30000
	DefaultDelayMaxMS     = 60000
	DefaultGasStake       = 500000
	DefaultGasUnstake     = 800000
	DefaultGasSwap        = 500000
	DefaultGasTransfer    = 21000
	DefaultGasDeploy      = 3000000
	DefaultMaxRetries     = 5
	DefaultBackoffMS      = 1000
	DefaultVaultBackoffMS = 5000
	DefaultInterWalletMS  = 3000
	DefaultInitDelayMS    = 1000

	// DefaultWMON is the wrapped-native token on Monad testnet.
	DefaultWMON = "0x760AfE86e5de5fa0Ee542fc7B7B713e1c5425701"
)

// MaxDelayMS is the largest delay, in milliseconds, a time.Duration can hold.
const MaxDelayMS = int64(math.MaxInt64 / int64(time.Millisecond))

// DefaultMonorailData is the aggregator calldata template submitted by the
// raw-call adapter. {wallet} is replaced with the wallet address.
const DefaultMonorailData = "0x96f25cbe0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000e0590015a873bf326bd645c3e1266d4db41c4e6b000000000000000000000000000000000000000000000000016345785d8a0000000000000000000000000000000000000000000000000000000000000000010000000000000000000000000000000000000000000000000000000000000001a0000000000000000000000000{wallet}000000000000000000000000000000000000000000000000542f8f7c3d64ce470000000000000000000000000000000000000000000000000000002885eeed3400000000000000000000000000000000000000000000000000000000000000040000000000000000000000000000000000000000000000000000000000000000400000000000000000000000000000000000000000000000000000000000000080000000000000000000000000000000000000000000000000000000000000000c0000000000000000000000000000000000000000000000000000000000000014000000000000000000000000000000000000000000000000000000000000002800000000000000000000000000000000000000000000000000000000000000004d0e30db0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000044095ea7b3000000000000000000000000cba6b9a951749b8735c603e7ffc5151849248772000000000000000000000000000000000000000000000000016345785d8a000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000010438ed1739000000000000000000000000000000000000000000000000016345785d8a0000000000000000000000000000000000000000000000000000542f8f7c3d64ce4700000000000000000000000000000000000000000000000000000000000000a0000000000000000000000000c995498c22a012353fae7ecc701810d673e257940000000000000000000000000000000000000000000000000000002885eeed340000000000000000000000000000000000000000000000000000000000000002000000000000000000000000760afe86e5de5fa0ee542fc7b7b713e1c5425701000000000000000000000000e0590015a873bf326bd645c3e1266d4db41c4e6b000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000044095ea7b3000000000000000000000000cba6b9a951749b8735c603e7ffc5151849248772000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000"

// Default returns a configuration populated with defaults.
func Default() *Config {
	return &Config{
		RPCURL:         DefaultRPCURL,
		Network:        DefaultNetwork,
		KeysFile:       DefaultKeysFile,
		RecipientsFile: DefaultRecipientsFile,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
		Cycles: types.CycleConfig{
			Total:   DefaultCycles,
			Amounts: types.Bounds{Min: DefaultAmountMin, Max: DefaultAmountMax},
			Delays:  types.DelayBounds{Min: DefaultDelayMinMS, Max: DefaultDelayMaxMS},
		},
		Contracts: Contracts{
			WMON:     DefaultWMON,
			Monorail: RawCallConfig{Data: DefaultMonorailData},
		},
		Gas: GasConfig{
			Stake:    DefaultGasStake,
			Unstake:  DefaultGasUnstake,
			Swap:     DefaultGasSwap,
			Transfer: DefaultGasTransfer,
			Deploy:   DefaultGasDeploy,
		},
		Retry: RetryConfig{
			MaxRetries:     DefaultMaxRetries,
			BackoffMS:      DefaultBackoffMS,
			VaultBackoffMS: DefaultVaultBackoffMS,
		},
		InterWalletMS: DefaultInterWalletMS,
		InitDelayMS:   DefaultInitDelayMS,
	}
}

// InterWalletDelay returns the fixed pause between wallets.
func (c *Config) InterWalletDelay() time.Duration {
	return time.Duration(c.InterWalletMS) * time.Millisecond
}

// InitDelay returns the pause between adapter initializations.
func (c *Config) InitDelay() time.Duration {
	return time.Duration(c.InitDelayMS) * time.Millisecond
}

// LoadFile merges a YAML file into cfg. Keys absent from the file keep their
// current value; unknown keys are rejected.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return NewConfigurationError(path, "invalid YAML: %v", err)
	}
	return nil
}

// Load builds the configuration from defaults, an optional YAML file,
// environment variables and command-line flags, in increasing precedence.
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("cyclebot", flag.ContinueOnError)
	var (
		configPath = fs.String("config", os.Getenv("CONFIG_FILE"), "Path to YAML config file")
		rpcURL     = fs.String("rpc", "", "Network RPC URL")
		rpcRate    = fs.Float64("rpc-rate", 0, "Max RPC requests per second (0 = unlimited)")
		netName    = fs.String("network", "", "Network profile (monad-testnet, anvil)")
		chainID    = fs.Int64("chainid", 0, "Chain ID override")
		keysFile   = fs.String("keys", "", "Private key file (one hex key per line)")
		recipients = fs.String("recipients", "", "Recipient address file (one per line)")
		listen     = fs.String("listen", "", "HTTP listen address (empty disables)")
		dbPath     = fs.String("db", "", "SQLite run journal path (empty disables)")
		logLevel   = fs.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat  = fs.String("log-format", "", "Log format (text, json)")
		seed       = fs.Uint64("seed", 0, "Random seed (0 = random)")
		cycles     = fs.Int("cycles", 0, "Cycles per wallet")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		if err := LoadFile(cfg, *configPath); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "rpc":
			cfg.RPCURL = *rpcURL
		case "rpc-rate":
			cfg.RPCRateLimit = *rpcRate
		case "network":
			cfg.Network = *netName
		case "chainid":
			cfg.ChainID = *chainID
		case "keys":
			cfg.KeysFile = *keysFile
		case "recipients":
			cfg.RecipientsFile = *recipients
		case "listen":
			cfg.ListenAddr = *listen
		case "db":
			cfg.DatabasePath = *dbPath
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "seed":
			cfg.Seed = *seed
		case "cycles":
			cfg.Cycles.Total = *cycles
		}
	})

	if err := cfg.Resolve(network.DefaultRegistry()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides cfg from the environment. A variable that is set but
// cannot be parsed is a ConfigurationError.
func applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	str("RPC_URL", &cfg.RPCURL)
	str("NETWORK", &cfg.Network)
	str("KEYS_FILE", &cfg.KeysFile)
	str("RECIPIENTS_FILE", &cfg.RecipientsFile)
	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("DATABASE_PATH", &cfg.DatabasePath)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	if v := os.Getenv("RPC_RATE_LIMIT"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return NewConfigurationError("RPC_RATE_LIMIT", "invalid number %q", v)
		}
		cfg.RPCRateLimit = r
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return NewConfigurationError("CHAIN_ID", "invalid integer %q", v)
		}
		cfg.ChainID = id
	}
	if v := os.Getenv("CYCLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return NewConfigurationError("CYCLES", "invalid integer %q", v)
		}
		cfg.Cycles.Total = n
	}
	return nil
}

// Resolve looks up the network profile and fills in the chain ID.
func (c *Config) Resolve(reg *network.Registry) error {
	c.Profile = reg.Get(c.Network)
	if c.Profile == nil {
		return NewConfigurationError("network", "unknown network %q (supported: %v)", c.Network, reg.Names())
	}
	if c.ChainID == 0 {
		c.ChainID = c.Profile.ChainID
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return NewConfigurationError("rpc", "RPC URL is required")
	}
	if !finite(c.RPCRateLimit) || c.RPCRateLimit < 0 {
		return NewConfigurationError("rpcRateLimit", "must be a finite non-negative rate, got %v", c.RPCRateLimit)
	}
	if c.ChainID <= 0 {
		return NewConfigurationError("chainId", "chain ID must be positive")
	}
	if c.KeysFile == "" {
		return NewConfigurationError("keysFile", "private key file is required")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return NewConfigurationError("logFormat", "must be text or json, got %q", c.LogFormat)
	}
	if c.Cycles.Total <= 0 {
		return NewConfigurationError("cycles.default", "must be positive, got %d", c.Cycles.Total)
	}
	if !finite(c.Cycles.Amounts.Min) || !finite(c.Cycles.Amounts.Max) {
		return NewConfigurationError("cycles.amounts", "bounds must be finite, got [%v, %v]", c.Cycles.Amounts.Min, c.Cycles.Amounts.Max)
	}
	if c.Cycles.Amounts.Min < 0 || c.Cycles.Amounts.Min > c.Cycles.Amounts.Max {
		return NewConfigurationError("cycles.amounts", "invalid bounds [%v, %v]", c.Cycles.Amounts.Min, c.Cycles.Amounts.Max)
	}
	if c.Cycles.Delays.Min < 0 || c.Cycles.Delays.Min > c.Cycles.Delays.Max {
		return NewConfigurationError("cycles.delays", "invalid bounds [%d, %d]", c.Cycles.Delays.Min, c.Cycles.Delays.Max)
	}
	if c.Cycles.Delays.Max > MaxDelayMS {
		return NewConfigurationError("cycles.delays", "max %d exceeds %d ms", c.Cycles.Delays.Max, MaxDelayMS)
	}
	if c.Retry.MaxRetries < 0 {
		return NewConfigurationError("retry.maxRetries", "cannot be negative")
	}
	if int64(c.Retry.BackoffMS) > MaxDelayMS || int64(c.Retry.VaultBackoffMS) > MaxDelayMS {
		return NewConfigurationError("retry", "backoff exceeds %d ms", MaxDelayMS)
	}
	if c.Retry.BackoffMS < 0 || c.Retry.VaultBackoffMS < 0 {
		return NewConfigurationError("retry", "backoff cannot be negative")
	}
	if c.Gas.Stake == 0 || c.Gas.Unstake == 0 || c.Gas.Swap == 0 || c.Gas.Transfer == 0 || c.Gas.Deploy == 0 {
		return NewConfigurationError("gas", "gas limits must be positive")
	}
	if c.InterWalletMS < 0 || int64(c.InterWalletMS) > MaxDelayMS {
		return NewConfigurationError("interWalletMs", "must be in [0, %d], got %d", MaxDelayMS, c.InterWalletMS)
	}
	if c.InitDelayMS < 0 || int64(c.InitDelayMS) > MaxDelayMS {
		return NewConfigurationError("initDelayMs", "must be in [0, %d], got %d", MaxDelayMS, c.InitDelayMS)
	}
	if !finite(c.Gas.MaxGwei) || c.Gas.MaxGwei < 0 {
		return NewConfigurationError("gas.maxGwei", "must be finite and non-negative, got %v", c.Gas.MaxGwei)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
