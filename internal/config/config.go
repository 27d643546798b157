package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/standardbounties/standardbounties/internal/fees"
)

// Config represents the complete daemon configuration
type Config struct {
	Daemon  DaemonConfig  `yaml:"daemon"`
	API     APIConfig     `yaml:"api"`
	Bounty  BountyConfig  `yaml:"bounty"`
	Factory FactoryConfig `yaml:"factory"`
	Ledger  LedgerConfig  `yaml:"ledger"`
}

// DaemonConfig contains daemon settings
type DaemonConfig struct {
	Port      int    `yaml:"port"`
	DataDir   string `yaml:"data_dir"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json" or "text"
}

// APIConfig contains API server settings
type APIConfig struct {
	// Rate limiting
	RateLimitRequests   int `yaml:"rate_limit_requests"`    // Max requests per window (default: 100)
	RateLimitWindowSecs int `yaml:"rate_limit_window_secs"` // Window duration in seconds (default: 60)

	// Connection limits
	MaxConcurrentConns int `yaml:"max_concurrent_conns"` // Max concurrent connections (default: 100)
	MaxRequestSize     int `yaml:"max_request_size"`     // Max request body size in bytes (default: 1MB)

	// Timeouts
	ReadTimeoutSecs  int `yaml:"read_timeout_secs"`  // Read timeout (default: 30)
	WriteTimeoutSecs int `yaml:"write_timeout_secs"` // Write timeout (default: 30)
	IdleTimeoutSecs  int `yaml:"idle_timeout_secs"`  // Idle connection timeout (default: 120)

	// Admin
	AdminWallets []string `yaml:"admin_wallets"` // Addresses allowed to call owner operations
}

// DefaultAPIConfig returns the default API configuration
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		RateLimitRequests:   100,
		RateLimitWindowSecs: 60,
		MaxConcurrentConns:  100,
		MaxRequestSize:      1024 * 1024, // 1MB
		ReadTimeoutSecs:     30,
		WriteTimeoutSecs:    30,
		IdleTimeoutSecs:     120,
	}
}

// BountyConfig contains bounty lifecycle settings
type BountyConfig struct {
	PlatformFeeBps  uint16 `yaml:"platform_fee_bps"`  // Payout fee in basis points (default: 250)
	FeeRecipient    string `yaml:"fee_recipient"`     // Address receiving platform fees; empty means instance owner
	MinDeadlineSecs int64  `yaml:"min_deadline_secs"` // Minimum deadline distance at creation (default: 3600)
	MaxDeadlineSecs int64  `yaml:"max_deadline_secs"` // Maximum deadline distance at creation (default: 365 days)
	MaxDataSize     int    `yaml:"max_data_size"`     // Max bounty/fulfillment data length in bytes (default: 64KB)
}

// DefaultBountyConfig returns the default bounty settings
func DefaultBountyConfig() BountyConfig {
	return BountyConfig{
		PlatformFeeBps:  250,
		MinDeadlineSecs: 3600,
		MaxDeadlineSecs: 365 * 24 * 3600,
		MaxDataSize:     64 * 1024,
	}
}

// FactoryConfig contains instance factory settings
type FactoryConfig struct {
	Address      string `yaml:"address"`        // Factory address used in instance address derivation
	OwnerWallet  string `yaml:"owner_wallet"`   // Default owner for instances deployed at startup
	DeployOnBoot int    `yaml:"deploy_on_boot"` // Instances to auto-deploy at startup (default: 1)
}

// DefaultFactoryConfig returns the default factory settings
func DefaultFactoryConfig() FactoryConfig {
	return FactoryConfig{
		Address:      "0x00000000000000000000000000000000000FAC70",
		OwnerWallet:  "0x0000000000000000000000000000000000000001",
		DeployOnBoot: 1,
	}
}

// SeedAccount pre-funds an address at startup. Amounts are decimal strings
// so values above 2^63 survive the YAML round trip.
type SeedAccount struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token,omitempty"` // empty means native currency
	Amount  string `yaml:"amount"`
}

// LedgerConfig contains asset ledger settings
type LedgerConfig struct {
	SeedAccounts []SeedAccount `yaml:"seed_accounts,omitempty"`
}

// DefaultConfig returns a configuration with sane defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".standardbounties")

	return &Config{
		Daemon: DaemonConfig{
			Port:      9400,
			DataDir:   dataDir,
			LogLevel:  "info",
			LogFormat: "text",
		},
		API:     DefaultAPIConfig(),
		Bounty:  DefaultBountyConfig(),
		Factory: DefaultFactoryConfig(),
	}
}

// Load reads configuration from a YAML file, overlaying defaults. A missing
// file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Daemon.DataDir = expandPath(cfg.Daemon.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	// Daemon validation
	if c.Daemon.Port < 1 || c.Daemon.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Daemon.Port)
	}
	if c.Daemon.LogFormat != "json" && c.Daemon.LogFormat != "text" {
		return fmt.Errorf("invalid log_format: %s", c.Daemon.LogFormat)
	}
	switch strings.ToLower(c.Daemon.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.Daemon.LogLevel)
	}

	// API validation
	if c.API.RateLimitRequests < 1 {
		return fmt.Errorf("rate_limit_requests must be at least 1")
	}
	if c.API.RateLimitWindowSecs < 1 {
		return fmt.Errorf("rate_limit_window_secs must be at least 1")
	}
	if c.API.MaxRequestSize < 1024 {
		return fmt.Errorf("max_request_size must be at least 1024 bytes, got %d", c.API.MaxRequestSize)
	}
	for _, w := range c.API.AdminWallets {
		if !common.IsHexAddress(w) {
			return fmt.Errorf("invalid admin wallet address: %s", w)
		}
	}

	// Bounty validation
	if !fees.ValidRate(c.Bounty.PlatformFeeBps) {
		return fmt.Errorf("platform_fee_bps must be at most %d, got %d", fees.MaxFeeRate, c.Bounty.PlatformFeeBps)
	}
	if c.Bounty.FeeRecipient != "" && !common.IsHexAddress(c.Bounty.FeeRecipient) {
		return fmt.Errorf("invalid fee_recipient address: %s", c.Bounty.FeeRecipient)
	}
	if c.Bounty.MinDeadlineSecs < 1 {
		return fmt.Errorf("min_deadline_secs must be positive")
	}
	if c.Bounty.MaxDeadlineSecs <= c.Bounty.MinDeadlineSecs {
		return fmt.Errorf("max_deadline_secs must exceed min_deadline_secs")
	}
	if c.Bounty.MaxDataSize < 1 {
		return fmt.Errorf("max_data_size must be positive")
	}

	// Factory validation
	if !common.IsHexAddress(c.Factory.Address) {
		return fmt.Errorf("invalid factory address: %s", c.Factory.Address)
	}
	if !common.IsHexAddress(c.Factory.OwnerWallet) {
		return fmt.Errorf("invalid factory owner_wallet: %s", c.Factory.OwnerWallet)
	}
	if c.Factory.DeployOnBoot < 0 {
		return fmt.Errorf("deploy_on_boot cannot be negative")
	}

	// Ledger validation
	for i, acct := range c.Ledger.SeedAccounts {
		if !common.IsHexAddress(acct.Address) {
			return fmt.Errorf("seed account %d: invalid address %s", i, acct.Address)
		}
		if acct.Token != "" && !common.IsHexAddress(acct.Token) {
			return fmt.Errorf("seed account %d: invalid token %s", i, acct.Token)
		}
		if acct.Amount == "" {
			return fmt.Errorf("seed account %d: amount is required", i)
		}
	}

	return nil
}

// expandPath expands ~ to the user home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
