package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if cfg.Bounty.PlatformFeeBps != 250 {
		t.Errorf("default fee = %d, want 250", cfg.Bounty.PlatformFeeBps)
	}
	if cfg.Bounty.MinDeadlineSecs != 3600 {
		t.Errorf("default min deadline = %d, want 3600", cfg.Bounty.MinDeadlineSecs)
	}
	if cfg.Bounty.MaxDeadlineSecs != 365*24*3600 {
		t.Errorf("default max deadline = %d", cfg.Bounty.MaxDeadlineSecs)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Daemon.Port != DefaultConfig().Daemon.Port {
		t.Errorf("port = %d, want default", cfg.Daemon.Port)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Daemon.Port = 9999
	cfg.Bounty.PlatformFeeBps = 500
	cfg.API.AdminWallets = []string{"0x0000000000000000000000000000000000000001"}
	cfg.Ledger.SeedAccounts = []SeedAccount{
		{Address: "0x0000000000000000000000000000000000000002", Amount: "1000000000000000000"},
	}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Daemon.Port != 9999 {
		t.Errorf("port = %d, want 9999", loaded.Daemon.Port)
	}
	if loaded.Bounty.PlatformFeeBps != 500 {
		t.Errorf("fee = %d, want 500", loaded.Bounty.PlatformFeeBps)
	}
	if len(loaded.Ledger.SeedAccounts) != 1 || loaded.Ledger.SeedAccounts[0].Amount != "1000000000000000000" {
		t.Errorf("seed accounts = %+v", loaded.Ledger.SeedAccounts)
	}
}

func TestLoadPartialOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("bounty:\n  platform_fee_bps: 100\n")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Bounty.PlatformFeeBps != 100 {
		t.Errorf("fee = %d, want 100", cfg.Bounty.PlatformFeeBps)
	}
	// Untouched sections keep their defaults
	if cfg.Daemon.Port != DefaultConfig().Daemon.Port {
		t.Errorf("port = %d, want default", cfg.Daemon.Port)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Daemon.Port = 0 }},
		{"bad log format", func(c *Config) { c.Daemon.LogFormat = "xml" }},
		{"bad log level", func(c *Config) { c.Daemon.LogLevel = "verbose" }},
		{"fee over ceiling", func(c *Config) { c.Bounty.PlatformFeeBps = 1500 }},
		{"bad fee recipient", func(c *Config) { c.Bounty.FeeRecipient = "not-an-address" }},
		{"zero min deadline", func(c *Config) { c.Bounty.MinDeadlineSecs = 0 }},
		{"inverted deadline window", func(c *Config) { c.Bounty.MaxDeadlineSecs = c.Bounty.MinDeadlineSecs }},
		{"bad factory address", func(c *Config) { c.Factory.Address = "zzz" }},
		{"negative deploy count", func(c *Config) { c.Factory.DeployOnBoot = -1 }},
		{"bad admin wallet", func(c *Config) { c.API.AdminWallets = []string{"nope"} }},
		{"zero rate limit", func(c *Config) { c.API.RateLimitRequests = 0 }},
		{"seed account without amount", func(c *Config) {
			c.Ledger.SeedAccounts = []SeedAccount{{Address: "0x0000000000000000000000000000000000000001"}}
		}},
		{"seed account bad address", func(c *Config) {
			c.Ledger.SeedAccounts = []SeedAccount{{Address: "xyz", Amount: "1"}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateAcceptsFeeCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bounty.PlatformFeeBps = 1000
	if err := cfg.Validate(); err != nil {
		t.Errorf("1000 bps rejected: %v", err)
	}
}
