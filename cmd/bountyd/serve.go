package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/standardbounties/standardbounties/internal/api"
	"github.com/standardbounties/standardbounties/internal/assets"
	"github.com/standardbounties/standardbounties/internal/bounty"
	"github.com/standardbounties/standardbounties/internal/config"
	"github.com/standardbounties/standardbounties/internal/factory"
	"github.com/standardbounties/standardbounties/internal/logging"
	"github.com/standardbounties/standardbounties/internal/metrics"
	"github.com/standardbounties/standardbounties/internal/util"
	"github.com/standardbounties/standardbounties/pkg/types"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bounty daemon",
		Long:  "Load configuration, deploy the configured instances, and serve the HTTP API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	setupLogging(cfg)

	bank := assets.NewLedger()
	if err := seedLedger(bank, cfg); err != nil {
		return fmt.Errorf("seed ledger: %w", err)
	}

	impl := bounty.NewImplementation(bounty.Params{
		MinDeadline: time.Duration(cfg.Bounty.MinDeadlineSecs) * time.Second,
		MaxDeadline: time.Duration(cfg.Bounty.MaxDeadlineSecs) * time.Second,
		MaxDataSize: cfg.Bounty.MaxDataSize,
	})
	f := factory.New(common.HexToAddress(cfg.Factory.Address), impl, bank)

	owner := common.HexToAddress(cfg.Factory.OwnerWallet)
	for i := 0; i < cfg.Factory.DeployOnBoot; i++ {
		in, err := f.DeployInstanceAuto(owner)
		if err != nil {
			return fmt.Errorf("deploy instance %d: %w", i, err)
		}
		if cfg.Bounty.PlatformFeeBps != 0 {
			if err := in.SetPlatformFeeRate(owner, cfg.Bounty.PlatformFeeBps); err != nil {
				return fmt.Errorf("set platform fee: %w", err)
			}
		}
		if cfg.Bounty.FeeRecipient != "" {
			if err := in.SetFeeRecipient(owner, common.HexToAddress(cfg.Bounty.FeeRecipient)); err != nil {
				return fmt.Errorf("set fee recipient: %w", err)
			}
		}
	}

	collector := metrics.NewPrometheusCollector(metrics.NewCollector())
	collector.SetInstanceCount(f.Count())

	srvCfg := api.DefaultServerConfig()
	srvCfg.HTTPAddr = fmt.Sprintf(":%d", cfg.Daemon.Port)
	srvCfg.RateLimit = cfg.API.RateLimitRequests
	srvCfg.RateLimitWindow = time.Duration(cfg.API.RateLimitWindowSecs) * time.Second
	srvCfg.MaxRequestSize = int64(cfg.API.MaxRequestSize)
	srvCfg.MaxConcurrentConns = cfg.API.MaxConcurrentConns
	srvCfg.ReadHeaderTimeout = time.Duration(cfg.API.ReadTimeoutSecs) * time.Second
	srvCfg.WriteTimeout = time.Duration(cfg.API.WriteTimeoutSecs) * time.Second
	srvCfg.IdleTimeout = time.Duration(cfg.API.IdleTimeoutSecs) * time.Second
	srvCfg.AdminWallets = cfg.API.AdminWallets

	server := api.NewServer(srvCfg, f, bank)
	server.SetMetricsCollector(collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	// Keep the goroutine gauge fresh between scrapes
	util.SafeGoWithName("goroutine-sampler", func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collector.UpdateGoroutineCount()
			}
		}
	})

	fmt.Printf("bountyd started on port %d with %d instance(s)\n", cfg.Daemon.Port, f.Count())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	fmt.Println("\nShutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Stop(shutdownCtx)
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.Daemon.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Daemon.LogFormat == "text" {
		logging.SetLogger(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})))
	} else {
		logging.SetLevel(level)
	}
}

func seedLedger(bank *assets.Ledger, cfg *config.Config) error {
	for i, acct := range cfg.Ledger.SeedAccounts {
		amount, ok := new(big.Int).SetString(acct.Amount, 10)
		if !ok || amount.Sign() < 0 {
			return fmt.Errorf("seed account %d: invalid amount %q", i, acct.Amount)
		}
		token := types.NativeToken
		if acct.Token != "" {
			token = common.HexToAddress(acct.Token)
		}
		bank.Mint(token, common.HexToAddress(acct.Address), amount)
	}
	return nil
}
