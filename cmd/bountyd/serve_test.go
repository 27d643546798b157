package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/standardbounties/standardbounties/internal/config"
	"github.com/standardbounties/standardbounties/internal/logging"
)

func TestSetupLoggingHonorsLevel(t *testing.T) {
	orig := logging.Logger()
	defer logging.SetLogger(orig)

	cases := []struct {
		format      string
		level       string
		wantAllowed slog.Level
		wantBlocked slog.Level
	}{
		{"text", "error", slog.LevelError, slog.LevelWarn},
		{"text", "warn", slog.LevelWarn, slog.LevelInfo},
		{"text", "debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"json", "warn", slog.LevelWarn, slog.LevelInfo},
	}
	for _, tc := range cases {
		cfg := config.DefaultConfig()
		cfg.Daemon.LogFormat = tc.format
		cfg.Daemon.LogLevel = tc.level
		setupLogging(cfg)

		h := logging.Logger().Handler()
		if !h.Enabled(context.Background(), tc.wantAllowed) {
			t.Errorf("%s/%s: level %v should be enabled", tc.format, tc.level, tc.wantAllowed)
		}
		if h.Enabled(context.Background(), tc.wantBlocked) {
			t.Errorf("%s/%s: level %v should be disabled", tc.format, tc.level, tc.wantBlocked)
		}
	}
}
