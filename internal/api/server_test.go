package api

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestLimiterRateUsesConfiguredWindow(t *testing.T) {
	cases := []struct {
		name   string
		limit  int
		window time.Duration
		want   rate.Limit
	}{
		{"per second", 5, time.Second, 5},
		{"per minute", 120, time.Minute, 2},
		{"ten second window", 50, 10 * time.Second, 5},
		{"zero window falls back to a minute", 60, 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			cfg.RateLimit = tc.limit
			cfg.RateLimitWindow = tc.window
			s := NewServer(cfg, nil, nil)

			if got := s.limiterRate(); got != tc.want {
				t.Errorf("limiterRate() = %v, want %v", got, tc.want)
			}
			if got := s.getRateLimiter("10.0.0.1").Limit(); got != tc.want {
				t.Errorf("limiter rate = %v, want %v", got, tc.want)
			}
		})
	}
}
