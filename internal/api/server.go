package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"github.com/standardbounties/standardbounties/internal/assets"
	"github.com/standardbounties/standardbounties/internal/factory"
	"github.com/standardbounties/standardbounties/internal/logging"
	"github.com/standardbounties/standardbounties/internal/metrics"
)

// Server is the external HTTP API server
type Server struct {
	config     *ServerConfig
	httpServer *http.Server
	mu         sync.RWMutex
	running    bool

	// Core components
	factory *factory.Factory
	bank    *assets.Ledger

	// Metrics collector
	metricsCollector *metrics.PrometheusCollector

	// Admin wallets allowed to call owner operations
	adminWallets map[common.Address]bool

	// Per-IP rate limiters
	rateLimiters sync.Map

	// Rate limiter cleanup control
	rateLimitCtx    context.Context
	rateLimitCancel context.CancelFunc
}

// rateLimiterEntry holds a rate limiter and the last time it was used
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ServerConfig configures the HTTP API server
type ServerConfig struct {
	// HTTP settings
	HTTPAddr string `yaml:"http_addr"` // e.g., ":9400"

	// Rate limiting: RateLimit requests allowed per RateLimitWindow
	RateLimit       int           `yaml:"rate_limit"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`

	// Request limits
	MaxRequestSize     int64 `yaml:"max_request_size"`
	MaxConcurrentConns int   `yaml:"max_concurrent_conns"`

	// Proxy trust (only enable behind a trusted reverse proxy)
	TrustProxy bool `yaml:"trust_proxy"`

	// Timeouts
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`

	// Admin
	AdminWallets []string `yaml:"admin_wallets"`
}

// DefaultServerConfig returns the default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		HTTPAddr:           ":9400",
		RateLimit:          100,
		RateLimitWindow:    time.Minute,
		RateLimitBurst:     20,
		MaxRequestSize:     1024 * 1024,
		MaxConcurrentConns: 100,
		ReadHeaderTimeout:  30 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        120 * time.Second,
	}
}

// NewServer creates a new HTTP API server
func NewServer(cfg *ServerConfig, f *factory.Factory, bank *assets.Ledger) *Server {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}

	admins := make(map[common.Address]bool, len(cfg.AdminWallets))
	for _, w := range cfg.AdminWallets {
		if common.IsHexAddress(w) {
			admins[common.HexToAddress(w)] = true
		}
	}

	return &Server{
		config:       cfg,
		factory:      f,
		bank:         bank,
		adminWallets: admins,
	}
}

// SetMetricsCollector sets the metrics collector
func (s *Server) SetMetricsCollector(c *metrics.PrometheusCollector) {
	s.metricsCollector = c
}

// Start starts the HTTP API server
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	// Start rate limiter cleanup goroutine
	if s.config.RateLimit > 0 {
		s.rateLimitCtx, s.rateLimitCancel = context.WithCancel(ctx)
		s.startRateLimiterCleanup()
	}

	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.config.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	ln, err := net.Listen("tcp", s.config.HTTPAddr)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if s.rateLimitCancel != nil {
			s.rateLimitCancel()
		}
		return fmt.Errorf("listen on %s: %w", s.config.HTTPAddr, err)
	}
	if s.config.MaxConcurrentConns > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxConcurrentConns)
	}

	go func() {
		logging.Info("HTTP API server starting",
			"addr", s.config.HTTPAddr,
			"max_conns", s.config.MaxConcurrentConns,
			logging.Component("api"))

		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server error",
				"error", err.Error(),
				logging.Component("api"))
		}
	}()

	return nil
}

// Stop stops the HTTP API server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.rateLimitCancel != nil {
		s.rateLimitCancel()
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
	}

	logging.Info("API server stopped", logging.Component("api"))
	return nil
}

// buildRouter builds the HTTP router with all handlers
func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	// Factory endpoints
	mux.HandleFunc("/v1/instances", s.withMiddleware(s.handleInstances))
	mux.HandleFunc("/v1/instances/", s.withMiddleware(s.handleInstancePath))
	mux.HandleFunc("/v1/predict", s.withMiddleware(s.handlePredict))

	// Ledger endpoints
	mux.HandleFunc("/v1/balance", s.withMiddleware(s.handleBalance))
	mux.HandleFunc("/v1/approve", s.withMiddleware(s.handleApprove))

	// Health endpoints (no auth or rate limiting)
	mux.HandleFunc("/v1/health", s.handleHealthCheck)
	mux.HandleFunc("/health", s.handleHealthCheck)

	// Metrics endpoints
	mux.HandleFunc("/v1/metrics", s.handleMetrics)
	if s.metricsCollector != nil {
		mux.Handle("/metrics", s.metricsCollector.PrometheusHandler())
	}

	return mux
}

// withMiddleware wraps a handler with rate limiting, body size limits, and
// operation metrics.
func (s *Server) withMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Rate limiting
		if s.config.RateLimit > 0 {
			ip := s.extractClientIP(r)
			limiter := s.getRateLimiter(ip)
			if !limiter.Allow() {
				logging.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"method", r.Method,
					logging.Component("api"))
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error": "rate limit exceeded", "retry_after": 60}`))
				return
			}
		}

		// Bound request bodies
		if s.config.MaxRequestSize > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
		}

		start := time.Now()
		handler(w, r)

		if s.metricsCollector != nil {
			op := r.Method + " " + r.URL.Path
			s.metricsCollector.RecordOperation(op)
			s.metricsCollector.RecordLatency(op, time.Since(start))
		}
	}
}

// getRateLimiter returns the rate limiter for the given IP address.
// It creates a new limiter if one does not already exist.
func (s *Server) getRateLimiter(ip string) *rate.Limiter {
	now := time.Now()

	if val, ok := s.rateLimiters.Load(ip); ok {
		entry := val.(*rateLimiterEntry)
		entry.lastSeen = now
		return entry.limiter
	}

	limiter := rate.NewLimiter(s.limiterRate(), s.config.RateLimitBurst)

	entry := &rateLimiterEntry{
		limiter:  limiter,
		lastSeen: now,
	}
	actual, _ := s.rateLimiters.LoadOrStore(ip, entry)
	return actual.(*rateLimiterEntry).limiter
}

// limiterRate converts the configured requests-per-window limit into the
// per-second rate the limiter operates on.
func (s *Server) limiterRate() rate.Limit {
	window := s.config.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return rate.Limit(float64(s.config.RateLimit) / window.Seconds())
}

// extractClientIP extracts the client IP address from the request.
// Only trusts proxy headers when TrustProxy is enabled in the server config.
func (s *Server) extractClientIP(r *http.Request) string {
	if s.config.TrustProxy {
		// X-Forwarded-For: use the first (leftmost) IP
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.IndexByte(xff, ','); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}

		// X-Real-IP
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	// Default: use TCP remote address (not spoofable)
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// startRateLimiterCleanup starts a goroutine that periodically removes stale rate limiters
func (s *Server) startRateLimiterCleanup() {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-s.rateLimitCtx.Done():
				return
			case <-ticker.C:
				s.cleanupRateLimiters()
			}
		}
	}()
}

// cleanupRateLimiters removes rate limiter entries that have not been seen recently
func (s *Server) cleanupRateLimiters() {
	staleThreshold := time.Now().Add(-10 * time.Minute)
	var cleaned int

	s.rateLimiters.Range(func(key, value any) bool {
		entry := value.(*rateLimiterEntry)
		if entry.lastSeen.Before(staleThreshold) {
			s.rateLimiters.Delete(key)
			cleaned++
		}
		return true
	})

	if cleaned > 0 {
		logging.Debug("cleaned up stale rate limiters",
			"count", cleaned,
			logging.Component("api"))
	}
}

// callerAddress extracts the acting wallet address from the request headers.
// Every mutating operation is attributed to this address.
func (s *Server) callerAddress(r *http.Request) (common.Address, error) {
	raw := r.Header.Get("X-Caller-Address")
	if raw == "" {
		return common.Address{}, fmt.Errorf("missing X-Caller-Address header")
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid caller address: %s", raw)
	}
	return common.HexToAddress(raw), nil
}

// isAdmin reports whether the address may call owner operations through the API.
func (s *Server) isAdmin(addr common.Address) bool {
	return s.adminWallets[addr]
}
