package metrics

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector wraps the existing Collector and mirrors its metrics
// into Prometheus format. Both the original JSON output and the Prometheus
// exposition format are supported simultaneously.
type PrometheusCollector struct {
	collector *Collector
	registry  *prometheus.Registry

	// Prometheus metrics
	operationCount    *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	instanceCount  prometheus.Gauge
	bountyCount    prometheus.Gauge
	goroutineCount prometheus.Gauge
	uptimeSeconds  prometheus.Gauge

	startTime time.Time

	// Track per-operation counters so we can compute deltas from the
	// Collector's cumulative counts.
	lastCounts   map[string]uint64
	lastCountsMu sync.Mutex
}

// NewPrometheusCollector creates a PrometheusCollector that wraps an existing
// Collector. Prometheus metrics are registered in a dedicated registry so they
// do not interfere with the default global registry.
func NewPrometheusCollector(c *Collector) *PrometheusCollector {
	reg := prometheus.NewRegistry()

	operationCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "standardbounties",
		Name:      "operation_count",
		Help:      "Total number of bounty operations by name.",
	}, []string{"operation"})

	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "standardbounties",
		Name:      "operation_duration_seconds",
		Help:      "Operation latency histogram by name.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"operation"})

	instanceCnt := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "standardbounties",
		Name:      "instance_count",
		Help:      "Number of deployed bounty instances.",
	})

	bountyCnt := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "standardbounties",
		Name:      "bounty_count",
		Help:      "Total number of bounties across all instances.",
	})

	goroutineCnt := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "standardbounties",
		Name:      "goroutine_count",
		Help:      "Number of goroutines.",
	})

	uptimeSec := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "standardbounties",
		Name:      "uptime_seconds",
		Help:      "Time since the daemon started in seconds.",
	})

	reg.MustRegister(operationCount)
	reg.MustRegister(operationDuration)
	reg.MustRegister(instanceCnt)
	reg.MustRegister(bountyCnt)
	reg.MustRegister(goroutineCnt)
	reg.MustRegister(uptimeSec)

	return &PrometheusCollector{
		collector:         c,
		registry:          reg,
		operationCount:    operationCount,
		operationDuration: operationDuration,
		instanceCount:     instanceCnt,
		bountyCount:       bountyCnt,
		goroutineCount:    goroutineCnt,
		uptimeSeconds:     uptimeSec,
		startTime:         time.Now(),
		lastCounts:        make(map[string]uint64),
	}
}

// Registry returns the Prometheus registry used by this collector.
func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

// RecordOperation records an operation on the underlying Collector. The
// Prometheus counter picks the count up through Sync, which bridges the
// Collector's cumulative totals as deltas; incrementing it here as well
// would count every operation twice per scrape.
func (p *PrometheusCollector) RecordOperation(op string) {
	p.collector.RecordOperation(op)
}

// RecordLatency records latency in both the custom Collector and
// the Prometheus histogram.
func (p *PrometheusCollector) RecordLatency(op string, duration time.Duration) {
	p.collector.RecordLatency(op, duration)
	p.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// SetInstanceCount sets the instance count in both collectors.
func (p *PrometheusCollector) SetInstanceCount(count int) {
	p.collector.SetInstanceCount(count)
	p.instanceCount.Set(float64(count))
}

// SetBountyCount sets the bounty count in both collectors.
func (p *PrometheusCollector) SetBountyCount(count int) {
	p.collector.SetBountyCount(count)
	p.bountyCount.Set(float64(count))
}

// UpdateGoroutineCount updates the goroutine count in both collectors.
func (p *PrometheusCollector) UpdateGoroutineCount() {
	p.collector.UpdateGoroutineCount()
	p.goroutineCount.Set(float64(runtime.NumGoroutine()))
}

// Sync synchronizes the Prometheus gauges with the current state of the
// underlying Collector. Call this periodically or before serving metrics
// to ensure gauges reflect the latest values.
func (p *PrometheusCollector) Sync() {
	m := p.collector.GetMetrics()

	p.instanceCount.Set(float64(m.InstanceCount))
	p.bountyCount.Set(float64(m.BountyCount))
	p.goroutineCount.Set(float64(m.GoroutineCount))
	p.uptimeSeconds.Set(m.UptimeSeconds)

	// Sync operation counts: compute deltas and add them to counters
	p.lastCountsMu.Lock()
	for op, total := range m.OperationCounts {
		prev := p.lastCounts[op]
		if total > prev {
			p.operationCount.WithLabelValues(op).Add(float64(total - prev))
		}
		p.lastCounts[op] = total
	}
	p.lastCountsMu.Unlock()
}

// GetMetrics returns the JSON metrics from the underlying Collector.
func (p *PrometheusCollector) GetMetrics() *Metrics {
	return p.collector.GetMetrics()
}

// GetMetricsJSON returns JSON-encoded metrics from the underlying Collector.
func (p *PrometheusCollector) GetMetricsJSON() ([]byte, error) {
	return p.collector.GetMetricsJSON()
}

// Collector returns the underlying custom Collector.
func (p *PrometheusCollector) Collector() *Collector {
	return p.collector
}

// PrometheusHandler returns an http.Handler that serves metrics in the
// Prometheus text exposition format. The handler synchronizes gauge values
// from the underlying Collector before each scrape.
func (p *PrometheusCollector) PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Sync gauges before serving
		p.Sync()
		promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
