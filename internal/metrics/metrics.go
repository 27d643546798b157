package metrics

import (
	"encoding/json"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates metrics for the daemon
type Collector struct {
	// Operation counts by name
	opCounts   map[string]*uint64
	opCountsMu sync.RWMutex

	// Operation latencies by name (stored as nanoseconds)
	latencies   map[string]*LatencyHistogram
	latenciesMu sync.RWMutex

	// Gauges
	instanceCount  int64
	bountyCount    int64
	goroutineCount int64

	// Start time for uptime calculation
	startTime time.Time
}

// LatencyHistogram tracks operation latencies in buckets
type LatencyHistogram struct {
	// Bucket boundaries in milliseconds
	// Buckets: [0-1ms], [1-5ms], [5-10ms], [10-25ms], [25-50ms], [50-100ms], [100-250ms], [250-500ms], [500-1000ms], [1000ms+]
	buckets [10]uint64
	sum     uint64 // Total latency in nanoseconds
	count   uint64 // Total count
	mu      sync.Mutex
}

// bucket boundaries in milliseconds
var bucketBoundaries = []int64{1, 5, 10, 25, 50, 100, 250, 500, 1000}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		opCounts:  make(map[string]*uint64),
		latencies: make(map[string]*LatencyHistogram),
		startTime: time.Now(),
	}
}

// RecordOperation records one invocation of the named operation
func (c *Collector) RecordOperation(op string) {
	c.opCountsMu.Lock()
	counter, exists := c.opCounts[op]
	if !exists {
		var val uint64
		counter = &val
		c.opCounts[op] = counter
	}
	c.opCountsMu.Unlock()

	atomic.AddUint64(counter, 1)
}

// RecordLatency records the latency of an operation
func (c *Collector) RecordLatency(op string, duration time.Duration) {
	c.latenciesMu.Lock()
	hist, exists := c.latencies[op]
	if !exists {
		hist = &LatencyHistogram{}
		c.latencies[op] = hist
	}
	c.latenciesMu.Unlock()

	hist.Record(duration)
}

// Record records a latency value in the histogram
func (h *LatencyHistogram) Record(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ms := d.Milliseconds()

	// Find the appropriate bucket
	bucketIdx := len(bucketBoundaries) // Default to last bucket (overflow)
	for i, boundary := range bucketBoundaries {
		if ms < boundary {
			bucketIdx = i
			break
		}
	}

	h.buckets[bucketIdx]++
	h.sum += uint64(d.Nanoseconds())
	h.count++
}

// SetInstanceCount sets the current deployed instance count
func (c *Collector) SetInstanceCount(count int) {
	atomic.StoreInt64(&c.instanceCount, int64(count))
}

// SetBountyCount sets the current total bounty count across instances
func (c *Collector) SetBountyCount(count int) {
	atomic.StoreInt64(&c.bountyCount, int64(count))
}

// UpdateGoroutineCount samples the current goroutine count
func (c *Collector) UpdateGoroutineCount() {
	atomic.StoreInt64(&c.goroutineCount, int64(runtime.NumGoroutine()))
}

// Metrics represents the current state of all metrics
type Metrics struct {
	Uptime             string                  `json:"uptime"`
	UptimeSeconds      float64                 `json:"uptime_seconds"`
	OperationCounts    map[string]uint64       `json:"operation_counts"`
	OperationLatencies map[string]LatencyStats `json:"operation_latencies"`
	InstanceCount      int64                   `json:"instance_count"`
	BountyCount        int64                   `json:"bounty_count"`
	GoroutineCount     int64                   `json:"goroutine_count"`
	CollectedAt        time.Time               `json:"collected_at"`
}

// LatencyStats contains latency statistics for an operation
type LatencyStats struct {
	Count   uint64            `json:"count"`
	SumMs   float64           `json:"sum_ms"`
	AvgMs   float64           `json:"avg_ms"`
	Buckets map[string]uint64 `json:"buckets"`
}

// GetMetrics returns the current metrics as a Metrics struct
func (c *Collector) GetMetrics() *Metrics {
	uptime := time.Since(c.startTime)

	// Collect operation counts
	opCounts := make(map[string]uint64)
	c.opCountsMu.RLock()
	for op, counter := range c.opCounts {
		opCounts[op] = atomic.LoadUint64(counter)
	}
	c.opCountsMu.RUnlock()

	// Collect latencies
	latencies := make(map[string]LatencyStats)
	c.latenciesMu.RLock()
	for op, hist := range c.latencies {
		hist.mu.Lock()
		stats := LatencyStats{
			Count:   hist.count,
			SumMs:   float64(hist.sum) / float64(time.Millisecond),
			Buckets: make(map[string]uint64),
		}
		if hist.count > 0 {
			stats.AvgMs = float64(hist.sum) / float64(hist.count) / float64(time.Millisecond)
		}

		// Format bucket labels
		bucketLabels := []string{
			"0-1ms", "1-5ms", "5-10ms", "10-25ms", "25-50ms",
			"50-100ms", "100-250ms", "250-500ms", "500-1000ms", "1000ms+",
		}
		for i, count := range hist.buckets {
			if count > 0 {
				stats.Buckets[bucketLabels[i]] = count
			}
		}
		hist.mu.Unlock()
		latencies[op] = stats
	}
	c.latenciesMu.RUnlock()

	return &Metrics{
		Uptime:             uptime.Round(time.Second).String(),
		UptimeSeconds:      uptime.Seconds(),
		OperationCounts:    opCounts,
		OperationLatencies: latencies,
		InstanceCount:      atomic.LoadInt64(&c.instanceCount),
		BountyCount:        atomic.LoadInt64(&c.bountyCount),
		GoroutineCount:     atomic.LoadInt64(&c.goroutineCount),
		CollectedAt:        time.Now(),
	}
}

// GetMetricsJSON returns the current metrics as JSON
func (c *Collector) GetMetricsJSON() ([]byte, error) {
	metrics := c.GetMetrics()
	return json.Marshal(metrics)
}

// Reset resets all metrics (useful for testing)
func (c *Collector) Reset() {
	c.opCountsMu.Lock()
	c.opCounts = make(map[string]*uint64)
	c.opCountsMu.Unlock()

	c.latenciesMu.Lock()
	c.latencies = make(map[string]*LatencyHistogram)
	c.latenciesMu.Unlock()

	atomic.StoreInt64(&c.instanceCount, 0)
	atomic.StoreInt64(&c.bountyCount, 0)
	atomic.StoreInt64(&c.goroutineCount, 0)
	c.startTime = time.Now()
}
