package metrics

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestRecordOperation(t *testing.T) {
	c := NewCollector()

	c.RecordOperation("initialize_bounty")
	c.RecordOperation("initialize_bounty")
	c.RecordOperation("fund_bounty")

	m := c.GetMetrics()
	if m.OperationCounts["initialize_bounty"] != 2 {
		t.Errorf("initialize_bounty count = %d, want 2", m.OperationCounts["initialize_bounty"])
	}
	if m.OperationCounts["fund_bounty"] != 1 {
		t.Errorf("fund_bounty count = %d, want 1", m.OperationCounts["fund_bounty"])
	}
}

func TestRecordLatencyBuckets(t *testing.T) {
	c := NewCollector()

	c.RecordLatency("accept", 500*time.Microsecond) // 0-1ms
	c.RecordLatency("accept", 3*time.Millisecond)   // 1-5ms
	c.RecordLatency("accept", 2*time.Second)        // overflow

	m := c.GetMetrics()
	stats, ok := m.OperationLatencies["accept"]
	if !ok {
		t.Fatal("no latency stats for accept")
	}
	if stats.Count != 3 {
		t.Errorf("count = %d, want 3", stats.Count)
	}
	if stats.Buckets["0-1ms"] != 1 {
		t.Errorf("0-1ms bucket = %d, want 1", stats.Buckets["0-1ms"])
	}
	if stats.Buckets["1-5ms"] != 1 {
		t.Errorf("1-5ms bucket = %d, want 1", stats.Buckets["1-5ms"])
	}
	if stats.Buckets["1000ms+"] != 1 {
		t.Errorf("1000ms+ bucket = %d, want 1", stats.Buckets["1000ms+"])
	}
	if stats.AvgMs <= 0 {
		t.Errorf("avg = %f, want positive", stats.AvgMs)
	}
}

func TestGauges(t *testing.T) {
	c := NewCollector()

	c.SetInstanceCount(3)
	c.SetBountyCount(17)
	c.UpdateGoroutineCount()

	m := c.GetMetrics()
	if m.InstanceCount != 3 {
		t.Errorf("instance count = %d, want 3", m.InstanceCount)
	}
	if m.BountyCount != 17 {
		t.Errorf("bounty count = %d, want 17", m.BountyCount)
	}
	if m.GoroutineCount < 1 {
		t.Errorf("goroutine count = %d, want at least 1", m.GoroutineCount)
	}
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordOperation("op")
				c.RecordLatency("op", time.Millisecond)
			}
		}()
	}
	wg.Wait()

	m := c.GetMetrics()
	if m.OperationCounts["op"] != 1000 {
		t.Errorf("count = %d, want 1000", m.OperationCounts["op"])
	}
	if m.OperationLatencies["op"].Count != 1000 {
		t.Errorf("latency count = %d, want 1000", m.OperationLatencies["op"].Count)
	}
}

func TestGetMetricsJSON(t *testing.T) {
	c := NewCollector()
	c.RecordOperation("op")

	data, err := c.GetMetricsJSON()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var decoded Metrics
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.OperationCounts["op"] != 1 {
		t.Errorf("decoded count = %d, want 1", decoded.OperationCounts["op"])
	}
}

func TestReset(t *testing.T) {
	c := NewCollector()
	c.RecordOperation("op")
	c.SetInstanceCount(5)

	c.Reset()
	m := c.GetMetrics()
	if len(m.OperationCounts) != 0 {
		t.Errorf("counts after reset = %v", m.OperationCounts)
	}
	if m.InstanceCount != 0 {
		t.Errorf("instance count after reset = %d", m.InstanceCount)
	}
}
