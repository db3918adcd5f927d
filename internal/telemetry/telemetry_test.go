package telemetry

import (
	"testing"
	"time"
)

func TestDisabledCollectorDropsMetrics(t *testing.T) {
	c := NewCollector(false, time.Minute)
	defer c.Shutdown()

	c.Counter("deploys", 1, nil)
	c.Gauge("rss", 1024, nil)
	if got := len(c.Snapshot()); got != 0 {
		t.Errorf("buffered %d metrics, want 0", got)
	}
}

func TestCollectorBuffers(t *testing.T) {
	c := NewCollector(true, time.Minute)
	defer c.Shutdown()

	c.Counter("deploys", 1, map[string]string{"phase": "fetch"})
	c.Gauge("rss", 2048, nil)

	snap := c.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("buffered %d metrics, want 2", len(snap))
	}
	if snap[0].Name != "deploys" || snap[0].Type != Counter {
		t.Errorf("first metric = %+v", snap[0])
	}
	if snap[0].Labels["phase"] != "fetch" {
		t.Errorf("labels = %v", snap[0].Labels)
	}
	if snap[1].Type != Gauge || snap[1].Value != 2048 {
		t.Errorf("second metric = %+v", snap[1])
	}
}

func TestTimerRecordsMilliseconds(t *testing.T) {
	c := NewCollector(true, time.Minute)
	defer c.Shutdown()

	c.Timer("phase_duration", 1500*time.Millisecond, nil)

	snap := c.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("buffered %d metrics, want 1", len(snap))
	}
	if snap[0].Value != 1500 {
		t.Errorf("value = %v, want 1500", snap[0].Value)
	}
	if snap[0].Unit != "ms" {
		t.Errorf("unit = %q, want ms", snap[0].Unit)
	}
}

func TestFlushDrains(t *testing.T) {
	c := NewCollector(true, time.Minute)
	defer c.Shutdown()

	c.Counter("deploys", 1, nil)
	c.Flush()
	if got := len(c.Snapshot()); got != 0 {
		t.Errorf("buffered %d metrics after flush, want 0", got)
	}
}

func TestShutdownDrains(t *testing.T) {
	c := NewCollector(true, time.Minute)
	c.Counter("deploys", 1, nil)
	c.Shutdown()
	if got := len(c.Snapshot()); got != 0 {
		t.Errorf("buffered %d metrics after shutdown, want 0", got)
	}
}
