package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MetricType classifies a recorded measurement.
type MetricType string

const (
	Counter MetricType = "counter"
	Gauge   MetricType = "gauge"
	Timer   MetricType = "timer"
)

// Metric is one recorded measurement.
type Metric struct {
	Name   string            `json:"name"`
	Type   MetricType        `json:"type"`
	Value  float64           `json:"value"`
	Labels map[string]string `json:"labels,omitempty"`
	At     time.Time         `json:"at"`
	Unit   string            `json:"unit,omitempty"`
}

// Collector buffers deployment metrics and flushes them to the log. A
// disabled collector accepts calls and drops everything.
type Collector struct {
	mu       sync.Mutex
	metrics  []Metric
	enabled  bool
	interval time.Duration
	flushCh  chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewCollector returns a collector flushing every interval. An interval of
// zero means 30 seconds.
func NewCollector(enabled bool, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Collector{
		enabled:  enabled,
		interval: interval,
		flushCh:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	if enabled {
		go c.loop()
	}
	return c
}

// Counter records an additive measurement.
func (c *Collector) Counter(name string, value float64, labels map[string]string) {
	c.add(Metric{Name: name, Type: Counter, Value: value, Labels: labels, At: time.Now()})
}

// Gauge records a point-in-time value.
func (c *Collector) Gauge(name string, value float64, labels map[string]string) {
	c.add(Metric{Name: name, Type: Gauge, Value: value, Labels: labels, At: time.Now()})
}

// Timer records a duration in milliseconds.
func (c *Collector) Timer(name string, d time.Duration, labels map[string]string) {
	c.add(Metric{
		Name:   name,
		Type:   Timer,
		Value:  float64(d.Milliseconds()),
		Labels: labels,
		At:     time.Now(),
		Unit:   "ms",
	})
}

func (c *Collector) add(m Metric) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	c.metrics = append(c.metrics, m)
	full := len(c.metrics) >= 64
	c.mu.Unlock()

	if full {
		select {
		case c.flushCh <- struct{}{}:
		default:
		}
	}
}

// Snapshot returns a copy of the buffered metrics.
func (c *Collector) Snapshot() []Metric {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Metric, len(c.metrics))
	copy(out, c.metrics)
	return out
}

// Flush drains the buffer into the log.
func (c *Collector) Flush() {
	c.mu.Lock()
	metrics := c.metrics
	c.metrics = nil
	c.mu.Unlock()

	for _, m := range metrics {
		ev := log.Info().
			Str("metric", m.Name).
			Str("type", string(m.Type)).
			Float64("value", m.Value).
			Time("at", m.At)
		if len(m.Labels) > 0 {
			ev = ev.Interface("labels", m.Labels)
		}
		if m.Unit != "" {
			ev = ev.Str("unit", m.Unit)
		}
		ev.Msg("metric")
	}
}

func (c *Collector) loop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Flush()
		case <-c.flushCh:
			c.Flush()
		}
	}
}

// Shutdown stops the flush loop and drains whatever remains.
func (c *Collector) Shutdown() {
	c.cancel()
	c.Flush()
}
