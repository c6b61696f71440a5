// Package metrics is a small Prometheus-compatible collector. It renders
// text/plain exposition format directly instead of pulling in
// prometheus/client_golang for a handful of series.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide metrics registry.
var Collector = NewCollector()

// MetricsCollector aggregates counters, gauges, and histograms.
type MetricsCollector struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// Set sets the gauge.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks a value distribution over fixed buckets.
type Histogram struct {
	name    string
	help    string
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Counter registers (or returns) a counter with the given name.
func (c *MetricsCollector) Counter(name, help string) *Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok := c.counters[name]; ok {
		return ctr
	}
	ctr := &Counter{name: name, help: help}
	c.counters[name] = ctr
	return ctr
}

// Gauge registers (or returns) a gauge with the given name.
func (c *MetricsCollector) Gauge(name, help string) *Gauge {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help}
	c.gauges[name] = g
	return g
}

// Histogram registers (or returns) a histogram with the given bounds.
func (c *MetricsCollector) Histogram(name, help string, bounds []float64) *Histogram {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.histograms[name]; ok {
		return h
	}
	sort.Float64s(bounds)
	h := &Histogram{name: name, help: help, bounds: bounds, buckets: make([]int64, len(bounds))}
	c.histograms[name] = h
	return h
}

// Handler renders the registry in Prometheus text exposition format.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, c.render())
	}
}

func (c *MetricsCollector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "# HELP salonbot_uptime_seconds Time since process start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE salonbot_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "salonbot_uptime_seconds %d\n", int64(time.Since(c.startTime).Seconds()))

	for _, name := range sortedKeys(c.counters) {
		ctr := c.counters[name]
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, ctr.help, name, name, ctr.Value())
	}
	for _, name := range sortedKeys(c.gauges) {
		g := c.gauges[name]
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", name, g.help, name, name, g.Value())
	}
	for _, name := range sortedKeys(c.histograms) {
		h := c.histograms[name]
		h.mu.Lock()
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", name, h.help, name)
		for i, le := range h.bounds {
			fmt.Fprintf(&sb, "%s_bucket{le=\"%g\"} %d\n", name, le, h.buckets[i])
		}
		fmt.Fprintf(&sb, "%s_bucket{le=\"+Inf\"} %d\n", name, h.count)
		fmt.Fprintf(&sb, "%s_count %d\n", name, h.count)
		fmt.Fprintf(&sb, "%s_sum %f\n", name, h.sum)
		h.mu.Unlock()
	}
	return sb.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Series used across the bridge.
var (
	MessagesTotal         = Collector.Counter("salonbot_messages_total", "Inbound messages accepted for processing")
	PolicyRejections      = Collector.Counter("salonbot_policy_rejections_total", "Messages dropped by the contact policy")
	ForwardsTotal         = Collector.Counter("salonbot_forwards_total", "Successful backend forwards")
	ForwardErrors         = Collector.Counter("salonbot_forward_errors_total", "Failed backend forwards")
	RepliesRelayed        = Collector.Counter("salonbot_replies_relayed_total", "Backend replies sent back to the sender")
	AudioDownloads        = Collector.Counter("salonbot_audio_downloads_total", "Audio payloads fetched")
	AudioDownloadFailures = Collector.Counter("salonbot_audio_download_failures_total", "Audio fetches that failed")
	ReconnectsTotal       = Collector.Counter("salonbot_reconnects_total", "Reconnection attempts triggered by the supervisor")
	ConnectionUp          = Collector.Gauge("salonbot_connection_up", "1 while the session is open, 0 otherwise")

	ForwardLatency = Collector.Histogram("salonbot_forward_latency_seconds", "Backend forward latency in seconds",
		[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30})
)
