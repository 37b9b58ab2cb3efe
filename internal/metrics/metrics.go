// Package metrics tracks runtime statistics of the line server with
// Prometheus collectors registered on a private registry.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "linesrv"

// Direction labels for byte counters.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Error kinds, mirroring the session error taxonomy.
const (
	ErrorTransport = "transport"
	ErrorArgument  = "argument"
	ErrorStorage   = "storage"
	ErrorAccept    = "accept"
)

// Collector tracks runtime metrics for one server process.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	registry *prometheus.Registry

	sessionsTotal   prometheus.Counter
	sessionsActive  prometheus.Gauge
	sessionDuration prometheus.Histogram
	commandsTotal   *prometheus.CounterVec
	bytesTotal      *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	messagesStored  prometheus.Counter

	startTime time.Time
}

// New creates a collector, registers it (plus the Go runtime and
// process collectors) on a fresh registry and sets the start time.
func New() *Collector {
	c := &Collector{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions accepted",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Current number of open sessions",
		}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of sessions in seconds",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 3600},
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of dispatched command lines by command key",
		}, []string{"command"}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes read from and written to session connections",
		}, []string{"direction"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by kind: transport, argument, storage, accept",
		}, []string{"kind"}),
		messagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_stored_total",
			Help:      "Short messages written to the store",
		}),
	}
	c.registry.MustRegister(
		c.sessionsTotal,
		c.sessionsActive,
		c.sessionDuration,
		c.commandsTotal,
		c.bytesTotal,
		c.errorsTotal,
		c.messagesStored,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry, e.g. for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsTotal.Inc()
	c.sessionsActive.Inc()
}

// SessionClosed decrements the active gauge and records how long the
// session lasted.
func (c *Collector) SessionClosed(d time.Duration) {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
	c.sessionDuration.Observe(d.Seconds())
}

// ── Command metrics ──────────────────────────────────────────────────

// CommandDispatched counts one dispatched line under its command key.
// Unknown keys must be collapsed by the caller to keep cardinality
// bounded.
func (c *Collector) CommandDispatched(key string) {
	if c == nil {
		return
	}
	c.commandsTotal.WithLabelValues(key).Inc()
}

// MessageStored counts one message written by the sms command.
func (c *Collector) MessageStored() {
	if c == nil {
		return
	}
	c.messagesStored.Inc()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from a session connection.
func (c *Collector) BytesReceived(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.bytesTotal.WithLabelValues(DirectionIn).Add(float64(n))
}

// BytesSent records n bytes written to a session connection.
func (c *Collector) BytesSent(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.bytesTotal.WithLabelValues(DirectionOut).Add(float64(n))
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter for kind.
func (c *Collector) RecordError(kind string) {
	if c == nil {
		return
	}
	c.errorsTotal.WithLabelValues(kind).Inc()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of the linesrv metrics.
type Snapshot struct {
	Uptime         string           `json:"uptime"`
	SessionsActive int64            `json:"sessions_active"`
	SessionsTotal  int64            `json:"sessions_total"`
	BytesIn        int64            `json:"bytes_in"`
	BytesOut       int64            `json:"bytes_out"`
	MessagesStored int64            `json:"messages_stored"`
	Commands       map[string]int64 `json:"commands,omitempty"`
	Errors         map[string]int64 `json:"errors,omitempty"`
}

// Snapshot reads the current values back out of the collectors.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive: int64(gaugeValue(c.sessionsActive)),
		SessionsTotal:  int64(counterValue(c.sessionsTotal)),
		BytesIn:        int64(counterValue(c.bytesTotal.WithLabelValues(DirectionIn))),
		BytesOut:       int64(counterValue(c.bytesTotal.WithLabelValues(DirectionOut))),
		MessagesStored: int64(counterValue(c.messagesStored)),
		Commands:       vecValues(c.commandsTotal, "command"),
		Errors:         vecValues(c.errorsTotal, "kind"),
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	data, _ := json.MarshalIndent(c.Snapshot(), "", "  ")
	return string(data)
}

func counterValue(m prometheus.Metric) float64 {
	var pb dto.Metric
	if err := m.Write(&pb); err != nil || pb.Counter == nil {
		return 0
	}
	return pb.Counter.GetValue()
}

func gaugeValue(m prometheus.Metric) float64 {
	var pb dto.Metric
	if err := m.Write(&pb); err != nil || pb.Gauge == nil {
		return 0
	}
	return pb.Gauge.GetValue()
}

// vecValues collects every child of a counter vector keyed by label.
func vecValues(vec *prometheus.CounterVec, label string) map[string]int64 {
	ch := make(chan prometheus.Metric)
	go func() {
		vec.Collect(ch)
		close(ch)
	}()

	out := map[string]int64{}
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			continue
		}
		for _, lp := range pb.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] = int64(pb.GetCounter().GetValue())
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
