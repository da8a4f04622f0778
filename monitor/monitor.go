// monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/trailparty/narrative"
)

type Metrics struct {
	OnlineConnections  prometheus.Gauge
	ActiveRooms        prometheus.Gauge
	MessagesReceived   *prometheus.CounterVec
	MessageLatency     prometheus.Histogram
	PhasesCompiled     prometheus.Counter
	GenerationLatency  *prometheus.HistogramVec
	GenerationFailures *prometheus.CounterVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlineConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_connections",
			Help:      "Number of open websocket connections",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of active rooms",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of client events received",
		}, []string{"event"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Client event processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		PhasesCompiled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_phases_compiled_total",
			Help:      "Decision phases closed and sent to the generator",
		}),
		GenerationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_seconds",
			Help:      "Narrative generation latency",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"kind"}),
		GenerationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_failures_total",
			Help:      "Failed narrative generations by reason",
		}, []string{"kind", "reason"}),
	}

	reg.MustRegister(
		m.OnlineConnections,
		m.ActiveRooms,
		m.MessagesReceived,
		m.MessageLatency,
		m.PhasesCompiled,
		m.GenerationLatency,
		m.GenerationFailures,
	)

	return m
}

type Monitor struct {
	metrics      *Metrics
	gatherer     prometheus.Gatherer
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

// NewMonitor registers its collectors on a fresh registry, so several
// monitors can live in one process.
func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewMonitorWithRegistry(namespace, reg, reg)
}

func NewMonitorWithRegistry(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace, reg),
		gatherer:  gatherer,
		startTime: time.Now(),
	}
}

var publishOnce sync.Once

// Handler serves the prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// VarsHandler serves expvar with uptime and the request counter.
func (m *Monitor) VarsHandler() http.Handler {
	// 添加expvar指标
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			return m.Requests()
		}))
	})
	return expvar.Handler()
}

func (m *Monitor) IncOnlineConnections() {
	m.metrics.OnlineConnections.Inc()
}

func (m *Monitor) DecOnlineConnections() {
	m.metrics.OnlineConnections.Dec()
}

func (m *Monitor) IncMessagesReceived(event string) {
	m.metrics.MessagesReceived.WithLabelValues(event).Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) Requests() int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.requestCount
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

// --- room.Metrics ---

func (m *Monitor) RoomOpened() {
	m.metrics.ActiveRooms.Inc()
}

func (m *Monitor) RoomClosed() {
	m.metrics.ActiveRooms.Dec()
}

func (m *Monitor) PhaseCompiled() {
	m.metrics.PhasesCompiled.Inc()
}

func (m *Monitor) ObserveGeneration(kind string, elapsed time.Duration, err error) {
	m.metrics.GenerationLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil {
		m.metrics.GenerationFailures.WithLabelValues(kind, failureReason(err)).Inc()
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, narrative.ErrMalformedOutput):
		return "malformed"
	case errors.Is(err, narrative.ErrInvalidDelta):
		return "invalid_delta"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, narrative.ErrGeneratorFailed):
		return "generator"
	default:
		return "other"
	}
}
