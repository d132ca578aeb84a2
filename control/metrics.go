// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for the reactor, the datagram endpoints and the frame
// parsers. A nil *Metrics is valid and records nothing, so components can be
// built without a registry in tests.

package control

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures collector registration.
type MetricsConfig struct {
	Namespace   string
	ConstLabels prometheus.Labels
	Registry    prometheus.Registerer
}

// Metrics groups the collectors.
type Metrics struct {
	endpointsOpen     prometheus.Gauge
	selected          prometheus.Counter
	keyUpdates        prometheus.Counter
	interestRequests  *prometheus.CounterVec
	datagrams         *prometheus.CounterVec
	datagramBytes     *prometheus.CounterVec
	incompleteFlushes prometheus.Counter
	transportErrors   *prometheus.CounterVec
	frames            *prometheus.CounterVec
	failures          *prometheus.CounterVec
	listenerFailures  *prometheus.CounterVec
}

// NewMetrics registers the collectors on cfg.Registry (a fresh registry when nil).
func NewMetrics(cfg MetricsConfig) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "hioload_h3"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	f := promauto.With(cfg.Registry)
	ns, cl := cfg.Namespace, cfg.ConstLabels
	return &Metrics{
		endpointsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "reactor", Name: "endpoints_open",
			Help: "Endpoints currently registered with a selector.", ConstLabels: cl,
		}),
		selected: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "reactor", Name: "selected_total",
			Help: "Readiness notifications dispatched to endpoints.", ConstLabels: cl,
		}),
		keyUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "reactor", Name: "key_updates_total",
			Help: "Interest changes applied to OS registrations.", ConstLabels: cl,
		}),
		interestRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "reactor", Name: "interest_requests_total",
			Help: "Interest requests, by whether an apply action was submitted.", ConstLabels: cl,
		}, []string{"submitted"}),
		datagrams: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "datagram", Name: "packets_total",
			Help: "Datagrams received and sent.", ConstLabels: cl,
		}, []string{"direction"}),
		datagramBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "datagram", Name: "bytes_total",
			Help: "Datagram payload bytes received and sent.", ConstLabels: cl,
		}, []string{"direction"}),
		incompleteFlushes: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "datagram", Name: "incomplete_flushes_total",
			Help: "Flushes that left buffers pending.", ConstLabels: cl,
		}),
		transportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "datagram", Name: "transport_errors_total",
			Help: "Socket errors surfaced as end-of-stream failures.", ConstLabels: cl,
		}, []string{"op"}),
		frames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "parser", Name: "frames_total",
			Help: "Frames parsed, by frame type.", ConstLabels: cl,
		}, []string{"type"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "parser", Name: "failures_total",
			Help: "Protocol failures, by scope and error code.", ConstLabels: cl,
		}, []string{"scope", "code"}),
		listenerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "parser", Name: "listener_failures_total",
			Help: "Listener callbacks that panicked.", ConstLabels: cl,
		}, []string{"event"}),
	}
}

func (m *Metrics) EndPointOpened() {
	if m != nil {
		m.endpointsOpen.Inc()
	}
}

func (m *Metrics) EndPointClosed() {
	if m != nil {
		m.endpointsOpen.Dec()
	}
}

func (m *Metrics) Selected() {
	if m != nil {
		m.selected.Inc()
	}
}

func (m *Metrics) KeyUpdated() {
	if m != nil {
		m.keyUpdates.Inc()
	}
}

// InterestRequested records an interest request; submitted is false when
// the request was coalesced into an already pending update.
func (m *Metrics) InterestRequested(submitted bool) {
	if m != nil {
		m.interestRequests.WithLabelValues(strconv.FormatBool(submitted)).Inc()
	}
}

func (m *Metrics) DatagramReceived(n int) {
	if m != nil {
		m.datagrams.WithLabelValues("in").Inc()
		m.datagramBytes.WithLabelValues("in").Add(float64(n))
	}
}

func (m *Metrics) DatagramSent(n int) {
	if m != nil {
		m.datagrams.WithLabelValues("out").Inc()
		m.datagramBytes.WithLabelValues("out").Add(float64(n))
	}
}

func (m *Metrics) IncompleteFlush() {
	if m != nil {
		m.incompleteFlushes.Inc()
	}
}

func (m *Metrics) TransportError(op string) {
	if m != nil {
		m.transportErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) FrameParsed(frameType string) {
	if m != nil {
		m.frames.WithLabelValues(frameType).Inc()
	}
}

func (m *Metrics) Failure(scope string, code int64) {
	if m != nil {
		m.failures.WithLabelValues(scope, "0x"+strconv.FormatInt(code, 16)).Inc()
	}
}

func (m *Metrics) ListenerFailure(event string) {
	if m != nil {
		m.listenerFailures.WithLabelValues(event).Inc()
	}
}
