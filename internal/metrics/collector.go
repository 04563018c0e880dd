package udpmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "udpmgrd"
	subsystem = "netio"
)

// Label names for connection-manager metrics.
const (
	labelRole = "role" // "listen" or "send"
)

// -------------------------------------------------------------------------
// Collector — Prometheus UDP Connection Manager Metrics
// -------------------------------------------------------------------------

// Collector holds all udpmgrd Prometheus metrics.
//
//   - Endpoints tracks currently open endpoints by role.
//   - Datagrams{Sent,Received} and Bytes{Sent,Received} track traffic volume.
//   - SendRetries/PollWaits surface send-side backpressure (spec.md §4.6).
//   - FatalErrors counts endpoint-closing errors on send or receive.
type Collector struct {
	// Endpoints tracks the number of currently open endpoints, by role.
	Endpoints *prometheus.GaugeVec

	// DatagramsSent counts datagrams successfully transmitted, by role.
	DatagramsSent *prometheus.CounterVec

	// DatagramsReceived counts datagrams successfully received.
	DatagramsReceived prometheus.Counter

	// BytesSent counts bytes successfully transmitted, by role.
	BytesSent *prometheus.CounterVec

	// BytesReceived counts bytes successfully received.
	BytesReceived prometheus.Counter

	// SendRetries counts SendPath loop iterations that hit EAGAIN/EWOULDBLOCK/
	// EINTR and had to poll for writability (spec.md §4.6 step 2).
	SendRetries prometheus.Counter

	// PollWaits counts poll() calls issued while waiting for a send-ready fd.
	PollWaits prometheus.Counter

	// FatalErrors counts endpoint-closing errors, labeled by the path that
	// observed them ("send" or "receive").
	FatalErrors *prometheus.CounterVec
}

// NewCollector creates a Collector with all metrics registered against the
// provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Endpoints,
		c.DatagramsSent,
		c.DatagramsReceived,
		c.BytesSent,
		c.BytesReceived,
		c.SendRetries,
		c.PollWaits,
		c.FatalErrors,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	roleLabels := []string{labelRole}
	errorLabels := []string{"path"}

	return &Collector{
		Endpoints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "endpoints",
			Help:      "Number of currently open UDP endpoints.",
		}, roleLabels),

		DatagramsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "datagrams_sent_total",
			Help:      "Total datagrams transmitted.",
		}, roleLabels),

		DatagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "datagrams_received_total",
			Help:      "Total datagrams received.",
		}),

		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_sent_total",
			Help:      "Total bytes transmitted.",
		}, roleLabels),

		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_received_total",
			Help:      "Total bytes received.",
		}),

		SendRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "send_retries_total",
			Help:      "Total SendPath iterations that retried after EAGAIN/EWOULDBLOCK/EINTR.",
		}),

		PollWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "send_poll_waits_total",
			Help:      "Total poll() calls issued while waiting for a send-ready fd.",
		}),

		FatalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fatal_errors_total",
			Help:      "Total fatal errors that triggered endpoint shutdown, by path.",
		}, errorLabels),
	}
}

// -------------------------------------------------------------------------
// Endpoint Lifecycle
// -------------------------------------------------------------------------

// RegisterEndpoint increments the open-endpoints gauge for the given role.
// Called when Manager.Open succeeds.
func (c *Collector) RegisterEndpoint(role string) {
	c.Endpoints.WithLabelValues(role).Inc()
}

// UnregisterEndpoint decrements the open-endpoints gauge for the given role.
// Called from the delayed-close callback, before CLOSING is delivered.
func (c *Collector) UnregisterEndpoint(role string) {
	c.Endpoints.WithLabelValues(role).Dec()
}

// -------------------------------------------------------------------------
// Traffic Counters
// -------------------------------------------------------------------------

// IncSent records a successfully transmitted datagram for the given role.
func (c *Collector) IncSent(role string, n int) {
	c.DatagramsSent.WithLabelValues(role).Inc()
	c.BytesSent.WithLabelValues(role).Add(float64(n))
}

// IncReceived records a successfully received datagram.
func (c *Collector) IncReceived(n int) {
	c.DatagramsReceived.Inc()
	c.BytesReceived.Add(float64(n))
}

// -------------------------------------------------------------------------
// Backpressure & Errors
// -------------------------------------------------------------------------

// IncSendRetry records one SendPath retry iteration (spec.md §4.6 step 2).
func (c *Collector) IncSendRetry() {
	c.SendRetries.Inc()
}

// IncPollWait records one poll() call issued from SendPath.
func (c *Collector) IncPollWait() {
	c.PollWaits.Inc()
}

// IncFatalError records a fatal error on the given path ("send" or "receive").
func (c *Collector) IncFatalError(path string) {
	c.FatalErrors.WithLabelValues(path).Inc()
}
