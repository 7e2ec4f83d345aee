// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "roomcast"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	sessionsActive   prometheus.Gauge
	framesIn         *prometheus.CounterVec
	framesOut        prometheus.Counter
	broadcastDropped *prometheus.CounterVec
	dispatchSeconds  *prometheus.HistogramVec
	authRejected     prometheus.Counter
}

// New registers the collectors with reg. A nil reg means prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live transport sessions",
		}),
		framesIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_in_total",
			Help:      "Frames received, by header",
		}, []string{"header"}),
		framesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_out_total",
			Help:      "Frames written to sockets",
		}),
		broadcastDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Fan-out deliveries skipped because a member queue was full",
		}, []string{"kind"}),
		dispatchSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_seconds",
			Help:      "Command handler latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"header"}),
		authRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejected_total",
			Help:      "Frames rejected because the session has no identity",
		}),
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) FrameIn(header string) {
	if m == nil {
		return
	}
	m.framesIn.WithLabelValues(header).Inc()
}

func (m *Metrics) FrameOut() {
	if m == nil {
		return
	}
	m.framesOut.Inc()
}

func (m *Metrics) Dropped(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.broadcastDropped.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) ObserveDispatch(header string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchSeconds.WithLabelValues(header).Observe(d.Seconds())
}

func (m *Metrics) AuthRejected() {
	if m == nil {
		return
	}
	m.authRejected.Inc()
}
