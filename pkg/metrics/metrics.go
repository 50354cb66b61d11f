package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Storefront records what the gateway does on behalf of shoppers. A nil
// *Storefront is valid and records nothing.
type Storefront struct {
	cartOps      *prometheus.CounterVec
	flowPhases   *prometheus.CounterVec
	errorKinds   *prometheus.CounterVec
	backendCalls *prometheus.HistogramVec
	sessions     prometheus.Gauge
}

// NewStorefront registers the storefront collectors on the provided registerer.
func NewStorefront(reg prometheus.Registerer) *Storefront {
	if reg == nil {
		return &Storefront{}
	}
	cartOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_operations_total",
		Help: "Cart mutations by operation.",
	}, []string{"op"})
	flowPhases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_verification_transitions_total",
		Help: "Login flow transitions by phase entered.",
	}, []string{"phase"})
	errorKinds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_errors_total",
		Help: "User-facing errors by kind.",
	}, []string{"kind"})
	backendCalls := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_backend_call_duration_seconds",
		Help:    "Backend RPC latency by method and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "outcome"})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_active_sessions",
		Help: "Session actors currently alive.",
	})
	reg.MustRegister(cartOps, flowPhases, errorKinds, backendCalls, sessions)
	return &Storefront{
		cartOps:      cartOps,
		flowPhases:   flowPhases,
		errorKinds:   errorKinds,
		backendCalls: backendCalls,
		sessions:     sessions,
	}
}

func (m *Storefront) CartOp(op string) {
	if m == nil || m.cartOps == nil {
		return
	}
	m.cartOps.WithLabelValues(normalizeLabel(op)).Inc()
}

func (m *Storefront) FlowTransition(phase string) {
	if m == nil || m.flowPhases == nil {
		return
	}
	m.flowPhases.WithLabelValues(normalizeLabel(phase)).Inc()
}

func (m *Storefront) Error(kind string) {
	if m == nil || m.errorKinds == nil {
		return
	}
	m.errorKinds.WithLabelValues(normalizeLabel(kind)).Inc()
}

// ObserveBackendCall records one backend round trip.
func (m *Storefront) ObserveBackendCall(method string, d time.Duration, err error) {
	if m == nil || m.backendCalls == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.backendCalls.WithLabelValues(normalizeLabel(method), outcome).Observe(d.Seconds())
}

func (m *Storefront) SessionStarted() {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Storefront) SessionStopped() {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.Dec()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
