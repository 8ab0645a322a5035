package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics records outbound calls to payment providers and charge outcomes.
type GatewayMetrics struct {
	duration *prometheus.HistogramVec
	attempts *prometheus.CounterVec
	charges  *prometheus.CounterVec
	renewals *prometheus.CounterVec
}

// NewGatewayMetrics registers the gateway metrics on the provided registerer.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Duration of payment gateway requests in seconds, across attempts.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
	}, []string{"provider", "operation", "outcome"})
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_request_attempts_total",
		Help: "HTTP attempts made against payment gateways, including retries.",
	}, []string{"provider", "operation"})
	charges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_charges_total",
		Help: "Charges persisted by the vault grouped by normalized status.",
	}, []string{"provider", "status_v2"})
	renewals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "renewal_outcomes_total",
		Help: "Subscription renewal attempts grouped by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(duration, attempts, charges, renewals)
	return &GatewayMetrics{
		duration: duration,
		attempts: attempts,
		charges:  charges,
		renewals: renewals,
	}
}

// ObserveRequest records the total duration and outcome of a gateway operation.
func (g *GatewayMetrics) ObserveRequest(provider, operation, outcome string, duration time.Duration) {
	if g == nil || g.duration == nil {
		return
	}
	g.duration.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation), normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncAttempt counts a single HTTP attempt.
func (g *GatewayMetrics) IncAttempt(provider, operation string) {
	if g == nil || g.attempts == nil {
		return
	}
	g.attempts.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation)).Inc()
}

// IncCharge counts a persisted charge.
func (g *GatewayMetrics) IncCharge(provider, statusV2 string) {
	if g == nil || g.charges == nil {
		return
	}
	g.charges.WithLabelValues(normalizeLabel(provider), normalizeLabel(statusV2)).Inc()
}

// IncRenewal counts a renewal by skip reason or outcome kind.
func (g *GatewayMetrics) IncRenewal(outcome string) {
	if g == nil || g.renewals == nil {
		return
	}
	g.renewals.WithLabelValues(normalizeLabel(outcome)).Inc()
}
