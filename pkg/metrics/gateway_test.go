package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestGatewayMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)

	m.IncAttempt("APPMAX", "create_order")
	m.IncAttempt("APPMAX", "create_order")
	m.ObserveRequest("APPMAX", "create_order", "ok", 300*time.Millisecond)
	m.IncCharge("STRIPE", "SUCCEEDED")
	m.IncRenewal("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "gateway_request_attempts_total", "operation", "create_order"); err != nil {
		t.Fatalf("fetch attempts: %v", err)
	} else if got != 2 {
		t.Fatalf("expected attempts=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "vault_charges_total", "status_v2", "SUCCEEDED"); err != nil {
		t.Fatalf("fetch charges: %v", err)
	} else if got != 1 {
		t.Fatalf("expected charges=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "renewal_outcomes_total", "outcome", "unknown"); err != nil {
		t.Fatalf("fetch renewals: %v", err)
	} else if got != 1 {
		t.Fatalf("expected renewal outcome normalized to unknown, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "gateway_request_duration_seconds", "outcome", "ok"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestGatewayMetricsNilSafe(t *testing.T) {
	var m *GatewayMetrics
	m.IncAttempt("STRIPE", "payment_intent")
	m.IncCharge("STRIPE", "FAILED")
	m.ObserveRequest("STRIPE", "payment_intent", "error", time.Second)
	m.IncRenewal("skipped")

	NewGatewayMetrics(nil).IncCharge("STRIPE", "FAILED")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	if v := counterWith(mf, map[string]string{label: value}); v >= 0 {
		return v, nil
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == label && pair.GetValue() == value {
				return metric.GetHistogram().GetSampleSum(), nil
			}
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}
