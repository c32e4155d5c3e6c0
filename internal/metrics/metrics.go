// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "crop_yield"

// Metrics records prediction outcomes, rainfall fallbacks and provider failures,
// and publishes the orphaned pending record count. A nil *Metrics is a no-op.
type Metrics struct {
	predictions      *prometheus.CounterVec
	rainfall         *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	stalePending     prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Prediction requests by outcome.",
		}, []string{"status"}),
		rainfall: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rainfall_resolutions_total",
			Help:      "Rainfall resolutions by source and fallback reason.",
		}, []string{"source", "reason"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_provider_failures_total",
			Help:      "Failed weather provider lookups.",
		}, []string{"provider"}),
		stalePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_pending_records",
			Help:      "Pending prediction records older than the audit threshold.",
		}),
	}

	for _, c := range []prometheus.Collector{m.predictions, m.rainfall, m.providerFailures, m.stalePending} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) PredictionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RainfallResolved(source, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.rainfall.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) ProviderFailed(provider string) {
	if m == nil {
		return
	}
	m.providerFailures.WithLabelValues(provider).Inc()
}

func (m *Metrics) SetStalePending(n int) {
	if m == nil {
		return
	}
	m.stalePending.Set(float64(n))
}
