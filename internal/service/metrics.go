package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type redemptionMetrics struct {
	outcomes   *prometheus.CounterVec
	duration   prometheus.Histogram
	suppressed prometheus.Counter
	sessions   prometheus.Gauge
}

// newRedemptionMetrics registers on reg. A nil reg gives unregistered
// collectors.
func newRedemptionMetrics(reg prometheus.Registerer) *redemptionMetrics {
	factory := promauto.With(reg)
	return &redemptionMetrics{
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingress_redemptions_total",
			Help: "redemption attempts by outcome (granted or denial reason)",
		}, []string{"outcome"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingress_redemption_duration_seconds",
			Help:    "time spent validating and committing a redemption",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		suppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingress_scans_suppressed_total",
			Help: "scanner callbacks dropped by the debounce window",
		}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ingress_scan_sessions",
			Help: "open scan sessions",
		}),
	}
}
