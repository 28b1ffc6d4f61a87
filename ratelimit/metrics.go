/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusListener is a Listener that collects Prometheus metrics for limiter signals.
type PrometheusListener struct {
	// WaitDurations is a histogram of waits before admission grants.
	WaitDurations prometheus.Histogram

	// ThrottledCount counts server-issued explicit throttles.
	ThrottledCount prometheus.Counter

	// AuthRejectedCount counts authentication rejections.
	AuthRejectedCount prometheus.Counter

	// MalformedQuotaCount counts responses with unusable quota data.
	MalformedQuotaCount prometheus.Counter
}

// NewPrometheusListener creates a new PrometheusListener.
func NewPrometheusListener(namespace string) *PrometheusListener {
	return &PrometheusListener{
		WaitDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limiter_wait_duration_seconds",
			Help:      "A histogram of waits before admission grants.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 180, 600},
		}),
		ThrottledCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limiter_throttled_total",
			Help:      "Total number of server-issued explicit throttles.",
		}),
		AuthRejectedCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limiter_auth_rejected_total",
			Help:      "Total number of authentication rejections.",
		}),
		MalformedQuotaCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limiter_malformed_quota_total",
			Help:      "Total number of responses with unusable quota data.",
		}),
	}
}

// MustRegister registers the Prometheus metrics.
func (l *PrometheusListener) MustRegister() {
	prometheus.MustRegister(
		l.WaitDurations,
		l.ThrottledCount,
		l.AuthRejectedCount,
		l.MalformedQuotaCount,
	)
}

// Unregister the Prometheus metrics.
func (l *PrometheusListener) Unregister() {
	prometheus.Unregister(l.WaitDurations)
	prometheus.Unregister(l.ThrottledCount)
	prometheus.Unregister(l.AuthRejectedCount)
	prometheus.Unregister(l.MalformedQuotaCount)
}

// OnGrant implements Listener.
func (l *PrometheusListener) OnGrant(waited time.Duration) {
	l.WaitDurations.Observe(waited.Seconds())
}

// OnThrottled implements Listener.
func (l *PrometheusListener) OnThrottled(time.Time) {
	l.ThrottledCount.Inc()
}

// OnAuthRejected implements Listener.
func (l *PrometheusListener) OnAuthRejected() {
	l.AuthRejectedCount.Inc()
}

// OnMalformedQuota implements Listener.
func (l *PrometheusListener) OnMalformedQuota(error) {
	l.MalformedQuotaCount.Inc()
}
