package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "presencectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "presencectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	reauthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "presencectl",
			Subsystem: "credential",
			Name:      "reauth_attempts_total",
			Help:      "Cookie reauthentication attempts by outcome.",
		},
		[]string{"outcome"},
	)
	renewals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "presencectl",
			Subsystem: "credential",
			Name:      "renewals_total",
			Help:      "Credential renewal sequences by outcome.",
		},
		[]string{"outcome"},
	)
	renewalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "presencectl",
			Subsystem: "credential",
			Name:      "renewal_duration_seconds",
			Help:      "Credential renewal duration in seconds, including backoff.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "presencectl",
			Subsystem: "session",
			Name:      "connect_attempts_total",
			Help:      "Protocol connection attempts by outcome.",
		},
		[]string{"outcome"},
	)
	sessionStage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "presencectl",
			Subsystem: "session",
			Name:      "stage",
			Help:      "Current handshake stage ordinal (0 = disconnected).",
		},
	)
	keepalives = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "presencectl",
			Subsystem: "session",
			Name:      "keepalives_total",
			Help:      "Whitespace keepalives written to the transport.",
		},
	)
	transcriptBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "presencectl",
			Subsystem: "transcript",
			Name:      "bytes_total",
			Help:      "Transport bytes recorded to transcripts by direction.",
		},
		[]string{"direction"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			reauthAttempts,
			renewals,
			renewalDuration,
			connectAttempts,
			sessionStage,
			keepalives,
			transcriptBytes,
		)
	})
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

func RecordReauthAttempt(success bool) {
	RegisterMetrics()
	reauthAttempts.WithLabelValues(outcome(success)).Inc()
}

func RecordRenewal(success bool, duration time.Duration) {
	RegisterMetrics()
	renewals.WithLabelValues(outcome(success)).Inc()
	renewalDuration.Observe(duration.Seconds())
}

func RecordConnectAttempt(success bool) {
	RegisterMetrics()
	connectAttempts.WithLabelValues(outcome(success)).Inc()
}

func SetSessionStage(ordinal int) {
	RegisterMetrics()
	sessionStage.Set(float64(ordinal))
}

func RecordKeepalive() {
	RegisterMetrics()
	keepalives.Inc()
}

func RecordTranscriptBytes(direction string, n int) {
	RegisterMetrics()
	transcriptBytes.WithLabelValues(direction).Add(float64(n))
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
