package resend

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "aegis"
	subsystem        = "resend"

	outcomeSuccess = "success"
	outcomeRefused = "refused"
	outcomeError   = "error"

	resultDelivered = "delivered"
	resultExhausted = "exhausted"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "attempts_total",
			Help:      "Resend requests sent to peers, by outcome",
		},
		[]string{"outcome"}, // outcome: success, refused, error
	)

	keysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "keys_total",
			Help:      "Local keys processed during resend sweeps, by result",
		},
		[]string{"result"}, // result: delivered, exhausted
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "sweep_duration_seconds",
			Help:      "Time taken to request every local key from one peer",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
