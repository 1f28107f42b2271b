package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/busybox42/aegis-pm/pkg/config"
)

const (
	resultAccepted = "accepted"
	resultRejected = "rejected"
	resultInvalid  = "invalid"
)

var updatesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "aegis",
		Subsystem: "discovery",
		Name:      "updates_total",
		Help:      "Peer announcements handled, by discovery mode and result",
	},
	[]string{"mode", "result"}, // result: accepted, rejected, invalid
)

func observeUpdate(mode config.DiscoveryMode, result string) {
	updatesTotal.WithLabelValues(string(mode), result).Inc()
}
