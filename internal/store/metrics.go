package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registeredPeers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "aegis",
	Subsystem: "network_store",
	Name:      "registered_peers",
	Help:      "Number of peers currently held in the network store",
})
