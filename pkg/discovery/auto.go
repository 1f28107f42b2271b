package discovery

import (
	"github.com/sirupsen/logrus"

	"github.com/busybox42/aegis-pm/internal/store"
	"github.com/busybox42/aegis-pm/pkg/config"
	"github.com/busybox42/aegis-pm/pkg/types"
)

// AutoDiscovery accepts an announcement from any peer.
type AutoDiscovery struct {
	networkStore store.NetworkStore
	log          logrus.FieldLogger
}

func NewAutoDiscovery(networkStore store.NetworkStore, opts ...Option) *AutoDiscovery {
	o := buildOptions(opts)
	return &AutoDiscovery{
		networkStore: networkStore,
		log:          o.log,
	}
}

func (d *AutoDiscovery) OnUpdate(announcement types.NodeAnnouncement) error {
	node, err := activeNodeFrom(announcement)
	if err != nil {
		observeUpdate(config.ModeOpen, resultInvalid)
		d.log.WithError(err).WithField("url", announcement.URL).Warn("Rejected announcement with invalid address")
		return err
	}

	d.networkStore.Store(node)
	observeUpdate(config.ModeOpen, resultAccepted)
	d.log.WithFields(logrus.Fields{
		"peer": node.URI.String(),
		"keys": len(node.Keys),
	}).Debug("Stored peer announcement")
	return nil
}
