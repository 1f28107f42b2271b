package discovery

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/busybox42/aegis-pm/internal/store"
	"github.com/busybox42/aegis-pm/pkg/config"
	"github.com/busybox42/aegis-pm/pkg/types"
)

// DisabledAutoDiscovery only accepts announcements from peers that were
// configured at startup. Anything else is rejected before the store is touched,
// so an unknown peer cannot claim to serve somebody else's key.
type DisabledAutoDiscovery struct {
	networkStore store.NetworkStore
	knownPeers   map[types.NodeUri]struct{}
	log          logrus.FieldLogger
}

func NewDisabledAutoDiscovery(networkStore store.NetworkStore, knownPeers []types.NodeUri, opts ...Option) *DisabledAutoDiscovery {
	o := buildOptions(opts)
	peers := make(map[types.NodeUri]struct{}, len(knownPeers))
	for _, p := range knownPeers {
		peers[p] = struct{}{}
	}
	return &DisabledAutoDiscovery{
		networkStore: networkStore,
		knownPeers:   peers,
		log:          o.log,
	}
}

func (d *DisabledAutoDiscovery) OnUpdate(announcement types.NodeAnnouncement) error {
	node, err := activeNodeFrom(announcement)
	if err != nil {
		observeUpdate(config.ModeRestricted, resultInvalid)
		d.log.WithError(err).WithField("url", announcement.URL).Warn("Rejected announcement with invalid address")
		return err
	}

	if _, ok := d.knownPeers[node.URI]; !ok {
		observeUpdate(config.ModeRestricted, resultRejected)
		d.log.WithField("peer", node.URI.String()).Warn("Rejected announcement from peer outside the allow-list")
		return fmt.Errorf("%w: %s is not a known peer", ErrAutoDiscoveryDisabled, node.URI)
	}

	d.networkStore.Store(node)
	observeUpdate(config.ModeRestricted, resultAccepted)
	d.log.WithFields(logrus.Fields{
		"peer": node.URI.String(),
		"keys": len(node.Keys),
	}).Debug("Stored peer announcement")
	return nil
}
