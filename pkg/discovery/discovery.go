// Package discovery decides which peer announcements may update the
// network store.
package discovery

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/busybox42/aegis-pm/internal/store"
	"github.com/busybox42/aegis-pm/pkg/config"
	"github.com/busybox42/aegis-pm/pkg/types"
)

// ErrAutoDiscoveryDisabled is returned when restricted discovery rejects a
// peer that is not on the allow-list.
var ErrAutoDiscoveryDisabled = errors.New("auto discovery is disabled")

// Policy handles an inbound peer announcement.
type Policy interface {
	OnUpdate(announcement types.NodeAnnouncement) error
}

// Option configures a Policy.
type Option func(*options)

type options struct {
	log logrus.FieldLogger
}

// WithLogger sets the logger used for discovery decisions.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = log
	}
}

func buildOptions(opts []Option) options {
	o := options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New resolves the discovery variant for rc. It is meant to be called once
// at startup; the returned policy never changes mode.
func New(rc config.RuntimeContext, networkStore store.NetworkStore, opts ...Option) (Policy, error) {
	switch rc.DiscoveryMode {
	case config.ModeOpen, "":
		return NewAutoDiscovery(networkStore, opts...), nil
	case config.ModeRestricted:
		return NewDisabledAutoDiscovery(networkStore, rc.AllowList, opts...), nil
	default:
		return nil, fmt.Errorf("unknown discovery mode %q", rc.DiscoveryMode)
	}
}

func activeNodeFrom(announcement types.NodeAnnouncement) (types.ActiveNode, error) {
	uri, err := types.ParseNodeUri(announcement.URL)
	if err != nil {
		return types.ActiveNode{}, err
	}
	return types.NewActiveNode(uri, announcement.Keys()), nil
}
