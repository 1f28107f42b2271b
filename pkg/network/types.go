package network

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"

	"github.com/busybox42/aegis-pm/pkg/discovery"
	"github.com/busybox42/aegis-pm/pkg/types"
)

// ResendFunc serves a resend request received from a peer.
type ResendFunc func(ctx context.Context, key types.PublicKey) error

// Config configures the inbound transport.
type Config struct {
	Address   string
	Discovery discovery.Policy
	Log       logrus.FieldLogger
}

// ClientConfig configures the outbound P2P client.
type ClientConfig struct {
	// Dialer, when set, carries every outbound connection, e.g. Tor's SOCKS5 proxy.
	Dialer proxy.Dialer
	Log    logrus.FieldLogger
}
