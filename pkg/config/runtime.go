package config

import (
	"fmt"
	"strings"

	"github.com/busybox42/aegis-pm/pkg/types"
)

// DiscoveryMode selects how peer announcements are trusted.
type DiscoveryMode string

const (
	// ModeOpen accepts announcements from any peer.
	ModeOpen DiscoveryMode = "open"
	// ModeRestricted accepts announcements only from the allow-list.
	ModeRestricted DiscoveryMode = "restricted"
)

func (m *DiscoveryMode) UnmarshalText(text []byte) error {
	switch mode := DiscoveryMode(strings.ToLower(strings.TrimSpace(string(text)))); mode {
	case ModeOpen, ModeRestricted:
		*m = mode
		return nil
	case "":
		*m = ModeOpen
		return nil
	default:
		return fmt.Errorf("unknown discovery mode %q", string(text))
	}
}

// RuntimeContext is the startup-time view the core needs. It is built once
// and never changes afterwards.
type RuntimeContext struct {
	DiscoveryMode DiscoveryMode
	AllowList     []types.NodeUri
}

// RuntimeContext resolves the discovery settings. Every configured peer is
// parsed, so a malformed allow-list entry fails here rather than at the
// first announcement.
func (c *Config) RuntimeContext() (RuntimeContext, error) {
	peers, err := c.Peers()
	if err != nil {
		return RuntimeContext{}, err
	}

	mode := c.Discovery.Mode
	if mode == "" {
		mode = ModeOpen
	}
	if mode != ModeOpen && mode != ModeRestricted {
		return RuntimeContext{}, fmt.Errorf("unknown discovery mode %q", mode)
	}

	return RuntimeContext{
		DiscoveryMode: mode,
		AllowList:     peers,
	}, nil
}
