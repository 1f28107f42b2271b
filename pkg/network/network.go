package network

import (
	"context"

	"github.com/busybox42/aegis-pm/pkg/types"
)

// P2pClient performs calls against other peers.
type P2pClient interface {
	// MakeResendRequest asks target to push again everything addressed to
	// the request key. It reports false when the peer refused the request and
	// an error when the call could not be completed.
	MakeResendRequest(ctx context.Context, target types.NodeUri, req types.ResendRequest) (bool, error)
}
