package store

import (
	"sort"
	"sync"

	"github.com/busybox42/aegis-pm/pkg/types"
)

// NetworkStore is the registry of known peers and the keys they serve.
type NetworkStore interface {
	Store(node types.ActiveNode)
	AllActiveNodes() []types.ActiveNode
	FindPeerServing(key types.PublicKey) (types.NodeUri, bool)
}

type entry struct {
	node types.ActiveNode
	seq  uint64
}

// Local is an in-memory NetworkStore keyed by canonical peer address.
type Local struct {
	mu    sync.RWMutex
	nodes map[types.NodeUri]entry
	seq   uint64
}

func NewLocal() *Local {
	return &Local{
		nodes: make(map[types.NodeUri]entry),
	}
}

// Store replaces whatever was known about node.URI with node.
func (s *Local) Store(node types.ActiveNode) {
	stored := node.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.nodes[stored.URI] = entry{node: stored, seq: s.seq}
	registeredPeers.Set(float64(len(s.nodes)))
}

// AllActiveNodes returns a copy of every registered peer ordered by address.
func (s *Local) AllActiveNodes() []types.ActiveNode {
	s.mu.RLock()
	out := make([]types.ActiveNode, 0, len(s.nodes))
	for _, e := range s.nodes {
		out = append(out, e.node.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].URI.String() < out[j].URI.String()
	})
	return out
}

// FindPeerServing returns the peer advertising key. When several peers
// claim it, the most recently stored one wins.
func (s *Local) FindPeerServing(key types.PublicKey) (types.NodeUri, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found types.NodeUri
		best  uint64
	)
	for uri, e := range s.nodes {
		if e.seq > best && e.node.HasKey(key) {
			found, best = uri, e.seq
		}
	}
	return found, best > 0
}
