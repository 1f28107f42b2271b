// Package enclave exposes the local node identities.
package enclave

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"slices"
	"sync"

	"github.com/busybox42/aegis-pm/pkg/types"
)

// Enclave holds the node's own key material.
type Enclave interface {
	PublicKeys() []types.PublicKey
}

// Static is an in-memory Enclave over a fixed set of public keys.
type Static struct {
	mu   sync.RWMutex
	keys []types.PublicKey
}

func NewStatic(keys ...types.PublicKey) *Static {
	s := &Static{}
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Load returns an enclave over the configured keys. A node configured without
// keys gets one freshly generated Ed25519 key so it still has an identity to
// announce; generated reports whether that happened.
func Load(keys []types.PublicKey) (e *Static, generated bool, err error) {
	if len(keys) > 0 {
		return NewStatic(keys...), false, nil
	}
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate node key: %w", err)
	}
	return NewStatic(types.PublicKey(pub)), true, nil
}

// Add registers key if it is not already known.
func (s *Static) Add(key types.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.ContainsFunc(s.keys, key.Equal) {
		return
	}
	s.keys = append(s.keys, slices.Clone(key))
}

func (s *Static) PublicKeys() []types.PublicKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.PublicKey, len(s.keys))
	for i, k := range s.keys {
		out[i] = slices.Clone(k)
	}
	return out
}
