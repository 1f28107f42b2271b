package types

import (
	"bytes"
	"slices"
)

// Recipient is a key a peer claims to serve, together with the address it is served from.
type Recipient struct {
	Key PublicKey
	URL string
}

// NodeAnnouncement is what a peer pushes to us: its own address and every
// key it currently serves.
type NodeAnnouncement struct {
	URL        string
	Recipients []Recipient
}

// Keys returns the announced keys in announcement order.
func (a NodeAnnouncement) Keys() []PublicKey {
	keys := make([]PublicKey, 0, len(a.Recipients))
	for _, r := range a.Recipients {
		keys = append(keys, r.Key)
	}
	return keys
}

// ActiveNode is the registry record for one peer.
type ActiveNode struct {
	URI  NodeUri
	Keys []PublicKey
}

// NewActiveNode copies keys into a sorted, de-duplicated set.
func NewActiveNode(uri NodeUri, keys []PublicKey) ActiveNode {
	set := make([]PublicKey, 0, len(keys))
	for _, k := range keys {
		set = append(set, slices.Clone(k))
	}
	slices.SortFunc(set, func(a, b PublicKey) int { return bytes.Compare(a, b) })
	set = slices.CompactFunc(set, func(a, b PublicKey) bool { return a.Equal(b) })

	return ActiveNode{URI: uri, Keys: set}
}

// HasKey reports whether the node serves key.
func (n ActiveNode) HasKey(key PublicKey) bool {
	return slices.ContainsFunc(n.Keys, key.Equal)
}

// Clone returns a deep copy of n.
func (n ActiveNode) Clone() ActiveNode {
	keys := make([]PublicKey, len(n.Keys))
	for i, k := range n.Keys {
		keys[i] = slices.Clone(k)
	}
	return ActiveNode{URI: n.URI, Keys: keys}
}

// ResendRequest asks Target to push again everything addressed to PublicKey.
type ResendRequest struct {
	PublicKey string
	Target    NodeUri
}

// NewResendRequest builds a request for key, base64 encoding it for the wire.
func NewResendRequest(key PublicKey, target NodeUri) ResendRequest {
	return ResendRequest{
		PublicKey: key.String(),
		Target:    target,
	}
}
