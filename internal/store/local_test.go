package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busybox42/aegis-pm/pkg/types"
)

var (
	peerA = types.MustParseNodeUri("http://peer-a:9001")
	peerB = types.MustParseNodeUri("http://peer-b:9001")
	peerC = types.MustParseNodeUri("http://peer-c:9001")
)

func TestStoreAndSnapshot(t *testing.T) {
	s := NewLocal()
	s.Store(types.NewActiveNode(peerB, []types.PublicKey{{2}}))
	s.Store(types.NewActiveNode(peerA, []types.PublicKey{{1}}))

	nodes := s.AllActiveNodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, peerA, nodes[0].URI)
	assert.Equal(t, peerB, nodes[1].URI)
}

func TestStoreReplacesKeySet(t *testing.T) {
	s := NewLocal()
	s.Store(types.NewActiveNode(peerA, []types.PublicKey{{1}, {2}}))
	s.Store(types.NewActiveNode(types.MustParseNodeUri("http://PEER-A:9001/"), []types.PublicKey{{3}}))

	nodes := s.AllActiveNodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, []types.PublicKey{{3}}, nodes[0].Keys)

	_, ok := s.FindPeerServing(types.PublicKey{1})
	assert.False(t, ok)
}

func TestStoreEmptyKeySet(t *testing.T) {
	s := NewLocal()
	s.Store(types.NewActiveNode(peerA, nil))

	nodes := s.AllActiveNodes()
	require.Len(t, nodes, 1)
	assert.Empty(t, nodes[0].Keys)
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := NewLocal()
	s.Store(types.NewActiveNode(peerA, []types.PublicKey{{1}}))

	snapshot := s.AllActiveNodes()
	snapshot[0].Keys[0][0] = 42

	s.Store(types.NewActiveNode(peerB, nil))
	s.Store(types.NewActiveNode(peerA, []types.PublicKey{{5}}))

	require.Len(t, snapshot, 1)
	assert.Equal(t, types.PublicKey{42}, snapshot[0].Keys[0])

	uri, ok := s.FindPeerServing(types.PublicKey{5})
	require.True(t, ok)
	assert.Equal(t, peerA, uri)
}

func TestStoreCopiesInput(t *testing.T) {
	s := NewLocal()
	node := types.NewActiveNode(peerA, []types.PublicKey{{1}})
	s.Store(node)

	node.Keys[0][0] = 9

	_, ok := s.FindPeerServing(types.PublicKey{1})
	assert.True(t, ok)
}

func TestFindPeerServing(t *testing.T) {
	s := NewLocal()

	_, ok := s.FindPeerServing(types.PublicKey{1})
	assert.False(t, ok)

	s.Store(types.NewActiveNode(peerA, []types.PublicKey{{1}}))
	s.Store(types.NewActiveNode(peerB, []types.PublicKey{{2}}))

	uri, ok := s.FindPeerServing(types.PublicKey{2})
	require.True(t, ok)
	assert.Equal(t, peerB, uri)
}

func TestFindPeerServingMostRecentWins(t *testing.T) {
	s := NewLocal()
	shared := types.PublicKey{9}

	s.Store(types.NewActiveNode(peerA, []types.PublicKey{shared}))
	s.Store(types.NewActiveNode(peerB, []types.PublicKey{shared}))

	for i := 0; i < 10; i++ {
		uri, ok := s.FindPeerServing(shared)
		require.True(t, ok)
		assert.Equal(t, peerB, uri)
	}

	// re-announcing A makes it the most recent claimer
	s.Store(types.NewActiveNode(peerA, []types.PublicKey{shared}))
	uri, _ := s.FindPeerServing(shared)
	assert.Equal(t, peerA, uri)

	// B dropping the key leaves A
	s.Store(types.NewActiveNode(peerB, nil))
	s.Store(types.NewActiveNode(peerC, nil))
	uri, ok := s.FindPeerServing(shared)
	require.True(t, ok)
	assert.Equal(t, peerA, uri)
}

func TestConcurrentStoreAndRead(t *testing.T) {
	s := NewLocal()
	const writers = 8
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			uri := types.MustParseNodeUri(fmt.Sprintf("http://peer-%d:9001", w))
			for i := 0; i < rounds; i++ {
				// key set always contains the writer id and the round, never half of it
				s.Store(types.NewActiveNode(uri, []types.PublicKey{{byte(w)}, {0xff, byte(i)}}))
			}
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			for _, node := range s.AllActiveNodes() {
				if len(node.Keys) != 2 {
					t.Errorf("observed partial node %v with %d keys", node.URI, len(node.Keys))
					return
				}
			}
			s.FindPeerServing(types.PublicKey{1})
		}
	}()

	wg.Wait()
	assert.Len(t, s.AllActiveNodes(), writers)
}
