package discovery

import (
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/busybox42/aegis-pm/internal/store"
	"github.com/busybox42/aegis-pm/pkg/config"
	"github.com/busybox42/aegis-pm/pkg/types"
)

type mockNetworkStore struct {
	mock.Mock
}

func (m *mockNetworkStore) Store(node types.ActiveNode) {
	m.Called(node)
}

func (m *mockNetworkStore) AllActiveNodes() []types.ActiveNode {
	return m.Called().Get(0).([]types.ActiveNode)
}

func (m *mockNetworkStore) FindPeerServing(key types.PublicKey) (types.NodeUri, bool) {
	args := m.Called(key)
	return args.Get(0).(types.NodeUri), args.Bool(1)
}

const (
	knownA  = "http://bobbysixkiller.com"
	knownB  = "http://renoraynes.com"
	unknown = "http://donalddutchdixon.com"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func knownPeers() []types.NodeUri {
	return []types.NodeUri{types.MustParseNodeUri(knownA), types.MustParseNodeUri(knownB)}
}

func TestDisabledAutoDiscoveryRejectsUnknownPeer(t *testing.T) {
	networkStore := new(mockNetworkStore)
	discovery := NewDisabledAutoDiscovery(networkStore, knownPeers(), WithLogger(quietLogger()))

	err := discovery.OnUpdate(types.NodeAnnouncement{URL: unknown})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAutoDiscoveryDisabled))
	networkStore.AssertNotCalled(t, "Store", mock.Anything)
}

func TestDisabledAutoDiscoveryRejectsUnknownPeerLeavesRegistryEmpty(t *testing.T) {
	registry := store.NewLocal()
	discovery := NewDisabledAutoDiscovery(registry, knownPeers(), WithLogger(quietLogger()))

	err := discovery.OnUpdate(types.NodeAnnouncement{
		URL:        "http://peer-c:9001",
		Recipients: []types.Recipient{{Key: types.PublicKey{1}, URL: "http://peer-c:9001"}},
	})

	assert.ErrorIs(t, err, ErrAutoDiscoveryDisabled)
	assert.Empty(t, registry.AllActiveNodes())
}

func TestDisabledAutoDiscoveryAcceptsKnownPeer(t *testing.T) {
	networkStore := new(mockNetworkStore)
	networkStore.On("Store", mock.AnythingOfType("types.ActiveNode")).Return().Once()
	discovery := NewDisabledAutoDiscovery(networkStore, knownPeers(), WithLogger(quietLogger()))

	err := discovery.OnUpdate(types.NodeAnnouncement{URL: knownA})

	require.NoError(t, err)
	networkStore.AssertExpectations(t)
}

func TestDisabledAutoDiscoveryMatchesEquivalentAddress(t *testing.T) {
	networkStore := new(mockNetworkStore)
	networkStore.On("Store", mock.Anything).Return().Once()
	discovery := NewDisabledAutoDiscovery(networkStore, knownPeers(), WithLogger(quietLogger()))

	require.NoError(t, discovery.OnUpdate(types.NodeAnnouncement{URL: "HTTP://RenoRaynes.com:80/"}))
	networkStore.AssertExpectations(t)
}

func TestDisabledAutoDiscoveryNodeSendsNewKey(t *testing.T) {
	key := types.PublicKey{0xca, 0xfe}

	var stored []types.ActiveNode
	networkStore := new(mockNetworkStore)
	networkStore.On("Store", mock.Anything).Run(func(args mock.Arguments) {
		stored = append(stored, args.Get(0).(types.ActiveNode))
	}).Return()

	discovery := NewDisabledAutoDiscovery(networkStore, knownPeers(), WithLogger(quietLogger()))

	err := discovery.OnUpdate(types.NodeAnnouncement{
		URL:        knownA,
		Recipients: []types.Recipient{{Key: key, URL: knownA}},
	})
	require.NoError(t, err)

	require.Len(t, stored, 1)
	assert.Equal(t, []types.PublicKey{key}, stored[0].Keys)
	assert.Equal(t, types.MustParseNodeUri(knownA), stored[0].URI)
	networkStore.AssertNumberOfCalls(t, "Store", 1)
}

func TestRestrictedScenarioSingleAllowedPeer(t *testing.T) {
	registry := store.NewLocal()
	a := types.MustParseNodeUri("http://peer-a:9001")
	discovery := NewDisabledAutoDiscovery(registry, []types.NodeUri{a}, WithLogger(quietLogger()))

	err := discovery.OnUpdate(types.NodeAnnouncement{
		URL:        a.String(),
		Recipients: []types.Recipient{{Key: types.PublicKey{1}, URL: a.String()}},
	})
	require.NoError(t, err)

	nodes := registry.AllActiveNodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, a, nodes[0].URI)
	assert.Equal(t, []types.PublicKey{{1}}, nodes[0].Keys)
}

func TestAutoDiscoveryStoresAnyPeer(t *testing.T) {
	registry := store.NewLocal()
	discovery := NewAutoDiscovery(registry, WithLogger(quietLogger()))

	announcement := types.NodeAnnouncement{
		URL: "http://peer-z:9001/",
		Recipients: []types.Recipient{
			{Key: types.PublicKey{3}, URL: "http://peer-z:9001"},
			{Key: types.PublicKey{1}, URL: "http://peer-z:9001"},
			{Key: types.PublicKey{3}, URL: "http://peer-z:9001"},
		},
	}
	require.NoError(t, discovery.OnUpdate(announcement))

	nodes := registry.AllActiveNodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, types.MustParseNodeUri(announcement.URL), nodes[0].URI)
	assert.ElementsMatch(t, []types.PublicKey{{1}, {3}}, nodes[0].Keys)
}

func TestAutoDiscoveryEmptyRecipients(t *testing.T) {
	registry := store.NewLocal()
	discovery := NewAutoDiscovery(registry, WithLogger(quietLogger()))

	require.NoError(t, discovery.OnUpdate(types.NodeAnnouncement{URL: "http://peer-z:9001"}))

	nodes := registry.AllActiveNodes()
	require.Len(t, nodes, 1)
	assert.Empty(t, nodes[0].Keys)
}

func TestAutoDiscoveryReannouncementReplacesKeys(t *testing.T) {
	registry := store.NewLocal()
	discovery := NewAutoDiscovery(registry, WithLogger(quietLogger()))
	url := "http://peer-z:9001"

	require.NoError(t, discovery.OnUpdate(types.NodeAnnouncement{
		URL:        url,
		Recipients: []types.Recipient{{Key: types.PublicKey{1}, URL: url}, {Key: types.PublicKey{2}, URL: url}},
	}))
	require.NoError(t, discovery.OnUpdate(types.NodeAnnouncement{
		URL:        url,
		Recipients: []types.Recipient{{Key: types.PublicKey{2}, URL: url}},
	}))

	nodes := registry.AllActiveNodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, []types.PublicKey{{2}}, nodes[0].Keys)
}

func TestInvalidAddressPropagates(t *testing.T) {
	for _, policy := range []Policy{
		NewAutoDiscovery(new(mockNetworkStore), WithLogger(quietLogger())),
		NewDisabledAutoDiscovery(new(mockNetworkStore), knownPeers(), WithLogger(quietLogger())),
	} {
		err := policy.OnUpdate(types.NodeAnnouncement{URL: "not-a-url"})
		assert.ErrorIs(t, err, types.ErrInvalidAddress)
		assert.NotErrorIs(t, err, ErrAutoDiscoveryDisabled)
	}
}

func TestRestrictedBehavesLikeOpenForAllowedPeer(t *testing.T) {
	announcement := types.NodeAnnouncement{
		URL:        knownB,
		Recipients: []types.Recipient{{Key: types.PublicKey{5}, URL: knownB}, {Key: types.PublicKey{4}, URL: knownB}},
	}

	open := store.NewLocal()
	restricted := store.NewLocal()
	require.NoError(t, NewAutoDiscovery(open, WithLogger(quietLogger())).OnUpdate(announcement))
	require.NoError(t, NewDisabledAutoDiscovery(restricted, knownPeers(), WithLogger(quietLogger())).OnUpdate(announcement))

	assert.Equal(t, open.AllActiveNodes(), restricted.AllActiveNodes())
}

func TestNewSelectsVariant(t *testing.T) {
	registry := store.NewLocal()

	open, err := New(config.RuntimeContext{DiscoveryMode: config.ModeOpen}, registry)
	require.NoError(t, err)
	assert.IsType(t, &AutoDiscovery{}, open)

	restricted, err := New(config.RuntimeContext{DiscoveryMode: config.ModeRestricted, AllowList: knownPeers()}, registry)
	require.NoError(t, err)
	assert.IsType(t, &DisabledAutoDiscovery{}, restricted)

	_, err = New(config.RuntimeContext{DiscoveryMode: "sometimes"}, registry)
	assert.Error(t, err)
}

func TestRejectionIsLoggedAndCounted(t *testing.T) {
	log, hook := test.NewNullLogger()
	discovery := NewDisabledAutoDiscovery(store.NewLocal(), knownPeers(), WithLogger(log))

	counter := updatesTotal.WithLabelValues(string(config.ModeRestricted), resultRejected)
	before := testutil.ToFloat64(counter)

	require.Error(t, discovery.OnUpdate(types.NodeAnnouncement{URL: unknown}))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, unknown, hook.LastEntry().Data["peer"])
}
