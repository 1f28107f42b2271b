// Package server assembles the privacy-manager sidecar: peer registry,
// discovery policy, resend requester and the HTTP transport.
package server

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/busybox42/aegis-pm/internal/store"
	"github.com/busybox42/aegis-pm/pkg/config"
	"github.com/busybox42/aegis-pm/pkg/discovery"
	"github.com/busybox42/aegis-pm/pkg/enclave"
	"github.com/busybox42/aegis-pm/pkg/network"
	"github.com/busybox42/aegis-pm/pkg/resend"
	"github.com/busybox42/aegis-pm/pkg/tor"
	"github.com/busybox42/aegis-pm/pkg/types"
)

const metricsPath = "/metrics"

// Option customizes a Server.
type Option func(*Server)

// WithResendHandler sets the function that re-pushes stored payloads when a
// peer asks for them. Without one, inbound resend requests are refused.
func WithResendHandler(fn network.ResendFunc) Option {
	return func(s *Server) {
		s.resendHandler = fn
	}
}

// WithEnclave replaces the enclave built from the configured keys.
func WithEnclave(e enclave.Enclave) Option {
	return func(s *Server) {
		s.enclave = e
	}
}

type Server struct {
	config        *config.Config
	log           logrus.FieldLogger
	localURI      types.NodeUri
	peers         []types.NodeUri
	networkStore  *store.Local
	enclave       enclave.Enclave
	discovery     discovery.Policy
	client        *network.Client
	requester     resend.TransactionRequester
	transport     *network.Transport
	torManager    *tor.Manager
	resendHandler network.ResendFunc
}

func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log.Infof("Initializing sidecar on %s (Tor: %v)", cfg.Server.Address, cfg.Tor.Enabled)

	srv := &Server{
		config:       cfg,
		log:          log,
		networkStore: store.NewLocal(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	if err := srv.initializeKeys(); err != nil {
		return nil, fmt.Errorf("failed to initialize keys: %w", err)
	}
	if err := srv.initializeDiscovery(); err != nil {
		return nil, fmt.Errorf("failed to initialize discovery: %w", err)
	}
	srv.registerSelf()
	if cfg.Tor.Enabled {
		if err := srv.initializeTor(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize Tor: %w", err)
		}
	}
	if err := srv.initializeNetwork(); err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("failed to initialize network: %w", err)
	}

	log.Info("Sidecar initialized successfully")
	return srv, nil
}

func (srv *Server) initializeKeys() error {
	if srv.enclave != nil {
		return nil
	}
	keys, err := srv.config.PublicKeys()
	if err != nil {
		return err
	}
	e, generated, err := enclave.Load(keys)
	if err != nil {
		return err
	}
	srv.enclave = e
	if generated {
		srv.log.WithField("key", e.PublicKeys()[0].String()).Warn("No keys configured, generated an ephemeral node key")
		return nil
	}
	srv.log.WithField("keys", len(keys)).Info("Loaded local public keys")
	return nil
}

// registerSelf records this node and the keys its enclave holds in the
// network store, so lookups for local keys resolve to this node.
func (srv *Server) registerSelf() {
	srv.networkStore.Store(types.NewActiveNode(srv.localURI, srv.enclave.PublicKeys()))
}

func (srv *Server) initializeDiscovery() error {
	uri, err := types.ParseNodeUri(srv.config.Server.URL)
	if err != nil {
		return err
	}
	srv.localURI = uri

	rc, err := srv.config.RuntimeContext()
	if err != nil {
		return err
	}
	srv.peers = rc.AllowList

	policy, err := discovery.New(rc, srv.networkStore, discovery.WithLogger(srv.log))
	if err != nil {
		return err
	}
	srv.discovery = policy
	srv.log.WithFields(logrus.Fields{
		"mode":  rc.DiscoveryMode,
		"peers": len(rc.AllowList),
	}).Info("Discovery configured")
	return nil
}

func (srv *Server) initializeTor(ctx context.Context) error {
	cfg := tor.Config{Log: srv.log}
	if _, port, err := net.SplitHostPort(srv.config.Server.Address); err == nil {
		cfg.ServicePort, _ = strconv.Atoi(port)
	}

	m, err := tor.Start(ctx, cfg)
	if err != nil {
		return err
	}
	srv.torManager = m
	srv.log.Infof("Tor initialized successfully. Onion address: %s", m.OnionAddress)
	return nil
}

func (srv *Server) initializeNetwork() error {
	clientConfig := &network.ClientConfig{Log: srv.log}
	if srv.torManager != nil {
		dialer, err := srv.torManager.Dialer()
		if err != nil {
			return err
		}
		clientConfig.Dialer = dialer
	}
	srv.client = network.NewClient(clientConfig)

	rc := srv.config.Resend
	srv.requester = resend.NewTransactionRequester(srv.enclave, srv.client,
		resend.WithRetryPolicy(resend.RetryPolicy{
			MaxAttempts:     rc.MaxAttempts,
			InitialInterval: rc.InitialInterval,
			MaxInterval:     rc.MaxInterval,
		}),
		resend.WithConcurrency(rc.Concurrency),
		resend.WithLogger(srv.log),
	)

	srv.transport = network.NewTransport(&network.Config{
		Address:   srv.config.Server.Address,
		Discovery: srv.discovery,
		Log:       srv.log,
	})
	srv.transport.Handle(metricsPath, promhttp.Handler())
	if srv.resendHandler != nil {
		srv.transport.HandleResend(srv.resendHandler)
	}

	if err := srv.transport.Start(); err != nil {
		srv.log.Errorf("Failed to start transport: %v", err)
		return err
	}

	srv.log.Info("Network initialized successfully")
	return nil
}

// Announcement describes this node as peers should see it.
func (srv *Server) Announcement() types.NodeAnnouncement {
	keys := srv.enclave.PublicKeys()
	announcement := types.NodeAnnouncement{
		URL:        srv.localURI.String(),
		Recipients: make([]types.Recipient, 0, len(keys)),
	}
	for _, k := range keys {
		announcement.Recipients = append(announcement.Recipients, types.Recipient{Key: k, URL: srv.localURI.String()})
	}
	return announcement
}

// AnnounceToPeers refreshes this node's own registry entry and pushes our node
// info to every configured peer. Failures are logged; a peer that is down will
// learn about us on the next round.
func (srv *Server) AnnounceToPeers(ctx context.Context) {
	srv.registerSelf()
	announcement := srv.Announcement()
	for _, peer := range srv.peers {
		if peer == srv.localURI {
			continue
		}
		if err := srv.client.PushNodeInfo(ctx, peer, announcement); err != nil {
			srv.log.WithError(err).WithField("peer", peer.String()).Warn("Failed to announce to peer")
		}
	}
}

// PullFromPeers asks every configured peer to resend what it holds for our keys.
func (srv *Server) PullFromPeers(ctx context.Context) {
	for _, peer := range srv.peers {
		if peer == srv.localURI {
			continue
		}
		srv.requester.RequestAllTransactionsFromNode(ctx, peer)
	}
}

// Run performs the startup rounds: announce ourselves, then optionally pull
// missed transactions.
func (srv *Server) Run(ctx context.Context) {
	srv.AnnounceToPeers(ctx)
	if srv.config.Resend.OnStartup {
		srv.PullFromPeers(ctx)
	}
}

func (srv *Server) NetworkStore() store.NetworkStore {
	return srv.networkStore
}

func (srv *Server) Addr() net.Addr {
	if srv.transport == nil {
		return nil
	}
	return srv.transport.Addr()
}

func (srv *Server) Shutdown() error {
	if srv.transport != nil {
		if err := srv.transport.Stop(); err != nil {
			srv.log.Errorf("Error stopping transport: %v", err)
		}
	}
	if srv.torManager != nil {
		if err := srv.torManager.Stop(); err != nil {
			srv.log.Errorf("Error stopping Tor: %v", err)
		}
	}
	return nil
}
