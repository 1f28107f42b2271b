// Package tor runs an embedded Tor process so resend requests and other
// outbound peer calls can leave through its SOCKS5 proxy.
package tor

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/cretz/bine/tor"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

const (
	maxStartAttempts = 3
	socksWaitTimeout = 30 * time.Second
)

// Manager owns an embedded Tor instance.
type Manager struct {
	TorInstance  *tor.Tor
	OnionAddress string
	SocksPort    int
	DataDir      string

	log logrus.FieldLogger
}

// Config controls how Tor is started. A zero Config starts a client-only
// instance on a free SOCKS port.
type Config struct {
	// ServicePort, when non-zero, publishes a v3 onion service forwarding to
	// this local port.
	ServicePort int
	Log         logrus.FieldLogger
}

// Start launches Tor, retrying on a new SOCKS port if it fails to come up.
func Start(ctx context.Context, cfg Config) (*Manager, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	var lastErr error
	for attempt := 1; attempt <= maxStartAttempts; attempt++ {
		m, err := start(ctx, cfg, log)
		if err == nil {
			return m, nil
		}
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("Failed to start Tor")
	}
	return nil, fmt.Errorf("failed to start Tor after %d attempts: %w", maxStartAttempts, lastErr)
}

func start(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Manager, error) {
	socksPort, err := freePort()
	if err != nil {
		return nil, err
	}

	dataDir, err := os.MkdirTemp("", "tor-data-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary Tor data directory: %w", err)
	}

	t, err := tor.Start(ctx, &tor.StartConf{
		DataDir:   dataDir,
		ExtraArgs: []string{"--SocksPort", strconv.Itoa(socksPort)},
	})
	if err != nil {
		os.RemoveAll(dataDir)
		return nil, fmt.Errorf("start tor process: %w", err)
	}

	m := &Manager{
		TorInstance: t,
		SocksPort:   socksPort,
		DataDir:     dataDir,
		log:         log,
	}

	if err := t.EnableNetwork(ctx, true); err != nil {
		m.Stop()
		return nil, fmt.Errorf("enable tor network: %w", err)
	}

	if !waitForSocks5Proxy(m.socksAddress(), socksWaitTimeout) {
		m.Stop()
		return nil, fmt.Errorf("SOCKS5 proxy did not start on %s", m.socksAddress())
	}

	if cfg.ServicePort != 0 {
		hs, err := t.Listen(ctx, &tor.ListenConf{
			LocalPort:   cfg.ServicePort,
			RemotePorts: []int{cfg.ServicePort},
			Version3:    true,
		})
		if err != nil {
			m.Stop()
			return nil, fmt.Errorf("create onion service: %w", err)
		}
		m.OnionAddress = hs.ID + ".onion"
	}

	log.WithFields(logrus.Fields{
		"socks": m.socksAddress(),
		"onion": m.OnionAddress,
	}).Info("Tor started")
	return m, nil
}

func (m *Manager) socksAddress() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(m.SocksPort))
}

// Dialer returns a SOCKS5 dialer for outgoing connections via Tor.
func (m *Manager) Dialer() (proxy.Dialer, error) {
	dialer, err := proxy.SOCKS5("tcp", m.socksAddress(), nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	return dialer, nil
}

// Stop shuts down Tor and removes its data directory.
func (m *Manager) Stop() error {
	var err error
	if m.TorInstance != nil {
		err = m.TorInstance.Close()
		m.TorInstance = nil
	}
	if m.DataDir != "" {
		os.RemoveAll(m.DataDir)
		m.DataDir = ""
	}
	m.log.Info("Tor stopped")
	return err
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find a free port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// waitForSocks5Proxy checks if the SOCKS5 proxy is accepting connections.
func waitForSocks5Proxy(address string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", address, time.Second)
		if err == nil {
			conn.Close()
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}
