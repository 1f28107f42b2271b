package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/busybox42/aegis-pm/pkg/discovery"
	"github.com/busybox42/aegis-pm/pkg/protocol"
	"github.com/busybox42/aegis-pm/pkg/types"
)

// Transport is the inbound side of the peer protocol. It accepts peer
// announcements and resend requests over HTTP.
type Transport struct {
	config   *Config
	log      logrus.FieldLogger
	mux      *http.ServeMux
	server   *http.Server
	listener net.Listener

	mu     sync.RWMutex
	resend ResendFunc
}

func NewTransport(config *Config) *Transport {
	log := config.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	t := &Transport{
		config: config,
		log:    log,
		mux:    http.NewServeMux(),
	}
	t.mux.HandleFunc(protocol.PartyInfoPath, t.handlePartyInfo)
	t.mux.HandleFunc(protocol.ResendPath, t.handleResend)
	return t
}

// Handle mounts an extra handler, e.g. the metrics endpoint.
func (t *Transport) Handle(pattern string, handler http.Handler) {
	t.mux.Handle(pattern, handler)
}

// HandleResend registers the function serving inbound resend requests.
func (t *Transport) HandleResend(fn ResendFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resend = fn
}

func (t *Transport) Start() error {
	listener, err := net.Listen("tcp", t.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", t.config.Address, err)
	}
	t.listener = listener
	t.server = &http.Server{
		Handler:      t.mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	go func() {
		if err := t.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.WithError(err).Error("Transport stopped unexpectedly")
		}
	}()

	t.log.WithField("address", listener.Addr().String()).Info("Transport listening")
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (t *Transport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *Transport) Stop() error {
	if t.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return t.server.Shutdown(ctx)
}

func (t *Transport) handlePartyInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	announcement, err := protocol.DecodeNodeInfo(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := t.config.Discovery.OnUpdate(announcement); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (t *Transport) handleResend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	t.mu.RLock()
	resend := t.resend
	t.mu.RUnlock()
	if resend == nil {
		http.Error(w, "resend is not supported", http.StatusNotImplemented)
		return
	}

	key, err := protocol.DecodeResendRequest(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := resend(r.Context(), key); err != nil {
		t.log.WithError(err).WithField("key", key.String()).Warn("Failed to serve resend request")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, discovery.ErrAutoDiscoveryDisabled):
		return http.StatusForbidden
	case errors.Is(err, types.ErrInvalidAddress):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
