package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"

	"github.com/busybox42/aegis-pm/pkg/protocol"
	"github.com/busybox42/aegis-pm/pkg/types"
)

// Client is the HTTP P2pClient.
type Client struct {
	http *http.Client
	log  logrus.FieldLogger
}

func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = readTimeout
	if cfg.Dialer != nil {
		transport.Proxy = nil
		transport.DialContext = dialContext(cfg.Dialer)
	} else {
		transport.DialContext = (&net.Dialer{Timeout: connTimeout}).DialContext
	}

	return &Client{
		http: &http.Client{Transport: transport, Timeout: requestTimeout},
		log:  log,
	}
}

func dialContext(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}

func (c *Client) MakeResendRequest(ctx context.Context, target types.NodeUri, req types.ResendRequest) (bool, error) {
	body, err := json.Marshal(protocol.NewResendRequest(req))
	if err != nil {
		return false, fmt.Errorf("serialization error: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Resolve(protocol.ResendPath), bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build resend request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("resend request to %s failed: %w", target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxMsgSize))

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		c.log.WithFields(logrus.Fields{
			"target": target.String(),
			"status": resp.StatusCode,
		}).Debug("Peer refused resend request")
	}
	return ok, nil
}

// PushNodeInfo announces this node and the keys it serves to target.
func (c *Client) PushNodeInfo(ctx context.Context, target types.NodeUri, announcement types.NodeAnnouncement) error {
	body, err := json.Marshal(protocol.NewNodeInfo(announcement))
	if err != nil {
		return fmt.Errorf("serialization error: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Resolve(protocol.PartyInfoPath), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build node info request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("node info push to %s failed: %w", target, err)
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxMsgSize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("node info push to %s rejected with status %d: %s", target, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
