package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/busybox42/aegis-pm/pkg/config"
	"github.com/busybox42/aegis-pm/pkg/enclave"
	"github.com/busybox42/aegis-pm/pkg/network"
	"github.com/busybox42/aegis-pm/pkg/resend"
	"github.com/busybox42/aegis-pm/pkg/tor"
	"github.com/busybox42/aegis-pm/pkg/types"
)

var log = logrus.New()

type nodeInfoPusher interface {
	PushNodeInfo(ctx context.Context, target types.NodeUri, announcement types.NodeAnnouncement) error
}

// console drives one-off operations against remote peers using the local
// node's identity and keys.
type console struct {
	self      types.NodeUri
	enclave   enclave.Enclave
	pusher    nodeInfoPusher
	requester resend.TransactionRequester
	out       io.Writer
}

func newConsole(cfg *config.Config, client *network.Client, out io.Writer) (*console, error) {
	self, err := types.ParseNodeUri(cfg.Server.URL)
	if err != nil {
		return nil, fmt.Errorf("server.url: %w", err)
	}
	keys, err := cfg.PublicKeys()
	if err != nil {
		return nil, err
	}
	e, generated, err := enclave.Load(keys)
	if err != nil {
		return nil, err
	}
	if generated {
		log.Warn("No keys configured, using an ephemeral node key")
	}

	rc := cfg.Resend
	requester := resend.NewTransactionRequester(e, client,
		resend.WithRetryPolicy(resend.RetryPolicy{
			MaxAttempts:     rc.MaxAttempts,
			InitialInterval: rc.InitialInterval,
			MaxInterval:     rc.MaxInterval,
		}),
		resend.WithConcurrency(rc.Concurrency),
		resend.WithLogger(log),
	)

	return &console{
		self:      self,
		enclave:   e,
		pusher:    client,
		requester: requester,
		out:       out,
	}, nil
}

func (c *console) announcement() types.NodeAnnouncement {
	keys := c.enclave.PublicKeys()
	a := types.NodeAnnouncement{
		URL:        c.self.String(),
		Recipients: make([]types.Recipient, 0, len(keys)),
	}
	for _, k := range keys {
		a.Recipients = append(a.Recipients, types.Recipient{Key: k, URL: c.self.String()})
	}
	return a
}

// exec runs a single command line and reports whether the console should exit.
func (c *console) exec(ctx context.Context, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}

	parts := strings.SplitN(input, " ", 2)
	command := parts[0]
	var args string
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}

	switch command {
	case "announce":
		target, ok := c.parseTarget("announce", args)
		if !ok {
			return false
		}
		if err := c.pusher.PushNodeInfo(ctx, target, c.announcement()); err != nil {
			fmt.Fprintf(c.out, "Failed to announce: %v\n", err)
		} else {
			fmt.Fprintf(c.out, "Announced %d keys to %s\n", len(c.enclave.PublicKeys()), target)
		}

	case "pull":
		target, ok := c.parseTarget("pull", args)
		if !ok {
			return false
		}
		c.requester.RequestAllTransactionsFromNode(ctx, target)
		fmt.Fprintf(c.out, "Resend sweep against %s finished\n", target)

	case "keys":
		keys := c.enclave.PublicKeys()
		fmt.Fprintf(c.out, "Local node %s serves %d keys:\n", c.self, len(keys))
		for _, k := range keys {
			fmt.Fprintf(c.out, "  %s\n", k)
		}

	case "help":
		fmt.Fprintln(c.out, "Available commands:")
		fmt.Fprintln(c.out, "  announce <peer_url>  - Push this node's keys to a peer")
		fmt.Fprintln(c.out, "  pull <peer_url>      - Ask a peer to resend transactions for every local key")
		fmt.Fprintln(c.out, "  keys                 - List local public keys")
		fmt.Fprintln(c.out, "  help                 - Show this help message")
		fmt.Fprintln(c.out, "  quit                 - Exit the console")

	case "quit", "exit":
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command: %s. Type 'help' for available commands.\n", command)
	}
	return false
}

func (c *console) parseTarget(command, args string) (types.NodeUri, bool) {
	if args == "" {
		fmt.Fprintf(c.out, "Usage: %s <peer_url>\n", command)
		return types.NodeUri{}, false
	}
	target, err := types.ParseNodeUri(args)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid peer url: %v\n", err)
		return types.NodeUri{}, false
	}
	return target, true
}

func (c *console) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "pmctl> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if c.exec(ctx, scanner.Text()) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	useTor := flag.Bool("tor", false, "Send peer traffic through Tor")
	flag.Parse()

	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		cfg = loaded
	}
	log.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientConfig := &network.ClientConfig{Log: log}
	if *useTor || cfg.Tor.Enabled {
		m, err := tor.Start(ctx, tor.Config{Log: log})
		if err != nil {
			log.Fatalf("Failed to start Tor: %v", err)
		}
		defer m.Stop()
		dialer, err := m.Dialer()
		if err != nil {
			log.Fatalf("Failed to build Tor dialer: %v", err)
		}
		clientConfig.Dialer = dialer
	}

	c, err := newConsole(cfg, network.NewClient(clientConfig), os.Stdout)
	if err != nil {
		log.Fatalf("Failed to initialize console: %v", err)
	}
	fmt.Printf("Local node %s with %d keys. Type 'help' for commands.\n", c.self, len(c.enclave.PublicKeys()))

	if err := c.run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Console error: %v", err)
	}
}
