package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/busybox42/aegis-pm/pkg/config"
	"github.com/busybox42/aegis-pm/pkg/server"
)

var log = logrus.New()

func initLogger(level logrus.Level) {
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(level)
}

func loadConfig(path string, address string, useTor bool) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if address != "" {
		cfg.Server.Address = address
	}
	if useTor {
		cfg.Tor.Enabled = true
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	address := flag.String("address", "", "Listen address, overrides server.address")
	useTor := flag.Bool("tor", false, "Send outbound peer traffic through Tor")
	flag.Parse()

	initLogger(logrus.InfoLevel)

	cfg, err := loadConfig(*configPath, *address, *useTor)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	defer srv.Shutdown()

	go srv.Run(ctx)

	log.Info("Sidecar is running")
	<-ctx.Done()
	log.Info("Shutting down")
}
