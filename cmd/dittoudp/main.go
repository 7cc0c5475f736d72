package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/dittoudp/internal/logger"
	"github.com/marmos91/dittoudp/pkg/config"
	"github.com/marmos91/dittoudp/pkg/gc"
	"github.com/marmos91/dittoudp/pkg/peers"
)

const usage = `DittoUDP - UDP request/response server

Usage:
  dittoudp [flags]            Start the server
  dittoudp init [--force]     Write a default config file

Flags:
`

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		os.Exit(runInit(os.Args[2:]))
	}

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}

	configPath := flag.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/dittoudp/config.yaml)")
	port := flag.Int("port", 0, "UDP port to listen on (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *port != 0 {
		cfg.Adapters.UDP.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func runInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	path := fs.String("config", "", "Where to write the config file (default: $XDG_CONFIG_HOME/dittoudp/config.yaml)")
	_ = fs.Parse(args)

	var err error
	target := *path
	if target == "" {
		target, err = config.InitConfig(*force)
	} else {
		err = config.InitConfigToPath(target, *force)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration written to %s\n", target)
	return 0
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("DittoUDP starting (log level %s)", cfg.Logging.Level)

	// Metrics
	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Peer table
	var store peers.Store
	var collector *gc.Collector
	if cfg.Peers.Enabled {
		var err error
		store, err = config.CreatePeerStore(ctx, &cfg.Peers)
		if err != nil {
			return fmt.Errorf("failed to create peer store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("Error closing peer store: %v", err)
			}
		}()
		logger.Info("Peer tracking enabled (%s store)", cfg.Peers.Type)

		collector = config.CreatePeerCollector(store, &cfg.Peers)
		collector.Start()
	}

	// Server
	srv := config.CreateServer(cfg, metricsResult.UDPMetrics, store)
	registerHandlers(srv)

	ctl, err := srv.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("Server is running on %s. Press Ctrl+C to stop.", srv.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received %s, initiating graceful shutdown...", sig)
		ctl.Shutdown()
	case <-ctl.Done():
		logger.Warn("Server stopped unexpectedly")
	}

	// The dispatcher gives in-flight requests ShutdownTimeout; allow a little
	// more before giving up on it.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.Adapters.UDP.ShutdownTimeout+5*time.Second)
	defer waitCancel()
	if err := ctl.WaitContext(waitCtx); err != nil {
		logger.Error("Server did not stop in time: %v", err)
	}

	if collector != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := collector.Stop(stopCtx); err != nil {
			logger.Warn("Peer collector did not stop cleanly: %v", err)
		}
	}

	stats := srv.Stats()
	logger.Info("Server stopped: received=%d dropped=%d", stats.Received, stats.Dropped)
	return nil
}
