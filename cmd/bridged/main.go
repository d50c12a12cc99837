package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"mpcbridge/config"
	"mpcbridge/core"
	"mpcbridge/core/events"
	"mpcbridge/core/host"
	"mpcbridge/observability"
	"mpcbridge/observability/logging"
	telemetry "mpcbridge/observability/otel"
	"mpcbridge/rpc"
	"mpcbridge/storage"
	"mpcbridge/storage/audit"
)

const (
	serviceName    = "bridged"
	envVar         = "BRIDGE_ENV"
	parkedInterval = 15 * time.Second
)

func main() {
	configFile := flag.String("config", "./bridge.toml", "Path to the configuration file (TOML or YAML)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "bridged: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := cfg.Environment
	if value := strings.TrimSpace(os.Getenv(envVar)); value != "" {
		env = value
	}
	logger := logging.SetupWithFile(serviceName, env, logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	if cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryConfig(cfg, env))
		if err != nil {
			return fmt.Errorf("initialise telemetry: %w", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				logger.Warn("telemetry shutdown", slog.Any("error", err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.Audit.Path), 0o755); err != nil {
		return fmt.Errorf("prepare audit directory: %w", err)
	}
	dsn, err := audit.FileDSN(cfg.Audit.Path)
	if err != nil {
		return err
	}
	archive, err := audit.Open(dsn, logger)
	if err != nil {
		return fmt.Errorf("open audit archive: %w", err)
	}
	defer archive.Close()

	metrics := observability.Bridge()
	h := host.New(db,
		host.WithEmitter(events.Multi{events.LogEmitter{Logger: logger}, metrics, archive}),
		host.WithObserver(metrics),
		host.WithLogger(logger),
	)
	node, err := core.NewNode(h, core.AccountsFromConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	if err := node.Bootstrap(ctx, cfg); err != nil {
		return fmt.Errorf("bootstrap bridge: %w", err)
	}

	server, err := rpc.NewServer(node, rpc.ServerConfig{
		BearerTokens:      cfg.RPC.BearerTokens,
		RequestsPerMinute: cfg.RPC.RequestsPerMinute,
		Burst:             cfg.RPC.Burst,
		ReadHeaderTimeout: time.Duration(cfg.RPC.ReadHeaderTimeout) * time.Second,
		Tracing:           cfg.Telemetry.Traces,
		Audit:             archive,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("create rpc server: %w", err)
	}

	logger.Info("bridge node starting", "rpc", cfg.RPCAddress, "router", cfg.RouterAccount, "chain", cfg.ChainID)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return node.Run(gctx) })
	g.Go(func() error { return server.Start(gctx, cfg.RPCAddress) })
	g.Go(func() error { return watchParked(gctx, h, metrics, logger) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("bridge node stopped")
	return nil
}

func telemetryConfig(cfg *config.Config, env string) telemetry.Config {
	return telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    strings.TrimSpace(cfg.Telemetry.Endpoint),
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Attributes: map[string]string{
			"bridge.chain_id": cfg.ChainID,
			"bridge.router":   cfg.RouterAccount,
		},
	}
}

// watchParked publishes the value held for failed transfers until ctx ends.
func watchParked(ctx context.Context, h *host.Host, metrics *observability.BridgeMetrics, logger *slog.Logger) error {
	ticker := time.NewTicker(parkedInterval)
	defer ticker.Stop()
	for {
		amount, err := h.InTransit()
		if err != nil {
			logger.Warn("read parked value", slog.Any("error", err))
		} else {
			metrics.SetParked(amount)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
