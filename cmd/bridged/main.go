package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"pricebridge/config"
	"pricebridge/core"
	"pricebridge/native/oracleclient"
	"pricebridge/observability/logging"
	telemetry "pricebridge/observability/otel"
	"pricebridge/rpc"
	"pricebridge/storage"
)

const (
	serviceName  = "bridged"
	rpcTokenEnv  = "BRIDGE_RPC_TOKEN"
	shutdownWait = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("bridged: %v", err)
	}
}

func run() error {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(serviceName, cfg.Log.Env, &logging.Rotation{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	network, err := cfg.Network()
	if err != nil {
		return err
	}
	variant, err := oracleclient.ParseVariant(cfg.Variant)
	if err != nil {
		return err
	}
	oracleAddr, haveOracle, err := cfg.OracleAddress()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if endpoint := strings.TrimSpace(cfg.Telemetry.Endpoint); endpoint != "" {
		headers := telemetry.ParseHeaders(cfg.Telemetry.Headers)
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: serviceName,
			Environment: cfg.Log.Env,
			Endpoint:    endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     headers,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
			Ratio:       cfg.Telemetry.Ratio,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
			defer cancel()
			_ = shutdownTelemetry(shutdownCtx)
		}()
		logger.Info("telemetry enabled", slog.String("endpoint", endpoint), logging.MaskHeaders(headers))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ledger, err := core.New(db, network,
		core.WithLogger(logger),
		core.WithTracer(otel.Tracer("pricebridge/core")))
	if err != nil {
		return err
	}

	operator := rpc.OperatorAddress(network)
	oracle := &oracleAddr
	if !haveOracle {
		oracle = nil
	}
	deployed, err := bootstrap(ctx, ledger, variant, oracle, operator, logger)
	if err != nil {
		return err
	}
	logger.Info("bridge component ready",
		slog.String("network", network.Name),
		slog.String("component", deployed.client.Address().String()),
		slog.String("variant", deployed.client.Variant().String()),
		slog.String("oracle", deployed.client.Oracle().String()),
		slog.Bool("created", deployed.created),
		slog.Uint64("height", ledger.Height()))

	server := rpc.NewServer(ledger, deployed.client, rpc.ServerConfig{
		RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
		Burst:             cfg.RateLimit.Burst,
		TrustedProxies:    cfg.RateLimit.TrustedProxies,
		AuthToken:         strings.TrimSpace(os.Getenv(rpcTokenEnv)),
		Operator:          operator,
		Publisher:         deployed.publisher,
		Logger:            logger,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(cfg.RPCAddress)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	select {
	case err := <-serveErr:
		return err
	case <-shutdownCtx.Done():
		return nil
	}
}
