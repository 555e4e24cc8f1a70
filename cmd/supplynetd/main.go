package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"supplynet/cmd/internal/passphrase"
	"supplynet/config"
	"supplynet/core"
	"supplynet/core/events"
	"supplynet/core/genesis"
	"supplynet/core/notify"
	"supplynet/core/state"
	"supplynet/crypto"
	"supplynet/gateway/idempotency"
	"supplynet/gateway/middleware"
	"supplynet/gateway/routes"
	"supplynet/observability"
	"supplynet/observability/logging"
	telemetry "supplynet/observability/otel"
	"supplynet/storage"
)

var version = "dev"

const idempotencyRetention = 24 * time.Hour

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./supplynet.toml", "path to the supplynetd configuration")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "supplynetd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	pass := passphrase.NewSource(passphrase.DefaultEnv)
	cfg, err := config.Load(cfgPath, config.WithPassphrase(pass.Get))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config %s: %w", cfgPath, err)
	}

	obs := cfg.Observability
	logger, logCloser := logging.Setup(obs.ServiceName, obs.Environment, logging.Options{
		Level:      obs.LogLevel,
		File:       obs.LogFile,
		MaxSizeMB:  obs.LogMaxSizeMB,
		MaxBackups: obs.LogMaxBackups,
		MaxAgeDays: obs.LogMaxAgeDays,
	})
	defer logCloser.Close()

	telemetryCfg := telemetry.Config{
		ServiceName: obs.ServiceName,
		Environment: obs.Environment,
		Version:     version,
		Endpoint:    obs.OTLPEndpoint,
		Insecure:    obs.OTLPInsecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     obs.MetricsEnabled,
		Traces:      true,
		SampleRatio: obs.TraceSampleRatio,
	}
	if telemetryCfg.Enabled() {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryCfg)
		if err != nil {
			return fmt.Errorf("initialise telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTelemetry(ctx)
		}()
	}

	key, err := cfg.RegistryKey(pass.Get)
	if err != nil {
		return err
	}
	registry := key.PubKey().Address().Account()
	logger.Info("registry operator loaded", slog.String("registry", crypto.FormatAccount(registry)))

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	manager, err := state.Open(filepath.Join(cfg.DataDir, "ledger.db"), nil)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer manager.Close()

	journal, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "journal"))
	if err != nil {
		return fmt.Errorf("open notification journal: %w", err)
	}
	defer journal.Close()
	hub, err := notify.NewHub(journal, logger)
	if err != nil {
		return fmt.Errorf("open notification hub: %w", err)
	}

	var emitter events.Emitter = hub
	opts := []core.Option{
		core.WithPauses(cfg.Pauses),
		core.WithLogger(logger),
	}
	if obs.MetricsEnabled {
		emitter = events.Multi{hub, observability.Events()}
		opts = append(opts, core.WithObserver(observability.Ledger()))
	}
	opts = append(opts, core.WithEmitter(emitter))
	ledger, err := core.NewLedger(manager, registry, opts...)
	if err != nil {
		return err
	}

	if strings.TrimSpace(cfg.GenesisFile) != "" {
		spec, err := genesis.LoadSpec(cfg.GenesisFile)
		if err != nil {
			return err
		}
		applied, err := genesis.Apply(ledger, spec)
		if err != nil {
			return err
		}
		logger.Info("genesis seed processed",
			slog.Bool("applied", applied),
			slog.Int("participants", len(spec.Participants)))
	}

	store, err := idempotency.Open(filepath.Join(cfg.DataDir, "idempotency.db"))
	if err != nil {
		return fmt.Errorf("open idempotency store: %w", err)
	}
	defer store.Close()

	secret := ""
	if cfg.Auth.Enabled {
		if secret, err = cfg.Auth.JWTSecret(); err != nil {
			return err
		}
	} else {
		logger.Warn("bearer token verification disabled; callers are taken from the " + middleware.HeaderCaller + " header")
	}
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:             cfg.Auth.Enabled,
		HMACSecret:          secret,
		Issuer:              cfg.Auth.Issuer,
		Audience:            cfg.Auth.Audience,
		AllowAnonymousReads: cfg.Auth.AllowAnonymousReads,
		ClockSkew:           time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
	}, logger)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = middleware.NewRateLimiter(map[string]middleware.RateLimit{
			routes.RateLimitKey: {RatePerSecond: cfg.RateLimit.RequestsPerSecond, Burst: cfg.RateLimit.Burst},
		}, logger)
	}

	router, err := routes.New(routes.Config{
		Ledger:        ledger,
		Notifications: hub,
		Authenticator: auth,
		RateLimiter:   limiter,
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			MetricsEnabled: obs.MetricsEnabled,
			LogRequests:    strings.EqualFold(obs.LogLevel, "debug"),
		}, logger),
		Idempotency: idempotency.NewGuard(store, routes.IdempotencyCaller, logger),
		CORS:        middleware.CORSConfig{AllowedOrigins: cfg.AllowedOrigins},
		Version:     version,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("configure routes: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: seconds(cfg.ReadHeaderTimeout),
		ReadTimeout:       seconds(cfg.ReadTimeout),
		WriteTimeout:      seconds(cfg.WriteTimeout),
		IdleTimeout:       seconds(cfg.IdleTimeout),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go pruneIdempotency(ctx, store, logger)

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("address", listener.Addr().String()), slog.String("version", version))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownTimeout := seconds(cfg.ShutdownTimeout)
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	logger.Info("supplynetd stopped")
	return nil
}

func pruneIdempotency(ctx context.Context, store *idempotency.Store, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := store.Prune(ctx, now.Add(-idempotencyRetention))
			if err != nil {
				logger.Warn("idempotency prune failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Debug("idempotency keys pruned", slog.Int64("removed", removed))
			}
		}
	}
}

func seconds(v int) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Second
}
