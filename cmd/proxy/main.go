package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelproxy/internal/api"
	"github.com/dunamismax/pixelproxy/internal/config"
	"github.com/dunamismax/pixelproxy/internal/domain"
	"github.com/dunamismax/pixelproxy/internal/pipeline"
	"github.com/dunamismax/pixelproxy/internal/storage"
	"github.com/dunamismax/pixelproxy/internal/store"
	"github.com/dunamismax/pixelproxy/internal/telemetry"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Stdout)
	stop()
	if err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		logger.Error().Err(err).Msg("pixelproxy exited")
		os.Exit(1)
	}
}

// run serves until ctx is cancelled or the listener fails.
func run(ctx context.Context, logOut io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewLogger(telemetry.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format}, logOut)

	flushSentry, err := telemetry.SetupSentry(telemetry.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
	})
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	defer flushSentry(2 * time.Second)

	setupCtx := context.WithoutCancel(ctx)
	shutdownTracing, err := telemetry.SetupTracing(setupCtx, telemetry.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown")
		}
	}()

	activity, err := store.Open(setupCtx, cfg)
	if err != nil {
		return fmt.Errorf("open %s activity store: %w", cfg.Store.Driver, err)
	}
	defer func() {
		if err := activity.Close(); err != nil {
			logger.Error().Err(err).Msg("activity store close")
		}
	}()
	if err := activity.EnsureInitialized(setupCtx); err != nil {
		return fmt.Errorf("initialize activity store: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTP.Addr, err)
	}
	defer ln.Close()

	if err := pipeline.Startup(); err != nil {
		return fmt.Errorf("start image runtime: %w", err)
	}
	defer pipeline.Shutdown()

	dispatcher, err := pipeline.NewDispatcher(pipeline.DispatcherConfig{
		PNGCompression: cfg.Transform.PNGCompression,
		MaxConcurrent:  cfg.Transform.MaxConcurrent,
	})
	if err != nil {
		return fmt.Errorf("build transformer: %w", err)
	}

	fetcher := pipeline.RoutingFetcher{
		HTTP: pipeline.NewHTTPFetcher(pipeline.HTTPFetcherConfig{
			Timeout:   cfg.Fetch.Timeout,
			UserAgent: cfg.Fetch.UserAgent,
		}),
	}
	if cfg.Storage.Enabled {
		objects, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("create object storage client: %w", err)
		}
		fetcher.Objects = pipeline.NewObjectStoreFetcher(objects, cfg.Fetch.Timeout)
	}

	app := api.NewServer(api.Options{
		Logger:                logger,
		Store:                 activity,
		Processor:             pipeline.NewProcessor(fetcher, dispatcher),
		PropagateClientCancel: cfg.Fetch.PropagateClientCancel,
		ActiveTransforms:      dispatcher.Active,
	})

	httpServer := &http.Server{
		Handler:      app.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", ln.Addr().String()).
			Str("store", cfg.Store.Driver).
			Str("codec", dispatcher.Codec()).
			Bool("object_storage", cfg.Storage.Enabled).
			Msg("listening")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if err := activity.SetStatus(setupCtx, domain.LifecycleStatusRunning); err != nil {
		logger.Warn().Err(err).Msg("mark lifecycle running")
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-serveErr:
		runErr = fmt.Errorf("serve http: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := activity.SetStatus(shutdownCtx, domain.LifecycleStatusStopped); err != nil {
		logger.Warn().Err(err).Msg("mark lifecycle stopped")
	}
	return runErr
}
