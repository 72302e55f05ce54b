// Command gomfa-server serves the goMFA HTTP API.
//
// Configuration comes from the environment and an optional .env file. With
// DEV_MODE=true the server runs Redis in-process, keeps accounts in memory
// and seeds two demo accounts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/internal/config"
	"github.com/MrEthical07/goMFA/internal/httpapi"
	"github.com/MrEthical07/goMFA/internal/logging"
	promexport "github.com/MrEthical07/goMFA/metrics/export/prometheus"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file; environment variables win")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	be, err := openBackends(ctx, cfg, engineCfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	builder := goMFA.New().
		WithConfig(engineCfg).
		WithRedis(be.redis).
		WithStore(be.store).
		WithMailer(be.mailer)
	if engineCfg.Audit.Enabled {
		builder = builder.WithAuditSink(logging.NewAuditSink(logger))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	exporter := promexport.NewPrometheusExporter(engine)
	exporter.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(engine, logger, httpapi.Options{
			AllowedOrigins: cfg.AllowedOrigins(),
			RequestTimeout: cfg.RequestTimeout,
			Metrics:        exporter.Handler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("environment", cfg.Env),
			zap.Bool("dev_mode", cfg.DevMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
