package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cwstate/internal/config"
	"cwstate/internal/fetcher"
	"cwstate/internal/lcd"
	"cwstate/internal/metrics"
	"cwstate/internal/registry"
	"cwstate/internal/resolver"
	"cwstate/internal/storage"
	"cwstate/internal/storage/postgres"
	"cwstate/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

func runWatch(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	cfg.Address = args[0]
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := registry.ValidateAddress(cfg.Address); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prefix, _ := registry.Prefix(cfg.Address)
	promRegistry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(promRegistry, metrics.Labels{Chain: prefix, Contract: cfg.Address})
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	sinks := storage.Multi{storage.NewTextSink(cmd.OutOrStdout())}
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store)
	}

	client := lcd.NewClient(&http.Client{})
	res := resolver.New(resolver.Config{ProbeTimeout: cfg.ProbeTimeout}, registry.Default(), client, m, logger)
	f := fetcher.New(fetcher.Config{PageLimit: cfg.PageLimit, PageTimeout: cfg.PageTimeout}, client, m, logger)

	w := watcher.New(watcher.Config{
		Address:          cfg.Address,
		Override:         cfg.LCD,
		PollInterval:     cfg.PollInterval,
		FailureThreshold: cfg.FailureThreshold,
		MaxRetries:       cfg.MaxRetries,
		RetryBackoff:     cfg.RetryBackoff,
	}, res, f, sinks, m, logger)

	logger.Info("cwstate start",
		zap.String("contract", cfg.Address),
		zap.String("lcd_override", cfg.LCD),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("failure_threshold", cfg.FailureThreshold),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	g.Go(func() error {
		defer cancelRun()
		return w.Run(runCtx)
	})

	if cfg.MetricsAddr != "" {
		server := metrics.NewServer(cfg.MetricsAddr, promRegistry)
		errCh := server.Start()
		g.Go(func() error {
			select {
			case err := <-errCh:
				return err
			case <-runCtx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("watch failed", zap.Error(err))
		return &loggedError{err: err}
	}
	return nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
