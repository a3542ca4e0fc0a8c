package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/matrixise/walletd/internal/api"
	"github.com/matrixise/walletd/internal/balance"
	"github.com/matrixise/walletd/internal/blockchain"
	"github.com/matrixise/walletd/internal/bridge"
	"github.com/matrixise/walletd/internal/config"
	"github.com/matrixise/walletd/internal/health"
	"github.com/matrixise/walletd/internal/logger"
	"github.com/matrixise/walletd/internal/metrics"
	"github.com/matrixise/walletd/internal/notify"
	"github.com/matrixise/walletd/internal/price"
	"github.com/matrixise/walletd/internal/scheduler"
	"github.com/matrixise/walletd/internal/storage"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and wallet session server",
	Long: `Serve the chain registry API, health and metrics endpoints, and the WebSocket
endpoint that browser wallets connect to. DATABASE_URL enables the PostgreSQL audit trail.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Setup(logLevel)

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("Signal received, graceful shutdown", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg, databaseURL, err := config.LoadWithDefaults(cfgFile)
	if err != nil {
		slog.Error("Configuration error", "error", err)
		return err
	}

	// The flag wins over the config file
	if cfg.LogLevel != "" && !cmd.Flags().Changed("log-level") {
		logger.Setup(cfg.LogLevel)
	}

	reg, err := cfg.Registry()
	if err != nil {
		slog.Error("Chain registry invalid", "error", err)
		return err
	}
	endpoints, err := cfg.Endpoints(reg)
	if err != nil {
		slog.Error("RPC endpoints invalid", "error", err)
		return err
	}

	slog.Info("Configuration loaded",
		"config_path", cfgFile,
		"chains", len(reg.ChainIDs()),
		"warm_schedule", scheduler.DescribeSchedule(cfg.Price.WarmSchedule, cfg.GetTimezone()),
		"audit_store", databaseURL != "",
	)

	m := metrics.New()

	pool, err := blockchain.NewPool(endpoints, cfg.RPC.Cooldown)
	if err != nil {
		slog.Error("Failed to connect to RPC endpoints", "error", err)
		return err
	}
	defer pool.Close()
	slog.Info("RPC pools established", "chains", len(endpoints))

	fetcher := balance.NewFetcher(reg, pool,
		balance.WithConcurrency(cfg.Balance.Concurrency),
		balance.WithQueryTimeout(cfg.Balance.QueryTimeout),
		balance.WithLogger(slog.Default()),
		balance.WithMetrics(m),
	)
	oracleOpts := cfg.OracleOptions()
	oracleOpts.Logger = slog.Default()
	oracleOpts.Metrics = m
	oracle := price.NewOracle(price.NewBinanceSource(cfg.Price.BaseURL, cfg.Price.Timeout), oracleOpts)
	aggregator := balance.NewAggregator(fetcher, oracle, nil, m)

	// Audit trail: always slog, optionally PostgreSQL
	sinks := []notify.Sink{notify.LogSink{Logger: slog.Default()}}
	var healthOpts []health.Option
	if databaseURL != "" {
		store, err := storage.NewStore(ctx, databaseURL)
		if err != nil {
			slog.Error("Failed to connect to PostgreSQL", "error", err)
			return err
		}
		defer store.Close()
		slog.Info("PostgreSQL audit store connected")
		sinks = append(sinks, store)
		healthOpts = append(healthOpts, health.WithStore(store))
	} else {
		slog.Warn("DATABASE_URL not set, audit events are only logged")
	}

	notifyOpts := cfg.NotifyOptions()
	notifyOpts.Logger = slog.Default()
	notifyOpts.Metrics = m
	notifier := notify.NewAsync(sinks, notifyOpts)
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer flushCancel()
		if err := notifier.Close(flushCtx); err != nil {
			slog.Warn("Audit events not flushed", "error", err)
		}
	}()

	var sched *scheduler.Scheduler
	if cfg.Price.WarmSchedule != "" {
		symbols := cfg.WarmSymbols(reg)
		sched, err = scheduler.NewScheduler(ctx, scheduler.Config{
			Name:           "price-warmup",
			Schedule:       cfg.Price.WarmSchedule,
			Timezone:       cfg.GetTimezone(),
			RunImmediately: cfg.ShouldWarmOnStart(),
			Timeout:        time.Minute,
			Logger:         slog.Default(),
		}, func(jobCtx context.Context) error {
			_, err := oracle.Warm(jobCtx, symbols)
			return err
		})
		if err != nil {
			slog.Error("Failed to create scheduler", "error", err)
			return fmt.Errorf("scheduler creation failed: %w", err)
		}
		defer sched.Stop()
		healthOpts = append(healthOpts, health.WithWarmup(sched))
	}

	checker := health.NewChecker(pool, healthOpts...)

	server := api.NewServer(api.Options{
		Registry: reg,
		Health:   checker.Handler(),
		Metrics:  m,
		Bridge: bridge.Deps{
			Registry:   reg,
			Aggregator: aggregator,
			Allowances: pool,
			Notifier:   notifier,
			Metrics:    m,
			Logger:     slog.Default(),
			Session:    cfg.SessionSettings(),
			Approval:   cfg.ApprovalSettings(),
			Socket:     cfg.SocketSettings(),
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         slog.Default(),
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	}()

	// Ensure HTTP server and live sessions shut down on exit
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		if err := server.Close(shutdownCtx); err != nil {
			slog.Error("Wallet sessions did not close in time", "error", err)
		}
	}()

	if sched != nil {
		if err := sched.Start(); err != nil {
			slog.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("scheduler start failed: %w", err)
		}
	}

	<-ctx.Done()
	select {
	case err := <-serveErr:
		slog.Error("HTTP server error", "error", err)
		return err
	default:
	}
	slog.Info("Shutdown requested, stopping server")
	return nil
}
