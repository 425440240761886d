package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"wallet-core/internal/config"
	"wallet-core/internal/httpapi"
	"wallet-core/internal/ledger"
	"wallet-core/internal/metrics"
	"wallet-core/internal/notify"
	"wallet-core/internal/store"
	"wallet-core/internal/store/postgres"
	"wallet-core/internal/store/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wallet HTTP API",
	RunE:  runServe,
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// openStore connects the configured backend. Postgres pool sizing follows
// CPU count unless overridden; sqlite migrates on open.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Backend {
	case "postgres":
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse dsn: %w", err)
		}
		maxConns := cfg.MaxConns
		if maxConns <= 0 {
			maxConns = clamp(runtime.GOMAXPROCS(0)*4, 4, 50)
		}
		pc.MaxConns = int32(maxConns)
		pc.MinConns = 1
		pc.HealthCheckPeriod = 10 * time.Second
		pc.MaxConnLifetime = 30 * time.Minute
		pc.MaxConnIdleTime = 5 * time.Minute

		pool, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		if cfg.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		logger.Info("postgres store ready", "max_conns", maxConns, "migrated", cfg.Migrate)
		return postgres.New(pool), nil
	case "sqlite":
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("sqlite store ready", "path", cfg.SQLitePath)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	start := time.Now()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	startCtx, startCancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer startCancel()

	st, err := openStore(startCtx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	mc := metrics.NewCollector()

	var sink notify.Sink = notify.LogSink{Logger: logger}
	if cfg.Notify.WebhookURL != "" {
		sink = notify.NewWebhookSink(cfg.Notify.WebhookURL)
	}
	dispatcher := notify.NewDispatcher(sink, cfg.Notify.Workers, cfg.Notify.QueueSize, logger, mc.Dispatch)

	svc := ledger.New(st, dispatcher, mc, logger)
	h := httpapi.NewHandlers(svc)

	rcfg := httpapi.RouterConfig{MaxInflight: cfg.Server.MaxInflight}
	if cfg.Server.Metrics {
		rcfg.Metrics = mc.Handler()
	}
	if cfg.Auth.AdminKeyHash != "" && cfg.Auth.AdminKeyHash != "insecure" {
		rcfg.Admin = httpapi.NewKeyPolicy(cfg.Auth.AdminKeyHash)
	} else {
		logger.Warn("admin routes are unauthenticated, set WALLET_ADMIN_KEY_HASH")
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: httpapi.Router(h, rcfg),

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", cfg.Server.Addr,
			"backend", cfg.Store.Backend,
			"startup", time.Since(start).Truncate(time.Millisecond).String(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher shutdown", "err", err)
	}
	logger.Info("stopped")
	return nil
}
