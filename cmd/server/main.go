package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/borglife/wealthd/internal/api"
	"github.com/borglife/wealthd/internal/audit"
	"github.com/borglife/wealthd/internal/config"
	"github.com/borglife/wealthd/internal/gateway"
	"github.com/borglife/wealthd/internal/guard"
	"github.com/borglife/wealthd/internal/keystore"
	"github.com/borglife/wealthd/internal/ledger"
	"github.com/borglife/wealthd/internal/settle"
	"github.com/borglife/wealthd/internal/store"
	"github.com/borglife/wealthd/internal/transfer"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/wealthd.yaml", "Path to YAML config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Audit trail ───────────────────────────────────────────────────────────
	var sink audit.Sink
	if cfg.Audit.Path != "" {
		fileSink, err := audit.NewFileSink(cfg.Audit.Path)
		if err != nil {
			slog.Error("failed to open audit sink", "err", err)
			os.Exit(1)
		}
		defer fileSink.Close()
		sink = fileSink
	}
	auditLog := audit.New(sink, logger)

	// ── Persistent store ──────────────────────────────────────────────────────
	var st store.Store
	if cfg.Store.DSN != "" {
		pg, err := store.ConnectPostgres(ctx, cfg.Store.DSN)
		if err != nil {
			slog.Error("failed to connect store", "err", err)
			os.Exit(1)
		}
		defer pg.Close()
		st = pg
		slog.Info("using postgres store")
	} else {
		mem := store.NewMemory()
		for identifier, address := range cfg.Aliases {
			mem.RegisterAlias(identifier, address)
		}
		st = mem
		slog.Info("using in-memory store", "aliases", len(cfg.Aliases))
	}

	// ── Core components ───────────────────────────────────────────────────────
	wealth := ledger.New(st, auditLog, logger)
	rateGuard := guard.NewRateGuard(auditLog, nil)
	secGuard, err := guard.NewSecurityGuard(cfg.Security.BlockedPatterns, auditLog)
	if err != nil {
		slog.Error("failed to compile security patterns", "err", err)
		os.Exit(1)
	}

	network := settle.NewBreaker(settle.NewClient(
		cfg.Settlement.Endpoint,
		time.Duration(cfg.Settlement.TimeoutMs)*time.Millisecond,
	))

	// Sender credentials: each entry is retrievable by its identifier and by
	// the derived address, matching how the protocol looks them up.
	keys := keystore.NewMemory()
	for identifier, address := range cfg.Keystore {
		keys.Put(keystore.StaticCredential{Addr: address}, identifier, address)
	}
	slog.Info("keystore seeded", "credentials", len(cfg.Keystore))

	settings, err := gateway.BuildSettings(cfg)
	if err != nil {
		slog.Error("failed to build gateway settings", "err", err)
		os.Exit(1)
	}
	gw := gateway.New(ctx, secGuard, rateGuard, wealth, auditLog, settings,
		cfg.Engine.CallWorkers, cfg.Engine.QueueDepth,
		time.Duration(cfg.Engine.CallTimeoutMs)*time.Millisecond, logger)
	slog.Info("gateway started", "organs", len(cfg.Organs), "workers", cfg.Engine.CallWorkers)

	transfers := transfer.NewService(wealth, st, keys, network, auditLog, logger,
		time.Duration(cfg.Transfer.TimeoutMs)*time.Millisecond)

	// Finish anything a previous run left half-settled.
	if n := transfers.Reconcile(ctx); n > 0 {
		slog.Info("reconciled transfers from previous run", "count", n)
	}

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		newSettings, err := gateway.BuildSettings(newCfg)
		if err != nil {
			slog.Warn("hot-reload skipped: settings build failed", "err", err)
			return
		}
		if err := secGuard.SetPatterns(newCfg.Security.BlockedPatterns); err != nil {
			slog.Warn("hot-reload skipped: pattern compile failed", "err", err)
			return
		}
		gw.SwapSettings(newSettings)
		slog.Info("config hot-reloaded", "organs", len(newCfg.Organs))
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(gw, transfers, wealth, auditLog, rateGuard, secGuard, network, loader)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop worker pool
	gw.Shutdown()
	slog.Info("goodbye")
}
