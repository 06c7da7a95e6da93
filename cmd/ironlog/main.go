package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/ironlog/internal/catalog"
	"github.com/claude/ironlog/internal/config"
	"github.com/claude/ironlog/internal/ingest/alpha"
	ironmcp "github.com/claude/ironlog/internal/mcp"
	"github.com/claude/ironlog/internal/metrics"
	"github.com/claude/ironlog/internal/server"
	"github.com/claude/ironlog/internal/session"
	"github.com/claude/ironlog/internal/storage"
	"github.com/claude/ironlog/internal/units"
	"gopkg.in/natefinch/lumberjack.v2"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)
	log.Info("IronLog starting", "version", Version)

	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, cfg.Server.MigrationsPath); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	ctx := context.Background()
	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	custom, err := catalog.OpenCustomStore(cfg.Catalog.CustomDBPath)
	if err != nil {
		log.Error("failed to open custom exercise store", "path", cfg.Catalog.CustomDBPath, "error", err)
		os.Exit(1)
	}
	defer custom.Close()
	cat := catalog.New(db, custom, cfg.Catalog.CacheSizeMB<<20, cfg.Catalog.CacheTTLSeconds, log)

	reg := metrics.SetupPrometheus(metrics.PoolCollector(db.Pool, cfg.Database.Name))
	m := metrics.NewManager(cfg.Metrics.Namespace, cfg.Metrics.Subsystem, reg)
	m.TrackCache("catalog", cat.CacheStats)

	sessions := session.NewRegistry(db, log, session.WithSaveObserver(m.ObserveSave))
	m.TrackActiveSessions(sessions.ActiveCount)

	alphaProvider := alpha.NewProvider(db, cat, log,
		alpha.WithLocation(time.Local),
		alpha.WithInsertObserver(func(n int) { m.CounterImportedWorkouts.Add(float64(n)) }),
	)

	// Default units were validated by config.Load.
	defaultUnits, _ := units.Parse(cfg.Server.DefaultUnits)

	opts := []server.Option{
		server.WithAPIKey(cfg.Auth.APIKey),
		server.WithUnits(defaultUnits),
		server.WithMetrics(m, reg),
		server.WithMCP(ironmcp.New(db, Version, log)),
	}

	var listener net.Listener
	if cfg.Tailscale.Enabled {
		tsServer := &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		opts = append(opts, server.WithTailscale(lc))

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port))
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	srv := server.New(db, sessions, cat, alphaProvider, log, opts...)
	httpSrv := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	if n := sessions.ActiveCount(); n > 0 {
		log.Warn("discarding unsaved sessions", "count", n)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}

// newLogger writes text logs to stdout and, when configured, to a
// size-rotated file.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var w io.Writer = os.Stdout
	if cfg.File != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}
