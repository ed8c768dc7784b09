package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/me/ringflow/internal/config"
	"github.com/me/ringflow/internal/logging"
	"github.com/me/ringflow/internal/scheduler"
	"github.com/me/ringflow/internal/server"
	"github.com/me/ringflow/internal/store"
	"github.com/me/ringflow/internal/tracing"
	"github.com/me/ringflow/internal/upstream"
)

const version = "0.1.0"

func main() {
	cfg := config.DefaultServerConfig()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Database path (default ~/.ringflow/ringflow.db)")
	flag.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Engine file with topology and scheduler settings")
	flag.StringVar(&cfg.UpstreamURL, "upstream-url", os.Getenv("RINGFLOW_UPSTREAM_URL"), "Release authority endpoint (empty releases everything)")
	flag.StringVar(&cfg.ReleaseScript, "release-script", cfg.ReleaseScript, "JavaScript release rule, used when no upstream URL is set")
	flag.StringVar(&cfg.TraceFile, "trace-file", cfg.TraceFile, "Write OpenTelemetry spans to this file")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")

	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}
	if !logging.ValidFormat(cfg.LogFormat) {
		fmt.Fprintf(os.Stderr, "unknown log format %q\n", cfg.LogFormat)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	if cfg.TraceFile != "" {
		if err := tracing.Init("ringflow", version, cfg.TraceFile); err != nil {
			fmt.Fprintf(os.Stderr, "init tracing: %v\n", err)
			os.Exit(1)
		}
		logger.Info("tracing enabled", "file", cfg.TraceFile)
	}

	// Load the ring and scheduler settings.
	engineFile, err := config.Load(cfg.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	ring, err := engineFile.Ring()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build topology: %v\n", err)
		os.Exit(1)
	}
	logger.Info("topology loaded", "nodes", ring.Len(), "policy", engineFile.Scheduler.Policy.String())

	// Resolve database path.
	dbPath := cfg.DBPath
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Join(home, ".ringflow")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", dir, err)
			os.Exit(1)
		}
		dbPath = filepath.Join(dir, "ringflow.db")
	}

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", dbPath)

	// Pick the release authority.
	var auth upstream.Authority = upstream.AllowAll{}
	mode := "allow-all"
	switch {
	case cfg.UpstreamURL != "":
		auth = upstream.NewHTTPAuthority(upstream.DefaultHTTPConfig(cfg.UpstreamURL), logger)
		mode = "http"
	case cfg.ReleaseScript != "":
		src, err := os.ReadFile(cfg.ReleaseScript)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read release script: %v\n", err)
			os.Exit(1)
		}
		sa, err := upstream.NewScriptAuthority(string(src))
		if err != nil {
			fmt.Fprintf(os.Stderr, "compile release script: %v\n", err)
			os.Exit(1)
		}
		auth = sa
		mode = "script"
	}
	logger.Info("release authority ready", "mode", mode)

	sched := scheduler.NewEngine(st, ring, auth, engineFile.Scheduler, logger)

	srv := server.New(cfg, st, sched, ring, logger,
		server.WithUpstreamMode(mode),
		server.WithPolicy(engineFile.Scheduler.Policy),
	)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", "error", err)
	}
	logger.Info("server stopped")
}
