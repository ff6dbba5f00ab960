// Command mockvox is the main entry point for the mockvox interview server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/mockvox/internal/config"
	"github.com/MrWong99/mockvox/internal/health"
	"github.com/MrWong99/mockvox/internal/interview"
	"github.com/MrWong99/mockvox/internal/observe"
	"github.com/MrWong99/mockvox/internal/protocol"
	"github.com/MrWong99/mockvox/internal/server"
	"github.com/MrWong99/mockvox/internal/session"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mockvox: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mockvox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("mockvox starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(telemetry.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Sessions ──────────────────────────────────────────────────────────────
	sessions := session.NewRegistry(
		session.WithRetention(cfg.Interview.Retention),
		session.WithLogger(logger),
	)
	go sessions.Run(ctx, janitorInterval(cfg.Interview.Retention))

	var engineOpts []interview.Option
	if cfg.Interview.FallbackPersona != "" {
		engineOpts = append(engineOpts, interview.WithFallbackPersona(cfg.Interview.FallbackPersona))
	}
	engineOpts = append(engineOpts, interview.WithLogger(logger))

	srv := server.New(server.Config{
		Dispatch: protocol.Config{
			Registry:       sessions,
			Interviewer:    interview.NewEngine(providers.LLM, engineOpts...),
			STT:            providers.STT,
			TTS:            providers.TTS,
			Defaults:       cfg.Interview.SessionDefaults(),
			FrameSize:      cfg.Server.AudioFrameBytes,
			MaxAnswerBytes: cfg.Interview.MaxAnswerBytes,
		},
		WSPath:         cfg.Server.WSPath,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ReadLimit:      cfg.Server.ReadLimitBytes,
		MailboxSize:    cfg.Server.MailboxSize,
		Metrics:        metrics,
		Logger:         logger,
	})

	// ── HTTP ──────────────────────────────────────────────────────────────────
	checks := health.New(health.Providers(cfg.Providers.Configured()))

	mux := http.NewServeMux()
	srv.Register(mux)
	checks.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg)

	serveErr := make(chan error, 1)
	go func() {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		serveErr <- err
	}()

	slog.Info("server ready, press Ctrl+C to shut down", "ws_path", cfg.Server.WSPath)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	checks.SetDraining()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	code := 0
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "err", err)
		code = 1
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("interview connections did not close in time", "err", err)
		code = 1
	}
	slog.Info("goodbye", "sessions_retained", sessions.Len())
	return code
}

// janitorInterval sweeps often enough that finished sessions outlive their
// retention by at most a tenth of it.
func janitorInterval(retention time.Duration) time.Duration {
	return max(retention/10, time.Second)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         mockvox: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fmt.Printf("║  Max turns       : %-19d ║\n", cfg.Interview.MaxTurnsLimit)
	fmt.Printf("║  Retention       : %-19s ║\n", cfg.Interview.Retention)
	fmt.Printf("║  WS path         : %-19s ║\n", truncate(cfg.Server.WSPath))
	fmt.Printf("║  Listen addr     : %-19s ║\n", truncate(cfg.Server.ListenAddr))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, truncate(value))
}

func truncate(s string) string {
	if len(s) > 19 {
		return s[:16] + "…"
	}
	return s
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
