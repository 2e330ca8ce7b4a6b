// Command voxdispatch is the main entry point for the voxdispatch voice
// dispatch client. It captures microphone audio, streams it to a realtime
// speech backend over a websocket, and plays the backend's spoken replies
// while serving health and metrics endpoints for operators.
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
	"golang.org/x/sync/errgroup"

	"github.com/fieldops/voxdispatch/internal/config"
	"github.com/fieldops/voxdispatch/internal/dispatch"
	"github.com/fieldops/voxdispatch/internal/health"
	"github.com/fieldops/voxdispatch/internal/observe"
	"github.com/fieldops/voxdispatch/pkg/audio/capture"
	"github.com/fieldops/voxdispatch/pkg/audio/playback"
	"github.com/fieldops/voxdispatch/pkg/provider/realtime"
	"github.com/fieldops/voxdispatch/pkg/provider/realtime/openai"
)

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
			fmt.Fprintf(os.Stderr, "voxdispatch: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxdispatch: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxdispatch starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"provider", cfg.Provider.Name,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxdispatch",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()

	// ── Backend provider ──────────────────────────────────────────────────────
	provider, err := buildProvider(cfg.Provider)
	if err != nil {
		slog.Error("failed to build provider", "err", err)
		return 1
	}
	slog.Info("provider created", "name", cfg.Provider.Name, "model", cfg.Provider.Model)

	// ── Dispatch controller ───────────────────────────────────────────────────
	ctrl, err := dispatch.NewController(dispatch.Config{
		Provider: provider,
		Session: realtime.SessionConfig{
			Voice:        cfg.Provider.Voice,
			Instructions: cfg.Provider.Instructions,
		},
		NewSource: func() capture.Source {
			return capture.NewMic(cfg.Audio.SampleRate, cfg.Audio.FrameSamples)
		},
		NewDevice:  func() playback.Device { return playback.NewOto() },
		SampleRate: cfg.Audio.SampleRate,
		Metrics:    metrics,
		OnNotice: func(msg string) {
			slog.Warn("session notice", "msg", msg)
		},
		OnStateChange: func(st dispatch.State) {
			slog.Info("session state changed", "state", st)
		},
		OnTranscript: func() {},
	})
	if err != nil {
		slog.Error("failed to create controller", "err", err)
		return 1
	}
	defer ctrl.Close()

	// ── Admin HTTP server ─────────────────────────────────────────────────────
	server := newAdminServer(cfg.Server.ListenAddr, ctrl, metrics)

	printStartupSummary(cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("admin server listening", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := ctrl.StartSession(gctx); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		<-gctx.Done()
		return nil
	})

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	ctrl.EndSession()
	for _, line := range ctrl.Transcript() {
		slog.Info("transcript", "line", line)
	}

	slog.Info("goodbye")
	return 0
}

// buildProvider instantiates the realtime backend provider named in cfg.
func buildProvider(cfg config.ProviderConfig) (realtime.Provider, error) {
	switch cfg.Name {
	case "openai-realtime", "":
		var opts []openai.Option
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(cfg.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (valid: %v)", cfg.Name, config.ValidProviderNames)
	}
}

// newAdminServer builds the HTTP server exposing health, readiness and
// metrics endpoints. All routes run through the request-duration middleware.
func newAdminServer(addr string, ctrl *dispatch.Controller, metrics *observe.Metrics) *http.Server {
	checker := health.New(
		health.Checker{
			Name: "session",
			Check: func(context.Context) error {
				if st := ctrl.ConnectionState(); st == dispatch.StateError {
					return fmt.Errorf("session in state %s", st)
				}
				return nil
			},
		},
	)

	mux := http.NewServeMux()
	checker.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       voxdispatch — startup summary   ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Provider", cfg.Provider.Name)
	printField("Model", cfg.Provider.Model)
	printField("Voice", cfg.Provider.Voice)
	printField("Sample rate", fmt.Sprintf("%d Hz", cfg.Audio.SampleRate))
	printField("Frame size", fmt.Sprintf("%d samples", cfg.Audio.FrameSamples))
	printField("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printField(name, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", name, value)
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
