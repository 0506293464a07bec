// Command sonara is the main entry point for the sonara voice session daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ipavlek/sonara/internal/app"
	"github.com/ipavlek/sonara/internal/audio"
	"github.com/ipavlek/sonara/internal/audio/padriver"
	"github.com/ipavlek/sonara/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	statePath := flag.String("state", "sonara-state.json", "path to the persisted settings file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sonara: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sonara: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("sonara starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Audio drivers ─────────────────────────────────────────────────────────
	if err := padriver.Initialize(); err != nil {
		slog.Error("failed to initialise audio runtime", "err", err)
		return 1
	}
	defer func() {
		if err := padriver.Terminate(); err != nil {
			slog.Warn("audio runtime terminate error", "err", err)
		}
	}()

	settings, err := audio.NewFileSettings(*statePath)
	if err != nil {
		slog.Error("failed to open settings store", "err", err, "path", *statePath)
		return 1
	}

	ports := &app.Ports{
		Capturer: padriver.NewCapturer(cfg.Audio.SampleRate),
		NewPlayer: func(onComplete func()) audio.Player {
			return padriver.NewPlayer(cfg.Audio.SampleRate, onComplete)
		},
		Settings: settings,
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, ports)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		diff := config.Diff(old, next)
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		application.Reload(diff, next)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("device ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          sonara — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Backend", redactedURL(cfg.Backend.URL))
	printField("Sample rate", fmt.Sprintf("%d Hz", cfg.Audio.SampleRate))
	printField("VAD silence", fmt.Sprintf("%d ms", cfg.VAD.SilenceMs))
	printField("Keywords", fmt.Sprintf("%d configured", len(cfg.Intent.Keywords)))
	if cfg.Server.ListenAddr != "" {
		printField("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printField(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", name, value)
}

// redactedURL drops the query string so tokens embedded in the backend URL
// never reach stdout.
func redactedURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
