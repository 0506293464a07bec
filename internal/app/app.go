// Package app wires all sonara subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the pipeline until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithConversation,
// WithCapturer, etc.). When an option is not provided, New creates real
// implementations from the config and the Ports struct.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/ipavlek/sonara/internal/audio"
	"github.com/ipavlek/sonara/internal/backend"
	"github.com/ipavlek/sonara/internal/config"
	"github.com/ipavlek/sonara/internal/health"
	"github.com/ipavlek/sonara/internal/intent"
	"github.com/ipavlek/sonara/internal/observe"
	"github.com/ipavlek/sonara/internal/orchestrator"
	"github.com/ipavlek/sonara/internal/resilience"
	"github.com/ipavlek/sonara/internal/vad"
)

// Ports holds the device collaborator implementations main.go constructs
// from the hardware it finds. Nil slots are features the device lacks; the
// pipeline degrades gracefully without them.
type Ports struct {
	// Capturer is the microphone driver. Required.
	Capturer audio.Capturer

	// NewPlayer builds the output driver with its playback completion hook.
	// The hook is fixed for the player's lifetime; App binds it to the
	// session pipeline. Required.
	NewPlayer func(onComplete func()) audio.Player

	// Media is the local media playback collaborator. May be nil.
	Media audio.MediaPlayer

	// LED is the status LED. May be nil.
	LED audio.LED

	// Publisher is the device-discovery publisher. May be nil.
	Publisher audio.Publisher

	// Settings is the persisted settings store. May be nil.
	Settings audio.Settings
}

// App owns all subsystem lifetimes and runs the voice session pipeline.
type App struct {
	cfg   *config.Config
	ports *Ports

	// Subsystems, initialised in New, torn down in Shutdown.
	client  *backend.Client
	recon   *backend.Reconnector
	breaker *resilience.CircuitBreaker
	orch    *orchestrator.Orchestrator
	conv    orchestrator.Conversation
	metrics *observe.Metrics
	httpSrv *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithConversation injects a conversation backend instead of the
// websocket client. The reconnector is not started when this is set.
func WithConversation(c orchestrator.Conversation) Option {
	return func(a *App) { a.conv = c }
}

// WithMetrics injects a metrics set instead of initialising the global
// provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// conversationHandle adapts the websocket client to the pipeline's
// conversation port. The client is bound after construction because its
// subscriber set comes from the pipeline it serves.
type conversationHandle struct {
	client *backend.Client
}

func (h *conversationHandle) StartRun(ctx context.Context) error { return h.client.StartRun(ctx) }
func (h *conversationHandle) SendAudio(samples []int16) error    { return h.client.SendAudio(samples) }
func (h *conversationHandle) EndAudio() error                    { return h.client.EndAudio() }
func (h *conversationHandle) Connected() bool                    { return h.client.Connected() }

var _ orchestrator.Conversation = (*conversationHandle)(nil)

// New creates an App by wiring all subsystems together. The ports struct
// comes from main.go with the drivers for the hardware present on this
// device. Use Option functions to inject test doubles.
func New(ctx context.Context, cfg *config.Config, ports *Ports, opts ...Option) (*App, error) {
	a := &App{
		cfg:   cfg,
		ports: ports,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Metrics ───────────────────────────────────────────────────────
	if err := a.initMetrics(ctx); err != nil {
		return nil, fmt.Errorf("app: init metrics: %w", err)
	}

	// ── 2. Circuit breaker ───────────────────────────────────────────────
	a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "backend",
		MaxFailures:  cfg.Backend.Breaker.MaxFailures,
		ResetTimeout: time.Duration(cfg.Backend.Breaker.ResetTimeoutMs) * time.Millisecond,
		HalfOpenMax:  cfg.Backend.Breaker.HalfOpenMax,
	})

	// ── 3. Session pipeline ──────────────────────────────────────────────
	a.initPipeline()

	// ── 4. Backend client + reconnector ──────────────────────────────────
	a.initBackend()

	// ── 5. Health + metrics endpoint ─────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// initMetrics installs the Prometheus-exporting meter provider unless a
// metrics set was injected.
func (a *App) initMetrics(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(sctx)
	})

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// initPipeline builds the arbiter, resolver, output driver and the session
// orchestrator. The conversation port stays a late-bound handle until
// initBackend fills it in.
func (a *App) initPipeline() {
	cfg := a.cfg
	arbiter := audio.NewArbiter(
		time.Duration(cfg.Audio.StopTimeoutMs)*time.Millisecond,
		a.ports.Media,
	)

	if a.conv == nil {
		a.conv = &conversationHandle{}
	}

	player := a.ports.NewPlayer(func() { a.orch.NotifyTTSComplete() })

	a.orch = orchestrator.New(
		orchestrator.Config{
			QueueSize:        cfg.Pipeline.QueueSize,
			PollInterval:     time.Duration(cfg.Pipeline.PollIntervalMs) * time.Millisecond,
			StopTimeout:      time.Duration(cfg.Audio.StopTimeoutMs) * time.Millisecond,
			ErrorResumeDelay: time.Duration(cfg.Pipeline.ErrorResumeDelayMs) * time.Millisecond,
			VAD:              vadConfig(cfg),
			StateTopic:       cfg.Audio.StateTopic,
			VolumeStep:       cfg.Audio.VolumeStep,
		},
		orchestrator.Deps{
			Arbiter:      arbiter,
			Capturer:     a.ports.Capturer,
			Player:       player,
			Media:        a.ports.Media,
			LED:          a.ports.LED,
			Publisher:    a.ports.Publisher,
			Settings:     a.ports.Settings,
			Conversation: a.conv,
			Resolver:     newResolver(cfg.Intent),
			Breaker:      a.breaker,
			Metrics:      a.metrics,
		},
	)
}

// initBackend creates the websocket client with the pipeline's subscriber
// set and the reconnector that keeps it dialled. Skipped entirely when a
// conversation double was injected.
func (a *App) initBackend() {
	handle, ok := a.conv.(*conversationHandle)
	if !ok {
		return
	}

	subs := a.orch.Subscribers()
	onDisconnect := subs.OnDisconnect
	subs.OnDisconnect = func() {
		if onDisconnect != nil {
			onDisconnect()
		}
		a.recon.NotifyDisconnect()
	}

	a.client = backend.New(backend.Config{
		URL:         a.cfg.Backend.URL,
		Token:       a.cfg.Backend.Token,
		SendTimeout: time.Duration(a.cfg.Backend.SendTimeoutMs) * time.Millisecond,
	}, subs)
	handle.client = a.client

	a.recon = backend.NewReconnector(backend.ReconnectorConfig{
		Client:     a.client,
		Backoff:    time.Duration(a.cfg.Backend.Reconnect.InitialDelayMs) * time.Millisecond,
		MaxBackoff: time.Duration(a.cfg.Backend.Reconnect.MaxDelayMs) * time.Millisecond,
		MaxRetries: a.cfg.Backend.Reconnect.MaxRetries,
		OnReconnect: func() {
			slog.Info("backend reconnected")
		},
	})
	a.closers = append(a.closers, a.client.Close)
}

// initHTTP builds the health/metrics server.
func (a *App) initHTTP() {
	checkers := []health.Checker{
		health.PipelineChecker(a.orch.LastAlive, 5*time.Second),
	}
	if a.client != nil {
		checkers = append(checkers, health.BackendChecker(a.client.Connected))
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Orchestrator exposes the session pipeline, mainly for command injection
// from debug tooling and tests.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// Reload applies a config diff produced by the file watcher. Only the
// hot-reloadable sections take effect; backend, audio and pipeline changes
// need a restart.
func (a *App) Reload(diff config.ConfigDiff, cfg *config.Config) {
	if diff.VADChanged {
		a.orch.SetVAD(vadConfig(cfg))
		slog.Info("applied new utterance detector thresholds")
	}
	if diff.IntentChanged {
		a.orch.SetResolver(newResolver(cfg.Intent))
		slog.Info("applied new shortcut resolver settings")
	}
}

// Run starts the pipeline, the reconnector and the health endpoint, and
// blocks until ctx is cancelled or a subsystem fails fatally.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// First dial. Failure is not fatal: the reconnector takes over.
	if a.client != nil {
		if err := a.client.Connect(ctx); err != nil {
			slog.Warn("initial backend connect failed, retrying in background", "err", err)
			a.recon.NotifyDisconnect()
		}
	}

	g.Go(func() error {
		return a.orch.Run(ctx)
	})

	if a.recon != nil {
		g.Go(func() error {
			a.recon.Monitor(ctx)
			return nil
		})
	}

	if a.httpSrv.Addr != "" {
		g.Go(func() error {
			slog.Info("health endpoint listening", "addr", a.httpSrv.Addr)
			if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("app: health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.httpSrv.Shutdown(sctx)
		})
	}

	slog.Info("sonara running")
	return g.Wait()
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.recon != nil {
			a.recon.Stop()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// vadConfig converts the config section to detector thresholds.
func vadConfig(cfg *config.Config) vad.Config {
	return vad.Config{
		SampleRate:          cfg.Audio.SampleRate,
		SpeechThreshold:     cfg.VAD.SpeechThreshold,
		MinSpeechDurationMs: cfg.VAD.MinSpeechMs,
		SilenceDurationMs:   cfg.VAD.SilenceMs,
		MaxRecordingMs:      cfg.VAD.MaxRecordingMs,
	}
}

// newResolver builds the local shortcut resolver from its config section.
func newResolver(cfg config.IntentConfig) *intent.Resolver {
	var opts []intent.Option
	if len(cfg.Keywords) > 0 {
		opts = append(opts, intent.WithKeywords(cfg.Keywords))
	}
	if cfg.MaxDistance > 0 {
		opts = append(opts, intent.WithMaxDistance(cfg.MaxDistance))
	}
	return intent.NewResolver(opts...)
}
