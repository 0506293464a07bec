// Package orchestrator implements the voice session state machine. A single
// consumer goroutine drains a bounded command queue and is the only writer of
// mode state; wake detections, backend callbacks, timer expiries and beep
// requests all funnel into that queue, which serialises every transition and
// keeps audio resource handoffs strictly ordered.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/ipavlek/sonara/internal/audio"
	"github.com/ipavlek/sonara/internal/backend"
	"github.com/ipavlek/sonara/internal/intent"
	"github.com/ipavlek/sonara/internal/observe"
	"github.com/ipavlek/sonara/internal/resilience"
	"github.com/ipavlek/sonara/internal/timers"
	"github.com/ipavlek/sonara/internal/vad"
)

// Conversation is the backend client surface the orchestrator drives. The
// concrete implementation is backend.Client; the mock subpackage provides a
// call-recording double.
type Conversation interface {
	StartRun(ctx context.Context) error
	SendAudio(samples []int16) error
	EndAudio() error
	Connected() bool
}

// Config controls orchestrator behaviour. Zero values fall back to the
// documented defaults.
type Config struct {
	// QueueSize bounds the command queue. Commands enqueued beyond it are
	// dropped with a warning. Default: 16.
	QueueSize int

	// PollInterval is the consumer's idle wake-up period; each wake-up
	// refreshes the liveness timestamp the watchdog checker reads.
	// Default: 100ms.
	PollInterval time.Duration

	// StopTimeout bounds every stop-and-wait on the audio path.
	// Default: 1s.
	StopTimeout time.Duration

	// ErrorResumeDelay is the back-off before returning to wake-word
	// listening after an error cue. Default: 2s.
	ErrorResumeDelay time.Duration

	// VAD configures the per-turn utterance boundary detector.
	VAD vad.Config

	// StateTopic is the discovery topic mode changes are published on.
	// Default: "sonara/state".
	StateTopic string

	// VolumeStep is the percentage applied per volume offline command.
	// Default: 10.
	VolumeStep int
}

// Deps are the orchestrator's collaborators. Arbiter, Capturer, Player,
// Conversation, Resolver, Breaker and Metrics are required; Media, LED,
// Publisher and Settings may be nil on devices without that hardware.
type Deps struct {
	Arbiter      *audio.Arbiter
	Capturer     audio.Capturer
	Player       audio.Player
	Media        audio.MediaPlayer
	LED          audio.LED
	Publisher    audio.Publisher
	Settings     audio.Settings
	Conversation Conversation
	Resolver     *intent.Resolver
	Breaker      *resilience.CircuitBreaker
	Metrics      *observe.Metrics
	Logger       *slog.Logger
}

// Orchestrator owns the session lifecycle from wake phrase to response
// playback. Construct with New, wire Subscribers into the backend client,
// then call Run on its own goroutine.
type Orchestrator struct {
	cfg Config

	arbiter  *audio.Arbiter
	capturer audio.Capturer
	player   audio.Player
	media    audio.MediaPlayer
	led      audio.LED
	pub      audio.Publisher
	settings audio.Settings
	conv     Conversation
	resolver *intent.Resolver
	breaker  *resilience.CircuitBreaker
	metrics  *observe.Metrics
	bank     *timers.Bank
	log      *slog.Logger

	queue chan Command

	// lastAlive is the consumer's liveness timestamp in unix nanos, read
	// by the health checker.
	lastAlive atomic.Int64

	mu                 sync.Mutex
	mode               Mode
	wwdEnabled         bool
	sessionActive      bool
	followUpPending    bool
	localShortcutTaken bool
	ttsPending         bool
	lastLocalTimerID   int
	lastLocalSeconds   uint32
	sessionStart       time.Time
	audioEndAt         time.Time
}

// New creates an Orchestrator. The countdown bank is owned by the
// orchestrator so timer expiries land on its queue as beep commands.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = time.Second
	}
	if cfg.ErrorResumeDelay <= 0 {
		cfg.ErrorResumeDelay = 2 * time.Second
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = "sonara/state"
	}
	if cfg.VolumeStep <= 0 {
		cfg.VolumeStep = 10
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	o := &Orchestrator{
		cfg:        cfg,
		arbiter:    deps.Arbiter,
		capturer:   deps.Capturer,
		player:     deps.Player,
		media:      deps.Media,
		led:        deps.LED,
		pub:        deps.Publisher,
		settings:   deps.Settings,
		conv:       deps.Conversation,
		resolver:   deps.Resolver,
		breaker:    deps.Breaker,
		metrics:    deps.Metrics,
		log:        log,
		queue:      make(chan Command, cfg.QueueSize),
		wwdEnabled: true,
	}
	o.bank = timers.New(func(id int) {
		o.Enqueue(Command{Type: CmdTimerBeep, IntData: id})
	})
	o.lastAlive.Store(time.Now().UnixNano())
	return o
}

// Timers exposes the countdown bank for offline commands and introspection.
func (o *Orchestrator) Timers() *timers.Bank { return o.bank }

// SetVAD swaps the boundary detector thresholds. The new values take effect
// on the next listening turn.
func (o *Orchestrator) SetVAD(cfg vad.Config) {
	o.mu.Lock()
	o.cfg.VAD = cfg
	o.mu.Unlock()
}

// SetResolver swaps the local shortcut resolver. Used for config hot-reload.
func (o *Orchestrator) SetResolver(r *intent.Resolver) {
	o.mu.Lock()
	o.resolver = r
	o.mu.Unlock()
}

// Mode returns the current orchestrator mode.
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// LastAlive returns the last time the consumer loop made progress. The
// readiness checker fails when this goes stale.
func (o *Orchestrator) LastAlive() time.Time {
	return time.Unix(0, o.lastAlive.Load())
}

// Enqueue places cmd on the command queue. When the queue is full the
// command is dropped and counted; producers never block.
func (o *Orchestrator) Enqueue(cmd Command) bool {
	select {
	case o.queue <- cmd:
		o.metrics.QueueDepth.Add(context.Background(), 1)
		return true
	default:
		o.log.Warn("command queue full, dropping", "command", cmd.Type)
		o.metrics.CommandsDropped.Add(context.Background(), 1,
			metric.WithAttributes(observe.Attr("command", cmd.Type.String())))
		return false
	}
}

// NotifyTTSComplete is the player's completion hook. Fixed at construction
// time in the composition root.
func (o *Orchestrator) NotifyTTSComplete() {
	o.Enqueue(Command{Type: CmdTTSComplete})
}

// Subscribers returns the backend callback set. All callbacks run on the
// client's reader goroutine; they only record results and enqueue commands,
// never touch the audio path directly.
func (o *Orchestrator) Subscribers() backend.Subscribers {
	return backend.Subscribers{
		OnRunStart: func(handlerID int) {
			o.log.Debug("run started", "handler_id", handlerID)
		},
		OnTranscript: o.onTranscript,
		OnIntent:     o.onIntent,
		OnTTS:        o.onTTS,
		OnTTSAudio:   o.onTTSAudio,
		OnRunEnd:     func() { o.Enqueue(Command{Type: CmdRunEnd}) },
		OnError:      o.onBackendError,
		OnDisconnect: o.onDisconnect,
	}
}

// Run starts wake-word capture and drains the command queue until ctx is
// cancelled. It must be called exactly once.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.touch()
	o.resumeWakeWord(ctx)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return ctx.Err()
		case cmd := <-o.queue:
			o.metrics.QueueDepth.Add(ctx, -1)
			o.touch()
			o.log.Debug("command", "type", cmd.Type)
			o.handle(ctx, cmd)
		case <-ticker.C:
			o.touch()
		}
	}
}

func (o *Orchestrator) touch() {
	o.lastAlive.Store(time.Now().UnixNano())
}

func (o *Orchestrator) shutdown() {
	if n := o.bank.CancelAll(); n > 0 {
		o.metrics.ActiveTimers.Add(context.Background(), int64(-n))
	}
	if err := o.arbiter.StopAndWait(o.cfg.StopTimeout); err != nil {
		o.log.Warn("audio path did not stop cleanly", "err", err)
	}
}

func (o *Orchestrator) handle(ctx context.Context, cmd Command) {
	switch cmd.Type {
	case CmdWakeDetected:
		o.handleWake(ctx)
	case CmdOfflineCmd:
		o.executeOffline(ctx, OfflineAction(cmd.IntData))
	case CmdResumeWWD:
		o.mu.Lock()
		o.wwdEnabled = true
		active := o.sessionActive
		o.mu.Unlock()
		if !active {
			o.resumeWakeWord(ctx)
		}
	case CmdStopWWD:
		o.stopWakeWord(ctx)
	case CmdRestartWWD:
		o.stopWakeWord(ctx)
		o.mu.Lock()
		o.wwdEnabled = true
		o.mu.Unlock()
		o.resumeWakeWord(ctx)
	case CmdStartFollowupVAD:
		o.mu.Lock()
		active := o.sessionActive
		o.mu.Unlock()
		if !active {
			o.startListeningTurn(ctx)
		}
	case CmdSpeechEnd:
		o.handleSpeechEnd(ctx)
	case CmdSpeak:
		o.setMode(ModeSpeaking)
	case CmdTTSComplete:
		o.handleTTSComplete(ctx)
	case CmdRunEnd:
		o.handleRunEnd(ctx)
	case CmdConfirmBeep:
		o.handleConfirmBeep(ctx)
	case CmdTimerBeep:
		if o.deferWhileSessionActive(cmd) {
			return
		}
		o.metrics.ActiveTimers.Add(ctx, -1)
		o.playBeep(audio.BeepTimer)
		o.Enqueue(Command{Type: CmdResumeWWD})
	case CmdAlarmBeep:
		if o.deferWhileSessionActive(cmd) {
			return
		}
		o.playBeep(audio.BeepAlarm)
		o.Enqueue(Command{Type: CmdResumeWWD})
	case CmdErrorBeep:
		o.errorCue()
	case CmdErrorResume:
		o.endSession(ctx)
	default:
		o.log.Warn("unknown command", "type", int(cmd.Type))
	}
}

// deferWhileSessionActive re-enqueues expiry beeps when a voice session
// holds the audio path, so the beep cannot tear down an in-flight capture.
func (o *Orchestrator) deferWhileSessionActive(cmd Command) bool {
	o.mu.Lock()
	active := o.sessionActive
	o.mu.Unlock()
	if !active {
		return false
	}
	time.AfterFunc(time.Second, func() { o.Enqueue(cmd) })
	return true
}

func (o *Orchestrator) handleWake(ctx context.Context) {
	o.mu.Lock()
	active := o.sessionActive
	o.mu.Unlock()
	if active {
		o.metrics.RecordWakeDetection(ctx, "debounced")
		o.log.Debug("wake ignored, session in flight")
		return
	}
	o.metrics.RecordWakeDetection(ctx, "accepted")
	o.startListeningTurn(ctx)
}

// startListeningTurn opens a backend run, hands the audio path to gated
// capture and arms a fresh boundary detector. All failure paths play the
// error cue and converge back to wake-word listening after the back-off.
func (o *Orchestrator) startListeningTurn(ctx context.Context) {
	o.mu.Lock()
	if o.sessionActive {
		o.mu.Unlock()
		return
	}
	o.sessionActive = true
	o.followUpPending = false
	o.localShortcutTaken = false
	o.ttsPending = false
	o.sessionStart = time.Now()
	o.audioEndAt = time.Time{}
	vadCfg := o.cfg.VAD
	o.mu.Unlock()
	o.metrics.ActiveSession.Add(ctx, 1)

	err := o.breaker.Execute(func() error {
		if !o.conv.Connected() {
			return backend.ErrNotConnected
		}
		return o.conv.StartRun(ctx)
	})
	if err != nil {
		o.log.Warn("run start failed", "err", err)
		o.metrics.RecordBackendError(ctx, "transport")
		o.errorCue()
		return
	}

	det := vad.New(vadCfg)
	var ended atomic.Bool
	frame := func(samples []int16) {
		if ended.Load() {
			return
		}
		// Frames sent before run-start arrives are rejected with
		// ErrNoHandler and silently discarded.
		if err := o.conv.SendAudio(samples); err != nil && !errors.Is(err, backend.ErrNoHandler) {
			o.log.Debug("send audio failed", "err", err)
		}
		det.ProcessFrame(samples)
		if det.ShouldStop() {
			ended.Store(true)
			o.Enqueue(Command{Type: CmdSpeechEnd})
		}
	}

	if err := o.arbiter.Acquire(audio.OwnerCapture, o.capturer.StopAndWait); err != nil {
		if errors.Is(err, audio.ErrStopTimeout) {
			o.metrics.ArbiterTimeouts.Add(ctx, 1)
		}
		o.log.Error("acquire capture failed", "err", err)
		o.errorCue()
		return
	}
	if err := o.capturer.Start(frame); err != nil {
		o.arbiter.Release(audio.OwnerCapture)
		o.log.Error("start capture failed", "err", err)
		o.errorCue()
		return
	}
	o.setMode(ModeListening)
}

func (o *Orchestrator) handleSpeechEnd(ctx context.Context) {
	o.mu.Lock()
	if o.mode != ModeListening {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	if err := o.arbiter.StopAndWait(o.cfg.StopTimeout); err != nil {
		o.metrics.ArbiterTimeouts.Add(ctx, 1)
		o.log.Error("stop capture failed", "err", err)
	}
	if err := o.conv.EndAudio(); err != nil {
		o.log.Warn("end audio failed", "err", err)
	}
	o.mu.Lock()
	o.audioEndAt = time.Now()
	o.mu.Unlock()
	o.setMode(ModeProcessing)
}

func (o *Orchestrator) handleTTSComplete(ctx context.Context) {
	o.arbiter.Release(audio.OwnerPlayback)
	o.finishTurn(ctx)
}

// finishTurn closes the current turn: record session metrics, then either
// open a follow-up listening turn (the response was a question) or hand the
// path back to wake-word capture.
func (o *Orchestrator) finishTurn(ctx context.Context) {
	o.mu.Lock()
	o.ttsPending = false
	follow := o.followUpPending
	o.followUpPending = false
	active := o.sessionActive
	start := o.sessionStart
	o.sessionActive = false
	o.mu.Unlock()

	if active {
		o.metrics.ActiveSession.Add(ctx, -1)
		o.metrics.SessionDuration.Record(ctx, time.Since(start).Seconds())
	}
	if follow {
		o.startListeningTurn(ctx)
		return
	}
	o.resumeWakeWord(ctx)
}

func (o *Orchestrator) handleRunEnd(ctx context.Context) {
	o.mu.Lock()
	endAt := o.audioEndAt
	o.audioEndAt = time.Time{}
	pendingTTS := o.ttsPending
	shortcut := o.localShortcutTaken
	active := o.sessionActive
	mode := o.mode
	o.mu.Unlock()

	if !endAt.IsZero() {
		o.metrics.RunRoundTrip.Record(ctx, time.Since(endAt).Seconds())
	}
	// A run that ends with no speech response and no local shortcut has
	// nothing left to drive the resume, so close the turn here. finishTurn
	// honors a follow-up armed by a text-only question.
	if active && mode == ModeProcessing && !pendingTTS && !shortcut {
		o.finishTurn(ctx)
	}
}

// handleConfirmBeep acknowledges a locally resolved intent and returns to
// wake-word listening without waiting for the backend run to finish.
func (o *Orchestrator) handleConfirmBeep(ctx context.Context) {
	o.mu.Lock()
	listening := o.mode == ModeListening
	o.mu.Unlock()
	if listening {
		// Close the audio stream so the abandoned run can wind down.
		if err := o.conv.EndAudio(); err != nil {
			o.log.Debug("end audio failed", "err", err)
		}
	}
	o.playBeep(audio.BeepConfirm)
	o.endSession(ctx)
}

func (o *Orchestrator) endSession(ctx context.Context) {
	o.mu.Lock()
	active := o.sessionActive
	start := o.sessionStart
	o.sessionActive = false
	o.followUpPending = false
	o.ttsPending = false
	o.mu.Unlock()

	if active {
		o.metrics.ActiveSession.Add(ctx, -1)
		o.metrics.SessionDuration.Record(ctx, time.Since(start).Seconds())
	}
	o.resumeWakeWord(ctx)
}

// resumeWakeWord hands the audio path back to wake-word capture. Idempotent:
// if wake-word capture already owns the path this is a no-op, and when the
// user has disabled the microphone the path is left free.
func (o *Orchestrator) resumeWakeWord(ctx context.Context) {
	o.mu.Lock()
	enabled := o.wwdEnabled
	o.mu.Unlock()
	if !enabled {
		if err := o.arbiter.StopAndWait(o.cfg.StopTimeout); err != nil {
			o.log.Warn("audio path did not stop cleanly", "err", err)
		}
		o.setMode(ModeWakeIdle)
		return
	}

	err := o.arbiter.Acquire(audio.OwnerWakeWord, o.capturer.StopAndWait)
	if errors.Is(err, audio.ErrBusy) {
		o.setMode(ModeWakeIdle)
		return
	}
	if err != nil {
		if errors.Is(err, audio.ErrStopTimeout) {
			o.metrics.ArbiterTimeouts.Add(ctx, 1)
		}
		o.log.Error("acquire wake word failed", "err", err)
		time.AfterFunc(o.cfg.ErrorResumeDelay, func() {
			o.Enqueue(Command{Type: CmdResumeWWD})
		})
		return
	}
	if err := o.capturer.StartWakeMode(func() {
		o.Enqueue(Command{Type: CmdWakeDetected})
	}); err != nil {
		o.arbiter.Release(audio.OwnerWakeWord)
		o.log.Error("start wake mode failed", "err", err)
		return
	}
	o.setMode(ModeWakeIdle)
}

func (o *Orchestrator) stopWakeWord(ctx context.Context) {
	o.mu.Lock()
	o.wwdEnabled = false
	o.mu.Unlock()
	if o.arbiter.Current() != audio.OwnerWakeWord {
		return
	}
	if err := o.arbiter.StopAndWait(o.cfg.StopTimeout); err != nil {
		o.metrics.ArbiterTimeouts.Add(ctx, 1)
		o.log.Error("stop wake word failed", "err", err)
	}
}

// errorCue shows the error state, plays the error tone and schedules the
// delayed return to wake-word listening. Every failure path funnels here so
// the device always converges back to a listening state.
func (o *Orchestrator) errorCue() {
	if o.led != nil {
		o.led.Set(audio.LEDError)
	}
	o.playBeep(audio.BeepError)
	time.AfterFunc(o.cfg.ErrorResumeDelay, func() {
		o.Enqueue(Command{Type: CmdErrorResume})
	})
}

// playBeep claims the output path for one cue and releases it afterwards.
// ErrBusy means playback already owns the path, i.e. response speech is
// rendering; the cue is skipped rather than cutting in, and ownership the
// speech session holds is left untouched.
func (o *Orchestrator) playBeep(kind audio.Beep) {
	err := o.arbiter.Acquire(audio.OwnerPlayback, o.player.StopAndWait)
	if errors.Is(err, audio.ErrBusy) {
		o.log.Debug("beep skipped, speech playback owns the path", "kind", kind)
		return
	}
	if err != nil {
		o.log.Warn("beep skipped, audio path busy", "kind", kind, "err", err)
		return
	}
	if err := o.player.Beep(kind); err != nil {
		o.log.Warn("beep failed", "kind", kind, "err", err)
	}
	o.arbiter.Release(audio.OwnerPlayback)
}

func (o *Orchestrator) executeOffline(ctx context.Context, act OfflineAction) {
	switch act {
	case OfflineStopTimers:
		if n := o.bank.CancelAll(); n > 0 {
			o.metrics.ActiveTimers.Add(ctx, int64(-n))
		}
		o.playBeep(audio.BeepConfirm)
	case OfflineMediaPause:
		if o.media != nil {
			if err := o.media.Pause(); err != nil {
				o.log.Warn("media pause failed", "err", err)
			}
		}
	case OfflineMediaResume:
		o.resumeMedia()
		// Media now owns the path; do not hand it back to wake capture.
		return
	case OfflineMediaStop:
		if o.media != nil {
			if err := o.media.Stop(); err != nil {
				o.log.Warn("media stop failed", "err", err)
			}
		}
		o.arbiter.Release(audio.OwnerMedia)
	case OfflineVolumeUp:
		o.adjustVolume(o.cfg.VolumeStep)
	case OfflineVolumeDown:
		o.adjustVolume(-o.cfg.VolumeStep)
	default:
		o.log.Warn("unknown offline action", "action", int(act))
	}
	o.Enqueue(Command{Type: CmdResumeWWD})
}

func (o *Orchestrator) resumeMedia() {
	if o.media == nil {
		return
	}
	err := o.arbiter.Acquire(audio.OwnerMedia, func(time.Duration) error {
		return o.media.Stop()
	})
	if err != nil && !errors.Is(err, audio.ErrBusy) {
		o.log.Warn("acquire media failed", "err", err)
		return
	}
	if err := o.media.Resume(); err != nil {
		o.log.Warn("media resume failed", "err", err)
		o.arbiter.Release(audio.OwnerMedia)
	}
}

// adjustVolume moves the persisted output volume by delta percent, clamped
// to 0..100.
func (o *Orchestrator) adjustVolume(delta int) {
	if o.settings == nil {
		return
	}
	cur := 50
	if raw, err := o.settings.Load("volume"); err == nil {
		if v, err := strconv.Atoi(raw); err == nil {
			cur = v
		}
	}
	cur = min(max(cur+delta, 0), 100)
	if err := o.settings.Save("volume", strconv.Itoa(cur)); err != nil {
		o.log.Warn("save volume failed", "err", err)
		return
	}
	o.playBeep(audio.BeepConfirm)
}

// setMode updates the externally visible mode, mirrors it on the LED and
// announces it on the discovery topic.
func (o *Orchestrator) setMode(m Mode) {
	o.mu.Lock()
	changed := o.mode != m
	o.mode = m
	o.mu.Unlock()
	if !changed {
		return
	}
	if o.led != nil {
		o.led.Set(ledFor(m))
	}
	if o.pub != nil {
		if err := o.pub.Publish(o.cfg.StateTopic, m.String()); err != nil {
			o.log.Debug("publish state failed", "err", err)
		}
	}
	o.log.Info("mode", "mode", m)
}

func ledFor(m Mode) audio.LEDState {
	switch m {
	case ModeListening:
		return audio.LEDListening
	case ModeProcessing:
		return audio.LEDProcessing
	case ModeSpeaking:
		return audio.LEDSpeaking
	default:
		return audio.LEDIdle
	}
}

// --- backend callbacks (reader goroutine) ---

// onTranscript runs the local shortcut resolver against the recognised text
// and, on a confident match, starts the countdown immediately so the user
// gets feedback without the backend round trip.
func (o *Orchestrator) onTranscript(text string) {
	o.log.Info("transcript", "text", text)

	o.mu.Lock()
	resolver := o.resolver
	o.mu.Unlock()
	cand := resolver.Resolve(text)
	if !cand.Valid {
		return
	}
	o.mu.Lock()
	if !o.sessionActive || o.localShortcutTaken {
		o.mu.Unlock()
		return
	}
	o.localShortcutTaken = true
	o.mu.Unlock()

	id := o.bank.Start(time.Duration(cand.Seconds) * time.Second)
	o.mu.Lock()
	o.lastLocalTimerID = id
	o.lastLocalSeconds = cand.Seconds
	o.mu.Unlock()

	ctx := context.Background()
	o.metrics.LocalShortcuts.Add(ctx, 1)
	o.metrics.ActiveTimers.Add(ctx, 1)
	o.Enqueue(Command{Type: CmdConfirmBeep})
}

// onIntent reconciles the backend's resolved intent with any local shortcut.
// The backend's duration wins when it disagrees with the local guess, but a
// second confirmation is never emitted.
func (o *Orchestrator) onIntent(in backend.Intent) {
	o.log.Debug("intent", "name", in.Name)
	if !strings.Contains(strings.ToLower(in.Name), "timer") {
		return
	}
	secs, ok := intent.DurationFromSlots(in.Slots)
	if !ok {
		return
	}

	o.mu.Lock()
	taken := o.localShortcutTaken
	lastID := o.lastLocalTimerID
	lastSecs := o.lastLocalSeconds
	o.mu.Unlock()

	ctx := context.Background()
	if taken {
		if secs == lastSecs {
			return
		}
		if o.bank.Cancel(lastID) {
			o.metrics.ActiveTimers.Add(ctx, -1)
		}
	}
	id := o.bank.Start(time.Duration(secs) * time.Second)
	o.metrics.ActiveTimers.Add(ctx, 1)
	o.mu.Lock()
	o.lastLocalTimerID = id
	o.lastLocalSeconds = secs
	o.mu.Unlock()
}

// onTTS records the response text and, when speech audio exists, claims the
// output path so the streamed chunks that follow have somewhere to go. A
// response ending in a question mark arms a follow-up turn.
func (o *Orchestrator) onTTS(text, audioURL string) {
	o.mu.Lock()
	if !o.sessionActive || o.localShortcutTaken {
		o.mu.Unlock()
		return
	}
	o.followUpPending = strings.HasSuffix(strings.TrimSpace(text), "?")
	hasAudio := audioURL != ""
	o.ttsPending = hasAudio
	o.mu.Unlock()

	if !hasAudio {
		return
	}
	err := o.arbiter.Acquire(audio.OwnerPlayback, o.player.StopAndWait)
	if err != nil && !errors.Is(err, audio.ErrBusy) {
		o.log.Warn("acquire playback failed", "err", err)
		o.mu.Lock()
		o.ttsPending = false
		o.mu.Unlock()
		return
	}
	o.Enqueue(Command{Type: CmdSpeak})
}

// onTTSAudio forwards speech chunks to the player. Chunks are accepted only
// while a guarded onTTS has claimed the output path; anything arriving after
// the session ended belongs to a dead run and must not play over whatever
// owns the audio path now.
func (o *Orchestrator) onTTSAudio(chunk []byte) {
	o.mu.Lock()
	pending := o.ttsPending
	o.mu.Unlock()
	if !pending {
		o.log.Debug("dropping speech audio from a dead run", "bytes", len(chunk))
		return
	}
	if err := o.player.PlayTTS(chunk); err != nil {
		o.log.Warn("play tts failed", "err", err)
	}
}

func (o *Orchestrator) onBackendError(code int, message string) {
	o.log.Warn("backend error", "code", code, "message", message)
	o.metrics.RecordBackendError(context.Background(), "event")
	o.Enqueue(Command{Type: CmdErrorBeep})
}

func (o *Orchestrator) onDisconnect() {
	o.mu.Lock()
	active := o.sessionActive
	o.mu.Unlock()
	if !active {
		return
	}
	o.metrics.RecordBackendError(context.Background(), "transport")
	o.Enqueue(Command{Type: CmdErrorBeep})
}
