package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ipavlek/sonara/internal/audio"
	audiomock "github.com/ipavlek/sonara/internal/audio/mock"
	"github.com/ipavlek/sonara/internal/backend"
	backendmock "github.com/ipavlek/sonara/internal/backend/mock"
	"github.com/ipavlek/sonara/internal/intent"
	"github.com/ipavlek/sonara/internal/observe"
	"github.com/ipavlek/sonara/internal/orchestrator"
	"github.com/ipavlek/sonara/internal/resilience"
	"github.com/ipavlek/sonara/internal/vad"
)

var _ orchestrator.Conversation = (*backendmock.Conversation)(nil)

// harness wires an orchestrator to call-recording doubles with timings
// shrunk for tests. Run is started on its own goroutine and stopped via
// test cleanup.
type harness struct {
	orch     *orchestrator.Orchestrator
	arbiter  *audio.Arbiter
	capturer *audiomock.Capturer
	player   *audiomock.Player
	media    *audiomock.MediaPlayer
	led      *audiomock.LED
	pub      *audiomock.Publisher
	settings *audiomock.Settings
	conv     *backendmock.Conversation
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		capturer: &audiomock.Capturer{},
		player:   &audiomock.Player{},
		media:    &audiomock.MediaPlayer{},
		led:      &audiomock.LED{},
		pub:      &audiomock.Publisher{},
		settings: &audiomock.Settings{},
		conv:     &backendmock.Conversation{ConnectedResult: true},
	}

	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h.arbiter = audio.NewArbiter(50*time.Millisecond, h.media)

	h.orch = orchestrator.New(orchestrator.Config{
		QueueSize:        32,
		PollInterval:     5 * time.Millisecond,
		StopTimeout:      50 * time.Millisecond,
		ErrorResumeDelay: 20 * time.Millisecond,
		VAD: vad.Config{
			SampleRate:          16000,
			SpeechThreshold:     500,
			MinSpeechDurationMs: 2,
			SilenceDurationMs:   3,
			MaxRecordingMs:      1000,
		},
	}, orchestrator.Deps{
		Arbiter:      h.arbiter,
		Capturer:     h.capturer,
		Player:       h.player,
		Media:        h.media,
		LED:          h.led,
		Publisher:    h.pub,
		Settings:     h.settings,
		Conversation: h.conv,
		Resolver:     intent.NewResolver(),
		Breaker:      resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "test", MaxFailures: 100}),
		Metrics:      metrics,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.orch.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Mode alone is not a readiness signal (the zero value is already
	// wake-idle), so wait until the wake callback is registered before any
	// test fires TriggerWake.
	h.waitFor(t, "initial wake capture", func() bool {
		_, wakeStarts, _ := h.capturer.Counts()
		return wakeStarts >= 1
	})
}

func (h *harness) waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// speakThenSilence pushes loud frames followed by silence through the gated
// capture callback, driving the boundary detector to its end state. Frames
// are 16 samples at 16kHz, i.e. one per millisecond of audio.
func (h *harness) speakThenSilence(speechMs, silenceMs int) {
	loud := make([]int16, 16)
	for i := range loud {
		loud[i] = 2000
	}
	quiet := make([]int16, 16)
	for range speechMs {
		h.capturer.EmitFrame(loud)
	}
	for range silenceMs {
		h.capturer.EmitFrame(quiet)
	}
}

func (h *harness) wakeAndListen(t *testing.T) {
	t.Helper()
	h.capturer.TriggerWake()
	h.waitFor(t, "listening mode", func() bool {
		return h.orch.Mode() == orchestrator.ModeListening
	})
}

func TestWakeStartsSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)

	h.wakeAndListen(t)

	starts, _, _ := h.conv.Counts()
	if starts != 1 {
		t.Fatalf("StartRun calls = %d, want 1", starts)
	}
	if starts, _, _ := h.capturer.Counts(); starts != 1 {
		t.Fatalf("gated capture starts = %d, want 1", starts)
	}
}

func TestDuplicateWakeIsDebounced(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)

	h.capturer.TriggerWake()
	h.capturer.TriggerWake()
	h.waitFor(t, "listening mode", func() bool {
		return h.orch.Mode() == orchestrator.ModeListening
	})
	// Give the second command time to drain.
	time.Sleep(30 * time.Millisecond)

	starts, _, _ := h.conv.Counts()
	if starts != 1 {
		t.Fatalf("StartRun calls = %d, want 1 (duplicate wake must be ignored)", starts)
	}
}

func TestSpeechEndClosesAudioStream(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)
	h.wakeAndListen(t)

	h.speakThenSilence(10, 10)
	h.waitFor(t, "processing mode", func() bool {
		return h.orch.Mode() == orchestrator.ModeProcessing
	})

	_, frames, ends := h.conv.Counts()
	if ends != 1 {
		t.Fatalf("EndAudio calls = %d, want 1", ends)
	}
	if frames == 0 {
		t.Fatal("no audio frames forwarded to the backend")
	}
}

func TestLocalTimerShortcut(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)
	h.wakeAndListen(t)
	subs := h.orch.Subscribers()

	subs.OnTranscript("postavi timer na 5 minuta")

	h.waitFor(t, "confirm beep", func() bool {
		beeps := h.player.Beeps()
		return len(beeps) == 1 && beeps[0] == audio.BeepConfirm
	})
	h.waitFor(t, "wake mode resumed", func() bool {
		return h.orch.Mode() == orchestrator.ModeWakeIdle
	})

	active := h.orch.Timers().Active()
	if len(active) != 1 {
		t.Fatalf("active timers = %d, want 1", len(active))
	}
	remaining := time.Until(active[0].ExpiresAt)
	if remaining < 290*time.Second || remaining > 300*time.Second {
		t.Fatalf("timer remaining = %v, want about 5 minutes", remaining)
	}
}

func TestBackendDurationOverridesLocalGuess(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)
	h.wakeAndListen(t)
	subs := h.orch.Subscribers()

	subs.OnTranscript("postavi timer na 5 minuta")
	h.waitFor(t, "local timer", func() bool {
		return len(h.orch.Timers().Active()) == 1
	})

	subs.OnIntent(backend.Intent{
		Name:  "set_timer",
		Slots: json.RawMessage(`{"seconds": 120}`),
	})

	h.waitFor(t, "restarted timer", func() bool {
		active := h.orch.Timers().Active()
		if len(active) != 1 {
			return false
		}
		remaining := time.Until(active[0].ExpiresAt)
		return remaining > 110*time.Second && remaining <= 120*time.Second
	})

	// Reconciliation must not emit a second confirmation.
	h.waitFor(t, "single confirm beep", func() bool {
		return len(h.player.Beeps()) == 1
	})
}

func TestTTSPlaybackThenFollowup(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)
	h.wakeAndListen(t)
	subs := h.orch.Subscribers()

	h.speakThenSilence(10, 10)
	h.waitFor(t, "processing mode", func() bool {
		return h.orch.Mode() == orchestrator.ModeProcessing
	})

	subs.OnTTS("Koliko dugo?", "http://backend/tts/abc.mp3")
	h.waitFor(t, "speaking mode", func() bool {
		return h.orch.Mode() == orchestrator.ModeSpeaking
	})

	subs.OnTTSAudio([]byte{1, 2, 3})
	subs.OnTTSAudio(nil)
	if calls := h.player.TTSCalls(); len(calls) != 2 {
		t.Fatalf("PlayTTS calls = %d, want 2 (chunk + end marker)", len(calls))
	}

	h.orch.NotifyTTSComplete()
	h.waitFor(t, "follow-up listening", func() bool {
		starts, _, _ := h.conv.Counts()
		return starts == 2 && h.orch.Mode() == orchestrator.ModeListening
	})
}

func TestTextOnlyQuestionOpensFollowup(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)
	h.wakeAndListen(t)
	subs := h.orch.Subscribers()

	h.speakThenSilence(10, 10)
	h.waitFor(t, "processing mode", func() bool {
		return h.orch.Mode() == orchestrator.ModeProcessing
	})

	// No speech audio for this response, so run-end drives the turn close.
	subs.OnTTS("Koliko minuta?", "")
	subs.OnRunEnd()

	h.waitFor(t, "follow-up listening", func() bool {
		starts, _, _ := h.conv.Counts()
		return starts == 2 && h.orch.Mode() == orchestrator.ModeListening
	})
	if calls := h.player.TTSCalls(); len(calls) != 0 {
		t.Fatalf("PlayTTS calls = %d, want 0 for a text-only response", len(calls))
	}
}

func TestSpeechAudioFromDeadRunIsDropped(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)
	h.wakeAndListen(t)
	subs := h.orch.Subscribers()

	subs.OnError(500, "stt unavailable")
	h.waitFor(t, "wake mode resumed after back-off", func() bool {
		_, wakeStarts, _ := h.capturer.Counts()
		return h.orch.Mode() == orchestrator.ModeWakeIdle && wakeStarts >= 2
	})

	// A tts-end from the terminated run straggles in while wake capture
	// owns the audio path again. Its audio must go nowhere.
	subs.OnTTSAudio([]byte{1, 2, 3, 4})
	subs.OnTTSAudio(nil)
	if calls := h.player.TTSCalls(); len(calls) != 0 {
		t.Fatalf("PlayTTS calls = %d, want 0 (audio from a terminated run)", len(calls))
	}
	if owner := h.arbiter.Current(); owner != audio.OwnerWakeWord {
		t.Fatalf("audio path owner = %v, want %v", owner, audio.OwnerWakeWord)
	}
}

func TestErrorCueDoesNotPreemptSpeechPlayback(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)
	h.wakeAndListen(t)
	subs := h.orch.Subscribers()

	h.speakThenSilence(10, 10)
	h.waitFor(t, "processing mode", func() bool {
		return h.orch.Mode() == orchestrator.ModeProcessing
	})

	subs.OnTTS("Pet minuta.", "http://backend/tts/abc.mp3")
	h.waitFor(t, "speaking mode", func() bool {
		return h.orch.Mode() == orchestrator.ModeSpeaking
	})

	// Playback owns the path when the error cue is requested; the beep is
	// skipped instead of cutting into the speech or releasing playback's
	// ownership out from under it.
	subs.OnError(500, "late backend error")
	h.waitFor(t, "wake mode resumed after back-off", func() bool {
		_, wakeStarts, _ := h.capturer.Counts()
		return h.orch.Mode() == orchestrator.ModeWakeIdle && wakeStarts >= 2
	})
	if beeps := h.player.Beeps(); len(beeps) != 0 {
		t.Fatalf("beeps = %v, want none while speech playback owned the path", beeps)
	}
}

func TestTTSWithoutQuestionEndsSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)
	h.wakeAndListen(t)
	subs := h.orch.Subscribers()

	h.speakThenSilence(10, 10)
	h.waitFor(t, "processing mode", func() bool {
		return h.orch.Mode() == orchestrator.ModeProcessing
	})

	subs.OnTTS("Vrijeme je suncano.", "http://backend/tts/abc.mp3")
	h.waitFor(t, "speaking mode", func() bool {
		return h.orch.Mode() == orchestrator.ModeSpeaking
	})

	h.orch.NotifyTTSComplete()
	h.waitFor(t, "wake mode resumed", func() bool {
		return h.orch.Mode() == orchestrator.ModeWakeIdle
	})
	starts, _, _ := h.conv.Counts()
	if starts != 1 {
		t.Fatalf("StartRun calls = %d, want 1 (no follow-up turn)", starts)
	}
}

func TestBackendErrorPlaysCueAndRecovers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)
	h.wakeAndListen(t)
	subs := h.orch.Subscribers()

	subs.OnError(500, "stt unavailable")

	h.waitFor(t, "error beep", func() bool {
		beeps := h.player.Beeps()
		return len(beeps) == 1 && beeps[0] == audio.BeepError
	})
	h.waitFor(t, "wake mode resumed after back-off", func() bool {
		_, wakeStarts, _ := h.capturer.Counts()
		return h.orch.Mode() == orchestrator.ModeWakeIdle && wakeStarts >= 2
	})
}

func TestRunStartFailureConvergesToWakeIdle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.conv.StartRunErr = errors.New("dial tcp: connection refused")
	h.start(t)

	h.capturer.TriggerWake()

	h.waitFor(t, "error beep", func() bool {
		beeps := h.player.Beeps()
		return len(beeps) == 1 && beeps[0] == audio.BeepError
	})
	h.waitFor(t, "wake mode resumed after back-off", func() bool {
		_, wakeStarts, _ := h.capturer.Counts()
		return h.orch.Mode() == orchestrator.ModeWakeIdle && wakeStarts >= 2
	})
}

func TestTimerExpiryBeepsAndResumes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)

	h.orch.Timers().Start(5 * time.Millisecond)

	h.waitFor(t, "timer beep", func() bool {
		beeps := h.player.Beeps()
		return len(beeps) == 1 && beeps[0] == audio.BeepTimer
	})
	h.waitFor(t, "wake mode resumed", func() bool {
		return h.orch.Mode() == orchestrator.ModeWakeIdle
	})
}

func TestOfflineVolumeAdjust(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)

	h.orch.Enqueue(orchestrator.Command{
		Type:    orchestrator.CmdOfflineCmd,
		IntData: int(orchestrator.OfflineVolumeUp),
	})

	h.waitFor(t, "volume saved", func() bool {
		v, _ := h.settings.Load("volume")
		return v == "60"
	})
	h.waitFor(t, "confirm beep", func() bool {
		beeps := h.player.Beeps()
		return len(beeps) == 1 && beeps[0] == audio.BeepConfirm
	})
}

func TestOfflineStopTimers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)

	h.orch.Timers().Start(time.Hour)
	h.orch.Timers().Start(time.Hour)

	h.orch.Enqueue(orchestrator.Command{
		Type:    orchestrator.CmdOfflineCmd,
		IntData: int(orchestrator.OfflineStopTimers),
	})

	h.waitFor(t, "timers cancelled", func() bool {
		return len(h.orch.Timers().Active()) == 0
	})
}

func TestStopAndResumeWakeWord(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)

	h.orch.Enqueue(orchestrator.Command{Type: orchestrator.CmdStopWWD})
	h.waitFor(t, "wake capture stopped", func() bool {
		_, _, stops := h.capturer.Counts()
		return stops >= 1
	})

	_, before, _ := h.capturer.Counts()
	h.orch.Enqueue(orchestrator.Command{Type: orchestrator.CmdResumeWWD})
	h.waitFor(t, "wake capture resumed", func() bool {
		_, wakeStarts, _ := h.capturer.Counts()
		return wakeStarts > before
	})
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	// Run is intentionally not started, so nothing drains the queue.
	for range 32 {
		if !h.orch.Enqueue(orchestrator.Command{Type: orchestrator.CmdResumeWWD}) {
			t.Fatal("enqueue failed before the queue was full")
		}
	}
	if h.orch.Enqueue(orchestrator.Command{Type: orchestrator.CmdResumeWWD}) {
		t.Fatal("enqueue succeeded on a full queue")
	}
}

func TestLivenessAdvancesWhileIdle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)

	before := h.orch.LastAlive()
	h.waitFor(t, "liveness refresh", func() bool {
		return h.orch.LastAlive().After(before)
	})
}
