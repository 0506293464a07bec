package vad_test

import (
	"testing"

	"github.com/ipavlek/sonara/internal/vad"
)

// testConfig yields one frame per millisecond at 16 kHz: 16-sample frames.
func testConfig() vad.Config {
	return vad.Config{
		SampleRate:          16000,
		SpeechThreshold:     500,
		MinSpeechDurationMs: 5,
		SilenceDurationMs:   8,
		MaxRecordingMs:      100,
	}
}

// loudFrame has RMS well above the test threshold.
func loudFrame() []int16 {
	f := make([]int16, 16)
	for i := range f {
		f[i] = 4000
	}
	return f
}

// quietFrame has RMS well below the test threshold.
func quietFrame() []int16 {
	f := make([]int16, 16)
	for i := range f {
		f[i] = 10
	}
	return f
}

func TestDetector_FirstFrameEntersListening(t *testing.T) {
	t.Parallel()

	d := vad.New(testConfig())
	if got := d.State(); got != vad.StateIdle {
		t.Fatalf("initial state = %v, want idle", got)
	}
	if got := d.ProcessFrame(quietFrame()); got != vad.StateListening {
		t.Fatalf("state after first frame = %v, want listening", got)
	}
}

func TestDetector_EmptyFrameLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	d := vad.New(testConfig())
	if got := d.ProcessFrame(nil); got != vad.StateIdle {
		t.Fatalf("state after nil frame = %v, want idle", got)
	}
	d.ProcessFrame(quietFrame())
	if got := d.ProcessFrame([]int16{}); got != vad.StateListening {
		t.Fatalf("state after empty frame = %v, want listening", got)
	}
	if d.DurationMs() != 1 {
		t.Fatalf("DurationMs = %d, want 1 (empty frames must not count)", d.DurationMs())
	}
}

func TestDetector_MinSpeechDurationExactBoundary(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	d := vad.New(cfg)

	// One frame short of the minimum speech duration: still listening.
	for i := uint32(0); i < cfg.MinSpeechDurationMs-1; i++ {
		if got := d.ProcessFrame(loudFrame()); got == vad.StateSpeaking {
			t.Fatalf("entered speaking after %d frames, want ≥ %d", i+1, cfg.MinSpeechDurationMs)
		}
	}

	// The exact boundary frame promotes to speaking.
	if got := d.ProcessFrame(loudFrame()); got != vad.StateSpeaking {
		t.Fatalf("state after %d loud frames = %v, want speaking", cfg.MinSpeechDurationMs, got)
	}
}

func TestDetector_SilenceWindowCollapsesToEnd(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	d := vad.New(cfg)

	for i := uint32(0); i < cfg.MinSpeechDurationMs; i++ {
		d.ProcessFrame(loudFrame())
	}
	if d.State() != vad.StateSpeaking {
		t.Fatal("setup: detector should be speaking")
	}

	// Trailing silence — the final frame must transition straight to End
	// with no intermediate externally visible state.
	var got vad.State
	for i := uint32(0); i < cfg.SilenceDurationMs; i++ {
		got = d.ProcessFrame(quietFrame())
		if i < cfg.SilenceDurationMs-1 && got != vad.StateSpeaking {
			t.Fatalf("frame %d: state = %v, want speaking until window elapses", i, got)
		}
	}
	if got != vad.StateEnd {
		t.Fatalf("state after silence window = %v, want end", got)
	}
	if !d.ShouldStop() {
		t.Fatal("ShouldStop() = false after End")
	}
}

func TestDetector_SpeechResetsSilenceCounter(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	d := vad.New(cfg)

	for i := uint32(0); i < cfg.MinSpeechDurationMs; i++ {
		d.ProcessFrame(loudFrame())
	}

	// Alternate: almost-full silence window, then a speech frame, then
	// almost-full again. Detector must stay in speaking throughout.
	for round := 0; round < 2; round++ {
		for i := uint32(0); i < cfg.SilenceDurationMs-1; i++ {
			if got := d.ProcessFrame(quietFrame()); got != vad.StateSpeaking {
				t.Fatalf("round %d frame %d: state = %v, want speaking", round, i, got)
			}
		}
		if got := d.ProcessFrame(loudFrame()); got != vad.StateSpeaking {
			t.Fatalf("round %d: speech frame state = %v, want speaking", round, got)
		}
	}
}

func TestDetector_MaxRecordingCeilingWithoutSpeech(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	d := vad.New(cfg)

	var got vad.State
	for i := uint32(0); i < cfg.MaxRecordingMs; i++ {
		got = d.ProcessFrame(quietFrame())
	}
	if got != vad.StateEnd {
		t.Fatalf("state after %d silent ms = %v, want end", cfg.MaxRecordingMs, got)
	}
	if d.DurationMs() != cfg.MaxRecordingMs {
		t.Fatalf("DurationMs = %d, want %d", d.DurationMs(), cfg.MaxRecordingMs)
	}
}

func TestDetector_MaxRecordingCeilingDuringSpeech(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	d := vad.New(cfg)

	var got vad.State
	for i := uint32(0); i < cfg.MaxRecordingMs; i++ {
		got = d.ProcessFrame(loudFrame())
	}
	if got != vad.StateEnd {
		t.Fatalf("state at ceiling during speech = %v, want end", got)
	}
}

func TestDetector_EndIsTerminalUntilReset(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	d := vad.New(cfg)
	for i := uint32(0); i < cfg.MaxRecordingMs; i++ {
		d.ProcessFrame(quietFrame())
	}

	if got := d.ProcessFrame(loudFrame()); got != vad.StateEnd {
		t.Fatalf("state after frame in End = %v, want end", got)
	}

	d.Reset()
	if d.State() != vad.StateIdle {
		t.Fatalf("state after Reset = %v, want idle", d.State())
	}
	if d.DurationMs() != 0 {
		t.Fatalf("DurationMs after Reset = %d, want 0", d.DurationMs())
	}
	if got := d.ProcessFrame(loudFrame()); got != vad.StateListening {
		t.Fatalf("state after Reset + frame = %v, want listening", got)
	}
}

func TestDetector_FramesPerMsClampedForLargeFrames(t *testing.T) {
	t.Parallel()

	// 320-sample frames at 16 kHz are 20 ms of audio, which is more than a
	// millisecond per frame — framesPerMs clamps to 1 and the counters tick
	// in frame units.
	cfg := testConfig()
	d := vad.New(cfg)

	frame := make([]int16, 320)
	d.ProcessFrame(frame)
	d.ProcessFrame(frame)
	if d.DurationMs() != 2 {
		t.Fatalf("DurationMs = %d, want 2 (clamped frame units)", d.DurationMs())
	}
}

func TestDetector_StateStrings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state vad.State
		want  string
	}{
		{vad.StateIdle, "idle"},
		{vad.StateListening, "listening"},
		{vad.StateSpeaking, "speaking"},
		{vad.StateEnd, "end"},
		{vad.State(42), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
