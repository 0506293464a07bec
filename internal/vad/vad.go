// Package vad implements the energy-based speech boundary detector that
// decides when a spoken utterance starts and ends.
//
// The detector is a small state machine driven by per-frame RMS energy:
// a frame is classified as speech when its energy exceeds the configured
// threshold, and accumulated speech/silence frame counts drive the
// transitions Idle → Listening → Speaking → End. A hard recording ceiling
// moves any state to End regardless of content.
//
// A Detector is owned by the single goroutine that feeds it frames. It is
// not safe for concurrent use and is cheap enough to recreate per listening
// turn.
package vad

import "math"

// State is the detector's externally visible phase.
type State int

const (
	// StateIdle means no frame has been processed yet.
	StateIdle State = iota

	// StateListening means frames are being consumed but the minimum speech
	// duration has not yet been reached.
	StateListening

	// StateSpeaking means an utterance is in progress.
	StateSpeaking

	// StateEnd means the utterance has ended — either the trailing silence
	// window elapsed or the hard recording ceiling was hit. The detector
	// stays in StateEnd until Reset.
	//
	// There is no observable silence state: the transition out of
	// StateSpeaking collapses directly into StateEnd within the same
	// ProcessFrame call. Downstream code relies on End firing immediately.
	StateEnd
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateSpeaking:
		return "speaking"
	case StateEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Config holds the parameters for a Detector. All durations are in
// milliseconds of audio time, derived from the frame counters — not wall
// clock.
type Config struct {
	// SampleRate is the PCM sample rate in Hz of the frames fed to
	// ProcessFrame. Common values: 8000, 16000.
	SampleRate int

	// SpeechThreshold is the RMS energy above which a frame counts as
	// speech. The scale is raw int16 amplitude (0–32767).
	SpeechThreshold uint32

	// MinSpeechDurationMs is the accumulated speech needed to move from
	// Listening to Speaking.
	MinSpeechDurationMs uint32

	// SilenceDurationMs is the trailing silence window that ends an
	// utterance once Speaking has been reached.
	SilenceDurationMs uint32

	// MaxRecordingMs is the hard ceiling on total elapsed audio. Any state
	// moves to End once this much audio has been processed, speech or not.
	MaxRecordingMs uint32
}

// Detector turns a stream of constant-size PCM frames into utterance
// boundary decisions.
type Detector struct {
	cfg Config

	state         State
	totalFrames   uint32
	speechFrames  uint32
	silenceFrames uint32
	currentEnergy uint32

	// framesPerMs is derived from the sample rate and the size of the first
	// frame received, then held fixed. Callers must feed constant-size
	// frames after the first. Clamped to a minimum of 1 so the millisecond
	// divisions below can never divide by zero.
	framesPerMs uint32
}

// New creates a Detector in StateIdle.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// ProcessFrame classifies one frame and advances the state machine,
// returning the state after the transition. A nil or empty frame leaves
// the detector unchanged and returns the current state.
func (d *Detector) ProcessFrame(samples []int16) State {
	if len(samples) == 0 {
		return d.state
	}
	if d.state == StateEnd {
		return d.state
	}

	if d.framesPerMs == 0 {
		d.framesPerMs = deriveFramesPerMs(d.cfg.SampleRate, len(samples))
	}

	d.totalFrames++
	d.currentEnergy = rms(samples)
	speech := d.currentEnergy > d.cfg.SpeechThreshold

	switch d.state {
	case StateIdle:
		d.state = StateListening
		d.classify(speech)

	case StateListening:
		d.classify(speech)
		if d.speechFrames/d.framesPerMs >= d.cfg.MinSpeechDurationMs {
			d.state = StateSpeaking
			d.silenceFrames = 0
		}

	case StateSpeaking:
		if speech {
			d.speechFrames++
			d.silenceFrames = 0
		} else {
			d.silenceFrames++
			if d.silenceFrames/d.framesPerMs >= d.cfg.SilenceDurationMs {
				// Silence window satisfied: the transient silence phase
				// collapses straight into End, never observable by callers.
				d.state = StateEnd
			}
		}
	}

	// Hard ceiling applies from every state.
	if d.totalFrames/d.framesPerMs >= d.cfg.MaxRecordingMs {
		d.state = StateEnd
	}

	return d.state
}

// classify accumulates one frame into the speech/silence counters while the
// detector is pre-Speaking.
func (d *Detector) classify(speech bool) {
	if speech {
		d.speechFrames++
	} else {
		d.silenceFrames++
	}
}

// Reset returns the detector to StateIdle and clears all counters. The
// derived frame rate is cleared too, so the next stream may use a different
// frame size.
func (d *Detector) Reset() {
	d.state = StateIdle
	d.totalFrames = 0
	d.speechFrames = 0
	d.silenceFrames = 0
	d.currentEnergy = 0
	d.framesPerMs = 0
}

// ShouldStop reports whether the utterance has ended and capture should be
// closed.
func (d *Detector) ShouldStop() bool {
	return d.state == StateEnd
}

// DurationMs returns the total audio time processed so far in milliseconds.
func (d *Detector) DurationMs() uint32 {
	if d.framesPerMs == 0 {
		return 0
	}
	return d.totalFrames / d.framesPerMs
}

// State returns the current detector state without processing a frame.
func (d *Detector) State() State {
	return d.state
}

// CurrentEnergy returns the RMS energy of the most recently processed frame.
func (d *Detector) CurrentEnergy() uint32 {
	return d.currentEnergy
}

// deriveFramesPerMs computes how many frames make up one millisecond of
// audio given the sample rate and the observed frame size. The result is
// clamped to a minimum of 1: for frames longer than a millisecond the
// counters effectively tick in frame units, which matches the source
// device's integer arithmetic.
func deriveFramesPerMs(sampleRate, frameSamples int) uint32 {
	if sampleRate <= 0 || frameSamples <= 0 {
		return 1
	}
	samplesPerMs := sampleRate / 1000
	fpm := samplesPerMs / frameSamples
	if fpm < 1 {
		return 1
	}
	return uint32(fpm)
}

// rms computes sqrt(mean(sample²)) over the frame as an unsigned 32-bit
// energy value.
func rms(samples []int16) uint32 {
	var sum uint64
	for _, s := range samples {
		v := int64(s)
		sum += uint64(v * v)
	}
	mean := float64(sum) / float64(len(samples))
	return uint32(math.Sqrt(mean))
}
