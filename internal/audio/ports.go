// Package audio defines the boundary interfaces to the device's audio
// collaborators and the resource arbiter that keeps them from fighting over
// the one physical audio path.
//
// The interfaces are intentionally narrow: capture/playback drivers, the
// wake-word model, MP3 decoding, LED rendering, MQTT publishing, and
// settings storage all live outside this module and are specified only at
// this boundary. Implementations wrap the device firmware's driver layer;
// the mock subpackage provides call-recording test doubles.
package audio

import "time"

// FrameFunc receives one captured PCM frame. Frames are raw little-endian
// 16-bit mono samples at the pipeline's configured rate. The callback is
// invoked from the capture worker goroutine and must not block.
type FrameFunc func(samples []int16)

// Capturer is the microphone capture driver. At most one capture mode is
// active at a time; switching modes goes through the Arbiter.
type Capturer interface {
	// Start begins gated capture, delivering each frame to fn until
	// StopAndWait is called.
	Start(fn FrameFunc) error

	// StartWakeMode begins wake-word capture. fn is invoked once per
	// wake-phrase detection; audio frames are consumed by the acoustic
	// model and not surfaced.
	StartWakeMode(fn func()) error

	// StopAndWait synchronously stops the active capture mode, blocking
	// until the capture worker has released the audio hardware or timeout
	// elapses. A timeout error means the hardware was NOT released.
	StopAndWait(timeout time.Duration) error
}

// Beep identifies an audible feedback cue.
type Beep int

const (
	BeepConfirm Beep = iota
	BeepTimer
	BeepAlarm
	BeepError
)

// String returns the human-readable name of the beep kind.
func (b Beep) String() string {
	switch b {
	case BeepConfirm:
		return "confirm"
	case BeepTimer:
		return "timer"
	case BeepAlarm:
		return "alarm"
	case BeepError:
		return "error"
	default:
		return "unknown"
	}
}

// Player renders synthesized speech and feedback tones through the output
// path.
type Player interface {
	// PlayTTS queues a chunk of synthesized audio for playback. A nil or
	// zero-length chunk is the end-of-audio marker. Playback completion is
	// reported through the completion hook the concrete player was
	// constructed with — exactly one subscriber, fixed at construction.
	PlayTTS(chunk []byte) error

	// Beep plays a short feedback tone. Blocking is bounded by the tone
	// length.
	Beep(kind Beep) error

	// StopAndWait stops playback and blocks until the output path is
	// released or timeout elapses.
	StopAndWait(timeout time.Duration) error
}

// MediaPlayer is the local media (radio/MP3) playback collaborator. It
// participates in arbitration as a lower-priority owner: the arbiter pauses
// it when TTS needs the path and resumes it afterwards.
type MediaPlayer interface {
	Play(uri string) error
	Pause() error
	Resume() error
	Stop() error
}

// LEDState mirrors the orchestrator mode on the device's status LED.
type LEDState int

const (
	LEDIdle LEDState = iota
	LEDListening
	LEDProcessing
	LEDSpeaking
	LEDError
)

// LED is the status LED/display collaborator.
type LED interface {
	Set(state LEDState)
}

// Publisher is the device-discovery publishing boundary (MQTT underneath).
type Publisher interface {
	Publish(topic, value string) error
}

// Settings is the persisted settings/alarms storage boundary.
type Settings interface {
	Load(key string) (string, error)
	Save(key, value string) error
}
