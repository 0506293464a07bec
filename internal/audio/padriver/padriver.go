// Package padriver implements the capture and playback ports on top of
// PortAudio, for running the daemon on a Linux single-board device or a
// developer workstation.
//
// Wake detection here is a sustained-energy trigger, not an acoustic model:
// devices with a hardware wake engine provide their own Capturer and skip
// this package. Call [Initialize] once before constructing drivers and
// [Terminate] on process exit.
package padriver

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/ipavlek/sonara/internal/audio"
)

// defaultFrameSamples is 20ms of mono audio at 16kHz.
const defaultFrameSamples = 320

// Initialize starts the PortAudio runtime.
func Initialize() error { return portaudio.Initialize() }

// Terminate releases the PortAudio runtime.
func Terminate() error { return portaudio.Terminate() }

// Capturer reads mono PCM16 frames from the default input device.
// It implements audio.Capturer.
type Capturer struct {
	sampleRate    int
	frameSamples  int
	wakeThreshold uint32
	wakeFrames    int

	mu      sync.Mutex
	done    chan struct{}
	stopped chan struct{}
}

// CapturerOption configures a Capturer.
type CapturerOption func(*Capturer)

// WithFrameSamples sets the frame size in samples. Default 320 (20ms at
// 16kHz).
func WithFrameSamples(n int) CapturerOption {
	return func(c *Capturer) {
		if n > 0 {
			c.frameSamples = n
		}
	}
}

// WithWakeTrigger tunes the energy wake trigger: threshold is the RMS level
// a frame must exceed, frames is how many consecutive loud frames fire the
// detection. Defaults: 2000 over 10 frames (200ms).
func WithWakeTrigger(threshold uint32, frames int) CapturerOption {
	return func(c *Capturer) {
		if threshold > 0 {
			c.wakeThreshold = threshold
		}
		if frames > 0 {
			c.wakeFrames = frames
		}
	}
}

// NewCapturer creates a Capturer for the given sample rate.
func NewCapturer(sampleRate int, opts ...CapturerOption) *Capturer {
	c := &Capturer{
		sampleRate:    sampleRate,
		frameSamples:  defaultFrameSamples,
		wakeThreshold: 2000,
		wakeFrames:    10,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start begins gated capture, delivering each frame to fn.
func (c *Capturer) Start(fn audio.FrameFunc) error {
	return c.startLoop(func(frame []int16) {
		fn(frame)
	})
}

// StartWakeMode begins capture with the energy wake trigger. fn fires once
// per sustained loud burst; a quiet frame re-arms the trigger.
func (c *Capturer) StartWakeMode(fn func()) error {
	trig := newWakeTrigger(c.wakeThreshold, c.wakeFrames)
	return c.startLoop(func(frame []int16) {
		if trig.feed(frame) {
			fn()
		}
	})
}

// wakeTrigger fires once when wakeFrames consecutive frames exceed the RMS
// threshold, then stays silent until a quiet frame re-arms it.
type wakeTrigger struct {
	threshold uint32
	frames    int
	loud      int
	armed     bool
}

func newWakeTrigger(threshold uint32, frames int) *wakeTrigger {
	return &wakeTrigger{threshold: threshold, frames: frames, armed: true}
}

func (t *wakeTrigger) feed(frame []int16) bool {
	if rms(frame) >= t.threshold {
		t.loud++
		if t.armed && t.loud >= t.frames {
			t.armed = false
			return true
		}
		return false
	}
	t.loud = 0
	t.armed = true
	return false
}

// StopAndWait stops the capture worker and blocks until it has released the
// input stream or timeout elapses.
func (c *Capturer) StopAndWait(timeout time.Duration) error {
	c.mu.Lock()
	done, stopped := c.done, c.stopped
	c.done, c.stopped = nil, nil
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	close(done)
	select {
	case <-stopped:
		return nil
	case <-time.After(timeout):
		return errors.New("padriver: capture worker did not stop in time")
	}
}

// startLoop opens the default input stream and pumps frames to sink on a
// worker goroutine until StopAndWait.
func (c *Capturer) startLoop(sink func([]int16)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return errors.New("padriver: capture already active")
	}

	buf := make([]int16, c.frameSamples)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.sampleRate), c.frameSamples, buf)
	if err != nil {
		return fmt.Errorf("padriver: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("padriver: start input stream: %w", err)
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	c.done, c.stopped = done, stopped

	go func() {
		defer close(stopped)
		defer stream.Close()
		defer stream.Stop()
		pumpFrames(done, stream.Read, func() {
			sink(append([]int16(nil), buf...))
		})
	}()
	return nil
}

// readErrorBackoff throttles retries when the input stream keeps failing,
// e.g. after the device disappears mid-capture.
const readErrorBackoff = 20 * time.Millisecond

// pumpFrames runs the capture worker loop until done closes: read one
// frame, deliver it. A failed read backs off before retrying so a dead
// device does not spin the worker at full CPU.
func pumpFrames(done chan struct{}, read func() error, deliver func()) {
	for {
		select {
		case <-done:
			return
		default:
		}
		if err := read(); err != nil {
			slog.Debug("capture read error", "err", err)
			select {
			case <-done:
				return
			case <-time.After(readErrorBackoff):
			}
			continue
		}
		deliver()
	}
}

// rms computes root-mean-square energy of a frame.
func rms(samples []int16) uint32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return uint32(math.Sqrt(sum / float64(len(samples))))
}

var _ audio.Capturer = (*Capturer)(nil)
