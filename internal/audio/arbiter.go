package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sentinel errors returned by the Arbiter.
var (
	// ErrBusy is returned by Acquire when the requested kind already owns
	// the path.
	ErrBusy = errors.New("audio: path already owned by requested mode")

	// ErrStopTimeout is returned when the current owner's worker did not
	// release the hardware within the stop timeout. Ownership is NOT
	// transferred in that case.
	ErrStopTimeout = errors.New("audio: current owner did not stop in time")
)

// Owner identifies which mode owns the physical audio path.
type Owner int

const (
	// OwnerNone means the path is free.
	OwnerNone Owner = iota

	// OwnerWakeWord is the always-on wake-word capture loop.
	OwnerWakeWord

	// OwnerCapture is gated utterance capture feeding the backend.
	OwnerCapture

	// OwnerPlayback is TTS or beep playback.
	OwnerPlayback

	// OwnerMedia is local media playback. It is the only owner that is
	// paused rather than stopped when displaced.
	OwnerMedia
)

// String returns the human-readable name of the owner kind.
func (o Owner) String() string {
	switch o {
	case OwnerNone:
		return "none"
	case OwnerWakeWord:
		return "wake-word"
	case OwnerCapture:
		return "capture"
	case OwnerPlayback:
		return "playback"
	case OwnerMedia:
		return "media"
	default:
		return "unknown"
	}
}

// StopFunc synchronously stops an owner's worker, blocking until the worker
// has signalled it released the hardware or timeout elapsed.
type StopFunc func(timeout time.Duration) error

// Arbiter enforces that exactly one of the capture/playback modes owns the
// audio hardware path at any instant. Starting a new owner first
// synchronously stops the current one and waits for its worker to exit;
// starting before the old owner releases the hardware causes driver-level
// contention, so that ordering is a correctness requirement here, not an
// optimisation.
//
// All methods are safe for concurrent use. Acquire may block up to the
// configured stop timeout while the outgoing owner winds down.
type Arbiter struct {
	stopTimeout time.Duration
	media       MediaPlayer

	mu          sync.Mutex
	owner       Owner
	stop        StopFunc
	mediaPaused bool
	mediaStop   StopFunc // retained while media is paused so it can be restored
}

// NewArbiter creates an Arbiter with the given stop-and-wait timeout.
// media may be nil when the device has no local media playback; pause/resume
// handling is then skipped.
func NewArbiter(stopTimeout time.Duration, media MediaPlayer) *Arbiter {
	if stopTimeout <= 0 {
		stopTimeout = time.Second
	}
	return &Arbiter{stopTimeout: stopTimeout, media: media}
}

// Acquire transfers ownership of the audio path to kind. The current
// owner's StopFunc is invoked synchronously first; if it does not complete
// within the stop timeout, Acquire returns ErrStopTimeout and ownership is
// unchanged — the caller must not start its worker.
//
// When local media owns the path and playback requests it, the media is
// paused instead of stopped and is resumed automatically when playback
// releases the path.
func (a *Arbiter) Acquire(kind Owner, stop StopFunc) error {
	if kind == OwnerNone {
		return fmt.Errorf("audio: cannot acquire %v", kind)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.owner == kind {
		return ErrBusy
	}

	if a.owner == OwnerMedia && kind == OwnerPlayback && a.media != nil {
		if err := a.media.Pause(); err != nil {
			return fmt.Errorf("audio: pause media: %w", err)
		}
		a.mediaPaused = true
		a.mediaStop = a.stop
	} else if a.owner != OwnerNone {
		if err := a.stopLocked(); err != nil {
			return err
		}
	}

	a.owner = kind
	a.stop = stop
	slog.Debug("audio path acquired", "owner", kind)
	return nil
}

// Release gives up ownership held by kind. Releasing a kind that does not
// currently own the path is a no-op, which makes the orchestrator's resume
// commands idempotent. If playback releases while media was paused, the
// media resumes and reclaims ownership.
func (a *Arbiter) Release(kind Owner) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.owner != kind {
		return
	}

	a.owner = OwnerNone
	a.stop = nil

	if kind == OwnerPlayback && a.mediaPaused {
		a.mediaPaused = false
		if a.media != nil {
			if err := a.media.Resume(); err != nil {
				slog.Warn("audio: resume media failed", "err", err)
				a.mediaStop = nil
				return
			}
		}
		a.owner = OwnerMedia
		a.stop = a.mediaStop
		a.mediaStop = nil
	}
	slog.Debug("audio path released", "released", kind, "owner", a.owner)
}

// StopAndWait stops whichever mode currently owns the path and waits for
// its worker to exit, bounded by timeout (the arbiter default when timeout
// is zero). On success the path is free. A paused media owner is discarded
// too — StopAndWait is the "silence everything" primitive.
func (a *Arbiter) StopAndWait(timeout time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if timeout <= 0 {
		timeout = a.stopTimeout
	}

	if a.owner == OwnerNone {
		return nil
	}
	if a.stop != nil {
		if err := a.stop(timeout); err != nil {
			return fmt.Errorf("%w: %v owner: %v", ErrStopTimeout, a.owner, err)
		}
	}
	a.owner = OwnerNone
	a.stop = nil
	a.mediaPaused = false
	a.mediaStop = nil
	return nil
}

// Current returns the present owner of the audio path.
func (a *Arbiter) Current() Owner {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owner
}

// stopLocked stops the current owner with the default timeout. Must be
// called with a.mu held.
func (a *Arbiter) stopLocked() error {
	if a.stop == nil {
		return nil
	}
	if err := a.stop(a.stopTimeout); err != nil {
		return fmt.Errorf("%w: %v owner: %v", ErrStopTimeout, a.owner, err)
	}
	return nil
}
