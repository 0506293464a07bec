// Package mock provides call-recording test doubles for the audio package
// boundary interfaces.
//
// Each double records its invocations in exported slices/counters so tests
// can assert ordering and arguments, and exposes Err fields to inject
// failures. All doubles are safe for concurrent use.
package mock

import (
	"sync"
	"time"

	"github.com/ipavlek/sonara/internal/audio"
)

// Capturer is a mock implementation of audio.Capturer.
type Capturer struct {
	mu sync.Mutex

	// StartErr, StartWakeErr and StopErr are returned by the corresponding
	// methods when non-nil.
	StartErr     error
	StartWakeErr error
	StopErr      error

	// StopDelay, when non-zero, makes StopAndWait sleep before returning —
	// useful for exercising arbiter timeout paths.
	StopDelay time.Duration

	StartCalls     int
	StartWakeCalls int
	StopCalls      []time.Duration

	frameFn audio.FrameFunc
	wakeFn  func()
}

// Start records the call and retains fn for later injection via EmitFrame.
func (c *Capturer) Start(fn audio.FrameFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartCalls++
	if c.StartErr != nil {
		return c.StartErr
	}
	c.frameFn = fn
	return nil
}

// StartWakeMode records the call and retains fn for later injection via
// TriggerWake.
func (c *Capturer) StartWakeMode(fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartWakeCalls++
	if c.StartWakeErr != nil {
		return c.StartWakeErr
	}
	c.wakeFn = fn
	return nil
}

// StopAndWait records the timeout it was called with.
func (c *Capturer) StopAndWait(timeout time.Duration) error {
	c.mu.Lock()
	c.StopCalls = append(c.StopCalls, timeout)
	delay := c.StopDelay
	err := c.StopErr
	c.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

// EmitFrame delivers samples to the most recently registered frame callback.
// It is a no-op when no gated capture is active.
func (c *Capturer) EmitFrame(samples []int16) {
	c.mu.Lock()
	fn := c.frameFn
	c.mu.Unlock()
	if fn != nil {
		fn(samples)
	}
}

// Counts returns a snapshot of the start and stop call counters.
func (c *Capturer) Counts() (starts, wakeStarts, stops int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.StartCalls, c.StartWakeCalls, len(c.StopCalls)
}

// TriggerWake invokes the most recently registered wake callback.
func (c *Capturer) TriggerWake() {
	c.mu.Lock()
	fn := c.wakeFn
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

var _ audio.Capturer = (*Capturer)(nil)

// PlayTTSCall records a single invocation of Player.PlayTTS.
type PlayTTSCall struct {
	// Chunk is a copy of the bytes passed in; nil for the end marker.
	Chunk []byte
}

// Player is a mock implementation of audio.Player.
type Player struct {
	mu sync.Mutex

	PlayErr error
	BeepErr error
	StopErr error

	PlayTTSCalls []PlayTTSCall
	BeepCalls    []audio.Beep
	StopCalls    []time.Duration
}

// PlayTTS records the chunk (copied) and returns PlayErr.
func (p *Player) PlayTTS(chunk []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var cp []byte
	if chunk != nil {
		cp = make([]byte, len(chunk))
		copy(cp, chunk)
	}
	p.PlayTTSCalls = append(p.PlayTTSCalls, PlayTTSCall{Chunk: cp})
	return p.PlayErr
}

// Beep records the beep kind and returns BeepErr.
func (p *Player) Beep(kind audio.Beep) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.BeepCalls = append(p.BeepCalls, kind)
	return p.BeepErr
}

// StopAndWait records the timeout and returns StopErr.
func (p *Player) StopAndWait(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StopCalls = append(p.StopCalls, timeout)
	return p.StopErr
}

// TTSCalls returns a snapshot of the recorded PlayTTS invocations.
func (p *Player) TTSCalls() []PlayTTSCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayTTSCall, len(p.PlayTTSCalls))
	copy(out, p.PlayTTSCalls)
	return out
}

// Beeps returns a snapshot of the recorded beep kinds.
func (p *Player) Beeps() []audio.Beep {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audio.Beep, len(p.BeepCalls))
	copy(out, p.BeepCalls)
	return out
}

var _ audio.Player = (*Player)(nil)

// MediaPlayer is a mock implementation of audio.MediaPlayer.
type MediaPlayer struct {
	mu sync.Mutex

	PlayErr   error
	PauseErr  error
	ResumeErr error
	StopErr   error

	PlayCalls   []string
	PauseCalls  int
	ResumeCalls int
	StopCalls   int
}

func (m *MediaPlayer) Play(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlayCalls = append(m.PlayCalls, uri)
	return m.PlayErr
}

func (m *MediaPlayer) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PauseCalls++
	return m.PauseErr
}

func (m *MediaPlayer) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResumeCalls++
	return m.ResumeErr
}

func (m *MediaPlayer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopCalls++
	return m.StopErr
}

var _ audio.MediaPlayer = (*MediaPlayer)(nil)

// LED is a mock implementation of audio.LED recording every state set.
type LED struct {
	mu     sync.Mutex
	states []audio.LEDState
}

func (l *LED) Set(state audio.LEDState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, state)
}

// States returns a snapshot of all recorded LED states in order.
func (l *LED) States() []audio.LEDState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]audio.LEDState, len(l.states))
	copy(out, l.states)
	return out
}

var _ audio.LED = (*LED)(nil)

// PublishCall records a single invocation of Publisher.Publish.
type PublishCall struct {
	Topic string
	Value string
}

// Publisher is a mock implementation of audio.Publisher.
type Publisher struct {
	mu sync.Mutex

	PublishErr error

	PublishCalls []PublishCall
}

func (p *Publisher) Publish(topic, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PublishCalls = append(p.PublishCalls, PublishCall{Topic: topic, Value: value})
	return p.PublishErr
}

var _ audio.Publisher = (*Publisher)(nil)

// Settings is an in-memory mock implementation of audio.Settings.
type Settings struct {
	mu sync.Mutex

	LoadErr error
	SaveErr error

	Values map[string]string
}

func (s *Settings) Load(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return "", s.LoadErr
	}
	return s.Values[key], nil
}

func (s *Settings) Save(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	if s.Values == nil {
		s.Values = make(map[string]string)
	}
	s.Values[key] = value
	return nil
}

var _ audio.Settings = (*Settings)(nil)
