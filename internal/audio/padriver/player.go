package padriver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/ipavlek/sonara/internal/audio"
)

// tone describes one segment of a feedback cue.
type tone struct {
	freq float64
	dur  time.Duration
}

// beepTones maps each cue to its tone sequence. A zero frequency is a rest.
var beepTones = map[audio.Beep][]tone{
	audio.BeepConfirm: {{880, 80 * time.Millisecond}, {1320, 80 * time.Millisecond}},
	audio.BeepTimer:   {{1046, 120 * time.Millisecond}, {0, 60 * time.Millisecond}, {1046, 120 * time.Millisecond}, {0, 60 * time.Millisecond}, {1046, 120 * time.Millisecond}},
	audio.BeepAlarm:   {{1568, 150 * time.Millisecond}, {0, 80 * time.Millisecond}, {1568, 150 * time.Millisecond}, {0, 80 * time.Millisecond}, {1568, 150 * time.Millisecond}, {0, 80 * time.Millisecond}, {1568, 150 * time.Millisecond}},
	audio.BeepError:   {{440, 160 * time.Millisecond}, {0, 40 * time.Millisecond}, {330, 220 * time.Millisecond}},
}

// Player renders PCM16LE speech chunks and synthesized feedback tones on the
// default output device. It implements audio.Player.
type Player struct {
	sampleRate int
	onComplete func()
	queueSize  int

	mu      sync.Mutex
	chunks  chan []byte
	stopped chan struct{}
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithQueueSize sets how many speech chunks may be buffered ahead of the
// output worker. Default 32.
func WithQueueSize(n int) PlayerOption {
	return func(p *Player) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// NewPlayer creates a Player. onComplete fires on the playback worker
// goroutine after the end-of-audio marker has been rendered; it is the
// single completion subscriber and is fixed for the player's lifetime.
func NewPlayer(sampleRate int, onComplete func(), opts ...PlayerOption) *Player {
	p := &Player{
		sampleRate: sampleRate,
		onComplete: onComplete,
		queueSize:  32,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PlayTTS queues one PCM16LE chunk. A nil or empty chunk marks end of
// audio: the worker drains the queue, closes the output stream and fires
// the completion hook.
func (p *Player) PlayTTS(chunk []byte) error {
	p.mu.Lock()
	if p.chunks == nil {
		if err := p.startWorker(); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	chunks := p.chunks
	p.mu.Unlock()

	if len(chunk) == 0 {
		chunks <- nil
		return nil
	}
	select {
	case chunks <- chunk:
		return nil
	default:
		return errors.New("padriver: playback queue full")
	}
}

// Beep synthesizes and plays the tone sequence for kind. It blocks for the
// duration of the cue.
func (p *Player) Beep(kind audio.Beep) error {
	tones, ok := beepTones[kind]
	if !ok {
		return fmt.Errorf("padriver: unknown beep kind %d", kind)
	}
	samples := synthesize(tones, p.sampleRate)
	return p.playSamples(samples)
}

// StopAndWait aborts in-flight playback and blocks until the output stream
// is released or timeout elapses.
func (p *Player) StopAndWait(timeout time.Duration) error {
	p.mu.Lock()
	chunks, stopped := p.chunks, p.stopped
	p.chunks, p.stopped = nil, nil
	p.mu.Unlock()

	if chunks == nil {
		return nil
	}
	close(chunks)
	select {
	case <-stopped:
		return nil
	case <-time.After(timeout):
		return errors.New("padriver: playback worker did not stop in time")
	}
}

// startWorker opens the output stream and launches the chunk consumer.
// Caller holds p.mu.
func (p *Player) startWorker() error {
	buf := make([]int16, defaultFrameSamples)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(p.sampleRate), defaultFrameSamples, buf)
	if err != nil {
		return fmt.Errorf("padriver: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("padriver: start output stream: %w", err)
	}

	chunks := make(chan []byte, p.queueSize)
	stopped := make(chan struct{})
	p.chunks, p.stopped = chunks, stopped

	go func() {
		defer close(stopped)
		defer stream.Close()
		defer stream.Stop()

		var pending []int16
		for chunk := range chunks {
			if chunk == nil {
				p.flush(stream, buf, pending)
				p.mu.Lock()
				if p.chunks == chunks {
					p.chunks, p.stopped = nil, nil
				}
				p.mu.Unlock()
				if p.onComplete != nil {
					p.onComplete()
				}
				return
			}
			pending = append(pending, decodePCM16(chunk)...)
			for len(pending) >= len(buf) {
				copy(buf, pending[:len(buf)])
				pending = pending[len(buf):]
				if err := stream.Write(); err != nil {
					slog.Debug("playback write error", "err", err)
				}
			}
		}
	}()
	return nil
}

// flush pads the trailing partial frame with silence and writes it out.
func (p *Player) flush(stream *portaudio.Stream, buf, pending []int16) {
	if len(pending) == 0 {
		return
	}
	n := copy(buf, pending)
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	if err := stream.Write(); err != nil {
		slog.Debug("playback flush error", "err", err)
	}
}

// playSamples renders a complete sample buffer on a short-lived stream.
func (p *Player) playSamples(samples []int16) error {
	buf := make([]int16, defaultFrameSamples)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(p.sampleRate), defaultFrameSamples, buf)
	if err != nil {
		return fmt.Errorf("padriver: open output stream: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("padriver: start output stream: %w", err)
	}
	defer stream.Stop()

	for len(samples) > 0 {
		n := copy(buf, samples)
		samples = samples[n:]
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("padriver: write output stream: %w", err)
		}
	}
	return nil
}

// decodePCM16 converts a little-endian 16-bit byte stream to samples. An
// odd trailing byte is dropped.
func decodePCM16(chunk []byte) []int16 {
	samples := make([]int16, len(chunk)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(chunk[i*2:]))
	}
	return samples
}

// synthesize renders a tone sequence as PCM16 with a short attack/release
// ramp so the cue does not click.
func synthesize(tones []tone, sampleRate int) []int16 {
	const amplitude = 12000
	ramp := sampleRate / 200 // 5ms

	var out []int16
	for _, t := range tones {
		n := int(float64(sampleRate) * t.dur.Seconds())
		if t.freq == 0 {
			out = append(out, make([]int16, n)...)
			continue
		}
		for i := range n {
			v := amplitude * math.Sin(2*math.Pi*t.freq*float64(i)/float64(sampleRate))
			if i < ramp {
				v *= float64(i) / float64(ramp)
			}
			if n-i < ramp {
				v *= float64(n-i) / float64(ramp)
			}
			out = append(out, int16(v))
		}
	}
	return out
}

var _ audio.Player = (*Player)(nil)
