// Package mock provides a call-recording test double for the conversation
// backend surface the orchestrator depends on.
package mock

import (
	"context"
	"sync"
)

// SendAudioCall records one invocation of Conversation.SendAudio.
type SendAudioCall struct {
	// Samples is a copy of the frame passed in.
	Samples []int16
}

// Conversation is a mock of the orchestrator-facing backend client surface.
type Conversation struct {
	mu sync.Mutex

	// StartRunErr, SendAudioErr and EndAudioErr are returned by the
	// corresponding methods when non-nil.
	StartRunErr  error
	SendAudioErr error
	EndAudioErr  error

	// ConnectedResult is returned by Connected.
	ConnectedResult bool

	StartRunCalls  int
	SendAudioCalls []SendAudioCall
	EndAudioCalls  int
}

// StartRun records the call and returns StartRunErr.
func (c *Conversation) StartRun(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartRunCalls++
	return c.StartRunErr
}

// SendAudio records a copy of samples and returns SendAudioErr.
func (c *Conversation) SendAudio(samples []int16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]int16, len(samples))
	copy(cp, samples)
	c.SendAudioCalls = append(c.SendAudioCalls, SendAudioCall{Samples: cp})
	return c.SendAudioErr
}

// EndAudio records the call and returns EndAudioErr.
func (c *Conversation) EndAudio() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EndAudioCalls++
	return c.EndAudioErr
}

// Connected returns ConnectedResult.
func (c *Conversation) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ConnectedResult
}

// Counts returns a snapshot of the run/audio call counters.
func (c *Conversation) Counts() (startRuns, audioFrames, endAudios int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.StartRunCalls, len(c.SendAudioCalls), c.EndAudioCalls
}
