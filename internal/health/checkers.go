package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BackendChecker reports ready only while the conversation backend
// connection is up. connected is typically backend.Client.Connected.
func BackendChecker(connected func() bool) Checker {
	return Checker{
		Name: "backend",
		Check: func(_ context.Context) error {
			if !connected() {
				return errors.New("backend connection is down")
			}
			return nil
		},
	}
}

// PipelineChecker reports ready only while the session pipeline's consumer
// loop is making progress. lastAlive is typically Orchestrator.LastAlive; a
// timestamp older than maxStale means the consumer is stuck and the device
// can no longer react to wake phrases.
func PipelineChecker(lastAlive func() time.Time, maxStale time.Duration) Checker {
	if maxStale <= 0 {
		maxStale = 5 * time.Second
	}
	return Checker{
		Name: "pipeline",
		Check: func(_ context.Context) error {
			age := time.Since(lastAlive())
			if age > maxStale {
				return fmt.Errorf("pipeline stalled for %s", age.Round(time.Millisecond))
			}
			return nil
		},
	}
}
