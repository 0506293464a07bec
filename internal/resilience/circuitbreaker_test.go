package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ipavlek/sonara/internal/resilience"
)

var errBackend = errors.New("backend unreachable")

func newTestBreaker(resetTimeout time.Duration) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "run-start",
		MaxFailures:  3,
		ResetTimeout: resetTimeout,
		HalfOpenMax:  2,
	})
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb := newTestBreaker(time.Hour)

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
			t.Fatalf("call %d: err = %v, want errBackend", i, err)
		}
	}
	if got := cb.CurrentState(); got != resilience.StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("fn called while breaker open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := newTestBreaker(time.Hour)

	cb.Execute(func() error { return errBackend })
	cb.Execute(func() error { return errBackend })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errBackend })
	cb.Execute(func() error { return errBackend })

	if got := cb.CurrentState(); got != resilience.StateClosed {
		t.Fatalf("state = %v, want closed (success must reset the streak)", got)
	}
}

func TestCircuitBreaker_HalfOpenProbesCloseBreaker(t *testing.T) {
	t.Parallel()

	cb := newTestBreaker(10 * time.Millisecond)

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return errBackend })
	}
	time.Sleep(20 * time.Millisecond)

	// Two successful probes (HalfOpenMax) close the breaker.
	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if got := cb.CurrentState(); got != resilience.StateClosed {
		t.Fatalf("state after probes = %v, want closed", got)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	cb := newTestBreaker(10 * time.Millisecond)

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return errBackend })
	}
	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("probe err = %v, want errBackend", err)
	}
	if got := cb.CurrentState(); got != resilience.StateOpen {
		t.Fatalf("state after failed probe = %v, want open", got)
	}
}
