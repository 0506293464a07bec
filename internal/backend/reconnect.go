package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 0 // 0 = retry forever; the device has no fallback backend
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Reconnector keeps a Client connected, redialling with exponential backoff
// after transport drops. In-flight sessions are never resumed: the client
// has already invalidated its handler id by the time a reconnect attempt
// begins, so the next session always opens with a fresh run-start.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	client      *Client
	backoff     time.Duration
	maxBackoff  time.Duration
	maxRetries  int
	onReconnect func()

	mu           sync.Mutex
	disconnected chan struct{}
	stopOnce     sync.Once
	done         chan struct{}
}

// ReconnectorConfig configures a Reconnector.
type ReconnectorConfig struct {
	// Client is the protocol client to keep connected.
	Client *Client

	// Backoff is the initial delay between attempts, doubling each failure
	// up to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff caps the delay. Defaults to 30s if zero.
	MaxBackoff time.Duration

	// MaxRetries limits consecutive failed attempts; zero retries forever.
	MaxRetries int

	// OnReconnect is called after each successful reconnection. May be nil.
	OnReconnect func()
}

// NewReconnector creates a Reconnector. Call NotifyDisconnect from the
// client's OnDisconnect subscriber and Monitor once to start the watch
// goroutine.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	r := &Reconnector{
		client:       cfg.Client,
		backoff:      cfg.Backoff,
		maxBackoff:   cfg.MaxBackoff,
		maxRetries:   cfg.MaxRetries,
		onReconnect:  cfg.OnReconnect,
		disconnected: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	if r.backoff <= 0 {
		r.backoff = defaultBackoff
	}
	if r.maxBackoff <= 0 {
		r.maxBackoff = defaultMaxBackoff
	}
	if r.maxRetries < 0 {
		r.maxRetries = defaultMaxRetries
	}
	return r
}

// NotifyDisconnect signals that the transport dropped. Duplicate signals
// while an attempt is already pending are coalesced.
func (r *Reconnector) NotifyDisconnect() {
	select {
	case r.disconnected <- struct{}{}:
	default:
	}
}

// Monitor blocks until ctx is cancelled or Stop is called, reconnecting the
// client whenever NotifyDisconnect fires. Run it on its own goroutine.
func (r *Reconnector) Monitor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-r.disconnected:
			r.reconnect(ctx)
		}
	}
}

// Stop terminates Monitor. Safe to call more than once.
func (r *Reconnector) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// reconnect attempts to re-establish the connection with exponential
// backoff until success, retry exhaustion, or cancellation.
func (r *Reconnector) reconnect(ctx context.Context) {
	delay := r.backoff
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-time.After(delay):
		}

		err := r.client.Connect(ctx)
		if err == nil {
			slog.Info("backend reconnected", "attempt", attempt)
			if r.onReconnect != nil {
				r.onReconnect()
			}
			return
		}
		slog.Warn("backend reconnect failed", "attempt", attempt, "err", err)

		if r.maxRetries > 0 && attempt >= r.maxRetries {
			slog.Error("backend reconnect giving up", "attempts", attempt)
			return
		}
		delay *= 2
		if delay > r.maxBackoff {
			delay = r.maxBackoff
		}
	}
}
