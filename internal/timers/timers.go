// Package timers implements the local countdown bank backing the timer
// intent shortcut. Countdowns run on the process clock and report expiry
// through a single callback fixed at construction; the orchestrator turns
// those callbacks into beep commands on its queue.
package timers

import (
	"log/slog"
	"sync"
	"time"
)

// Entry describes one active countdown.
type Entry struct {
	// ID is the bank-assigned identifier, unique for the life of the
	// process.
	ID int

	// ExpiresAt is the wall-clock expiry time.
	ExpiresAt time.Time
}

// Bank manages concurrent countdowns. All methods are safe for concurrent
// use. The expiry callback is invoked from a timer goroutine and must not
// block.
type Bank struct {
	onExpire func(id int)

	mu     sync.Mutex
	nextID int
	active map[int]*countdown
}

type countdown struct {
	timer     *time.Timer
	expiresAt time.Time
}

// New creates a Bank. onExpire fires once per countdown when it runs out;
// it may be nil when expiries are observed elsewhere.
func New(onExpire func(id int)) *Bank {
	return &Bank{
		onExpire: onExpire,
		active:   make(map[int]*countdown),
	}
}

// Start begins a countdown of d and returns its id. Durations of zero or
// less expire immediately.
func (b *Bank) Start(d time.Duration) int {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	entry := &countdown{expiresAt: time.Now().Add(d)}
	b.active[id] = entry
	entry.timer = time.AfterFunc(d, func() { b.expire(id) })
	b.mu.Unlock()

	slog.Info("timer started", "id", id, "duration", d)
	return id
}

// Cancel stops the countdown with the given id. It reports whether the
// countdown was still active.
func (b *Bank) Cancel(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.active[id]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(b.active, id)
	slog.Info("timer cancelled", "id", id)
	return true
}

// CancelAll stops every active countdown and returns how many were stopped.
func (b *Bank) CancelAll() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.active)
	for id, entry := range b.active {
		entry.timer.Stop()
		delete(b.active, id)
	}
	if n > 0 {
		slog.Info("timers cancelled", "count", n)
	}
	return n
}

// Active returns the current countdowns ordered by expiry.
func (b *Bank) Active() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, 0, len(b.active))
	for id, entry := range b.active {
		out = append(out, Entry{ID: id, ExpiresAt: entry.expiresAt})
	}
	// Small n; insertion sort keeps it dependency-free.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ExpiresAt.Before(out[j-1].ExpiresAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// expire removes the countdown and notifies the subscriber. A countdown
// cancelled concurrently with its expiry does not notify.
func (b *Bank) expire(id int) {
	b.mu.Lock()
	_, ok := b.active[id]
	if ok {
		delete(b.active, id)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	slog.Info("timer expired", "id", id)
	if b.onExpire != nil {
		b.onExpire(id)
	}
}
