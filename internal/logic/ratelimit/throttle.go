package ratelimit

import (
	"sync"
	"time"
)

// Decision says what Throttle.Call did with an event.
type Decision string

const (
	// Immediate: the call ran synchronously.
	Immediate Decision = "immediate"
	// Deferred: a trailing call was scheduled for the end of the cooldown.
	Deferred Decision = "deferred"
	// Coalesced: a trailing call was already scheduled; it will use this
	// event's value instead.
	Coalesced Decision = "coalesced"
	// Dropped: the throttle was stopped.
	Dropped Decision = "dropped"
)

// Timer is the part of *time.Timer a Throttle needs.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so tests can drive a Throttle deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time                            { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Throttle is a leading-edge throttle with a single trailing call. The first
// event runs fn at once; events during the following cooldown are collapsed
// into one call, made when the cooldown elapses, with the latest value.
type Throttle[T any] struct {
	interval time.Duration
	clock    Clock
	fn       func(T)

	mu      sync.Mutex
	last    time.Time
	ran     bool
	pending bool
	latest  T
	timer   Timer
	stopped bool
}

// NewThrottle creates a throttle around fn. A nil clock uses real time.
func NewThrottle[T any](interval time.Duration, clock Clock, fn func(T)) *Throttle[T] {
	if clock == nil {
		clock = realClock{}
	}
	return &Throttle[T]{interval: interval, clock: clock, fn: fn}
}

// Call offers an event to the throttle.
func (t *Throttle[T]) Call(v T) Decision {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return Dropped
	}

	now := t.clock.Now()
	if !t.pending && (!t.ran || now.Sub(t.last) >= t.interval) {
		t.last = now
		t.ran = true
		t.mu.Unlock()
		t.fn(v)
		return Immediate
	}

	t.latest = v
	if t.pending {
		t.mu.Unlock()
		return Coalesced
	}
	t.pending = true
	t.timer = t.clock.AfterFunc(t.interval-now.Sub(t.last), t.fire)
	t.mu.Unlock()
	return Deferred
}

func (t *Throttle[T]) fire() {
	t.mu.Lock()
	if !t.pending || t.stopped {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.timer = nil
	v := t.latest
	var zero T
	t.latest = zero
	t.last = t.clock.Now()
	t.mu.Unlock()

	t.fn(v)
}

// Pending reports whether a trailing call is scheduled.
func (t *Throttle[T]) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Stop cancels any trailing call and drops further events.
func (t *Throttle[T]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
