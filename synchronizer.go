package qsync

import (
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Predicates supplies the policy a Synchronizer enforces over its opaque
// state cell. This is the Go rendering of what AbstractQueuedSynchronizer
// does by subclassing and overriding tryAcquire/tryRelease methods: instead
// of a subclass, callers hand the Synchronizer a struct of closures.
//
// A closure must be side-effect-free on failure: if it returns false (or,
// for the shared variants, a negative value) it must not have mutated
// any externally visible state, so that a failed attempt can be retried or
// abandoned without cleanup. Closures must not call back into the same
// Synchronizer (no reentrant Acquire/Release from within a predicate) — the
// core does not guard against this, the same way AbstractQueuedSynchronizer
// does not guard against a misbehaving subclass.
//
// Any field left nil is "not supported"; calling the corresponding
// Synchronizer method panics with ErrNotImplemented.
type Predicates struct {
	// TryAcquireExclusive attempts to set the state cell to record
	// exclusive ownership. queued reports whether the caller is already
	// queued (i.e. this is not the first attempt) — a fair implementation
	// uses this to refuse to barge ahead of a queued waiter.
	TryAcquireExclusive func(queued bool, arg int32) bool

	// TryReleaseExclusive attempts to release exclusive ownership. It
	// returns true if the resource became fully free (i.e. a queued
	// waiter should now be unparked).
	TryReleaseExclusive func(arg int32) bool

	// TryAcquireShared attempts a shared acquire. A negative result means
	// failure; zero means success but no further shared acquires may
	// succeed without an intervening release; a positive result means
	// success and that another shared acquire may also succeed, which
	// triggers cascade propagation to the next queued shared waiter.
	TryAcquireShared func(queued bool, arg int32) int32

	// TryReleaseShared attempts to release a shared hold. It returns true
	// if the release may have made the resource available to waiting
	// acquirers.
	TryReleaseShared func(arg int32) bool

	// CheckConditionAccess is invoked by every Condition method to verify
	// the calling goroutine is entitled to use the condition (normally:
	// holds the Synchronizer exclusively). waiting is true when called
	// from Await* (about to give up the hold) and false when called from
	// Signal/SignalAll. A non-nil return makes the Condition method panic
	// with ErrIllegalMonitorState.
	CheckConditionAccess func(waiting bool) error
}

// Synchronizer is a FIFO wait-queue substrate for building blocking
// synchronization primitives. It owns an opaque int32 state cell and a
// lock-free queue of blocked goroutines; Predicates gives the state cell
// its meaning.
//
// A Synchronizer must not be copied after first use.
type Synchronizer struct {
	noCopy noCopy

	state atomic.Int32
	head  atomic.Pointer[node]
	tail  atomic.Pointer[node]

	pred Predicates

	nextWaiterID atomic.Int64

	id     uuid.UUID
	logger *log.Logger
}

// NewSynchronizer constructs a Synchronizer governed by p. The state cell
// starts at zero.
func NewSynchronizer(p Predicates) *Synchronizer {
	return &Synchronizer{pred: p, id: newCorrelationID()}
}

// SetLogger installs a diagnostic logger used only for Fatal-level
// invariant-violation reports (see log.go); nil restores the silent
// default. This never affects the hot path of a successful acquire or
// release.
func (s *Synchronizer) SetLogger(l *log.Logger) {
	s.logger = l
}

// State returns the current value of the state cell.
func (s *Synchronizer) State() int32 {
	return s.state.Load()
}

// SetState unconditionally overwrites the state cell. Intended for use
// before a Synchronizer is published to other goroutines (e.g. restoring
// persisted state after a process restart); concurrent use races with
// acquirers' own CompareAndSwapState calls.
func (s *Synchronizer) SetState(v int32) {
	s.state.Store(v)
}

// CompareAndSwapState atomically sets the state cell to new if it
// currently holds old, reporting whether the swap happened. Predicates
// implementations use this for every state transition.
func (s *Synchronizer) CompareAndSwapState(old, new int32) bool {
	return s.state.CompareAndSwap(old, new)
}

func (s *Synchronizer) nextID() int64 {
	return s.nextWaiterID.Add(1)
}

func (s *Synchronizer) fatalf(format string, args ...any) {
	fatalf(s.logger, s.id, format, args...)
}
