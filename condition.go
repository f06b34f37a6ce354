package qsync

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
)

// Condition is a condition variable scoped to one Synchronizer, built on
// the same wait-queue machinery as acquire/release. It maintains its own
// singly-linked list of waiting nodes (the "condition queue"), separate
// from the Synchronizer's sync queue; a waiter moves from one to the other
// exactly once, when it is signalled. Corresponds to
// AbstractQueuedSynchronizer.ConditionObject.
//
// A Condition must not be copied after first use.
type Condition struct {
	noCopy  noCopy
	checker copyChecker

	s *Synchronizer

	firstWaiter *node
	lastWaiter  *node

	id uuid.UUID
}

// NewCondition returns a new Condition bound to s. Every Condition method
// requires the calling goroutine to satisfy s's CheckConditionAccess
// predicate (normally: hold s exclusively) or it panics with
// ErrIllegalMonitorState.
func (s *Synchronizer) NewCondition() *Condition {
	return &Condition{s: s, id: newCorrelationID()}
}

func (c *Condition) checkAccess(waiting bool) {
	c.checker.check()
	f := c.s.pred.CheckConditionAccess
	if f == nil {
		panic(ErrNotImplemented)
	}
	if err := f(waiting); err != nil {
		panic(ErrIllegalMonitorState)
	}
}

// addConditionWaiter appends a new statusCondition node to the condition
// queue, first unlinking any already-cancelled waiters it encounters at
// the tail. Ported from ConditionObject.addConditionWaiter.
func (c *Condition) addConditionWaiter() *node {
	if t := c.lastWaiter; t != nil && t.waitStatus.Load() != statusCondition {
		c.unlinkCancelledWaiters()
	}
	n := newNode(Exclusive, c.s.nextID())
	n.waitStatus.Store(statusCondition)
	if c.lastWaiter == nil {
		c.firstWaiter = n
	} else {
		c.lastWaiter.nextWaiter = n
	}
	c.lastWaiter = n
	return n
}

// unlinkCancelledWaiters walks the whole condition queue removing nodes
// that are no longer statusCondition (they timed out or were interrupted
// before being signalled). Only ever called while the Synchronizer is held
// exclusively, so no concurrent mutation of the list is possible. Ported
// from ConditionObject.unlinkCancelledWaiters.
func (c *Condition) unlinkCancelledWaiters() {
	t := c.firstWaiter
	var trail *node
	for t != nil {
		next := t.nextWaiter
		if t.waitStatus.Load() != statusCondition {
			t.nextWaiter = nil
			if trail == nil {
				c.firstWaiter = next
			} else {
				trail.nextWaiter = next
			}
			if next == nil {
				c.lastWaiter = trail
			}
		} else {
			trail = t
		}
		t = next
	}
}

// doSignal transfers the first waiter in the condition queue to the sync
// queue, retrying against the next waiter if the transfer loses a race
// with a concurrent cancellation. Ported from ConditionObject.doSignal.
func (c *Condition) doSignal() {
	first := c.firstWaiter
	for first != nil {
		next := first.nextWaiter
		first.nextWaiter = nil
		c.firstWaiter = next
		if next == nil {
			c.lastWaiter = nil
		}
		if c.s.transferForSignal(first) {
			return
		}
		first = c.firstWaiter
	}
}

// doSignalAll transfers every waiter currently on the condition queue to
// the sync queue. Ported from ConditionObject.doSignalAll.
func (c *Condition) doSignalAll() {
	first := c.firstWaiter
	c.firstWaiter = nil
	c.lastWaiter = nil
	for first != nil {
		next := first.nextWaiter
		first.nextWaiter = nil
		c.s.transferForSignal(first)
		first = next
	}
}

// Signal moves the longest-waiting goroutine on this Condition, if any,
// from the condition queue to the sync queue, making it eligible to
// reacquire the Synchronizer. The caller must hold the Synchronizer
// exclusively.
func (c *Condition) Signal() {
	c.checkAccess(false)
	if c.firstWaiter != nil {
		c.doSignal()
	}
}

// SignalAll moves every goroutine waiting on this Condition to the sync
// queue. The caller must hold the Synchronizer exclusively.
func (c *Condition) SignalAll() {
	c.checkAccess(false)
	if c.firstWaiter != nil {
		c.doSignalAll()
	}
}

// transferForSignal moves n from the condition queue to the sync queue by
// CAS-ing its waitStatus from statusCondition to statusInit. If the CAS
// fails, n was already cancelled (it raced ahead and cancelled itself)
// and this call is a no-op reporting failure. Ported from
// AbstractQueuedSynchronizer.transferForSignal.
func (s *Synchronizer) transferForSignal(n *node) bool {
	if !n.waitStatus.CompareAndSwap(statusCondition, statusInit) {
		return false
	}
	pred := s.enqAcquire(n)
	predStatus := pred.waitStatus.Load()
	if predStatus > 0 || !pred.waitStatus.CompareAndSwap(predStatus, statusSignal) {
		if n.p != nil {
			n.p.unpark()
		}
	}
	return true
}

// transferAfterCancelledWait handles the race between a waiter's own
// cancellation (ctx done, or timeout) and a concurrent Signal that already
// started transferring it. It returns true if this goroutine's
// cancellation won the race (the caller should report the cancellation
// error); false means a signal got there first (the caller must treat this
// as an ordinary wakeup, dropping the cancellation). Ported from
// AbstractQueuedSynchronizer.transferAfterCancelledWait — this is the
// "never both, never neither" guarantee.
func (s *Synchronizer) transferAfterCancelledWait(n *node) bool {
	if n.waitStatus.CompareAndSwap(statusCondition, statusInit) {
		s.enqAcquire(n)
		return true
	}
	// A signal already moved n off the condition queue and onto the sync
	// queue (or is in the process of doing so). Spin until that enqueue is
	// visible — the only permitted spin in this design, bounded by a
	// concurrent goroutine completing two CAS instructions.
	for !s.isOnSyncQueue(n) {
		runtime.Gosched()
	}
	return false
}

func (s *Synchronizer) isOnSyncQueue(n *node) bool {
	if n.waitStatus.Load() == statusCondition || n.prev.Load() == nil {
		return false
	}
	if n.next.Load() != nil {
		return true
	}
	return s.findNodeFromTail(n)
}

func (s *Synchronizer) findNodeFromTail(n *node) bool {
	for t := s.tail.Load(); t != nil; t = t.prev.Load() {
		if t == n {
			return true
		}
	}
	return false
}

// fullyRelease releases the Synchronizer's current hold entirely (saving
// the state value so it can be restored on reacquire) and returns the
// saved state. Ported from AbstractQueuedSynchronizer.fullyRelease.
func (s *Synchronizer) fullyRelease() int32 {
	saved := s.State()
	if !s.tryReleaseExclusiveAndUnpark(saved) {
		panic(ErrIllegalMonitorState)
	}
	return saved
}

// reacquireAfterWait reacquires the Synchronizer exclusively with arg,
// uninterruptibly, once a waiter has been transferred onto the sync queue.
// Awaiting interruption/timeout is resolved before this point; reacquiring
// the lock itself is always uninterruptible, exactly like
// AbstractQueuedSynchronizer.acquireQueued's own contract.
func (s *Synchronizer) reacquireAfterWait(n *node, arg int32) {
	failed := true
	defer func() {
		if failed {
			s.cancelAcquire(n)
		}
	}()
	for {
		p := n.prev.Load()
		if p == s.head.Load() && s.withPanicGuard(n, func() bool { return s.tryAcquireExclusive(true, arg) }) {
			s.setHead(n)
			failed = false
			return
		}
		if s.shouldParkAfterFailedAcquire(p, n) {
			n.p.parkUninterruptible()
		}
	}
}

// Await releases the Synchronizer and blocks until Signal/SignalAll moves
// this goroutine back onto the sync queue and it reacquires the hold, or
// ctx is done first. The caller must hold the Synchronizer exclusively;
// by the time Await returns (with or without error) the hold has always
// been reacquired with its pre-wait state value restored.
//
// Await reports ctx's error if and only if this goroutine's own
// cancellation won the race against a concurrent Signal — it is never
// reported if a signal reached this waiter first, even if ctx later shows
// as done. This is the "never both, never neither" property.
func (c *Condition) Await(ctx context.Context) error {
	c.checkAccess(true)
	if err := ctx.Err(); err != nil {
		return err
	}
	n := c.addConditionWaiter()
	saved := c.s.fullyRelease()

	var waitErr error
	for !c.s.isOnSyncQueue(n) {
		err := n.p.parkInterruptible(ctx)
		if err != nil {
			if c.s.transferAfterCancelledWait(n) {
				waitErr = err
			}
			break
		}
	}
	c.s.reacquireAfterWait(n, saved)
	if n.nextWaiter != nil {
		c.unlinkCancelledWaiters()
	}
	return waitErr
}

// AwaitUninterruptibly is Await without any cancellation path: it blocks
// until signalled, ignoring ctx entirely.
func (c *Condition) AwaitUninterruptibly() {
	c.checkAccess(true)
	n := c.addConditionWaiter()
	saved := c.s.fullyRelease()
	for !c.s.isOnSyncQueue(n) {
		n.p.parkUninterruptible()
	}
	c.s.reacquireAfterWait(n, saved)
	if n.nextWaiter != nil {
		c.unlinkCancelledWaiters()
	}
}

// AwaitNanos behaves like Await but also returns early once d elapses. It
// returns the approximate time remaining when it returned (negative or
// zero means the deadline was reached) and the same error semantics as
// Await for ctx cancellation. Corresponds to
// AbstractQueuedSynchronizer.ConditionObject.awaitNanos.
func (c *Condition) AwaitNanos(ctx context.Context, d time.Duration) (time.Duration, error) {
	c.checkAccess(true)
	if err := ctx.Err(); err != nil {
		return d, err
	}
	deadline := time.Now().Add(d)
	n := c.addConditionWaiter()
	saved := c.s.fullyRelease()

	var waitErr error
	for !c.s.isOnSyncQueue(n) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.s.transferAfterCancelledWait(n)
			break
		}
		ok, err := n.p.parkTimed(ctx, remaining)
		if err != nil {
			if c.s.transferAfterCancelledWait(n) {
				waitErr = err
			}
			break
		}
		if !ok && time.Until(deadline) <= 0 {
			c.s.transferAfterCancelledWait(n)
			break
		}
	}
	c.s.reacquireAfterWait(n, saved)
	if n.nextWaiter != nil {
		c.unlinkCancelledWaiters()
	}
	return time.Until(deadline), waitErr
}

// AwaitUntil behaves like Await but also returns early once the wall-clock
// deadline passes. It reports false if the deadline was reached without a
// signal. Corresponds to
// AbstractQueuedSynchronizer.ConditionObject.awaitUntil.
func (c *Condition) AwaitUntil(ctx context.Context, deadline time.Time) (bool, error) {
	remaining, err := c.AwaitNanos(ctx, time.Until(deadline))
	return remaining > 0, err
}
