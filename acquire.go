package qsync

import (
	"context"
	"time"
)

func (s *Synchronizer) tryAcquireExclusive(queued bool, arg int32) bool {
	f := s.pred.TryAcquireExclusive
	if f == nil {
		panic(ErrNotImplemented)
	}
	return f(queued, arg)
}

func (s *Synchronizer) tryAcquireShared(queued bool, arg int32) int32 {
	f := s.pred.TryAcquireShared
	if f == nil {
		panic(ErrNotImplemented)
	}
	return f(queued, arg)
}

// withPanicGuard runs try and, if it panics, cancels n (unparking its
// successor so the queue stays live) before letting the panic continue to
// propagate. This is the translation of spec's "a user predicate that
// throws: cancel the node and propagate the exception."
func (s *Synchronizer) withPanicGuard(n *node, try func() bool) (ok bool) {
	succeeded := false
	defer func() {
		if !succeeded {
			if r := recover(); r != nil {
				s.cancelAcquire(n)
				panic(r)
			}
		}
	}()
	ok = try()
	succeeded = true
	return ok
}

// AcquireExclusive blocks until an exclusive acquire succeeds, ignoring
// any cancellation signal. It corresponds to
// AbstractQueuedSynchronizer.acquire.
func (s *Synchronizer) AcquireExclusive(arg int32) {
	if s.withPanicGuard(nil, func() bool { return s.tryAcquireExclusive(false, arg) }) {
		return
	}
	s.doAcquireExclusiveUninterruptibly(arg)
}

func (s *Synchronizer) doAcquireExclusiveUninterruptibly(arg int32) {
	n := newNode(Exclusive, s.nextID())
	s.enqAcquire(n)
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

// AcquireExclusiveInterruptibly blocks until an exclusive acquire succeeds
// or ctx is done, whichever happens first. It corresponds to
// AbstractQueuedSynchronizer.acquireInterruptibly.
func (s *Synchronizer) AcquireExclusiveInterruptibly(ctx context.Context, arg int32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.withPanicGuard(nil, func() bool { return s.tryAcquireExclusive(false, arg) }) {
		return nil
	}
	return s.doAcquireExclusiveInterruptibly(ctx, arg)
}

func (s *Synchronizer) doAcquireExclusiveInterruptibly(ctx context.Context, arg int32) error {
	n := newNode(Exclusive, s.nextID())
	s.enqAcquire(n)
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
			return nil
		}
		if s.shouldParkAfterFailedAcquire(p, n) {
			if err := n.p.parkInterruptible(ctx); err != nil {
				return err
			}
		}
	}
}

// AcquireExclusiveTimed blocks until an exclusive acquire succeeds, ctx is
// done, or timeout elapses. acquired is true only in the first case.
// Corresponds to AbstractQueuedSynchronizer.tryAcquireNanos.
func (s *Synchronizer) AcquireExclusiveTimed(ctx context.Context, arg int32, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.withPanicGuard(nil, func() bool { return s.tryAcquireExclusive(false, arg) }) {
		return true, nil
	}
	if timeout <= 0 {
		return false, nil
	}
	return s.doAcquireExclusiveTimed(ctx, arg, timeout)
}

func (s *Synchronizer) doAcquireExclusiveTimed(ctx context.Context, arg int32, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	n := newNode(Exclusive, s.nextID())
	s.enqAcquire(n)
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
			return true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		if s.shouldParkAfterFailedAcquire(p, n) {
			ok, err := n.p.parkTimed(ctx, remaining)
			if err != nil {
				return false, err
			}
			if !ok && time.Until(deadline) <= 0 {
				return false, nil
			}
		}
	}
}

// AcquireShared blocks until a shared acquire succeeds, ignoring any
// cancellation signal. Corresponds to
// AbstractQueuedSynchronizer.acquireShared.
func (s *Synchronizer) AcquireShared(arg int32) {
	if r := s.withPanicGuardShared(nil, func() int32 { return s.tryAcquireShared(false, arg) }); r >= 0 {
		return
	}
	s.doAcquireSharedUninterruptibly(arg)
}

func (s *Synchronizer) withPanicGuardShared(n *node, try func() int32) (r int32) {
	succeeded := false
	defer func() {
		if !succeeded {
			if rec := recover(); rec != nil {
				s.cancelAcquire(n)
				panic(rec)
			}
		}
	}()
	r = try()
	succeeded = true
	return r
}

func (s *Synchronizer) doAcquireSharedUninterruptibly(arg int32) {
	n := newNode(Shared, s.nextID())
	s.enqAcquire(n)
	failed := true
	defer func() {
		if failed {
			s.cancelAcquire(n)
		}
	}()
	for {
		p := n.prev.Load()
		if p == s.head.Load() {
			r := s.withPanicGuardShared(n, func() int32 { return s.tryAcquireShared(true, arg) })
			if r >= 0 {
				s.setHeadAndPropagate(n, r)
				failed = false
				return
			}
		}
		if s.shouldParkAfterFailedAcquire(p, n) {
			n.p.parkUninterruptible()
		}
	}
}

// AcquireSharedInterruptibly blocks until a shared acquire succeeds or ctx
// is done, whichever happens first.
func (s *Synchronizer) AcquireSharedInterruptibly(ctx context.Context, arg int32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r := s.withPanicGuardShared(nil, func() int32 { return s.tryAcquireShared(false, arg) }); r >= 0 {
		return nil
	}
	return s.doAcquireSharedInterruptibly(ctx, arg)
}

func (s *Synchronizer) doAcquireSharedInterruptibly(ctx context.Context, arg int32) error {
	n := newNode(Shared, s.nextID())
	s.enqAcquire(n)
	failed := true
	defer func() {
		if failed {
			s.cancelAcquire(n)
		}
	}()
	for {
		p := n.prev.Load()
		if p == s.head.Load() {
			r := s.withPanicGuardShared(n, func() int32 { return s.tryAcquireShared(true, arg) })
			if r >= 0 {
				s.setHeadAndPropagate(n, r)
				failed = false
				return nil
			}
		}
		if s.shouldParkAfterFailedAcquire(p, n) {
			if err := n.p.parkInterruptible(ctx); err != nil {
				return err
			}
		}
	}
}

// AcquireSharedTimed blocks until a shared acquire succeeds, ctx is done,
// or timeout elapses.
func (s *Synchronizer) AcquireSharedTimed(ctx context.Context, arg int32, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if r := s.withPanicGuardShared(nil, func() int32 { return s.tryAcquireShared(false, arg) }); r >= 0 {
		return true, nil
	}
	if timeout <= 0 {
		return false, nil
	}
	return s.doAcquireSharedTimed(ctx, arg, timeout)
}

func (s *Synchronizer) doAcquireSharedTimed(ctx context.Context, arg int32, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	n := newNode(Shared, s.nextID())
	s.enqAcquire(n)
	failed := true
	defer func() {
		if failed {
			s.cancelAcquire(n)
		}
	}()
	for {
		p := n.prev.Load()
		if p == s.head.Load() {
			r := s.withPanicGuardShared(n, func() int32 { return s.tryAcquireShared(true, arg) })
			if r >= 0 {
				s.setHeadAndPropagate(n, r)
				failed = false
				return true, nil
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		if s.shouldParkAfterFailedAcquire(p, n) {
			ok, err := n.p.parkTimed(ctx, remaining)
			if err != nil {
				return false, err
			}
			if !ok && time.Until(deadline) <= 0 {
				return false, nil
			}
		}
	}
}

// setHeadAndPropagate installs n as the new head and, if propagate
// indicates another shared acquire may also succeed (a positive
// tryAcquireShared result) or the old head was nil or still had a negative
// waitStatus, and the new head's successor is unknown (nil) or itself a
// shared waiter, unparks that successor so shared acquires cascade without
// each one needing to independently contend for the head position. Ported from
// AbstractQueuedSynchronizer.setHeadAndPropagate.
func (s *Synchronizer) setHeadAndPropagate(n *node, propagate int32) {
	old := s.head.Load()
	s.setHead(n)
	if propagate > 0 || old == nil || old.waitStatus.Load() < 0 {
		succ := n.next.Load()
		if succ == nil || succ.isShared() {
			s.unparkSuccessor(n)
		}
	}
}
