package qsync_test

import (
	"errors"

	"github.com/cohorted/qsync"
)

// These collaborators exist only to exercise Synchronizer/Condition from
// outside the package, the way a real mutex or latch would. They are not
// part of the exported API: reentrant locks, fair locks, and latches stay
// out of qsync's production surface and live here purely as test fixtures,
// built the same way the package doc for Synchronizer describes.

var errNotHeld = errors.New("qsync_test: mutex not held by caller")

// newTestMutex returns a non-reentrant exclusive synchronizer: state 0 is
// free, state 1 is held. Barging is permitted — a newly arriving goroutine
// may acquire ahead of one already queued.
func newTestMutex() *qsync.Synchronizer {
	var s *qsync.Synchronizer
	s = qsync.NewSynchronizer(qsync.Predicates{
		TryAcquireExclusive: func(queued bool, arg int32) bool {
			return s.CompareAndSwapState(0, 1)
		},
		TryReleaseExclusive: func(arg int32) bool {
			if s.State() == 0 {
				panic(errNotHeld)
			}
			s.SetState(0)
			return true
		},
		CheckConditionAccess: func(waiting bool) error {
			if s.State() != 1 {
				return errNotHeld
			}
			return nil
		},
	})
	return s
}

// newFairTestMutex is like newTestMutex (except that its release does not
// check that the mutex is held), but it refuses to barge: an acquirer that is already queued is let ahead of one arriving
// fresh, so no newly arriving goroutine can jump a queued one.
func newFairTestMutex() *qsync.Synchronizer {
	var s *qsync.Synchronizer
	s = qsync.NewSynchronizer(qsync.Predicates{
		TryAcquireExclusive: func(queued bool, arg int32) bool {
			if !queued && s.HasQueuedThreads() {
				return false
			}
			return s.CompareAndSwapState(0, 1)
		},
		TryReleaseExclusive: func(arg int32) bool {
			s.SetState(0)
			return true
		},
		CheckConditionAccess: func(waiting bool) error {
			if s.State() != 1 {
				return errNotHeld
			}
			return nil
		},
	})
	return s
}

// newReentrantTestMutex returns an exclusive synchronizer whose state is a
// hold count: a goroutine may acquire repeatedly (without parking) and
// must release the same number of times. This only exists to drive the
// condition round-trip scenario (spec §8's "reentrant-style recursion"); it
// does not track ownership identity, since Go has no safe analogue of
// Thread.currentThread() to check against.
func newReentrantTestMutex() *qsync.Synchronizer {
	var s *qsync.Synchronizer
	s = qsync.NewSynchronizer(qsync.Predicates{
		TryAcquireExclusive: func(queued bool, arg int32) bool {
			for {
				cur := s.State()
				next := arg
				if cur != 0 {
					next = cur + arg
				}
				if s.CompareAndSwapState(cur, next) {
					return true
				}
			}
		},
		TryReleaseExclusive: func(arg int32) bool {
			next := s.State() - arg
			s.SetState(next)
			return next == 0
		},
		CheckConditionAccess: func(waiting bool) error {
			if s.State() == 0 {
				return errNotHeld
			}
			return nil
		},
	})
	return s
}

// newTestBinaryLatch returns a shared synchronizer that starts closed
// (state 0) and, once opened by openBinaryLatch, lets any number of
// acquirers through without blocking ever again.
func newTestBinaryLatch() *qsync.Synchronizer {
	var s *qsync.Synchronizer
	s = qsync.NewSynchronizer(qsync.Predicates{
		TryAcquireShared: func(queued bool, arg int32) int32 {
			if s.State() != 0 {
				return 1
			}
			return -1
		},
		TryReleaseShared: func(arg int32) bool {
			return true
		},
	})
	return s
}

// openBinaryLatch flips a binary latch synchronizer open, releasing every
// blocked acquirer.
func openBinaryLatch(s *qsync.Synchronizer) {
	s.SetState(1)
	s.ReleaseShared(0)
}

// newTestCountdownLatch returns a shared synchronizer whose state starts
// at count and reaches zero after count independent decrements, at which
// point every blocked (and every future) acquirer proceeds.
func newTestCountdownLatch(count int32) *qsync.Synchronizer {
	var s *qsync.Synchronizer
	s = qsync.NewSynchronizer(qsync.Predicates{
		TryAcquireShared: func(queued bool, arg int32) int32 {
			if s.State() == 0 {
				return 1
			}
			return -1
		},
		TryReleaseShared: func(arg int32) bool {
			for {
				cur := s.State()
				if cur == 0 {
					return false
				}
				next := cur - 1
				if s.CompareAndSwapState(cur, next) {
					return next == 0
				}
			}
		},
	})
	return s
}
