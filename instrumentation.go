package qsync

// HasQueuedThreads reports whether any goroutine is currently waiting to
// acquire this Synchronizer. Best-effort: the result can be stale the
// instant it is returned, since the queue is concurrently mutated.
// Corresponds to AbstractQueuedSynchronizer.hasQueuedThreads.
func (s *Synchronizer) HasQueuedThreads() bool {
	h := s.head.Load()
	t := s.tail.Load()
	return h != t && h != nil
}

// QueueLength returns a best-effort estimate of the number of goroutines
// waiting to acquire this Synchronizer. Corresponds to
// AbstractQueuedSynchronizer.getQueueLength.
func (s *Synchronizer) QueueLength() int {
	n := 0
	for p := s.tail.Load(); p != nil; p = p.prev.Load() {
		if p.waiterID != 0 {
			n++
		}
	}
	return n
}

// QueuedWaiters returns a best-effort snapshot of the waiter IDs currently
// queued to acquire this Synchronizer, in no particular order. Corresponds
// to AbstractQueuedSynchronizer.getQueuedThreads.
func (s *Synchronizer) QueuedWaiters() []int64 {
	var ids []int64
	for p := s.tail.Load(); p != nil; p = p.prev.Load() {
		if p.waiterID != 0 {
			ids = append(ids, p.waiterID)
		}
	}
	return ids
}

// QueuedWaitersMode returns a best-effort snapshot of the waiter IDs
// currently queued in the given mode. Corresponds to
// AbstractQueuedSynchronizer.getExclusiveQueuedThreads /
// getSharedQueuedThreads.
func (s *Synchronizer) QueuedWaitersMode(m Mode) []int64 {
	var ids []int64
	for p := s.tail.Load(); p != nil; p = p.prev.Load() {
		if p.waiterID != 0 && p.mode == m {
			ids = append(ids, p.waiterID)
		}
	}
	return ids
}

// Owns reports whether c was created by this Synchronizer. Corresponds to
// AbstractQueuedSynchronizer.owns.
func (s *Synchronizer) Owns(c *Condition) bool {
	if c == nil {
		panic(ErrNilCondition)
	}
	return c.s == s
}

func (s *Synchronizer) checkOwnedCondition(c *Condition) {
	if c == nil {
		panic(ErrNilCondition)
	}
	if !s.Owns(c) {
		panic(ErrIllegalArgument)
	}
}

// HasWaiters reports whether any goroutine is waiting on c. The caller
// must hold this Synchronizer exclusively. Corresponds to
// AbstractQueuedSynchronizer.hasWaiters.
func (s *Synchronizer) HasWaiters(c *Condition) bool {
	s.checkOwnedCondition(c)
	for w := c.firstWaiter; w != nil; w = w.nextWaiter {
		if w.waitStatus.Load() == statusCondition {
			return true
		}
	}
	return false
}

// WaitQueueLength returns a best-effort estimate of the number of
// goroutines waiting on c. The caller must hold this Synchronizer
// exclusively. Corresponds to AbstractQueuedSynchronizer.getWaitQueueLength.
func (s *Synchronizer) WaitQueueLength(c *Condition) int {
	s.checkOwnedCondition(c)
	n := 0
	for w := c.firstWaiter; w != nil; w = w.nextWaiter {
		if w.waitStatus.Load() == statusCondition {
			n++
		}
	}
	return n
}

// WaitingThreads returns a best-effort snapshot of the waiter IDs
// currently waiting on c. The caller must hold this Synchronizer
// exclusively. Corresponds to AbstractQueuedSynchronizer.getWaitingThreads.
func (s *Synchronizer) WaitingThreads(c *Condition) []int64 {
	s.checkOwnedCondition(c)
	var ids []int64
	for w := c.firstWaiter; w != nil; w = w.nextWaiter {
		if w.waitStatus.Load() == statusCondition {
			ids = append(ids, w.waiterID)
		}
	}
	return ids
}
