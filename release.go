package qsync

// ReleaseExclusive releases an exclusive hold. If the predicate reports the
// resource is now fully free, the nearest live successor in the sync queue
// is unparked. Corresponds to AbstractQueuedSynchronizer.release.
func (s *Synchronizer) ReleaseExclusive(arg int32) {
	s.tryReleaseExclusiveAndUnpark(arg)
}

// tryReleaseExclusiveAndUnpark is the shared body of ReleaseExclusive and
// fullyRelease (condition.go): invoke the predicate, and if it reports the
// resource fully free, unpark the nearest live successor.
func (s *Synchronizer) tryReleaseExclusiveAndUnpark(arg int32) bool {
	f := s.pred.TryReleaseExclusive
	if f == nil {
		panic(ErrNotImplemented)
	}
	ok := f(arg)
	if ok {
		if h := s.head.Load(); h != nil && h.waitStatus.Load() != statusInit {
			s.unparkSuccessor(h)
		}
	}
	return ok
}

// ReleaseShared releases a shared hold. If the predicate reports the
// release may have made the resource available, the nearest live
// successor is unparked; shared acquirers further down the queue cascade
// via setHeadAndPropagate once that successor itself acquires.
// Corresponds to AbstractQueuedSynchronizer.releaseShared.
func (s *Synchronizer) ReleaseShared(arg int32) {
	f := s.pred.TryReleaseShared
	if f == nil {
		panic(ErrNotImplemented)
	}
	if f(arg) {
		s.doReleaseShared()
	}
}

func (s *Synchronizer) doReleaseShared() {
	h := s.head.Load()
	if h == nil {
		return
	}
	if h.waitStatus.Load() == statusSignal && h.waitStatus.CompareAndSwap(statusSignal, statusInit) {
		s.unparkSuccessor(h)
	}
}
