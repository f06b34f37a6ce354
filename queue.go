package qsync

import "runtime"

// maxQueueSpin bounds the CAS retry loops below. Every one of them is
// guaranteed to make progress as soon as the goroutine it's racing against
// completes one or two more instructions, so a real run never gets close to
// this bound; exceeding it means the queue's linked structure itself is
// broken, not that the goroutine lost an unlucky number of races.
const maxQueueSpin = 1 << 20

// enq lazily initializes the queue with a sentinel head/tail node on first
// use, then CAS-appends n as the new tail, returning n's predecessor. This
// is a direct port of AbstractQueuedSynchronizer.enq: the sentinel ensures
// head is never nil once any node is queued, so every other queue operation
// can assume head exists.
func (s *Synchronizer) enq(n *node) *node {
	for spin := 0; ; spin++ {
		if spin > maxQueueSpin {
			s.fatalf("enq: exceeded %d retries appending a node onto the sync queue", maxQueueSpin)
			panic(ErrQueueCorrupted)
		}
		t := s.tail.Load()
		if t == nil {
			// Lazily install a sentinel. Losing the race just means
			// another goroutine installed it first; retry.
			sentinel := &node{}
			if s.head.CompareAndSwap(nil, sentinel) {
				s.tail.Store(sentinel)
			} else {
				runtime.Gosched()
			}
			continue
		}
		n.prev.Store(t)
		if s.tail.CompareAndSwap(t, n) {
			t.next.Store(n)
			return t
		}
		runtime.Gosched()
	}
}

// enqAcquire appends n to the sync queue, installing the sentinel head if
// necessary, and returns n's predecessor at the moment of linking. The
// acquire paths ignore the result; transferForSignal uses it to mark the
// predecessor SIGNAL.
func (s *Synchronizer) enqAcquire(n *node) *node {
	// Fast path: queue already initialized, try one CAS before falling
	// into the general retry loop in enq.
	if t := s.tail.Load(); t != nil {
		n.prev.Store(t)
		if s.tail.CompareAndSwap(t, n) {
			t.next.Store(n)
			return t
		}
	}
	return s.enq(n)
}

// setHead installs n as the new sentinel head after n has successfully
// acquired. n's waiterID and parker handle are cleared: a head node
// represents "the resource, not a waiting goroutine" from this point on.
//
// Every caller has just observed n.prev == head before winning the acquire,
// so that must still hold here: only one goroutine can ever be positioned
// to install the node immediately after the current head. If it doesn't,
// the queue has been corrupted by a bug elsewhere in this package.
func (s *Synchronizer) setHead(n *node) {
	if pred := n.prev.Load(); pred != nil && pred != s.head.Load() {
		s.fatalf("setHead: node's predecessor does not match the observed head")
		panic(ErrQueueCorrupted)
	}
	s.head.Store(n)
	n.waiterID = 0
	n.p = nil
	n.prev.Store(nil)
}

// findSuccessorFromTail returns n's successor in the sync queue, tolerant
// of a concurrent enqueue still linking next pointers forward. If the
// forward link from n appears nil or cancelled, it scans backward from the
// tail instead — this is the exact double-linked-list quirk
// AbstractQueuedSynchronizer.unparkSuccessor documents: next-pointer writes
// can lag behind a completed CAS onto tail.
func (s *Synchronizer) findSuccessorFromTail(n *node) *node {
	succ := n.next.Load()
	if succ == nil || succ.waitStatus.Load() == statusCancelled {
		succ = nil
		for t := s.tail.Load(); t != nil && t != n; t = t.prev.Load() {
			if t.waitStatus.Load() != statusCancelled {
				succ = t
			}
		}
	}
	return succ
}

// shouldParkAfterFailedAcquire implements the three-case rule from
// AbstractQueuedSynchronizer.shouldParkAfterFailedAcquire: after a failed
// acquire attempt, decide whether the caller should now park, based on its
// predecessor's waitStatus.
//
//   - SIGNAL: the predecessor has already promised to unpark us. Safe to
//     park.
//   - CANCELLED (> 0): skip over cancelled predecessors until a live one is
//     found, splicing them out of the queue.
//   - 0 or CONDITION: no promise has been made yet. CAS the predecessor to
//     SIGNAL and let the caller retry the acquire once before parking —
//     parking now could miss a release that already happened.
func (s *Synchronizer) shouldParkAfterFailedAcquire(pred, n *node) bool {
	status := pred.waitStatus.Load()
	if status == statusSignal {
		return true
	}
	if status > 0 {
		for {
			status = pred.waitStatus.Load()
			if status <= 0 {
				break
			}
			pred = pred.prev.Load()
			n.prev.Store(pred)
		}
		pred.next.Store(n)
		return false
	}
	pred.waitStatus.CompareAndSwap(status, statusSignal)
	return false
}

// cancelAcquire marks n cancelled and unlinks it from the sync queue as
// cleanly as a lock-free structure allows, then unparks n's successor so
// it doesn't wait forever on a predecessor that will never release. Ported
// from AbstractQueuedSynchronizer.cancelAcquire.
func (s *Synchronizer) cancelAcquire(n *node) {
	if n == nil {
		return
	}
	n.p = nil
	n.waiterID = 0
	n.waitStatus.Store(statusCancelled)

	pred := n.prev.Load()
	for spin := 0; pred != nil && pred.waitStatus.Load() > 0; spin++ {
		if spin > maxQueueSpin {
			s.fatalf("cancelAcquire: exceeded %d retries walking past cancelled predecessors", maxQueueSpin)
			panic(ErrQueueCorrupted)
		}
		pred = pred.prev.Load()
	}
	predNext := pred.next.Load()

	if n == s.tail.Load() && s.tail.CompareAndSwap(n, pred) {
		pred.next.CompareAndSwap(predNext, nil)
		return
	}

	// If pred isn't head and can take the SIGNAL duty, splice n out by
	// pointing pred at n's successor directly. pred's status here is
	// SIGNAL or 0 (never CONDITION: that only applies to condition-queue
	// nodes), so the CAS only ever needs to accept 0 as its starting value.
	predStatus := pred.waitStatus.Load()
	if pred != s.head.Load() &&
		(predStatus == statusSignal ||
			(predStatus == statusInit && pred.waitStatus.CompareAndSwap(statusInit, statusSignal))) &&
		pred.p != nil {
		if next := n.next.Load(); next != nil && next.waitStatus.Load() <= 0 {
			pred.next.CompareAndSwap(predNext, next)
		}
	} else {
		s.unparkSuccessor(n)
	}
}

// unparkSuccessor wakes n's nearest live successor, if any. Ported from
// AbstractQueuedSynchronizer.unparkSuccessor.
func (s *Synchronizer) unparkSuccessor(n *node) {
	status := n.waitStatus.Load()
	if status < 0 {
		n.waitStatus.CompareAndSwap(status, statusInit)
	}
	succ := s.findSuccessorFromTail(n)
	if succ != nil && succ.p != nil {
		succ.p.unpark()
	}
}
