// Package qsync provides a queued synchronizer: a reusable FIFO wait-queue
// substrate for building blocking synchronization primitives, generalizing
// the approach that underlies java.util.concurrent.locks.AbstractQueuedSynchronizer
// to Go.
//
// A Synchronizer owns an opaque int32 state cell and a lock-free CLH-style
// wait queue. Callers supply the meaning of the state cell through
// Predicates — closures that decide whether an acquire attempt succeeds and
// whether a release fully frees the resource. The Synchronizer itself never
// interprets the state value; it only provides the queueing, parking, and
// interruption/timeout machinery around it.
//
// Reentrant locks, fair locks, latches, barriers, and higher-level
// collaborators are intentionally not part of this package's exported API.
// They are exercised only by this package's own tests, as thin Predicates
// tables built on top of Synchronizer.
package qsync
