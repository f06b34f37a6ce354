package qsync

import "errors"

// Sentinel errors describing programmer misuse of a Synchronizer or
// Condition. These are never returned from an exported method; they are
// always attached to a panic, mirroring how the teacher's sync package
// panics on misuse (unlock of an unlocked mutex, reuse of a WaitGroup)
// rather than threading an error return through every call.
var (
	// ErrNotImplemented is panicked when a caller invokes an acquire or
	// release mode whose corresponding Predicates field was left nil.
	ErrNotImplemented = errors.New("qsync: predicate not implemented")

	// ErrIllegalMonitorState is panicked by Condition methods when the
	// calling goroutine does not hold the associated Synchronizer in
	// exclusive mode, per CheckConditionAccess.
	ErrIllegalMonitorState = errors.New("qsync: illegal monitor state")

	// ErrIllegalArgument is panicked by instrumentation methods given a
	// Condition that was not created by the receiving Synchronizer.
	ErrIllegalArgument = errors.New("qsync: condition does not belong to this synchronizer")

	// ErrNilCondition is panicked when a nil *Condition is passed to an
	// instrumentation method that requires one.
	ErrNilCondition = errors.New("qsync: nil condition")

	// ErrQueueCorrupted is panicked, after a Fatal-level log line, when the
	// wait queue is found to violate an invariant the algorithm assumes can
	// never break. Reaching this means a bug in qsync itself, not caller
	// misuse, and there is no safe way to keep the queue running.
	ErrQueueCorrupted = errors.New("qsync: wait queue invariant violated")
)
