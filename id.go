package qsync

import "github.com/google/uuid"

// newCorrelationID returns a tag used only for log correlation, never on
// the acquire/release hot path. Synchronizer and Condition each get one at
// construction time so that Fatal diagnostics (see log.go) can be traced
// back to a specific instance across a process's lifetime.
func newCorrelationID() uuid.UUID {
	return uuid.New()
}
