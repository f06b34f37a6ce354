package qsync

import (
	"sync/atomic"
	"unsafe"
)

// noCopy may be embedded into a struct to help vet's copylocks checker find
// accidental copies. Ported from the teacher's sync/cond.go.
//
// See https://golang.org/issues/8005#issuecomment-190753527 for details.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// copyChecker holds a pointer to itself to detect object moves. A Condition
// is only safe to use from the address it was first used at, exactly like
// the teacher's sync.Cond. Ported from sync/cond.go's checker field.
type copyChecker uintptr

func (c *copyChecker) check() {
	if uintptr(*c) != uintptr(unsafe.Pointer(c)) &&
		!atomic.CompareAndSwapUintptr((*uintptr)(c), 0, uintptr(unsafe.Pointer(c))) &&
		uintptr(*c) != uintptr(unsafe.Pointer(c)) {
		panic("qsync: Condition is copied")
	}
}
