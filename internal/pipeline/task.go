// Package pipeline implements the request execution pipeline (C9): the
// RX/VPROC/SIO/TX stage workers, the task state machine, the
// pending-set cooperative-suspension mechanism, and the BOOT/ACTIVE/
// DRAIN/TERM drain protocol layered over a super.Superblock.
package pipeline

import (
	"github.com/corefs-project/corefs/internal/vaddr"
)

// State is a task's position in the NEW -> ... -> DONE state machine.
type State int

const (
	StateNew State = iota
	StateParsed
	StateExecReq
	StateExecRes
	StateFiniReq
	StateFiniRes
	StateDone
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateParsed:
		return "PARSED"
	case StateExecReq:
		return "EXEC_REQ"
	case StateExecRes:
		return "EXEC_RES"
	case StateFiniReq:
		return "FINI_REQ"
	case StateFiniRes:
		return "FINI_RES"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Result is what a VPROC handler returns after one execution attempt.
type Result struct {
	// Done is true when the handler produced a final reply.
	Done bool
	// Awaiting lists the blocks the handler suspended on; non-empty only
	// when Done is false (§5 "WOULD_BLOCK_ON(blocks)"). Every VA here
	// must have a matching entry in Jobs, so the SIO stage knows how to
	// actually resolve it.
	Awaiting []vaddr.VA
	// Jobs carries the I/O needed to resolve each VA in Awaiting. The
	// handler supplies the Do closure (typically a storage.Engine.Load
	// or .Store call); VPROC only wires up completion routing.
	Jobs []BlockJob
	// Reply is the encoded response, valid when Done is true.
	Reply any
	// Err is set when the handler failed outright (not suspended).
	Err error
}

// Handler runs one VPROC execution attempt for a task. It must be
// idempotent across re-entry: on re-entry after a suspend, previously
// resolved blocks are already cached, so the handler simply continues
// from where the cache says it left off (§4.9).
type Handler func(t *Task) Result

// Task is one in-flight request moving through RX -> VPROC -> SIO* ->
// TX. Ino orders same-inode tasks through the single VPROC worker (§4.9
// "Tasks addressed to the same inode are processed in arrival order").
type Task struct {
	ID      uint64
	Ino     vaddr.VA
	State   State
	Request any
	Handle  Handler
	Reply   any
	Err     error
}
