package ddg

import (
	"errors"
	"fmt"

	"github.com/go-ddg/ddg/pkg/ir"
)

// Fatal errors (§7): the build aborts rather than recovering locally.

// ErrEmptyCallStack is returned by FindFrameByAddr when the call stack
// it was asked to search has no frames at all. This should never
// happen once a walk is underway (the entry wrapper always seeds one
// frame and Ret never pops the last one), so its appearance indicates
// an internal contract violation rather than a normal runtime
// condition.
var ErrEmptyCallStack = errors.New("ddg: call stack is empty")

// ErrSPNotConcrete is returned when the entry run's stack pointer
// cannot be concretized. Without it the stack window (§4.C) cannot be
// computed at all, so the build cannot proceed.
var ErrSPNotConcrete = errors.New("ddg: entry stack pointer is symbolic, cannot establish stack window")

// StatementIndexError reports an IR-adapter contract violation: a
// basic block statement's real ref claimed a statement index (Index)
// other than the statement's own position in the run's Len-statement
// list.
type StatementIndexError struct {
	Run   ir.RunAddr
	Index int
	Len   int
}

func (e *StatementIndexError) Error() string {
	return fmt.Sprintf("ddg: run %#x: statement index %d does not match its position in a %d-statement run", uint64(e.Run), e.Index, e.Len)
}
