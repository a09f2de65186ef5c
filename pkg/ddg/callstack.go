package ddg

// This code is adapted from the call-frame tracking in delve's
// pkg/proc/stack.go: a Stackframe there owns the registers and
// location for one frame of a real process's stack; a StackFrame here
// owns the concrete-address map for one frame of a simulated call
// stack, since this core has no live process to unwind and instead
// infers frame boundaries from Call/Ret jumpkinds (§4.C).

import (
	"golang.org/x/exp/slices"

	"github.com/go-ddg/ddg/pkg/ir"
)

// RunStmt names the statement that last wrote a concrete address:
// component B's "(run, statement index)" pair.
type RunStmt struct {
	Run  ir.RunAddr
	Stmt ir.StmtIdx
}

// StackFrame is the concrete address map for one call frame (§4.B,
// §3 StackFrame). InitialSP may be nil for the outermost frame (the
// walker seeds it with the entry stack pointer instead). The outermost
// frame captures every non-stack address (globals, and anything that
// falls outside every other frame's window).
type StackFrame struct {
	InitialSP *uint64
	AddrToRef map[uint64]RunStmt
}

// NewStackFrame builds a frame. initialSP may be nil for the outermost
// frame.
func NewStackFrame(initialSP *uint64) *StackFrame {
	return &StackFrame{InitialSP: initialSP, AddrToRef: make(map[uint64]RunStmt)}
}

// RecordWrite sets the last writer of addr within this frame and
// reports whether the value actually changed — the forward walker uses
// this to decide whether downstream runs need re-analysis (§4.D).
func (f *StackFrame) RecordWrite(addr uint64, run ir.RunAddr, stmt ir.StmtIdx) bool {
	next := RunStmt{Run: run, Stmt: stmt}
	if cur, ok := f.AddrToRef[addr]; ok && cur == next {
		return false
	}
	f.AddrToRef[addr] = next
	return true
}

// Lookup returns the last writer of addr within this frame, if any.
func (f *StackFrame) Lookup(addr uint64) (RunStmt, bool) {
	rs, ok := f.AddrToRef[addr]
	return rs, ok
}

// clone deep-copies the frame: each RunWrapper needs a fully
// independent address map, since RecordWrite mutates it (§5: "Each
// RunWrapper owns an independent deep copy of its call stack, so frame
// mutations during analysis cannot race across queued wrappers").
func (f *StackFrame) clone() *StackFrame {
	cp := &StackFrame{InitialSP: f.InitialSP, AddrToRef: make(map[uint64]RunStmt, len(f.AddrToRef))}
	for k, v := range f.AddrToRef {
		cp.AddrToRef[k] = v
	}
	return cp
}

// CallStack is the ordered outermost→innermost stack of frames
// tracked while walking one path through the CFG (§3 invariant: frames
// are ordered outermost→innermost with InitialSP non-increasing).
type CallStack []*StackFrame

// NewCallStack returns a call stack with a single outermost frame.
func NewCallStack(outermostSP *uint64) CallStack {
	return CallStack{NewStackFrame(outermostSP)}
}

// Clone returns an independent copy suitable for handing to a new
// RunWrapper on the worklist. Design note §9 points out that deep
// copying on every successor push is wasteful and a persistent,
// path-copied stack (shared tail, copy-on-write head) would be a
// drop-in improvement; this clones the slice header cheaply with
// slices.Clone and only deep-copies the frames, which is the
// correctness-preserving half of that idea without committing to full
// structural sharing.
func (cs CallStack) Clone() CallStack {
	cp := slices.Clone(cs)
	for i, f := range cp {
		cp[i] = f.clone()
	}
	return cp
}

// Push appends a new innermost frame with the given initial stack
// pointer, as a Call jumpkind requires (§4.D).
func (cs CallStack) Push(initialSP uint64) CallStack {
	return append(cs, NewStackFrame(&initialSP))
}

// Pop removes the innermost frame. The caller must check Depth() > 1
// first — popping the outermost frame is the "stack already empty"
// warn-and-continue case (§7).
func (cs CallStack) Pop() CallStack {
	return cs[:len(cs)-1]
}

// Depth reports the number of live frames.
func (cs CallStack) Depth() int { return len(cs) }

// FindFrameByAddr implements component C: addresses outside
// [lbound,ubound] always resolve to the outermost frame (globals and
// anything else that isn't part of the tracked stack window);
// addresses inside the window resolve to the innermost frame whose
// InitialSP is still strictly greater than addr, matching a
// downward-growing stack.
func FindFrameByAddr(cs CallStack, addr, lbound, ubound uint64) (*StackFrame, error) {
	if len(cs) == 0 {
		return nil, ErrEmptyCallStack
	}
	if addr < lbound || addr > ubound {
		return cs[0], nil
	}
	for i := len(cs) - 1; i >= 0; i-- {
		fr := cs[i]
		if fr.InitialSP == nil || addr < *fr.InitialSP {
			return fr, nil
		}
	}
	return cs[0], nil
}
