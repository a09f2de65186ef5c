package ddg

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/go-ddg/ddg/pkg/config"
	"github.com/go-ddg/ddg/pkg/dlog"
	"github.com/go-ddg/ddg/pkg/ir"
)

// RunWrapper is one entry on the forward walker's pending queue (§3
// RunWrapper). It owns an independent copy of the call stack in effect
// along the path that reached it.
type RunWrapper struct {
	Run                 ir.Run
	NewState            ir.State
	CallStack           CallStack
	ReanalyzeSuccessors bool
}

// symbolicOp is one (run, ref) pair set aside for the backward
// reconciliation pass because its address could not be concretized
// (§4.E). Reference identity is the pointer identity of the concrete
// *MemRead/*MemWrite value, so two different reads of "the same"
// address at different points in the program are always distinct
// entries here.
type symbolicOp struct {
	run ir.RunAddr
	ref ir.Reference
}

// symbolicOpSet is component E: a set of (run, ref) pairs, no ordering.
type symbolicOpSet map[symbolicOp]struct{}

func (s symbolicOpSet) add(run ir.RunAddr, ref ir.Reference) {
	s[symbolicOp{run: run, ref: ref}] = struct{}{}
}

// SymbolicOp is one (run, ref) pair handed to the use-def tracer.
type SymbolicOp struct {
	Run ir.RunAddr
	Ref ir.Reference
}

// Walker is the forward CFG walk (§4.D). It populates the DDG with
// definite edges from concrete memory reads/writes and collects every
// symbolic memory reference for the backward reconciliation pass.
type Walker struct {
	graph   ir.CFG
	cfg     *config.Config
	log     *dlog.Logger
	store   *Store
	ops     symbolicOpSet
	scanned map[ir.RunAddr]int
	cache   *lru.Cache

	stackLbound, stackUbound uint64
}

// NewWalker builds a forward walker over graph, emitting edges into
// store and collecting symbolic references for the caller to reconcile
// afterwards. cfg (the tunables) and log may be nil, in which case
// config.DefaultConfig() and a disabled logger are used. A Reanalyze
// cache sized per cfg.ReanalyzeCacheSize is built once and shared
// across the whole walk (see pkg/ir.CachingRun).
func NewWalker(graph ir.CFG, cfg *config.Config, log *dlog.Logger, store *Store) *Walker {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cache, err := ir.NewReanalyzeCache(cfg.ReanalyzeCacheSize)
	if err != nil {
		cache = nil
	}
	return &Walker{
		graph:   graph,
		cfg:     cfg,
		log:     log,
		store:   store,
		ops:     make(symbolicOpSet),
		scanned: make(map[ir.RunAddr]int),
		cache:   cache,
	}
}

// SymbolicOps returns the pending symbolic references collected during
// Run, for the driver to pass to the use-def tracer (§4.G).
func (w *Walker) SymbolicOps() []SymbolicOp {
	out := make([]SymbolicOp, 0, len(w.ops))
	for op := range w.ops {
		out = append(out, SymbolicOp{Run: op.run, Ref: op.ref})
	}
	return out
}

// Scanned returns how many times a given run was popped off the
// worklist, for tests asserting the re-scan cap (§8 invariant 2).
func (w *Walker) Scanned(run ir.RunAddr) int { return w.scanned[run] }

// Run seeds the walk at entry and drives it to completion (§4.D).
// entryState is the abstract state the entry run is reached under; its
// stack pointer establishes the stack window (§4.C) before anything
// else happens. It is used only for that bound — the entry run itself
// is still reanalyzed with a nil incoming state, same as the source's
// initial_wrapper(new_state=None), since its own engine-tracked state
// is what reanalysis falls back to.
func (w *Walker) Run(entry ir.RunAddr, entryState ir.State) error {
	initial, err := w.graph.GetIRSB(entry)
	if err != nil {
		return err
	}
	if entryState == nil {
		return ErrSPNotConcrete
	}
	spVal := entryState.SPValue()
	if spVal.IsSymbolic() {
		return ErrSPNotConcrete
	}
	w.stackUbound = spVal.ConcretizeOne()
	w.stackLbound = w.stackUbound - w.cfg.StackWindowBytes

	stack := []*RunWrapper{{
		Run:       initial,
		NewState:  nil,
		CallStack: NewCallStack(&w.stackUbound),
	}}

	for len(stack) > 0 {
		wrapper := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		run := wrapper.Run
		addr := run.Addr()
		if w.scanned[addr] > w.cfg.MaxBBLAnalyzeTimes {
			w.log.Debugf("skipping %#x, already scanned %d times", uint64(addr), w.scanned[addr])
			continue
		}
		w.scanned[addr]++

		newRun, err := ir.NewCachingRun(run, w.cache).Reanalyze(wrapper.NewState)
		if err != nil {
			return err
		}

		reanalyzeSuccessors := wrapper.ReanalyzeSuccessors
		if changed, err := w.processRefs(run, newRun, wrapper.CallStack); err != nil {
			return err
		} else if changed {
			reanalyzeSuccessors = true
		}

		if err := w.expand(run, newRun, wrapper, reanalyzeSuccessors, &stack); err != nil {
			return err
		}
	}
	return nil
}

// processRefs implements the per-statement reference processing rules
// for both basic blocks and summary runs (§4.D "Reference processing").
// It returns whether any concrete write actually changed a frame's
// address map, which forces reanalysis of successors.
func (w *Walker) processRefs(oldRun, newRun ir.Run, callStack CallStack) (bool, error) {
	changed := false

	switch r := newRun.(type) {
	case *ir.BasicBlock:
		stmts := r.Statements()
		for i, stmt := range stmts {
			real, ok := stmt.RealRef()
			if !ok {
				continue
			}
			if idx := refStmtIdx(real); idx != ir.SentinelStmt && int(idx) != i {
				return changed, &StatementIndexError{Run: newRun.Addr(), Index: int(idx), Len: len(stmts)}
			}
			if mw, ok := real.(*ir.MemWrite); ok {
				c, err := w.recordWrite(oldRun.Addr(), mw, newRun.Addr(), ir.StmtIdx(i), callStack)
				if err != nil {
					return changed, err
				}
				changed = changed || c
			}
			for _, ref := range stmt.Refs {
				mr, ok := ref.(*ir.MemRead)
				if !ok {
					continue
				}
				resolved, err := w.recordRead(oldRun.Addr(), mr, newRun.Addr(), ir.StmtIdx(i), callStack)
				if err != nil {
					return changed, err
				}
				if resolved {
					// One resolved dependency per statement (§4.D).
					break
				}
			}
		}
	default:
		// Summary run: refs() with no statement boundaries, stmt_idx
		// is always the defined sentinel (§4.D, §9 "Summary-run
		// stmt_idx = -1" — never substitute a leftover loop variable).
		for _, ref := range newRun.Refs() {
			switch v := ref.(type) {
			case *ir.MemWrite:
				c, err := w.recordWrite(oldRun.Addr(), v, newRun.Addr(), ir.SentinelStmt, callStack)
				if err != nil {
					return changed, err
				}
				changed = changed || c
			case *ir.MemRead:
				if _, err := w.recordRead(oldRun.Addr(), v, newRun.Addr(), ir.SentinelStmt, callStack); err != nil {
					return changed, err
				}
			}
		}
	}
	return changed, nil
}

func (w *Walker) recordWrite(oldRunAddr ir.RunAddr, mw *ir.MemWrite, runAddr ir.RunAddr, stmt ir.StmtIdx, callStack CallStack) (bool, error) {
	if mw.Addr.IsSymbolic() {
		w.ops.add(oldRunAddr, mw)
		return false, nil
	}
	concrete := mw.Addr.ConcretizeOne()
	frame, err := FindFrameByAddr(callStack, concrete, w.stackLbound, w.stackUbound)
	if err != nil {
		return false, err
	}
	changed := frame.RecordWrite(concrete, runAddr, stmt)
	if changed {
		w.log.Debugf("memory write to %#x, run %#x, stmt %d", concrete, uint64(runAddr), stmt)
	}
	return changed, nil
}

// recordRead returns true if it resolved a concrete dependency (the
// frame had a recorded writer for the address and an edge to it was
// added) so the caller can stop scanning this statement's remaining
// reads (§4.D).
func (w *Walker) recordRead(oldRunAddr ir.RunAddr, mr *ir.MemRead, runAddr ir.RunAddr, stmt ir.StmtIdx, callStack CallStack) (bool, error) {
	if mr.Addr.IsSymbolic() {
		w.ops.add(oldRunAddr, mr)
		return false, nil
	}
	concrete := mr.Addr.ConcretizeOne()
	frame, err := FindFrameByAddr(callStack, concrete, w.stackLbound, w.stackUbound)
	if err != nil {
		return false, err
	}
	hit, ok := frame.Lookup(concrete)
	if !ok {
		return false, nil
	}
	w.log.Debugf("memory read to %#x, run %#x, stmt %d -> source (%#x, %d)", concrete, uint64(runAddr), stmt, uint64(hit.Run), hit.Stmt)
	w.store.AddEdge(runAddr, stmt, hit.Run, hit.Stmt)
	return true, nil
}

// expand applies the primary-exit jumpkind policy (§4.D, §9 "Primary-
// exit jumpkind heuristic") uniformly to every successor of run, and
// enqueues each one with its own call-stack copy.
func (w *Walker) expand(run, newRun ir.Run, wrapper *RunWrapper, reanalyzeSuccessors bool, stack *[]*RunWrapper) error {
	successors := w.graph.Successors(run)
	pendingExits := newRun.Exits()

	var primaryJumpkind ir.Jumpkind
	if len(pendingExits) > 0 {
		primaryJumpkind = pendingExits[0].Jumpkind
	}

	seenTargets := make(map[ir.RunAddr]struct{})
	for _, succ := range successors {
		succAddr := succ.Addr()

		if n, ok := w.scanned[succAddr]; ok {
			if !(reanalyzeSuccessors && n < w.cfg.MaxBBLAnalyzeTimes) {
				w.log.Debugf("skipping %#x, reanalyzeSuccessors=%v scanned=%d", uint64(succAddr), reanalyzeSuccessors, n)
				continue
			}
		}

		alreadyQueued := false
		for _, s := range *stack {
			if s.Run.Addr() == succAddr {
				alreadyQueued = true
				break
			}
		}
		if alreadyQueued {
			continue
		}

		if _, ok := seenTargets[succAddr]; ok {
			continue
		}
		seenTargets[succAddr] = struct{}{}

		var newState ir.State
		found := false
		for _, ex := range pendingExits {
			if ex.Concretize() == succAddr {
				newState = ex.State
				found = true
				break
			}
		}
		if !found {
			w.log.Warnf("run %#x: cannot find requested target %#x among its exits", uint64(run.Addr()), uint64(succAddr))
		}

		newCallStack := wrapper.CallStack.Clone()
		switch primaryJumpkind {
		case ir.JumpCall:
			if newState == nil {
				w.log.Warnf("run %#x: call to %#x has no resolved state, cannot seed new frame", uint64(run.Addr()), uint64(succAddr))
			} else {
				spVal := newState.SPValue()
				if spVal.IsSymbolic() {
					w.log.Warnf("run %#x: call to %#x has a symbolic stack pointer, cannot seed new frame", uint64(run.Addr()), uint64(succAddr))
				} else {
					newCallStack = newCallStack.Push(spVal.ConcretizeOne())
				}
			}
		case ir.JumpRet:
			if newCallStack.Depth() > 1 {
				newCallStack = newCallStack.Pop()
			} else {
				w.log.Warnf("run %#x: stack is already empty before popping (returning to %#x)", uint64(run.Addr()), uint64(succAddr))
			}
		}

		*stack = append(*stack, &RunWrapper{
			Run:                 succ,
			NewState:            newState,
			CallStack:           newCallStack,
			ReanalyzeSuccessors: reanalyzeSuccessors,
		})
		w.log.Debugf("appending successor %#x", uint64(succAddr))
	}
	return nil
}
