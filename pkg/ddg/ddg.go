// Package ddg builds a Data Dependence Graph over a previously computed
// control flow graph of simulated runs: it links every memory read to
// the memory write(s) that may have produced the value it observed.
//
// Construct runs the two-pass engine described in the spec: a forward
// walk (Walker, §4.D) that resolves concrete memory dependencies and
// collects symbolic ones, followed by a backward use-def reconciliation
// (Tracer, §4.F/§4.G) that over-approximates dependencies between
// memory operations whose addresses could not be concretized.
package ddg

import (
	"github.com/go-ddg/ddg/pkg/config"
	"github.com/go-ddg/ddg/pkg/dlog"
	"github.com/go-ddg/ddg/pkg/ir"
)

// Construct builds the DDG for the CFG rooted at entry. entryState is
// the abstract state the entry run is reached under (its stack pointer
// establishes the stack window, §4.C); concretizing it must succeed or
// Construct returns ErrSPNotConcrete (§7, fatal). cfg and loggers may be
// nil, in which case config.DefaultConfig() and a disabled logger are
// used respectively. The DDG is always returned on success, even if
// individual recoverable conditions (§7) were logged along the way;
// only the fatal conditions listed in §7 make Construct return an
// error.
func Construct(graph ir.CFG, entry ir.RunAddr, entryState ir.State, cfg *config.Config, loggers *dlog.Loggers) (*Store, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	var walkerLog, tracerLog *dlog.Logger
	if loggers != nil {
		walkerLog = loggers.Walker()
		tracerLog = loggers.Tracer()
	}

	store := NewStore()
	walker := NewWalker(graph, cfg, walkerLog, store)
	if err := walker.Run(entry, entryState); err != nil {
		return nil, err
	}

	reconcile(graph, tracerLog, store, walker.SymbolicOps())
	return store, nil
}

// reconcile implements component G's symbolic reconciliation: trace
// every symbolic memory reference back to its root producers, then link
// every read and write that share a root producer (§4.G). This is
// intentionally over-approximating — reads and writes whose pointers
// share any root producer are linked independently of path feasibility.
func reconcile(graph ir.CFG, log *dlog.Logger, store *Store, ops []SymbolicOp) {
	tracer := NewTracer(graph, log)

	readProducers := make(map[Writer][]SymbolicOp)
	writeProducers := make(map[Writer][]SymbolicOp)

	for _, op := range ops {
		run := lookupRun(graph, op.Run)
		if run == nil {
			continue
		}
		sources := tracer.Trace(run, op.Ref)
		for src := range sources {
			switch op.Ref.(type) {
			case *ir.MemRead:
				readProducers[src] = append(readProducers[src], op)
			case *ir.MemWrite:
				writeProducers[src] = append(writeProducers[src], op)
			}
		}
	}

	for src, writes := range writeProducers {
		reads, ok := readProducers[src]
		if !ok {
			continue
		}
		for _, read := range reads {
			readRef := read.Ref.(*ir.MemRead)
			for _, write := range writes {
				writeRef := write.Ref.(*ir.MemWrite)
				store.AddEdge(read.Run, readRef.StmtIdx, write.Run, writeRef.StmtIdx)
			}
		}
	}
}

// lookupRun re-fetches the Run object for a symbolic op's run
// address. The forward walker only stored the address in its symbolic
// op set (the DDG itself is keyed by address throughout, §3), so the
// tracer's CFG-based predecessor walk starts from the CFG's own node
// for that address rather than a stale pointer captured mid-walk.
func lookupRun(graph ir.CFG, addr ir.RunAddr) ir.Run {
	run, err := graph.GetIRSB(addr)
	if err != nil {
		// GetIRSB for an address the walker already visited
		// successfully is an internal CFG contract violation, not a
		// condition callers can recover from differently than any
		// other trace failure; losing this one symbolic op's
		// reconciliation is consistent with the over-approximating,
		// best-effort nature of this pass (§7).
		return nil
	}
	return run
}
