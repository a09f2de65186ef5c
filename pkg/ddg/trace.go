package ddg

import (
	"github.com/go-ddg/ddg/pkg/dlog"
	"github.com/go-ddg/ddg/pkg/ir"
)

// tracerEntry is one item on the use-def tracer's LIFO worklist: a run
// to walk backward from startStmt (or from the end, if
// ir.SentinelStmt), tracking which register/temporary offsets are
// still unresolved.
type tracerEntry struct {
	run       ir.Run
	startStmt ir.StmtIdx
	regDeps   ir.IntSet
	tmpDeps   ir.IntSet
}

// Tracer implements component F: the backward use-def walk that traces
// a symbolic reference's address (or, for non-memory seeds, data)
// dependencies back to their root producers.
type Tracer struct {
	graph ir.CFG
	log   *dlog.Logger
}

// NewTracer builds a use-def tracer over graph.
func NewTracer(graph ir.CFG, log *dlog.Logger) *Tracer {
	return &Tracer{graph: graph, log: log}
}

// refStmtIdx recovers the statement a reference belongs to, so a bare
// reference can seed a trace without its enclosing Statement.
func refStmtIdx(ref ir.Reference) ir.StmtIdx {
	switch r := ref.(type) {
	case *ir.MemWrite:
		return r.StmtIdx
	case *ir.MemRead:
		return r.StmtIdx
	case *ir.RegWrite:
		return r.StmtIdx
	case *ir.RegRead:
		return r.StmtIdx
	case *ir.TmpWrite:
		return r.StmtIdx
	case *ir.TmpRead:
		return r.StmtIdx
	}
	return ir.SentinelStmt
}

// seedDeps computes the initial register/temporary dependency sets for
// a reference used as a trace origin (§4.F "Initial dependency seed").
func seedDeps(ref ir.Reference) (ir.IntSet, ir.IntSet) {
	regDeps := make(ir.IntSet)
	tmpDeps := make(ir.IntSet)
	switch r := ref.(type) {
	case *ir.MemWrite:
		regDeps.Union(r.DataRegDeps).Union(r.AddrRegDeps)
		tmpDeps.Union(r.DataTmpDeps).Union(r.AddrTmpDeps)
	case *ir.MemRead:
		regDeps.Union(r.AddrRegDeps)
		tmpDeps.Union(r.AddrTmpDeps)
	case *ir.RegWrite:
		regDeps.Union(r.DataRegDeps)
		tmpDeps.Union(r.DataTmpDeps)
	case *ir.RegRead:
		regDeps.Union(r.DataRegDeps)
		tmpDeps.Union(r.DataTmpDeps)
	case *ir.TmpWrite:
		regDeps.Union(r.DataRegDeps)
		tmpDeps.Union(r.DataTmpDeps)
	case *ir.TmpRead:
		regDeps.Union(r.DataRegDeps)
		tmpDeps.Union(r.DataTmpDeps)
	}
	return regDeps, tmpDeps
}

// statementsOf returns the statements of run up to and including
// startStmt (or all of them, if startStmt is the sentinel), in reverse
// program order, paired with their index — or, for a summary run, the
// run's entire reference list reversed with the sentinel index on
// every entry (§4.F).
func statementsOf(run ir.Run, startStmt ir.StmtIdx) []struct {
	idx  ir.StmtIdx
	real ir.Reference
} {
	var out []struct {
		idx  ir.StmtIdx
		real ir.Reference
	}
	if bb, ok := run.(*ir.BasicBlock); ok {
		stmts := bb.Statements()
		last := len(stmts) - 1
		if startStmt != ir.SentinelStmt {
			last = int(startStmt)
		}
		for i := last; i >= 0; i-- {
			real, ok := stmts[i].RealRef()
			if !ok {
				continue
			}
			out = append(out, struct {
				idx  ir.StmtIdx
				real ir.Reference
			}{idx: ir.StmtIdx(i), real: real})
		}
		return out
	}
	refs := run.Refs()
	for i := len(refs) - 1; i >= 0; i-- {
		out = append(out, struct {
			idx  ir.StmtIdx
			real ir.Reference
		}{idx: ir.SentinelStmt, real: refs[i]})
	}
	return out
}

// Trace computes the sources (producers) of ref, a reference belonging
// to run, following §4.F exactly: reverse in-run walk, cross-edge
// re-enqueue on predecessors bounded by a monotone memo, and a sentinel
// source for any register that is never written on any predecessor
// path.
func (t *Tracer) Trace(run ir.Run, ref ir.Reference) map[Writer]struct{} {
	sources := make(map[Writer]struct{})
	traced := make(map[ir.RunAddr]ir.IntSet)

	regDeps, tmpDeps := seedDeps(ref)
	startStmt := refStmtIdx(ref)

	stack := []tracerEntry{{run: run, startStmt: startStmt, regDeps: regDeps, tmpDeps: tmpDeps}}

	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		t.log.Debugf("traversing %#x", uint64(entry.run.Addr()))

		regDepToStmt := make(map[int]ir.StmtIdx)
		regDeps := entry.regDeps.Clone()
		tmpDeps := entry.tmpDeps.Clone()

		for _, s := range statementsOf(entry.run, entry.startStmt) {
			switch rw := s.real.(type) {
			case *ir.RegWrite:
				if _, ok := regDeps[rw.Offset]; ok {
					regDepToStmt[rw.Offset] = s.idx
					delete(regDeps, rw.Offset)
					regDeps.Union(rw.DataRegDeps)
					tmpDeps.Union(rw.DataTmpDeps)
				}
			case *ir.TmpWrite:
				if _, ok := tmpDeps[rw.Tmp]; ok {
					delete(tmpDeps, rw.Tmp)
					regDeps.Union(rw.DataRegDeps)
					tmpDeps.Union(rw.DataTmpDeps)
				}
			}
		}

		// The memo records the dependency set as it stands after this
		// run's own statements have been walked, not the set the
		// traversal arrived with — a later visit to the same run only
		// needs re-enqueuing if it brings dependencies beyond what this
		// pass already resolved or carried forward (§4.F memoization).
		traced[entry.run.Addr()] = regDeps

		predecessors := t.graph.Predecessors(entry.run)
		if len(regDeps) > 0 {
			for _, pred := range predecessors {
				if old, ok := traced[pred.Addr()]; !ok {
					stack = append(stack, tracerEntry{run: pred, startStmt: ir.SentinelStmt, regDeps: regDeps.Clone(), tmpDeps: make(ir.IntSet)})
				} else if !regDeps.IsSubsetOf(old) {
					merged := regDeps.Clone().Union(old)
					stack = append(stack, tracerEntry{run: pred, startStmt: ir.SentinelStmt, regDeps: merged, tmpDeps: make(ir.IntSet)})
				}
			}
		}

		for _, stmtID := range regDepToStmt {
			sources[Writer{Run: entry.run.Addr(), Stmt: stmtID}] = struct{}{}
		}

		if len(regDeps) == 0 || len(predecessors) == 0 {
			for reg := range regDeps {
				if _, ok := regDepToStmt[reg]; !ok {
					t.log.Debugf("register %d has never been assigned a value before", reg)
					sources[Writer{Run: ir.RunAddr(-reg), Stmt: ir.SentinelStmt}] = struct{}{}
				}
			}
		}
	}

	return sources
}
