package ddg

import (
	"github.com/go-ddg/ddg/pkg/ir"
)

// fakeState is a minimal ir.State for tests: a fixed stack pointer.
type fakeState struct {
	sp ir.Addr
}

func concreteState(sp uint64) *fakeState { return &fakeState{sp: ir.ConcreteAddr(sp)} }

func (s *fakeState) SPValue() ir.Addr { return s.sp }

// fakeCFG is a minimal ir.CFG backed by explicit adjacency lists, for
// driving the forward walker and tracer against hand-built scenarios
// without a real symbolic execution engine.
type fakeCFG struct {
	runs    map[ir.RunAddr]ir.Run
	succ    map[ir.RunAddr][]ir.RunAddr
	pred    map[ir.RunAddr][]ir.RunAddr
}

func newFakeCFG() *fakeCFG {
	return &fakeCFG{
		runs: make(map[ir.RunAddr]ir.Run),
		succ: make(map[ir.RunAddr][]ir.RunAddr),
		pred: make(map[ir.RunAddr][]ir.RunAddr),
	}
}

func (c *fakeCFG) addRun(run ir.Run) {
	c.runs[run.Addr()] = run
}

func (c *fakeCFG) addEdge(from, to ir.RunAddr) {
	c.succ[from] = append(c.succ[from], to)
	c.pred[to] = append(c.pred[to], from)
}

func (c *fakeCFG) GetIRSB(addr ir.RunAddr) (ir.Run, error) {
	run, ok := c.runs[addr]
	if !ok {
		return nil, errRunNotFound(addr)
	}
	return run, nil
}

func (c *fakeCFG) Successors(run ir.Run) []ir.Run {
	var out []ir.Run
	for _, addr := range c.succ[run.Addr()] {
		out = append(out, c.runs[addr])
	}
	return out
}

func (c *fakeCFG) Predecessors(run ir.Run) []ir.Run {
	var out []ir.Run
	for _, addr := range c.pred[run.Addr()] {
		out = append(out, c.runs[addr])
	}
	return out
}

type errRunNotFound ir.RunAddr

func (e errRunNotFound) Error() string { return "ddg test: no such run" }

// bb builds a static basic block (Reanalyze is a no-op identity
// function) from statements, with the given exits.
func bb(addr uint64, exits []ir.Exit, stmts ...ir.Statement) *ir.BasicBlock {
	return &ir.BasicBlock{RunAddr: ir.RunAddr(addr), Stmts: stmts, ExitList: exits}
}

func stmt(refs ...ir.Reference) ir.Statement { return ir.Statement{Refs: refs} }

func memWrite(addr uint64, stmtIdx int) *ir.MemWrite {
	return &ir.MemWrite{Addr: ir.ConcreteAddr(addr), StmtIdx: ir.StmtIdx(stmtIdx)}
}

func memRead(addr uint64, stmtIdx int) *ir.MemRead {
	return &ir.MemRead{Addr: ir.ConcreteAddr(addr), StmtIdx: ir.StmtIdx(stmtIdx)}
}

func symMemWrite(stmtIdx int, addrRegDeps, dataRegDeps ir.IntSet) *ir.MemWrite {
	return &ir.MemWrite{Addr: ir.SymbolicAddr{}, StmtIdx: ir.StmtIdx(stmtIdx), AddrRegDeps: addrRegDeps, DataRegDeps: dataRegDeps}
}

func symMemRead(stmtIdx int, addrRegDeps ir.IntSet) *ir.MemRead {
	return &ir.MemRead{Addr: ir.SymbolicAddr{}, StmtIdx: ir.StmtIdx(stmtIdx), AddrRegDeps: addrRegDeps}
}

func regWrite(offset, stmtIdx int) *ir.RegWrite {
	return &ir.RegWrite{Offset: offset, StmtIdx: ir.StmtIdx(stmtIdx)}
}

func boringExit(target uint64) ir.Exit {
	return ir.Exit{Target: ir.RunAddr(target), Jumpkind: ir.JumpBoring}
}

func callExit(target uint64, newSP uint64) ir.Exit {
	return ir.Exit{Target: ir.RunAddr(target), Jumpkind: ir.JumpCall, State: concreteState(newSP)}
}

func retExit(target uint64) ir.Exit {
	return ir.Exit{Target: ir.RunAddr(target), Jumpkind: ir.JumpRet, State: concreteState(0)}
}
