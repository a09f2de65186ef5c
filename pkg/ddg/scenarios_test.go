package ddg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ddg/ddg/pkg/config"
	"github.com/go-ddg/ddg/pkg/dlog"
	"github.com/go-ddg/ddg/pkg/ir"
)

func disabledLog() *dlog.Logger { return dlog.Disabled().Walker() }

// S1: intra-block RAW. A block writes then reads the same address; the
// read's writer set must include the write's own statement.
func TestScenarioIntraBlockRAW(t *testing.T) {
	graph := newFakeCFG()
	graph.addRun(bb(0x100, nil,
		stmt(memWrite(0x7fff_fff0, 0)),
		stmt(memRead(0x7fff_fff0, 1)),
	))

	store := NewStore()
	w := NewWalker(graph, config.DefaultConfig(), disabledLog(), store)
	err := w.Run(0x100, concreteState(0x8000_0000))
	require.NoError(t, err)

	writers := store.Writers(0x100, 1)
	assert.Contains(t, writers, Writer{Run: 0x100, Stmt: 0})
}

// S2: cross-block RAW with a call frame. A writes a stack slot above the
// callee's frame boundary; the callee's read of that slot must route
// through the caller's (outer) frame rather than its own.
func TestScenarioCrossBlockRAWWithCallFrame(t *testing.T) {
	graph := newFakeCFG()
	a := bb(0x200, []ir.Exit{callExit(0x300, 0x7fff_ff00)},
		stmt(memWrite(0x7fff_ffe8, 0)),
	)
	b := bb(0x300, nil,
		stmt(memRead(0x7fff_ffe8, 0)),
	)
	graph.addRun(a)
	graph.addRun(b)
	graph.addEdge(0x200, 0x300)

	store := NewStore()
	w := NewWalker(graph, config.DefaultConfig(), disabledLog(), store)
	err := w.Run(0x200, concreteState(0x8000_0000))
	require.NoError(t, err)

	writers := store.Writers(0x300, 0)
	assert.Contains(t, writers, Writer{Run: 0x200, Stmt: 0})
}

// S3: a write to a global address (outside the stack window) in a deep
// call frame is visible to a read from the outermost frame after return.
func TestScenarioGlobalBypassesStackFrames(t *testing.T) {
	graph := newFakeCFG()
	a := bb(0x400, []ir.Exit{callExit(0x500, 0x7fff_ff00)})
	b := bb(0x500, []ir.Exit{retExit(0x600)},
		stmt(memWrite(0x4000, 0)),
	)
	c := bb(0x600, nil,
		stmt(memRead(0x4000, 0)),
	)
	graph.addRun(a)
	graph.addRun(b)
	graph.addRun(c)
	graph.addEdge(0x400, 0x500)
	graph.addEdge(0x500, 0x600)

	store := NewStore()
	w := NewWalker(graph, config.DefaultConfig(), disabledLog(), store)
	err := w.Run(0x400, concreteState(0x8000_0000))
	require.NoError(t, err)

	writers := store.Writers(0x600, 0)
	assert.Contains(t, writers, Writer{Run: 0x500, Stmt: 0})
}

// S4: symbolic reconciliation. Two blocks each write through a pointer
// derived from the same register write in a common ancestor; a third
// block reads through a pointer derived from that same register. Both
// writes must be linked to the read.
func TestScenarioSymbolicReconciliation(t *testing.T) {
	graph := newFakeCFG()
	anc := bb(0x700, []ir.Exit{boringExit(0x800), boringExit(0x900)},
		stmt(regWrite(10, 0)),
	)
	p := bb(0x800, []ir.Exit{boringExit(0xA00)},
		stmt(symMemWrite(0, ir.NewIntSet(10), nil)),
	)
	q := bb(0x900, []ir.Exit{boringExit(0xA00)},
		stmt(symMemWrite(0, ir.NewIntSet(10), nil)),
	)
	r := bb(0xA00, nil,
		stmt(symMemRead(0, ir.NewIntSet(10))),
	)
	graph.addRun(anc)
	graph.addRun(p)
	graph.addRun(q)
	graph.addRun(r)
	graph.addEdge(0x700, 0x800)
	graph.addEdge(0x700, 0x900)
	graph.addEdge(0x800, 0xA00)
	graph.addEdge(0x900, 0xA00)

	store, err := Construct(graph, 0x700, concreteState(0x8000_0000), config.DefaultConfig(), nil)
	require.NoError(t, err)

	writers := store.Writers(0xA00, 0)
	assert.Contains(t, writers, Writer{Run: 0x800, Stmt: 0})
	assert.Contains(t, writers, Writer{Run: 0x900, Stmt: 0})
}

// S5: the re-scan cap bounds a self-perpetuating loop instead of
// spinning forever. The body's first analysis records a new concrete
// write, which sets the reanalyze-successors flag; that flag is carried
// into every wrapper queued after it (later reanalyses of the body under
// the same nil state are served from the walker's cache), so without a
// cap the walk would never terminate.
func TestScenarioRescanCapBoundsLoop(t *testing.T) {
	graph := newFakeCFG()
	loopHead := bb(0x1000, []ir.Exit{boringExit(0x1100)})

	calls := 0
	body := &ir.BasicBlock{
		RunAddr:  0x1100,
		ExitList: []ir.Exit{boringExit(0x1000)},
		Reanalyzer: func(ir.State) (ir.Run, error) {
			calls++
			return &ir.BasicBlock{
				RunAddr:  0x1100,
				Stmts:    []ir.Statement{stmt(memWrite(0x9000+uint64(calls), 0))},
				ExitList: []ir.Exit{boringExit(0x1000)},
			}, nil
		},
	}
	graph.addRun(loopHead)
	graph.addRun(body)
	graph.addEdge(0x1000, 0x1100)
	graph.addEdge(0x1100, 0x1000)

	cfg := config.DefaultConfig()
	store := NewStore()
	w := NewWalker(graph, cfg, disabledLog(), store)
	err := w.Run(0x1000, concreteState(0x8000_0000))
	require.NoError(t, err)

	assert.Greater(t, w.Scanned(0x1000), 1, "loop should re-scan at least once")
	assert.LessOrEqual(t, w.Scanned(0x1000), cfg.MaxBBLAnalyzeTimes+1, "re-scan cap must bound the loop")
}

// S6: a register that is never written on any predecessor path produces
// a sentinel source, not a crash or a silent empty result.
func TestScenarioUnknownInitialRegister(t *testing.T) {
	graph := newFakeCFG()
	orphan := bb(0xB00, nil, stmt(symMemRead(0, ir.NewIntSet(5))))
	graph.addRun(orphan)

	tracer := NewTracer(graph, dlog.Disabled().Tracer())
	ref := symMemRead(0, ir.NewIntSet(5))
	sources := tracer.Trace(orphan, ref)

	want := Writer{Run: ir.RunAddr(-5), Stmt: ir.SentinelStmt}
	require.Contains(t, sources, want)
	assert.True(t, want.IsSentinel())
	assert.Equal(t, 5, want.RegOffset())
}
