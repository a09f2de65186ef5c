package ddg

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/maps"

	"github.com/go-ddg/ddg/pkg/ir"
)

// Writer names a statement that produced a value some reader observed.
type Writer struct {
	Run  ir.RunAddr
	Stmt ir.StmtIdx
}

// IsSentinel reports whether w stands for "never written before" (§8
// invariant 5, §4.F terminal case) rather than a real statement.
func (w Writer) IsSentinel() bool { return w.Run < 0 }

// RegOffset recovers the register offset a sentinel writer encodes.
// Only meaningful when IsSentinel is true.
func (w Writer) RegOffset() int { return int(-w.Run) }

// Store is the DDG itself (§3 DDG, component G): a mapping from reader
// (run, statement) to the set of writers that may have produced the
// value it observed. Entries are append-only — once an edge is
// recorded it is never removed, matching the forward walk's
// monotonicity (§3 Lifecycles).
type Store struct {
	edges map[ir.RunAddr]map[ir.StmtIdx]map[Writer]struct{}
}

// NewStore returns an empty DDG.
func NewStore() *Store {
	return &Store{edges: make(map[ir.RunAddr]map[ir.StmtIdx]map[Writer]struct{})}
}

// AddEdge records that readerRun/readerStmt may have observed the value
// written by writerRun/writerStmt.
func (s *Store) AddEdge(readerRun ir.RunAddr, readerStmt ir.StmtIdx, writerRun ir.RunAddr, writerStmt ir.StmtIdx) {
	byStmt, ok := s.edges[readerRun]
	if !ok {
		byStmt = make(map[ir.StmtIdx]map[Writer]struct{})
		s.edges[readerRun] = byStmt
	}
	writers, ok := byStmt[readerStmt]
	if !ok {
		writers = make(map[Writer]struct{})
		byStmt[readerStmt] = writers
	}
	writers[Writer{Run: writerRun, Stmt: writerStmt}] = struct{}{}
}

// Writers returns the set of writers recorded for a reader, or nil if
// none have been recorded.
func (s *Store) Writers(readerRun ir.RunAddr, readerStmt ir.StmtIdx) map[Writer]struct{} {
	byStmt, ok := s.edges[readerRun]
	if !ok {
		return nil
	}
	return byStmt[readerStmt]
}

// Readers returns every (run, stmt) pair that has at least one recorded
// writer, in a deterministic order (sorted by run then stmt) so callers
// iterating for debug output or tests get reproducible results despite
// Go's randomized map iteration.
func (s *Store) Readers() []RunStmt {
	runs := maps.Keys(s.edges)
	sort.Slice(runs, func(i, j int) bool { return runs[i] < runs[j] })
	var out []RunStmt
	for _, run := range runs {
		stmts := maps.Keys(s.edges[run])
		sort.Slice(stmts, func(i, j int) bool { return stmts[i] < stmts[j] })
		for _, stmt := range stmts {
			out = append(out, RunStmt{Run: run, Stmt: stmt})
		}
	}
	return out
}

// String renders the DDG deterministically, mirroring the original
// DDG.debug_print (original_source/ddg.py) as a Stringer rather than a
// method that writes straight to a logger.
func (s *Store) String() string {
	var b strings.Builder
	for _, rs := range s.Readers() {
		writers := s.Writers(rs.Run, rs.Stmt)
		keys := maps.Keys(writers)
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Run != keys[j].Run {
				return keys[i].Run < keys[j].Run
			}
			return keys[i].Stmt < keys[j].Stmt
		})
		fmt.Fprintf(&b, "(%#x, %d) <-", uint64(rs.Run), rs.Stmt)
		for _, w := range keys {
			if w.IsSentinel() {
				fmt.Fprintf(&b, " {reg %d: unknown}", w.RegOffset())
			} else {
				fmt.Fprintf(&b, " (%#x, %d)", uint64(w.Run), w.Stmt)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
