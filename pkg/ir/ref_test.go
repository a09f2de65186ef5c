package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-ddg/ddg/pkg/ir"
)

func TestIntSetUnionIsInPlace(t *testing.T) {
	a := ir.NewIntSet(1, 2)
	b := ir.NewIntSet(2, 3)

	a.Union(b)

	assert.ElementsMatch(t, keys(a), []int{1, 2, 3})
}

func TestIntSetCloneIsIndependent(t *testing.T) {
	a := ir.NewIntSet(1, 2)
	b := a.Clone()
	b.Union(ir.NewIntSet(99))

	assert.ElementsMatch(t, keys(a), []int{1, 2})
	assert.ElementsMatch(t, keys(b), []int{1, 2, 99})
}

func TestIntSetIsSubsetOf(t *testing.T) {
	assert.True(t, ir.NewIntSet(1, 2).IsSubsetOf(ir.NewIntSet(1, 2, 3)))
	assert.False(t, ir.NewIntSet(1, 4).IsSubsetOf(ir.NewIntSet(1, 2, 3)))
	assert.True(t, ir.NewIntSet().IsSubsetOf(ir.NewIntSet()))
}

func TestStatementRealRef(t *testing.T) {
	empty := ir.Statement{}
	_, ok := empty.RealRef()
	assert.False(t, ok)

	mw := &ir.MemWrite{Addr: ir.ConcreteAddr(8), StmtIdx: 0}
	s := ir.Statement{Refs: []ir.Reference{&ir.RegRead{Offset: 1}, mw}}
	real, ok := s.RealRef()
	assert.True(t, ok)
	assert.Same(t, mw, real)
}

func keys(s ir.IntSet) []int {
	out := make([]int, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}
