package octree

import (
	"context"
	"testing"

	"github.com/dendro-kt/octree/comm"
	"github.com/dendro-kt/octree/internal/cell"
	"github.com/dendro-kt/octree/internal/hilbert"
)

func allLeavesAtLevel(p cell.Params, level int) []cell.Cell {
	var out []cell.Cell
	var walk func(c cell.Cell)
	walk = func(c cell.Cell) {
		if c.Level() == level {
			out = append(out, c)
			return
		}
		for child := 0; child < p.NumChildren(); child++ {
			walk(c.ChildMorton(p, child))
		}
	}
	walk(cell.Root(p))
	return out
}

func TestNewRecordsFrontAndBack(t *testing.T) {
	p := cell.Params{Dim: 2, MaxDepth: 3}
	table, err := hilbert.Generate(p.Dim)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaves := allLeavesAtLevel(p, p.MaxDepth)

	tree := New(p, table, leaves)
	s0, err := tree.Stratum(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s0.Front().Equal(leaves[0]) || !s0.Back().Equal(leaves[len(leaves)-1]) {
		t.Errorf("front/back = %v/%v, want %v/%v", s0.Front(), s0.Back(), leaves[0], leaves[len(leaves)-1])
	}
	if tree.NumStrata() != 1 {
		t.Errorf("NumStrata() = %d, want 1", tree.NumStrata())
	}
}

func TestStratumOutOfRangeIsLogicError(t *testing.T) {
	p := cell.Params{Dim: 2, MaxDepth: 2}
	table, err := hilbert.Generate(p.Dim)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tree := New(p, table, allLeavesAtLevel(p, p.MaxDepth))

	if _, err := tree.Stratum(5); err == nil {
		t.Fatalf("expected an error for out-of-range stratum")
	}
}

func TestFilterIsOneTimeAndCompactsInPlace(t *testing.T) {
	p := cell.Params{Dim: 2, MaxDepth: 2}
	table, err := hilbert.Generate(p.Dim)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaves := allLeavesAtLevel(p, p.MaxDepth)
	tree := New(p, table, leaves)

	half := p.DomainSize() / 2
	err = tree.Filter(func(c cell.Cell) bool { return c.Coord(0) < half })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s0, _ := tree.Stratum(0)
	for _, c := range s0.Leaves() {
		if c.Coord(0) >= half {
			t.Errorf("filter kept cell %v with coord(0) >= %d", c, half)
		}
	}
	if len(s0.Leaves()) == 0 || len(s0.Leaves()) == len(leaves) {
		t.Errorf("filter did not change the leaf count meaningfully: got %d of %d", len(s0.Leaves()), len(leaves))
	}

	if err := tree.Filter(func(cell.Cell) bool { return true }); err == nil {
		t.Errorf("expected second Filter call to fail")
	}
}

func TestDefaultCellDeciderAcceptsFullDomain(t *testing.T) {
	p := cell.Params{Dim: 2, MaxDepth: 3}
	decider := DefaultCellDecider(p)
	for _, c := range allLeavesAtLevel(p, p.MaxDepth) {
		if !decider(c) {
			t.Errorf("default decider rejected in-domain cell %v", c)
		}
	}
}

func TestDefaultPhysicalDeciderAcceptsFullDomain(t *testing.T) {
	p := cell.Params{Dim: 2, MaxDepth: 3}
	decider := DefaultPhysicalDecider()
	for _, c := range allLeavesAtLevel(p, p.MaxDepth) {
		if !decider(c.ToPhysical(p), c.PhysicalSize(p)) {
			t.Errorf("default physical decider rejected in-domain cell %v", c)
		}
	}
}

func TestGenerateGridHierarchyCoarsensAndStops(t *testing.T) {
	p := cell.Params{Dim: 2, MaxDepth: 3}
	table, err := hilbert.Generate(p.Dim)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaves := allLeavesAtLevel(p, p.MaxDepth)

	comms := comm.NewLocal(1)
	tree := New(p, table, leaves)

	if err := tree.GenerateGridHierarchy(context.Background(), comms[0], HierarchyStop{NumStrata: 3}, 0.1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.NumStrata() != 3 {
		t.Fatalf("NumStrata() = %d, want 3", tree.NumStrata())
	}

	for i := 1; i < tree.NumStrata(); i++ {
		stratum, _ := tree.Stratum(i)
		prevStratum, _ := tree.Stratum(i - 1)
		if len(stratum.Leaves()) > len(prevStratum.Leaves()) {
			t.Errorf("stratum %d has more leaves (%d) than stratum %d (%d)", i, len(stratum.Leaves()), i-1, len(prevStratum.Leaves()))
		}
		want := p.MaxDepth - i
		if want < 0 {
			want = 0
		}
		for _, c := range stratum.Leaves() {
			if c.Level() > want {
				t.Errorf("stratum %d leaf %v was not coarsened enough, want level <= %d", i, c, want)
			}
		}
	}
}

func TestGenerateGridHierarchyUntilLevelStopsAtRoot(t *testing.T) {
	p := cell.Params{Dim: 2, MaxDepth: 2}
	table, err := hilbert.Generate(p.Dim)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaves := allLeavesAtLevel(p, p.MaxDepth)

	comms := comm.NewLocal(1)
	tree := New(p, table, leaves)

	if err := tree.GenerateGridHierarchy(context.Background(), comms[0], HierarchyStop{UntilLevel: 0}, 0.1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last, _ := tree.Stratum(tree.NumStrata() - 1)
	for _, c := range last.Leaves() {
		if c.Level() != 0 {
			t.Errorf("final stratum leaf %v not at level 0", c)
		}
	}
}

func TestDestroyClearsStrata(t *testing.T) {
	p := cell.Params{Dim: 2, MaxDepth: 2}
	table, err := hilbert.Generate(p.Dim)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tree := New(p, table, allLeavesAtLevel(p, p.MaxDepth))
	tree.Destroy()
	if tree.NumStrata() != 0 {
		t.Errorf("NumStrata() = %d after Destroy, want 0", tree.NumStrata())
	}
}
