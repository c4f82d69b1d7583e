// Package octree holds the distributed tree container that sits above
// partition: a per-rank, already-partitioned leaf set plus a sequence of
// progressively coarser strata derived from it, and the domain filters
// applied before a stratum is handed to a consumer (spec.md §4.G).
package octree

import (
	"context"
	"errors"
	"fmt"

	"github.com/dendro-kt/octree/comm"
	"github.com/dendro-kt/octree/internal/cell"
	"github.com/dendro-kt/octree/internal/hilbert"
	"github.com/dendro-kt/octree/internal/sfc"
	"github.com/dendro-kt/octree/partition"
)

// ErrLogicError reports a contract violation by the caller: an operation
// documented as one-time was called again, or a stratum index is out of
// range. Unlike comm.ErrCommFailure, this never originates from the
// transport; it is always a programming error at the call site.
var ErrLogicError = errors.New("octree: logic error")

// CellDecider accepts or rejects a cell in cell-key form.
type CellDecider func(c cell.Cell) bool

// PhysicalDecider accepts or rejects a cell given its physical anchor and
// edge length in [0,1]^d units.
type PhysicalDecider func(coords []float64, size float64) bool

// Stratum is one level of the grid hierarchy: a sorted, partitioned leaf set
// together with the front and back leaf recorded at the time it was built.
// A stratum with no leaves has zero-valued front and back cells.
type Stratum struct {
	leaves []cell.Cell
	front  cell.Cell
	back   cell.Cell
}

func newStratum(leaves []cell.Cell) Stratum {
	s := Stratum{leaves: leaves}
	if len(leaves) > 0 {
		s.front = leaves[0]
		s.back = leaves[len(leaves)-1]
	}
	return s
}

// Leaves returns the stratum's locally owned leaves, in SFC order.
func (s Stratum) Leaves() []cell.Cell { return s.leaves }

// Front returns the first leaf owned by this rank at construction time.
func (s Stratum) Front() cell.Cell { return s.front }

// Back returns the last leaf owned by this rank at construction time.
func (s Stratum) Back() cell.Cell { return s.back }

// DistTree owns one rank's slice of a partitioned tree, plus any coarser
// strata derived from it by GenerateGridHierarchy. It takes ownership of the
// leaves passed to New: callers must not continue to use that slice
// afterward (spec.md §4.G's "takes ownership, records front/back").
type DistTree struct {
	params   cell.Params
	table    *hilbert.Table
	strata   []Stratum
	filtered bool
}

// New constructs a DistTree from a rank's already-sorted, already-partitioned
// leaf set, recording it as stratum 0.
func New(params cell.Params, table *hilbert.Table, sortedLocalLeaves []cell.Cell) *DistTree {
	return &DistTree{
		params: params,
		table:  table,
		strata: []Stratum{newStratum(sortedLocalLeaves)},
	}
}

// NumStrata returns the number of strata currently held, finest first.
func (t *DistTree) NumStrata() int {
	return len(t.strata)
}

// Stratum returns the i'th stratum, 0 being the finest (the one passed to
// New, after any Filter).
func (t *DistTree) Stratum(i int) (Stratum, error) {
	if i < 0 || len(t.strata) <= i {
		return Stratum{}, fmt.Errorf("octree: stratum index %d out of range [0,%d): %w", i, len(t.strata), ErrLogicError)
	}
	return t.strata[i], nil
}

// Filter compacts stratum 0 in place, keeping only the leaves decider
// accepts: a single forward pass that overwrites rejected slots with
// subsequent accepted ones, exactly as in-place slice compaction elsewhere
// in this module (sfc.RemoveDuplicates uses the same shape). It is a
// one-time operation; a second call reports ErrLogicError without touching
// the tree.
func (t *DistTree) Filter(decider CellDecider) error {
	if t.filtered {
		return fmt.Errorf("octree: filter already applied: %w", ErrLogicError)
	}
	t.filtered = true

	leaves := t.strata[0].leaves
	kept := leaves[:0]
	for _, c := range leaves {
		if decider(c) {
			kept = append(kept, c)
		}
	}
	t.strata[0] = newStratum(kept)
	return nil
}

// FilterPhysical is Filter, but decider is expressed in physical coordinates;
// it is synthesized into a CellDecider by the same coordinate conversion
// ToPhysical/PhysicalSize already provide.
func (t *DistTree) FilterPhysical(decider PhysicalDecider) error {
	return t.Filter(func(c cell.Cell) bool {
		return decider(c.ToPhysical(t.params), c.PhysicalSize(t.params))
	})
}

// DefaultCellDecider is the default cell-form domain decider: a cell is
// inside the domain iff every coordinate is at most 2^MaxDepth minus the
// cell's own edge length. Written this way, not "coord >= 0", because coord
// is unsigned and a coordinate one past the far edge would otherwise wrap
// around instead of comparing negative.
func DefaultCellDecider(params cell.Params) CellDecider {
	domain := params.DomainSize()
	return func(c cell.Cell) bool {
		edge := domain >> uint(c.Level())
		for d := 0; d < params.Dim; d++ {
			if c.Coord(d) > domain-edge {
				return false
			}
		}
		return true
	}
}

// DefaultPhysicalDecider is the default physical-form domain decider: a cell
// is inside iff every coordinate lies in [0,1) and coord+size does not
// exceed 1.
func DefaultPhysicalDecider() PhysicalDecider {
	return func(coords []float64, size float64) bool {
		for _, x := range coords {
			if x < 0 || 1 < x+size {
				return false
			}
		}
		return true
	}
}

// HierarchyStop selects when GenerateGridHierarchy's coarsening loop halts.
type HierarchyStop struct {
	// NumStrata, if > 0, stops once this many strata (including stratum 0)
	// exist.
	NumStrata int
	// UntilLevel, used when NumStrata == 0, stops once every leaf in the
	// newest stratum is at or below this level.
	UntilLevel int
}

// GenerateGridHierarchy builds a sequence of progressively coarser strata on
// top of stratum 0: each new stratum raises every leaf of its predecessor to
// the leaf's parent, deduplicates exact-duplicate parents produced when
// sibling leaves coarsen to the same cell, and rebalances the result with
// DistPartition (spec.md §4.G). The coarse stratum's own leaf set and
// partition are exactly what a standalone DistPartition on the raised leaves
// would produce; this module does not additionally align it to the finer
// stratum's partition boundaries (the "surrogate" optimization in the source
// exists to avoid extra communication in the FEM consumer layer, which is
// out of scope here).
func (t *DistTree) GenerateGridHierarchy(ctx context.Context, c comm.Comm, stop HierarchyStop, loadFlex float64) error {
	for {
		if stop.NumStrata > 0 && len(t.strata) >= stop.NumStrata {
			return nil
		}

		prev := t.strata[len(t.strata)-1]

		// Whether there is anything left to coarsen is a global question:
		// one rank's leaves can all already be at level 0 while another's
		// are not, and every rank must agree on whether to run another
		// round so the DistPartition call below stays in lockstep.
		reduced, err := c.AllReduceInt64(ctx, []int64{int64(localMaxLevel(prev.leaves))}, comm.MAX)
		if err != nil {
			return fmt.Errorf("octree: generateGridHierarchy: %w", err)
		}
		globalPrevMax := int(reduced[0])
		if globalPrevMax == 0 {
			return nil
		}

		coarsened := make([]cell.Cell, len(prev.leaves))
		for i, leaf := range prev.leaves {
			level := leaf.Level()
			if level > 0 {
				level--
			}
			coarsened[i] = leaf.AncestorAtLevel(t.params, level)
		}

		sfc.LocalSort(coarsened, 0, len(coarsened), 1, t.params.MaxDepth, t.table.RootRotation(), sfc.IdentityKey, t.table, t.params)
		deduped := sfc.RemoveDuplicates(coarsened)

		balanced, err := partition.DistPartition(ctx, c, deduped, t.params, loadFlex, t.table)
		if err != nil {
			return err
		}

		t.strata = append(t.strata, newStratum(balanced))

		// Every leaf either stays at level 0 or drops by exactly one level,
		// so the new global max is deterministically one less than the old
		// one: no second collective is needed to learn it.
		if stop.NumStrata == 0 && globalPrevMax-1 <= stop.UntilLevel {
			return nil
		}
	}
}

func localMaxLevel(leaves []cell.Cell) int {
	max := 0
	for _, leaf := range leaves {
		if leaf.Level() > max {
			max = leaf.Level()
		}
	}
	return max
}

// Destroy clears every stratum, releasing the underlying leaf slices.
func (t *DistTree) Destroy() {
	t.strata = nil
}
