package partition

import (
	"context"

	"github.com/dendro-kt/octree/comm"
	"github.com/dendro-kt/octree/internal/cell"
	"github.com/dendro-kt/octree/internal/hilbert"
	"github.com/dendro-kt/octree/internal/sfc"
)

// Balance enforces the 2:1 constraint (no two face-adjacent leaves differ
// by more than one level) by repeatedly propagating neighbor seeds,
// completing the cover, and rebalancing, until no rank produces a seed or
// MaxDepth iterations have run (spec §4.F).
func Balance(ctx context.Context, c comm.Comm, tree []cell.Cell, loadFlex float64, params cell.Params, table *hilbert.Table) ([]cell.Cell, error) {
	for iter := 0; iter < params.MaxDepth; iter++ {
		seeds := propagateNeighbours(tree, params)

		var insertedLocally int64
		if len(seeds) > 0 {
			insertedLocally = 1
		}
		insertedAny, err := allReduceSum(ctx, c, insertedLocally)
		if err != nil {
			return nil, err
		}
		if insertedAny == 0 {
			return tree, nil
		}

		merged := make([]cell.Cell, 0, len(tree)+len(seeds))
		merged = append(merged, tree...)
		merged = append(merged, seeds...)
		sfc.LocalSort(merged, 0, len(merged), 1, params.MaxDepth, table.RootRotation(), sfc.IdentityKey, table, params)
		merged = sfc.RemoveDuplicatesAndAncestors(params, merged)

		completed := Complete(merged, params, table)

		balanced, err := DistPartition(ctx, c, completed, params, loadFlex, table)
		if err != nil {
			return nil, err
		}
		tree = balanced
	}
	return tree, nil
}

// propagateNeighbours emits, for every leaf above level 0, the 2*Dim face
// neighbours of the leaf's parent (cells one level coarser than the leaf,
// one parent-sized step away along each axis in each direction) as
// auxiliary seeds, dropping any that fall outside the domain. These seeds
// force the subsequent Complete pass
// to introduce cells that close any 2:1 violation once merged with tree.
func propagateNeighbours(leaves []cell.Cell, params cell.Params) []cell.Cell {
	var seeds []cell.Cell
	for _, leaf := range leaves {
		level := leaf.Level()
		if level == 0 {
			continue
		}
		parentLevel := level - 1
		anc := leaf.AncestorAtLevel(params, parentLevel)
		step := int64(1) << uint(params.MaxDepth-parentLevel)

		for axis := 0; axis < params.Dim; axis++ {
			for _, dir := range [2]int64{-1, 1} {
				shifted := int64(anc.Coord(axis)) + dir*step
				if shifted < 0 || shifted >= int64(params.DomainSize()) {
					continue
				}
				coords := make([]uint32, params.Dim)
				for a := 0; a < params.Dim; a++ {
					coords[a] = anc.Coord(a)
				}
				coords[axis] = uint32(shifted)
				neighbor, err := cell.New(params, coords, parentLevel)
				if err != nil {
					continue
				}
				seeds = append(seeds, neighbor)
			}
		}
	}
	return seeds
}

// Complete fills every gap in an SFC-sorted, ancestor-free cell list with
// the coarsest cells that exactly bridge it, producing a cover of the whole
// domain with no overlaps (spec §4.F step 3).
func Complete(cells []cell.Cell, params cell.Params, table *hilbert.Table) []cell.Cell {
	var out []cell.Cell
	cover(cell.Root(params), 0, len(cells), 0, table.RootRotation(), cells, &out, params, table)
	return out
}

// cover recursively matches the implicit full tree against the cells
// present in [begin,end): a range with no cells is a gap, filled by node
// itself; a range with exactly one cell equal to node is already covered;
// otherwise node must be refined to match finer existing cells, and any
// still-missing children are filled by the same rule one level down.
func cover(node cell.Cell, begin, end, level, pRot int, cells []cell.Cell, out *[]cell.Cell, params cell.Params, table *hilbert.Table) {
	switch {
	case end-begin == 0:
		*out = append(*out, node)
		return
	case end-begin == 1 && cells[begin].Equal(node):
		*out = append(*out, node)
		return
	case level == params.MaxDepth:
		*out = append(*out, node)
		return
	}

	splitters, _, _ := sfc.Bucket(cells, begin, end, level+1, pRot, sfc.Policy{}, sfc.IdentityKey, table, params)
	for k := 0; k < table.NumChildren(); k++ {
		childBegin := begin + splitters[k]
		childEnd := begin + splitters[k+1]
		childNode := node.ChildMorton(params, table.SFCToMorton(pRot, k))
		cover(childNode, childBegin, childEnd, level+1, sfc.ChildRotation(table, pRot, level+1, k), cells, out, params, table)
	}
}
