package partition

import (
	"context"

	"github.com/dendro-kt/octree/comm"
	"github.com/dendro-kt/octree/internal/cell"
	"github.com/dendro-kt/octree/internal/hilbert"
	"github.com/dendro-kt/octree/internal/sfc"
)

// ConstructTree builds a tree covering every input cell, refining any
// region whose weight exceeds maxPtsPerRegion input cells, then rebalances
// the resulting leaves across ranks (spec §4.E).
func ConstructTree(ctx context.Context, c comm.Comm, points []cell.Cell, maxPtsPerRegion int, loadFlex float64, params cell.Params, table *hilbert.Table) ([]cell.Cell, error) {
	sorted, err := DistPartition(ctx, c, points, params, loadFlex, table)
	if err != nil {
		return nil, err
	}

	var leaves []cell.Cell
	buildLocal(sorted, &leaves, 0, len(sorted), 0, table.RootRotation(), maxPtsPerRegion, params, table)

	leaves, err = DistPartition(ctx, c, leaves, params, loadFlex, table)
	if err != nil {
		return nil, err
	}
	return leaves, nil
}

// buildLocal performs the local half of construction: a post-order walk of
// the SFC bucketing tree, driven by the maxPtsPerRegion capacity rule.
func buildLocal(points []cell.Cell, leaves *[]cell.Cell, begin, end, level, pRot, maxPtsPerRegion int, params cell.Params, table *hilbert.Table) {
	if begin >= end {
		return
	}
	if end-begin <= maxPtsPerRegion || level == params.MaxDepth {
		*leaves = append(*leaves, points[begin].AncestorAtLevel(params, level))
		return
	}

	splitters, ancStart, ancEnd := sfc.Bucket(points, begin, end, level+1, pRot, sfc.Policy{SeparateAncestors: true, AncestorsFirst: true}, sfc.IdentityKey, table, params)

	// Cells coarser than level+1 cannot be refined further here; they are
	// absorbed directly as their own leaves rather than folded into a
	// sibling's weight, since a coarser cell may span more than one child.
	for _, anc := range points[begin+ancStart : begin+ancEnd] {
		*leaves = append(*leaves, anc)
	}

	for k := 0; k < table.NumChildren(); k++ {
		childBegin := begin + splitters[k]
		childEnd := begin + splitters[k+1]
		if childEnd <= childBegin {
			continue
		}
		buildLocal(points, leaves, childBegin, childEnd, level+1, sfc.ChildRotation(table, pRot, level+1, k), maxPtsPerRegion, params, table)
	}
}
