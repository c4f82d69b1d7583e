package partition

import (
	"github.com/dendro-kt/octree/internal/cell"
	"github.com/dendro-kt/octree/internal/hilbert"
	"github.com/dendro-kt/octree/internal/sfc"
)

// GetContainingBlocks classifies every candidate cell (assumed to be at the
// deepest level) against a sorted array of partition splitters, returning,
// for each candidate, the rank index whose block it falls in (spec §6, the
// FEM layer's ghost-map builder). It does not modify points or splitters;
// both are copied into working buffers before the recursive descent.
func GetContainingBlocks(points, splitters []cell.Cell, params cell.Params, table *hilbert.Table) []int {
	pts := append([]cell.Cell(nil), points...)
	ptsIdx := make([]int, len(pts))
	for i := range ptsIdx {
		ptsIdx[i] = i
	}

	spl := append([]cell.Cell(nil), splitters...)
	splIdx := make([]int, len(spl))
	for i := range splIdx {
		splIdx[i] = i
	}

	result := make([]int, len(pts))
	getContainingBlocksRecurse(pts, ptsIdx, spl, splIdx, 0, len(pts), 0, len(spl), 0, table.RootRotation(), 0, result, params, table)
	return result
}

// getContainingBlocksRecurse buckets the current point and splitter ranges
// at the same level and orientation; a range with no splitter boundary
// inside it is entirely owned by one rank, determined by how many
// splitters precede it. Otherwise, both ranges are refined one level
// deeper and the recursion continues per child.
func getContainingBlocksRecurse(pts []cell.Cell, ptsIdx []int, spl []cell.Cell, splIdx []int, pBegin, pEnd, sBegin, sEnd, level, pRot, numPrevBlocks int, result []int, params cell.Params, table *hilbert.Table) {
	if pEnd <= pBegin {
		return
	}
	if sEnd-sBegin <= 0 || level == params.MaxDepth {
		block := numPrevBlocks - 1
		if block < 0 {
			block = 0
		}
		for i := pBegin; i < pEnd; i++ {
			result[ptsIdx[i]] = block
		}
		return
	}

	pSplitters, _, _ := sfc.BucketCompanion(pts, ptsIdx, pBegin, pEnd, level+1, pRot, sfc.Policy{}, sfc.IdentityKey, table, params)
	sSplitters, _, _ := sfc.BucketCompanion(spl, splIdx, sBegin, sEnd, level+1, pRot, sfc.Policy{}, sfc.IdentityKey, table, params)

	prevBlocks := numPrevBlocks
	for k := 0; k < table.NumChildren(); k++ {
		childPBegin := pBegin + pSplitters[k]
		childPEnd := pBegin + pSplitters[k+1]
		childSBegin := sBegin + sSplitters[k]
		childSEnd := sBegin + sSplitters[k+1]
		getContainingBlocksRecurse(pts, ptsIdx, spl, splIdx, childPBegin, childPEnd, childSBegin, childSEnd, level+1, sfc.ChildRotation(table, pRot, level+1, k), prevBlocks, result, params, table)
		prevBlocks += childSEnd - childSBegin
	}
}
