package sfc

import (
	"github.com/dendro-kt/octree/internal/cell"
	"github.com/dendro-kt/octree/internal/hilbert"
)

// ancestorsFirstPolicy is the bucketing policy LocalSort recurses with:
// elements coarser than the level being bucketed are grouped ahead of their
// would-be descendants, so ancestors precede their descendants in the final
// SFC order (spec §4.F relies on this for sortAndRemoveAncestors).
var ancestorsFirstPolicy = Policy{SeparateAncestors: true, AncestorsFirst: true}

// LocalSort reorders points[begin:end) in place so it reads in SFC order
// over the subtree rooted at the cell whose orientation is pRot and level is
// startLevel-1, recursing from startLevel through endLevel inclusive.
func LocalSort[T any](points []T, begin, end, startLevel, endLevel, pRot int, keyFn KeyFunc[T], table *hilbert.Table, params cell.Params) {
	if end-begin <= 1 || startLevel > endLevel {
		return
	}
	splitters, _, _ := Bucket(points, begin, end, startLevel, pRot, ancestorsFirstPolicy, keyFn, table, params)
	if startLevel == endLevel {
		return
	}
	recurseChildren(begin, splitters, startLevel, pRot, table, func(childBegin, childEnd, childRot int) {
		LocalSort(points, childBegin, childEnd, startLevel+1, endLevel, childRot, keyFn, table, params)
	})
}

// LocalSortCompanion is LocalSort, except a parallel companion slice is
// permuted in lockstep with points.
func LocalSortCompanion[T, C any](points []T, companions []C, begin, end, startLevel, endLevel, pRot int, keyFn KeyFunc[T], table *hilbert.Table, params cell.Params) {
	if end-begin <= 1 || startLevel > endLevel {
		return
	}
	splitters, _, _ := BucketCompanion(points, companions, begin, end, startLevel, pRot, ancestorsFirstPolicy, keyFn, table, params)
	if startLevel == endLevel {
		return
	}
	recurseChildren(begin, splitters, startLevel, pRot, table, func(childBegin, childEnd, childRot int) {
		LocalSortCompanion(points, companions, childBegin, childEnd, startLevel+1, endLevel, childRot, keyFn, table, params)
	})
}

// recurseChildren walks the nChildren sibling buckets sfcBucket/Bucket just
// produced, in SFC order, and invokes descend on every non-empty one with
// its absolute [begin,end) range and its own orientation. Level 0 is a
// special case (spec §4.C): the root's own orientation is a fixpoint of the
// table, so children inherit pRot unchanged rather than hilbertTable[pRot].
func recurseChildren(begin int, splitters []int, level, pRot int, table *hilbert.Table, descend func(childBegin, childEnd, childRot int)) {
	n := table.NumChildren()
	for sfcIdx := 0; sfcIdx < n; sfcIdx++ {
		childBegin := begin + splitters[sfcIdx]
		childEnd := begin + splitters[sfcIdx+1]
		if childEnd <= childBegin {
			continue
		}
		descend(childBegin, childEnd, ChildRotation(table, pRot, level, sfcIdx))
	}
}

// ChildRotation returns the orientation a child at SFC-order index sfcIndex
// inherits from its parent of orientation pRot, where level is the level the
// children were bucketed at (the parent's own level plus one). Level 0 is a
// fixpoint of the table (spec §4.C): pRot passes through unchanged instead
// of being looked up.
func ChildRotation(table *hilbert.Table, pRot, level, sfcIndex int) int {
	if level == 0 {
		return pRot
	}
	morton := table.SFCToMorton(pRot, sfcIndex)
	return table.ChildRotation(pRot, morton)
}
