// Package sfc buckets and sorts slices of cell-keyed elements into the
// order a harmonious Hilbert space-filling curve visits them, using the
// rotation table internal/hilbert builds. This is the local half of
// distributed sort/partition (spec §4.C); partition glues many ranks'
// local sorts together on top of this package.
package sfc

import (
	"github.com/dendro-kt/octree/internal/cell"
	"github.com/dendro-kt/octree/internal/hilbert"
)

// KeyFunc extracts the cell.Cell an element of type T is keyed by. Sorting a
// plain []cell.Cell uses IdentityKey; sorting arbitrary payloads by an
// embedded cell uses a projection.
type KeyFunc[T any] func(T) cell.Cell

// IdentityKey is the KeyFunc for []cell.Cell itself.
func IdentityKey(c cell.Cell) cell.Cell { return c }

// Policy controls how Bucket and LocateBuckets treat elements whose key is
// coarser than the level being bucketed.
type Policy struct {
	// SeparateAncestors routes elements with key.Level() < L into a bucket
	// of their own instead of their would-be child bucket.
	SeparateAncestors bool
	// AncestorsFirst places the ancestor bucket before all sibling buckets
	// instead of after.
	AncestorsFirst bool
}

// assignment classifies one element for bucketing: whether it belongs to
// the ancestor bucket, and if not, which SFC-order sibling it belongs to.
type assignment struct {
	isAncestor bool
	sfcIndex   int
}

func classify[T any](points []T, level, pRot int, policy Policy, keyFn KeyFunc[T], table *hilbert.Table, params cell.Params) []assignment {
	out := make([]assignment, len(points))
	for i, pt := range points {
		key := keyFn(pt)
		if policy.SeparateAncestors && key.Level() < level {
			out[i] = assignment{isAncestor: true}
			continue
		}
		morton := key.MortonIndex(params, level)
		out[i] = assignment{sfcIndex: table.MortonToSFC(pRot, morton)}
	}
	return out
}

// offsets computes, from the per-element assignments, the destination slot
// of every element and the nChildren+1 sibling splitters plus the ancestor
// bucket's [ancStart, ancEnd) — all relative to begin.
func offsets(assignments []assignment, nChildren int, policy Policy) (dest []int, splitters []int, ancStart, ancEnd int) {
	counts := make([]int, nChildren)
	ancCount := 0
	for _, a := range assignments {
		if a.isAncestor {
			ancCount++
		} else {
			counts[a.sfcIndex]++
		}
	}

	start := make([]int, nChildren)
	pos := 0
	if policy.AncestorsFirst {
		ancStart = 0
		ancEnd = ancCount
		pos = ancCount
	}
	splitters = make([]int, nChildren+1)
	for i := 0; i < nChildren; i++ {
		splitters[i] = pos
		start[i] = pos
		pos += counts[i]
	}
	splitters[nChildren] = pos
	if !policy.AncestorsFirst {
		ancStart = pos
		ancEnd = pos + ancCount
		pos += ancCount
	}

	dest = make([]int, len(assignments))
	cursor := make([]int, nChildren)
	copy(cursor, start)
	ancCursor := ancStart
	for i, a := range assignments {
		if a.isAncestor {
			dest[i] = ancCursor
			ancCursor++
		} else {
			dest[i] = cursor[a.sfcIndex]
			cursor[a.sfcIndex]++
		}
	}
	return dest, splitters, ancStart, ancEnd
}

// Bucket reorders points[begin:end) in place into SFC order at level level
// under parent orientation pRot: every element lands in its sibling bucket
// (or the ancestor bucket, per policy), and buckets are laid out
// contiguously in SFC order. It returns the nChildren+1 sibling splitters
// (each splitters[i] is the offset, relative to begin, where sibling i
// starts; splitters[nChildren] is the one-past-the-end offset) and the
// ancestor bucket's [ancStart, ancEnd) range, also relative to begin.
func Bucket[T any](points []T, begin, end, level, pRot int, policy Policy, keyFn KeyFunc[T], table *hilbert.Table, params cell.Params) (splitters []int, ancStart, ancEnd int) {
	if begin >= end {
		empty := make([]int, table.NumChildren()+1)
		return empty, 0, 0
	}
	window := points[begin:end]
	assignments := classify(window, level, pRot, policy, keyFn, table, params)
	dest, splitters, ancStart, ancEnd := offsets(assignments, table.NumChildren(), policy)

	out := make([]T, len(window))
	for i, d := range dest {
		out[d] = window[i]
	}
	copy(window, out)
	return splitters, ancStart, ancEnd
}

// BucketCompanion is Bucket, except a parallel companion slice is permuted
// in lockstep with points.
func BucketCompanion[T, C any](points []T, companions []C, begin, end, level, pRot int, policy Policy, keyFn KeyFunc[T], table *hilbert.Table, params cell.Params) (splitters []int, ancStart, ancEnd int) {
	if begin >= end {
		empty := make([]int, table.NumChildren()+1)
		return empty, 0, 0
	}
	window := points[begin:end]
	companionWindow := companions[begin:end]
	assignments := classify(window, level, pRot, policy, keyFn, table, params)
	dest, splitters, ancStart, ancEnd := offsets(assignments, table.NumChildren(), policy)

	outPoints := make([]T, len(window))
	outCompanions := make([]C, len(window))
	for i, d := range dest {
		outPoints[d] = window[i]
		outCompanions[d] = companionWindow[i]
	}
	copy(window, outPoints)
	copy(companionWindow, outCompanions)
	return splitters, ancStart, ancEnd
}

// LocateBuckets computes the same splitters and ancestor range Bucket would
// produce, without moving any data.
func LocateBuckets[T any](points []T, begin, end, level, pRot int, policy Policy, keyFn KeyFunc[T], table *hilbert.Table, params cell.Params) (splitters []int, ancStart, ancEnd int) {
	if begin >= end {
		empty := make([]int, table.NumChildren()+1)
		return empty, 0, 0
	}
	assignments := classify(points[begin:end], level, pRot, policy, keyFn, table, params)
	_, splitters, ancStart, ancEnd = offsets(assignments, table.NumChildren(), policy)
	return splitters, ancStart, ancEnd
}
