// Package partition implements distributed sort, tree construction, and
// 2:1 balancing: the operations that turn each rank's local cells into a
// globally SFC-ordered, load-balanced distributed octree (spec §4.D-4.F).
// Every operation here is grounded on the breadth-first bucket-refinement
// algorithm of original_source/include/tsort.h, generalized from MPI
// collectives to the comm.Comm collaborator this module defines.
package partition

import (
	"context"
	"fmt"
	"sort"

	"github.com/dendro-kt/octree/comm"
	"github.com/dendro-kt/octree/internal/cell"
	"github.com/dendro-kt/octree/internal/hilbert"
	"github.com/dendro-kt/octree/internal/sfc"
)

// BucketInfo describes one node of the breadth-first refinement frontier:
// its orientation and level, its range within the rank's own working
// slice, and (once known) its count across every rank and the global count
// of every cell preceding it in SFC order. It is the Go equivalent of
// tsort.h's BucketInfo, generalized with Count and Prefix fields since this
// module tracks global weight directly rather than through a separate queue
// of splitters.
type BucketInfo struct {
	RotID  int
	Level  int
	Begin  int
	End    int
	Count  int64
	Prefix int64
}

// DistPartition redistributes points across every rank so that, read rank
// by rank, the concatenation is the globally SFC-sorted sequence, keeping
// every rank's share within loadFlex of N/P (spec §4.D).
func DistPartition(ctx context.Context, c comm.Comm, points []cell.Cell, params cell.Params, loadFlex float64, table *hilbert.Table) ([]cell.Cell, error) {
	sfc.LocalSort(points, 0, len(points), 1, params.MaxDepth, table.RootRotation(), sfc.IdentityKey, table, params)

	globalN, err := allReduceSum(ctx, c, int64(len(points)))
	if err != nil {
		return nil, err
	}
	if globalN == 0 {
		return points[:0], nil
	}

	ranks := int64(c.Size())
	tolerance := loadFlex * float64(globalN) / float64(ranks)

	queue := []BucketInfo{{RotID: table.RootRotation(), Level: 0, Begin: 0, End: len(points), Count: globalN}}
	var finalized []BucketInfo

	for len(queue) > 0 {
		type expansion struct {
			parent    BucketInfo
			splitters []int
		}
		expansions := make([]expansion, len(queue))
		localCounts := make([]int64, 0, len(queue)*table.NumChildren())
		for i, b := range queue {
			splitters, _, _ := sfc.Bucket(points, b.Begin, b.End, b.Level+1, b.RotID, sfc.Policy{}, sfc.IdentityKey, table, params)
			expansions[i] = expansion{parent: b, splitters: splitters}
			for k := 0; k < table.NumChildren(); k++ {
				localCounts = append(localCounts, int64(splitters[k+1]-splitters[k]))
			}
		}

		globalCounts, err := c.AllReduceInt64(ctx, localCounts, comm.SUM)
		if err != nil {
			return nil, fmt.Errorf("partition: distPartition: %w", comm.ErrCommFailure)
		}

		var nextQueue []BucketInfo
		idx := 0
		for _, e := range expansions {
			prefix := e.parent.Prefix
			for k := 0; k < table.NumChildren(); k++ {
				count := globalCounts[idx]
				idx++
				if count == 0 {
					continue
				}
				bucket := BucketInfo{
					RotID:  sfc.ChildRotation(table, e.parent.RotID, e.parent.Level+1, k),
					Level:  e.parent.Level + 1,
					Begin:  e.parent.Begin + e.splitters[k],
					End:    e.parent.Begin + e.splitters[k+1],
					Count:  count,
					Prefix: prefix,
				}
				prefix += count
				if bucket.Level == params.MaxDepth || count <= 1 || !straddlesBoundary(bucket.Prefix, count, ranks, globalN, tolerance) {
					finalized = append(finalized, bucket)
				} else {
					nextQueue = append(nextQueue, bucket)
				}
			}
		}
		queue = nextQueue
	}

	// Sorting by global Prefix recovers the true SFC order of the finalized
	// buckets, identically on every rank, regardless of the order in which
	// the breadth-first walk happened to decide them final; every recursive
	// Bucket call above laid out sibling ranges contiguously in that same
	// order, so each bucket's local range follows it.
	sort.Slice(finalized, func(i, j int) bool { return finalized[i].Prefix < finalized[j].Prefix })

	owners := assignOwners(finalized, ranks, globalN)

	perDest := make([][]cell.Cell, ranks)
	for i, b := range finalized {
		perDest[owners[i]] = append(perDest[owners[i]], points[b.Begin:b.End]...)
	}
	send := make([][]byte, ranks)
	for r := int64(0); r < ranks; r++ {
		send[r] = cell.EncodeAll(perDest[r])
	}

	recv, err := c.AllToAllV(ctx, send)
	if err != nil {
		return nil, fmt.Errorf("partition: distPartition: %w", comm.ErrCommFailure)
	}

	var out []cell.Cell
	for _, payload := range recv {
		cells, err := cell.DecodeAll(params, payload)
		if err != nil {
			return nil, fmt.Errorf("partition: distPartition: %w", err)
		}
		out = append(out, cells...)
	}

	sfc.LocalSort(out, 0, len(out), 1, params.MaxDepth, table.RootRotation(), sfc.IdentityKey, table, params)
	return out, nil
}

// straddlesBoundary reports whether any of the P-1 ideal rank boundaries
// falls strictly inside [prefixBefore, prefixBefore+count), more than
// tolerance away from either edge — i.e. whether this bucket is too coarse
// to let a nearby boundary snap to one of its edges within load tolerance.
func straddlesBoundary(prefixBefore, count, ranks int64, globalN int64, tolerance float64) bool {
	for r := int64(1); r < ranks; r++ {
		ideal := idealBoundary(r, globalN, ranks)
		if float64(ideal) > float64(prefixBefore)+tolerance && float64(ideal) < float64(prefixBefore+count)-tolerance {
			return true
		}
	}
	return false
}

func idealBoundary(r, globalN, ranks int64) int64 {
	return r * globalN / ranks
}

// assignOwners walks the SFC-sorted finalized buckets and greedily assigns
// each to the rank whose ideal share it falls into, advancing the current
// rank whenever its share has already been met. Owners are monotonically
// non-decreasing, so the resulting redistribution is itself globally
// SFC-ordered rank by rank (spec property 3).
func assignOwners(sorted []BucketInfo, ranks, globalN int64) []int64 {
	owners := make([]int64, len(sorted))
	owner := int64(0)
	var cumBefore int64
	for i, b := range sorted {
		for owner < ranks-1 && cumBefore >= idealBoundary(owner+1, globalN, ranks) {
			owner++
		}
		owners[i] = owner
		cumBefore += b.Count
	}
	return owners
}

func allReduceSum(ctx context.Context, c comm.Comm, local int64) (int64, error) {
	out, err := c.AllReduceInt64(ctx, []int64{local}, comm.SUM)
	if err != nil {
		return 0, fmt.Errorf("partition: %w", comm.ErrCommFailure)
	}
	return out[0], nil
}
