package hilbert

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"
)

// ErrDimensionUnsupported reports a dimension outside the range the AxBits
// representation (an unsigned integer wide enough to hold `dim` bits,
// dim <= 8) can encode.
var ErrDimensionUnsupported = errors.New("hilbert: dimension unsupported")

const maxDim = 8

// Table is the rotation table for a given spatial dimension: the
// orientation × child lookups spec.md §3 calls `rotations`/`hilbertTable`.
// It is immutable process-wide data once built (spec.md §5) and safe for
// concurrent reads from every rank.
type Table struct {
	Dim             int
	NumOrientations int

	// rotations[pRot] has length 2*NumChildren(): the first half maps an
	// SFC-order child index to its Morton-order child index under
	// orientation pRot; the second half is the inverse.
	rotations [][]int

	// hilbertTable[pRot][mortonChild] is the orientation index of that
	// child's own subtree.
	hilbertTable [][]int
}

// NumChildren returns 2^Dim.
func (t *Table) NumChildren() int {
	return 1 << t.Dim
}

// RootRotation returns the orientation index of the identity orientation,
// the rotation a level-0 root cell carries.
func (t *Table) RootRotation() int {
	return 0
}

// SFCToMorton returns the Morton-order child index for the given SFC-order
// child index under orientation pRot.
func (t *Table) SFCToMorton(pRot, sfcChild int) int {
	return t.rotations[pRot][sfcChild]
}

// MortonToSFC returns the SFC-order child index for the given Morton-order
// child index under orientation pRot.
func (t *Table) MortonToSFC(pRot, mortonChild int) int {
	n := t.NumChildren()
	return t.rotations[pRot][n+mortonChild]
}

// ChildRotation returns the orientation index of the subtree rooted at the
// given Morton-order child of a cell with orientation pRot.
func (t *Table) ChildRotation(pRot, mortonChild int) int {
	return t.hilbertTable[pRot][mortonChild]
}

// Generate builds the rotation table for the given spatial dimension by
// enumerating all reachable orientations (spec.md §4.B step 2) and then,
// for each orientation and each SFC position, applying Haverkort's
// refinement operator to fill in the SFC<->Morton lookups and each child's
// own orientation (spec.md §4.B step 3).
func Generate(dim int) (*Table, error) {
	if dim < 1 || maxDim < dim {
		return nil, fmt.Errorf("hilbert: dim=%d: %w", dim, ErrDimensionUnsupported)
	}

	orientations, index := enumerateOrientations(dim)
	numChildren := 1 << dim

	rotations := make([][]int, len(orientations))
	hilbertTable := make([][]int, len(orientations))
	for pRot, orient := range orientations {
		rotations[pRot] = make([]int, 2*numChildren)
		hilbertTable[pRot] = make([]int, numChildren)

		for sfcChild := 0; sfcChild < numChildren; sfcChild++ {
			loc, childRefOrient := Refine(sfcChild, dim)
			mortonLocal := orient.Apply(loc, dim)
			morton := int(reverseBits(mortonLocal, dim))

			rotations[pRot][sfcChild] = morton
			rotations[pRot][numChildren+morton] = sfcChild

			childOrient := orient.Compose(childRefOrient, dim)
			hilbertTable[pRot][morton] = index[childOrient.key()]
		}
	}

	glog.V(1).Infof("hilbert: generated rotation table for dim=%d with %d orientations", dim, len(orientations))

	return &Table{
		Dim:             dim,
		NumOrientations: len(orientations),
		rotations:       rotations,
		hilbertTable:    hilbertTable,
	}, nil
}

// enumerateOrientations performs the explicit-stack depth-first walk of
// spec.md §4.B step 2: starting from the identity, it composes the parent's
// orientation with the refinement orientation of every child in turn, and
// keeps going until no orientation is newly discovered. A recursive
// implementation would overflow the stack for dim close to 8 (spec.md §9);
// here the explicit stack lives on the heap as a slice of frames.
func enumerateOrientations(dim int) (order []Orient, index map[key]int) {
	type frame struct {
		orient Orient
		next   int
	}

	index = make(map[key]int)
	discover := func(o Orient) bool {
		k := o.key()
		if _, ok := index[k]; ok {
			return false
		}
		index[k] = len(order)
		order = append(order, o)
		return true
	}

	root := identity(dim)
	discover(root)
	stack := []frame{{orient: root, next: 0}}
	numChildren := 1 << dim

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= numChildren {
			stack = stack[:len(stack)-1]
			continue
		}
		_, childRefOrient := Refine(top.next, dim)
		top.next++
		child := top.orient.Compose(childRefOrient, dim)
		if discover(child) {
			stack = append(stack, frame{orient: child, next: 0})
		}
	}

	return order, index
}

var (
	mu     sync.Mutex
	tables = make(map[int]*Table)
)

// Get returns the process-wide rotation table for the given dimension,
// building it on first use (spec.md §6's paired initialize/destroy,
// §9's "initialize lazily on first use, guarded by a one-shot flag"). The
// table is immutable afterward and safe for concurrent reads.
func Get(dim int) (*Table, error) {
	mu.Lock()
	defer mu.Unlock()

	if t, ok := tables[dim]; ok {
		return t, nil
	}
	t, err := Generate(dim)
	if err != nil {
		return nil, err
	}
	tables[dim] = t
	return t, nil
}

// Destroy clears every process-wide rotation table. Construction of a
// table is not safe to race with a concurrent Destroy; callers must ensure
// no tree operation is in flight, matching spec.md §5's "construction is
// not thread-safe but is performed once before any tree operation."
func Destroy() {
	mu.Lock()
	defer mu.Unlock()
	tables = make(map[int]*Table)
}
