package sfc

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/dendro-kt/octree/internal/cell"
	"github.com/dendro-kt/octree/internal/hilbert"
)

func init() {
	seed := time.Now().Unix()
	fmt.Println(seed)
	rand.Seed(seed)
}

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

func shuffled(cells []cell.Cell) []cell.Cell {
	out := make([]cell.Cell, len(cells))
	copy(out, cells)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func sameMultiset(a, b []cell.Cell) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, x := range a {
		found := false
		for j, y := range b {
			if !used[j] && x.Equal(y) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestLocalSortIsPermutationAndDeterministic(t *testing.T) {
	p := cell.Params{Dim: 2, MaxDepth: 3}
	table, err := hilbert.Generate(p.Dim)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaves := allLeavesAtLevel(p, p.MaxDepth)

	var reference []cell.Cell
	for trial := 0; trial < 10; trial++ {
		input := shuffled(leaves)
		LocalSort(input, 0, len(input), 1, p.MaxDepth, table.RootRotation(), IdentityKey, table, p)

		if !sameMultiset(input, leaves) {
			t.Fatalf("trial %d: sorted output is not a permutation of input", trial)
		}
		if reference == nil {
			reference = input
			continue
		}
		for i := range reference {
			if !reference[i].Equal(input[i]) {
				t.Fatalf("trial %d: sort order not deterministic at index %d: %v vs %v", trial, i, reference[i], input[i])
			}
		}
	}
}

func TestLocalSortStableUnderReapplication(t *testing.T) {
	p := cell.Params{Dim: 3, MaxDepth: 3}
	table, err := hilbert.Generate(p.Dim)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaves := shuffled(allLeavesAtLevel(p, p.MaxDepth))

	once := make([]cell.Cell, len(leaves))
	copy(once, leaves)
	LocalSort(once, 0, len(once), 1, p.MaxDepth, table.RootRotation(), IdentityKey, table, p)

	twice := make([]cell.Cell, len(once))
	copy(twice, once)
	LocalSort(twice, 0, len(twice), 1, p.MaxDepth, table.RootRotation(), IdentityKey, table, p)

	for i := range once {
		if !once[i].Equal(twice[i]) {
			t.Fatalf("re-sorting a sorted slice changed index %d: %v vs %v", i, once[i], twice[i])
		}
	}
}

func TestLocalSortCompanionTracksPermutation(t *testing.T) {
	p := cell.Params{Dim: 2, MaxDepth: 2}
	table, err := hilbert.Generate(p.Dim)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaves := shuffled(allLeavesAtLevel(p, p.MaxDepth))
	labels := make([]int, len(leaves))
	index := make(map[string]int, len(leaves))
	for i, c := range leaves {
		labels[i] = i
		index[c.String()] = i
	}

	LocalSortCompanion(leaves, labels, 0, len(leaves), 1, p.MaxDepth, table.RootRotation(), IdentityKey, table, p)

	for i, c := range leaves {
		if want := index[c.String()]; labels[i] != want {
			t.Fatalf("companion at index %d = %d, want %d (cell %v)", i, labels[i], want, c)
		}
	}
}

func TestLocateBucketsMatchesBucketSplitters(t *testing.T) {
	p := cell.Params{Dim: 2, MaxDepth: 3}
	table, err := hilbert.Generate(p.Dim)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	leaves := shuffled(allLeavesAtLevel(p, p.MaxDepth))

	locateInput := make([]cell.Cell, len(leaves))
	copy(locateInput, leaves)
	wantSplitters, wantAncStart, wantAncEnd := LocateBuckets(locateInput, 0, len(locateInput), 1, table.RootRotation(), ancestorsFirstPolicy, IdentityKey, table, p)
	if !sameMultiset(locateInput, leaves) {
		t.Fatal("LocateBuckets must not move data")
	}

	gotSplitters, gotAncStart, gotAncEnd := Bucket(leaves, 0, len(leaves), 1, table.RootRotation(), ancestorsFirstPolicy, IdentityKey, table, p)
	if gotAncStart != wantAncStart || gotAncEnd != wantAncEnd {
		t.Fatalf("ancestor range = [%d,%d), want [%d,%d)", gotAncStart, gotAncEnd, wantAncStart, wantAncEnd)
	}
	for i := range gotSplitters {
		if gotSplitters[i] != wantSplitters[i] {
			t.Fatalf("splitters[%d] = %d, want %d", i, gotSplitters[i], wantSplitters[i])
		}
	}
}

func TestBucketEmptyRange(t *testing.T) {
	p := cell.Params{Dim: 2, MaxDepth: 2}
	table, err := hilbert.Generate(p.Dim)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var empty []cell.Cell
	splitters, ancStart, ancEnd := Bucket(empty, 0, 0, 1, table.RootRotation(), ancestorsFirstPolicy, IdentityKey, table, p)
	if ancStart != 0 || ancEnd != 0 {
		t.Fatalf("expected empty ancestor range, got [%d,%d)", ancStart, ancEnd)
	}
	for _, s := range splitters {
		if s != 0 {
			t.Fatalf("expected all-zero splitters for empty range, got %v", splitters)
		}
	}
}
