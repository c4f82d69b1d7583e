package sfc

import "github.com/dendro-kt/octree/internal/cell"

// RemoveDuplicates drops exact duplicates from an SFC-sorted slice of cells
// in a single left-to-right pass, retaining ancestors (Dendro's "strict"
// variant). The input must already be SFC-sorted; the result is the
// possibly-shrunk prefix of cells.
func RemoveDuplicates(cells []cell.Cell) []cell.Cell {
	if len(cells) == 0 {
		return cells
	}
	out := cells[:1]
	for _, c := range cells[1:] {
		if c.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// RemoveDuplicatesAndAncestors drops both exact duplicates and any cell that
// is the ancestor of its successor from an SFC-sorted slice, in a single
// left-to-right pass (spec §4.F's sortAndRemoveAncestors). It relies on the
// slice already being bucketed with ancestors preceding their descendants,
// as LocalSort produces by default.
func RemoveDuplicatesAndAncestors(params cell.Params, cells []cell.Cell) []cell.Cell {
	if len(cells) == 0 {
		return cells
	}
	out := cells[:1]
	for _, c := range cells[1:] {
		prev := out[len(out)-1]
		if c.Equal(prev) {
			continue
		}
		if prev.IsAncestorOf(params, c) {
			out[len(out)-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}
