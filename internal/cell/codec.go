package cell

import (
	"encoding/binary"
	"fmt"
)

// wireSize returns the number of bytes Encode produces for a cell of the
// given dimension.
func wireSize(dim int) int {
	return 4 + 4*dim
}

// Encode serializes c as its level followed by its Dim coordinates, all as
// little-endian uint32s. This is the wire format partition/comm moves
// across an AllToAllV exchange; the transport itself is opaque (spec §6),
// so no particular format is mandated beyond what this module's own ranks
// need to agree on.
func Encode(c Cell) []byte {
	buf := make([]byte, wireSize(len(c.coords)))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(c.level))
	for i, x := range c.coords {
		binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], x)
	}
	return buf
}

// Decode reverses Encode, validating the result against p.
func Decode(p Params, buf []byte) (Cell, error) {
	if len(buf) != wireSize(p.Dim) {
		return Cell{}, fmt.Errorf("cell: decode: expected %d bytes, got %d: %w", wireSize(p.Dim), len(buf), ErrInvalidCell)
	}
	level := int(binary.LittleEndian.Uint32(buf[0:4]))
	coords := make([]uint32, p.Dim)
	for i := range coords {
		coords[i] = binary.LittleEndian.Uint32(buf[4+4*i : 8+4*i])
	}
	return New(p, coords, level)
}

// EncodeAll concatenates the wire encoding of every cell in cells.
func EncodeAll(cells []Cell) []byte {
	if len(cells) == 0 {
		return nil
	}
	size := wireSize(len(cells[0].coords))
	buf := make([]byte, 0, size*len(cells))
	for _, c := range cells {
		buf = append(buf, Encode(c)...)
	}
	return buf
}

// DecodeAll reverses EncodeAll for a dimension known in advance via p.
func DecodeAll(p Params, buf []byte) ([]Cell, error) {
	size := wireSize(p.Dim)
	if len(buf)%size != 0 {
		return nil, fmt.Errorf("cell: decodeAll: %d bytes is not a multiple of record size %d: %w", len(buf), size, ErrInvalidCell)
	}
	n := len(buf) / size
	out := make([]Cell, n)
	for i := 0; i < n; i++ {
		c, err := Decode(p, buf[i*size:(i+1)*size])
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
