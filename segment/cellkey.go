package segment

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// CellKey identifies a cell by its ordinal on every axis. It is comparable
// and usable as a map key.
type CellKey string

// NewCellKey encodes an ordinal tuple.
func NewCellKey(ordinals ...int) CellKey {
	buf := make([]byte, 0, len(ordinals)*2)
	for _, o := range ordinals {
		buf = binary.AppendUvarint(buf, uint64(o))
	}
	return CellKey(buf)
}

// Ordinals decodes the ordinal tuple.
func (k CellKey) Ordinals() []int {
	var out []int
	data := []byte(k)
	for len(data) > 0 {
		v, n := binary.Uvarint(data)
		if n <= 0 {
			return out
		}
		out = append(out, int(v))
		data = data[n:]
	}
	return out
}

func (k CellKey) String() string {
	ords := k.Ordinals()
	parts := make([]string, len(ords))
	for i, o := range ords {
		parts[i] = strconv.Itoa(o)
	}
	return "(" + strings.Join(parts, ",") + ")"
}
