package segment

import (
	"slices"
	"strings"

	"github.com/hupe1980/aggcache/model"
)

// Column is a constrained column of a header: a column expression together
// with either an explicit set of values or a wildcard.
//
// A wildcard column does not enumerate its values (for example because the
// predicate was too large to itemise). Coverage questions about a wildcard
// column can only be answered by consulting a body's Axis.
type Column struct {
	expression  string
	bitPosition int
	values      []model.Value
	wildcard    bool
}

// NewColumn returns a column constrained to values. The values are sorted and
// de-duplicated. bitPosition is the column's position in the star's bit-key
// space; pass -1 when unknown.
func NewColumn(expression string, bitPosition int, values ...model.Value) Column {
	vs := slices.Clone(values)
	slices.SortFunc(vs, model.Compare)
	vs = slices.Compact(vs)
	if vs == nil {
		vs = []model.Value{}
	}
	return Column{expression: expression, bitPosition: bitPosition, values: vs}
}

// NewWildcardColumn returns a column that is constrained to any value.
func NewWildcardColumn(expression string, bitPosition int) Column {
	return Column{expression: expression, bitPosition: bitPosition, wildcard: true}
}

// Expression returns the column expression (e.g. "time.the_year").
func (c Column) Expression() string { return c.expression }

// BitPosition returns the position of the column in the star's bit-key space.
func (c Column) BitPosition() int { return c.bitPosition }

// IsWildcard reports whether the column does not enumerate its values.
func (c Column) IsWildcard() bool { return c.wildcard }

// Values returns the explicit values in ascending order, or nil for a
// wildcard. Callers must not modify the returned slice.
func (c Column) Values() []model.Value {
	if c.wildcard {
		return nil
	}
	return c.values
}

// Contains reports whether v satisfies the column constraint.
func (c Column) Contains(v model.Value) bool {
	if c.wildcard {
		return true
	}
	_, found := slices.BinarySearchFunc(c.values, v, model.Compare)
	return found
}

// Covers reports whether every value admitted by o is admitted by c.
func (c Column) Covers(o Column) bool {
	if c.wildcard {
		return true
	}
	if o.wildcard {
		return false
	}
	for _, v := range o.values {
		if !c.Contains(v) {
			return false
		}
	}
	return true
}

// Union returns a column admitting the values of both. A wildcard absorbs.
func (c Column) Union(o Column) Column {
	if c.wildcard || o.wildcard {
		return NewWildcardColumn(c.expression, c.bitPosition)
	}
	vs := make([]model.Value, 0, len(c.values)+len(o.values))
	vs = append(vs, c.values...)
	vs = append(vs, o.values...)
	return NewColumn(c.expression, c.bitPosition, vs...)
}

// Equal reports whether both columns are structurally identical.
func (c Column) Equal(o Column) bool {
	return c.expression == o.expression &&
		c.bitPosition == o.bitPosition &&
		c.wildcard == o.wildcard &&
		slices.Equal(c.values, o.values)
}

func (c Column) String() string {
	var sb strings.Builder
	sb.WriteString(c.expression)
	sb.WriteString("=")
	if c.wildcard {
		sb.WriteString("*")
		return sb.String()
	}
	sb.WriteByte('{')
	for i, v := range c.values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

func (c Column) appendCanonical(dst []byte) []byte {
	dst = appendString(dst, c.expression)
	dst = appendInt(dst, int64(c.bitPosition))
	if c.wildcard {
		return append(dst, 1)
	}
	dst = append(dst, 0)
	dst = appendInt(dst, int64(len(c.values)))
	for _, v := range c.values {
		dst = model.AppendBinary(dst, v)
	}
	return dst
}
