package segment

import (
	"slices"
	"strings"

	"github.com/hupe1980/aggcache/model"
)

// Axis is the ordered set of distinct values observed for one column of a
// segment, plus whether a null value was observed.
//
// Values never contains a null entry. When containsNull is set, the null
// coordinate is ordinal len(values).
type Axis struct {
	values       []model.Value
	containsNull bool
	index        map[model.Value]int
}

// NewAxis builds an axis. Null entries in values are folded into the
// containsNull flag; the remaining values are sorted and de-duplicated.
func NewAxis(values []model.Value, containsNull bool) *Axis {
	vs := make([]model.Value, 0, len(values))
	for _, v := range values {
		if v.IsNull() {
			containsNull = true
			continue
		}
		vs = append(vs, v)
	}
	slices.SortFunc(vs, model.Compare)
	vs = slices.Compact(vs)

	index := make(map[model.Value]int, len(vs))
	for i, v := range vs {
		index[v] = i
	}
	return &Axis{values: vs, containsNull: containsNull, index: index}
}

// Values returns the non-null values in ascending order. Callers must not
// modify the returned slice.
func (a *Axis) Values() []model.Value { return a.values }

// ContainsNull reports whether a null value was observed.
func (a *Axis) ContainsNull() bool { return a.containsNull }

// Len returns the number of coordinates on the axis, counting null.
func (a *Axis) Len() int {
	if a.containsNull {
		return len(a.values) + 1
	}
	return len(a.values)
}

// Ordinal returns the coordinate of v on the axis.
func (a *Axis) Ordinal(v model.Value) (int, bool) {
	if v.IsNull() {
		if a.containsNull {
			return len(a.values), true
		}
		return 0, false
	}
	i, ok := a.index[v]
	return i, ok
}

// Value returns the value at coordinate ord; the null ordinal yields Null.
func (a *Axis) Value(ord int) (model.Value, bool) {
	switch {
	case ord >= 0 && ord < len(a.values):
		return a.values[ord], true
	case a.containsNull && ord == len(a.values):
		return model.Null(), true
	default:
		return model.Value{}, false
	}
}

// Union returns an axis holding the values of both axes; containsNull is
// the OR of both flags.
func (a *Axis) Union(o *Axis) *Axis {
	vs := make([]model.Value, 0, len(a.values)+len(o.values))
	vs = append(vs, a.values...)
	vs = append(vs, o.values...)
	return NewAxis(vs, a.containsNull || o.containsNull)
}

// Equal reports whether both axes hold the same values and null flag.
func (a *Axis) Equal(o *Axis) bool {
	return a.containsNull == o.containsNull && slices.Equal(a.values, o.values)
}

func (a *Axis) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range a.values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.String())
	}
	if a.containsNull {
		if len(a.values) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("#null")
	}
	sb.WriteByte(']')
	return sb.String()
}
