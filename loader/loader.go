package loader

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/hupe1980/aggcache/bitkey"
	"github.com/hupe1980/aggcache/model"
	"github.com/hupe1980/aggcache/segment"
)

// checkEvery is the number of rows between cancellation checks.
const checkEvery = 1024

// Rows is a forward-only cursor over result rows, shaped like *sql.Rows.
type Rows interface {
	Next() bool
	// Values returns the current row. The slice may be reused by the next
	// call to Next.
	Values() []model.Value
	Err() error
}

// Encoding selects how a row signals its rolled-up columns.
type Encoding uint8

const (
	// EncodingDescriptor rows end with a GROUPING_ID-style integer.
	EncodingDescriptor Encoding = iota
	// EncodingNulls rows mark rolled-up columns with NULL.
	EncodingNulls
)

func (e Encoding) String() string {
	switch e {
	case EncodingDescriptor:
		return "descriptor"
	case EncodingNulls:
		return "nulls"
	default:
		return fmt.Sprintf("Encoding(%d)", uint8(e))
	}
}

// GroupingSet is one target granularity of a load.
type GroupingSet struct {
	// Segments hold one segment per measure, in the row's measure order.
	// Their headers constrain exactly Columns, in the same order.
	Segments []*segment.Segment
	// Columns are the request columns this grouping set groups by.
	Columns []string
}

// Request describes one statement's rows.
type Request struct {
	// Columns are the grouped columns of the statement, in row order.
	Columns      []string
	GroupingSets []*GroupingSet
	Encoding     Encoding
	// Thresholds select body representations. The zero value means
	// segment.DefaultThresholds.
	Thresholds segment.Thresholds
}

// groupingState accumulates one grouping set's rows.
type groupingState struct {
	set     *GroupingSet
	columns []int // request column index per grouping set column
	values  []map[model.Value]struct{}
	nulls   []bool
	cells   []row
	seen    map[string]struct{}
}

type row struct {
	coords   []model.Value
	measures []model.Value
}

// Load consumes rows and returns one body per segment of every grouping set.
// Bodies are only returned once all rows were consumed successfully.
func Load(ctx context.Context, rows Rows, req Request, opts ...Option) (map[*segment.Segment]*segment.Body, error) {
	o := applyOptions(opts)
	start := time.Now()

	thresholds := req.Thresholds
	if thresholds == (segment.Thresholds{}) {
		thresholds = segment.DefaultThresholds()
	}
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	states, measures, err := plan(req)
	if err != nil {
		return nil, err
	}

	descriptor := len(req.GroupingSets) > 1 && req.Encoding == EncodingDescriptor
	width := len(req.Columns) + measures
	if descriptor {
		width++
	}
	nullable := nullableColumns(req)
	only := states[rolledUp(req.Columns, req.GroupingSets[0]).String()]

	n := 0
	for rows.Next() {
		n++
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("loader: %w", err)
			}
		}
		vals := rows.Values()
		if len(vals) != width {
			return nil, &RowError{Row: n, Err: fmt.Errorf("%w: %d values, want %d", ErrRowShape, len(vals), width)}
		}

		var key bitkey.BitKey
		switch {
		case descriptor:
			key, err = descriptorKey(vals[width-1], len(req.Columns))
			if err != nil {
				return nil, &RowError{Row: n, Err: err}
			}
		case len(req.GroupingSets) > 1:
			for i := range req.Columns {
				if nullable[i] && vals[i].IsNull() {
					key = key.Set(i)
				}
			}
		}

		st, ok := states[key.String()]
		if len(req.GroupingSets) == 1 {
			st, ok = only, true
		}
		if !ok {
			return nil, &RowError{Row: n, Err: fmt.Errorf("%w: rolled-up columns %s", ErrUnknownGroupingSet, key)}
		}
		if err := st.add(vals, len(req.Columns), measures); err != nil {
			return nil, &RowError{Row: n, Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loader: rows: %w", err)
	}

	out := make(map[*segment.Segment]*segment.Body)
	for _, gs := range req.GroupingSets {
		st := states[rolledUp(req.Columns, gs).String()]
		if err := st.build(thresholds, out); err != nil {
			return nil, err
		}
	}

	o.logger.DebugContext(ctx, "grouping sets loaded",
		"rows", n,
		"grouping_sets", len(req.GroupingSets),
		"segments", len(out),
		"duration", time.Since(start),
	)
	return out, nil
}

// plan validates req and prepares one accumulator per grouping set, keyed by
// the grouping set's rolled-up bit-key. It returns the number of measures.
func plan(req Request) (map[string]*groupingState, int, error) {
	if len(req.GroupingSets) == 0 {
		return nil, 0, fmt.Errorf("%w: no grouping sets", ErrInvalidRequest)
	}
	if req.Encoding != EncodingDescriptor && req.Encoding != EncodingNulls {
		return nil, 0, fmt.Errorf("%w: unknown encoding %s", ErrInvalidRequest, req.Encoding)
	}
	if len(req.GroupingSets) > 1 && req.Encoding == EncodingDescriptor && len(req.Columns) > 62 {
		return nil, 0, fmt.Errorf("%w: %d columns do not fit a grouping descriptor", ErrInvalidRequest, len(req.Columns))
	}
	index := make(map[string]int, len(req.Columns))
	for i, c := range req.Columns {
		if _, dup := index[c]; dup {
			return nil, 0, fmt.Errorf("%w: duplicate column %q", ErrInvalidRequest, c)
		}
		index[c] = i
	}

	measures := len(req.GroupingSets[0].Segments)
	states := make(map[string]*groupingState, len(req.GroupingSets))
	for _, gs := range req.GroupingSets {
		if len(gs.Segments) == 0 || len(gs.Segments) != measures {
			return nil, 0, fmt.Errorf("%w: every grouping set needs %d segments", ErrInvalidRequest, max(measures, 1))
		}
		cols := make([]int, len(gs.Columns))
		for i, c := range gs.Columns {
			j, ok := index[c]
			if !ok {
				return nil, 0, fmt.Errorf("%w: grouping set column %q is not requested", ErrInvalidRequest, c)
			}
			cols[i] = j
		}
		for _, s := range gs.Segments {
			if !slices.Equal(s.Header().ColumnExpressions(), gs.Columns) {
				return nil, 0, fmt.Errorf("%w: segment %s does not constrain %v", ErrInvalidRequest, s.Header(), gs.Columns)
			}
		}

		key := rolledUp(req.Columns, gs).String()
		if _, dup := states[key]; dup {
			return nil, 0, fmt.Errorf("%w: two grouping sets roll up %s", ErrInvalidRequest, key)
		}
		states[key] = &groupingState{
			set:     gs,
			columns: cols,
			values:  make([]map[model.Value]struct{}, len(cols)),
			nulls:   make([]bool, len(cols)),
			seen:    make(map[string]struct{}),
		}
	}
	return states, measures, nil
}

// rolledUp returns the bit-key of the request columns gs does not group by.
func rolledUp(columns []string, gs *GroupingSet) bitkey.BitKey {
	var k bitkey.BitKey
	for i, c := range columns {
		if !slices.Contains(gs.Columns, c) {
			k = k.Set(i)
		}
	}
	return k
}

// nullableColumns marks the request columns some grouping set omits; only
// those can signal a rollup through NULL.
func nullableColumns(req Request) []bool {
	out := make([]bool, len(req.Columns))
	for _, gs := range req.GroupingSets {
		k := rolledUp(req.Columns, gs)
		for _, p := range k.Positions() {
			out[p] = true
		}
	}
	return out
}

// descriptorKey decodes a GROUPING_ID value. Column 0 is the most
// significant of n bits.
func descriptorKey(v model.Value, n int) (bitkey.BitKey, error) {
	id, ok := v.AsInt64()
	if !ok {
		if f, isFloat := v.AsFloat64(); isFloat && f == float64(int64(f)) {
			id, ok = int64(f), true
		}
	}
	if !ok || id < 0 || id >= int64(1)<<n {
		return bitkey.BitKey{}, fmt.Errorf("%w: grouping descriptor %s", ErrRowShape, v)
	}
	var k bitkey.BitKey
	for i := range n {
		if id&(int64(1)<<(n-1-i)) != 0 {
			k = k.Set(i)
		}
	}
	return k, nil
}

func (st *groupingState) add(vals []model.Value, columns, measures int) error {
	coords := make([]model.Value, len(st.columns))
	var key []byte
	for i, c := range st.columns {
		if f, _ := vals[c].AsFloat64(); vals[c].Kind() == model.KindFloat && math.IsNaN(f) {
			return fmt.Errorf("%w: NaN value for %s", ErrRowShape, st.set.Columns[i])
		}
		coords[i] = vals[c]
		key = model.AppendBinary(key, vals[c])
	}
	if _, dup := st.seen[string(key)]; dup {
		return fmt.Errorf("%w: %v in %v", ErrDuplicateCell, coords, st.set.Columns)
	}
	st.seen[string(key)] = struct{}{}

	for i, v := range coords {
		if v.IsNull() {
			st.nulls[i] = true
			continue
		}
		if st.values[i] == nil {
			st.values[i] = make(map[model.Value]struct{})
		}
		st.values[i][v] = struct{}{}
	}
	st.cells = append(st.cells, row{
		coords:   coords,
		measures: slices.Clone(vals[columns : columns+measures]),
	})
	return nil
}

func (st *groupingState) build(t segment.Thresholds, out map[*segment.Segment]*segment.Body) error {
	axes := make([]*segment.Axis, len(st.columns))
	for i := range axes {
		vs := make([]model.Value, 0, len(st.values[i]))
		for v := range st.values[i] {
			vs = append(vs, v)
		}
		axes[i] = segment.NewAxis(vs, st.nulls[i])
	}

	keys := make([]segment.CellKey, len(st.cells))
	ords := make([]int, len(axes))
	for r, c := range st.cells {
		for i, v := range c.coords {
			ord, ok := axes[i].Ordinal(v)
			if !ok {
				return fmt.Errorf("%w: value %s has no coordinate on %s", ErrRowShape, v, st.set.Columns[i])
			}
			ords[i] = ord
		}
		keys[r] = segment.NewCellKey(ords...)
	}

	for m, seg := range st.set.Segments {
		cells := make(map[segment.CellKey]model.Value, len(st.cells))
		for r, c := range st.cells {
			if v := c.measures[m]; !v.IsNull() {
				cells[keys[r]] = v
			}
		}
		body, err := segment.BuildBody(axes, cells, seg.Datatype(), t)
		if err != nil {
			return fmt.Errorf("loader: build %s: %w", seg.Header().MeasureName(), err)
		}
		out[seg] = body
	}
	return nil
}
