package rollup

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/aggcache/bitkey"
	"github.com/hupe1980/aggcache/model"
	"github.com/hupe1980/aggcache/segment"
)

// checkEvery is the number of cells between cancellation checks.
const checkEvery = 4096

// Source is one cached segment taking part in a rollup.
type Source struct {
	Header *segment.Header
	Body   *segment.Body
}

// Options configure a rollup.
type Options struct {
	// Aggregator combines contributions. Defaults to Sum.
	Aggregator Aggregator
	// Datatype is the measure's cell datatype.
	Datatype model.Datatype
	// Thresholds select the representation of the result body.
	// The zero value means segment.DefaultThresholds.
	Thresholds segment.Thresholds
	// CacheKeyHint, when not empty, is the bit-key the caller expects the
	// retained columns to produce.
	CacheKeyHint bitkey.BitKey
	// Target, when set, bounds the result: cells whose retained coordinates
	// fall outside the target's constraints are dropped, and the result
	// takes the target's columns instead of the union of the sources'.
	// It must describe the sources' fact and constrain exactly the retained
	// columns.
	Target *segment.Header
}

// plan is the validated shape of a rollup.
type plan struct {
	ref      *segment.Header
	target   *segment.Header
	sources  []Source
	columns  []string // canonical order: ref's column order
	perms    [][]int  // per source: canonical column -> source axis
	retained []int    // canonical positions kept, in canonical order
}

// Rollup summarises sources down to the retained columns and returns the
// header and body of the new segment.
//
// Every source must describe the same measure of the same fact table with
// the same compound predicates and the same constrained columns. Cells whose
// full coordinate appears in more than one source are counted once; cells
// inside a source's excluded regions are ignored.
func Rollup(ctx context.Context, sources []Source, retain []string, opts Options) (*segment.Header, *segment.Body, error) {
	agg := opts.Aggregator
	if agg == nil {
		agg = Sum
	}
	thresholds := opts.Thresholds
	if thresholds == (segment.Thresholds{}) {
		thresholds = segment.DefaultThresholds()
	}

	p, err := newPlan(sources, retain)
	if err != nil {
		return nil, nil, err
	}
	if err := p.bind(opts.Target); err != nil {
		return nil, nil, err
	}

	header, err := p.header()
	if err != nil {
		return nil, nil, err
	}
	if !opts.CacheKeyHint.IsEmpty() && !opts.CacheKeyHint.Equal(header.BitKey()) {
		return nil, nil, fmt.Errorf("%w: cache key hint %s does not match retained columns %s",
			ErrInvariant, opts.CacheKeyHint, header.BitKey())
	}

	axes := p.axes()
	contributions, err := p.collect(ctx, axes)
	if err != nil {
		return nil, nil, err
	}

	cells := make(map[segment.CellKey]model.Value, len(contributions))
	n := 0
	for key, byFact := range contributions {
		if n++; n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, fmt.Errorf("rollup: %w", err)
			}
		}
		facts := make([]string, 0, len(byFact))
		for f := range byFact {
			facts = append(facts, f)
		}
		slices.Sort(facts)
		values := make([]model.Value, len(facts))
		for i, f := range facts {
			values[i] = byFact[f]
		}
		v, err := agg.Rollup(values, opts.Datatype)
		if err != nil {
			return nil, nil, fmt.Errorf("rollup: %s cell %s: %w", agg.Name(), key, err)
		}
		if v.IsNull() {
			continue
		}
		cells[key] = v
	}

	body, err := segment.BuildBody(axes, cells, opts.Datatype, thresholds)
	if err != nil {
		return nil, nil, fmt.Errorf("rollup: build body: %w", err)
	}
	return header, body, nil
}

func newPlan(sources []Source, retain []string) (*plan, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no sources", ErrInvariant)
	}
	sorted := slices.Clone(sources)
	for i, s := range sorted {
		if s.Header == nil || s.Body == nil {
			return nil, fmt.Errorf("%w: source %d has no header or body", ErrInvariant, i)
		}
	}
	// Several bodies may share one header; their content breaks the tie so
	// that first-wins deduplication does not depend on caller order.
	prints := make(map[*segment.Body]string)
	fingerprintOf := func(b *segment.Body) string {
		fp, ok := prints[b]
		if !ok {
			fp = fingerprint(b)
			prints[b] = fp
		}
		return fp
	}
	slices.SortFunc(sorted, func(a, b Source) int {
		if c := strings.Compare(a.Header.UniqueID(), b.Header.UniqueID()); c != 0 {
			return c
		}
		return strings.Compare(fingerprintOf(a.Body), fingerprintOf(b.Body))
	})

	ref := sorted[0].Header
	p := &plan{
		ref:     ref,
		sources: sorted,
		columns: ref.ColumnExpressions(),
		perms:   make([][]int, len(sorted)),
	}

	for i, s := range sorted {
		h := s.Header
		if !h.SameFact(ref) {
			return nil, fmt.Errorf("%w: %s and %s describe different facts", ErrInvariant, ref.FactKey(), h.FactKey())
		}
		if !slices.Equal(h.CompoundPredicates(), ref.CompoundPredicates()) {
			return nil, fmt.Errorf("%w: compound predicates differ", ErrInvariant)
		}
		if len(h.Columns()) != len(p.columns) {
			return nil, fmt.Errorf("%w: constrained columns differ", ErrInvariant)
		}
		if len(s.Body.Axes()) != len(p.columns) {
			return nil, fmt.Errorf("%w: body has %d axes for %d columns", ErrInvariant, len(s.Body.Axes()), len(p.columns))
		}
		perm := make([]int, len(p.columns))
		for c, expr := range p.columns {
			col, j, ok := h.Column(expr)
			if !ok {
				return nil, fmt.Errorf("%w: constrained columns differ on %q", ErrInvariant, expr)
			}
			refCol, _, _ := ref.Column(expr)
			if col.BitPosition() != refCol.BitPosition() {
				return nil, fmt.Errorf("%w: column %q has bit position %d and %d", ErrInvariant, expr, refCol.BitPosition(), col.BitPosition())
			}
			perm[c] = j
		}
		p.perms[i] = perm
	}

	keep := make(map[string]struct{}, len(retain))
	for _, expr := range retain {
		if _, _, ok := ref.Column(expr); !ok {
			return nil, fmt.Errorf("%w: retained column %q is not constrained", ErrInvariant, expr)
		}
		keep[expr] = struct{}{}
	}
	for c, expr := range p.columns {
		if _, ok := keep[expr]; ok {
			p.retained = append(p.retained, c)
		}
	}

	for _, s := range sorted {
		for _, r := range s.Header.ExcludedRegions() {
			if _, ok := keep[r.Expression()]; !ok {
				return nil, fmt.Errorf("%w: source excludes %s on a column being rolled up", ErrInvariant, r)
			}
		}
	}
	return p, nil
}

// bind checks target against the plan and restricts the result to it.
func (p *plan) bind(target *segment.Header) error {
	if target == nil {
		return nil
	}
	if !target.SameFact(p.ref) {
		return fmt.Errorf("%w: target %s and sources %s describe different facts", ErrInvariant, target.FactKey(), p.ref.FactKey())
	}
	if !slices.Equal(target.CompoundPredicates(), p.ref.CompoundPredicates()) {
		return fmt.Errorf("%w: target compound predicates differ", ErrInvariant)
	}
	if len(target.Columns()) != len(p.retained) {
		return fmt.Errorf("%w: target constrains %d columns, %d retained", ErrInvariant, len(target.Columns()), len(p.retained))
	}
	for _, c := range p.retained {
		expr := p.columns[c]
		col, _, ok := target.Column(expr)
		if !ok {
			return fmt.Errorf("%w: target does not constrain retained column %q", ErrInvariant, expr)
		}
		refCol, _, _ := p.ref.Column(expr)
		if col.BitPosition() != refCol.BitPosition() {
			return fmt.Errorf("%w: target column %q has bit position %d, sources %d", ErrInvariant, expr, col.BitPosition(), refCol.BitPosition())
		}
	}
	p.target = target
	return nil
}

// admits reports whether v on retained column expr belongs in the result.
func (p *plan) admits(expr string, v model.Value) bool {
	if p.target == nil {
		return true
	}
	col, _, _ := p.target.Column(expr)
	return col.Contains(v) && !p.target.IsExcluded(expr, v)
}

// header builds the header of the result.
func (p *plan) header() (*segment.Header, error) {
	params := p.ref.Params()
	params.Columns = make([]segment.Column, 0, len(p.retained))
	params.ExcludedRegions = nil

	for _, c := range p.retained {
		expr := p.columns[c]
		var col segment.Column
		if p.target != nil {
			col, _, _ = p.target.Column(expr)
		} else {
			col, _, _ = p.sources[0].Header.Column(expr)
			for _, s := range p.sources[1:] {
				other, _, _ := s.Header.Column(expr)
				col = col.Union(other)
			}
		}
		params.Columns = append(params.Columns, col)

		if region, ok := p.excluded(expr); ok {
			params.ExcludedRegions = append(params.ExcludedRegions, region)
		}
	}

	h, err := segment.NewHeader(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	return h, nil
}

// excluded returns the values of expr excluded by every source that could
// have held them, together with those the target excludes.
func (p *plan) excluded(expr string) (segment.Column, bool) {
	var candidates, out []model.Value
	if p.target != nil {
		if r, ok := p.target.ExcludedRegion(expr); ok {
			out = append(out, r.Values()...)
		}
	}
	for _, s := range p.sources {
		if r, ok := s.Header.ExcludedRegion(expr); ok {
			candidates = append(candidates, r.Values()...)
		}
	}
	for _, v := range candidates {
		if p.target != nil && !p.admits(expr, v) {
			continue
		}
		excludedEverywhere := true
		for _, s := range p.sources {
			col, _, _ := s.Header.Column(expr)
			if col.Contains(v) && !s.Header.IsExcluded(expr, v) {
				excludedEverywhere = false
				break
			}
		}
		if excludedEverywhere {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return segment.Column{}, false
	}
	col, _, _ := p.ref.Column(expr)
	return segment.NewColumn(expr, col.BitPosition(), out...), true
}

// axes unions the retained axes of all sources, less the values the target
// does not admit.
func (p *plan) axes() []*segment.Axis {
	axes := make([]*segment.Axis, len(p.retained))
	for i, c := range p.retained {
		for s, src := range p.sources {
			a := src.Body.Axes()[p.perms[s][c]]
			if axes[i] == nil {
				axes[i] = a
				continue
			}
			axes[i] = axes[i].Union(a)
		}
		if p.target == nil {
			continue
		}
		expr := p.columns[c]
		kept := make([]model.Value, 0, len(axes[i].Values()))
		for _, v := range axes[i].Values() {
			if p.admits(expr, v) {
				kept = append(kept, v)
			}
		}
		axes[i] = segment.NewAxis(kept, axes[i].ContainsNull() && p.admits(expr, model.Null()))
	}
	return axes
}

// collect gathers, per output cell, the contributing values keyed by their
// full fact coordinate. The first source in plan order wins a duplicate.
func (p *plan) collect(ctx context.Context, axes []*segment.Axis) (map[segment.CellKey]map[string]model.Value, error) {
	out := make(map[segment.CellKey]map[string]model.Value)
	values := make([]model.Value, len(p.columns))
	ords := make([]int, len(p.retained))
	var (
		fact []byte
		n    int
		err  error
	)

	for s, src := range p.sources {
		srcAxes := src.Body.Axes()
		perm := p.perms[s]
		h := src.Header

		src.Body.ForEach(func(key segment.CellKey, v model.Value) bool {
			if n++; n%checkEvery == 0 {
				if err = ctx.Err(); err != nil {
					err = fmt.Errorf("rollup: %w", err)
					return false
				}
			}
			srcOrds := key.Ordinals()
			for c, expr := range p.columns {
				val, ok := srcAxes[perm[c]].Value(srcOrds[perm[c]])
				if !ok {
					err = fmt.Errorf("%w: cell %s outside its axes", ErrInvariant, key)
					return false
				}
				if h.IsExcluded(expr, val) {
					return true
				}
				values[c] = val
			}
			for _, c := range p.retained {
				if !p.admits(p.columns[c], values[c]) {
					return true
				}
			}
			for i, c := range p.retained {
				ord, ok := axes[i].Ordinal(values[c])
				if !ok {
					err = fmt.Errorf("%w: value %s missing from unioned axis %q", ErrInvariant, values[c], p.columns[c])
					return false
				}
				ords[i] = ord
			}

			fact = fact[:0]
			for _, val := range values {
				fact = model.AppendBinary(fact, val)
			}
			target := segment.NewCellKey(ords...)
			byFact, ok := out[target]
			if !ok {
				byFact = make(map[string]model.Value)
				out[target] = byFact
			}
			if _, dup := byFact[string(fact)]; !dup {
				byFact[string(fact)] = v
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// fingerprint renders a body's cells in a canonical order.
func fingerprint(b *segment.Body) string {
	axes := b.Axes()
	var (
		cells []string
		buf   []byte
	)
	b.ForEach(func(key segment.CellKey, v model.Value) bool {
		buf = buf[:0]
		for i, ord := range key.Ordinals() {
			val, _ := axes[i].Value(ord)
			buf = model.AppendBinary(buf, val)
		}
		buf = model.AppendBinary(buf, v)
		cells = append(cells, string(buf))
		return true
	})
	slices.Sort(cells)
	return strings.Join(cells, "")
}
