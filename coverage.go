package aggcache

import (
	"slices"

	"github.com/hupe1980/aggcache/model"
	"github.com/hupe1980/aggcache/segment"
)

const defaultCoverageBudget = 4096

// domain is the set of values a request needs for one column: an explicit
// value list, or every value of the column.
type domain struct {
	all    bool
	values []model.Value
}

// region is the part of a candidate segment's cell space that holds data,
// with columns aligned to a coverage's column order.
type region struct {
	header  *segment.Header
	columns []segment.Column
}

// full reports whether the region holds every value of column i.
func (r region) full(i int) bool {
	if !r.columns[i].IsWildcard() {
		return false
	}
	_, excluded := r.header.ExcludedRegion(r.columns[i].Expression())
	return !excluded
}

func (r region) has(i int, v model.Value) bool {
	return r.columns[i].Contains(v) && !r.header.IsExcluded(r.columns[i].Expression(), v)
}

func (r region) intersects(target []domain) bool {
	for i, d := range target {
		if d.all || r.columns[i].IsWildcard() {
			continue
		}
		if !slices.ContainsFunc(d.values, func(v model.Value) bool { return r.has(i, v) }) {
			return false
		}
	}
	return true
}

func (r region) contains(target []domain) bool {
	for i, d := range target {
		if r.full(i) {
			continue
		}
		if d.all {
			return false
		}
		for _, v := range d.values {
			if !r.has(i, v) {
				return false
			}
		}
	}
	return true
}

// coverage decides whether the union of candidate regions covers a target
// region. A column needing every value is covered by a wildcard region, or
// by explicit values once their count reaches the column's known
// cardinality. The check is sound but not complete: it answers false when
// the budget runs out.
type coverage struct {
	columns       []string
	cardinalities map[string]int
	budget        int
}

func (c *coverage) covers(regions []region, target []domain) bool {
	c.budget--
	if c.budget < 0 {
		return false
	}

	regions = slices.DeleteFunc(slices.Clone(regions), func(r region) bool { return !r.intersects(target) })
	if len(regions) == 0 {
		return false
	}
	for _, r := range regions {
		if r.contains(target) {
			return true
		}
	}

	// Split the first column with several explicit values.
	for i, d := range target {
		if d.all || len(d.values) < 2 {
			continue
		}
		for _, v := range d.values {
			sub := slices.Clone(target)
			sub[i] = domain{values: []model.Value{v}}
			if !c.covers(regions, sub) {
				return false
			}
		}
		return true
	}

	// Resolve a column needing every value that some region only partially holds.
	for i, d := range target {
		if !d.all {
			continue
		}
		var full []region
		seen := make(map[string]model.Value)
		for _, r := range regions {
			if r.full(i) {
				full = append(full, r)
				continue
			}
			for _, v := range r.columns[i].Values() {
				if r.has(i, v) {
					seen[string(model.AppendBinary(nil, v))] = v
				}
			}
		}
		if len(full) == len(regions) {
			continue
		}
		if len(full) > 0 && c.covers(full, target) {
			return true
		}
		card, ok := c.cardinalities[c.columns[i]]
		if !ok || card <= 0 || len(seen) < card {
			return false
		}
		values := make([]model.Value, 0, len(seen))
		for _, v := range seen {
			values = append(values, v)
		}
		slices.SortFunc(values, model.Compare)

		sub := slices.Clone(target)
		sub[i] = domain{values: values}
		return c.covers(regions, sub)
	}
	return false
}
