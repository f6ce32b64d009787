package aggcache

import (
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/aggcache/segment"
)

// Index tracks the headers held by a cache so that requests can be answered
// without enumerating the cache. Headers are grouped by fact identity and
// compound predicates, then by column set.
//
// Index is safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	byID   map[string]*segment.Header
	groups map[string]map[string]map[string]*segment.Header // fact -> column set -> id
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		byID:   make(map[string]*segment.Header),
		groups: make(map[string]map[string]map[string]*segment.Header),
	}
}

func factGroup(h *segment.Header) string {
	return h.FactKey() + "\x1e" + strings.Join(h.CompoundPredicates(), "\x1f")
}

func columnSet(h *segment.Header) string {
	exprs := h.ColumnExpressions()
	sorted := slices.Clone(exprs)
	slices.Sort(sorted)
	return strings.Join(sorted, "\x1f")
}

// Add indexes h and reports whether it was new.
func (x *Index) Add(h *segment.Header) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	id := h.UniqueID()
	if _, ok := x.byID[id]; ok {
		return false
	}
	x.byID[id] = h

	fact, cols := factGroup(h), columnSet(h)
	sets, ok := x.groups[fact]
	if !ok {
		sets = make(map[string]map[string]*segment.Header)
		x.groups[fact] = sets
	}
	members, ok := sets[cols]
	if !ok {
		members = make(map[string]*segment.Header)
		sets[cols] = members
	}
	members[id] = h
	return true
}

// Remove drops h and reports whether it was indexed.
func (x *Index) Remove(h *segment.Header) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	id := h.UniqueID()
	if _, ok := x.byID[id]; !ok {
		return false
	}
	delete(x.byID, id)

	fact, cols := factGroup(h), columnSet(h)
	delete(x.groups[fact][cols], id)
	if len(x.groups[fact][cols]) == 0 {
		delete(x.groups[fact], cols)
	}
	if len(x.groups[fact]) == 0 {
		delete(x.groups, fact)
	}
	return true
}

// FindExact returns the indexed header equal to h.
func (x *Index) FindExact(h *segment.Header) (*segment.Header, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	found, ok := x.byID[h.UniqueID()]
	return found, ok
}

// Len returns the number of indexed headers.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byID)
}

// Headers returns the indexed headers ordered by unique id.
func (x *Index) Headers() []*segment.Header {
	x.mu.RLock()
	headers := make([]*segment.Header, 0, len(x.byID))
	for _, h := range x.byID {
		headers = append(headers, h)
	}
	x.mu.RUnlock()

	sortHeaders(headers)
	return headers
}

// FindRollupCandidates returns headers whose segments, rolled up together,
// answer h: they share h's fact identity and compound predicates, constrain
// a superset of h's columns at the same bit positions, and together cover
// h's values. Columns not in h are summarized away, so the candidates must
// cover every value of them: a wildcard column does, and so do explicit
// values once their count reaches the cardinality given for the column.
//
// Among column sets that cover h, the one with the fewest columns wins.
// It returns nil when no column set covers h.
func (x *Index) FindRollupCandidates(h *segment.Header, cardinalities map[string]int) []*segment.Header {
	return x.findRollupCandidates(h, cardinalities, defaultCoverageBudget)
}

func (x *Index) findRollupCandidates(h *segment.Header, cardinalities map[string]int, budget int) []*segment.Header {
	x.mu.RLock()
	var groups [][]*segment.Header
	for _, members := range x.groups[factGroup(h)] {
		group := make([]*segment.Header, 0, len(members))
		for _, m := range members {
			if !m.Equal(h) {
				group = append(group, m)
			}
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	x.mu.RUnlock()

	slices.SortFunc(groups, func(a, b []*segment.Header) int {
		if d := len(a[0].Columns()) - len(b[0].Columns()); d != 0 {
			return d
		}
		return strings.Compare(columnSet(a[0]), columnSet(b[0]))
	})

	for _, group := range groups {
		if found := coveringRegions(h, group, cardinalities, budget); len(found) > 0 {
			return found
		}
	}
	return nil
}

// coveringRegions returns the members of one column-set group intersecting
// h, or nil when they do not cover h.
func coveringRegions(h *segment.Header, group []*segment.Header, cardinalities map[string]int, budget int) []*segment.Header {
	columns := group[0].ColumnExpressions()

	target := make([]domain, len(columns))
	for i, expr := range columns {
		req, _, ok := h.Column(expr)
		switch {
		case !ok:
			target[i] = domain{all: true}
		case req.IsWildcard():
			target[i] = domain{all: true}
		default:
			target[i] = domain{values: req.Values()}
		}
	}

	regions := make([]region, 0, len(group))
	for _, m := range group {
		r, ok := alignRegion(h, m, columns)
		if ok && r.intersects(target) {
			regions = append(regions, r)
		}
	}
	if len(regions) == 0 {
		return nil
	}

	cv := &coverage{columns: columns, cardinalities: cardinalities, budget: budget}
	if !cv.covers(regions, target) {
		return nil
	}

	found := make([]*segment.Header, len(regions))
	for i, r := range regions {
		found[i] = r.header
	}
	sortHeaders(found)
	return found
}

// alignRegion orders m's columns like columns. ok is false when m cannot
// take part in a rollup to h: a kept column sits at a different bit position,
// or a summarized column has an excluded region.
func alignRegion(h, m *segment.Header, columns []string) (region, bool) {
	r := region{header: m, columns: make([]segment.Column, len(columns))}
	for i, expr := range columns {
		col, _, ok := m.Column(expr)
		if !ok {
			return region{}, false
		}
		req, _, kept := h.Column(expr)
		if kept && req.BitPosition() != col.BitPosition() {
			return region{}, false
		}
		if _, excluded := m.ExcludedRegion(expr); excluded && !kept {
			return region{}, false
		}
		r.columns[i] = col
	}
	for _, c := range h.Columns() {
		if _, _, ok := m.Column(c.Expression()); !ok {
			return region{}, false
		}
	}
	return r, true
}

func sortHeaders(headers []*segment.Header) {
	slices.SortFunc(headers, func(a, b *segment.Header) int {
		return strings.Compare(a.UniqueID(), b.UniqueID())
	})
}
