package segment

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/hupe1980/aggcache/bitkey"
	"github.com/hupe1980/aggcache/model"
	"github.com/zeebo/blake3"
)

// HeaderParams are the fully resolved constraints a Header is built from.
type HeaderParams struct {
	SchemaName     string
	SchemaChecksum string
	CubeName       string
	MeasureName    string
	FactTable      string

	// Columns are the constrained columns in star order.
	Columns []Column
	// ExcludedRegions list, per column, the values whose cells are excluded.
	ExcludedRegions []Column
	// CompoundPredicates are canonical descriptions of non-column predicates.
	CompoundPredicates []string
}

// Header is the immutable cache key of a segment.
type Header struct {
	schemaName         string
	schemaChecksum     string
	cubeName           string
	measureName        string
	factTable          string
	columns            []Column
	excludedRegions    []Column
	compoundPredicates []string
	bitKey             bitkey.BitKey

	canonical []byte
	hash      uint64
	uniqueID  string
}

// NewHeader validates p and builds a Header.
//
// Compound predicates and excluded regions are put in canonical order; the
// column order is preserved. The bit-key is derived from the columns' bit
// positions so headers produced by different code paths agree.
func NewHeader(p HeaderParams) (*Header, error) {
	if p.SchemaName == "" || p.CubeName == "" || p.MeasureName == "" || p.FactTable == "" {
		return nil, fmt.Errorf("%w: schema, cube, measure and fact table are required", ErrInvalidHeader)
	}

	seen := make(map[string]struct{}, len(p.Columns))
	var bk bitkey.BitKey
	for _, c := range p.Columns {
		if c.expression == "" {
			return nil, fmt.Errorf("%w: empty column expression", ErrInvalidHeader)
		}
		if _, dup := seen[c.expression]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidHeader, c.expression)
		}
		seen[c.expression] = struct{}{}
		if c.bitPosition >= 0 {
			if bk.Test(c.bitPosition) {
				return nil, fmt.Errorf("%w: duplicate bit position %d", ErrInvalidHeader, c.bitPosition)
			}
			bk = bk.Set(c.bitPosition)
		}
	}

	regions := make([]Column, 0, len(p.ExcludedRegions))
	for _, r := range p.ExcludedRegions {
		if _, ok := seen[r.expression]; !ok {
			return nil, fmt.Errorf("%w: excluded region on unconstrained column %q", ErrInvalidHeader, r.expression)
		}
		if r.wildcard {
			return nil, fmt.Errorf("%w: excluded region on %q must enumerate its values", ErrInvalidHeader, r.expression)
		}
		if len(r.values) == 0 {
			continue
		}
		if i := slices.IndexFunc(regions, func(o Column) bool { return o.expression == r.expression }); i >= 0 {
			regions[i] = regions[i].Union(r)
			continue
		}
		regions = append(regions, r)
	}
	slices.SortStableFunc(regions, func(a, b Column) int { return strings.Compare(a.expression, b.expression) })

	preds := slices.Clone(p.CompoundPredicates)
	slices.Sort(preds)
	preds = slices.Compact(preds)

	h := &Header{
		schemaName:         p.SchemaName,
		schemaChecksum:     p.SchemaChecksum,
		cubeName:           p.CubeName,
		measureName:        p.MeasureName,
		factTable:          p.FactTable,
		columns:            slices.Clone(p.Columns),
		excludedRegions:    regions,
		compoundPredicates: preds,
		bitKey:             bk,
	}
	h.canonical = h.appendCanonical(nil)
	h.hash = xxhash.Sum64(h.canonical)
	sum := blake3.Sum256(h.canonical)
	h.uniqueID = hex.EncodeToString(sum[:])
	return h, nil
}

// Params returns the parameters the header was built from.
func (h *Header) Params() HeaderParams {
	return HeaderParams{
		SchemaName:         h.schemaName,
		SchemaChecksum:     h.schemaChecksum,
		CubeName:           h.cubeName,
		MeasureName:        h.measureName,
		FactTable:          h.factTable,
		Columns:            slices.Clone(h.columns),
		ExcludedRegions:    slices.Clone(h.excludedRegions),
		CompoundPredicates: slices.Clone(h.compoundPredicates),
	}
}

func (h *Header) SchemaName() string     { return h.schemaName }
func (h *Header) SchemaChecksum() string { return h.schemaChecksum }
func (h *Header) CubeName() string       { return h.cubeName }
func (h *Header) MeasureName() string    { return h.measureName }
func (h *Header) FactTable() string      { return h.factTable }

// Columns returns the constrained columns. Callers must not modify the slice.
func (h *Header) Columns() []Column { return h.columns }

// ColumnExpressions returns the constrained column expressions in order.
func (h *Header) ColumnExpressions() []string {
	out := make([]string, len(h.columns))
	for i, c := range h.columns {
		out[i] = c.expression
	}
	return out
}

// Column returns the constrained column with the given expression.
func (h *Header) Column(expression string) (Column, int, bool) {
	for i, c := range h.columns {
		if c.expression == expression {
			return c, i, true
		}
	}
	return Column{}, -1, false
}

// ExcludedRegions returns the excluded regions sorted by column expression.
func (h *Header) ExcludedRegions() []Column { return h.excludedRegions }

// CompoundPredicates returns the sorted compound predicate descriptions.
func (h *Header) CompoundPredicates() []string { return h.compoundPredicates }

// BitKey returns the bit-key of the constrained columns.
func (h *Header) BitKey() bitkey.BitKey { return h.bitKey }

// Hash returns a 64-bit hash of the header's canonical form.
func (h *Header) Hash() uint64 { return h.hash }

// UniqueID returns the hex BLAKE3 digest of the header's canonical form. It
// is stable across processes and is the key used by distributed caches.
func (h *Header) UniqueID() string { return h.uniqueID }

// Equal reports whether both headers describe the same cell set.
func (h *Header) Equal(o *Header) bool {
	if h == o {
		return true
	}
	if h == nil || o == nil {
		return false
	}
	return h.hash == o.hash && string(h.canonical) == string(o.canonical)
}

// SameFact reports whether both headers belong to the same schema, cube,
// measure and fact table.
func (h *Header) SameFact(o *Header) bool {
	return h.FactKey() == o.FactKey()
}

// FactKey returns a string identifying the header's schema, cube, measure
// and fact table.
func (h *Header) FactKey() string {
	return strings.Join([]string{h.schemaName, h.schemaChecksum, h.cubeName, h.measureName, h.factTable}, "\x1f")
}

// IsExcluded reports whether a cell whose value for the given column is v
// falls in one of the header's excluded regions.
func (h *Header) IsExcluded(expression string, v model.Value) bool {
	for _, r := range h.excludedRegions {
		if r.expression == expression && r.Contains(v) {
			return true
		}
	}
	return false
}

// ExcludedRegion returns the excluded region on the given column, if any.
func (h *Header) ExcludedRegion(expression string) (Column, bool) {
	for _, r := range h.excludedRegions {
		if r.expression == expression {
			return r, true
		}
	}
	return Column{}, false
}

// Description renders the header for humans.
func (h *Header) Description() string {
	var sb strings.Builder
	sb.WriteString("*Segment Header\n")
	fmt.Fprintf(&sb, "Schema:[%s]\n", h.schemaName)
	fmt.Fprintf(&sb, "Checksum:[%s]\n", h.schemaChecksum)
	fmt.Fprintf(&sb, "Cube:[%s]\n", h.cubeName)
	fmt.Fprintf(&sb, "Measure:[%s]\n", h.measureName)
	fmt.Fprintf(&sb, "Fact:[%s]\n", h.factTable)
	sb.WriteString("Axes:[")
	for i, c := range h.columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.String())
	}
	sb.WriteString("]\nExcluded Regions:[")
	for i, r := range h.excludedRegions {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(r.String())
	}
	fmt.Fprintf(&sb, "]\nCompound Predicates:[%s]\n", strings.Join(h.compoundPredicates, ", "))
	fmt.Fprintf(&sb, "ID:[%s]\n", h.uniqueID)
	return sb.String()
}

func (h *Header) String() string {
	cols := make([]string, len(h.columns))
	for i, c := range h.columns {
		cols[i] = c.String()
	}
	return fmt.Sprintf("%s.%s[%s]", h.cubeName, h.measureName, strings.Join(cols, ", "))
}

func (h *Header) appendCanonical(dst []byte) []byte {
	dst = appendString(dst, h.schemaName)
	dst = appendString(dst, h.schemaChecksum)
	dst = appendString(dst, h.cubeName)
	dst = appendString(dst, h.measureName)
	dst = appendString(dst, h.factTable)
	dst = appendInt(dst, int64(len(h.columns)))
	for _, c := range h.columns {
		dst = c.appendCanonical(dst)
	}
	dst = appendInt(dst, int64(len(h.excludedRegions)))
	for _, r := range h.excludedRegions {
		dst = r.appendCanonical(dst)
	}
	dst = appendInt(dst, int64(len(h.compoundPredicates)))
	for _, p := range h.compoundPredicates {
		dst = appendString(dst, p)
	}
	return dst
}

func appendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func appendInt(dst []byte, i int64) []byte {
	return binary.AppendVarint(dst, i)
}
