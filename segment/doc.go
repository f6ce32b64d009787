// Package segment defines the cached unit of the aggregation cache.
//
// # Header
//
// A Header is the immutable cache key of a segment: the schema, cube, measure
// and fact table it belongs to, the ordered list of constrained columns (each
// with an explicit value set or a wildcard), excluded regions and compound
// predicates. Headers built from equivalent constraints are Equal, hash
// identically and share a UniqueID regardless of how they were constructed.
//
// # Body
//
// A Body holds the cell values. It is a tagged variant:
//
//   - Dense: one contiguous array addressed by cell ordinal, specialised to
//     []int64 or []float64 when every value fits, with a roaring bitmap of
//     cells that hold no value.
//   - Sparse: a map from CellKey (ordinal tuple) to value.
//
// BuildBody picks the representation through Thresholds.Choose so that
// loaded and rolled-up segments decide identically.
//
// # Axis
//
// Each body carries one Axis per constrained column: the sorted distinct
// values observed plus a flag recording whether null was present. The null
// coordinate, when present, is the last ordinal of the axis.
package segment
