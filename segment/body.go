package segment

import (
	"fmt"
	"math/bits"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/aggcache/model"
)

// Representation is the storage layout of a Body.
type Representation uint8

const (
	// Dense stores every cell in one array addressed by ordinal.
	Dense Representation = iota
	// Sparse stores only loaded cells in a map keyed by CellKey.
	Sparse
)

func (r Representation) String() string {
	if r == Dense {
		return "dense"
	}
	return "sparse"
}

// Storage is the concrete backing store of a Body.
type Storage uint8

const (
	// StorageObjects is a dense []model.Value.
	StorageObjects Storage = iota
	// StorageInts is a dense []int64.
	StorageInts
	// StorageFloats is a dense []float64.
	StorageFloats
	// StorageMap is a sparse map[CellKey]model.Value.
	StorageMap
)

func (s Storage) String() string {
	switch s {
	case StorageObjects:
		return "objects"
	case StorageInts:
		return "ints"
	case StorageFloats:
		return "floats"
	default:
		return "map"
	}
}

// Body holds the cell values of a segment. It is immutable once built and
// safe for concurrent reads.
type Body struct {
	storage Storage
	axes    []*Axis
	lens    []int
	strides []uint64
	size    int64
	// addressable is false when the ordinal space overflows int64.
	addressable bool

	ints    []int64
	floats  []float64
	objects []model.Value
	// nulls marks dense cells that hold no value.
	nulls *roaring.Bitmap

	cells map[CellKey]model.Value
}

func newBody(storage Storage, axes []*Axis) *Body {
	b := &Body{
		storage: storage,
		axes:    axes,
		lens:    make([]int, len(axes)),
		strides: make([]uint64, len(axes)),
	}
	for i, a := range axes {
		b.lens[i] = a.Len()
	}
	size, ok := PossibleCells(b.lens)
	b.addressable = ok
	b.size = size

	stride := uint64(1)
	for i := len(axes) - 1; i >= 0; i-- {
		b.strides[i] = stride
		hi, lo := bits.Mul64(stride, uint64(b.lens[i]))
		if hi != 0 {
			b.addressable = false
		}
		stride = lo
	}
	return b
}

// NewDenseInts builds a dense integer body. data has one entry per cell;
// nulls marks the ordinals that hold no value and may be nil.
func NewDenseInts(axes []*Axis, data []int64, nulls *roaring.Bitmap) (*Body, error) {
	b := newBody(StorageInts, axes)
	if err := b.checkDense(len(data), nulls); err != nil {
		return nil, err
	}
	b.ints = data
	b.nulls = cloneOrEmpty(nulls)
	return b, nil
}

// NewDenseFloats builds a dense float body.
func NewDenseFloats(axes []*Axis, data []float64, nulls *roaring.Bitmap) (*Body, error) {
	b := newBody(StorageFloats, axes)
	if err := b.checkDense(len(data), nulls); err != nil {
		return nil, err
	}
	b.floats = data
	b.nulls = cloneOrEmpty(nulls)
	return b, nil
}

// NewDenseObjects builds a dense body of arbitrary values. Null entries in
// data are treated as cells without a value.
func NewDenseObjects(axes []*Axis, data []model.Value, nulls *roaring.Bitmap) (*Body, error) {
	b := newBody(StorageObjects, axes)
	if err := b.checkDense(len(data), nulls); err != nil {
		return nil, err
	}
	b.objects = data
	b.nulls = cloneOrEmpty(nulls)
	for i, v := range data {
		if v.IsNull() {
			b.nulls.Add(uint32(i))
		}
	}
	return b, nil
}

// NewSparse builds a sparse body. Null values are dropped; keys must address
// cells inside the axes.
func NewSparse(axes []*Axis, cells map[CellKey]model.Value) (*Body, error) {
	b := newBody(StorageMap, axes)
	b.cells = make(map[CellKey]model.Value, len(cells))
	for k, v := range cells {
		if v.IsNull() {
			continue
		}
		if _, err := b.checkKey(k); err != nil {
			return nil, err
		}
		b.cells[k] = v
	}
	return b, nil
}

func (b *Body) checkDense(n int, nulls *roaring.Bitmap) error {
	if !b.addressable || b.size > maxDenseCells {
		return fmt.Errorf("%w: %d cells cannot be stored densely", ErrShape, b.size)
	}
	if int64(n) != b.size {
		return fmt.Errorf("%w: %d values for %d cells", ErrShape, n, b.size)
	}
	if nulls != nil && !nulls.IsEmpty() && int64(nulls.Maximum()) >= b.size {
		return fmt.Errorf("%w: null ordinal %d beyond %d cells", ErrShape, nulls.Maximum(), b.size)
	}
	return nil
}

func (b *Body) checkKey(k CellKey) ([]int, error) {
	ords := k.Ordinals()
	if len(ords) != len(b.axes) {
		return nil, fmt.Errorf("%w: key %s has %d ordinals, body has %d axes", ErrShape, k, len(ords), len(b.axes))
	}
	for i, o := range ords {
		if o < 0 || o >= b.lens[i] {
			return nil, &ErrCellOutOfRange{Axis: i, Ordinal: o, Len: b.lens[i]}
		}
	}
	return ords, nil
}

func cloneOrEmpty(bm *roaring.Bitmap) *roaring.Bitmap {
	if bm == nil {
		return roaring.New()
	}
	return bm.Clone()
}

// Representation returns Dense or Sparse.
func (b *Body) Representation() Representation {
	if b.storage == StorageMap {
		return Sparse
	}
	return Dense
}

// Storage returns the concrete backing store.
func (b *Body) Storage() Storage { return b.storage }

// Axes returns one axis per constrained column. Callers must not modify the
// returned slice.
func (b *Body) Axes() []*Axis { return b.axes }

// Size returns the number of addressable cells, the product of the axis
// lengths. It saturates at math.MaxInt64.
func (b *Body) Size() int64 { return b.size }

// EffectiveSize returns the number of cells that hold a value.
func (b *Body) EffectiveSize() int64 {
	if b.storage == StorageMap {
		return int64(len(b.cells))
	}
	return b.size - int64(b.nulls.GetCardinality())
}

// Object returns the value of the cell at the given ordinal.
func (b *Body) Object(ordinal int64) (model.Value, bool) {
	if ordinal < 0 || ordinal >= b.size || !b.addressable {
		return model.Value{}, false
	}
	if b.storage == StorageMap {
		v, ok := b.cells[b.keyOf(uint64(ordinal))]
		return v, ok
	}
	return b.denseAt(uint32(ordinal))
}

// Get returns the value of the cell at the given per-axis ordinals.
func (b *Body) Get(ordinals ...int) (model.Value, bool) {
	if len(ordinals) != len(b.axes) {
		return model.Value{}, false
	}
	for i, o := range ordinals {
		if o < 0 || o >= b.lens[i] {
			return model.Value{}, false
		}
	}
	if b.storage == StorageMap {
		v, ok := b.cells[NewCellKey(ordinals...)]
		return v, ok
	}
	var ord uint64
	for i, o := range ordinals {
		ord += uint64(o) * b.strides[i]
	}
	return b.denseAt(uint32(ord))
}

// Lookup returns the value of the cell at the given column values, one per
// axis in header column order.
func (b *Body) Lookup(values ...model.Value) (model.Value, bool) {
	if len(values) != len(b.axes) {
		return model.Value{}, false
	}
	ords := make([]int, len(values))
	for i, v := range values {
		o, ok := b.axes[i].Ordinal(v)
		if !ok {
			return model.Value{}, false
		}
		ords[i] = o
	}
	return b.Get(ords...)
}

// ValueMap returns every loaded cell keyed by its CellKey. Cells without a
// value are omitted.
func (b *Body) ValueMap() map[CellKey]model.Value {
	out := make(map[CellKey]model.Value, b.EffectiveSize())
	b.ForEach(func(k CellKey, v model.Value) bool {
		out[k] = v
		return true
	})
	return out
}

// ForEach calls fn for every loaded cell until fn returns false. Dense bodies
// are visited in ordinal order; sparse bodies in unspecified order.
func (b *Body) ForEach(fn func(key CellKey, v model.Value) bool) {
	if b.storage == StorageMap {
		for k, v := range b.cells {
			if !fn(k, v) {
				return
			}
		}
		return
	}
	for ord := int64(0); ord < b.size; ord++ {
		v, ok := b.denseAt(uint32(ord))
		if !ok {
			continue
		}
		if !fn(b.keyOf(uint64(ord)), v) {
			return
		}
	}
}

// Ints returns the dense integer storage, or nil.
func (b *Body) Ints() []int64 { return b.ints }

// Floats returns the dense float storage, or nil.
func (b *Body) Floats() []float64 { return b.floats }

// Objects returns the dense object storage, or nil.
func (b *Body) Objects() []model.Value { return b.objects }

// Nulls returns a copy of the dense null bitmap, or nil for sparse bodies.
func (b *Body) Nulls() *roaring.Bitmap {
	if b.nulls == nil {
		return nil
	}
	return b.nulls.Clone()
}

// EstimatedBytes approximates the heap footprint of the body.
func (b *Body) EstimatedBytes() int64 {
	const valueSize = 40
	var n int64
	switch b.storage {
	case StorageInts:
		n = int64(len(b.ints)) * 8
	case StorageFloats:
		n = int64(len(b.floats)) * 8
	case StorageObjects:
		n = int64(len(b.objects)) * valueSize
	case StorageMap:
		for k := range b.cells {
			n += int64(len(k)) + 16 + valueSize
		}
	}
	if b.nulls != nil {
		n += int64(b.nulls.GetSizeInBytes())
	}
	for _, a := range b.axes {
		n += int64(len(a.values)) * valueSize
	}
	return n
}

func (b *Body) String() string {
	return fmt.Sprintf("Body{%s/%s, axes=%d, size=%d, effective=%d}",
		b.Representation(), b.storage, len(b.axes), b.size, b.EffectiveSize())
}

func (b *Body) denseAt(ord uint32) (model.Value, bool) {
	if b.nulls.Contains(ord) {
		return model.Value{}, false
	}
	switch b.storage {
	case StorageInts:
		return model.Int(b.ints[ord]), true
	case StorageFloats:
		return model.Float(b.floats[ord]), true
	default:
		return b.objects[ord], true
	}
}

func (b *Body) keyOf(ord uint64) CellKey {
	ords := make([]int, len(b.axes))
	for i := range b.axes {
		ords[i] = int(ord / b.strides[i])
		ord %= b.strides[i]
	}
	return NewCellKey(ords...)
}

// ordinalOf maps a key to its dense ordinal. The key must be in range.
func (b *Body) ordinalOf(ords []int) uint64 {
	var ord uint64
	for i, o := range ords {
		ord += uint64(o) * b.strides[i]
	}
	return ord
}
