package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/aggcache/internal/conv"
	"github.com/hupe1980/aggcache/internal/hash"
	"github.com/hupe1980/aggcache/model"
	"github.com/hupe1980/aggcache/segment"
)

// Body frame layout:
//
//	magic "AGCB" | version u8 | compression u8 | uncompressed length uvarint |
//	crc32c(payload) u32 | compressed payload
//
// The payload holds the axes, the storage tag and the cells. The checksum
// covers the uncompressed payload.
var bodyMagic = [4]byte{'A', 'G', 'C', 'B'}

const bodyVersion = 1

// EncodeBody encodes b into a self-describing binary frame.
func EncodeBody(b *segment.Body, c Compression) ([]byte, error) {
	payload, err := appendBody(nil, b)
	if err != nil {
		return nil, fmt.Errorf("%w: body: %w", ErrSerialization, err)
	}
	packed, applied, err := compress(payload, c)
	if err != nil {
		return nil, fmt.Errorf("%w: body: compress %s: %w", ErrSerialization, c, err)
	}

	out := make([]byte, 0, len(packed)+16)
	out = append(out, bodyMagic[:]...)
	out = append(out, bodyVersion, byte(applied))
	out = binary.AppendUvarint(out, uint64(len(payload)))
	out = binary.LittleEndian.AppendUint32(out, hash.CRC32C(payload))
	return append(out, packed...), nil
}

// DecodeBody decodes a frame written by EncodeBody.
func DecodeBody(data []byte) (*segment.Body, error) {
	b, err := decodeBody(data)
	if err != nil {
		return nil, fmt.Errorf("%w: body: %w", ErrSerialization, err)
	}
	return b, nil
}

func decodeBody(data []byte) (*segment.Body, error) {
	if len(data) < len(bodyMagic)+2 || [4]byte(data[:4]) != bodyMagic {
		return nil, errors.New("not a body frame")
	}
	if data[4] != bodyVersion {
		return nil, fmt.Errorf("unsupported version %d", data[4])
	}
	c := Compression(data[5])
	size, n := binary.Uvarint(data[6:])
	if n <= 0 || size > math.MaxInt32*16 {
		return nil, errors.New("bad payload length")
	}
	length, err := conv.Uint64ToInt(size)
	if err != nil {
		return nil, err
	}
	rest := data[6+n:]
	if len(rest) < 4 {
		return nil, model.ErrShortBuffer
	}
	sum := binary.LittleEndian.Uint32(rest)
	payload, err := decompress(rest[4:], c, length)
	if err != nil {
		return nil, err
	}
	if got := hash.CRC32C(payload); got != sum {
		return nil, fmt.Errorf("checksum mismatch: %08x != %08x", got, sum)
	}
	return readBody(&reader{buf: payload})
}

func appendBody(dst []byte, b *segment.Body) ([]byte, error) {
	axes := b.Axes()
	dst = binary.AppendUvarint(dst, uint64(len(axes)))
	for _, a := range axes {
		if a.ContainsNull() {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
		dst = binary.AppendUvarint(dst, uint64(len(a.Values())))
		for _, v := range a.Values() {
			dst = model.AppendBinary(dst, v)
		}
	}

	dst = append(dst, byte(b.Storage()))
	switch b.Storage() {
	case segment.StorageInts:
		for _, v := range b.Ints() {
			dst = binary.AppendVarint(dst, v)
		}
	case segment.StorageFloats:
		for _, v := range b.Floats() {
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
		}
	case segment.StorageObjects:
		for _, v := range b.Objects() {
			dst = model.AppendBinary(dst, v)
		}
	case segment.StorageMap:
		cells := b.ValueMap()
		keys := make([]segment.CellKey, 0, len(cells))
		for k := range cells {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		dst = binary.AppendUvarint(dst, uint64(len(keys)))
		for _, k := range keys {
			for _, o := range k.Ordinals() {
				dst = binary.AppendUvarint(dst, uint64(o))
			}
			dst = model.AppendBinary(dst, cells[k])
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("unknown storage %s", b.Storage())
	}

	nulls, err := b.Nulls().ToBytes()
	if err != nil {
		return nil, err
	}
	dst = binary.AppendUvarint(dst, uint64(len(nulls)))
	return append(dst, nulls...), nil
}

func readBody(r *reader) (*segment.Body, error) {
	dims := r.uvarint()
	if dims > 64 {
		return nil, fmt.Errorf("%d axes", dims)
	}
	axes := make([]*segment.Axis, dims)
	for i := range axes {
		containsNull := r.byte() == 1
		values := make([]model.Value, 0, r.count())
		for range cap(values) {
			values = append(values, r.value())
		}
		axes[i] = segment.NewAxis(values, containsNull)
	}

	storage := segment.Storage(r.byte())
	if r.err != nil {
		return nil, r.err
	}

	size, ok := segment.PossibleCells(axisLens(axes))
	if storage != segment.StorageMap && (!ok || size > int64(len(r.buf))) {
		return nil, fmt.Errorf("dense body of %d cells in %d bytes", size, len(r.buf))
	}

	switch storage {
	case segment.StorageInts:
		data := make([]int64, size)
		for i := range data {
			data[i] = r.varint()
		}
		return newDense(r, func(nulls *roaring.Bitmap) (*segment.Body, error) {
			return segment.NewDenseInts(axes, data, nulls)
		})
	case segment.StorageFloats:
		data := make([]float64, size)
		for i := range data {
			data[i] = math.Float64frombits(r.uint64())
		}
		return newDense(r, func(nulls *roaring.Bitmap) (*segment.Body, error) {
			return segment.NewDenseFloats(axes, data, nulls)
		})
	case segment.StorageObjects:
		data := make([]model.Value, size)
		for i := range data {
			data[i] = r.value()
		}
		return newDense(r, func(nulls *roaring.Bitmap) (*segment.Body, error) {
			return segment.NewDenseObjects(axes, data, nulls)
		})
	case segment.StorageMap:
		n := r.count()
		cells := make(map[segment.CellKey]model.Value, n)
		ords := make([]int, len(axes))
		for range n {
			for i := range ords {
				o, err := conv.Uint64ToInt(r.uvarint())
				if err != nil {
					return nil, err
				}
				ords[i] = o
			}
			cells[segment.NewCellKey(ords...)] = r.value()
		}
		if r.err != nil {
			return nil, r.err
		}
		return segment.NewSparse(axes, cells)
	default:
		return nil, fmt.Errorf("unknown storage %d", storage)
	}
}

func newDense(r *reader, build func(*roaring.Bitmap) (*segment.Body, error)) (*segment.Body, error) {
	raw := r.bytes(r.count())
	if r.err != nil {
		return nil, r.err
	}
	nulls := roaring.New()
	if err := nulls.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return build(nulls)
}

func axisLens(axes []*segment.Axis) []int {
	out := make([]int, len(axes))
	for i, a := range axes {
		out[i] = a.Len()
	}
	return out
}

// reader decodes a payload, remembering the first error.
type reader struct {
	buf []byte
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
	r.buf = nil
}

func (r *reader) byte() byte {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 1 {
		r.fail(model.ErrShortBuffer)
		return 0
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.fail(model.ErrShortBuffer)
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

// count reads a length that cannot exceed the remaining payload.
func (r *reader) count() int {
	v := r.uvarint()
	if v > uint64(len(r.buf)) {
		r.fail(fmt.Errorf("length %d exceeds payload", v))
		return 0
	}
	return int(v)
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf)
	if n <= 0 {
		r.fail(model.ErrShortBuffer)
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 8 {
		r.fail(model.ErrShortBuffer)
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf)
	r.buf = r.buf[8:]
	return v
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.fail(model.ErrShortBuffer)
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) value() model.Value {
	if r.err != nil {
		return model.Value{}
	}
	v, rest, err := model.ReadBinary(r.buf)
	if err != nil {
		r.fail(err)
		return model.Value{}
	}
	r.buf = rest
	return v
}
