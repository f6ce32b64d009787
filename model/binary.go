package model

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrShortBuffer is returned when a binary value is truncated.
	ErrShortBuffer = errors.New("model: short buffer")
)

// ErrUnknownKind indicates an encoded value with an unsupported kind tag.
type ErrUnknownKind struct {
	Kind Kind
}

func (e *ErrUnknownKind) Error() string {
	return "model: unknown value kind " + e.Kind.String()
}

// AppendBinary appends the canonical binary encoding of v to dst.
//
// The encoding is self-delimiting and injective, so concatenations of encoded
// values are usable as composite map keys.
func AppendBinary(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.kind))
	switch v.kind {
	case KindNull:
	case KindBool:
		dst = append(dst, byte(v.i64))
	case KindInt:
		dst = binary.AppendVarint(dst, v.i64)
	case KindFloat:
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v.f64))
	case KindString, KindBytes:
		dst = binary.AppendUvarint(dst, uint64(len(v.s)))
		dst = append(dst, v.s...)
	}
	return dst
}

// ReadBinary decodes one value from data and returns the remaining bytes.
func ReadBinary(data []byte) (Value, []byte, error) {
	if len(data) == 0 {
		return Value{}, nil, ErrShortBuffer
	}
	kind := Kind(data[0])
	data = data[1:]

	switch kind {
	case KindNull:
		return Null(), data, nil
	case KindBool:
		if len(data) < 1 {
			return Value{}, nil, ErrShortBuffer
		}
		return Bool(data[0] != 0), data[1:], nil
	case KindInt:
		i, n := binary.Varint(data)
		if n <= 0 {
			return Value{}, nil, ErrShortBuffer
		}
		return Int(i), data[n:], nil
	case KindFloat:
		if len(data) < 8 {
			return Value{}, nil, ErrShortBuffer
		}
		return Float(math.Float64frombits(binary.LittleEndian.Uint64(data))), data[8:], nil
	case KindString, KindBytes:
		l, n := binary.Uvarint(data)
		if n <= 0 || uint64(len(data)-n) < l {
			return Value{}, nil, ErrShortBuffer
		}
		s := string(data[n : n+int(l)])
		return Value{kind: kind, s: s}, data[n+int(l):], nil
	default:
		return Value{}, nil, &ErrUnknownKind{Kind: kind}
	}
}
