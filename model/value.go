package model

import (
	"bytes"
	"cmp"
	"encoding/json"
	"math"
	"strconv"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindNull represents a null (or unknown) value.
	KindNull Kind = iota
	// KindBool represents a boolean value.
	KindBool
	// KindInt represents a 64-bit integer value.
	KindInt
	// KindFloat represents a 64-bit float value.
	KindFloat
	// KindString represents a string value.
	KindString
	// KindBytes represents a raw byte sequence.
	KindBytes
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a comparable scalar.
//
// The zero Value is Null. Strings and byte sequences share the s field;
// the kind keeps them apart.
type Value struct {
	kind Kind
	i64  int64
	f64  float64
	s    string
}

// Null returns a null Value.
func Null() Value { return Value{} }

// Bool returns a boolean Value.
func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, i64: 1}
	}
	return Value{kind: KindBool}
}

// Int returns an int64 Value.
func Int(v int64) Value { return Value{kind: KindInt, i64: v} }

// Float returns a float64 Value.
func Float(v float64) Value { return Value{kind: KindFloat, f64: v} }

// String returns a string Value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Bytes returns a byte-sequence Value. The slice is copied.
func Bytes(v []byte) Value { return Value{kind: KindBytes, s: string(v)} }

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumeric reports whether v is an Int or a Float.
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

// AsBool returns the boolean value if Kind is KindBool.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.i64 != 0, true
}

// AsInt64 returns the int64 value if Kind is KindInt.
func (v Value) AsInt64() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i64, true
}

// AsFloat64 returns the numeric value as float64 for Int and Float kinds.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f64, true
	case KindInt:
		return float64(v.i64), true
	default:
		return 0, false
	}
}

// AsString returns the string value if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsBytes returns a copy of the byte sequence if Kind is KindBytes.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return []byte(v.s), true
}

// String renders the value for logs and header descriptions.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "#null"
	case KindBool:
		if v.i64 != 0 {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.i64, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f64, 'g', -1, 64)
	case KindString:
		return v.s
	case KindBytes:
		return "0x" + strconv.Quote(v.s)
	default:
		return "invalid"
	}
}

// Compare orders a and b. Kinds order as null < bool < numeric < string <
// bytes; Int and Float compare numerically; strings and byte sequences
// compare bytewise.
func Compare(a, b Value) int {
	ra, rb := rank(a.kind), rank(b.kind)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindBool:
		return cmp.Compare(a.i64, b.i64)
	case KindInt, KindFloat:
		return compareNumeric(a, b)
	default:
		return bytes.Compare([]byte(a.s), []byte(b.s))
	}
}

// Less reports whether a orders before b.
func Less(a, b Value) bool { return Compare(a, b) < 0 }

func rank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindInt, KindFloat:
		return 2
	case KindString:
		return 3
	default:
		return 4
	}
}

func compareNumeric(a, b Value) int {
	if a.kind == KindInt && b.kind == KindInt {
		return cmp.Compare(a.i64, b.i64)
	}
	fa, _ := a.AsFloat64()
	fb, _ := b.AsFloat64()
	if c := cmp.Compare(fa, fb); c != 0 {
		return c
	}
	// 1 and 1.0 are distinct map keys, so keep the order total.
	return cmp.Compare(a.kind, b.kind)
}

// MarshalJSON implements json.Marshaler. Bytes are carried base64 encoded by
// the []byte field so they survive a round trip.
func (v Value) MarshalJSON() ([]byte, error) {
	aux := jsonValue{Kind: v.kind}
	switch v.kind {
	case KindBool, KindInt:
		aux.I64 = v.i64
	case KindFloat:
		if math.IsNaN(v.f64) || math.IsInf(v.f64, 0) {
			aux.Bits = math.Float64bits(v.f64)
			aux.Special = true
		} else {
			aux.F64 = v.f64
		}
	case KindString:
		aux.S = v.s
	case KindBytes:
		aux.B = []byte(v.s)
	}
	return json.Marshal(aux)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var aux jsonValue
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch aux.Kind {
	case KindNull:
		*v = Null()
	case KindBool:
		*v = Bool(aux.I64 != 0)
	case KindInt:
		*v = Int(aux.I64)
	case KindFloat:
		if aux.Special {
			*v = Float(math.Float64frombits(aux.Bits))
		} else {
			*v = Float(aux.F64)
		}
	case KindString:
		*v = String(aux.S)
	case KindBytes:
		*v = Bytes(aux.B)
	default:
		return &ErrUnknownKind{Kind: aux.Kind}
	}
	return nil
}

type jsonValue struct {
	Kind    Kind    `json:"k"`
	I64     int64   `json:"i,omitempty"`
	F64     float64 `json:"f,omitempty"`
	Bits    uint64  `json:"x,omitempty"`
	Special bool    `json:"n,omitempty"`
	S       string  `json:"s,omitempty"`
	B       []byte  `json:"b,omitempty"`
}
