package model

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare_Order(t *testing.T) {
	values := []Value{
		Bytes([]byte("b")),
		String("b"),
		Float(1.5),
		Int(1),
		Bool(true),
		Null(),
		String("a"),
		Int(2),
	}
	sort.Slice(values, func(i, j int) bool { return Less(values[i], values[j]) })

	assert.Equal(t, []Value{
		Null(),
		Bool(true),
		Int(1),
		Float(1.5),
		Int(2),
		String("a"),
		String("b"),
		Bytes([]byte("b")),
	}, values)
}

func TestCompare_BytesAreByteOrdered(t *testing.T) {
	// 0xff sorts after every ASCII byte even though it is not valid UTF-8.
	lo := Bytes([]byte{0x41, 0x00})
	hi := Bytes([]byte{0xff})
	assert.Negative(t, Compare(lo, hi))
	assert.Positive(t, Compare(hi, lo))
	assert.NotEqual(t, String("A"), Bytes([]byte("A")))
}

func TestValue_MapKey(t *testing.T) {
	m := map[Value]int{}
	m[String("Drink")]++
	m[String("Drink")]++
	m[Int(1997)]++
	m[Bytes([]byte("Drink"))]++

	assert.Len(t, m, 3)
	assert.Equal(t, 2, m[String("Drink")])
}

func TestBinary_RoundTrip(t *testing.T) {
	values := []Value{Null(), Bool(true), Bool(false), Int(-42), Float(3.25), String("Food"), Bytes([]byte{0, 1, 2})}

	var buf []byte
	for _, v := range values {
		buf = AppendBinary(buf, v)
	}

	for _, want := range values {
		got, rest, err := ReadBinary(buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		buf = rest
	}
	assert.Empty(t, buf)
}

func TestBinary_Truncated(t *testing.T) {
	buf := AppendBinary(nil, String("Non-Consumable"))
	_, _, err := ReadBinary(buf[:4])
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, _, err = ReadBinary([]byte{99})
	var uk *ErrUnknownKind
	assert.ErrorAs(t, err, &uk)
}

func TestJSON_RoundTrip(t *testing.T) {
	values := []Value{Null(), Bool(true), Int(7), Float(0.5), String("x"), Bytes([]byte{0xde, 0xad})}
	data, err := json.Marshal(values)
	require.NoError(t, err)

	var got []Value
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, values, got)
}

func TestParseDatatype(t *testing.T) {
	for _, d := range []Datatype{Numeric, Integer, StringType} {
		got, err := ParseDatatype(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	_, err := ParseDatatype("decimal")
	assert.Error(t, err)
}
