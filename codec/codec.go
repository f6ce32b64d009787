// Package codec encodes segment headers and bodies for remote cache
// backends.
//
// Headers are JSON documents written through a Codec, so their cache keys
// stay readable in an object store listing. Bodies use a versioned binary
// frame with a CRC32-C checksum and optional LZ4 or Zstd compression. The
// codec is part of the stored format: a header written with one codec is
// only guaranteed to decode with the same codec.
package codec

// Codec marshals header documents. Implementations must be safe for
// concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns the built-in codec configured as name: "json" or
// "go-json".
func ByName(name string) (Codec, bool) {
	switch name {
	case JSON{}.Name():
		return JSON{}, true
	case GoJSON{}.Name():
		return GoJSON{}, true
	default:
		return nil, false
	}
}
