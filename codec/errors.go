package codec

import "errors"

// ErrSerialization is returned when a header or body cannot be encoded or
// decoded. Cache backends treat it as a failed put or a miss.
var ErrSerialization = errors.New("codec: serialization failed")
