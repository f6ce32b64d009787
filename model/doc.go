// Package model defines the scalar types shared by every aggcache package.
//
// # Values
//
// A Value is a small, comparable, immutable scalar. It is the type of both
// column values (the coordinates of a cell) and cell values (the measure).
//
//	model.String("Drink")
//	model.Int(1997)
//	model.Bytes([]byte{0x00, 0xff})
//	model.Null()
//
// Values are valid map keys. Compare defines the total order used for axes,
// header value sets and cache lookups alike; raw byte values are ordered as
// byte sequences and never equal a String holding the same bytes.
package model
