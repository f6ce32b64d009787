// Package loader turns the rows of a multi-granularity (GROUPING SETS)
// statement into segment bodies.
//
// Every row carries one value per requested column followed by one value per
// measure and, when several grouping sets are loaded by one statement with
// EncodingDescriptor, a trailing GROUPING_ID-style integer. The row's
// rolled-up columns select the grouping set it belongs to.
//
// # Grouping descriptor bit order
//
// The descriptor follows SQL GROUPING_ID: request column 0 is the most
// significant bit and a set bit marks a rolled-up column. When a descriptor
// is present it is authoritative, so a NULL in a column it marks as grouped
// is a genuine null value. With EncodingNulls, a NULL marks a rolled-up
// column only for columns some grouping set omits.
package loader
