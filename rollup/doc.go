// Package rollup derives coarser-grained segments from cached ones.
//
// Rollup takes a set of (Header, Body) pairs that constrain the same columns
// of the same measure and summarises away every column not in the retained
// set. Cells are combined in terms of fact-level coordinates: when two
// sources hold a value for the same coordinate on every original column, the
// value is aggregated exactly once.
//
// The result does not depend on the order of the sources. Sources are
// visited in UniqueID order and the contributions to each output cell are
// aggregated in canonical coordinate order, so floating point sums are
// reproducible bit for bit.
package rollup
