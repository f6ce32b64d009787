package rollup

import "errors"

var (
	// ErrInvariant is returned when the sources cannot be rolled up together:
	// they disagree on schema or measure identity, constrain different
	// columns, or exclude regions of a column being summarised away. Callers
	// must fall back to re-querying.
	ErrInvariant = errors.New("rollup: invariant violation")

	// ErrNotRollable is returned by aggregators whose values cannot be
	// combined from partial results (e.g. distinct-count).
	ErrNotRollable = errors.New("rollup: aggregator is not rollable")

	// ErrUnknownAggregator is returned by AggregatorByName.
	ErrUnknownAggregator = errors.New("rollup: unknown aggregator")
)
