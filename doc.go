// Package aggcache provides an in-memory cache of pre-aggregated OLAP cells.
//
// A segment is a multidimensional slice of aggregated values for one measure:
// a Header naming the fact table, the constrained columns and their values,
// and a Body holding the cells in a dense array or a sparse map. Segments are
// loaded from the rows of batched grouping-set statements, stored in a
// pluggable segment cache, and rolled up into coarser segments on demand.
//
// # Quick Start
//
//	ctx := context.Background()
//	m, _ := aggcache.New(ctx, cache.NewMemoryCache())
//	defer m.Close()
//
//	res, _ := m.RequestAggregation(ctx, aggcache.Request{Header: h, Aggregator: "sum"})
//	switch res.Status {
//	case aggcache.Hit, aggcache.RolledUp:
//	    v, _ := res.Body.Lookup(model.Int(1997))
//	case aggcache.Miss:
//	    // run the SQL batch, then:
//	    bodies, _ := m.Load(ctx, rows, loadRequest)
//	}
//
// From a configuration file:
//
//	cfg, _ := config.Load("aggcache.toml")
//	m, _ := aggcache.Open(ctx, cfg, nil)
//
// # Cache Backends
//
// The manager works over any cache.SegmentCache: an in-process map, a blob
// store shared by several processes (local disk, S3 with an optional
// DynamoDB listing index, MinIO), or a composite of several. Cache events keep
// each manager's header index current; delivery is at-least-once.
//
// # Key Features
//
//   - Dense/sparse body selection with overflow-safe cell counting
//   - Order-independent rollup that never double counts overlapping segments
//   - Grouping-set loading from descriptor or NULL-encoded rows
//   - LZ4/Zstd body compression for remote backends
//   - Memory, worker and IO budgets shared across backends
package aggcache
