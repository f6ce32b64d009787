// Package testutil provides segment fixtures for tests.
//
// This package is intended for use in tests and benchmarks only.
//
// # Headers and Bodies
//
//	h := testutil.Header(t, "Unit Sales",
//		segment.NewColumn("time.the_year", 0, model.Int(1997)),
//		segment.NewColumn("product.product_family", 1, model.String("Drink"), model.String("Food")),
//	)
//	b := testutil.Body(t, model.Numeric,
//		testutil.Cell(10, model.Int(1997), model.String("Drink")),
//		testutil.Cell(20, model.Int(1997), model.String("Food")),
//	)
//
// # Random Facts
//
//	rng := testutil.NewRNG(seed)
//	cells := rng.Cells(1000, 3, 10)
package testutil
