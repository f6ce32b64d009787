package aggcache_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/aggcache"
	"github.com/hupe1980/aggcache/cache"
	"github.com/hupe1980/aggcache/loader"
	"github.com/hupe1980/aggcache/model"
	"github.com/hupe1980/aggcache/segment"
)

type rows struct {
	data [][]model.Value
	pos  int
}

func (r *rows) Next() bool {
	r.pos++
	return r.pos <= len(r.data)
}

func (r *rows) Values() []model.Value { return r.data[r.pos-1] }

func (r *rows) Err() error { return nil }

func header(measure string, columns ...segment.Column) *segment.Header {
	h, err := segment.NewHeader(segment.HeaderParams{
		SchemaName:     "FoodMart",
		SchemaChecksum: "c0ffee",
		CubeName:       "Sales",
		MeasureName:    measure,
		FactTable:      "sales_fact_1997",
		Columns:        columns,
	})
	if err != nil {
		log.Fatal(err)
	}
	return h
}

func Example() {
	ctx := context.Background()

	m, err := aggcache.New(ctx, cache.NewMemoryCache())
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	// Load unit sales of 1997 by product family.
	detail := segment.New(header("Unit Sales",
		segment.NewColumn("time.the_year", 0, model.Int(1997)),
		segment.NewWildcardColumn("product.product_family", 1),
	), "sum", model.Integer)

	_, err = m.Load(ctx, &rows{data: [][]model.Value{
		{model.Int(1997), model.String("Drink"), model.Int(10)},
		{model.Int(1997), model.String("Food"), model.Int(20)},
	}}, loader.Request{
		Columns:      []string{"time.the_year", "product.product_family"},
		GroupingSets: []*loader.GroupingSet{{Segments: []*segment.Segment{detail}, Columns: []string{"time.the_year", "product.product_family"}}},
	})
	if err != nil {
		log.Fatal(err)
	}

	// Unit sales of 1997 are answered by rolling up the loaded segment.
	res, err := m.RequestAggregation(ctx, aggcache.Request{
		Header:   header("Unit Sales", segment.NewColumn("time.the_year", 0, model.Int(1997))),
		Datatype: model.Integer,
	})
	if err != nil {
		log.Fatal(err)
	}

	v, _ := res.Body.Lookup(model.Int(1997))
	fmt.Println(res.Status, v)

	// Output:
	// rolledup 30
}
