package segment

import "github.com/hupe1980/aggcache/model"

// Segment pairs a Header with what is needed to interpret its Body: the
// measure's aggregator and cell datatype. It is the unit the query planner
// reasons about before any data has been loaded.
type Segment struct {
	header     *Header
	aggregator string
	datatype   model.Datatype
}

// New returns a segment for h whose cells are aggregated with the named
// aggregator (see rollup.AggregatorByName).
func New(h *Header, aggregator string, datatype model.Datatype) *Segment {
	return &Segment{header: h, aggregator: aggregator, datatype: datatype}
}

// Header returns the segment's cache key.
func (s *Segment) Header() *Header { return s.header }

// Aggregator returns the name of the measure's aggregator.
func (s *Segment) Aggregator() string { return s.aggregator }

// Datatype returns the measure's cell datatype.
func (s *Segment) Datatype() model.Datatype { return s.datatype }

// ColumnIndex returns the position of the column in the header, or -1.
func (s *Segment) ColumnIndex(expression string) int {
	_, i, _ := s.header.Column(expression)
	return i
}

func (s *Segment) String() string {
	return "Segment{" + s.header.String() + ", " + s.aggregator + "}"
}

// Columns returns the header's constrained columns.
func (s *Segment) Columns() []Column { return s.header.Columns() }
