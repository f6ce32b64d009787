package codec

import (
	"fmt"

	"github.com/hupe1980/aggcache/model"
	"github.com/hupe1980/aggcache/segment"
)

const headerVersion = 1

type headerDoc struct {
	Version            int         `json:"version"`
	UniqueID           string      `json:"unique_id"`
	SchemaName         string      `json:"schema"`
	SchemaChecksum     string      `json:"schema_checksum,omitempty"`
	CubeName           string      `json:"cube"`
	MeasureName        string      `json:"measure"`
	FactTable          string      `json:"fact_table"`
	Columns            []columnDoc `json:"columns"`
	ExcludedRegions    []columnDoc `json:"excluded_regions,omitempty"`
	CompoundPredicates []string    `json:"compound_predicates,omitempty"`
}

type columnDoc struct {
	Expression  string        `json:"expr"`
	BitPosition int           `json:"bit"`
	Wildcard    bool          `json:"wildcard,omitempty"`
	Values      []model.Value `json:"values,omitempty"`
}

func toColumnDocs(cols []segment.Column) []columnDoc {
	out := make([]columnDoc, len(cols))
	for i, c := range cols {
		out[i] = columnDoc{
			Expression:  c.Expression(),
			BitPosition: c.BitPosition(),
			Wildcard:    c.IsWildcard(),
			Values:      c.Values(),
		}
	}
	return out
}

func fromColumnDocs(docs []columnDoc) []segment.Column {
	out := make([]segment.Column, len(docs))
	for i, d := range docs {
		if d.Wildcard {
			out[i] = segment.NewWildcardColumn(d.Expression, d.BitPosition)
			continue
		}
		out[i] = segment.NewColumn(d.Expression, d.BitPosition, d.Values...)
	}
	return out
}

// EncodeHeader encodes h with c.
func EncodeHeader(c Codec, h *segment.Header) ([]byte, error) {
	if c == nil {
		c = Default
	}
	doc := headerDoc{
		Version:            headerVersion,
		UniqueID:           h.UniqueID(),
		SchemaName:         h.SchemaName(),
		SchemaChecksum:     h.SchemaChecksum(),
		CubeName:           h.CubeName(),
		MeasureName:        h.MeasureName(),
		FactTable:          h.FactTable(),
		Columns:            toColumnDocs(h.Columns()),
		ExcludedRegions:    toColumnDocs(h.ExcludedRegions()),
		CompoundPredicates: h.CompoundPredicates(),
	}
	data, err := c.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: header %s: %w", ErrSerialization, h.UniqueID(), err)
	}
	return data, nil
}

// DecodeHeader decodes a header written by EncodeHeader. The header's
// identity is recomputed and must match the recorded unique id.
func DecodeHeader(c Codec, data []byte) (*segment.Header, error) {
	if c == nil {
		c = Default
	}
	var doc headerDoc
	if err := c.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrSerialization, err)
	}
	if doc.Version != headerVersion {
		return nil, fmt.Errorf("%w: unsupported header version %d", ErrSerialization, doc.Version)
	}
	h, err := segment.NewHeader(segment.HeaderParams{
		SchemaName:         doc.SchemaName,
		SchemaChecksum:     doc.SchemaChecksum,
		CubeName:           doc.CubeName,
		MeasureName:        doc.MeasureName,
		FactTable:          doc.FactTable,
		Columns:            fromColumnDocs(doc.Columns),
		ExcludedRegions:    fromColumnDocs(doc.ExcludedRegions),
		CompoundPredicates: doc.CompoundPredicates,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrSerialization, err)
	}
	if doc.UniqueID != "" && doc.UniqueID != h.UniqueID() {
		return nil, fmt.Errorf("%w: header identity %s does not match recorded %s", ErrSerialization, h.UniqueID(), doc.UniqueID)
	}
	return h, nil
}
