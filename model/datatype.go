package model

import "fmt"

// Datatype is the declared type of a measure's cells.
type Datatype uint8

const (
	// Numeric cells hold integers or floats.
	Numeric Datatype = iota
	// Integer cells hold integers only.
	Integer
	// StringType cells hold arbitrary values; no numeric specialisation applies.
	StringType
)

func (d Datatype) String() string {
	switch d {
	case Numeric:
		return "Numeric"
	case Integer:
		return "Integer"
	case StringType:
		return "String"
	default:
		return fmt.Sprintf("Datatype(%d)", uint8(d))
	}
}

// ParseDatatype parses the name produced by Datatype.String.
func ParseDatatype(s string) (Datatype, error) {
	switch s {
	case "Numeric", "numeric":
		return Numeric, nil
	case "Integer", "integer":
		return Integer, nil
	case "String", "string":
		return StringType, nil
	default:
		return 0, fmt.Errorf("model: unknown datatype %q", s)
	}
}
