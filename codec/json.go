package codec

import "encoding/json"

// JSON encodes header documents with encoding/json. Its output is
// interchangeable with GoJSON's.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSON) Name() string                       { return "json" }

// Default is the codec used when none is configured.
var Default Codec = GoJSON{}
