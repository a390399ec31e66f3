package api

import "encoding/json"

// Codec is a Connect codec for the plain structs in this package.
// It registers under the name "json", replacing Connect's protojson codec,
// so requests use Content-Type application/json.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
