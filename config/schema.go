package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema describes the persisted configuration. Every key is optional, missing keys take their
// defaults.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{RequiredFromJSONSchemaTags: true}
	return r.Reflect(&FitConfig{})
}

// SchemaJSON returns Schema as indented JSON.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}
