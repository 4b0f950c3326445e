package record

import "github.com/invopop/jsonschema"

// JSONSchema describes one canonical output line.
func JSONSchema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	s := r.Reflect(&Record{})
	s.Title = "dpoconv canonical record"
	return s
}
