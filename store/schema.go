package store

import (
	"fmt"

	"github.com/riftdb/rift/rifterr"
	"github.com/riftdb/rift/value"
	"gopkg.in/yaml.v3"
)

// SchemaField declares one expected top-level field, the unit the teacher's
// ddbui.FieldSchema plays for a DynamoDB entity, generalized to this core's
// value.Kind instead of a DynamoDB attribute type string.
type SchemaField struct {
	Name     string     `yaml:"name" json:"name"`
	Kind     value.Kind `yaml:"kind" json:"kind"`
	Required bool       `yaml:"required,omitempty" json:"required,omitempty"`
}

// Schema is the §3/§4.8 schema bound to a table: a fixed set of expected
// top-level fields and their kinds. Extra fields beyond those declared are
// always accepted; this core has no closed-object mode.
type Schema struct {
	Fields []SchemaField `yaml:"fields" json:"fields"`
}

// Validate checks v against the schema, per §4.8 step 3: every required
// field must be present with the declared kind, and any declared field
// that is present must match its declared kind.
func (s Schema) Validate(v value.Value) error {
	fields, ok := v.AsFields()
	if !ok {
		return rifterr.SchemaInvariantViolated("document is not an object, cannot match schema")
	}
	byName := make(map[string]value.Value, len(fields))
	for _, f := range fields {
		byName[f.Key] = f.Val
	}
	for _, sf := range s.Fields {
		fv, present := byName[sf.Name]
		if !present {
			if sf.Required {
				return rifterr.SchemaInvariantViolated("missing required field %q", sf.Name)
			}
			continue
		}
		if fv.Kind() != sf.Kind {
			return rifterr.SchemaInvariantViolated(
				"field %q has kind %s, schema declares %s", sf.Name, fv.Kind(), sf.Kind)
		}
	}
	return nil
}

// EncodeSchemaYAML serializes schema to its §8 "schema <-> serialized form"
// external representation, the teacher's ddbui.SchemaFile shape reduced to
// this core's field model.
func EncodeSchemaYAML(s Schema) ([]byte, error) {
	return yaml.Marshal(s)
}

// DecodeSchemaYAML parses the output of EncodeSchemaYAML.
func DecodeSchemaYAML(b []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Schema{}, fmt.Errorf("decode schema yaml: %w", err)
	}
	return s, nil
}
