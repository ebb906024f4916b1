package agent

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Schema describes tool parameters and structured agent outputs.
type Schema = jsonschema.Schema

func Object(props map[string]*Schema, required ...string) *Schema {
	if props == nil {
		props = map[string]*Schema{}
	}
	return &Schema{Type: "object", Properties: props, Required: required}
}

func String(description string) *Schema {
	return &Schema{Type: "string", Description: description}
}

func Number(description string) *Schema {
	return &Schema{Type: "number", Description: description}
}

func Integer(description string) *Schema {
	return &Schema{Type: "integer", Description: description}
}

func Boolean(description string) *Schema {
	return &Schema{Type: "boolean", Description: description}
}

func Array(description string, items *Schema) *Schema {
	return &Schema{Type: "array", Description: description, Items: items}
}

// Enum is a string schema restricted to values.
func Enum(description string, values ...string) *Schema {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &Schema{Type: "string", Description: description, Enum: enum}
}

// Between returns a copy of s bounded to [lo, hi].
func Between(s *Schema, lo, hi float64) *Schema {
	c := *s
	c.Minimum, c.Maximum = &lo, &hi
	return &c
}

// WithDefault returns a copy of s documenting a default value.
func WithDefault(s *Schema, v any) *Schema {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshaling schema default: %v", err))
	}
	c := *s
	c.Default = b
	return &c
}

// SchemaJSON renders s for a model request.
func SchemaJSON(s *Schema) json.RawMessage {
	b, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("marshaling schema: %v", err))
	}
	return b
}

// Resolve prepares s for validation.
func Resolve(s *Schema) (*jsonschema.Resolved, error) {
	rs, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving schema: %w", err)
	}
	return rs, nil
}

// ValidateJSON decodes raw and validates the result against s.
func ValidateJSON(s *Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return Validate(s, v)
}

// Validate checks a value decoded by encoding/json against s. Null object
// members count as absent.
func Validate(s *Schema, v any) error {
	rs, err := Resolve(s)
	if err != nil {
		return err
	}
	return rs.Validate(DropNulls(v))
}

// DropNulls removes null members from every object in v, in place.
func DropNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if val == nil {
				delete(t, k)
				continue
			}
			t[k] = DropNulls(val)
		}
	case []any:
		for i, item := range t {
			t[i] = DropNulls(item)
		}
	}
	return v
}
