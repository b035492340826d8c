package llm

import "github.com/joseph-ayodele/contracts-parser/internal/topics"

const datePattern = `^\d{4}-\d{2}-\d{2}$`

// BuildFieldSchema returns a JSON-Schema (draft 2020-12 subset) for a sanitized extraction
// result. Nothing is required: absent fields are simply omitted.
func BuildFieldSchema(defs []topics.FieldDefinition) map[string]any {
	props := make(map[string]any, len(defs))
	for _, d := range defs {
		props[d.Name] = fieldProp(d)
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

func fieldProp(d topics.FieldDefinition) map[string]any {
	switch d.Type {
	case topics.TypeNumber:
		return map[string]any{"type": "number"}
	case topics.TypeDate:
		return map[string]any{"type": "string", "pattern": datePattern}
	case topics.TypeBoolean:
		return map[string]any{"type": "boolean"}
	case topics.TypeArray:
		return map[string]any{"type": "array", "minItems": 1}
	case topics.TypeObject:
		return map[string]any{"type": "object", "minProperties": 1}
	default:
		if d.Name == "currency" {
			return map[string]any{"type": "string", "pattern": `^[A-Z]{3}$`}
		}
		return map[string]any{"type": "string", "minLength": 1}
	}
}
