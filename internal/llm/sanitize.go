package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/contracts-parser/constants"
	"github.com/joseph-ayodele/contracts-parser/internal/common"
	"github.com/joseph-ayodele/contracts-parser/internal/fields"
	"github.com/joseph-ayodele/contracts-parser/internal/topics"
	"github.com/joseph-ayodele/contracts-parser/internal/utils"
)

// StripCodeFences removes a surrounding ```json ... ``` block if the model added one.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// DecodeObject parses model content as a strict JSON object.
func DecodeObject(content string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(StripCodeFences(content)), &m); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedResponse, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: not a JSON object", common.ErrMalformedResponse)
	}
	return m, nil
}

// NormalizeFields keeps the requested keys only, skips nulls and placeholders, and coerces
// each value to its field type. It returns the cleaned document and the keys it dropped.
func NormalizeFields(m map[string]any, defs []topics.FieldDefinition) (map[string]any, []string) {
	byName := make(map[string]topics.FieldDefinition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}

	out := make(map[string]any, len(m))
	var dropped []string
	for _, k := range fields.FromMap(m).Keys() {
		d, ok := byName[k]
		if !ok {
			dropped = append(dropped, k+"(unknown)")
			continue
		}
		v := m[k]
		if v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && !fields.HasValue(fields.String(s)) {
			continue
		}
		nv, ok := coerce(d, v)
		if !ok {
			dropped = append(dropped, k+"("+string(d.Type)+")")
			continue
		}
		if nv == nil {
			continue
		}
		out[k] = nv
	}
	return out, dropped
}

func coerce(d topics.FieldDefinition, v any) (any, bool) {
	switch d.Type {
	case topics.TypeNumber:
		switch t := v.(type) {
		case float64:
			return t, true
		case string:
			f, ok := utils.ParseAmount(t)
			return f, ok
		}
		return nil, false
	case topics.TypeDate:
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		return utils.NormalizeDate(s)
	case topics.TypeBoolean:
		switch t := v.(type) {
		case bool:
			return t, true
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "yes", "是":
				return true, true
			case "false", "no", "否":
				return false, true
			}
		}
		return nil, false
	case topics.TypeArray:
		switch t := v.(type) {
		case []any:
			if len(t) == 0 {
				return nil, true
			}
			return t, true
		case string:
			return []any{strings.TrimSpace(t)}, true
		case map[string]any:
			if len(t) == 0 {
				return nil, true
			}
			return []any{t}, true
		}
		return nil, false
	case topics.TypeObject:
		t, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if len(t) == 0 {
			return nil, true
		}
		return t, true
	default:
		return coerceString(d.Name, v)
	}
}

func coerceString(name string, v any) (any, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64, bool:
		s = fields.FromAny(t).Display()
	case []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, false
		}
		s = string(b)
	default:
		return nil, false
	}
	switch name {
	case "currency":
		return utils.NormalizeCurrency(s)
	case "contractType":
		if ct, ok := constants.CanonicalizeContractType(s); ok {
			return string(ct), true
		}
	}
	return s, true
}
