package llm

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DropInvalidFields validates each key on its own and removes the ones the schema rejects,
// so one bad value does not cost the whole document.
func DropInvalidFields(schema *jsonschema.Schema, doc map[string]any) (map[string]any, []string) {
	out := make(map[string]any, len(doc))
	var dropped []string
	for _, k := range slices.Sorted(maps.Keys(doc)) {
		v := doc[k]
		b, err := json.Marshal(map[string]any{k: v})
		if err != nil {
			dropped = append(dropped, k+"(encode)")
			continue
		}
		if err := validateBytes(schema, b); err != nil {
			dropped = append(dropped, k+"(schema)")
			continue
		}
		out[k] = v
	}
	return out, dropped
}
