package fields

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind enumerates the closed set of shapes a field value can take.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an extracted field value. The zero Value is Null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	obj  map[string]Value
}

// Map is a flat field-name -> value map as produced by extractors.
type Map map[string]Value

func Null() Value               { return Value{} }
func String(s string) Value     { return Value{kind: KindString, str: s} }
func Number(f float64) Value    { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

func Struct(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindStruct, obj: m}
}

func (v Value) Kind() Kind               { return v.kind }
func (v Value) IsNull() bool             { return v.kind == KindNull }
func (v Value) Str() string              { return v.str }
func (v Value) Num() float64             { return v.num }
func (v Value) BoolValue() bool          { return v.b }
func (v Value) Items() []Value           { return v.list }
func (v Value) Fields() map[string]Value { return v.obj }

// placeholders are strings extractors emit instead of leaving a field empty.
var placeholders = []string{"N/A", "n/a", "null", "undefined", "-", "无", "未知"}

// IsPlaceholder reports whether s (trimmed) is a known "no value" marker.
func IsPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	for _, p := range placeholders {
		if strings.EqualFold(s, p) {
			return true
		}
	}
	return false
}

// HasValue reports whether v carries a usable value.
func HasValue(v Value) bool {
	switch v.kind {
	case KindNull:
		return false
	case KindString:
		s := strings.TrimSpace(v.str)
		return s != "" && !IsPlaceholder(s)
	case KindNumber:
		return !math.IsNaN(v.num)
	case KindBool:
		return true
	case KindList:
		return len(v.list) > 0
	case KindStruct:
		return len(v.obj) > 0
	default:
		return false
	}
}

// FromAny converts a JSON-decoded value into a Value.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case bool:
		return Bool(t)
	case []any:
		items := make([]Value, 0, len(t))
		for _, it := range t {
			items = append(items, FromAny(it))
		}
		return List(items...)
	case []string:
		items := make([]Value, 0, len(t))
		for _, it := range t {
			items = append(items, String(it))
		}
		return List(items...)
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, it := range t {
			m[k] = FromAny(it)
		}
		return Struct(m)
	default:
		return String(fmt.Sprint(t))
	}
}

// FromMap converts a decoded JSON object into a Map.
func FromMap(m map[string]any) Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = FromAny(v)
	}
	return out
}

// Any converts v back into plain Go values suitable for encoding/json.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil
		}
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, it := range v.list {
			out[i] = it.Any()
		}
		return out
	case KindStruct:
		out := make(map[string]any, len(v.obj))
		for k, it := range v.obj {
			out[k] = it.Any()
		}
		return out
	default:
		return nil
	}
}

// Display renders v for logs and spreadsheets.
func (v Value) Display() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindNumber:
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1e15 {
			return fmt.Sprintf("%.0f", v.num)
		}
		return fmt.Sprintf("%g", v.num)
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	default:
		b, _ := json.Marshal(v.Any())
		return string(b)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var x any
	if err := json.Unmarshal(data, &x); err != nil {
		return err
	}
	*v = FromAny(x)
	return nil
}

// Keys returns the map keys in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present with a usable value.
func (m Map) Has(key string) bool {
	v, ok := m[key]
	return ok && HasValue(v)
}

// Clone returns a shallow copy of m.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// FillMissing copies values from src for keys m does not already hold a value for.
// It returns the keys that were filled.
func (m Map) FillMissing(src Map) []string {
	var filled []string
	for _, k := range src.Keys() {
		v := src[k]
		if !HasValue(v) || m.Has(k) {
			continue
		}
		m[k] = v
		filled = append(filled, k)
	}
	return filled
}

// JSON encodes the map with sorted keys (encoding/json sorts map keys).
func (m Map) JSON() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(b), nil
}

// ParseJSON decodes a JSON object into a Map.
func ParseJSON(data []byte) (Map, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return FromMap(raw), nil
}
