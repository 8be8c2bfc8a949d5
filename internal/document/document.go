// Package document models JSON-like documents as an explicit tagged union
// and resolves dotted field paths against them.
//
// Tool responses and request bodies arrive as decoded JSON
// (map[string]interface{} / []interface{} / primitives). Converting them into
// a tagged union keeps traversal explicit: the masking and recovery pipelines
// switch on Kind instead of type-asserting interface{} at every step.
package document

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

// Document value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns a human-readable kind name for logs and errors.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is one node of a document. Exactly one variant is meaningful,
// selected by kind. Arrays and objects hold pointers so a resolved node
// can be replaced in place.
type Value struct {
	kind Kind

	boolVal   bool
	numberVal float64
	stringVal string
	arrayVal  []*Value
	objectVal map[string]*Value
}

// Constructors

// Null returns the null value.
func Null() *Value { return &Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) *Value { return &Value{kind: KindBool, boolVal: b} }

// Number wraps a float64 (JSON's only numeric type).
func Number(n float64) *Value { return &Value{kind: KindNumber, numberVal: n} }

// String wraps a string.
func String(s string) *Value { return &Value{kind: KindString, stringVal: s} }

// Array wraps a list of values.
func Array(items ...*Value) *Value { return &Value{kind: KindArray, arrayVal: items} }

// Object returns an empty object.
func Object() *Value { return &Value{kind: KindObject, objectVal: map[string]*Value{}} }

// Accessors

// Kind returns the variant tag.
func (v *Value) Kind() Kind { return v.kind }

// IsString reports whether the value is a string.
func (v *Value) IsString() bool { return v.kind == KindString }

// StringValue returns the string variant ("" for non-strings).
func (v *Value) StringValue() string { return v.stringVal }

// BoolValue returns the bool variant (false for non-bools).
func (v *Value) BoolValue() bool { return v.boolVal }

// NumberValue returns the number variant (0 for non-numbers).
func (v *Value) NumberValue() float64 { return v.numberVal }

// Len returns the element count for arrays and objects, 0 otherwise.
func (v *Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arrayVal)
	case KindObject:
		return len(v.objectVal)
	default:
		return 0
	}
}

// Index returns the i-th array element, or nil when out of range or not an array.
func (v *Value) Index(i int) *Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arrayVal) {
		return nil
	}
	return v.arrayVal[i]
}

// Field returns the named object field, or nil when absent or not an object.
func (v *Value) Field(name string) *Value {
	if v.kind != KindObject {
		return nil
	}
	return v.objectVal[name]
}

// SetField sets an object field, turning null values into objects on demand.
func (v *Value) SetField(name string, val *Value) {
	if v.kind != KindObject {
		return
	}
	v.objectVal[name] = val
}

// DeleteField removes an object field if present.
func (v *Value) DeleteField(name string) {
	if v.kind == KindObject {
		delete(v.objectVal, name)
	}
}

// Fields returns the object's field names in sorted order for deterministic
// iteration in logs and tests. Heuristic recovery deliberately does NOT rely
// on this ordering (see the recovery pipeline).
func (v *Value) Fields() []string {
	if v.kind != KindObject {
		return nil
	}
	names := make([]string, 0, len(v.objectVal))
	for name := range v.objectVal {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Replace overwrites this node's contents with another value, preserving the
// node's identity so parents keep pointing at it. This is what makes
// "resolve then set" work without tracking parent containers.
func (v *Value) Replace(other *Value) {
	if other == nil {
		other = Null()
	}
	*v = *other
}

// Clone returns a deep copy.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	switch v.kind {
	case KindArray:
		items := make([]*Value, len(v.arrayVal))
		for i, item := range v.arrayVal {
			items[i] = item.Clone()
		}
		return &Value{kind: KindArray, arrayVal: items}
	case KindObject:
		fields := make(map[string]*Value, len(v.objectVal))
		for name, field := range v.objectVal {
			fields[name] = field.Clone()
		}
		return &Value{kind: KindObject, objectVal: fields}
	default:
		clone := *v
		return &clone
	}
}

// FromInterface converts a decoded-JSON value (the shape MCP tool arguments
// arrive in) into a document Value. Unknown Go types become their
// fmt-rendered string to keep conversion total; in practice only JSON types
// ever reach this.
func FromInterface(raw interface{}) *Value {
	switch val := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(val)
	case float64:
		return Number(val)
	case int:
		return Number(float64(val))
	case int64:
		return Number(float64(val))
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return String(val.String())
		}
		return Number(f)
	case string:
		return String(val)
	case []interface{}:
		items := make([]*Value, len(val))
		for i, item := range val {
			items[i] = FromInterface(item)
		}
		return &Value{kind: KindArray, arrayVal: items}
	case map[string]interface{}:
		fields := make(map[string]*Value, len(val))
		for name, field := range val {
			fields[name] = FromInterface(field)
		}
		return &Value{kind: KindObject, objectVal: fields}
	default:
		return String(fmt.Sprintf("%v", val))
	}
}

// ToInterface converts a Value back into the decoded-JSON shape.
func (v *Value) ToInterface() interface{} {
	if v == nil {
		return nil
	}
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.boolVal
	case KindNumber:
		return v.numberVal
	case KindString:
		return v.stringVal
	case KindArray:
		items := make([]interface{}, len(v.arrayVal))
		for i, item := range v.arrayVal {
			items[i] = item.ToInterface()
		}
		return items
	case KindObject:
		fields := make(map[string]interface{}, len(v.objectVal))
		for name, field := range v.objectVal {
			fields[name] = field.ToInterface()
		}
		return fields
	default:
		return nil
	}
}

// MarshalJSON serializes the value as plain JSON.
func (v *Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToInterface())
}

// UnmarshalJSON parses plain JSON into the tagged union.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.Replace(FromInterface(raw))
	return nil
}

// Scalar rendering used by recovery when a resolved node must be compared as
// a string. Strings render verbatim; other scalars render their JSON form.
func (v *Value) ScalarString() (string, bool) {
	switch v.kind {
	case KindString:
		return v.stringVal, true
	case KindBool:
		return strconv.FormatBool(v.boolVal), true
	case KindNumber:
		return strconv.FormatFloat(v.numberVal, 'f', -1, 64), true
	default:
		return "", false
	}
}
