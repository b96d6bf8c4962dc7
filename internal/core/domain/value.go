package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies which member of a Value is set.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
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
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a tagged union holding one document field.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	arr  []Value
	obj  map[string]Value
}

// Null is the null value.
var Null = Value{}

func String(s string) Value                { return Value{kind: KindString, str: s} }
func Number(n float64) Value               { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value                    { return Value{kind: KindBool, b: b} }
func Array(items ...Value) Value           { return Value{kind: KindArray, arr: items} }
func Object(fields map[string]Value) Value { return Value{kind: KindObject, obj: fields} }

func (v Value) Kind() Kind               { return v.kind }
func (v Value) IsNull() bool             { return v.kind == KindNull }
func (v Value) Str() string              { return v.str }
func (v Value) Num() float64             { return v.num }
func (v Value) Bool() bool               { return v.b }
func (v Value) Items() []Value           { return v.arr }
func (v Value) Fields() map[string]Value { return v.obj }

// Scalar renders string, number and bool values as plain strings.
// Returns false for null, arrays and objects.
func (v Value) Scalar() (string, bool) {
	switch v.kind {
	case KindString:
		return v.str, true
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.b), true
	default:
		return "", false
	}
}

// FromAny converts a decoded JSON value (as produced by encoding/json into any) to a Value.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null, nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return Number(f), nil
	case bool:
		return Bool(t), nil
	case []any:
		items := make([]Value, 0, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Null, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, v)
		}
		return Array(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Null, fmt.Errorf("field %s: %w", k, err)
			}
			fields[k] = v
		}
		return Object(fields), nil
	default:
		return Null, fmt.Errorf("unsupported value type %T", x)
	}
}

// Any converts the Value back to plain Go types.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Any()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Any()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return json.Marshal(v.Any())
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
