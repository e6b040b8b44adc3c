package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	}
	return "null"
}

// Value is a JSON-like audit value. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  decimal.Decimal
	flag bool
	list []Value
	obj  Fields
}

// Fields is a keyed set of audit values such as an entity snapshot.
type Fields map[string]Value

// Null returns the null value.
func Null() Value { return Value{} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a decimal.
func Number(d decimal.Decimal) Value { return Value{kind: KindNumber, num: d} }

// Int wraps an integer.
func Int(n int) Value { return Number(decimal.NewFromInt(int64(n))) }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// List wraps an ordered list.
func List(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindList, list: out}
}

// Object wraps nested fields.
func Object(fields Fields) Value {
	out := make(Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return Value{kind: KindObject, obj: out}
}

// OptString is null for an empty string.
func OptString(s string) Value {
	if s == "" {
		return Null()
	}
	return String(s)
}

// Date renders a calendar date, null when zero.
func Date(t time.Time) Value {
	if t.IsZero() {
		return Null()
	}
	return String(t.UTC().Format("2006-01-02"))
}

// OptDate is Date of a possibly missing time.
func OptDate(t *time.Time) Value {
	if t == nil {
		return Null()
	}
	return Date(*t)
}

// OptNumber is null when the decimal is not set.
func OptNumber(d decimal.NullDecimal) Value {
	if !d.Valid {
		return Null()
	}
	return Number(d.Decimal)
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Str() string { return v.str }
func (v Value) Num() decimal.Decimal { return v.num }
func (v Value) Truth() bool { return v.flag }
func (v Value) Items() []Value { return v.list }
func (v Value) Fields() Fields { return v.obj }

// Equal compares values deeply. Numbers compare by value, lists element-wise in order.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num.Equal(other.num)
	case KindBool:
		return v.flag == other.flag
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(other.obj)
	}
	return false
}

// Equal compares field sets, treating a null entry and a missing key alike.
func (f Fields) Equal(other Fields) bool {
	for k, v := range f {
		if !v.Equal(other.Get(k)) {
			return false
		}
	}
	for k, v := range other {
		if !v.Equal(f.Get(k)) {
			return false
		}
	}
	return true
}

// Get returns the value of key, null when absent.
func (f Fields) Get(key string) Value {
	if f == nil {
		return Null()
	}
	return f[key]
}

// Keys returns the sorted keys.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON encodes the value as plain JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindBool:
		return json.Marshal(v.flag)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(map[string]Value(v.obj))
	}
	return nil, fmt.Errorf("audit: unknown value kind %d", v.kind)
}

// UnmarshalJSON decodes plain JSON, keeping numbers exact.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := fromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// UnmarshalJSON decodes a JSON object into fields.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	switch v.kind {
	case KindNull:
		*f = nil
		return nil
	case KindObject:
		*f = v.obj
		return nil
	}
	return errors.New("audit: fields must be a JSON object")
}

func fromAny(raw any) (Value, error) {
	switch typed := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(typed), nil
	case bool:
		return Bool(typed), nil
	case json.Number:
		d, err := decimal.NewFromString(typed.String())
		if err != nil {
			return Value{}, fmt.Errorf("audit: bad number %q: %w", typed, err)
		}
		return Number(d), nil
	case []any:
		items := make([]Value, 0, len(typed))
		for _, item := range typed {
			v, err := fromAny(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]any:
		fields := make(Fields, len(typed))
		for k, item := range typed {
			v, err := fromAny(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = v
		}
		return Value{kind: KindObject, obj: fields}, nil
	}
	return Value{}, fmt.Errorf("audit: unsupported JSON value %T", raw)
}
