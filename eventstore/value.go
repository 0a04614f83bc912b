package eventstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Value is a structured JSON value, used for event payloads and payload predicates.
//
// It is a closed set of variants: Null, Bool, Number, String, Array, and Object.
// A nil Value means "absent".
type Value interface {
	isValue()
}

// Null is the JSON null literal.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// Number is a JSON number. All numbers are float64, as in JSON itself.
type Number float64

// String is a JSON string.
type String string

// Array is a JSON array.
type Array []Value

// Object is a JSON object.
type Object map[string]Value

func (Null) isValue()   {}
func (Bool) isValue()   {}
func (Number) isValue() {}
func (String) isValue() {}
func (Array) isValue()  {}
func (Object) isValue() {}

// MarshalJSON makes Null encode as the JSON null literal instead of an empty object.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IsAbsent reports whether v is nil or Null.
func IsAbsent(v Value) bool {
	if v == nil {
		return true
	}

	_, isNull := v.(Null)

	return isNull
}

// P builds an object predicate with a single key, e.g. P("BookID", String(bookID)).
func P(key string, val Value) Object {
	return Object{key: val}
}

// ParseValue decodes a JSON document into a Value.
func ParseValue(raw []byte) (Value, error) {
	if !jsonAPI.Valid(raw) {
		return nil, ErrInvalidPayloadJSON
	}

	var decoded any
	if err := jsonAPI.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Join(ErrInvalidPayloadJSON, err)
	}

	return ValueOf(decoded)
}

// MustParseValue is like ParseValue but panics if raw is not valid JSON.
func MustParseValue(raw string) Value {
	v, err := ParseValue([]byte(raw))
	if err != nil {
		panic(err)
	}

	return v
}

// MarshalValue encodes a Value as JSON. Object keys are emitted in sorted order.
// An absent (nil) Value encodes as null.
func MarshalValue(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	return jsonAPI.Marshal(v)
}

// ValueOf converts a Go value into a Value.
//
// Decoded JSON (nil, bool, float64, string, []any, map[string]any), all Go number kinds, json.Number,
// and existing Values are converted directly. Anything else is round-tripped through JSON.
func ValueOf(in any) (Value, error) {
	switch v := in.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case string:
		return String(v), nil
	case float64:
		return Number(v), nil
	case float32:
		return Number(v), nil
	case int:
		return Number(v), nil
	case int8:
		return Number(v), nil
	case int16:
		return Number(v), nil
	case int32:
		return Number(v), nil
	case int64:
		return Number(v), nil
	case uint:
		return Number(v), nil
	case uint8:
		return Number(v), nil
	case uint16:
		return Number(v), nil
	case uint32:
		return Number(v), nil
	case uint64:
		return Number(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, errors.Join(ErrUnsupportedPayloadValue, err)
		}

		return Number(f), nil
	case []any:
		arr := make(Array, 0, len(v))
		for _, elem := range v {
			converted, err := ValueOf(elem)
			if err != nil {
				return nil, err
			}

			arr = append(arr, converted)
		}

		return arr, nil
	case map[string]any:
		obj := make(Object, len(v))
		for key, elem := range v {
			converted, err := ValueOf(elem)
			if err != nil {
				return nil, err
			}

			obj[key] = converted
		}

		return obj, nil
	default:
		return valueOfViaJSON(in)
	}
}

// MustValueOf is like ValueOf but panics if the value can not be converted.
func MustValueOf(in any) Value {
	v, err := ValueOf(in)
	if err != nil {
		panic(err)
	}

	return v
}

func valueOfViaJSON(in any) (Value, error) {
	rv := reflect.ValueOf(in)
	if (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Map || rv.Kind() == reflect.Slice) && rv.IsNil() {
		return Null{}, nil
	}

	raw, err := jsonAPI.Marshal(in)
	if err != nil {
		return nil, errors.Join(ErrUnsupportedPayloadValue, fmt.Errorf("%T: %w", in, err))
	}

	return ParseValue(raw)
}

// ToNative converts a Value back into plain Go values as encoding/json would decode them:
// nil, bool, float64, string, []any, and map[string]any.
func ToNative(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(val)
	case Number:
		return float64(val)
	case String:
		return string(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToNative(elem)
		}

		return out
	case Object:
		out := make(map[string]any, len(val))
		for key, elem := range val {
			out[key] = ToNative(elem)
		}

		return out
	default:
		return nil
	}
}
