package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// ErrNotContainer is returned when a JSON document's root is a scalar.
var ErrNotContainer = errors.New("json root must be an object or array")

// ParseJSON decodes a JSON document whose root is an object or an array.
// Integral numbers become KindInt and every other number KindFloat.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, errors.New("trailing data after json document")
	}

	switch raw.(type) {
	case map[string]any, []any:
	default:
		return Value{}, ErrNotContainer
	}
	return FromInterface(raw)
}

// FromInterface converts decoded JSON or plain Go values into a Value.
func FromInterface(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case time.Time:
		return Date(x), nil
	case []string:
		return Strings(x), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			v, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Array(items...), nil
	case map[string]any:
		m := &Map{fields: make(map[string]Value, len(x))}
		for k, item := range x {
			v, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			m.fields[k] = v
		}
		return Value{kind: KindObject, obj: m}, nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", raw)
}

// MarshalJSON encodes v. Dates become epoch seconds and host objects become
// objects of their fields. Integral floats keep a fractional part so they
// decode back as KindFloat.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonSafe(v.Interface()))
}

func jsonSafe(x any) any {
	switch t := x.(type) {
	case float64:
		return floatNumber(t)
	case time.Time:
		return floatNumber(float64(t.UnixNano()) / 1e9)
	case []any:
		for i := range t {
			t[i] = jsonSafe(t[i])
		}
	case map[string]any:
		for k := range t {
			t[k] = jsonSafe(t[k])
		}
	}
	return x
}

func floatNumber(f float64) any {
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) || math.Abs(f) >= 1e21 {
		return f
	}
	return json.Number(strconv.FormatFloat(f, 'f', 1, 64))
}

// UnmarshalJSON decodes any JSON value into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
