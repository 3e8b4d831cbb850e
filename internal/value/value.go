// Package value implements the tagged union shared by the std and json
// namespaces, and the field accessor through which host objects become
// readable from guest code.
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/woxQAQ/sourcehost/pkg/abi"
)

// Kind identifies the variant held by a Value. The numeric values of the
// first eight kinds are part of the guest ABI (std.typeof).
type Kind int32

const (
	KindNull   = Kind(abi.KindNull)
	KindInt    = Kind(abi.KindInt)
	KindFloat  = Kind(abi.KindFloat)
	KindString = Kind(abi.KindString)
	KindBool   = Kind(abi.KindBool)
	KindArray  = Kind(abi.KindArray)
	KindObject = Kind(abi.KindObject)
	KindDate   = Kind(abi.KindDate)
	// KindHost marks an opaque host object. Guests see it as an object.
	KindHost = KindDate + 1
)

var kindNames = [...]string{"null", "int", "float", "string", "bool", "array", "object", "date", "host"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int32(k))
	}
	return kindNames[k]
}

// FieldAccessor is implemented by host objects whose named fields guest code
// may read through std.object_get.
type FieldAccessor interface {
	FieldNames() []string
	Field(name string) (Value, bool)
}

// Value is an immutable scalar or a reference to a mutable container.
// Copying a Value that holds a container shares the container; use Clone
// for an independent copy.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	t    time.Time
	list *List
	obj  *Map
	host FieldAccessor
}

func Null() Value { return Value{kind: KindNull} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Date(t time.Time) Value { return Value{kind: KindDate, t: t} }
func Host(h FieldAccessor) Value { return Value{kind: KindHost, host: h} }

func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.i = 1
	}
	return v
}

// Array creates a list holding items.
func Array(items ...Value) Value {
	return Value{kind: KindArray, list: &List{items: items}}
}

// Strings creates a list of string values.
func Strings(items []string) Value {
	out := make([]Value, len(items))
	for i, s := range items {
		out[i] = String(s)
	}
	return Array(out...)
}

// Object creates a map. The fields map is copied.
func Object(fields map[string]Value) Value {
	m := &Map{fields: make(map[string]Value, len(fields))}
	for k, v := range fields {
		m.fields[k] = v
	}
	return Value{kind: KindObject, obj: m}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }
func (v Value) AsBool() (bool, bool) { return v.i != 0, v.kind == KindBool }
func (v Value) AsTime() (time.Time, bool) { return v.t, v.kind == KindDate }
func (v Value) List() (*List, bool) { return v.list, v.kind == KindArray }
func (v Value) Map() (*Map, bool) { return v.obj, v.kind == KindObject }
func (v Value) Host() (FieldAccessor, bool) {
	return v.host, v.kind == KindHost
}

// CoerceInt reads v as an integer. Floats are truncated and numeric strings
// are parsed.
func (v Value) CoerceInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return 0, false
		}
		return int64(v.f), true
	case KindString:
		s := strings.TrimSpace(v.s)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return int64(f), true
		}
	}
	return 0, false
}

// CoerceFloat reads v as a float. Integers convert and numeric strings are
// parsed.
func (v Value) CoerceFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Truthy is true for boolean true and for non-zero integers.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool, KindInt:
		return v.i != 0
	}
	return false
}

// Clone returns a copy of v that shares no container with it.
func Clone(v Value) Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.list.items))
		for i, item := range v.list.items {
			items[i] = Clone(item)
		}
		return Array(items...)
	case KindObject:
		m := &Map{fields: make(map[string]Value, len(v.obj.fields))}
		for k, item := range v.obj.fields {
			m.fields[k] = Clone(item)
		}
		return Value{kind: KindObject, obj: m}
	}
	return v
}

// Interface converts v to plain Go values: nil, int64, float64, string,
// bool, []any, map[string]any, time.Time. Host objects become maps of their
// fields.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBool:
		return v.i != 0
	case KindDate:
		return v.t
	case KindArray:
		out := make([]any, len(v.list.items))
		for i, item := range v.list.items {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj.fields))
		for k, item := range v.obj.fields {
			out[k] = item.Interface()
		}
		return out
	case KindHost:
		out := make(map[string]any)
		for _, name := range v.host.FieldNames() {
			if f, ok := v.host.Field(name); ok {
				out[name] = f.Interface()
			}
		}
		return out
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.s)
	case KindDate:
		return v.t.UTC().Format(time.RFC3339)
	case KindHost:
		return fmt.Sprintf("host(%T)", v.host)
	}
	return fmt.Sprint(v.Interface())
}

// List is a mutable ordered sequence.
type List struct {
	items []Value
}

func (l *List) Len() int { return len(l.items) }

func (l *List) At(i int) (Value, bool) {
	if i < 0 || i >= len(l.items) {
		return Value{}, false
	}
	return l.items[i], true
}

func (l *List) Set(i int, v Value) bool {
	if i < 0 || i >= len(l.items) {
		return false
	}
	l.items[i] = v
	return true
}

func (l *List) Append(v Value) {
	l.items = append(l.items, v)
}

func (l *List) Remove(i int) bool {
	if i < 0 || i >= len(l.items) {
		return false
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	return true
}

// Items returns the backing slice; callers must not retain it across
// mutations.
func (l *List) Items() []Value { return l.items }

// Map is a mutable string-keyed dictionary. The last write for a key wins.
type Map struct {
	fields map[string]Value
}

func (m *Map) Len() int { return len(m.fields) }

func (m *Map) Get(key string) (Value, bool) {
	v, ok := m.fields[key]
	return v, ok
}

func (m *Map) Set(key string, v Value) {
	m.fields[key] = v
}

func (m *Map) Delete(key string) bool {
	_, ok := m.fields[key]
	delete(m.fields, key)
	return ok
}

// Keys returns the keys in sorted order.
func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.fields))
	for k := range m.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the values in the order of Keys.
func (m *Map) Values() []Value {
	keys := m.Keys()
	out := make([]Value, len(keys))
	for i, k := range keys {
		out[i] = m.fields[k]
	}
	return out
}
