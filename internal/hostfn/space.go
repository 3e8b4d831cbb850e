package hostfn

import (
	"context"

	"github.com/woxQAQ/sourcehost/internal/handle"
	"github.com/woxQAQ/sourcehost/internal/value"
)

// space implements the value operations std and json have in common. Each
// namespace has its own table, so a std handle never names a json value.
type space struct {
	s     *Session
	table *handle.Table[value.Value]
	name  string
}

func (sp *space) read(h int32) (value.Value, bool) {
	return sp.table.Read(h)
}

// Store adds v to the namespace's table.
func (sp *space) Store(v value.Value) int32 {
	return sp.table.Store(v)
}

// Copy stores an independent deep copy of h.
func (sp *space) Copy(h int32) int32 {
	v, ok := sp.read(h)
	if !ok {
		return handle.Invalid
	}
	return sp.table.Store(value.Clone(v))
}

// Destroy frees h and everything it owns.
func (sp *space) Destroy(h int32) {
	sp.table.Destroy(h)
}

func (sp *space) CreateNull() int32 { return sp.table.Store(value.Null()) }

func (sp *space) CreateInt(i int64) int32 { return sp.table.Store(value.Int(i)) }

func (sp *space) CreateFloat(f float32) int32 { return sp.table.Store(value.Float(float64(f))) }

func (sp *space) CreateBool(b int32) int32 { return sp.table.Store(value.Bool(b != 0)) }

func (sp *space) CreateArray() int32 { return sp.table.Store(value.Array()) }

func (sp *space) CreateObject() int32 { return sp.table.Store(value.Object(nil)) }

// CreateString stores the UTF-8 string at (ptr, length).
func (sp *space) CreateString(ptr, length int32) int32 {
	str, ok := sp.s.readString(ptr, length)
	if !ok {
		return handle.Invalid
	}
	return sp.table.Store(value.String(str))
}

// TypeOf returns the value kind, reporting host objects as objects.
func (sp *space) TypeOf(h int32) int32 {
	v, ok := sp.read(h)
	if !ok {
		return handle.Invalid
	}
	if v.Kind() == value.KindHost {
		return int32(value.KindObject)
	}
	return int32(v.Kind())
}

// StringLen returns the byte length of a string value.
func (sp *space) StringLen(h int32) int32 {
	v, ok := sp.read(h)
	if !ok {
		return handle.Invalid
	}
	str, ok := v.AsString()
	if !ok {
		return handle.Invalid
	}
	return int32(len(str))
}

// ReadString copies the first size bytes of a string value to buf.
func (sp *space) ReadString(h, buf, size int32) {
	v, ok := sp.read(h)
	if !ok {
		return
	}
	str, ok := v.AsString()
	if !ok || size < 0 || int(size) > len(str) {
		return
	}
	sp.s.writeBytes(buf, []byte(str[:size]))
}

// ReadInt coerces h to an integer, returning 0 when that is impossible.
func (sp *space) ReadInt(h int32) int64 {
	v, ok := sp.read(h)
	if !ok {
		return 0
	}
	i, _ := v.CoerceInt()
	return i
}

// ReadFloat coerces h to a float, returning 0 when that is impossible.
func (sp *space) ReadFloat(h int32) float64 {
	v, ok := sp.read(h)
	if !ok {
		return 0
	}
	f, _ := v.CoerceFloat()
	return f
}

func (sp *space) ReadBool(h int32) int32 {
	v, ok := sp.read(h)
	if ok && v.Truthy() {
		return 1
	}
	return 0
}

// ObjectLen counts the keys of an object or the fields of a host object.
func (sp *space) ObjectLen(h int32) int32 {
	v, ok := sp.read(h)
	if !ok {
		return handle.Invalid
	}
	if m, ok := v.Map(); ok {
		return int32(m.Len())
	}
	if host, ok := v.Host(); ok {
		return int32(len(host.FieldNames()))
	}
	return handle.Invalid
}

// ObjectGet looks up a key, or a named field of a host object. The result
// is owned by h.
func (sp *space) ObjectGet(h, keyPtr, keyLen int32) int32 {
	v, ok := sp.read(h)
	if !ok {
		return handle.Invalid
	}
	key, ok := sp.s.readString(keyPtr, keyLen)
	if !ok {
		return handle.Invalid
	}

	var field value.Value
	switch {
	case v.Kind() == value.KindObject:
		m, _ := v.Map()
		field, ok = m.Get(key)
	case v.Kind() == value.KindHost:
		host, _ := v.Host()
		field, ok = host.Field(key)
	default:
		ok = false
	}
	if !ok {
		return handle.Invalid
	}
	return sp.table.StoreOwned(field, h)
}

// ObjectSet stores a copy of the value behind valueHandle under key and
// makes h the owner of valueHandle.
func (sp *space) ObjectSet(h, keyPtr, keyLen, valueHandle int32) {
	v, ok := sp.read(h)
	if !ok {
		return
	}
	m, ok := v.Map()
	if !ok {
		return
	}
	key, ok := sp.s.readString(keyPtr, keyLen)
	if !ok {
		return
	}
	item, ok := sp.read(valueHandle)
	if !ok {
		return
	}
	m.Set(key, value.Clone(item))
	sp.table.AddEdge(h, valueHandle)
}

func (sp *space) ObjectRemove(h, keyPtr, keyLen int32) {
	v, ok := sp.read(h)
	if !ok {
		return
	}
	m, ok := v.Map()
	if !ok {
		return
	}
	if key, ok := sp.s.readString(keyPtr, keyLen); ok {
		m.Delete(key)
	}
}

// ObjectKeys returns a sorted array of keys owned by h.
func (sp *space) ObjectKeys(h int32) int32 {
	v, ok := sp.read(h)
	if !ok {
		return handle.Invalid
	}
	var keys []string
	if m, ok := v.Map(); ok {
		keys = m.Keys()
	} else if host, ok := v.Host(); ok {
		keys = host.FieldNames()
	} else {
		return handle.Invalid
	}
	return sp.table.StoreOwned(value.Strings(keys), h)
}

// ObjectValues returns the values in key order as an array owned by h.
func (sp *space) ObjectValues(h int32) int32 {
	v, ok := sp.read(h)
	if !ok {
		return handle.Invalid
	}
	var items []value.Value
	if m, ok := v.Map(); ok {
		items = m.Values()
	} else if host, ok := v.Host(); ok {
		for _, name := range host.FieldNames() {
			f, _ := host.Field(name)
			items = append(items, f)
		}
	} else {
		return handle.Invalid
	}
	return sp.table.StoreOwned(value.Array(items...), h)
}

func (sp *space) list(h int32) (*value.List, bool) {
	v, ok := sp.read(h)
	if !ok {
		return nil, false
	}
	return v.List()
}

func (sp *space) ArrayLen(h int32) int32 {
	l, ok := sp.list(h)
	if !ok {
		return handle.Invalid
	}
	return int32(l.Len())
}

// ArrayGet returns the element at index, owned by h.
func (sp *space) ArrayGet(h, index int32) int32 {
	l, ok := sp.list(h)
	if !ok {
		return handle.Invalid
	}
	item, ok := l.At(int(index))
	if !ok {
		return handle.Invalid
	}
	return sp.table.StoreOwned(item, h)
}

func (sp *space) ArraySet(h, index, valueHandle int32) {
	l, ok := sp.list(h)
	if !ok {
		return
	}
	item, ok := sp.read(valueHandle)
	if !ok {
		return
	}
	if l.Set(int(index), value.Clone(item)) {
		sp.table.AddEdge(h, valueHandle)
	}
}

func (sp *space) ArrayAppend(h, valueHandle int32) {
	l, ok := sp.list(h)
	if !ok {
		return
	}
	item, ok := sp.read(valueHandle)
	if !ok {
		return
	}
	l.Append(value.Clone(item))
	sp.table.AddEdge(h, valueHandle)
}

func (sp *space) ArrayRemove(h, index int32) {
	if l, ok := sp.list(h); ok {
		l.Remove(int(index))
	}
}

// spaceFunctions builds the shared container surface under prefix.
func spaceFunctions(prefix string, pick func(*Session) *space) []Function {
	return []Function{
		def(prefix+"copy", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).Copy(argI32(st, 0)))
		}),
		def(prefix+"destroy", "handle:i32", func(_ context.Context, s *Session, st []uint64) {
			pick(s).Destroy(argI32(st, 0))
		}),
		def(prefix+"create_null", "-> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).CreateNull())
		}),
		def(prefix+"create_int", "value:i64 -> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).CreateInt(argI64(st, 0)))
		}),
		def(prefix+"create_float", "value:f32 -> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).CreateFloat(argF32(st, 0)))
		}),
		def(prefix+"create_string", "ptr:i32 len:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).CreateString(argI32(st, 0), argI32(st, 1)))
		}),
		def(prefix+"create_bool", "value:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).CreateBool(argI32(st, 0)))
		}),
		def(prefix+"create_array", "-> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).CreateArray())
		}),
		def(prefix+"create_object", "-> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).CreateObject())
		}),
		def(prefix+"typeof", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).TypeOf(argI32(st, 0)))
		}),
		def(prefix+"string_len", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).StringLen(argI32(st, 0)))
		}),
		def(prefix+"read_string", "handle:i32 buf:i32 size:i32", func(_ context.Context, s *Session, st []uint64) {
			pick(s).ReadString(argI32(st, 0), argI32(st, 1), argI32(st, 2))
		}),
		def(prefix+"read_int", "handle:i32 -> i64", func(_ context.Context, s *Session, st []uint64) {
			retI64(st, pick(s).ReadInt(argI32(st, 0)))
		}),
		def(prefix+"read_float", "handle:i32 -> f64", func(_ context.Context, s *Session, st []uint64) {
			retF64(st, pick(s).ReadFloat(argI32(st, 0)))
		}),
		def(prefix+"read_bool", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).ReadBool(argI32(st, 0)))
		}),
		def(prefix+"object_len", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).ObjectLen(argI32(st, 0)))
		}),
		def(prefix+"object_get", "handle:i32 key:i32 key_len:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).ObjectGet(argI32(st, 0), argI32(st, 1), argI32(st, 2)))
		}),
		def(prefix+"object_set", "handle:i32 key:i32 key_len:i32 value:i32", func(_ context.Context, s *Session, st []uint64) {
			pick(s).ObjectSet(argI32(st, 0), argI32(st, 1), argI32(st, 2), argI32(st, 3))
		}),
		def(prefix+"object_remove", "handle:i32 key:i32 key_len:i32", func(_ context.Context, s *Session, st []uint64) {
			pick(s).ObjectRemove(argI32(st, 0), argI32(st, 1), argI32(st, 2))
		}),
		def(prefix+"object_keys", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).ObjectKeys(argI32(st, 0)))
		}),
		def(prefix+"object_values", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).ObjectValues(argI32(st, 0)))
		}),
		def(prefix+"array_len", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).ArrayLen(argI32(st, 0)))
		}),
		def(prefix+"array_get", "handle:i32 index:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
			retI32(st, pick(s).ArrayGet(argI32(st, 0), argI32(st, 1)))
		}),
		def(prefix+"array_set", "handle:i32 index:i32 value:i32", func(_ context.Context, s *Session, st []uint64) {
			pick(s).ArraySet(argI32(st, 0), argI32(st, 1), argI32(st, 2))
		}),
		def(prefix+"array_append", "handle:i32 value:i32", func(_ context.Context, s *Session, st []uint64) {
			pick(s).ArrayAppend(argI32(st, 0), argI32(st, 1))
		}),
		def(prefix+"array_remove", "handle:i32 index:i32", func(_ context.Context, s *Session, st []uint64) {
			pick(s).ArrayRemove(argI32(st, 0), argI32(st, 1))
		}),
	}
}
