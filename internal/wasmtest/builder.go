// Package wasmtest encodes small wasm binaries for tests: imported host
// functions, exported guest functions, one memory and data segments.
package wasmtest

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/woxQAQ/sourcehost/internal/hostfn"
)

// Builder accumulates a module. Use New.
type Builder struct {
	t testing.TB

	types   []funcType
	imports []hostImport
	funcs   []guestFunc
	data    []dataSegment

	// MemoryPages is the initial size of the exported memory.
	MemoryPages uint32
	// NoMemory omits the memory and its export.
	NoMemory bool
	// HeapBase, when positive, exports an immutable __heap_base global.
	HeapBase int32
}

type funcType struct {
	params, results []api.ValueType
}

type hostImport struct {
	module, name string
	typeIdx      uint32
}

type guestFunc struct {
	name    string
	typeIdx uint32
	locals  []api.ValueType
	body    []byte
}

type dataSegment struct {
	offset uint32
	bytes  []byte
}

// New returns a builder for a module with one page of memory.
func New(t testing.TB) *Builder {
	return &Builder{t: t, MemoryPages: 1}
}

func (b *Builder) typeIndex(params, results []api.ValueType) uint32 {
	for i, ft := range b.types {
		if string(ft.params) == string(params) && string(ft.results) == string(results) {
			return uint32(i)
		}
	}
	b.types = append(b.types, funcType{params: params, results: results})
	return uint32(len(b.types) - 1)
}

// Host imports namespace.name with the signature the host registers and
// returns its function index. All imports must be declared before the
// bodies that call them are built.
func (b *Builder) Host(namespace, name string) uint32 {
	for _, ns := range hostfn.Namespaces() {
		if ns.Name != namespace {
			continue
		}
		if fn, ok := ns.Lookup(name); ok {
			return b.RawImport(namespace, name, fn.Params, fn.Results)
		}
	}
	b.t.Fatalf("no host function %s.%s", namespace, name)
	return 0
}

// RawImport imports a function with an explicit signature, registered or
// not.
func (b *Builder) RawImport(namespace, name string, params, results []api.ValueType) uint32 {
	b.imports = append(b.imports, hostImport{
		module:  namespace,
		name:    name,
		typeIdx: b.typeIndex(params, results),
	})
	return uint32(len(b.imports) - 1)
}

// Export defines and exports a guest function.
func (b *Builder) Export(name string, params, results, locals []api.ValueType, code ...[]byte) {
	var body []byte
	for _, c := range code {
		body = append(body, c...)
	}
	b.funcs = append(b.funcs, guestFunc{
		name:    name,
		typeIdx: b.typeIndex(params, results),
		locals:  locals,
		body:    body,
	})
}

// Str places s in a data segment at offset and returns its (ptr, len).
func (b *Builder) Str(offset uint32, s string) (int32, int32) {
	b.data = append(b.data, dataSegment{offset: offset, bytes: []byte(s)})
	return int32(offset), int32(len(s))
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// type
	var sec []byte
	sec = append(sec, ULEB(uint64(len(b.types)))...)
	for _, ft := range b.types {
		sec = append(sec, 0x60)
		sec = append(sec, valueTypes(ft.params)...)
		sec = append(sec, valueTypes(ft.results)...)
	}
	out = appendSection(out, 1, sec)

	// import
	if len(b.imports) > 0 {
		sec = ULEB(uint64(len(b.imports)))
		for _, imp := range b.imports {
			sec = append(sec, encName(imp.module)...)
			sec = append(sec, encName(imp.name)...)
			sec = append(sec, 0x00)
			sec = append(sec, ULEB(uint64(imp.typeIdx))...)
		}
		out = appendSection(out, 2, sec)
	}

	// function
	sec = ULEB(uint64(len(b.funcs)))
	for _, fn := range b.funcs {
		sec = append(sec, ULEB(uint64(fn.typeIdx))...)
	}
	out = appendSection(out, 3, sec)

	// memory
	if !b.NoMemory {
		sec = []byte{0x01, 0x00}
		sec = append(sec, ULEB(uint64(b.MemoryPages))...)
		out = appendSection(out, 5, sec)
	}

	// global
	if b.HeapBase > 0 {
		sec = []byte{0x01, byte(api.ValueTypeI32), 0x00}
		sec = append(sec, I32Const(b.HeapBase)...)
		sec = append(sec, 0x0b)
		out = appendSection(out, 6, sec)
	}

	// export
	count := len(b.funcs)
	if !b.NoMemory {
		count++
	}
	if b.HeapBase > 0 {
		count++
	}
	sec = ULEB(uint64(count))
	for i, fn := range b.funcs {
		sec = append(sec, encName(fn.name)...)
		sec = append(sec, 0x00)
		sec = append(sec, ULEB(uint64(len(b.imports)+i))...)
	}
	if !b.NoMemory {
		sec = append(sec, encName("memory")...)
		sec = append(sec, 0x02, 0x00)
	}
	if b.HeapBase > 0 {
		sec = append(sec, encName("__heap_base")...)
		sec = append(sec, 0x03, 0x00)
	}
	out = appendSection(out, 7, sec)

	// code
	sec = ULEB(uint64(len(b.funcs)))
	for _, fn := range b.funcs {
		var body []byte
		body = append(body, ULEB(uint64(len(fn.locals)))...)
		for _, l := range fn.locals {
			body = append(body, 0x01, byte(l))
		}
		body = append(body, fn.body...)
		body = append(body, 0x0b)
		sec = append(sec, ULEB(uint64(len(body)))...)
		sec = append(sec, body...)
	}
	out = appendSection(out, 10, sec)

	// data
	if len(b.data) > 0 {
		sec = ULEB(uint64(len(b.data)))
		for _, d := range b.data {
			sec = append(sec, 0x00)
			sec = append(sec, I32Const(int32(d.offset))...)
			sec = append(sec, 0x0b)
			sec = append(sec, ULEB(uint64(len(d.bytes)))...)
			sec = append(sec, d.bytes...)
		}
		out = appendSection(out, 11, sec)
	}

	return out
}

func appendSection(out []byte, id byte, content []byte) []byte {
	out = append(out, id)
	out = append(out, ULEB(uint64(len(content)))...)
	return append(out, content...)
}

func valueTypes(types []api.ValueType) []byte {
	out := ULEB(uint64(len(types)))
	for _, vt := range types {
		out = append(out, byte(vt))
	}
	return out
}

func encName(s string) []byte {
	return append(ULEB(uint64(len(s))), s...)
}

// ULEB encodes v as unsigned LEB128.
func ULEB(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

// SLEB encodes v as signed LEB128.
func SLEB(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// Instructions.

func I32Const(v int32) []byte { return append([]byte{0x41}, SLEB(int64(v))...) }

func I64Const(v int64) []byte { return append([]byte{0x42}, SLEB(v)...) }

func F32Const(v float32) []byte {
	return binary.LittleEndian.AppendUint32([]byte{0x43}, math.Float32bits(v))
}

func F64Const(v float64) []byte {
	return binary.LittleEndian.AppendUint64([]byte{0x44}, math.Float64bits(v))
}

func Call(idx uint32) []byte { return append([]byte{0x10}, ULEB(uint64(idx))...) }

func LocalGet(idx uint32) []byte { return append([]byte{0x20}, ULEB(uint64(idx))...) }

func LocalSet(idx uint32) []byte { return append([]byte{0x21}, ULEB(uint64(idx))...) }

func Drop() []byte { return []byte{0x1a} }

// LoopForever is `loop br 0 end`.
func LoopForever() []byte { return []byte{0x03, 0x40, 0x0c, 0x00, 0x0b} }

// Args flattens i32 arguments, typically string (ptr, len) pairs, into
// i32.const instructions.
func Args(values ...int32) []byte {
	var out []byte
	for _, v := range values {
		out = append(out, I32Const(v)...)
	}
	return out
}

// Value types.
var (
	I32 = api.ValueTypeI32
	I64 = api.ValueTypeI64
	F32 = api.ValueTypeF32
	F64 = api.ValueTypeF64
)

// Types groups value types for Export.
func Types(vt ...api.ValueType) []api.ValueType { return vt }
