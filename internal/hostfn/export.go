package hostfn

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/woxQAQ/sourcehost/pkg/abi"
)

// Call runs one host function. Arguments are read from stack and results
// written back to it, as wazero's stack-based host functions do.
type Call func(ctx context.Context, s *Session, stack []uint64)

// Function describes one import a guest may bind.
type Function struct {
	Name       string
	Params     []api.ValueType
	ParamNames []string
	Results    []api.ValueType
	Call       Call
}

// Signature renders the function as "name(a i32, b i32) -> i32".
func (f Function) Signature() string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		if i < len(f.ParamNames) {
			b.WriteString(f.ParamNames[i])
			b.WriteByte(' ')
		}
		b.WriteString(api.ValueTypeName(p))
	}
	b.WriteByte(')')
	for i, r := range f.Results {
		if i == 0 {
			b.WriteString(" -> ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(r))
	}
	return b.String()
}

// Namespace is a group of functions imported under one module name.
type Namespace struct {
	Name      string
	Functions []Function
}

// Lookup finds a function by name.
func (n Namespace) Lookup(name string) (Function, bool) {
	for _, f := range n.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return Function{}, false
}

// Namespaces returns the full import surface in registration order.
func Namespaces() []Namespace {
	return []Namespace{
		{Name: abi.NamespaceStd, Functions: stdFunctions},
		{Name: abi.NamespaceJSON, Functions: jsonFunctions},
		{Name: abi.NamespaceHTML, Functions: htmlFunctions},
		{Name: abi.NamespaceNet, Functions: netFunctions},
		{Name: abi.NamespaceDefaults, Functions: defaultsFunctions},
		{Name: abi.NamespaceAidoku, Functions: aidokuFunctions},
		{Name: abi.NamespaceEnv, Functions: envFunctions},
	}
}

// def builds a Function from a compact signature such as
// "handle:i32 key:i32 key_len:i32 -> i32". It panics on a malformed
// signature, which only happens when the tables in this package are wrong.
func def(name, sig string, call Call) Function {
	params, results, ok := strings.Cut(sig, "->")
	if !ok {
		params = sig
	}

	f := Function{Name: name, Call: call}
	for _, p := range strings.Fields(params) {
		pname, ptype, found := strings.Cut(p, ":")
		if !found {
			panic(fmt.Sprintf("hostfn: parameter %q of %s has no type", p, name))
		}
		f.ParamNames = append(f.ParamNames, pname)
		f.Params = append(f.Params, valueType(name, ptype))
	}
	for _, r := range strings.Fields(results) {
		f.Results = append(f.Results, valueType(name, r))
	}
	return f
}

func valueType(fn, name string) api.ValueType {
	switch name {
	case "i32":
		return api.ValueTypeI32
	case "i64":
		return api.ValueTypeI64
	case "f32":
		return api.ValueTypeF32
	case "f64":
		return api.ValueTypeF64
	}
	panic(fmt.Sprintf("hostfn: unknown value type %q in %s", name, fn))
}

func argI32(stack []uint64, i int) int32 { return api.DecodeI32(stack[i]) }

func argI64(stack []uint64, i int) int64 { return int64(stack[i]) }

func argF32(stack []uint64, i int) float32 { return api.DecodeF32(stack[i]) }

func argF64(stack []uint64, i int) float64 { return api.DecodeF64(stack[i]) }

func retI32(stack []uint64, v int32) { stack[0] = api.EncodeI32(v) }

func retI64(stack []uint64, v int64) { stack[0] = api.EncodeI64(v) }

func retF64(stack []uint64, v float64) { stack[0] = api.EncodeF64(v) }
