package hostfn

import (
	"encoding/binary"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/sourcehost/internal/guest"
)

// fixture is a session bound to a slice-backed memory. Arguments are staged
// in a scratch area below the heap base.
type fixture struct {
	t    *testing.T
	s    *Session
	mem  *guest.SliceMemory
	next int32
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	if opts.PluginID == "" {
		opts.PluginID = "test.source"
	}
	mem := guest.NewSliceMemory(2, 64)
	s := NewSession(opts, zaptest.NewLogger(t))
	s.Bind(mem, guest.PageSize)
	return &fixture{t: t, s: s, mem: mem, next: 16}
}

func (f *fixture) reserve(n int32) int32 {
	ptr := f.next
	f.next += (n + 7) &^ 7
	if f.next >= guest.PageSize {
		f.t.Fatal("scratch area exhausted")
	}
	return ptr
}

// str stages a string and returns its (ptr, len) pair.
func (f *fixture) str(v string) (int32, int32) {
	ptr := f.reserve(int32(len(v)))
	f.mem.Write(uint32(ptr), []byte(v))
	return ptr, int32(len(v))
}

// i32s stages an array of i32 values and returns (ptr, count).
func (f *fixture) i32s(vs ...int32) (int32, int32) {
	ptr := f.reserve(int32(len(vs) * 4))
	buf := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	f.mem.Write(uint32(ptr), buf)
	return ptr, int32(len(vs))
}

func (f *fixture) read(ptr, n int32) []byte {
	b, ok := f.mem.Read(uint32(ptr), uint32(n))
	if !ok {
		f.t.Fatalf("read(%d, %d) out of range", ptr, n)
	}
	return append([]byte(nil), b...)
}

// cstring reads a NUL terminated string.
func (f *fixture) cstring(ptr int32) string {
	var out []byte
	for {
		b := f.read(ptr, 1)
		if b[0] == 0 {
			return string(out)
		}
		out = append(out, b[0])
		ptr++
	}
}

// stringOf reads a string value through string_len and read_string.
func (f *fixture) stringOf(sp *space, h int32) string {
	n := sp.StringLen(h)
	if n < 0 {
		f.t.Fatalf("handle %d is not a string", h)
	}
	buf := f.reserve(n)
	sp.ReadString(h, buf, n)
	return string(f.read(buf, n))
}

// stdString stages s and stores it as a std string.
func (f *fixture) stdString(s string) int32 {
	return f.s.Std.CreateString(f.str(s))
}

// get looks up key in an object handle.
func (f *fixture) get(sp *space, h int32, key string) int32 {
	kp, kl := f.str(key)
	return sp.ObjectGet(h, kp, kl)
}
