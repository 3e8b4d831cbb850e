// Package guest provides bounds-checked access to a plugin's linear memory
// and the allocator the host uses to place data inside it.
package guest

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// PageSize is the size of one linear memory page.
const PageSize = 65536

// Memory is the part of wazero's api.Memory the host relies on.
//
// Guest pointers and lengths arrive as i32 values; every helper in this
// package rejects negative or out-of-range pairs instead of trusting them.
type Memory interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
	Grow(deltaPages uint32) (previousPages uint32, ok bool)
}

// ReadBytes copies length bytes starting at ptr. The returned slice does
// not alias guest memory, so it survives a later Grow.
func ReadBytes(mem Memory, ptr, length int32) ([]byte, bool) {
	if ptr < 0 || length < 0 {
		return nil, false
	}
	if length == 0 {
		return []byte{}, true
	}
	view, ok := mem.Read(uint32(ptr), uint32(length))
	if !ok {
		return nil, false
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, true
}

// ReadString decodes a UTF-8 string. Invalid UTF-8 is rejected.
func ReadString(mem Memory, ptr, length int32) (string, bool) {
	buf, ok := ReadBytes(mem, ptr, length)
	if !ok || !utf8.Valid(buf) {
		return "", false
	}
	return string(buf), true
}

// ReadOptionalString decodes an optional string argument. A zero length
// means the field is absent.
func ReadOptionalString(mem Memory, ptr, length int32) (string, bool) {
	if length == 0 {
		return "", false
	}
	return ReadString(mem, ptr, length)
}

// ReadInt32s decodes count little-endian i32 values starting at ptr.
func ReadInt32s(mem Memory, ptr, count int32) ([]int32, bool) {
	if count < 0 || count > math.MaxInt32/4 {
		return nil, false
	}
	buf, ok := ReadBytes(mem, ptr, count*4)
	if !ok {
		return nil, false
	}
	out := make([]int32, count)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, true
}

// ReadStrings decodes count strings described by two parallel guest arrays:
// one of string pointers and one of byte lengths.
func ReadStrings(mem Memory, ptrs, lens, count int32) ([]string, bool) {
	addrs, ok := ReadInt32s(mem, ptrs, count)
	if !ok {
		return nil, false
	}
	sizes, ok := ReadInt32s(mem, lens, count)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, count)
	for i := range addrs {
		s, ok := ReadString(mem, addrs[i], sizes[i])
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// WriteBytes copies data into guest memory at ptr.
func WriteBytes(mem Memory, ptr int32, data []byte) bool {
	if ptr < 0 {
		return false
	}
	if len(data) == 0 {
		return true
	}
	return mem.Write(uint32(ptr), data)
}
