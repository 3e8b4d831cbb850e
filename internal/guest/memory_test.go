package guest

import (
	"encoding/binary"
	"testing"
)

func TestReadString_Bounds(t *testing.T) {
	mem := NewSliceMemory(1, 1)
	mem.Write(10, []byte("héllo"))

	got, ok := ReadString(mem, 10, 6)
	if !ok || got != "héllo" {
		t.Errorf("ReadString() = %q, %v, want héllo", got, ok)
	}

	if _, ok := ReadString(mem, -1, 4); ok {
		t.Error("negative pointer should fail")
	}
	if _, ok := ReadString(mem, 0, -4); ok {
		t.Error("negative length should fail")
	}
	if _, ok := ReadString(mem, PageSize-2, 4); ok {
		t.Error("read past the end should fail")
	}

	empty, ok := ReadString(mem, 0, 0)
	if !ok || empty != "" {
		t.Error("zero length read should yield an empty string")
	}
}

func TestReadString_InvalidUTF8(t *testing.T) {
	mem := NewSliceMemory(1, 1)
	mem.Write(0, []byte{0xff, 0xfe})

	if _, ok := ReadString(mem, 0, 2); ok {
		t.Error("invalid UTF-8 should be rejected")
	}
}

func TestReadOptionalString(t *testing.T) {
	mem := NewSliceMemory(1, 1)
	mem.Write(0, []byte("x"))

	if _, ok := ReadOptionalString(mem, 0, 0); ok {
		t.Error("zero length should mean absent")
	}
	if s, ok := ReadOptionalString(mem, 0, 1); !ok || s != "x" {
		t.Errorf("ReadOptionalString() = %q, %v", s, ok)
	}
}

func TestReadBytes_Copies(t *testing.T) {
	mem := NewSliceMemory(1, 1)
	mem.Write(0, []byte("abc"))

	buf, _ := ReadBytes(mem, 0, 3)
	mem.Write(0, []byte("xyz"))

	if string(buf) != "abc" {
		t.Errorf("ReadBytes() aliases guest memory: %q", buf)
	}
}

func TestReadStrings(t *testing.T) {
	mem := NewSliceMemory(1, 1)
	mem.Write(100, []byte("action"))
	mem.Write(200, []byte("drama"))

	ptrs := make([]byte, 8)
	binary.LittleEndian.PutUint32(ptrs[0:], 100)
	binary.LittleEndian.PutUint32(ptrs[4:], 200)
	lens := make([]byte, 8)
	binary.LittleEndian.PutUint32(lens[0:], 6)
	binary.LittleEndian.PutUint32(lens[4:], 5)
	mem.Write(300, ptrs)
	mem.Write(400, lens)

	got, ok := ReadStrings(mem, 300, 400, 2)
	if !ok {
		t.Fatal("ReadStrings() failed")
	}
	if len(got) != 2 || got[0] != "action" || got[1] != "drama" {
		t.Errorf("ReadStrings() = %v", got)
	}

	if _, ok := ReadInt32s(mem, 0, -1); ok {
		t.Error("negative count should fail")
	}
}
