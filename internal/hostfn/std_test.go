package hostfn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woxQAQ/sourcehost/internal/domain"
	"github.com/woxQAQ/sourcehost/internal/handle"
	"github.com/woxQAQ/sourcehost/internal/value"
)

func TestStd_StringRoundTrip(t *testing.T) {
	f := newFixture(t, Options{})
	std := &f.s.Std.space

	for _, s := range []string{"", "hello", "héllo 世界 🎉"} {
		h := f.stdString(s)
		require.NotEqual(t, handle.Invalid, h)
		assert.Equal(t, int32(len(s)), std.StringLen(h))
		assert.Equal(t, s, f.stringOf(std, h))
	}
}

func TestStd_CreateStringRejectsBadArguments(t *testing.T) {
	f := newFixture(t, Options{})

	assert.Equal(t, handle.Invalid, f.s.Std.CreateString(-1, 4))
	assert.Equal(t, handle.Invalid, f.s.Std.CreateString(0, 1<<30))

	ptr := f.reserve(2)
	f.mem.Write(uint32(ptr), []byte{0xff, 0xfe})
	assert.Equal(t, handle.Invalid, f.s.Std.CreateString(ptr, 2), "invalid UTF-8")
}

func TestStd_TypeOf(t *testing.T) {
	f := newFixture(t, Options{})
	std := f.s.Std

	tests := []struct {
		name string
		h    int32
		want value.Kind
	}{
		{"null", std.CreateNull(), value.KindNull},
		{"int", std.CreateInt(7), value.KindInt},
		{"float", std.CreateFloat(1.5), value.KindFloat},
		{"string", f.stdString("x"), value.KindString},
		{"bool", std.CreateBool(1), value.KindBool},
		{"array", std.CreateArray(), value.KindArray},
		{"object", std.CreateObject(), value.KindObject},
		{"date", std.CreateDate(1700000000), value.KindDate},
		{"host", f.s.PutValue(value.Host(&domain.Page{Index: 1})), value.KindObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, int32(tt.want), std.TypeOf(tt.h))
		})
	}

	assert.Equal(t, handle.Invalid, std.TypeOf(9999))
}

func TestStd_ReadNumbersCoerce(t *testing.T) {
	f := newFixture(t, Options{})
	std := f.s.Std

	assert.Equal(t, int64(42), std.ReadInt(f.stdString("42")))
	assert.Equal(t, int64(3), std.ReadInt(std.CreateFloat(3.9)))
	assert.Equal(t, int64(0), std.ReadInt(f.stdString("not a number")))
	assert.Equal(t, int64(0), std.ReadInt(9999))

	assert.Equal(t, 2.5, std.ReadFloat(f.stdString("2.5")))
	assert.Equal(t, 4.0, std.ReadFloat(std.CreateInt(4)))
	assert.Equal(t, 0.0, std.ReadFloat(std.CreateObject()))
}

func TestStd_ReadBool(t *testing.T) {
	f := newFixture(t, Options{})
	std := f.s.Std

	assert.Equal(t, int32(1), std.ReadBool(std.CreateBool(1)))
	assert.Equal(t, int32(0), std.ReadBool(std.CreateBool(0)))
	assert.Equal(t, int32(1), std.ReadBool(std.CreateInt(-3)))
	assert.Equal(t, int32(0), std.ReadBool(std.CreateInt(0)))
	assert.Equal(t, int32(0), std.ReadBool(f.stdString("true")))
}

func TestStd_ObjectSetGetRemove(t *testing.T) {
	f := newFixture(t, Options{})
	std := f.s.Std

	obj := std.CreateObject()
	val := f.stdString("value")
	kp, kl := f.str("key")

	std.ObjectSet(obj, kp, kl, val)
	assert.Equal(t, int32(1), std.ObjectLen(obj))

	got := std.ObjectGet(obj, kp, kl)
	require.NotEqual(t, handle.Invalid, got)
	assert.Equal(t, "value", f.stringOf(&std.space, got))

	std.ObjectRemove(obj, kp, kl)
	assert.Equal(t, handle.Invalid, std.ObjectGet(obj, kp, kl))
	assert.Equal(t, int32(0), std.ObjectLen(obj))
}

func TestStd_ObjectSetLastWriteWins(t *testing.T) {
	f := newFixture(t, Options{})
	std := f.s.Std

	obj := std.CreateObject()
	kp, kl := f.str("k")
	std.ObjectSet(obj, kp, kl, std.CreateInt(1))
	std.ObjectSet(obj, kp, kl, std.CreateInt(2))

	assert.Equal(t, int64(2), std.ReadInt(std.ObjectGet(obj, kp, kl)))
}

func TestStd_ObjectKeysAndValuesAreSorted(t *testing.T) {
	f := newFixture(t, Options{})
	std := f.s.Std

	obj := std.CreateObject()
	for i, k := range []string{"b", "c", "a"} {
		kp, kl := f.str(k)
		std.ObjectSet(obj, kp, kl, std.CreateInt(int64(i)))
	}

	keys := std.ObjectKeys(obj)
	require.Equal(t, int32(3), std.ArrayLen(keys))
	var got []string
	for i := int32(0); i < 3; i++ {
		got = append(got, f.stringOf(&std.space, std.ArrayGet(keys, i)))
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	values := std.ObjectValues(obj)
	assert.Equal(t, int64(2), std.ReadInt(std.ArrayGet(values, 0)))
	assert.Equal(t, int64(0), std.ReadInt(std.ArrayGet(values, 1)))
}

func TestStd_DestroyCascadesToOwnedHandles(t *testing.T) {
	f := newFixture(t, Options{})
	std := f.s.Std

	obj := std.CreateObject()
	val := std.CreateInt(5)
	kp, kl := f.str("n")
	std.ObjectSet(obj, kp, kl, val)
	got := std.ObjectGet(obj, kp, kl)
	sibling := std.CreateInt(9)

	std.Destroy(obj)

	assert.Equal(t, handle.Invalid, std.TypeOf(obj))
	assert.Equal(t, handle.Invalid, std.TypeOf(val), "set value is owned by the object")
	assert.Equal(t, handle.Invalid, std.TypeOf(got), "get result is owned by the object")
	assert.Equal(t, int64(9), std.ReadInt(sibling))
}

func TestStd_GetReturnsView(t *testing.T) {
	f := newFixture(t, Options{})
	std := f.s.Std

	obj := std.CreateObject()
	kp, kl := f.str("list")
	std.ObjectSet(obj, kp, kl, std.CreateArray())

	view := std.ObjectGet(obj, kp, kl)
	std.ArrayAppend(view, std.CreateInt(1))

	again := std.ObjectGet(obj, kp, kl)
	assert.Equal(t, int32(1), std.ArrayLen(again))
}

func TestStd_SetStoresACopy(t *testing.T) {
	f := newFixture(t, Options{})
	std := f.s.Std

	inner := std.CreateArray()
	outer := std.CreateArray()
	std.ArrayAppend(outer, inner)
	std.ArrayAppend(inner, std.CreateInt(1))

	stored := std.ArrayGet(outer, 0)
	assert.Equal(t, int32(0), std.ArrayLen(stored))
}

func TestStd_CopyIsIndependent(t *testing.T) {
	f := newFixture(t, Options{})
	std := f.s.Std

	arr := std.CreateArray()
	std.ArrayAppend(arr, std.CreateInt(1))

	dup := std.Copy(arr)
	std.ArrayAppend(dup, std.CreateInt(2))

	assert.Equal(t, int32(1), std.ArrayLen(arr))
	assert.Equal(t, int32(2), std.ArrayLen(dup))

	std.Destroy(arr)
	assert.Equal(t, int32(2), std.ArrayLen(dup))
	assert.Equal(t, handle.Invalid, std.Copy(arr))
}

func TestStd_ArrayOperations(t *testing.T) {
	f := newFixture(t, Options{})
	std := f.s.Std

	arr := std.CreateArray()
	for i := int64(0); i < 3; i++ {
		std.ArrayAppend(arr, std.CreateInt(i))
	}
	require.Equal(t, int32(3), std.ArrayLen(arr))

	std.ArraySet(arr, 1, std.CreateInt(10))
	assert.Equal(t, int64(10), std.ReadInt(std.ArrayGet(arr, 1)))

	std.ArrayRemove(arr, 0)
	assert.Equal(t, int32(2), std.ArrayLen(arr))
	assert.Equal(t, int64(10), std.ReadInt(std.ArrayGet(arr, 0)))

	assert.Equal(t, handle.Invalid, std.ArrayGet(arr, 5))
	assert.Equal(t, handle.Invalid, std.ArrayGet(arr, -1))
	std.ArraySet(arr, 7, std.CreateInt(0))
	std.ArrayRemove(arr, 7)
	assert.Equal(t, int32(2), std.ArrayLen(arr))

	assert.Equal(t, handle.Invalid, std.ArrayLen(std.CreateObject()), "object is not an array")
}

func TestStd_ReadsHostObjectFields(t *testing.T) {
	f := newFixture(t, Options{})
	std := f.s.Std

	num := float32(12.5)
	h := f.s.PutValue(value.Host(&domain.Chapter{ID: "c1", Chapter: &num, Lang: "en"}))

	kp, kl := f.str("chapterNum")
	got := std.ObjectGet(h, kp, kl)
	require.NotEqual(t, handle.Invalid, got)
	assert.Equal(t, 12.5, std.ReadFloat(got))

	kp, kl = f.str("id")
	assert.Equal(t, "c1", f.stringOf(&std.space, std.ObjectGet(h, kp, kl)))

	kp, kl = f.str("volumeNum")
	assert.Equal(t, int32(value.KindNull), std.TypeOf(std.ObjectGet(h, kp, kl)))

	kp, kl = f.str("nope")
	assert.Equal(t, handle.Invalid, std.ObjectGet(h, kp, kl))

	assert.Equal(t, int32(11), std.ObjectLen(h))
	assert.Equal(t, int32(11), std.ArrayLen(std.ObjectKeys(h)))
}

func TestStd_Dates(t *testing.T) {
	f := newFixture(t, Options{})
	std := f.s.Std

	h := std.CreateDate(1700000000.5)
	assert.Equal(t, 1700000000.5, std.ReadDate(h))
	assert.Equal(t, -1.0, std.ReadDate(std.CreateInt(1)))
	assert.Equal(t, -1.0, std.ReadDate(9999))
}

func TestStd_ReadDateString(t *testing.T) {
	f := newFixture(t, Options{})
	std := f.s.Std

	parse := func(value, format, locale, zone string) float64 {
		h := f.stdString(value)
		fp, fl := f.str(format)
		lp, ll := f.str(locale)
		zp, zl := f.str(zone)
		return std.ReadDateString(h, fp, fl, lp, ll, zp, zl)
	}

	want := float64(time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC).Unix())
	assert.Equal(t, want, parse("2023-01-15", "yyyy-MM-dd", "", ""))
	assert.Equal(t, want, parse("Jan 15, 2023", "MMM d, yyyy", "en_US", ""))

	tokyo := float64(time.Date(2023, 1, 15, 9, 0, 0, 0, time.UTC).Add(-9 * time.Hour).Unix())
	assert.Equal(t, tokyo, parse("2023-01-15 09:00", "yyyy-MM-dd HH:mm", "", "Asia/Tokyo"))

	assert.Equal(t, -1.0, parse("yesterday", "yyyy-MM-dd", "", ""))
	assert.Equal(t, -1.0, std.ReadDateString(std.CreateInt(1), 0, 0, 0, 0, 0, 0))
}
