package domain

import "github.com/woxQAQ/sourcehost/internal/value"

// Object is any record that can sit in a result Buffer.
type Object interface {
	value.FieldAccessor
}

// Buffer collects the records a plugin builds during one call. Indices are
// what the plugin sees and stay valid until the next Reset.
type Buffer struct {
	items []Object
}

// Append adds o and returns its index.
func (b *Buffer) Append(o Object) int32 {
	b.items = append(b.items, o)
	return int32(len(b.items) - 1)
}

// Get returns the record at index i.
func (b *Buffer) Get(i int32) (Object, bool) {
	if i < 0 || int(i) >= len(b.items) {
		return nil, false
	}
	return b.items[i], true
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	return len(b.items)
}

// Drain returns every record and empties the buffer.
func (b *Buffer) Drain() []Object {
	out := b.items
	b.items = nil
	return out
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.items = nil
}

// Of returns the buffered records of type T in buffer order.
func Of[T Object](objects []Object) []T {
	var out []T
	for _, o := range objects {
		if t, ok := o.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
