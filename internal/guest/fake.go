package guest

// SliceMemory is a Memory backed by a byte slice. It is used by tests and by
// tools that exercise host functions without a wazero instance.
type SliceMemory struct {
	buf      []byte
	maxPages uint32
}

// NewSliceMemory creates a memory of pages pages that may grow to maxPages.
func NewSliceMemory(pages, maxPages uint32) *SliceMemory {
	return &SliceMemory{
		buf:      make([]byte, int(pages)*PageSize),
		maxPages: maxPages,
	}
}

func (m *SliceMemory) Size() uint32 {
	return uint32(len(m.buf))
}

func (m *SliceMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(m.buf)) {
		return nil, false
	}
	return m.buf[offset:end], true
}

func (m *SliceMemory) Write(offset uint32, v []byte) bool {
	end := uint64(offset) + uint64(len(v))
	if end > uint64(len(m.buf)) {
		return false
	}
	copy(m.buf[offset:], v)
	return true
}

func (m *SliceMemory) Grow(deltaPages uint32) (uint32, bool) {
	prev := uint32(len(m.buf) / PageSize)
	if uint64(prev)+uint64(deltaPages) > uint64(m.maxPages) {
		return prev, false
	}
	m.buf = append(m.buf, make([]byte, int(deltaPages)*PageSize)...)
	return prev, true
}
