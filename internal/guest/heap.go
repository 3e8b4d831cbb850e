package guest

import (
	"sort"

	"go.uber.org/zap"
)

// DefaultHeapBase is used when a module does not export __heap_base.
const DefaultHeapBase uint32 = 128 * 1024

const alignment = 8

type block struct {
	addr uint32
	size uint32
}

// Heap is a first-fit allocator over a module's linear memory. It only
// manages addresses at or above its base; everything below belongs to the
// guest's static data and stack.
//
// Memory is grown on demand and never shrunk.
type Heap struct {
	mem    Memory
	base   uint32
	blocks []block // sorted by addr, non-overlapping
	logger *zap.Logger
}

// NewHeap creates an allocator for mem starting at base.
func NewHeap(mem Memory, base uint32, logger *zap.Logger) *Heap {
	return &Heap{
		mem:    mem,
		base:   uint32(min(alignUp64(uint64(base)), 1<<32-alignment)),
		logger: logger.With(zap.String("component", "guest-heap")),
	}
}

// Base returns the lowest address the heap hands out.
func (h *Heap) Base() uint32 {
	return h.base
}

// Live returns the number of outstanding allocations.
func (h *Heap) Live() int {
	return len(h.blocks)
}

// Allocate reserves size bytes and returns their address. The first gap
// large enough wins; when none exists the block is placed after the last
// allocation, growing memory as needed.
func (h *Heap) Allocate(size uint32) (uint32, error) {
	if size == 0 {
		size = 1
	}

	// 64-bit so a block ending at the top of the address space cannot wrap
	// the cursor back below the base.
	cursor := uint64(h.base)
	for i, b := range h.blocks {
		start := uint64(b.addr)
		if start >= cursor && start-cursor >= uint64(size) {
			h.blocks = append(h.blocks, block{})
			copy(h.blocks[i+1:], h.blocks[i:])
			h.blocks[i] = block{addr: uint32(cursor), size: size}
			return uint32(cursor), nil
		}
		cursor = alignUp64(start + uint64(b.size))
	}

	if err := h.ensure(cursor+uint64(size), size); err != nil {
		return 0, err
	}
	h.blocks = append(h.blocks, block{addr: uint32(cursor), size: size})
	return uint32(cursor), nil
}

// Release frees the allocation starting at addr. An address that is not
// currently allocated is logged and otherwise ignored.
func (h *Heap) Release(addr uint32) bool {
	i := sort.Search(len(h.blocks), func(i int) bool {
		return h.blocks[i].addr >= addr
	})
	if i == len(h.blocks) || h.blocks[i].addr != addr {
		h.logger.Warn("Release of unallocated guest address",
			zap.Uint32("addr", addr),
		)
		return false
	}
	h.blocks = append(h.blocks[:i], h.blocks[i+1:]...)
	return true
}

// Write allocates room for data, copies it in and returns the address.
func (h *Heap) Write(data []byte) (uint32, error) {
	addr, err := h.Allocate(uint32(len(data)))
	if err != nil {
		return 0, err
	}
	if len(data) > 0 && !h.mem.Write(addr, data) {
		h.Release(addr)
		return 0, &HeapExhaustedError{Requested: uint32(len(data))}
	}
	return addr, nil
}

func (h *Heap) ensure(end uint64, requested uint32) error {
	current := uint64(h.mem.Size())
	if end <= current {
		return nil
	}
	pages := (end - current + PageSize - 1) / PageSize
	if end > 1<<32 || pages > uint64(^uint32(0)) {
		return &HeapExhaustedError{Requested: requested, Pages: pages}
	}
	if _, ok := h.mem.Grow(uint32(pages)); !ok {
		return &HeapExhaustedError{Requested: requested, Pages: pages}
	}
	h.logger.Debug("Grew guest memory",
		zap.Uint64("pages", pages),
		zap.Uint32("size", h.mem.Size()),
	)
	return nil
}

func alignUp64(v uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}
