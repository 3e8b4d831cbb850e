package guest

import "fmt"

// HeapExhaustedError occurs when linear memory cannot grow enough to satisfy
// an allocation. It is fatal to the guest call that triggered it.
type HeapExhaustedError struct {
	Requested uint32
	Pages     uint64
}

func (e *HeapExhaustedError) Error() string {
	return fmt.Sprintf("guest heap exhausted: cannot grow memory by %d pages for a %d byte allocation",
		e.Pages, e.Requested)
}
