package mem

import "github.com/tacitlang/tacit/internal/errs"

// Heap is the monotonic bump-pointer allocator over the GLOBAL window of
// an Arena. There is no tracing or reference counting: allocations persist
// until an explicit Sweep back to a prior Mark, per spec.md §5's
// "allocation is a monotonic pointer bump; reclamation is by explicit
// sweep to a prior mark".
type Heap struct {
	arena *Arena
	gp    int
}

// NewHeap creates a heap allocator bump-pointing from the start of the
// arena's GLOBAL window.
func NewHeap(a *Arena) *Heap {
	return &Heap{arena: a, gp: a.GlobalBase()}
}

// GP returns the next free absolute cell index.
func (h *Heap) GP() int { return h.gp }

// SetGP forcibly repositions the bump pointer.
func (h *Heap) SetGP(v int) { h.gp = v }

// Mark snapshots the current GP for a later Sweep.
func (h *Heap) Mark() int { return h.gp }

// Sweep rewinds GP to a previously recorded mark. It does not clear the
// freed cells; they are simply beyond the new high-water mark.
func (h *Heap) Sweep(mark int) {
	h.gp = mark
}

// Alloc bumps GP by n cells and returns the absolute index of the first
// one. Fails HeapExhausted if the global window would overflow.
func (h *Heap) Alloc(n int) (int, error) {
	start := h.gp
	if start+n > h.arena.GlobalTop() {
		return 0, errs.New(errs.HeapExhausted, "heap.alloc", "global heap exhausted")
	}
	h.gp = start + n
	return start, nil
}

// Arena exposes the underlying arena for read/write access.
func (h *Heap) Arena() *Arena { return h.arena }
