// Package mem implements Tacit's single flat data arena: one contiguous
// array of cells backing the GLOBAL, STACK and RSTACK windows, each
// accessed through bounds-checked, segment-aware APIs. The shape follows
// emul/memory.go's translate/loadWord/storeWord trio: compute an
// absolute address, bounds-check it, then do the typed access — but
// Tacit addresses cells directly rather than routing through an MMU,
// per spec.md §9's adoption of the unified absolute model.
package mem

import (
	"github.com/tacitlang/tacit/internal/cell"
	"github.com/tacitlang/tacit/internal/errs"
)

// Segment identifies which arena window an absolute cell index falls in.
type Segment int

const (
	SegGlobal Segment = iota
	SegStack
	SegRStack
)

func (s Segment) String() string {
	switch s {
	case SegGlobal:
		return "global"
	case SegStack:
		return "stack"
	case SegRStack:
		return "rstack"
	default:
		return "unknown"
	}
}

// Default segment sizes, in cells. Generous enough for non-trivial
// programs while keeping the arena small; callers can override via
// NewArena for embedding scenarios.
const (
	DefaultGlobalCells = 1 << 15 // 32768 cells of persistent heap; keeps every arena address within a 16-bit DATA_REF
	DefaultStackCells  = 1 << 12 // 4096 cells of data stack
	DefaultRStackCells = 1 << 12 // 4096 cells of return stack
)

// Arena is the single backing store for GLOBAL, STACK and RSTACK.
// Cells are addressed by absolute index: GLOBAL occupies
// [0, globalCells), STACK occupies [globalCells, globalCells+stackCells),
// RSTACK follows immediately after.
type Arena struct {
	cells []cell.Cell

	globalBase, globalTop   int
	stackBase, stackTop     int
	rstackBase, rstackTop   int
}

// NewArena allocates an arena with the given per-segment sizes in cells.
func NewArena(globalCells, stackCells, rstackCells int) *Arena {
	total := globalCells + stackCells + rstackCells
	a := &Arena{
		cells:      make([]cell.Cell, total),
		globalBase: 0,
		globalTop:  globalCells,
		stackBase:  globalCells,
		stackTop:   globalCells + stackCells,
		rstackBase: globalCells + stackCells,
		rstackTop:  total,
	}
	return a
}

// NewDefaultArena builds an arena using the package's default sizes.
func NewDefaultArena() *Arena {
	return NewArena(DefaultGlobalCells, DefaultStackCells, DefaultRStackCells)
}

func (a *Arena) GlobalBase() int { return a.globalBase }
func (a *Arena) GlobalTop() int  { return a.globalTop }
func (a *Arena) StackBase() int  { return a.stackBase }
func (a *Arena) StackTop() int   { return a.stackTop }
func (a *Arena) RStackBase() int { return a.rstackBase }
func (a *Arena) RStackTop() int  { return a.rstackTop }
func (a *Arena) Size() int       { return len(a.cells) }

// Classify is a pure function of address range identifying which window
// an absolute cell index belongs to. Returns false if the index is
// outside every window.
func (a *Arena) Classify(absCell int) (Segment, bool) {
	switch {
	case absCell >= a.globalBase && absCell < a.globalTop:
		return SegGlobal, true
	case absCell >= a.stackBase && absCell < a.stackTop:
		return SegStack, true
	case absCell >= a.rstackBase && absCell < a.rstackTop:
		return SegRStack, true
	default:
		return 0, false
	}
}

// ReadCell reads the cell at absolute index i, bounds-checked against
// the total arena size.
func (a *Arena) ReadCell(i int) (cell.Cell, error) {
	if i < 0 || i >= len(a.cells) {
		return 0, errs.New(errs.OutOfBounds, "read_cell", "address out of arena range")
	}
	return a.cells[i], nil
}

// WriteCell writes v at absolute index i, bounds-checked.
func (a *Arena) WriteCell(i int, v cell.Cell) error {
	if i < 0 || i >= len(a.cells) {
		return errs.New(errs.OutOfBounds, "write_cell", "address out of arena range")
	}
	a.cells[i] = v
	return nil
}

// MustReadCell panics-free fallback used in contexts that have already
// validated i via Classify; it still bounds-checks defensively.
func (a *Arena) MustReadCell(i int) cell.Cell {
	v, err := a.ReadCell(i)
	if err != nil {
		return cell.Nil
	}
	return v
}
