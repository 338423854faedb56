// Package vm implements Tacit's VM state, stack discipline, interpreter
// loop, list engine and locals/globals/capsule machinery. The VM is a
// single owning struct threaded through every opcode handler by pointer,
// the way emul/cpu.go's *CPU is threaded through execute/executeBase/
// executeXOP — no hidden globals, no singletons.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/tacitlang/tacit/internal/cell"
	"github.com/tacitlang/tacit/internal/dict"
	"github.com/tacitlang/tacit/internal/digest"
	"github.com/tacitlang/tacit/internal/errs"
	"github.com/tacitlang/tacit/internal/mem"
)

const (
	DefaultCodeSize   = 1 << 16 // 64KB, addressable by a 16-bit byte offset
	DefaultStringSize = 1 << 16
)

// VM holds every pointer and owned subsystem that spec.md §3 lists under
// "VM state": SP, RP, IP, BP, GP (via Heap), dictionary head (via Dict),
// receiver slot, list-construction depth, running flag.
type VM struct {
	Arena   *mem.Arena
	Heap    *mem.Heap
	Code    *mem.ByteSegment
	Strings *digest.Digest
	Dict    *dict.Dictionary

	SP int // next free absolute cell index in STACK
	RP int // next free absolute cell index in RSTACK
	BP int // current frame's base on RSTACK
	IP int // byte offset into Code

	Running bool
	Debug   bool

	Receiver  cell.Cell // current capsule handle, for dispatch/exit-dispatch
	ListDepth int       // nested-list construction depth
	ListMarks []int     // SP snapshots pushed by OpenList, popped by CloseList

	pendingFloat float32 // staged by fetchOperand for the next OpLiteralNumber

	Tracer Tracer
	Stdout io.Writer // destination for Print; defaults to os.Stdout
}

// New builds a VM with default-sized segments and an empty dictionary,
// ready for the compiler to seed built-ins into.
func New() *VM {
	a := mem.NewDefaultArena()
	h := mem.NewHeap(a)
	vm := &VM{
		Arena:   a,
		Heap:    h,
		Code:    mem.NewByteSegment(DefaultCodeSize, "code"),
		Strings: digest.New(DefaultStringSize),
		Dict:    dict.New(h),
		SP:      a.StackBase(),
		RP:       a.RStackBase(),
		BP:       a.RStackBase(),
		Running:  true,
		Receiver: cell.Nil,
		Stdout:   os.Stdout,
	}
	return vm
}

// readName adapts Strings.Get to the dict package's lookup callback.
func (vm *VM) readName(addr int) (string, error) {
	return vm.Strings.Get(addr)
}

// ---- data stack ----

func (vm *VM) snapshot() []string {
	n := vm.SP - vm.Arena.StackBase()
	if n > 16 {
		n = 16 // cap diagnostic snapshots; the spec only requires "a copy"
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		v, err := vm.Arena.ReadCell(vm.SP - n + i)
		if err != nil {
			break
		}
		out = append(out, v.String())
	}
	return out
}

// Push writes v at SP and advances it. Fails StackOverflow past the top
// of the STACK window.
func (vm *VM) Push(v cell.Cell) error {
	if vm.SP >= vm.Arena.StackTop() {
		return errs.New(errs.StackOverflow, "push", "").WithStack(vm.snapshot())
	}
	if err := vm.Arena.WriteCell(vm.SP, v); err != nil {
		return err
	}
	vm.SP++
	return nil
}

// Pop decrements SP and returns the cell that was there.
func (vm *VM) Pop() (cell.Cell, error) {
	if vm.SP <= vm.Arena.StackBase() {
		return 0, errs.New(errs.StackUnderflow, "pop", "").WithStack(vm.snapshot())
	}
	vm.SP--
	return vm.Arena.ReadCell(vm.SP)
}

// Peek reads TOS without popping.
func (vm *VM) Peek() (cell.Cell, error) {
	return vm.PeekAt(0)
}

// PeekAt reads the cell offsetFromTop cells below TOS (0 = TOS) without
// mutating SP.
func (vm *VM) PeekAt(offsetFromTop int) (cell.Cell, error) {
	idx := vm.SP - 1 - offsetFromTop
	if idx < vm.Arena.StackBase() || idx >= vm.SP {
		return 0, errs.New(errs.StackUnderflow, "peek", "").WithStack(vm.snapshot())
	}
	return vm.Arena.ReadCell(idx)
}

// EnsureSize raises a descriptive StackUnderflow if the data stack holds
// fewer than n cells, naming op for diagnostics.
func (vm *VM) EnsureSize(n int, op string) error {
	depth := vm.SP - vm.Arena.StackBase()
	if depth < n {
		return errs.New(errs.StackUnderflow, op, fmt.Sprintf("need %d, have %d", n, depth)).
			WithRequired(n).WithStack(vm.snapshot())
	}
	return nil
}

// Depth returns the current data-stack depth in cells.
func (vm *VM) Depth() int { return vm.SP - vm.Arena.StackBase() }

// ---- return stack ----

// RPush writes v at RP and advances it. Fails ReturnStackOverflow past
// the top of the RSTACK window.
func (vm *VM) RPush(v cell.Cell) error {
	if vm.RP >= vm.Arena.RStackTop() {
		return errs.New(errs.ReturnStackOverflow, "rpush", "")
	}
	if err := vm.Arena.WriteCell(vm.RP, v); err != nil {
		return err
	}
	vm.RP++
	return nil
}

// RPop decrements RP and returns the cell that was there. Fails
// ReturnStackUnderflow if the return stack is empty.
func (vm *VM) RPop() (cell.Cell, error) {
	if vm.RP <= vm.Arena.RStackBase() {
		return 0, errs.New(errs.ReturnStackUnderflow, "rpop", "")
	}
	vm.RP--
	return vm.Arena.ReadCell(vm.RP)
}

// RPeekAt reads the return-stack cell offsetFromTop below its top.
func (vm *VM) RPeekAt(offsetFromTop int) (cell.Cell, error) {
	idx := vm.RP - 1 - offsetFromTop
	if idx < vm.Arena.RStackBase() || idx >= vm.RP {
		return 0, errs.New(errs.ReturnStackUnderflow, "rpeek", "")
	}
	return vm.Arena.ReadCell(idx)
}

// EnsureRSize raises ReturnStackUnderflow if the return stack (from BP)
// holds fewer than n cells.
func (vm *VM) EnsureRSize(n int, op string) error {
	if vm.RP-vm.BP < n {
		return errs.New(errs.ReturnStackUnderflow, op, fmt.Sprintf("need %d, have %d", n, vm.RP-vm.BP)).
			WithRequired(n)
	}
	return nil
}
