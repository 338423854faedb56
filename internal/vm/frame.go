package vm

import (
	"github.com/tacitlang/tacit/internal/cell"
	"github.com/tacitlang/tacit/internal/errs"
)

// Locals live on the return stack at BP+slot, one cell per "var"
// declaration, assigned sequentially by the compiler/dictionary
// (dict.DefineLocal). A LOCAL-tagged value resolves at runtime into a
// DATA_REF onto the return stack (spec.md's locals-are-refs rule), so
// the compiler pairs a bare local read with Load to get the value back.

// opInitVar implements "var name": pops TOS and appends it as the next
// return-stack local slot. slot must equal the frame's current RP-BP
// offset; the compiler and the runtime stack discipline are expected to
// agree on slot order, and a mismatch means a local was declared behind
// a control-flow path that skipped an earlier one.
func (vm *VM) opInitVar(slot int) error {
	if vm.RP-vm.BP != slot {
		return errs.New(errs.Fatal, "init-var", "local slot out of sequence").WithStack(vm.snapshot())
	}
	v, err := vm.Pop()
	if err != nil {
		return err
	}
	return vm.RPush(v)
}

// opLoadLocal implements the bytecode a bare local-name reference
// compiles to: a DATA_REF at BP+slot on the data stack, generally
// followed immediately by Load to materialize the value.
func (vm *VM) opLoadLocal(slot int) error {
	addr := vm.BP + slot
	if addr < vm.BP || addr >= vm.RP {
		return errs.New(errs.OutOfBounds, "load-local", "slot not yet initialized")
	}
	return vm.Push(cell.Encode(uint16(addr), cell.TagDataRef, false))
}

// opGlobalRef implements the bytecode a bare global-name reference
// compiles to: a DATA_REF at a fixed GLOBAL-window offset, baked in at
// compile time since globals don't move with BP.
func (vm *VM) opGlobalRef(offset int) error {
	addr := vm.Arena.GlobalBase() + offset
	if addr < vm.Arena.GlobalBase() || addr >= vm.Arena.GlobalTop() {
		return errs.New(errs.OutOfBounds, "global-ref", "offset out of range")
	}
	return vm.Push(cell.Encode(uint16(addr), cell.TagDataRef, false))
}

// opInitGlobal implements the top-level counterpart to InitVar: pops TOS
// and writes it at a fixed GLOBAL offset. Per spec.md §4.9, a compound
// value is heap-copied first so the global slot holds a stable DATA_REF
// rather than a LIST header whose payload lives transiently on the data
// stack below where it was just popped.
func (vm *VM) opInitGlobal(offset int) error {
	addr := vm.Arena.GlobalBase() + offset
	v, err := vm.Pop()
	if err != nil {
		return err
	}
	d := cell.Decode(v)
	if !d.IsNumber && d.Tag == cell.TagList {
		n := int(d.Payload)
		slots, err := vm.readSlots(vm.SP, n)
		if err != nil {
			return err
		}
		header, err := vm.heapCopyPayload(slots)
		if err != nil {
			return err
		}
		vm.SP -= n
		v = cell.Encode(uint16(header), cell.TagDataRef, false)
	}
	return vm.Arena.WriteCell(addr, v)
}

// ---- global-heap primitives (spec.md's gpush/gpop/gpeek/gmark/gsweep) ----

// opGPush implements "gpush": (value -- ref), bump-allocates one cell,
// stores value, and returns a handle.
func (vm *VM) opGPush() error {
	v, err := vm.Pop()
	if err != nil {
		return err
	}
	addr, err := vm.Heap.Alloc(1)
	if err != nil {
		return err
	}
	if err := vm.Arena.WriteCell(addr, v); err != nil {
		return err
	}
	return vm.Push(cell.Encode(uint16(addr), cell.TagDataRef, false))
}

// opGPeek implements "gpeek ref": (ref -- value), reads without freeing.
func (vm *VM) opGPeek() error {
	refc, err := vm.Pop()
	if err != nil {
		return err
	}
	rd := cell.Decode(refc)
	if rd.IsNumber || rd.Tag != cell.TagDataRef {
		return errs.New(errs.TypeMismatch, "gpeek", "expected a ref").WithStack(vm.snapshot())
	}
	v, err := vm.Arena.ReadCell(int(rd.Payload))
	if err != nil {
		return err
	}
	return vm.Push(v)
}

// opGPop implements "gpop ref": (ref -- value), reads the value then
// rewinds the bump allocator's GP to that cell, freeing it and anything
// allocated after it. There's no general free list, so this only makes
// sense for the most recently pushed handle still on the frontier.
func (vm *VM) opGPop() error {
	refc, err := vm.Pop()
	if err != nil {
		return err
	}
	rd := cell.Decode(refc)
	if rd.IsNumber || rd.Tag != cell.TagDataRef {
		return errs.New(errs.TypeMismatch, "gpop", "expected a ref").WithStack(vm.snapshot())
	}
	addr := int(rd.Payload)
	v, err := vm.Arena.ReadCell(addr)
	if err != nil {
		return err
	}
	vm.Heap.Sweep(addr)
	return vm.Push(v)
}

// opGMark implements "gmark": () -- mark), snapshotting GP.
func (vm *VM) opGMark() error {
	return vm.Push(cell.EncodeNumber(float32(vm.Heap.Mark())))
}

// opGSweep implements "gsweep mark": (mark -- ), rewinding GP.
func (vm *VM) opGSweep() error {
	mc, err := vm.Pop()
	if err != nil {
		return err
	}
	md := cell.Decode(mc)
	if !md.IsNumber {
		return errs.New(errs.TypeMismatch, "gsweep", "expected a mark").WithStack(vm.snapshot())
	}
	vm.Heap.Sweep(int(md.Number))
	return nil
}

// ---- capsules ----

// opCapsule implements "capsule": (method-code -- handle). It freezes
// the current frame's locals (BP..RP on the return stack) plus the
// method's CODE cell into a LIST on the global heap and returns a
// DATA_REF handle, so the object survives the frame's own Exit.
func (vm *VM) opCapsule() error {
	methodCode, err := vm.Pop()
	if err != nil {
		return err
	}
	if d := cell.Decode(methodCode); d.IsNumber || d.Tag != cell.TagCode {
		return errs.New(errs.TypeMismatch, "capsule", "expected a code value").WithStack(vm.snapshot())
	}
	nLocals := vm.RP - vm.BP
	total := nLocals + 1 // + trailing method-code slot
	base, err := vm.Heap.Alloc(total + 1)
	if err != nil {
		return err
	}
	for i := 0; i < nLocals; i++ {
		v, err := vm.Arena.ReadCell(vm.BP + i)
		if err != nil {
			return err
		}
		if err := vm.Arena.WriteCell(base+i, v); err != nil {
			return err
		}
	}
	if err := vm.Arena.WriteCell(base+nLocals, methodCode); err != nil {
		return err
	}
	header := base + total
	if err := vm.Arena.WriteCell(header, cell.Encode(uint16(total), cell.TagList, false)); err != nil {
		return err
	}
	return vm.Push(cell.Encode(uint16(header), cell.TagDataRef, false))
}

// opDispatch implements "dispatch": (args... handle -- ...), invoking a
// capsule's method with its frozen locals restored as the callee's
// frame. Mirrors Call's IP/BP save sequence but also saves and swaps the
// active Receiver.
func (vm *VM) opDispatch() error {
	handle, err := vm.Pop()
	if err != nil {
		return err
	}
	hd := cell.Decode(handle)
	if hd.IsNumber || hd.Tag != cell.TagDataRef {
		return errs.New(errs.TypeMismatch, "dispatch", "expected a capsule handle").WithStack(vm.snapshot())
	}
	header := int(hd.Payload)
	total, err := vm.listHeader(header, "dispatch")
	if err != nil {
		return err
	}
	nLocals := total - 1
	methodCell, err := vm.Arena.ReadCell(header - 1)
	if err != nil {
		return err
	}
	md := cell.Decode(methodCell)
	if md.IsNumber || md.Tag != cell.TagCode {
		return errs.New(errs.Fatal, "dispatch", "capsule missing method code")
	}

	if err := vm.RPush(cell.EncodeNumber(float32(vm.IP))); err != nil {
		return err
	}
	if err := vm.RPush(cell.EncodeNumber(float32(vm.BP))); err != nil {
		return err
	}
	if err := vm.RPush(vm.Receiver); err != nil {
		return err
	}

	newBP := vm.RP
	for i := 0; i < nLocals; i++ {
		v, err := vm.Arena.ReadCell(header - total + i)
		if err != nil {
			return err
		}
		if err := vm.RPush(v); err != nil {
			return err
		}
	}
	vm.Receiver = handle
	vm.BP = newBP
	vm.IP = int(md.Payload)
	return nil
}

// opExitDispatch implements "exit-dispatch": the return half of
// dispatch, restoring Receiver, BP and IP from the return stack.
func (vm *VM) opExitDispatch() error {
	vm.RP = vm.BP // drop the callee's locals
	receiver, err := vm.RPop()
	if err != nil {
		return err
	}
	bpCell, err := vm.RPop()
	if err != nil {
		return err
	}
	ipCell, err := vm.RPop()
	if err != nil {
		return err
	}
	vm.Receiver = receiver
	vm.BP = int(cell.Decode(bpCell).Number)
	vm.IP = int(cell.Decode(ipCell).Number)
	return nil
}
