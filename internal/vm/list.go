package vm

import (
	"github.com/tacitlang/tacit/internal/cell"
	"github.com/tacitlang/tacit/internal/errs"
)

// The list engine treats a LIST cell as a header sitting at the highest
// address of its own span: payload slot i (0-based, in the order the
// elements were pushed) lives at headerAddr-n+i, exactly the convention
// dict.go already uses for dictionary entries. A LIST value is only
// meaningful in place; moving one means copying header and payload
// together, which headOf/tailOf/reverseOf/concatOf do explicitly below.

// listHeader decodes the header at absolute address addr, failing
// TypeMismatch if it isn't a LIST cell.
func (vm *VM) listHeader(addr int, op string) (n int, err error) {
	c, err := vm.Arena.ReadCell(addr)
	if err != nil {
		return 0, err
	}
	d := cell.Decode(c)
	if d.IsNumber || d.Tag != cell.TagList {
		return 0, errs.New(errs.TypeMismatch, op, "expected LIST").WithStack(vm.snapshot())
	}
	return int(d.Payload), nil
}

// OpenList records the current stack depth so CloseList knows how many
// cells to fold into the new list's payload.
func (vm *VM) OpenList() error {
	vm.ListMarks = append(vm.ListMarks, vm.SP)
	vm.ListDepth++
	return nil
}

// CloseList folds every cell pushed since the matching OpenList into a
// LIST header written on top of them.
func (vm *VM) CloseList() error {
	if len(vm.ListMarks) == 0 {
		return errs.New(errs.Syntax, "close-list", "no matching open-list")
	}
	mark := vm.ListMarks[len(vm.ListMarks)-1]
	vm.ListMarks = vm.ListMarks[:len(vm.ListMarks)-1]
	vm.ListDepth--
	n := vm.SP - mark
	if n < 0 || n > 0xFFFF {
		return errs.New(errs.OutOfBounds, "close-list", "list too large")
	}
	return vm.Push(cell.Encode(uint16(n), cell.TagList, false))
}

// opPack implements "pack": (v_n-1 ... v_0 n -- LIST:n). n is read from
// TOS; the n cells already below it become the payload in place.
func (vm *VM) opPack() error {
	nc, err := vm.Pop()
	if err != nil {
		return err
	}
	nd := cell.Decode(nc)
	if !nd.IsNumber {
		return errs.New(errs.TypeMismatch, "pack", "expected a count").WithStack(vm.snapshot())
	}
	n := int(nd.Number)
	if err := vm.EnsureSize(n, "pack"); err != nil {
		return err
	}
	return vm.Push(cell.Encode(uint16(n), cell.TagList, false))
}

// opUnpack implements "unpack": pops the header, leaving the payload in
// place; no count is pushed.
func (vm *VM) opUnpack() error {
	if _, err := vm.listHeader(vm.SP-1, "unpack"); err != nil {
		return err
	}
	vm.SP-- // drop the header only; payload cells stay put
	return nil
}

// opEnlist implements "enlist": wraps TOS in a LIST:1 without moving it.
func (vm *VM) opEnlist() error {
	if err := vm.EnsureSize(1, "enlist"); err != nil {
		return err
	}
	return vm.Push(cell.Encode(1, cell.TagList, false))
}

// opLength pushes the top-level slot count of the list at TOS.
func (vm *VM) opLength() error {
	n, err := vm.listHeader(vm.SP-1, "length")
	if err != nil {
		return err
	}
	return vm.Push(cell.EncodeNumber(float32(n)))
}

// opSize pushes the total cell footprint (payload + header) of the list
// at TOS, distinct from length: callers use it to size a heap copy.
func (vm *VM) opSize() error {
	n, err := vm.listHeader(vm.SP-1, "size")
	if err != nil {
		return err
	}
	return vm.Push(cell.EncodeNumber(float32(n + 1)))
}

func (vm *VM) slotIndex(op string) (addr, n, i int, err error) {
	ic, err := vm.Pop()
	if err != nil {
		return 0, 0, 0, err
	}
	id := cell.Decode(ic)
	if !id.IsNumber {
		return 0, 0, 0, errs.New(errs.TypeMismatch, op, "expected an index").WithStack(vm.snapshot())
	}
	i = int(id.Number)
	n, err = vm.listHeader(vm.SP-1, op)
	if err != nil {
		return 0, 0, 0, err
	}
	if i < 0 || i >= n {
		return 0, 0, 0, errs.New(errs.OutOfBounds, op, "index out of range")
	}
	return vm.SP - 1, n, i, nil
}

// opSlot implements "slot i": returns a DATA_REF to the i-th payload
// slot, addressable by fetch/load/store, not the slot's raw contents.
func (vm *VM) opSlot() error {
	headerAddr, n, i, err := vm.slotIndex("slot")
	if err != nil {
		return err
	}
	return vm.Push(cell.Encode(uint16(headerAddr-n+i), cell.TagDataRef, false))
}

// opElem implements "elem i": returns a DATA_REF to the i-th logical
// element, walking by spans so a nested list counts as one element (its
// ref points at the nested header). If that element's cell already holds
// a DATA_REF (a heap-resident compound stashed via store's
// NIL-to-compound rule), that ref is the logical element and is returned
// as-is rather than a new ref to the slot holding it; otherwise a fresh
// ref to the element's cell is returned.
func (vm *VM) opElem() error {
	headerAddr, n, i, err := vm.slotIndex("elem")
	if err != nil {
		return err
	}
	var tops []int // top cell of each element, last-pushed first
	for p := headerAddr - 1; p >= headerAddr-n; p-- {
		tops = append(tops, p)
		if d := cell.Decode(vm.Arena.MustReadCell(p)); !d.IsNumber && d.Tag == cell.TagList {
			p -= int(d.Payload)
		}
	}
	if i >= len(tops) {
		return errs.New(errs.OutOfBounds, "elem", "index out of range")
	}
	addr := tops[len(tops)-1-i]
	v, err := vm.Arena.ReadCell(addr)
	if err != nil {
		return err
	}
	d := cell.Decode(v)
	if !d.IsNumber && d.Tag == cell.TagDataRef {
		return vm.Push(v)
	}
	return vm.Push(cell.Encode(uint16(addr), cell.TagDataRef, false))
}

func (vm *VM) derefOnce(v cell.Cell) cell.Cell {
	d := cell.Decode(v)
	if d.IsNumber || d.Tag != cell.TagDataRef {
		return v
	}
	if out, err := vm.Arena.ReadCell(int(d.Payload)); err == nil {
		return out
	}
	return v
}

// opFind implements "find key": scans the list at TOS as a flat [k0 v0 k1
// v1 ...] maplist for a slot equal to key, returning a DATA_REF to the
// following slot (composable with fetch/load/store, per spec.md §4.8).
// Falls back to a REF to the slot keyed "default" if present, else Nil.
func (vm *VM) opFind() error {
	key, err := vm.Pop()
	if err != nil {
		return err
	}
	headerAddr := vm.SP - 1
	n, err := vm.listHeader(headerAddr, "find")
	if err != nil {
		return err
	}
	defaultAddr := -1
	for i := 0; i+1 < n; i += 2 {
		kAddr := headerAddr - n + i
		k, err := vm.Arena.ReadCell(kAddr)
		if err != nil {
			return err
		}
		if cellsEqual(k, key) {
			return vm.Push(cell.Encode(uint16(kAddr+1), cell.TagDataRef, false))
		}
		if defaultAddr < 0 {
			kd := cell.Decode(k)
			if kd.Tag == cell.TagString {
				if s, err := vm.Strings.Get(int(kd.Payload)); err == nil && s == "default" {
					defaultAddr = kAddr + 1
				}
			}
		}
	}
	if defaultAddr >= 0 {
		return vm.Push(cell.Encode(uint16(defaultAddr), cell.TagDataRef, false))
	}
	return vm.Push(cell.Nil)
}

func cellsEqual(a, b cell.Cell) bool {
	ad, bd := cell.Decode(a), cell.Decode(b)
	if ad.IsNumber != bd.IsNumber {
		return false
	}
	if ad.IsNumber {
		return ad.Number == bd.Number
	}
	return ad.Tag == bd.Tag && ad.Payload == bd.Payload
}

// opWalk implements "walk ref idx": a stateless iterator step over a
// heap-resident list addressed by a DATA_REF, returning the element at
// idx and a found flag so a caller can loop until it reads 0.
func (vm *VM) opWalk() error {
	ic, err := vm.Pop()
	if err != nil {
		return err
	}
	refc, err := vm.Pop()
	if err != nil {
		return err
	}
	id, rd := cell.Decode(ic), cell.Decode(refc)
	if !id.IsNumber || rd.Tag != cell.TagDataRef {
		return errs.New(errs.TypeMismatch, "walk", "expected (ref idx)").WithStack(vm.snapshot())
	}
	idx := int(id.Number)
	n, err := vm.listHeader(int(rd.Payload), "walk")
	if err != nil {
		return err
	}
	if idx < 0 || idx >= n {
		if err := vm.Push(cell.Nil); err != nil {
			return err
		}
		return vm.Push(cell.EncodeNumber(0))
	}
	v, err := vm.Arena.ReadCell(int(rd.Payload) - n + idx)
	if err != nil {
		return err
	}
	if err := vm.Push(vm.derefOnce(v)); err != nil {
		return err
	}
	return vm.Push(cell.EncodeNumber(1))
}

// materialize pushes a freshly built LIST header over the given payload
// cells (already assembled in order), used by keys/values/head/tail/
// reverse/concat to produce a new list value in place on the stack.
func (vm *VM) materialize(payload []cell.Cell) error {
	for _, c := range payload {
		if err := vm.Push(c); err != nil {
			return err
		}
	}
	if len(payload) > 0xFFFF {
		return errs.New(errs.OutOfBounds, "materialize", "list too large")
	}
	return vm.Push(cell.Encode(uint16(len(payload)), cell.TagList, false))
}

// heapCopyPayload allocates n+1 cells on the global heap, copies payload
// (already read from the stack) into them, writes a LIST:n header over
// the top, and returns the header's absolute address. Shared by store's
// NIL-to-compound rule and InitGlobal's compound-value rule, both of
// which need a stable heap-resident copy instead of the transient
// stack-resident payload a popped LIST header leaves behind.
func (vm *VM) heapCopyPayload(payload []cell.Cell) (headerAddr int, err error) {
	n := len(payload)
	base, err := vm.Heap.Alloc(n + 1)
	if err != nil {
		return 0, err
	}
	for i, s := range payload {
		if err := vm.Arena.WriteCell(base+i, s); err != nil {
			return 0, err
		}
	}
	header := base + n
	if err := vm.Arena.WriteCell(header, cell.Encode(uint16(n), cell.TagList, false)); err != nil {
		return 0, err
	}
	return header, nil
}

func (vm *VM) readSlots(headerAddr, n int) ([]cell.Cell, error) {
	out := make([]cell.Cell, n)
	for i := 0; i < n; i++ {
		v, err := vm.Arena.ReadCell(headerAddr - n + i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// opKeys implements "keys": every even-indexed slot of a maplist.
func (vm *VM) opKeys() error {
	headerAddr := vm.SP - 1
	n, err := vm.listHeader(headerAddr, "keys")
	if err != nil {
		return err
	}
	slots, err := vm.readSlots(headerAddr, n)
	if err != nil {
		return err
	}
	vm.SP-- // consume the source list's header; payload stays addressable
	var out []cell.Cell
	for i := 0; i+1 < len(slots); i += 2 {
		out = append(out, slots[i])
	}
	return vm.materialize(out)
}

// opValues implements "values": every odd-indexed slot of a maplist.
func (vm *VM) opValues() error {
	headerAddr := vm.SP - 1
	n, err := vm.listHeader(headerAddr, "values")
	if err != nil {
		return err
	}
	slots, err := vm.readSlots(headerAddr, n)
	if err != nil {
		return err
	}
	vm.SP--
	var out []cell.Cell
	for i := 1; i < len(slots); i += 2 {
		out = append(out, slots[i])
	}
	return vm.materialize(out)
}

// opRef implements "ref": produces a DATA_REF to the list header at TOS
// without consuming its payload, giving a stable handle safe to stash in
// a global or local slot.
func (vm *VM) opRef() error {
	if _, err := vm.listHeader(vm.SP-1, "ref"); err != nil {
		return err
	}
	return vm.Push(cell.Encode(uint16(vm.SP-1), cell.TagDataRef, false))
}

// opHead implements "head": the first-pushed (deepest) element, dereffed.
func (vm *VM) opHead() error {
	headerAddr := vm.SP - 1
	n, err := vm.listHeader(headerAddr, "head")
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.New(errs.OutOfBounds, "head", "empty list")
	}
	v, err := vm.Arena.ReadCell(headerAddr - n)
	if err != nil {
		return err
	}
	vm.SP-- // drop the source list value (payload left stale below)
	return vm.Push(vm.derefOnce(v))
}

// opTail implements "tail": a fresh list holding every slot but the
// first-pushed one.
func (vm *VM) opTail() error {
	headerAddr := vm.SP - 1
	n, err := vm.listHeader(headerAddr, "tail")
	if err != nil {
		return err
	}
	slots, err := vm.readSlots(headerAddr, n)
	if err != nil {
		return err
	}
	vm.SP--
	if n == 0 {
		return vm.materialize(nil)
	}
	return vm.materialize(slots[1:])
}

// opReverse implements "reverse": a fresh list with slot order flipped.
func (vm *VM) opReverse() error {
	headerAddr := vm.SP - 1
	n, err := vm.listHeader(headerAddr, "reverse")
	if err != nil {
		return err
	}
	slots, err := vm.readSlots(headerAddr, n)
	if err != nil {
		return err
	}
	vm.SP--
	out := make([]cell.Cell, n)
	for i, v := range slots {
		out[n-1-i] = v
	}
	return vm.materialize(out)
}

// opConcat implements "concat": (listA listB -- listAB), a fresh list
// with listA's slots followed by listB's.
func (vm *VM) opConcat() error {
	bAddr := vm.SP - 1
	bn, err := vm.listHeader(bAddr, "concat")
	if err != nil {
		return err
	}
	bSlots, err := vm.readSlots(bAddr, bn)
	if err != nil {
		return err
	}
	aAddr := bAddr - bn - 1 // listA's header sits just below listB's payload
	an, err := vm.listHeader(aAddr, "concat")
	if err != nil {
		return err
	}
	aSlots, err := vm.readSlots(aAddr, an)
	if err != nil {
		return err
	}
	vm.SP = aAddr // drop listB entirely and listA's header
	return vm.materialize(append(append([]cell.Cell{}, aSlots...), bSlots...))
}

// materializeFrom reads the LIST header at headerAddr plus its payload
// and pushes the whole value (payload then header), the way a fetch of a
// compound cell has to hand the caller a usable list rather than a bare
// header with no addressable payload beneath it on the stack.
func (vm *VM) materializeFrom(headerAddr int) error {
	n, err := vm.listHeader(headerAddr, "fetch")
	if err != nil {
		return err
	}
	slots, err := vm.readSlots(headerAddr, n)
	if err != nil {
		return err
	}
	return vm.materialize(slots)
}

// opFetch implements "fetch": requires TOS be a DATA_REF, single-
// dereferences it, and — per spec.md §4.8 — materializes the payload
// when the target cell is itself a LIST header instead of pushing the
// bare header with no payload beneath it.
func (vm *VM) opFetch() error {
	c, err := vm.Pop()
	if err != nil {
		return err
	}
	d := cell.Decode(c)
	if d.IsNumber || d.Tag != cell.TagDataRef {
		return errs.New(errs.TypeMismatch, "fetch", "expected a ref").WithStack(vm.snapshot())
	}
	addr := int(d.Payload)
	v, err := vm.Arena.ReadCell(addr)
	if err != nil {
		return err
	}
	vd := cell.Decode(v)
	if !vd.IsNumber && vd.Tag == cell.TagList {
		return vm.materializeFrom(addr)
	}
	return vm.Push(v)
}

// opLoad implements "load": identity on non-refs; on a DATA_REF it
// dereferences once, and again if that cell is itself a DATA_REF, then
// materializes the final value if it is a LIST header.
func (vm *VM) opLoad() error {
	c, err := vm.Pop()
	if err != nil {
		return err
	}
	d := cell.Decode(c)
	if d.IsNumber || d.Tag != cell.TagDataRef {
		return vm.Push(c)
	}
	addr := int(d.Payload)
	v, err := vm.Arena.ReadCell(addr)
	if err != nil {
		return err
	}
	vd := cell.Decode(v)
	if !vd.IsNumber && vd.Tag == cell.TagDataRef {
		addr = int(vd.Payload)
		v, err = vm.Arena.ReadCell(addr)
		if err != nil {
			return err
		}
		vd = cell.Decode(v)
	}
	if !vd.IsNumber && vd.Tag == cell.TagList {
		return vm.materializeFrom(addr)
	}
	return vm.Push(v)
}

// isGlobalAddr reports whether addr falls in the GLOBAL window, the only
// segment store's NIL-to-compound auto-allocation rule applies to.
func (vm *VM) isGlobalAddr(addr int) bool {
	return addr >= vm.Arena.GlobalBase() && addr < vm.Arena.GlobalTop()
}

// opStore implements "store": (value ref -- ), following spec.md §4.8's
// type-compatibility rules rather than a raw single-cell overwrite:
//
//   - simple-to-simple: overwrite the cell.
//   - compound-to-compound: in-place payload update if slot counts match,
//     else TypeMismatch.
//   - simple-to-compound or compound-to-simple: TypeMismatch.
//   - global NIL slot receiving a compound value: heap-allocate a copy
//     and store a DATA_REF in the slot instead of raising.
//
// A compound value arrives on the stack as its LIST header (just popped)
// with its payload cells still sitting below it, per the data stack's
// header-at-top convention.
func (vm *VM) opStore() error {
	refc, err := vm.Pop()
	if err != nil {
		return err
	}
	rd := cell.Decode(refc)
	if rd.IsNumber || rd.Tag != cell.TagDataRef {
		return errs.New(errs.TypeMismatch, "store", "expected a ref").WithStack(vm.snapshot())
	}
	addr := int(rd.Payload)

	vc, err := vm.Pop()
	if err != nil {
		return err
	}
	vd := cell.Decode(vc)
	valueIsCompound := !vd.IsNumber && vd.Tag == cell.TagList

	existing, err := vm.Arena.ReadCell(addr)
	if err != nil {
		return err
	}
	ed := cell.Decode(existing)
	targetIsCompound := !ed.IsNumber && ed.Tag == cell.TagList

	switch {
	case !valueIsCompound && !targetIsCompound:
		return vm.Arena.WriteCell(addr, vc)

	case valueIsCompound && targetIsCompound:
		n := int(vd.Payload)
		existingN := int(ed.Payload)
		if n != existingN {
			return errs.New(errs.TypeMismatch, "store", "incompatible list shape").WithStack(vm.snapshot())
		}
		for i := 0; i < n; i++ {
			v, err := vm.Arena.ReadCell(vm.SP - n + i)
			if err != nil {
				return err
			}
			if err := vm.Arena.WriteCell(addr-existingN+i, v); err != nil {
				return err
			}
		}
		vm.SP -= n
		return nil

	case valueIsCompound && !targetIsCompound:
		if cell.IsNil(existing) && vm.isGlobalAddr(addr) {
			n := int(vd.Payload)
			slots, err := vm.readSlots(vm.SP, n)
			if err != nil {
				return err
			}
			header, err := vm.heapCopyPayload(slots)
			if err != nil {
				return err
			}
			vm.SP -= n
			return vm.Arena.WriteCell(addr, cell.Encode(uint16(header), cell.TagDataRef, false))
		}
		return errs.New(errs.TypeMismatch, "store", "cannot store a compound value into a simple slot").WithStack(vm.snapshot())

	default: // simple-to-compound
		return errs.New(errs.TypeMismatch, "store", "cannot store a simple value into a compound slot").WithStack(vm.snapshot())
	}
}
