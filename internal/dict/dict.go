// Package dict implements Tacit's symbol table: a singly-linked chain of
// LIST:3 entries ([prevRef, valueRef, nameTagged]) stored in the global
// heap, consulted after an in-memory local-variable scope that is
// consulted first. The chain-of-records-in-the-heap shape is grounded in
// lang/ysem/analyzer.go's buildSymbolTables phase and in asm/assembler.go's
// labels/symbols maps, generalized from Go maps to the heap-resident
// linked list spec.md requires so mark/revert can roll back definitions
// by simply rewinding GP and the head pointer.
package dict

import (
	"github.com/tacitlang/tacit/internal/cell"
	"github.com/tacitlang/tacit/internal/errs"
	"github.com/tacitlang/tacit/internal/mem"
)

// entrySlots is the payload size of every dictionary entry: prevRef,
// valueRef, nameTagged.
const entrySlots = 3

// local is one binding in the current compilation's local-variable scope.
type local struct {
	name string
	slot int
}

// Dictionary is the name-to-tagged-value table. It owns no heap of its
// own; it bump-allocates entries through the shared global Heap so that
// a Mark/Revert checkpoint can also roll back heap-resident list data
// built by the same code.
type Dictionary struct {
	heap *mem.Heap
	head cell.Cell // DATA_REF to the most recent entry's header, or Nil

	locals      []local
	localDepth  int // next slot to assign

	globalDepth int // next GLOBAL-window offset to assign
}

// New creates an empty dictionary bump-allocating through heap.
func New(heap *mem.Heap) *Dictionary {
	return &Dictionary{heap: heap, head: cell.Nil}
}

// Head returns the current chain head, a DATA_REF or Nil.
func (d *Dictionary) Head() cell.Cell { return d.head }

// define writes one entry and prepends it to the chain. value must
// already be a fully tagged cell (BUILTIN, CODE, or GLOBAL from
// DefineGlobal), immediate sets its
// meta bit at store time via the caller.
func (d *Dictionary) define(name string, value cell.Cell, nameAddr int) (cell.Cell, error) {
	base, err := d.heap.Alloc(entrySlots + 1) // +1 for the header
	if err != nil {
		return 0, err
	}
	arena := d.heap.Arena()
	// Payload stored deep-to-shallow: prevRef (base), valueRef (base+1),
	// nameTagged (base+2); header at base+3, matching the LIST layout
	// described in spec.md §3 ("cells at header-1..header-n").
	header := base + entrySlots
	nameTagged := cell.Encode(uint16(nameAddr), cell.TagString, false)
	if err := arena.WriteCell(base, d.head); err != nil {
		return 0, err
	}
	if err := arena.WriteCell(base+1, value); err != nil {
		return 0, err
	}
	if err := arena.WriteCell(base+2, nameTagged); err != nil {
		return 0, err
	}
	if err := arena.WriteCell(header, cell.Encode(entrySlots, cell.TagList, false)); err != nil {
		return 0, err
	}
	entryRef := cell.Encode(uint16(header), cell.TagDataRef, false)
	d.head = entryRef
	return entryRef, nil
}

// DefineBuiltin inserts an entry whose value is a BUILTIN-tagged opcode.
func (d *Dictionary) DefineBuiltin(name string, nameAddr int, opcode uint8, immediate bool) (cell.Cell, error) {
	v := cell.Encode(uint16(opcode), cell.TagBuiltin, immediate)
	return d.define(name, v, nameAddr)
}

// DefineCode inserts an entry whose value is a CODE-tagged address.
func (d *Dictionary) DefineCode(name string, nameAddr int, addr uint16, immediate bool) (cell.Cell, error) {
	v := cell.Encode(addr, cell.TagCode, immediate)
	return d.define(name, v, nameAddr)
}

// DefineLocal binds name to the next LOCAL slot in the current function
// scope. Slot numbers are assigned sequentially from 0 and reset only by
// the compiler starting a fresh definition (see compiler package).
func (d *Dictionary) DefineLocal(name string) int {
	slot := d.localDepth
	d.locals = append(d.locals, local{name: name, slot: slot})
	d.localDepth++
	return slot
}

// ResetLocals clears the local scope and slot counter; called when the
// compiler enters a new colon definition.
func (d *Dictionary) ResetLocals() {
	d.locals = d.locals[:0]
	d.localDepth = 0
}

// DefineGlobal binds name to the next GLOBAL-window offset and inserts
// it as an ordinary dictionary entry (TagGlobal-tagged), so it resolves
// through the same heap chain as builtins and colon-definitions rather
// than the per-definition local scope. Unlike DefineLocal's localDepth,
// globalDepth is never reset by ResetLocals: offsets persist for the
// dictionary's whole lifetime, since a global declared by one top-level
// chunk must still resolve in the next.
func (d *Dictionary) DefineGlobal(name string, nameAddr int) (offset int, err error) {
	offset = d.globalDepth
	v := cell.Encode(uint16(offset), cell.TagGlobal, false)
	if _, err := d.define(name, v, nameAddr); err != nil {
		return 0, err
	}
	d.globalDepth++
	return offset, nil
}

// entryField reads payload slot i (0-based, declaration order) of the
// LIST:3 entry whose header sits at headerAddr.
func (d *Dictionary) entryField(headerAddr, i int) (cell.Cell, error) {
	addr := headerAddr - entrySlots + i
	return d.heap.Arena().ReadCell(addr)
}

// Find looks up name, first against local bindings for the current
// scope, then by walking the heap dictionary chain from head to tail.
// Returns Nil if not found.
func (d *Dictionary) Find(name string, readName func(addr int) (string, error)) (cell.Cell, error) {
	for i := len(d.locals) - 1; i >= 0; i-- {
		if d.locals[i].name == name {
			return cell.Encode(uint16(d.locals[i].slot), cell.TagLocal, false), nil
		}
	}
	entry, _, err := d.findEntry(name, readName)
	if err != nil {
		return cell.Nil, err
	}
	if entry == nil {
		return cell.Nil, nil
	}
	return entry.Value, nil
}

// Entry is the decoded view of a dictionary entry returned by FindEntry.
type Entry struct {
	Value     cell.Cell
	Immediate bool
}

// FindEntry returns the value and immediate flag for name, walking only
// the heap chain (locals never carry an immediate flag).
func (d *Dictionary) FindEntry(name string, readName func(addr int) (string, error)) (*Entry, error) {
	e, _, err := d.findEntry(name, readName)
	return e, err
}

func (d *Dictionary) findEntry(name string, readName func(addr int) (string, error)) (*Entry, int, error) {
	cur := d.head
	for !cell.IsNil(cur) {
		if !cell.IsRef(cur) {
			return nil, 0, errs.New(errs.Fatal, "dict.find", "corrupt dictionary chain")
		}
		header := int(cell.GetValue(cur))
		nameCell, err := d.entryField(header, 2)
		if err != nil {
			return nil, 0, err
		}
		nd := cell.Decode(nameCell)
		entryName, err := readName(int(nd.Payload))
		if err != nil {
			return nil, 0, err
		}
		if entryName == name {
			valueCell, err := d.entryField(header, 1)
			if err != nil {
				return nil, 0, err
			}
			vd := cell.Decode(valueCell)
			return &Entry{Value: valueCell, Immediate: vd.Meta}, header, nil
		}
		prev, err := d.entryField(header, 0)
		if err != nil {
			return nil, 0, err
		}
		cur = prev
	}
	return nil, 0, nil
}

// Checkpoint snapshots dictionary + local state for later Revert.
type Checkpoint struct {
	gp          int
	head        cell.Cell
	localDepth  int
	localsLen   int
	globalDepth int
}

// Mark snapshots {GP, dictionary head, local depth, global depth}.
func (d *Dictionary) Mark() Checkpoint {
	return Checkpoint{
		gp:          d.heap.Mark(),
		head:        d.head,
		localDepth:  d.localDepth,
		localsLen:   len(d.locals),
		globalDepth: d.globalDepth,
	}
}

// Revert restores GP and the dictionary head; locals shrink to the
// recorded depth too, so an aborted colon definition loses only what it
// added. globalDepth rewinds along with the heap sweep so an aborted
// chunk's "global" declarations don't leave the offset counter ahead of
// what the reverted heap chain actually holds.
func (d *Dictionary) Revert(c Checkpoint) {
	d.heap.Sweep(c.gp)
	d.head = c.head
	d.localDepth = c.localDepth
	if c.localsLen <= len(d.locals) {
		d.locals = d.locals[:c.localsLen]
	}
	d.globalDepth = c.globalDepth
}
