package vm

import (
	"fmt"

	"github.com/tacitlang/tacit/internal/cell"
	"github.com/tacitlang/tacit/internal/errs"
)

// fetchOperand reads whatever trailing bytes op's OperandOf requires,
// starting at vm.IP (which must already point past the opcode byte
// itself), and advances IP past them.
func (vm *VM) fetchOperand(op Opcode) (int, error) {
	switch OperandOf(op) {
	case OperandNone:
		return 0, nil
	case OperandByte:
		b, err := vm.Code.Read8(vm.IP)
		if err != nil {
			return 0, err
		}
		vm.IP++
		return int(b), nil
	case OperandOffset:
		u, err := vm.Code.Read16(vm.IP)
		if err != nil {
			return 0, err
		}
		vm.IP += 2
		return int(int16(u)), nil
	case OperandAddr16:
		u, err := vm.Code.Read16(vm.IP)
		if err != nil {
			return 0, err
		}
		vm.IP += 2
		return int(u), nil
	case OperandFloat32:
		f, err := vm.Code.ReadFloat32(vm.IP)
		if err != nil {
			return 0, err
		}
		vm.IP += 4
		return 0, vm.pushFloatOperand(f)
	}
	return 0, nil
}

// pushFloatOperand stashes a decoded float32 literal for OpLiteralNumber
// to consume; fetchOperand can't return a float through its int channel.
func (vm *VM) pushFloatOperand(f float32) error {
	vm.pendingFloat = f
	return nil
}

// Step fetches, decodes and executes exactly one primitive opcode,
// mirroring emul/cpu.go's single-instruction Step used by both Run and
// the debugger's single-step command.
func (vm *VM) Step() error {
	opByte, err := vm.Code.Read8(vm.IP)
	if err != nil {
		return err
	}
	op := Opcode(opByte)
	if vm.Tracer != nil {
		vm.Tracer.TraceFetch(vm.IP, opByte)
	}
	vm.IP++
	depthBefore := vm.Depth()

	operand, err := vm.fetchOperand(op)
	if err != nil {
		return err
	}

	if err := vm.dispatch(op, operand); err != nil {
		if vm.Tracer != nil {
			vm.Tracer.TraceError(err)
		}
		return err
	}
	if vm.Tracer != nil {
		vm.Tracer.TraceOpcode(vm.IP, op.String(), depthBefore, vm.Depth())
	}
	return nil
}

// Run steps until Running is cleared (by Abort or reaching the end of a
// top-level definition) or an error occurs.
func (vm *VM) Run() error {
	for vm.Running {
		if err := vm.Step(); err != nil {
			return err
		}
	}
	return nil
}

// dispatch is the primitive switch, grounded in emul/execute.go's
// executeBase/executeXOP shape: one case per opcode, each calling a
// small dedicated method rather than inlining logic into the switch.
func (vm *VM) dispatch(op Opcode, operand int) error {
	switch op {
	case OpLiteralNumber:
		return vm.Push(cell.EncodeNumber(vm.pendingFloat))
	case OpLiteralString:
		return vm.Push(cell.Encode(uint16(operand), cell.TagString, false))
	case OpCall:
		return vm.opCall(operand)
	case OpExit:
		return vm.opExit()
	case OpEval:
		return vm.opEval()
	case OpAbort:
		vm.Running = false
		return nil
	case OpBranch:
		vm.IP += operand
		return nil
	case OpBranchCall:
		return vm.opBranchCallWithOffset(operand)
	case OpGroupLeft:
		return vm.opGroupLeft()
	case OpGroupRight:
		return vm.opGroupRight()
	case OpPrint:
		return vm.opPrint()
	case OpPushSymbolRef:
		return vm.opPushSymbolRef()

	case OpLoadLocal:
		return vm.opLoadLocal(operand)
	case OpInitVar:
		return vm.opInitVar(operand)
	case OpGlobalRef:
		return vm.opGlobalRef(operand)
	case OpInitGlobal:
		return vm.opInitGlobal(operand)

	case OpCapsule:
		return vm.opCapsule()
	case OpDispatch:
		return vm.opDispatch()
	case OpExitDispatch:
		return vm.opExitDispatch()

	case OpGPush:
		return vm.opGPush()
	case OpGPop:
		return vm.opGPop()
	case OpGPeek:
		return vm.opGPeek()
	case OpGMark:
		return vm.opGMark()
	case OpGSweep:
		return vm.opGSweep()

	case OpOpenList:
		return vm.OpenList()
	case OpCloseList:
		return vm.CloseList()
	case OpPack:
		return vm.opPack()
	case OpUnpack:
		return vm.opUnpack()
	case OpEnlist:
		return vm.opEnlist()
	case OpLength:
		return vm.opLength()
	case OpSize:
		return vm.opSize()
	case OpSlot:
		return vm.opSlot()
	case OpElem:
		return vm.opElem()
	case OpFind:
		return vm.opFind()
	case OpWalk:
		return vm.opWalk()
	case OpKeys:
		return vm.opKeys()
	case OpValues:
		return vm.opValues()
	case OpRef:
		return vm.opRef()
	case OpHead:
		return vm.opHead()
	case OpTail:
		return vm.opTail()
	case OpReverse:
		return vm.opReverse()
	case OpConcat:
		return vm.opConcat()
	case OpFetch:
		return vm.opFetch()
	case OpLoad:
		return vm.opLoad()
	case OpStore:
		return vm.opStore()

	default:
		return vm.dispatchNumericOrIO(op)
	}
}

// opCall implements Call: pushes the return address, then jumps.
// Mirrors emul/execute.go's JSR handling: save return IP on the
// control/return stack, set PC to the target.
func (vm *VM) opCall(addr int) error {
	if err := vm.RPush(cell.EncodeNumber(float32(vm.IP))); err != nil {
		return err
	}
	if err := vm.RPush(cell.EncodeNumber(float32(vm.BP))); err != nil {
		return err
	}
	if vm.Tracer != nil {
		vm.Tracer.TraceCall(vm.IP, addr)
	}
	vm.BP = vm.RP
	vm.IP = addr
	return nil
}

// opExit implements Exit: the inverse of Call, restoring BP then IP.
// With fewer than two return-stack cells below the frame (no caller to
// return to) it stops the VM instead.
func (vm *VM) opExit() error {
	if vm.BP-vm.Arena.RStackBase() < 2 {
		vm.Running = false
		return nil
	}
	vm.RP = vm.BP
	bpCell, err := vm.RPop()
	if err != nil {
		return err
	}
	ipCell, err := vm.RPop()
	if err != nil {
		return err
	}
	vm.BP = int(cell.Decode(bpCell).Number)
	vm.IP = int(cell.Decode(ipCell).Number)
	return nil
}

// opEval implements Eval: pops a CODE or BUILTIN value and invokes it.
// A CODE value calls into user-defined bytecode; a BUILTIN value is a
// primitive opcode looked up and executed directly without the
// Call/Exit frame bookkeeping a colon definition needs.
func (vm *VM) opEval() error {
	v, err := vm.Pop()
	if err != nil {
		return err
	}
	d := cell.Decode(v)
	if d.IsNumber {
		return errs.New(errs.TypeMismatch, "eval", "expected CODE or BUILTIN").WithStack(vm.snapshot())
	}
	switch d.Tag {
	case cell.TagCode:
		return vm.opCall(int(d.Payload))
	case cell.TagBuiltin:
		return vm.dispatch(Opcode(d.Payload), 0)
	default:
		return errs.New(errs.TypeMismatch, "eval", "expected CODE or BUILTIN").WithStack(vm.snapshot())
	}
}

// opBranchCallWithOffset implements the conditional branch the testing
// control words (if, do, of) compile to: pops a boolean TOS
// (nonzero is true) and skips past the guarded body when it's false.
func (vm *VM) opBranchCallWithOffset(offset int) error {
	v, err := vm.Pop()
	if err != nil {
		return err
	}
	d := cell.Decode(v)
	truthy := (d.IsNumber && d.Number != 0) || (!d.IsNumber && !cell.IsNil(v))
	if !truthy {
		vm.IP += offset
	}
	return nil
}

// opGroupLeft/opGroupRight implement the dynamic-arity bracket pair:
// GroupLeft remembers the current stack depth, GroupRight computes how
// many values were produced since and packages them as a LIST, the way
// a variadic word collects "everything produced so far" without the
// caller's ahead-of-time arity knowledge OpenList/CloseList assume.
func (vm *VM) opGroupLeft() error {
	vm.ListMarks = append(vm.ListMarks, vm.SP)
	return nil
}

func (vm *VM) opGroupRight() error {
	if len(vm.ListMarks) == 0 {
		return errs.New(errs.Syntax, "group-right", "no matching group-left")
	}
	mark := vm.ListMarks[len(vm.ListMarks)-1]
	vm.ListMarks = vm.ListMarks[:len(vm.ListMarks)-1]
	n := vm.SP - mark
	if n < 0 || n > 0xFFFF {
		return errs.New(errs.OutOfBounds, "group-right", "list too large")
	}
	return vm.Push(cell.Encode(uint16(n), cell.TagList, false))
}

// opPrint implements Print: pops TOS and writes its display form to
// Stdout, the tagged-value-domain counterpart of emul/io.go's console
// output primitive.
func (vm *VM) opPrint() error {
	v, err := vm.Pop()
	if err != nil {
		return err
	}
	fmt.Fprintln(vm.Stdout, v.String())
	return nil
}

// opPushSymbolRef implements PushSymbolRef: pops a STRING TOS, resolves
// it through the dictionary, and pushes the resulting tagged value
// (BUILTIN or CODE), per spec.md §4.7 — the runtime counterpart to how
// the compiler resolves a bare word at compile time.
func (vm *VM) opPushSymbolRef() error {
	c, err := vm.Pop()
	if err != nil {
		return err
	}
	d := cell.Decode(c)
	if d.IsNumber || d.Tag != cell.TagString {
		return errs.New(errs.TypeMismatch, "push-symbol-ref", "expected a STRING").WithStack(vm.snapshot())
	}
	name, err := vm.Strings.Get(int(d.Payload))
	if err != nil {
		return err
	}
	v, err := vm.Dict.Find(name, vm.Strings.Get)
	if err != nil {
		return err
	}
	vd := cell.Decode(v)
	if cell.IsNil(v) || vd.IsNumber || (vd.Tag != cell.TagBuiltin && vd.Tag != cell.TagCode) {
		return errs.New(errs.UnknownWord, "push-symbol-ref", name).WithStack(vm.snapshot())
	}
	return vm.Push(v)
}
