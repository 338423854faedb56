package vm

import (
	"github.com/tacitlang/tacit/internal/cell"
	"github.com/tacitlang/tacit/internal/errs"
)

// String primitives. Tacit strings are STRING-tagged digest addresses,
// so every op here resolves through vm.Strings (spec.md §1: "trivial,
// not elaborated"), grounded in digest.Digest's Get/Intern pair.

func (vm *VM) popString(op string) (string, error) {
	c, err := vm.Pop()
	if err != nil {
		return "", err
	}
	d := cell.Decode(c)
	if d.IsNumber || d.Tag != cell.TagString {
		return "", errs.New(errs.TypeMismatch, op, "expected a string").WithStack(vm.snapshot())
	}
	return vm.Strings.Get(int(d.Payload))
}

func (vm *VM) dispatchString(op Opcode) error {
	switch op {
	case OpStrLen:
		s, err := vm.popString("str-len")
		if err != nil {
			return err
		}
		return vm.Push(cell.EncodeNumber(float32(len(s))))
	case OpStrConcat:
		b, err := vm.popString("str-concat")
		if err != nil {
			return err
		}
		a, err := vm.popString("str-concat")
		if err != nil {
			return err
		}
		addr, err := vm.Strings.Intern(a + b)
		if err != nil {
			return err
		}
		return vm.Push(cell.Encode(uint16(addr), cell.TagString, false))
	case OpStrEq:
		b, err := vm.popString("str-eq")
		if err != nil {
			return err
		}
		a, err := vm.popString("str-eq")
		if err != nil {
			return err
		}
		return vm.Push(cell.EncodeNumber(boolNumber(a == b)))
	}
	return errs.New(errs.InvalidOpcode, "dispatch-string", op.String())
}
