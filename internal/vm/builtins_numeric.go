package vm

import (
	"math"

	"github.com/tacitlang/tacit/internal/cell"
	"github.com/tacitlang/tacit/internal/errs"
)

// Numeric and stack-shuffling primitives. Arithmetic and comparisons
// operate on plain NUMBER cells (spec.md §1 calls these "trivial, not
// elaborated"); the dispatch shape mirrors emul/execute.go's
// executeBase switch: one switch over the opcode, with each case's
// arithmetic written inline.

func (vm *VM) popNumber(op string) (float32, error) {
	c, err := vm.Pop()
	if err != nil {
		return 0, err
	}
	d := cell.Decode(c)
	if !d.IsNumber {
		return 0, errs.New(errs.TypeMismatch, op, "expected a number").WithStack(vm.snapshot())
	}
	return d.Number, nil
}

func (vm *VM) binaryNumeric(op string, f func(a, b float32) (float32, error)) error {
	b, err := vm.popNumber(op)
	if err != nil {
		return err
	}
	a, err := vm.popNumber(op)
	if err != nil {
		return err
	}
	r, err := f(a, b)
	if err != nil {
		return err
	}
	return vm.Push(cell.EncodeNumber(r))
}

func boolNumber(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func (vm *VM) dispatchNumericOrIO(op Opcode) error {
	switch op {
	case OpAdd:
		return vm.binaryNumeric("+", func(a, b float32) (float32, error) { return a + b, nil })
	case OpSub:
		return vm.binaryNumeric("-", func(a, b float32) (float32, error) { return a - b, nil })
	case OpMul:
		return vm.binaryNumeric("*", func(a, b float32) (float32, error) { return a * b, nil })
	case OpDiv:
		return vm.binaryNumeric("/", func(a, b float32) (float32, error) {
			if b == 0 {
				return 0, errs.New(errs.DivisionByZero, "/", "")
			}
			return a / b, nil
		})
	case OpMod:
		return vm.binaryNumeric("mod", func(a, b float32) (float32, error) {
			if b == 0 {
				return 0, errs.New(errs.DivisionByZero, "mod", "")
			}
			return float32(math.Mod(float64(a), float64(b))), nil
		})
	case OpNeg:
		a, err := vm.popNumber("neg")
		if err != nil {
			return err
		}
		return vm.Push(cell.EncodeNumber(-a))
	case OpAbs:
		a, err := vm.popNumber("abs")
		if err != nil {
			return err
		}
		return vm.Push(cell.EncodeNumber(float32(math.Abs(float64(a)))))
	case OpEq:
		return vm.binaryNumeric("=", func(a, b float32) (float32, error) { return boolNumber(a == b), nil })
	case OpNe:
		return vm.binaryNumeric("~", func(a, b float32) (float32, error) { return boolNumber(a != b), nil })
	case OpLt:
		return vm.binaryNumeric("<", func(a, b float32) (float32, error) { return boolNumber(a < b), nil })
	case OpGt:
		return vm.binaryNumeric(">", func(a, b float32) (float32, error) { return boolNumber(a > b), nil })
	case OpLe:
		return vm.binaryNumeric("<=", func(a, b float32) (float32, error) { return boolNumber(a <= b), nil })
	case OpGe:
		return vm.binaryNumeric(">=", func(a, b float32) (float32, error) { return boolNumber(a >= b), nil })
	case OpAnd:
		return vm.binaryNumeric("&", func(a, b float32) (float32, error) { return boolNumber(a != 0 && b != 0), nil })
	case OpOr:
		return vm.binaryNumeric("|", func(a, b float32) (float32, error) { return boolNumber(a != 0 || b != 0), nil })
	case OpXor:
		return vm.binaryNumeric("^", func(a, b float32) (float32, error) { return boolNumber((a != 0) != (b != 0)), nil })
	case OpNot:
		a, err := vm.popNumber("!")
		if err != nil {
			return err
		}
		return vm.Push(cell.EncodeNumber(boolNumber(a == 0)))
	case OpSqrt:
		a, err := vm.popNumber("sqrt")
		if err != nil {
			return err
		}
		return vm.Push(cell.EncodeNumber(float32(math.Sqrt(float64(a)))))
	case OpSin:
		a, err := vm.popNumber("sin")
		if err != nil {
			return err
		}
		return vm.Push(cell.EncodeNumber(float32(math.Sin(float64(a)))))
	case OpCos:
		a, err := vm.popNumber("cos")
		if err != nil {
			return err
		}
		return vm.Push(cell.EncodeNumber(float32(math.Cos(float64(a)))))

	case OpDup:
		v, err := vm.Peek()
		if err != nil {
			return err
		}
		return vm.Push(v)
	case OpDrop:
		_, err := vm.Pop()
		return err
	case OpSwap:
		b, err := vm.Pop()
		if err != nil {
			return err
		}
		a, err := vm.Pop()
		if err != nil {
			return err
		}
		if err := vm.Push(b); err != nil {
			return err
		}
		return vm.Push(a)
	case OpOver:
		v, err := vm.PeekAt(1)
		if err != nil {
			return err
		}
		return vm.Push(v)
	case OpRot:
		c, err := vm.Pop()
		if err != nil {
			return err
		}
		b, err := vm.Pop()
		if err != nil {
			return err
		}
		a, err := vm.Pop()
		if err != nil {
			return err
		}
		if err := vm.Push(b); err != nil {
			return err
		}
		if err := vm.Push(c); err != nil {
			return err
		}
		return vm.Push(a)

	case OpStrLen, OpStrConcat, OpStrEq:
		return vm.dispatchString(op)

	default:
		return errs.New(errs.InvalidOpcode, "dispatch", op.String())
	}
}
