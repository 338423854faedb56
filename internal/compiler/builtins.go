package compiler

import "github.com/tacitlang/tacit/internal/vm"

// builtinSpec pairs a surface word with the opcode it compiles to and
// whether it's an immediate (executed at compile time rather than
// emitted), mirroring lang/ysem's builtin-symbol seeding pass.
type builtinSpec struct {
	name      string
	op        vm.Opcode
	immediate bool
}

// nonImmediateBuiltins lists every ordinary word the dictionary must
// know before any user source compiles. Control-flow words (if, else,
// endif, when, do, enddo, endwhen, case, of, endof, endcase, var) are
// immediate and registered separately in control.go since they drive
// the compiler rather than emit a fixed opcode.
var nonImmediateBuiltins = []builtinSpec{
	{"+", vm.OpAdd, false},
	{"-", vm.OpSub, false},
	{"*", vm.OpMul, false},
	{"/", vm.OpDiv, false},
	{"mod", vm.OpMod, false},
	{"neg", vm.OpNeg, false},
	{"abs", vm.OpAbs, false},
	{"=", vm.OpEq, false},
	{"<", vm.OpLt, false},
	{">", vm.OpGt, false},
	{"<=", vm.OpLe, false},
	{">=", vm.OpGe, false},
	{"~", vm.OpNe, false},
	{"&", vm.OpAnd, false},
	{"|", vm.OpOr, false},
	{"!", vm.OpNot, false},
	{"^", vm.OpXor, false},
	{"sqrt", vm.OpSqrt, false},
	{"sin", vm.OpSin, false},
	{"cos", vm.OpCos, false},

	{"dup", vm.OpDup, false},
	{"drop", vm.OpDrop, false},
	{"swap", vm.OpSwap, false},
	{"over", vm.OpOver, false},
	{"rot", vm.OpRot, false},

	{"str-len", vm.OpStrLen, false},
	{"str-concat", vm.OpStrConcat, false},
	{"str-eq", vm.OpStrEq, false},

	{"print", vm.OpPrint, false},
	{"push-symbol-ref", vm.OpPushSymbolRef, false},

	{"pack", vm.OpPack, false},
	{"unpack", vm.OpUnpack, false},
	{"enlist", vm.OpEnlist, false},
	{"length", vm.OpLength, false},
	{"size", vm.OpSize, false},
	{"slot", vm.OpSlot, false},
	{"elem", vm.OpElem, false},
	{"find", vm.OpFind, false},
	{"walk", vm.OpWalk, false},
	{"keys", vm.OpKeys, false},
	{"values", vm.OpValues, false},
	{"ref", vm.OpRef, false},
	{"head", vm.OpHead, false},
	{"tail", vm.OpTail, false},
	{"reverse", vm.OpReverse, false},
	{"concat", vm.OpConcat, false},
	{"fetch", vm.OpFetch, false},
	{"load", vm.OpLoad, false},
	{"store", vm.OpStore, false},

	{"gpush", vm.OpGPush, false},
	{"gpop", vm.OpGPop, false},
	{"gpeek", vm.OpGPeek, false},
	{"gmark", vm.OpGMark, false},
	{"gsweep", vm.OpGSweep, false},

	{"capsule", vm.OpCapsule, false},
	{"dispatch", vm.OpDispatch, false},
	{"exit-dispatch", vm.OpExitDispatch, false},

	{"eval", vm.OpEval, false},
}

// seedBuiltins registers every ordinary builtin in v's dictionary.
func seedBuiltins(c *Compiler) error {
	for _, b := range nonImmediateBuiltins {
		nameAddr, err := c.vm.Strings.Intern(b.name)
		if err != nil {
			return err
		}
		if _, err := c.vm.Dict.DefineBuiltin(b.name, nameAddr, uint8(b.op), b.immediate); err != nil {
			return err
		}
	}
	return seedControlWords(c)
}
