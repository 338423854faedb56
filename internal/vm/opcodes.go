package vm

import (
	"fmt"
	"strings"

	"github.com/tacitlang/tacit/internal/mem"
)

// Opcode is a primitive operation identified by a byte in code memory.
// Indices 0..127 are primitives dispatched through dispatch; 128+ are
// reserved for user-defined words addressed by CODE-tagged values
// (spec.md §3, "Code segment"), which never appear as a raw opcode byte
// since Call/Eval resolve CODE cells to an address, not a dispatch index.
type Opcode uint8

// Operand shapes a primitive's trailing bytes take in the code stream,
// grounded in asm/codegen.go's per-instruction operand-count field.
type Operand int

const (
	OperandNone    Operand = iota
	OperandByte            // 1 byte, e.g. a local slot
	OperandOffset          // 2 bytes, little-endian signed branch offset
	OperandAddr16          // 2 bytes, little-endian unsigned code/global address
	OperandFloat32         // 4 bytes, little-endian IEEE-754 literal
)

// Control and core primitives.
const (
	OpLiteralNumber Opcode = iota
	OpLiteralString
	OpCall
	OpExit
	OpEval
	OpAbort
	OpBranch
	OpBranchCall // conditional: pops bool TOS, branches past the body if false
	OpGroupLeft
	OpGroupRight
	OpPrint
	OpPushSymbolRef

	// Locals / globals.
	OpLoadLocal
	OpInitVar
	OpGlobalRef
	OpInitGlobal

	// Capsules.
	OpCapsule
	OpDispatch
	OpExitDispatch

	// Global-heap primitives.
	OpGPush
	OpGPop
	OpGPeek
	OpGMark
	OpGSweep

	// List construction.
	OpOpenList
	OpCloseList

	// List engine.
	OpPack
	OpUnpack
	OpEnlist
	OpLength
	OpSize
	OpSlot
	OpElem
	OpFind
	OpWalk
	OpKeys
	OpValues
	OpRef
	OpHead
	OpTail
	OpReverse
	OpConcat
	OpFetch
	OpLoad
	OpStore

	// Numeric primitives (spec.md §1: "trivial, not elaborated").
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpAbs
	OpEq
	OpLt
	OpGt
	OpLe
	OpGe
	OpNe
	OpAnd
	OpOr
	OpNot
	OpXor
	OpSqrt
	OpSin
	OpCos

	// Stack shuffling (not elaborated in spec.md but required for §8's
	// literal scenarios, e.g. "dup * " in the square example).
	OpDup
	OpDrop
	OpSwap
	OpOver
	OpRot

	// String I/O (spec.md §1: "trivial, not elaborated").
	OpStrLen
	OpStrConcat
	OpStrEq

	opcodeCount
)

func init() {
	if opcodeCount > 128 {
		panic("vm: too many primitive opcodes for a 7-bit dispatch index")
	}
}

// names backs Opcode.String for disassembly and error messages, grounded
// in asm/codegen.go's name<->opcode instruction table (there mapping
// mnemonic to bit pattern; here mapping byte to mnemonic for the reverse
// direction, disassembly).
var names = [...]string{
	OpLiteralNumber: "lit-number",
	OpLiteralString: "lit-string",
	OpCall:          "call",
	OpExit:          "exit",
	OpEval:          "eval",
	OpAbort:         "abort",
	OpBranch:        "branch",
	OpBranchCall:    "branch-call",
	OpGroupLeft:     "group-left",
	OpGroupRight:    "group-right",
	OpPrint:         "print",
	OpPushSymbolRef: "push-symbol-ref",
	OpLoadLocal:     "load-local",
	OpInitVar:       "init-var",
	OpGlobalRef:     "global-ref",
	OpInitGlobal:    "init-global",
	OpCapsule:       "capsule",
	OpDispatch:      "dispatch",
	OpExitDispatch:  "exit-dispatch",
	OpGPush:         "gpush",
	OpGPop:          "gpop",
	OpGPeek:         "gpeek",
	OpGMark:         "gmark",
	OpGSweep:        "gsweep",
	OpOpenList:      "open-list",
	OpCloseList:     "close-list",
	OpPack:          "pack",
	OpUnpack:        "unpack",
	OpEnlist:        "enlist",
	OpLength:        "length",
	OpSize:          "size",
	OpSlot:          "slot",
	OpElem:          "elem",
	OpFind:          "find",
	OpWalk:          "walk",
	OpKeys:          "keys",
	OpValues:        "values",
	OpRef:           "ref",
	OpHead:          "head",
	OpTail:          "tail",
	OpReverse:       "reverse",
	OpConcat:        "concat",
	OpFetch:         "fetch",
	OpLoad:          "load",
	OpStore:         "store",
	OpAdd:           "+",
	OpSub:           "-",
	OpMul:           "*",
	OpDiv:           "/",
	OpMod:           "mod",
	OpNeg:           "neg",
	OpAbs:           "abs",
	OpEq:            "=",
	OpLt:            "<",
	OpGt:            ">",
	OpLe:            "<=",
	OpGe:            ">=",
	OpNe:            "~",
	OpAnd:           "&",
	OpOr:            "|",
	OpNot:           "!",
	OpXor:           "^",
	OpSqrt:          "sqrt",
	OpSin:           "sin",
	OpCos:           "cos",
	OpDup:           "dup",
	OpDrop:          "drop",
	OpSwap:          "swap",
	OpOver:          "over",
	OpRot:           "rot",
	OpStrLen:        "str-len",
	OpStrConcat:     "str-concat",
	OpStrEq:         "str-eq",
}

func (o Opcode) String() string {
	if int(o) < len(names) && names[o] != "" {
		return names[o]
	}
	return "?opcode?"
}

// operands records the trailing operand shape for each opcode, consulted
// by the interpreter's fetchOperand and by the disassembler.
var operands = [...]Operand{
	OpLiteralNumber: OperandFloat32,
	OpLiteralString: OperandAddr16,
	OpCall:          OperandAddr16,
	OpBranch:        OperandOffset,
	OpBranchCall:    OperandOffset,
	OpLoadLocal:     OperandByte,
	OpInitVar:       OperandByte,
	OpGlobalRef:     OperandAddr16,
	OpInitGlobal:    OperandAddr16,
	OpPushSymbolRef: OperandNone,
}

// OperandOf reports the trailing operand shape for opcode op.
func OperandOf(op Opcode) Operand {
	if int(op) < len(operands) {
		return operands[op]
	}
	return OperandNone
}

// Disassemble renders every instruction in code from offset 0 to its
// high-water mark as one "addr: mnemonic operand" line per instruction,
// grounded in the teacher's dsm package (byte-at-a-time walk over a code
// region, one line per decoded instruction) — superseded there by this
// opcode table's own String()/OperandOf() pair rather than a copy of
// dsm's mnemonic table, which targets a different ISA entirely.
func Disassemble(code *mem.ByteSegment) string {
	var b strings.Builder
	ip := 0
	for ip < code.Len() {
		start := ip
		opByte, err := code.Read8(ip)
		if err != nil {
			break
		}
		op := Opcode(opByte)
		ip++
		fmt.Fprintf(&b, "%5d: %-16s", start, op.String())
		switch OperandOf(op) {
		case OperandByte:
			v, _ := code.Read8(ip)
			fmt.Fprintf(&b, " %d", v)
			ip++
		case OperandOffset:
			v, _ := code.Read16(ip)
			fmt.Fprintf(&b, " %+d", int16(v))
			ip += 2
		case OperandAddr16:
			v, _ := code.Read16(ip)
			fmt.Fprintf(&b, " %d", v)
			ip += 2
		case OperandFloat32:
			v, _ := code.ReadFloat32(ip)
			fmt.Fprintf(&b, " %g", v)
			ip += 4
		}
		b.WriteByte('\n')
	}
	return b.String()
}
