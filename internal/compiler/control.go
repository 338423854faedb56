package compiler

import (
	"github.com/tacitlang/tacit/internal/cell"
	"github.com/tacitlang/tacit/internal/errs"
	"github.com/tacitlang/tacit/internal/lexer"
	"github.com/tacitlang/tacit/internal/vm"
)

// Control-flow forms are immediate: the compiler acts on them directly
// instead of emitting a fixed opcode, the way asm/assembler.go's
// directive words (".org", ".word") drive the assembler rather than
// emitting an instruction themselves.

type controlKind int

const (
	ctrlIf controlKind = iota
	ctrlWhen
	ctrlCase
)

type controlFrame struct {
	kind controlKind

	// if / else / endif
	condJumpOff int // "if"'s BranchCall placeholder
	exitJumpOff int // "else"'s unconditional Branch placeholder
	hasElse     bool

	// when / do / enddo / endwhen
	loopTop int // code offset "when" recorded
	doOff   int // "do"'s BranchCall placeholder

	// case / of / endof / endcase
	endOffs []int // every "endof" Branch placeholder, patched by endcase
}

func (c *Compiler) pushControl(f controlFrame) { c.controlStack = append(c.controlStack, f) }

func (c *Compiler) topControl(op string, want controlKind) (*controlFrame, error) {
	if len(c.controlStack) == 0 {
		return nil, errs.New(errs.Syntax, op, "no matching opening control word")
	}
	f := &c.controlStack[len(c.controlStack)-1]
	if f.kind != want {
		return nil, errs.New(errs.Syntax, op, "mismatched control form")
	}
	return f, nil
}

func (c *Compiler) popControl() controlFrame {
	f := c.controlStack[len(c.controlStack)-1]
	c.controlStack = c.controlStack[:len(c.controlStack)-1]
	return f
}

// patchBranch writes the signed offset a branch at off must carry so
// that, once its operand is read (leaving IP == off+2), adding the
// offset lands IP at target.
func (c *Compiler) patchBranch(off, target int) error {
	delta := target - (off + 2)
	if delta < -0x8000 || delta > 0x7FFF {
		return errs.New(errs.OutOfBounds, "compile", "branch target too far")
	}
	return c.patch16(off, uint16(int16(delta)))
}

func handleIf(c *Compiler) error {
	if err := c.compileOpcode(vm.OpBranchCall); err != nil {
		return err
	}
	off, err := c.compile16(0)
	if err != nil {
		return err
	}
	c.pushControl(controlFrame{kind: ctrlIf, condJumpOff: off})
	return nil
}

func handleElse(c *Compiler) error {
	f, err := c.topControl("else", ctrlIf)
	if err != nil {
		return err
	}
	if f.hasElse {
		return errs.New(errs.Syntax, "else", "duplicate else")
	}
	if err := c.compileOpcode(vm.OpBranch); err != nil {
		return err
	}
	off, err := c.compile16(0)
	if err != nil {
		return err
	}
	if err := c.patchBranch(f.condJumpOff, c.here()); err != nil {
		return err
	}
	f.exitJumpOff = off
	f.hasElse = true
	return nil
}

func handleEndif(c *Compiler) error {
	_, err := c.topControl("endif", ctrlIf)
	if err != nil {
		return err
	}
	frame := c.popControl()
	if frame.hasElse {
		return c.patchBranch(frame.exitJumpOff, c.here())
	}
	return c.patchBranch(frame.condJumpOff, c.here())
}

func handleWhen(c *Compiler) error {
	c.pushControl(controlFrame{kind: ctrlWhen, loopTop: c.here()})
	return nil
}

func handleDo(c *Compiler) error {
	f, err := c.topControl("do", ctrlWhen)
	if err != nil {
		return err
	}
	if err := c.compileOpcode(vm.OpBranchCall); err != nil {
		return err
	}
	off, err := c.compile16(0)
	if err != nil {
		return err
	}
	f.doOff = off
	return nil
}

func handleEnddo(c *Compiler) error {
	f, err := c.topControl("enddo", ctrlWhen)
	if err != nil {
		return err
	}
	if err := c.compileOpcode(vm.OpBranch); err != nil {
		return err
	}
	off, err := c.compile16(0)
	if err != nil {
		return err
	}
	if err := c.patchBranch(off, f.loopTop); err != nil {
		return err
	}
	frame := c.popControl()
	return c.patchBranch(frame.doOff, c.here())
}

func handleEndwhen(c *Compiler) error {
	return nil // enddo already closed and patched the frame
}

func handleCase(c *Compiler) error {
	c.pushControl(controlFrame{kind: ctrlCase})
	return nil
}

// handleOf compiles the per-branch test: (selector candidate -- ...).
// over+= compares candidate to selector without disturbing it; a false
// result skips the drop+body that follows, leaving selector for the
// next of.
func handleOf(c *Compiler) error {
	f, err := c.topControl("of", ctrlCase)
	if err != nil {
		return err
	}
	if err := c.compileOpcode(vm.OpOver); err != nil {
		return err
	}
	if err := c.compileOpcode(vm.OpEq); err != nil {
		return err
	}
	if err := c.compileOpcode(vm.OpBranchCall); err != nil {
		return err
	}
	off, err := c.compile16(0)
	if err != nil {
		return err
	}
	if err := c.compileOpcode(vm.OpDrop); err != nil {
		return err
	}
	f.doOff = off // reuse doOff as this of's pending skip target
	return nil
}

func handleEndof(c *Compiler) error {
	f, err := c.topControl("endof", ctrlCase)
	if err != nil {
		return err
	}
	if err := c.compileOpcode(vm.OpBranch); err != nil {
		return err
	}
	off, err := c.compile16(0)
	if err != nil {
		return err
	}
	f.endOffs = append(f.endOffs, off)
	return c.patchBranch(f.doOff, c.here())
}

func handleEndcase(c *Compiler) error {
	_, err := c.topControl("endcase", ctrlCase)
	if err != nil {
		return err
	}
	frame := c.popControl()
	for _, off := range frame.endOffs {
		if err := c.patchBranch(off, c.here()); err != nil {
			return err
		}
	}
	return nil
}

func handleVar(c *Compiler) error {
	tok, err := c.lex.Next()
	if err != nil {
		return err
	}
	if tok.Kind != lexer.Word {
		return errs.New(errs.Syntax, "var", "expected a name").WithPos(tok.Line, tok.Col)
	}
	slot := c.vm.Dict.DefineLocal(tok.Text)
	if err := c.compileOpcode(vm.OpInitVar); err != nil {
		return err
	}
	_, err = c.compile8(byte(slot))
	return err
}

// handleGlobal compiles "value global name": declares name as a
// persistent GLOBAL-window binding (unlike "var", which is scoped to
// the enclosing colon-definition's return-stack frame) and pops TOS
// into it. A compound TOS is heap-copied by InitGlobal itself.
func handleGlobal(c *Compiler) error {
	tok, err := c.lex.Next()
	if err != nil {
		return err
	}
	if tok.Kind != lexer.Word {
		return errs.New(errs.Syntax, "global", "expected a name").WithPos(tok.Line, tok.Col)
	}
	nameAddr, err := c.vm.Strings.Intern(tok.Text)
	if err != nil {
		return err
	}
	offset, err := c.vm.Dict.DefineGlobal(tok.Text, nameAddr)
	if err != nil {
		return err
	}
	if err := c.compileOpcode(vm.OpInitGlobal); err != nil {
		return err
	}
	_, err = c.compile16(uint16(offset))
	return err
}

// handleArrow compiles "value -> name": reassigns an already-declared
// local or global without redeclaring it, unlike "var"/"global" which
// always bind a fresh slot. (value -- ), leaving nothing; name must
// already resolve to a LOCAL or a GLOBAL.
func handleArrow(c *Compiler) error {
	tok, err := c.lex.Next()
	if err != nil {
		return err
	}
	if tok.Kind != lexer.Word {
		return errs.New(errs.Syntax, "->", "expected a name").WithPos(tok.Line, tok.Col)
	}
	v, err := c.vm.Dict.Find(tok.Text, c.vm.Strings.Get)
	if err != nil {
		return err
	}
	d := cell.Decode(v)
	switch {
	case !d.IsNumber && d.Tag == cell.TagLocal:
		if err := c.compileOpcode(vm.OpLoadLocal); err != nil {
			return err
		}
		if _, err := c.compile8(byte(d.Payload)); err != nil {
			return err
		}
		return c.compileOpcode(vm.OpStore)
	case !d.IsNumber && d.Tag == cell.TagGlobal:
		if err := c.compileOpcode(vm.OpGlobalRef); err != nil {
			return err
		}
		if _, err := c.compile16(d.Payload); err != nil {
			return err
		}
		return c.compileOpcode(vm.OpStore)
	default:
		return errs.New(errs.UnknownWord, "->", tok.Text+" is not a declared local or global").WithPos(tok.Line, tok.Col)
	}
}

// immediateHandlers maps every control-flow surface word to its
// compile-time action. Looked up before the ordinary dictionary so
// control words never need a runtime opcode of their own.
var immediateHandlers = map[string]func(*Compiler) error{
	"if":       handleIf,
	"else":     handleElse,
	"endif":    handleEndif,
	"when":     handleWhen,
	"do":       handleDo,
	"enddo":    handleEnddo,
	"endwhen":  handleEndwhen,
	"case":     handleCase,
	"of":       handleOf,
	"endof":    handleEndof,
	"endcase":  handleEndcase,
	"var":      handleVar,
	"global":   handleGlobal,
	"->":       handleArrow,
}

// seedControlWords registers every control word in the dictionary too,
// purely so reflective lookups (push-symbol-ref walkers) see them; the
// compiler itself dispatches through immediateHandlers directly.
func seedControlWords(c *Compiler) error {
	for name := range immediateHandlers {
		nameAddr, err := c.vm.Strings.Intern(name)
		if err != nil {
			return err
		}
		if _, err := c.vm.Dict.DefineBuiltin(name, nameAddr, 0, true); err != nil {
			return err
		}
	}
	return nil
}
