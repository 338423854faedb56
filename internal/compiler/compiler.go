// Package compiler implements Tacit's single-pass postfix-to-bytecode
// compiler: one token produces one piece of bytecode (or, for immediate
// words, one compile-time action) with no separate parse tree, grounded
// in asm/assembler.go's single-pass label-and-emit structure and
// generalized from assembly mnemonics to postfix word resolution
// through the dictionary.
package compiler

import (
	"github.com/tacitlang/tacit/internal/cell"
	"github.com/tacitlang/tacit/internal/errs"
	"github.com/tacitlang/tacit/internal/lexer"
	"github.com/tacitlang/tacit/internal/vm"
)

// Compiler holds the one mutable cursor (Code.Len(), used as the write
// position) and the lexer driving compilation; the dictionary and code
// segment it writes into live on the VM.
type Compiler struct {
	vm  *vm.VM
	lex *lexer.Lexer

	// controlStack holds one frame per open control-flow form, recording
	// the placeholder byte offsets whose 16-bit operand needs patching
	// once the target address is known.
	controlStack []controlFrame

	// inDefinition tracks the definition-open/idle state from spec.md
	// §4.10: set for the duration of a colon definition's body so a
	// nested ":" can be rejected instead of silently recursing.
	inDefinition bool
}

// New creates a compiler over v's code segment and dictionary, seeding
// the dictionary with every builtin and control word on first use.
func New(v *vm.VM) (*Compiler, error) {
	c := &Compiler{vm: v}
	if cell.IsNil(v.Dict.Head()) {
		if err := seedBuiltins(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// compile8/compile16/compileFloat32/compileOpcode are the emitter
// primitives every higher-level compile step is built from, grounded in
// asm/codegen.go's emit8/emit16 pair.
func (c *Compiler) compile8(b byte) (int, error) { return c.vm.Code.Append([]byte{b}) }

func (c *Compiler) compile16(v uint16) (int, error) {
	off, err := c.vm.Code.Append([]byte{0, 0})
	if err != nil {
		return 0, err
	}
	if err := c.vm.Code.Write16(off, v); err != nil {
		return 0, err
	}
	return off, nil
}

func (c *Compiler) compileFloat32(f float32) (int, error) {
	off, err := c.vm.Code.Append([]byte{0, 0, 0, 0})
	if err != nil {
		return 0, err
	}
	if err := c.vm.Code.WriteFloat32(off, f); err != nil {
		return 0, err
	}
	return off, nil
}

func (c *Compiler) compileOpcode(op vm.Opcode) error {
	_, err := c.compile8(byte(op))
	return err
}

func (c *Compiler) here() int { return c.vm.Code.Len() }

// patch16 overwrites a previously emitted placeholder at off with v,
// used once a branch's target address becomes known.
func (c *Compiler) patch16(off int, v uint16) error {
	return c.vm.Code.Write16(off, v)
}

// CompileSource compiles one top-level chunk of source text (the body
// of one REPL line or one file) starting at the code segment's current
// high-water mark, appends Abort, and returns the entry address to Call.
func CompileSource(v *vm.VM, src string) (entry int, err error) {
	c, err := New(v)
	if err != nil {
		return 0, err
	}
	c.lex = lexer.New(src)
	entry = c.here()

	for {
		tok, err := c.lex.Next()
		if err != nil {
			return 0, err
		}
		if tok.Kind == lexer.EOF {
			break
		}
		if err := c.compileToken(tok); err != nil {
			return 0, err
		}
	}
	if len(c.controlStack) > 0 {
		return 0, errs.New(errs.Syntax, "compile", "unterminated control form").WithPos(0, 0)
	}
	if err := c.compileOpcode(vm.OpAbort); err != nil {
		return 0, err
	}
	return entry, nil
}

func (c *Compiler) compileToken(tok lexer.Token) error {
	switch tok.Kind {
	case lexer.Number:
		if err := c.compileOpcode(vm.OpLiteralNumber); err != nil {
			return err
		}
		_, err := c.compileFloat32(tok.Num)
		return err
	case lexer.String:
		addr, err := c.vm.Strings.Intern(tok.Text)
		if err != nil {
			return err
		}
		if err := c.compileOpcode(vm.OpLiteralString); err != nil {
			return err
		}
		_, err = c.compile16(uint16(addr))
		return err
	case lexer.LParen:
		return c.compileListLiteral(lexer.RParen)
	case lexer.RParen:
		return errs.New(errs.Syntax, "compile", "unmatched )").WithPos(tok.Line, tok.Col)
	case lexer.LBrace:
		// "{ }" is an alternate spelling of "( )" for maplist literals
		// ("{ \"a\" 1 \"b\" 2 }"), the even-keyed form find/keys/values
		// expect; both compile to the same OpenList/CloseList pair since
		// a maplist is structurally just a LIST with even slot count.
		return c.compileListLiteral(lexer.RBrace)
	case lexer.RBrace:
		return errs.New(errs.Syntax, "compile", "unmatched }").WithPos(tok.Line, tok.Col)
	case lexer.LBracket:
		return c.compileOpcode(vm.OpGroupLeft)
	case lexer.RBracket:
		return c.compileOpcode(vm.OpGroupRight)
	case lexer.Word:
		return c.compileWord(tok)
	default:
		return errs.New(errs.Syntax, "compile", "unexpected token "+tok.Kind.String()).WithPos(tok.Line, tok.Col)
	}
}

// compileListLiteral handles "( a b c )" and its "{ a b c }" maplist
// spelling by compiling OpenList, every contained token, then CloseList,
// recursing so nested lists (of either bracket kind) work. close is the
// token kind that ends this literal.
func (c *Compiler) compileListLiteral(close lexer.Kind) error {
	if err := c.compileOpcode(vm.OpOpenList); err != nil {
		return err
	}
	for {
		tok, err := c.lex.Next()
		if err != nil {
			return err
		}
		switch {
		case tok.Kind == lexer.EOF:
			return errs.New(errs.Syntax, "compile", "unterminated list literal")
		case tok.Kind == close:
			return c.compileOpcode(vm.OpCloseList)
		default:
			if err := c.compileToken(tok); err != nil {
				return err
			}
		}
	}
}

// compileWord resolves name against the dictionary: a colon-definition
// header, an immediate control word, a local/global bareword read, or an
// ordinary builtin/user word all flow through here.
func (c *Compiler) compileWord(tok lexer.Token) error {
	switch tok.Text {
	case ":":
		return c.compileColonDefinition()
	case ";":
		return errs.New(errs.Syntax, "compile", "unexpected ;").WithPos(tok.Line, tok.Col)
	}

	if h, ok := immediateHandlers[tok.Text]; ok {
		return h(c)
	}

	v, err := c.vm.Dict.Find(tok.Text, c.vm.Strings.Get)
	if err != nil {
		return err
	}
	if cell.IsNil(v) {
		return errs.New(errs.UnknownWord, "compile", tok.Text).WithPos(tok.Line, tok.Col)
	}
	return c.compileResolved(v)
}

// compileResolved emits the bytecode for an already-resolved dictionary
// value: BUILTIN emits its opcode, CODE emits a Call, LOCAL emits
// LoadLocal+Load and GLOBAL emits GlobalRef+Load, so a bare name reads
// the value rather than a handle either way.
func (c *Compiler) compileResolved(v cell.Cell) error {
	d := cell.Decode(v)
	switch d.Tag {
	case cell.TagBuiltin:
		return c.compileOpcode(vm.Opcode(d.Payload))
	case cell.TagCode:
		if err := c.compileOpcode(vm.OpCall); err != nil {
			return err
		}
		_, err := c.compile16(d.Payload)
		return err
	case cell.TagLocal:
		if err := c.compileOpcode(vm.OpLoadLocal); err != nil {
			return err
		}
		if _, err := c.compile8(byte(d.Payload)); err != nil {
			return err
		}
		return c.compileOpcode(vm.OpLoad)
	case cell.TagGlobal:
		if err := c.compileOpcode(vm.OpGlobalRef); err != nil {
			return err
		}
		if _, err := c.compile16(d.Payload); err != nil {
			return err
		}
		return c.compileOpcode(vm.OpLoad)
	default:
		return errs.New(errs.TypeMismatch, "compile", "word resolved to a non-callable value")
	}
}

// compileColonDefinition handles ": name word* ;": it reserves a forward
// branch around the body (so falling into the definition at the top
// level doesn't execute it), defines name as CODE at the body's start,
// resets the local scope, compiles the body until ";", emits Exit, then
// patches the forward branch.
func (c *Compiler) compileColonDefinition() error {
	if c.inDefinition {
		return errs.New(errs.Syntax, "compile", "nested : not allowed")
	}

	nameTok, err := c.lex.Next()
	if err != nil {
		return err
	}
	if nameTok.Kind != lexer.Word {
		return errs.New(errs.Syntax, "compile", "expected a name after :").WithPos(nameTok.Line, nameTok.Col)
	}

	if err := c.compileOpcode(vm.OpBranch); err != nil {
		return err
	}
	skipOff, err := c.compile16(0)
	if err != nil {
		return err
	}

	bodyStart := c.here()
	nameAddr, err := c.vm.Strings.Intern(nameTok.Text)
	if err != nil {
		return err
	}
	if _, err := c.vm.Dict.DefineCode(nameTok.Text, nameAddr, uint16(bodyStart), false); err != nil {
		return err
	}
	c.vm.Dict.ResetLocals()

	c.inDefinition = true
	for {
		tok, err := c.lex.Next()
		if err != nil {
			c.inDefinition = false
			return err
		}
		if tok.Kind == lexer.EOF {
			c.inDefinition = false
			return errs.New(errs.Syntax, "compile", "unterminated colon definition")
		}
		if tok.Kind == lexer.Word && tok.Text == ";" {
			break
		}
		if err := c.compileToken(tok); err != nil {
			c.inDefinition = false
			return err
		}
	}
	c.inDefinition = false
	if err := c.compileOpcode(vm.OpExit); err != nil {
		return err
	}

	after := c.here()
	if after-skipOff-2 < -0x8000 || after-skipOff-2 > 0x7FFF {
		return errs.New(errs.OutOfBounds, "compile", "definition too far to skip")
	}
	return c.patch16(skipOff, uint16(int16(after-skipOff-2)))
}
