// Package tacit wires the lexer, compiler and VM together into a single
// Run call, the programmatic counterpart to cmd/tacit's REPL and file
// loader.
package tacit

import (
	"github.com/tacitlang/tacit/internal/compiler"
	"github.com/tacitlang/tacit/internal/vm"
)

// Run compiles and executes one chunk of source against a fresh VM,
// returning the VM so callers can inspect the resulting stack.
func Run(source string) (*vm.VM, error) {
	v := vm.New()
	if _, err := RunIn(v, source); err != nil {
		return v, err
	}
	return v, nil
}

// RunIn compiles source against an existing VM (so definitions and
// globals persist across calls, the way a REPL session does) and runs
// it, returning the entry address the compiler used.
func RunIn(v *vm.VM, source string) (entry int, err error) {
	entry, err = compiler.CompileSource(v, source)
	if err != nil {
		return entry, err
	}
	v.IP = entry
	v.Running = true
	return entry, v.Run()
}
