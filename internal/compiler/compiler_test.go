package compiler

import (
	"testing"

	"github.com/tacitlang/tacit/internal/errs"
	"github.com/tacitlang/tacit/internal/vm"
)

func TestCompileUnknownWordFails(t *testing.T) {
	v := vm.New()
	_, err := CompileSource(v, "frobnicate")
	if err == nil {
		t.Fatal("expected an error for an unknown word")
	}
	if !errs.Is(err, errs.UnknownWord) {
		t.Errorf("got %v, want UnknownWord", err)
	}
}

func TestCompileMismatchedEndifFails(t *testing.T) {
	v := vm.New()
	if _, err := CompileSource(v, "endif"); err == nil {
		t.Fatal("expected an error for endif without if")
	}
}

func TestCompileUnterminatedColonDefinitionFails(t *testing.T) {
	v := vm.New()
	if _, err := CompileSource(v, ": foo dup *"); err == nil {
		t.Fatal("expected an error for a colon definition missing ;")
	}
}

func TestCompileProducesCallableEntry(t *testing.T) {
	v := vm.New()
	entry, err := CompileSource(v, "1 1 +")
	if err != nil {
		t.Fatal(err)
	}
	v.IP = entry
	if err := v.Run(); err != nil {
		t.Fatal(err)
	}
	top, err := v.Peek()
	if err != nil {
		t.Fatal(err)
	}
	if top.String() == "" {
		t.Error("expected a non-empty display form for the result")
	}
}

func TestNestedColonDefinitionFails(t *testing.T) {
	v := vm.New()
	_, err := CompileSource(v, ": outer : inner dup * ; ;")
	if err == nil {
		t.Fatal("expected an error for a nested colon definition")
	}
	if !errs.Is(err, errs.Syntax) {
		t.Errorf("got %v, want Syntax", err)
	}
}

func TestSeparateCompileSourceCallsShareDictionary(t *testing.T) {
	v := vm.New()
	if _, err := CompileSource(v, ": triple dup dup + + ;"); err != nil {
		t.Fatal(err)
	}
	entry, err := CompileSource(v, "5 triple")
	if err != nil {
		t.Fatal(err)
	}
	v.IP = entry
	if err := v.Run(); err != nil {
		t.Fatal(err)
	}
}
