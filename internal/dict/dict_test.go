package dict

import (
	"testing"

	"github.com/tacitlang/tacit/internal/cell"
	"github.com/tacitlang/tacit/internal/digest"
	"github.com/tacitlang/tacit/internal/mem"
)

func setup(t *testing.T) (*Dictionary, *digest.Digest) {
	t.Helper()
	a := mem.NewArena(256, 16, 16)
	h := mem.NewHeap(a)
	return New(h), digest.New(1024)
}

func TestDefineAndFindBuiltin(t *testing.T) {
	d, dg := setup(t)
	nameAddr, _ := dg.Intern("dup")
	if _, err := d.DefineBuiltin("dup", nameAddr, 5, false); err != nil {
		t.Fatal(err)
	}
	v, err := d.Find("dup", dg.Get)
	if err != nil {
		t.Fatal(err)
	}
	dec := cell.Decode(v)
	if dec.Tag != cell.TagBuiltin || dec.Payload != 5 {
		t.Errorf("Find(dup) = %+v", dec)
	}
}

func TestFindNotFound(t *testing.T) {
	d, dg := setup(t)
	v, err := d.Find("nope", dg.Get)
	if err != nil {
		t.Fatal(err)
	}
	if !cell.IsNil(v) {
		t.Errorf("Find(nope) = %v, want Nil", v)
	}
}

func TestMostRecentDefinitionWins(t *testing.T) {
	d, dg := setup(t)
	a1, _ := dg.Intern("sq")
	d.DefineBuiltin("sq", a1, 1, false)
	d.DefineBuiltin("sq", a1, 2, false)
	v, _ := d.Find("sq", dg.Get)
	if cell.Decode(v).Payload != 2 {
		t.Errorf("expected most recent definition (2), got %v", cell.Decode(v))
	}
}

func TestImmediateFlag(t *testing.T) {
	d, dg := setup(t)
	a1, _ := dg.Intern("if")
	d.DefineBuiltin("if", a1, 9, true)
	e, err := d.FindEntry("if", dg.Get)
	if err != nil {
		t.Fatal(err)
	}
	if e == nil || !e.Immediate {
		t.Errorf("FindEntry(if).Immediate = %+v, want true", e)
	}
}

func TestLocalsShadowChain(t *testing.T) {
	d, dg := setup(t)
	a1, _ := dg.Intern("x")
	d.DefineBuiltin("x", a1, 3, false)
	slot := d.DefineLocal("x")
	v, err := d.Find("x", dg.Get)
	if err != nil {
		t.Fatal(err)
	}
	dec := cell.Decode(v)
	if dec.Tag != cell.TagLocal || int(dec.Payload) != slot {
		t.Errorf("Find(x) = %+v, want LOCAL slot %d", dec, slot)
	}
}

func TestMarkRevert(t *testing.T) {
	d, dg := setup(t)
	a1, _ := dg.Intern("a")
	d.DefineBuiltin("a", a1, 1, false)
	cp := d.Mark()

	a2, _ := dg.Intern("b")
	d.DefineBuiltin("b", a2, 2, false)
	d.DefineLocal("localvar")

	if v, _ := d.Find("b", dg.Get); cell.IsNil(v) {
		t.Fatal("expected b to be defined before revert")
	}

	d.Revert(cp)

	if v, _ := d.Find("b", dg.Get); !cell.IsNil(v) {
		t.Errorf("b should be gone after revert, got %v", v)
	}
	if v, _ := d.Find("a", dg.Get); cell.IsNil(v) {
		t.Errorf("a should survive revert")
	}
	if len(d.locals) != 0 {
		t.Errorf("locals should be rolled back, got %v", d.locals)
	}
}

func TestResetLocals(t *testing.T) {
	d, _ := setup(t)
	d.DefineLocal("a")
	d.DefineLocal("b")
	d.ResetLocals()
	if d.localDepth != 0 || len(d.locals) != 0 {
		t.Errorf("ResetLocals did not clear state")
	}
}
