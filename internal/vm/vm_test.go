package vm

import (
	"strings"
	"testing"

	"github.com/tacitlang/tacit/internal/cell"
)

func num(t *testing.T, c cell.Cell) float32 {
	t.Helper()
	d := cell.Decode(c)
	if !d.IsNumber {
		t.Fatalf("expected a number cell, got %+v", d)
	}
	return d.Number
}

func TestStackPushPopDepth(t *testing.T) {
	v := New()
	if err := v.Push(cell.EncodeNumber(5)); err != nil {
		t.Fatal(err)
	}
	if err := v.Push(cell.EncodeNumber(7)); err != nil {
		t.Fatal(err)
	}
	if v.Depth() != 2 {
		t.Fatalf("Depth() = %d, want 2", v.Depth())
	}
	top, err := v.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if num(t, top) != 7 {
		t.Errorf("Pop() = %v, want 7", top)
	}
}

func TestStackUnderflow(t *testing.T) {
	v := New()
	if _, err := v.Pop(); err == nil {
		t.Error("expected underflow error on empty stack")
	}
}

func TestArithmeticOpcodes(t *testing.T) {
	cases := []struct {
		name string
		op   Opcode
		a, b float32
		want float32
	}{
		{"add", OpAdd, 5, 3, 8},
		{"sub", OpSub, 5, 3, 2},
		{"mul", OpMul, 5, 3, 15},
		{"div", OpDiv, 6, 3, 2},
		{"mod", OpMod, 7, 3, 1},
		{"lt-true", OpLt, 1, 2, 1},
		{"lt-false", OpLt, 2, 1, 0},
		{"eq-true", OpEq, 4, 4, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := New()
			v.Push(cell.EncodeNumber(tc.a))
			v.Push(cell.EncodeNumber(tc.b))
			if err := v.dispatch(tc.op, 0); err != nil {
				t.Fatal(err)
			}
			got, err := v.Pop()
			if err != nil {
				t.Fatal(err)
			}
			if num(t, got) != tc.want {
				t.Errorf("%s = %v, want %v", tc.name, num(t, got), tc.want)
			}
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	v := New()
	v.Push(cell.EncodeNumber(1))
	v.Push(cell.EncodeNumber(0))
	if err := v.dispatch(OpDiv, 0); err == nil {
		t.Error("expected division-by-zero error")
	}
}

func TestStackShuffle(t *testing.T) {
	v := New()
	v.Push(cell.EncodeNumber(1))
	v.Push(cell.EncodeNumber(2))
	v.Push(cell.EncodeNumber(3))
	if err := v.dispatch(OpRot, 0); err != nil {
		t.Fatal(err)
	}
	// 1 2 3 rot -> 2 3 1
	want := []float32{2, 3, 1}
	for i := len(want) - 1; i >= 0; i-- {
		got, err := v.Pop()
		if err != nil {
			t.Fatal(err)
		}
		if num(t, got) != want[i] {
			t.Errorf("stack[%d] = %v, want %v", i, num(t, got), want[i])
		}
	}
}

func TestListPackLengthSlot(t *testing.T) {
	v := New()
	v.Push(cell.EncodeNumber(10))
	v.Push(cell.EncodeNumber(20))
	v.Push(cell.EncodeNumber(30))
	v.Push(cell.EncodeNumber(3)) // count
	if err := v.opPack(); err != nil {
		t.Fatal(err)
	}
	if err := v.opLength(); err != nil {
		t.Fatal(err)
	}
	n, err := v.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if num(t, n) != 3 {
		t.Fatalf("length = %v, want 3", num(t, n))
	}

	v.Push(cell.EncodeNumber(1)) // slot index
	if err := v.opSlot(); err != nil {
		t.Fatal(err)
	}
	ref, err := v.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if cell.Decode(ref).Tag != cell.TagDataRef {
		t.Fatalf("slot 1 = %+v, want a DATA_REF", cell.Decode(ref))
	}
	v.Push(ref)
	if err := v.opFetch(); err != nil {
		t.Fatal(err)
	}
	got, err := v.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if num(t, got) != 20 {
		t.Errorf("fetch(slot 1) = %v, want 20", num(t, got))
	}
}

func TestOpenCloseListRoundTrip(t *testing.T) {
	v := New()
	if err := v.OpenList(); err != nil {
		t.Fatal(err)
	}
	v.Push(cell.EncodeNumber(1))
	v.Push(cell.EncodeNumber(2))
	if err := v.CloseList(); err != nil {
		t.Fatal(err)
	}
	if err := v.opLength(); err != nil {
		t.Fatal(err)
	}
	n, _ := v.Pop()
	if num(t, n) != 2 {
		t.Errorf("length = %v, want 2", num(t, n))
	}
}

func TestHeadTail(t *testing.T) {
	v := New()
	v.Push(cell.EncodeNumber(1))
	v.Push(cell.EncodeNumber(2))
	v.Push(cell.EncodeNumber(3))
	v.Push(cell.EncodeNumber(3))
	if err := v.opPack(); err != nil {
		t.Fatal(err)
	}

	if err := v.opHead(); err != nil {
		t.Fatal(err)
	}
	h, _ := v.Pop()
	if num(t, h) != 1 {
		t.Errorf("head = %v, want 1", num(t, h))
	}

	v.Push(cell.EncodeNumber(1))
	v.Push(cell.EncodeNumber(2))
	v.Push(cell.EncodeNumber(3))
	v.Push(cell.EncodeNumber(3))
	v.opPack()
	if err := v.opTail(); err != nil {
		t.Fatal(err)
	}
	v.opLength()
	ln, _ := v.Pop()
	if num(t, ln) != 2 {
		t.Errorf("tail length = %v, want 2", num(t, ln))
	}
}

func TestNestedListLiteralSlotCountSumsSpans(t *testing.T) {
	// ( 1 ( 2 3 ) 4 ): outer payload is every cell pushed between its
	// OpenList/CloseList, including the inner list's own header, so its
	// slot count is 5 (1, 2, 3, inner-LIST:2, 4), matching spec.md §8's
	// "spans sum to slot count" invariant rather than a 3-element count.
	v := New()
	if err := v.OpenList(); err != nil {
		t.Fatal(err)
	}
	v.Push(cell.EncodeNumber(1))
	if err := v.OpenList(); err != nil {
		t.Fatal(err)
	}
	v.Push(cell.EncodeNumber(2))
	v.Push(cell.EncodeNumber(3))
	if err := v.CloseList(); err != nil {
		t.Fatal(err)
	}
	v.Push(cell.EncodeNumber(4))
	if err := v.CloseList(); err != nil {
		t.Fatal(err)
	}
	top, err := v.Peek()
	if err != nil {
		t.Fatal(err)
	}
	d := cell.Decode(top)
	if d.IsNumber || d.Tag != cell.TagList || d.Payload != 5 {
		t.Fatalf("outer header = %+v, want LIST:5", d)
	}
}

func TestFindMaplist(t *testing.T) {
	v := New()
	aAddr, _ := v.Strings.Intern("a")
	bAddr, _ := v.Strings.Intern("b")
	v.Push(cell.Encode(uint16(aAddr), cell.TagString, false))
	v.Push(cell.EncodeNumber(1))
	v.Push(cell.Encode(uint16(bAddr), cell.TagString, false))
	v.Push(cell.EncodeNumber(2))
	v.Push(cell.EncodeNumber(4))
	if err := v.opPack(); err != nil {
		t.Fatal(err)
	}
	v.Push(cell.Encode(uint16(bAddr), cell.TagString, false))
	if err := v.opFind(); err != nil {
		t.Fatal(err)
	}
	ref, _ := v.Pop()
	if cell.Decode(ref).Tag != cell.TagDataRef {
		t.Fatalf("find(b) = %+v, want a DATA_REF", cell.Decode(ref))
	}
	v.Push(ref)
	if err := v.opFetch(); err != nil {
		t.Fatal(err)
	}
	got, _ := v.Pop()
	if num(t, got) != 2 {
		t.Errorf("fetch(find(b)) = %v, want 2", num(t, got))
	}
}

func TestLocalsInitAndLoad(t *testing.T) {
	v := New()
	v.BP = v.RP
	v.Push(cell.EncodeNumber(10))
	if err := v.opInitVar(0); err != nil {
		t.Fatal(err)
	}
	v.Push(cell.EncodeNumber(20))
	if err := v.opInitVar(1); err != nil {
		t.Fatal(err)
	}

	if err := v.opLoadLocal(0); err != nil {
		t.Fatal(err)
	}
	if err := v.opLoad(); err != nil {
		t.Fatal(err)
	}
	got, _ := v.Pop()
	if num(t, got) != 10 {
		t.Errorf("local 0 = %v, want 10", num(t, got))
	}
}

func TestGlobalRefStoreFetch(t *testing.T) {
	v := New()
	v.Push(cell.EncodeNumber(99))
	if err := v.opInitGlobal(5); err != nil {
		t.Fatal(err)
	}
	if err := v.opGlobalRef(5); err != nil {
		t.Fatal(err)
	}
	if err := v.opFetch(); err != nil {
		t.Fatal(err)
	}
	got, _ := v.Pop()
	if num(t, got) != 99 {
		t.Errorf("global 5 = %v, want 99", num(t, got))
	}
}

func TestGHeapPushPeekPop(t *testing.T) {
	v := New()
	v.Push(cell.EncodeNumber(42))
	if err := v.opGPush(); err != nil {
		t.Fatal(err)
	}
	ref, err := v.Peek()
	if err != nil {
		t.Fatal(err)
	}
	if err := v.opGPeek(); err != nil {
		t.Fatal(err)
	}
	got, _ := v.Pop()
	if num(t, got) != 42 {
		t.Errorf("gpeek = %v, want 42", num(t, got))
	}
	if err := v.Push(ref); err != nil {
		t.Fatal(err)
	}
	if err := v.opGPop(); err != nil {
		t.Fatal(err)
	}
	got2, _ := v.Pop()
	if num(t, got2) != 42 {
		t.Errorf("gpop = %v, want 42", num(t, got2))
	}
}

func TestCallExitRoundTrip(t *testing.T) {
	v := New()
	// Program: at 0: Call 10; at 3: Abort.
	// at 10: LiteralNumber 7.0; Exit.
	v.Code.Write8(0, uint8(OpCall))
	v.Code.Write16(1, 10)
	v.Code.Write8(3, uint8(OpAbort))
	v.Code.Write8(10, uint8(OpLiteralNumber))
	v.Code.WriteFloat32(11, 7)
	v.Code.Write8(15, uint8(OpExit))

	v.IP = 0
	if err := v.Run(); err != nil {
		t.Fatal(err)
	}
	got, err := v.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if num(t, got) != 7 {
		t.Errorf("result = %v, want 7", num(t, got))
	}
}

func TestBranchCallSkipsWhenFalse(t *testing.T) {
	v := New()
	// push 0 (false); branch-call +6 skips the literal-7 push; push 9.
	v.Code.Write8(0, uint8(OpLiteralNumber))
	v.Code.WriteFloat32(1, 0)
	v.Code.Write8(5, uint8(OpBranchCall))
	v.Code.Write16(6, 5) // skip the 5 bytes of the guarded literal
	v.Code.Write8(8, uint8(OpLiteralNumber))
	v.Code.WriteFloat32(9, 7)
	v.Code.Write8(13, uint8(OpLiteralNumber))
	v.Code.WriteFloat32(14, 9)
	v.Code.Write8(18, uint8(OpAbort))

	v.IP = 0
	if err := v.Run(); err != nil {
		t.Fatal(err)
	}
	got, err := v.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if num(t, got) != 9 {
		t.Errorf("result = %v, want 9 (guarded literal should be skipped)", num(t, got))
	}
}

func TestCapsuleDispatch(t *testing.T) {
	v := New()
	// Method body at 20: LiteralNumber 5; ExitDispatch.
	v.Code.Write8(20, uint8(OpLiteralNumber))
	v.Code.WriteFloat32(21, 5)
	v.Code.Write8(25, uint8(OpExitDispatch))

	v.Push(cell.Encode(20, cell.TagCode, false))
	if err := v.opCapsule(); err != nil {
		t.Fatal(err)
	}
	handle, err := v.Pop()
	if err != nil {
		t.Fatal(err)
	}

	v.Push(handle)
	v.IP = 100
	if err := v.opDispatch(); err != nil {
		t.Fatal(err)
	}
	if v.IP != 20 {
		t.Fatalf("IP after dispatch = %d, want 20", v.IP)
	}
	if err := v.Step(); err != nil { // LiteralNumber 5
		t.Fatal(err)
	}
	if err := v.Step(); err != nil { // ExitDispatch
		t.Fatal(err)
	}
	if v.IP != 100 {
		t.Errorf("IP after exit-dispatch = %d, want 100", v.IP)
	}
	got, err := v.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if num(t, got) != 5 {
		t.Errorf("dispatch result = %v, want 5", num(t, got))
	}
}

func TestPushSymbolRefResolvesNameToBuiltin(t *testing.T) {
	v := New()
	nameAddr, err := v.Strings.Intern("dup")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Dict.DefineBuiltin("dup", nameAddr, uint8(OpDup), false); err != nil {
		t.Fatal(err)
	}
	v.Push(cell.Encode(uint16(nameAddr), cell.TagString, false))
	if err := v.opPushSymbolRef(); err != nil {
		t.Fatal(err)
	}
	got, err := v.Pop()
	if err != nil {
		t.Fatal(err)
	}
	d := cell.Decode(got)
	if d.IsNumber || d.Tag != cell.TagBuiltin || Opcode(d.Payload) != OpDup {
		t.Errorf("push-symbol-ref(dup) = %+v, want BUILTIN(OpDup)", d)
	}
}

func TestPushSymbolRefUnknownWordErrors(t *testing.T) {
	v := New()
	nameAddr, err := v.Strings.Intern("nope")
	if err != nil {
		t.Fatal(err)
	}
	v.Push(cell.Encode(uint16(nameAddr), cell.TagString, false))
	if err := v.opPushSymbolRef(); err == nil {
		t.Fatal("expected an UnknownWord error")
	}
}

func TestDisassembleCoversEveryEmittedInstruction(t *testing.T) {
	v := New()
	v.Code.Write8(0, uint8(OpLiteralNumber))
	v.Code.WriteFloat32(1, 7)
	v.Code.Write8(5, uint8(OpDup))
	v.Code.Write8(6, uint8(OpAdd))
	out := Disassemble(v.Code)
	for _, want := range []string{"lit-number", "7", "dup", "+"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly %q missing %q", out, want)
		}
	}
}
