package mem

import (
	"testing"

	"github.com/tacitlang/tacit/internal/cell"
)

func TestArenaClassify(t *testing.T) {
	a := NewArena(10, 5, 5)
	tests := []struct {
		addr int
		want Segment
		ok   bool
	}{
		{0, SegGlobal, true},
		{9, SegGlobal, true},
		{10, SegStack, true},
		{14, SegStack, true},
		{15, SegRStack, true},
		{19, SegRStack, true},
		{20, 0, false},
		{-1, 0, false},
	}
	for _, tt := range tests {
		got, ok := a.Classify(tt.addr)
		if ok != tt.ok {
			t.Errorf("Classify(%d) ok=%v, want %v", tt.addr, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("Classify(%d) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestArenaReadWriteRoundTrip(t *testing.T) {
	a := NewArena(4, 4, 4)
	v := cell.EncodeNumber(3.25)
	if err := a.WriteCell(2, v); err != nil {
		t.Fatal(err)
	}
	got, err := a.ReadCell(2)
	if err != nil {
		t.Fatal(err)
	}
	if got != v {
		t.Errorf("ReadCell(2) = %v, want %v", got, v)
	}
}

func TestArenaOutOfBounds(t *testing.T) {
	a := NewArena(2, 2, 2)
	if _, err := a.ReadCell(100); err == nil {
		t.Fatal("expected out-of-bounds error")
	}
	if err := a.WriteCell(-1, 0); err == nil {
		t.Fatal("expected out-of-bounds error")
	}
}

func TestByteSegmentRoundTrip(t *testing.T) {
	s := NewByteSegment(64, "test")
	if err := s.Write8(0, 0xAB); err != nil {
		t.Fatal(err)
	}
	if v, err := s.Read8(0); err != nil || v != 0xAB {
		t.Fatalf("Read8 = %v, %v", v, err)
	}
	if err := s.Write16(4, 0x1234); err != nil {
		t.Fatal(err)
	}
	if v, err := s.Read16(4); err != nil || v != 0x1234 {
		t.Fatalf("Read16 = %v, %v", v, err)
	}
	if err := s.WriteFloat32(8, 2.5); err != nil {
		t.Fatal(err)
	}
	if v, err := s.ReadFloat32(8); err != nil || v != 2.5 {
		t.Fatalf("ReadFloat32 = %v, %v", v, err)
	}
}

func TestByteSegmentOverflow(t *testing.T) {
	s := NewByteSegment(4, "test")
	if err := s.Write16(3, 1); err == nil {
		t.Fatal("expected overflow error writing across segment end")
	}
}

func TestByteSegmentAppend(t *testing.T) {
	s := NewByteSegment(8, "test")
	off, err := s.Append([]byte{1, 2, 3})
	if err != nil || off != 0 {
		t.Fatalf("Append = %d, %v", off, err)
	}
	off2, err := s.Append([]byte{4, 5})
	if err != nil || off2 != 3 {
		t.Fatalf("Append = %d, %v", off2, err)
	}
	if s.Len() != 5 {
		t.Errorf("Len() = %d, want 5", s.Len())
	}
}
