package cell

import (
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload uint16
		tag     Tag
		meta    bool
	}{
		{"string zero", 0, TagString, false},
		{"code mid", 1234, TagCode, false},
		{"builtin immediate", 42, TagBuiltin, true},
		{"list large count", 0xFFFF, TagList, false},
		{"local slot", 7, TagLocal, false},
		{"dataref", 0x8000, TagDataRef, true},
		{"nil", 0, TagNil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Encode(tt.payload, tt.tag, tt.meta)
			d := Decode(c)
			if d.IsNumber {
				t.Fatalf("Decode(%v) reported IsNumber, want tagged", c)
			}
			if d.Tag != tt.tag || d.Payload != tt.payload || d.Meta != tt.meta {
				t.Fatalf("Decode(%v) = %+v, want tag=%v payload=%v meta=%v", c, d, tt.tag, tt.payload, tt.meta)
			}
		})
	}
}

func TestEncodeIntRoundTrip(t *testing.T) {
	for _, v := range []int16{0, 1, -1, 32767, -32768, 100} {
		c := EncodeInt(v)
		if got := AsInt(c); got != v {
			t.Errorf("AsInt(EncodeInt(%d)) = %d", v, got)
		}
	}
}

func TestEncodeNumberPreservesBits(t *testing.T) {
	for _, f := range []float32{0, 1, -1, 3.5, 1e20, -1e-20, math.MaxFloat32} {
		c := EncodeNumber(f)
		d := Decode(c)
		if !d.IsNumber {
			t.Fatalf("EncodeNumber(%v) did not decode as NUMBER", f)
		}
		if d.Number != f {
			t.Errorf("round trip %v -> %v", f, d.Number)
		}
	}
}

func TestPlainFloatsAreNumbers(t *testing.T) {
	for _, f := range []float32{0, 1, -42.5, 123456.0} {
		c := EncodeNumber(f)
		if !IsNumber(c) {
			t.Errorf("IsNumber(%v) = false, want true", f)
		}
	}
}

func TestTaggedCellsAreNotNumbers(t *testing.T) {
	c := Encode(5, TagList, false)
	if IsNumber(c) {
		t.Errorf("IsNumber(LIST cell) = true, want false")
	}
	if !IsList(c) {
		t.Errorf("IsList(LIST cell) = false")
	}
}

func TestNilSentinel(t *testing.T) {
	if !IsNil(Nil) {
		t.Errorf("IsNil(Nil) = false")
	}
	if IsNil(EncodeNumber(0)) {
		t.Errorf("IsNil(0.0) = true, NUMBER zero must not be NIL")
	}
}

func TestIsRef(t *testing.T) {
	ref := Encode(10, TagDataRef, false)
	if !IsRef(ref) {
		t.Errorf("IsRef(DATA_REF) = false")
	}
	if IsRef(Encode(10, TagList, false)) {
		t.Errorf("IsRef(LIST) = true")
	}
}
