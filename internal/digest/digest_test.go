package digest

import "testing"

func TestAddGet(t *testing.T) {
	d := New(256)
	addr, err := d.Add("hello")
	if err != nil {
		t.Fatal(err)
	}
	s, err := d.Get(addr)
	if err != nil {
		t.Fatal(err)
	}
	if s != "hello" {
		t.Errorf("Get = %q, want hello", s)
	}
	if n, _ := d.Length(addr); n != 5 {
		t.Errorf("Length = %d, want 5", n)
	}
}

func TestFindNotFound(t *testing.T) {
	d := New(64)
	if addr, err := d.Find("nope"); err != nil || addr != NotFound {
		t.Errorf("Find = %d, %v, want NotFound", addr, err)
	}
}

func TestInternFindOrAdd(t *testing.T) {
	d := New(256)
	a1, err := d.Intern("abc")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := d.Intern("abc")
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Errorf("Intern not idempotent: %d != %d", a1, a2)
	}
	a3, err := d.Intern("xyz")
	if err != nil {
		t.Fatal(err)
	}
	if a3 == a1 {
		t.Errorf("distinct strings interned to same address")
	}
}

func TestStringTooLong(t *testing.T) {
	d := New(512)
	big := make([]byte, 256)
	if _, err := d.Add(string(big)); err == nil {
		t.Fatal("expected StringTooLong error")
	}
}

func TestDigestOverflow(t *testing.T) {
	d := New(4)
	if _, err := d.Add("toolong"); err == nil {
		t.Fatal("expected DigestOverflow error")
	}
}

func TestEmptyString(t *testing.T) {
	d := New(16)
	addr, err := d.Add("")
	if err != nil {
		t.Fatal(err)
	}
	s, err := d.Get(addr)
	if err != nil || s != "" {
		t.Errorf("Get(empty) = %q, %v", s, err)
	}
}
