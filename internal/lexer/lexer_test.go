package lexer

import "testing"

func collect(t *testing.T, src string) []Token {
	t.Helper()
	l := New(src)
	var out []Token
	for {
		tok, err := l.Next()
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, tok)
		if tok.Kind == EOF {
			return out
		}
	}
}

func TestNumbersAndWords(t *testing.T) {
	toks := collect(t, "5 3 + dup")
	want := []Kind{Number, Number, Word, Word, EOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d = %v, want %v", i, toks[i].Kind, k)
		}
	}
	if toks[0].Num != 5 || toks[1].Num != 3 {
		t.Errorf("numbers = %v %v, want 5 3", toks[0].Num, toks[1].Num)
	}
}

func TestNegativeNumberVsMinusWord(t *testing.T) {
	toks := collect(t, "-5 3 -")
	if toks[0].Kind != Number || toks[0].Num != -5 {
		t.Errorf("expected -5 as a number, got %+v", toks[0])
	}
	if toks[2].Kind != Word || toks[2].Text != "-" {
		t.Errorf("expected bare '-' as a word, got %+v", toks[2])
	}
}

func TestStringLiteralWithEscapes(t *testing.T) {
	toks := collect(t, `"hello\nworld"`)
	if toks[0].Kind != String || toks[0].Text != "hello\nworld" {
		t.Errorf("got %+v", toks[0])
	}
}

func TestStringLiteralCarriageReturnEscape(t *testing.T) {
	toks := collect(t, `"a\rb"`)
	if toks[0].Kind != String || toks[0].Text != "a\rb" {
		t.Errorf("got %+v", toks[0])
	}
}

func TestListBrackets(t *testing.T) {
	toks := collect(t, "( 1 2 3 )")
	want := []Kind{LParen, Number, Number, Number, RParen, EOF}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d = %v, want %v", i, toks[i].Kind, k)
		}
	}
}

func TestCommentSkipped(t *testing.T) {
	toks := collect(t, "5 // this is a comment\n3 +")
	want := []Kind{Number, Number, Word, EOF}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d = %v, want %v", i, toks[i].Kind, k)
		}
	}
}

func TestBraceAndBracketTokens(t *testing.T) {
	toks := collect(t, "{ 1 2 } [ 3 ]")
	want := []Kind{LBrace, Number, Number, RBrace, LBracket, Number, RBracket, EOF}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d = %v, want %v", i, toks[i].Kind, k)
		}
	}
}

func TestUnread(t *testing.T) {
	l := New("var x")
	first, _ := l.Next()
	l.Unread(first)
	second, _ := l.Next()
	if first.Text != second.Text {
		t.Errorf("Unread did not replay the same token: %+v vs %+v", first, second)
	}
	third, _ := l.Next()
	if third.Text != "x" {
		t.Errorf("expected 'x' after replay, got %+v", third)
	}
}

func TestColonDefinitionWord(t *testing.T) {
	toks := collect(t, ": square dup * ;")
	var words []string
	for _, tok := range toks {
		if tok.Kind == Word {
			words = append(words, tok.Text)
		}
	}
	want := []string{":", "square", "dup", "*", ";"}
	if len(words) != len(want) {
		t.Fatalf("got %v, want %v", words, want)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("word %d = %q, want %q", i, words[i], want[i])
		}
	}
}
