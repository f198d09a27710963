package core

import (
	"bytes"
	"strings"
	"testing"
)

// lexed is a flattened (type, value) pair for comparing token streams.
type lexed struct {
	typ TokenType
	val string
}

// lexAll tokenizes the whole input, stopping at EOF or the first error.
func lexAll(t *testing.T, input string) []lexed {
	t.Helper()
	lexer := NewLexer(strings.NewReader(input))
	var out []lexed
	for {
		tok, err := lexer.NextToken()
		if err != nil {
			t.Fatalf("NextToken() error = %v after %d tokens", err, len(out))
		}
		if tok.Type == TokenEOF {
			return out
		}
		out = append(out, lexed{tok.Type, string(tok.Value)})
	}
}

func expectTokens(t *testing.T, input string, want []lexed) {
	t.Helper()
	got := lexAll(t, input)
	if len(got) != len(want) {
		t.Fatalf("lexAll(%q) produced %d tokens %v, want %d", input, len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = {%v %q}, want {%v %q}", i, got[i].typ, got[i].val, want[i].typ, want[i].val)
		}
	}
}

func TestLexerEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   \t\n\r\x00  "} {
		lexer := NewLexer(strings.NewReader(input))
		tok, err := lexer.NextToken()
		if err != nil {
			t.Fatalf("NextToken(%q) error = %v", input, err)
		}
		if tok.Type != TokenEOF {
			t.Errorf("NextToken(%q) = %v, want EOF", input, tok.Type)
		}
	}
}

func TestLexerTokenStreams(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []lexed
	}{
		{
			"dictionary",
			"<< /Type /Catalog /Pages 2 0 R >>",
			[]lexed{
				{TokenDictStart, "<<"},
				{TokenName, "Type"}, {TokenName, "Catalog"},
				{TokenName, "Pages"}, {TokenInteger, "2"}, {TokenInteger, "0"}, {TokenIndirectRef, "R"},
				{TokenDictEnd, ">>"},
			},
		},
		{
			"array",
			"[0 0 612 792.5]",
			[]lexed{
				{TokenArrayStart, "["},
				{TokenInteger, "0"}, {TokenInteger, "0"}, {TokenInteger, "612"}, {TokenReal, "792.5"},
				{TokenArrayEnd, "]"},
			},
		},
		{
			"indirect object frame",
			"7 0 obj\ntrue\nendobj",
			[]lexed{
				{TokenInteger, "7"}, {TokenInteger, "0"}, {TokenKeyword, "obj"},
				{TokenKeyword, "true"},
				{TokenKeyword, "endobj"},
			},
		},
		{
			"keywords and null",
			"true false null stream endstream",
			[]lexed{
				{TokenKeyword, "true"}, {TokenKeyword, "false"}, {TokenKeyword, "null"},
				{TokenKeyword, "stream"}, {TokenKeyword, "endstream"},
			},
		},
		{
			"signed numbers",
			"-42 +17 -0.5 .25 4.",
			[]lexed{
				{TokenInteger, "-42"}, {TokenInteger, "+17"},
				{TokenReal, "-0.5"}, {TokenReal, ".25"}, {TokenReal, "4."},
			},
		},
		{
			"comment between tokens",
			"1 % a remark\n2",
			[]lexed{
				{TokenInteger, "1"}, {TokenComment, "% a remark"}, {TokenInteger, "2"},
			},
		},
		{
			"header comment",
			"%PDF-1.7",
			[]lexed{{TokenComment, "%PDF-1.7"}},
		},
		{
			"adjacent delimiters",
			"[<</K[1]>>]",
			[]lexed{
				{TokenArrayStart, "["}, {TokenDictStart, "<<"},
				{TokenName, "K"},
				{TokenArrayStart, "["}, {TokenInteger, "1"}, {TokenArrayEnd, "]"},
				{TokenDictEnd, ">>"}, {TokenArrayEnd, "]"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectTokens(t, tt.input, tt.want)
		})
	}
}

func TestLexerLiteralStrings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "(hello)", "hello"},
		{"empty", "()", ""},
		{"balanced nesting", "(a (b (c)) d)", "a (b (c)) d"},
		{"escaped delimiters", `(\(not nested\))`, "(not nested)"},
		{"control escapes", `(a\nb\rc\td\be\ff)`, "a\nb\rc\td\be\ff"},
		{"escaped backslash", `(a\\b)`, `a\b`},
		{"octal full", `(\101)`, "A"},
		{"octal short", `(\12x)`, "\nx"},
		{"octal stops at three digits", `(\1014)`, "A4"},
		{"unknown escape keeps char", `(\q)`, "q"},
		{"line continuation", "(one\\\ntwo)", "onetwo"},
		{"raw newline kept", "(one\ntwo)", "one\ntwo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectTokens(t, tt.input, []lexed{{TokenString, tt.want}})
		})
	}

	t.Run("unterminated", func(t *testing.T) {
		lexer := NewLexer(strings.NewReader("(no closing paren"))
		if _, err := lexer.NextToken(); err == nil {
			t.Error("expected error for unterminated string")
		}
	})
}

// Hex string tokens carry the raw digits; decoding to bytes happens in the
// parser.
func TestLexerHexStrings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "<48656C6C6F>", "48656C6C6F"},
		{"empty", "<>", ""},
		{"embedded whitespace", "<48 65\n6C>", "48656C"},
		{"odd digit count kept", "<ABC>", "ABC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectTokens(t, tt.input, []lexed{{TokenHexString, tt.want}})
		})
	}

	for _, bad := range []string{"<48XY>", "<4865"} {
		lexer := NewLexer(strings.NewReader(bad))
		if _, err := lexer.NextToken(); err == nil {
			t.Errorf("NextToken(%q) succeeded, want error", bad)
		}
	}
}

func TestLexerNames(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "/Type", "Type"},
		{"empty", "/ ", ""},
		{"digits and punctuation", "/F1.2", "F1.2"},
		{"hash escape", "/A#20B", "A B"},
		{"hash hash", "/C#23D", "C#D"},
		{"stops at delimiter", "/Name(", "Name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexer := NewLexer(strings.NewReader(tt.input))
			tok, err := lexer.NextToken()
			if err != nil {
				t.Fatalf("NextToken() error = %v", err)
			}
			if tok.Type != TokenName || string(tok.Value) != tt.want {
				t.Errorf("token = {%v %q}, want {Name %q}", tok.Type, tok.Value, tt.want)
			}
		})
	}

	t.Run("bad hash escape", func(t *testing.T) {
		lexer := NewLexer(strings.NewReader("/A#ZZ"))
		if _, err := lexer.NextToken(); err == nil {
			t.Error("expected error for invalid hex escape in name")
		}
	})
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"stray closing angle", "> 1"},
		{"stray closing paren", ") 1"},
		{"unexpected byte", "\x01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexer := NewLexer(strings.NewReader(tt.input))
			_, err := lexer.NextToken()
			if _, ok := err.(*LexError); !ok {
				t.Errorf("NextToken(%q) error = %v, want *LexError", tt.input, err)
			}
		})
	}
}

func TestTolerantLexerResync(t *testing.T) {
	// The stray bytes after the valid keyword are skipped up to the next
	// boundary and lexing continues.
	lexer := NewTolerantLexer(strings.NewReader("abc \x01\x02garbage 42"))

	tok, err := lexer.NextToken()
	if err != nil || tok.Type != TokenKeyword || string(tok.Value) != "abc" {
		t.Fatalf("token 1 = {%v %q}, %v; want keyword abc", tok.Type, tok.Value, err)
	}

	tok, err = lexer.NextToken()
	if err != nil || tok.Type != TokenInteger || string(tok.Value) != "42" {
		t.Fatalf("token 2 = {%v %q}, %v; want integer 42", tok.Type, tok.Value, err)
	}
}

func TestStrictLexerFailsFast(t *testing.T) {
	lexer := NewLexer(strings.NewReader("abc \x01 42"))

	if _, err := lexer.NextToken(); err != nil {
		t.Fatalf("NextToken() error = %v", err)
	}
	if _, err := lexer.NextToken(); err == nil {
		t.Fatal("strict lexer accepted a malformed byte")
	}
}

func TestLexerPositions(t *testing.T) {
	lexer := NewLexer(strings.NewReader("12 /N (s)"))

	wantPos := []int64{0, 3, 6}
	for i, want := range wantPos {
		tok, err := lexer.NextToken()
		if err != nil {
			t.Fatalf("NextToken() error = %v", err)
		}
		if tok.Pos != want {
			t.Errorf("token %d Pos = %d, want %d", i, tok.Pos, want)
		}
	}
}

func TestSkipStreamEOL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  byte
	}{
		{"LF", "\nX", 'X'},
		{"CR", "\rX", 'X'},
		{"CRLF", "\r\nX", 'X'},
		{"no newline", "X", 'X'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexer := NewLexer(strings.NewReader(tt.input))
			if err := lexer.SkipStreamEOL(); err != nil {
				t.Fatalf("SkipStreamEOL() error = %v", err)
			}
			b, err := lexer.Peek()
			if err != nil || b != tt.want {
				t.Errorf("next byte = %q, %v; want %q", b, err, tt.want)
			}
		})
	}
}

func TestReadBytes(t *testing.T) {
	lexer := NewLexer(bytes.NewReader([]byte("0123456789")))

	data, err := lexer.ReadBytes(4)
	if err != nil {
		t.Fatalf("ReadBytes(4) error = %v", err)
	}
	if string(data) != "0123" {
		t.Errorf("ReadBytes(4) = %q, want 0123", data)
	}
	if lexer.Pos() != 4 {
		t.Errorf("Pos() = %d, want 4", lexer.Pos())
	}

	if _, err := lexer.ReadBytes(100); err == nil {
		t.Error("ReadBytes past EOF should error")
	}
}

func TestReadUntilMarker(t *testing.T) {
	t.Run("marker present", func(t *testing.T) {
		lexer := NewLexer(strings.NewReader("binary data here\nendstream rest"))
		data, err := lexer.ReadUntilMarker([]byte("endstream"))
		if err != nil {
			t.Fatalf("ReadUntilMarker() error = %v", err)
		}
		if string(data) != "binary data here\n" {
			t.Errorf("data = %q", data)
		}
		// The marker is consumed; the remainder follows it.
		tok, err := lexer.NextToken()
		if err != nil || string(tok.Value) != "rest" {
			t.Errorf("next token = %q, %v; want rest", tok.Value, err)
		}
	})

	t.Run("marker at start", func(t *testing.T) {
		lexer := NewLexer(strings.NewReader("endstream"))
		data, err := lexer.ReadUntilMarker([]byte("endstream"))
		if err != nil || len(data) != 0 {
			t.Errorf("data = %q, %v; want empty", data, err)
		}
	})

	t.Run("marker absent", func(t *testing.T) {
		lexer := NewLexer(strings.NewReader("no terminator in sight"))
		if _, err := lexer.ReadUntilMarker([]byte("endstream")); err == nil {
			t.Error("expected error when marker is missing")
		}
	})

	t.Run("partial marker prefix", func(t *testing.T) {
		lexer := NewLexer(strings.NewReader("endstr endstream"))
		data, err := lexer.ReadUntilMarker([]byte("endstream"))
		if err != nil {
			t.Fatalf("ReadUntilMarker() error = %v", err)
		}
		if string(data) != "endstr " {
			t.Errorf("data = %q, want %q", data, "endstr ")
		}
	})
}

func TestLexerBinaryComment(t *testing.T) {
	// The binary marker line after the header lexes as a comment and does
	// not disturb following tokens.
	input := "%\xE2\xE3\xCF\xD3\n99"
	lexer := NewLexer(strings.NewReader(input))

	tok, err := lexer.NextToken()
	if err != nil || tok.Type != TokenComment {
		t.Fatalf("token 1 = %v, %v; want comment", tok.Type, err)
	}
	tok, err = lexer.NextToken()
	if err != nil || tok.Type != TokenInteger || string(tok.Value) != "99" {
		t.Fatalf("token 2 = {%v %q}, %v; want integer 99", tok.Type, tok.Value, err)
	}
}
