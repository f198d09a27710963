package core

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// TestXRefEntry tests XRef entry creation
func TestXRefEntry(t *testing.T) {
	entry := &XRefEntry{
		Offset:     1234,
		Generation: 0,
		InUse:      true,
	}

	if entry.Offset != 1234 {
		t.Errorf("expected offset 1234, got %d", entry.Offset)
	}
	if entry.Generation != 0 {
		t.Errorf("expected generation 0, got %d", entry.Generation)
	}
	if !entry.InUse {
		t.Error("expected InUse to be true")
	}
	if entry.Compressed {
		t.Error("plain entry should not be compressed")
	}
}

// TestXRefTable tests XRef table operations
func TestXRefTable(t *testing.T) {
	table := NewXRefTable()

	entry := &XRefEntry{
		Offset:     1000,
		Generation: 0,
		InUse:      true,
	}
	table.Set(5, entry)

	retrieved, ok := table.Get(5)
	if !ok {
		t.Fatal("expected to retrieve entry")
	}
	if retrieved.Offset != 1000 {
		t.Errorf("expected offset 1000, got %d", retrieved.Offset)
	}

	if table.Size() != 1 {
		t.Errorf("expected size 1, got %d", table.Size())
	}

	if _, ok = table.Get(999); ok {
		t.Error("expected Get to return false for non-existent entry")
	}

	if table.Prev != -1 || table.XRefStm != -1 {
		t.Error("fresh table should have no Prev or XRefStm link")
	}
}

// TestFindStartXRef tests finding the XRef offset from EOF
func TestFindStartXRef(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantOffset int64
		wantErr    bool
	}{
		{
			"simple case",
			"some pdf content\nstartxref\n12\n%%EOF",
			12,
			false,
		},
		{
			"with extra whitespace",
			"content\nstartxref\n  5  \n%%EOF\n",
			5,
			false,
		},
		{
			"no startxref",
			"content without the keyword\n%%EOF",
			0,
			true,
		},
		{
			"invalid offset",
			"content\nstartxref\nabc\n%%EOF",
			0,
			true,
		},
		{
			"offset beyond file size",
			"content\nstartxref\n99999\n%%EOF",
			0,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewXRefParser(strings.NewReader(tt.input))

			offset, err := parser.FindStartXRef()
			if (err != nil) != tt.wantErr {
				t.Fatalf("wantErr=%v, got error: %v", tt.wantErr, err)
			}
			if tt.wantErr {
				return
			}

			if offset != tt.wantOffset {
				t.Errorf("expected offset %d, got %d", tt.wantOffset, offset)
			}
		})
	}
}

// TestParseClassicTable tests parsing a complete classic XRef table
func TestParseClassicTable(t *testing.T) {
	input := `xref
0 6
0000000000 65535 f
0000000017 00000 n
0000000081 00000 n
0000000000 00007 f
0000000331 00000 n
0000000409 00000 n
trailer
<< /Size 6 /Root 1 0 R >>
startxref
0
%%EOF`

	parser := NewXRefParser(strings.NewReader(input))

	table, err := parser.ParseSection(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if table.Size() != 6 {
		t.Errorf("expected 6 entries, got %d", table.Size())
	}
	if table.IsStream {
		t.Error("classic table should not be marked as stream format")
	}

	tests := []struct {
		objNum     int
		wantOffset int64
		wantGen    int
		wantInUse  bool
	}{
		{0, 0, 65535, false},
		{1, 17, 0, true},
		{2, 81, 0, true},
		{3, 0, 7, false},
		{4, 331, 0, true},
		{5, 409, 0, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("object %d", tt.objNum), func(t *testing.T) {
			entry, ok := table.Get(tt.objNum)
			if !ok {
				t.Fatalf("expected entry %d to exist", tt.objNum)
			}
			if entry.Offset != tt.wantOffset {
				t.Errorf("entry %d: expected offset %d, got %d", tt.objNum, tt.wantOffset, entry.Offset)
			}
			if entry.Generation != tt.wantGen {
				t.Errorf("entry %d: expected generation %d, got %d", tt.objNum, tt.wantGen, entry.Generation)
			}
			if entry.InUse != tt.wantInUse {
				t.Errorf("entry %d: expected InUse=%v, got %v", tt.objNum, tt.wantInUse, entry.InUse)
			}
		})
	}

	if size, ok := table.Trailer.GetInt("Size"); !ok || int(size) != 6 {
		t.Errorf("expected Size=6, got %v", table.Trailer.Get("Size"))
	}
	if root, ok := table.Trailer.GetIndirectRef("Root"); !ok || root.Number != 1 {
		t.Errorf("expected Root=1 0 R, got %v", table.Trailer.Get("Root"))
	}
}

// TestParseClassicTableMultipleSubsections tests multiple subsections
func TestParseClassicTableMultipleSubsections(t *testing.T) {
	input := `xref
0 1
0000000000 65535 f
3 2
0000000331 00000 n
0000000409 00000 n
trailer
<< /Size 5 >>
startxref
0
%%EOF`

	parser := NewXRefParser(strings.NewReader(input))

	table, err := parser.ParseSection(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if table.Size() != 3 {
		t.Errorf("expected 3 entries, got %d", table.Size())
	}

	if entry0, ok := table.Get(0); !ok {
		t.Error("expected entry 0 to exist")
	} else if entry0.InUse {
		t.Error("expected entry 0 to be free")
	}

	if entry3, ok := table.Get(3); !ok {
		t.Error("expected entry 3 to exist")
	} else if entry3.Offset != 331 {
		t.Errorf("expected entry 3 offset 331, got %d", entry3.Offset)
	}

	if entry4, ok := table.Get(4); !ok {
		t.Error("expected entry 4 to exist")
	} else if entry4.Offset != 409 {
		t.Errorf("expected entry 4 offset 409, got %d", entry4.Offset)
	}

	if _, ok := table.Get(1); ok {
		t.Error("did not expect entry 1 to exist")
	}
	if _, ok := table.Get(2); ok {
		t.Error("did not expect entry 2 to exist")
	}
}

// TestTrailerLinks tests that Prev and XRefStm pointers are captured
func TestTrailerLinks(t *testing.T) {
	input := `xref
0 1
0000000000 65535 f
trailer
<< /Size 1 /Prev 42 /XRefStm 17 >>
`

	parser := NewXRefParser(strings.NewReader(input))
	table, err := parser.ParseSection(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if table.Prev != 42 {
		t.Errorf("expected Prev=42, got %d", table.Prev)
	}
	if table.XRefStm != 17 {
		t.Errorf("expected XRefStm=17, got %d", table.XRefStm)
	}
}

// TestResolveChain tests walking a /Prev chain across two revisions
func TestResolveChain(t *testing.T) {
	var buf bytes.Buffer

	// Older revision: objects 1 and 2.
	oldXRef := int64(buf.Len())
	buf.WriteString("xref\n0 3\n")
	buf.WriteString("0000000000 65535 f \n")
	buf.WriteString("0000000100 00000 n \n")
	buf.WriteString("0000000200 00000 n \n")
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n")

	// Newer revision: re-points object 1, frees object 2.
	newXRef := int64(buf.Len())
	buf.WriteString("xref\n1 2\n")
	buf.WriteString("0000000500 00001 n \n")
	buf.WriteString("0000000000 00001 f \n")
	fmt.Fprintf(&buf, "trailer\n<< /Size 3 /Root 1 0 R /Prev %d >>\n", oldXRef)

	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", newXRef)

	parser := NewXRefParser(bytes.NewReader(buf.Bytes()))
	sections, err := parser.ResolveChain()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}

	merged := MergeSections(sections)

	// Object 1 comes from the newest revision.
	entry1, ok := merged.Get(1)
	if !ok {
		t.Fatal("expected entry 1")
	}
	if entry1.Offset != 500 || entry1.Generation != 1 {
		t.Errorf("entry 1 = offset %d gen %d, want offset 500 gen 1", entry1.Offset, entry1.Generation)
	}

	// Object 2 is freed by the newest revision; the free entry shadows
	// the older in-use one.
	entry2, ok := merged.Get(2)
	if !ok {
		t.Fatal("expected entry 2 (free) to be present")
	}
	if entry2.InUse {
		t.Error("entry 2 should be free after the newer revision")
	}

	// Object 0 only exists in the older revision.
	if _, ok := merged.Get(0); !ok {
		t.Error("expected entry 0 from the older revision")
	}

	trailers := TrailerChain(sections)
	if len(trailers) != 2 {
		t.Fatalf("expected 2 trailers, got %d", len(trailers))
	}
	if _, ok := trailers[0].GetInt("Prev"); !ok {
		t.Error("newest trailer should carry the Prev link")
	}
}

// TestResolveChainPrevCycle tests that a self-referencing Prev link ends the
// walk instead of looping
func TestResolveChainPrevCycle(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("xref\n0 1\n0000000000 65535 f \n")
	buf.WriteString("trailer\n<< /Size 1 /Prev 0 >>\n")
	fmt.Fprintf(&buf, "startxref\n0\n%%%%EOF\n")

	parser := NewXRefParser(bytes.NewReader(buf.Bytes()))
	sections, err := parser.ResolveChain()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sections) != 1 {
		t.Errorf("expected the cycle to yield exactly 1 section, got %d", len(sections))
	}
}

// TestMergeSections tests first-seen-wins merging of a newest-first chain
func TestMergeSections(t *testing.T) {
	newest := NewXRefTable()
	newest.Set(1, &XRefEntry{Offset: 150, Generation: 1, InUse: true})
	newest.Set(3, &XRefEntry{Offset: 300, Generation: 0, InUse: true})
	newest.Trailer = Dict{"Size": Int(4)}

	oldest := NewXRefTable()
	oldest.Set(1, &XRefEntry{Offset: 100, Generation: 0, InUse: true})
	oldest.Set(2, &XRefEntry{Offset: 200, Generation: 0, InUse: true})
	oldest.Trailer = Dict{"Size": Int(3)}

	merged := MergeSections([]*XRefTable{newest, oldest})

	if merged.Size() != 3 {
		t.Errorf("expected 3 entries, got %d", merged.Size())
	}

	// Object 1: the newest section's entry wins.
	entry1, _ := merged.Get(1)
	if entry1 == nil || entry1.Offset != 150 || entry1.Generation != 1 {
		t.Errorf("entry 1 should come from the newest section, got %+v", entry1)
	}

	// Object 2 survives from the oldest section.
	entry2, _ := merged.Get(2)
	if entry2 == nil || entry2.Offset != 200 {
		t.Errorf("entry 2 should come from the oldest section, got %+v", entry2)
	}

	// The merged trailer is the newest one.
	if size, ok := merged.Trailer.GetInt("Size"); !ok || int(size) != 4 {
		t.Errorf("expected Size=4 from newest trailer, got %v", merged.Trailer.Get("Size"))
	}
}

// TestXRefErrors tests error handling in XRef parsing
func TestXRefErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"invalid subsection header", "xref\nabc def\n"},
		{"truncated entries", "xref\n0 2\n0000000000 65535 f\n"},
		{"missing trailer", "xref\n0 1\n0000000000 65535 f\n"},
		{"garbage at offset", "not an xref section at all ####\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewXRefParser(strings.NewReader(tt.input))

			_, err := parser.ParseSection(0)
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// BenchmarkParseClassicTable benchmarks XRef table parsing
func BenchmarkParseClassicTable(b *testing.B) {
	var sb strings.Builder
	sb.WriteString("xref\n0 100\n0000000000 65535 f \n")
	for i := 1; i < 100; i++ {
		sb.WriteString("0000001234 00000 n \n")
	}
	sb.WriteString("trailer\n<< /Size 100 /Root 1 0 R >>\nstartxref\n0\n%%EOF")
	input := sb.String()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		parser := NewXRefParser(strings.NewReader(input))
		parser.ParseSection(0)
	}
}

// BenchmarkFindStartXRef benchmarks finding XRef from EOF
func BenchmarkFindStartXRef(b *testing.B) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	for i := 0; i < 1000; i++ {
		buf.WriteString("some pdf content line\n")
	}
	buf.WriteString("startxref\n12345\n%%EOF\n")

	input := buf.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		parser := NewXRefParser(bytes.NewReader(input))
		parser.FindStartXRef()
	}
}
