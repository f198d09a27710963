package core

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// XRefEntry represents a single cross-reference entry. An entry either
// locates an object directly in the file (Offset/Generation) or inside a
// compressed object stream (StreamNum/StreamIndex when Compressed is set).
type XRefEntry struct {
	Offset      int64 // Byte offset in file (for in-use objects)
	Generation  int   // Generation number
	InUse       bool  // true if object is in use, false if free
	Compressed  bool  // true if object lives inside an object stream
	StreamNum   int   // Object number of the containing object stream
	StreamIndex int   // Index of the object within the containing stream
}

// XRefTable represents one cross-reference section: its entries, its trailer
// dictionary, and the links to the rest of the revision chain.
type XRefTable struct {
	Entries  map[int]*XRefEntry // Map from object number to XRef entry
	Trailer  Dict               // Trailer dictionary
	Prev     int64              // Offset of the previous section, -1 if none
	XRefStm  int64              // Offset of a hybrid-file xref stream, -1 if none
	IsStream bool               // true if this section was an xref stream
}

// NewXRefTable creates a new empty XRef table
func NewXRefTable() *XRefTable {
	return &XRefTable{
		Entries: make(map[int]*XRefEntry),
		Trailer: make(Dict),
		Prev:    -1,
		XRefStm: -1,
	}
}

// Get retrieves an XRef entry by object number
func (x *XRefTable) Get(objNum int) (*XRefEntry, bool) {
	entry, ok := x.Entries[objNum]
	return entry, ok
}

// Set adds or updates an XRef entry
func (x *XRefTable) Set(objNum int, entry *XRefEntry) {
	x.Entries[objNum] = entry
}

// Size returns the number of entries in the table
func (x *XRefTable) Size() int {
	return len(x.Entries)
}

// readLinks captures /Prev and /XRefStm from the trailer dictionary.
func (x *XRefTable) readLinks() {
	if prev, ok := x.Trailer.GetInt("Prev"); ok {
		x.Prev = int64(prev)
	}
	if stm, ok := x.Trailer.GetInt("XRefStm"); ok {
		x.XRefStm = int64(stm)
	}
}

// XRefParser parses PDF cross-reference sections, both the classic textual
// table format and the binary xref-stream format.
type XRefParser struct {
	reader io.ReadSeeker
}

// NewXRefParser creates a new XRef parser
func NewXRefParser(r io.ReadSeeker) *XRefParser {
	return &XRefParser{
		reader: r,
	}
}

// FindStartXRef finds the byte offset of the last XRef section by scanning
// backwards from EOF for "startxref\n<offset>\n%%EOF".
func (x *XRefParser) FindStartXRef() (int64, error) {
	fileSize, err := x.reader.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, &XRefError{Msg: "failed to seek to end", Cause: err}
	}

	// The startxref section lives in the last few lines; 1024 bytes is
	// ample even with trailing junk.
	readSize := int64(1024)
	if fileSize < readSize {
		readSize = fileSize
	}

	if _, err := x.reader.Seek(fileSize-readSize, io.SeekStart); err != nil {
		return 0, &XRefError{Msg: "failed to seek to startxref area", Cause: err}
	}

	buf := make([]byte, readSize)
	n, err := io.ReadFull(x.reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return 0, &XRefError{Msg: "failed to read startxref area", Cause: err}
	}
	buf = buf[:n]

	idx := bytes.LastIndex(buf, []byte("startxref"))
	if idx == -1 {
		return 0, &XRefError{Msg: "startxref not found"}
	}

	after := string(buf[idx+len("startxref"):])
	fields := strings.Fields(after)
	if len(fields) == 0 {
		return 0, &XRefError{Msg: "startxref missing its offset"}
	}

	offset, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, &XRefError{Msg: fmt.Sprintf("invalid startxref offset %q", fields[0]), Cause: err}
	}
	if offset < 0 || offset >= fileSize {
		return 0, &XRefError{Msg: fmt.Sprintf("startxref offset %d outside file of %d bytes", offset, fileSize)}
	}

	return offset, nil
}

// ParseSection parses the cross-reference section at the given byte offset,
// auto-detecting the classic table format (leading "xref" keyword) and the
// xref-stream format (leading "N G obj").
func (x *XRefParser) ParseSection(offset int64) (*XRefTable, error) {
	if _, err := x.reader.Seek(offset, io.SeekStart); err != nil {
		return nil, &XRefError{Msg: fmt.Sprintf("failed to seek to xref at %d", offset), Cause: err}
	}

	peek := make([]byte, 32)
	n, err := io.ReadFull(x.reader, peek)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, &XRefError{Msg: "failed to read xref section", Cause: err}
	}
	peek = bytes.TrimLeft(peek[:n], " \t\r\n\f\x00")

	if _, err := x.reader.Seek(offset, io.SeekStart); err != nil {
		return nil, &XRefError{Msg: "failed to rewind xref section", Cause: err}
	}

	if bytes.HasPrefix(peek, []byte("xref")) {
		return x.parseClassicTable()
	}
	return x.parseStreamSection()
}

// parseClassicTable parses a classic textual xref table positioned at the
// current reader offset. Layout:
//
//	xref
//	<first> <count>
//	nnnnnnnnnn ggggg n
//	...
//	trailer
//	<< ... >>
func (x *XRefParser) parseClassicTable() (*XRefTable, error) {
	lexer := NewLexer(x.reader)

	tok, err := lexer.NextToken()
	if err != nil {
		return nil, &XRefError{Msg: "failed to read xref keyword", Cause: err}
	}
	if tok.Type != TokenKeyword || string(tok.Value) != "xref" {
		return nil, &XRefError{Msg: fmt.Sprintf("expected 'xref' keyword, got %q", tok.Value)}
	}

	table := NewXRefTable()

	for {
		tok, err = lexer.NextToken()
		if err != nil {
			return nil, &XRefError{Msg: "unexpected end of xref table", Cause: err}
		}

		if tok.Type == TokenKeyword && string(tok.Value) == "trailer" {
			break
		}

		// Subsection header: first object number and entry count.
		if tok.Type != TokenInteger {
			return nil, &XRefError{Msg: fmt.Sprintf("invalid subsection header token %q", tok.Value)}
		}
		firstObjNum, err := strconv.Atoi(string(tok.Value))
		if err != nil {
			return nil, &XRefError{Msg: "invalid first object number", Cause: err}
		}

		tok, err = lexer.NextToken()
		if err != nil || tok.Type != TokenInteger {
			return nil, &XRefError{Msg: "invalid subsection count"}
		}
		count, err := strconv.Atoi(string(tok.Value))
		if err != nil || count < 0 {
			return nil, &XRefError{Msg: "invalid subsection count"}
		}

		for i := 0; i < count; i++ {
			entry, err := x.parseClassicEntry(lexer)
			if err != nil {
				return nil, err
			}
			objNum := firstObjNum + i
			table.Set(objNum, entry)
		}
	}

	// Parse the trailer dictionary with the object parser so nested
	// dictionaries inside it are handled correctly.
	parser := newParserFromLexer(lexer)
	obj, err := parser.ParseObject()
	if err != nil {
		return nil, &XRefError{Msg: "failed to parse trailer dictionary", Cause: err}
	}
	trailer, ok := obj.(Dict)
	if !ok {
		return nil, &XRefError{Msg: fmt.Sprintf("trailer is not a dictionary, got %T", obj)}
	}

	table.Trailer = trailer
	table.readLinks()
	return table, nil
}

// parseClassicEntry reads one 20-byte entry: offset, generation, n/f flag.
func (x *XRefParser) parseClassicEntry(lexer *Lexer) (*XRefEntry, error) {
	offTok, err := lexer.NextToken()
	if err != nil || offTok.Type != TokenInteger {
		return nil, &XRefError{Msg: "invalid xref entry offset"}
	}
	offset, err := strconv.ParseInt(string(offTok.Value), 10, 64)
	if err != nil {
		return nil, &XRefError{Msg: fmt.Sprintf("invalid offset %q", offTok.Value), Cause: err}
	}

	genTok, err := lexer.NextToken()
	if err != nil || genTok.Type != TokenInteger {
		return nil, &XRefError{Msg: "invalid xref entry generation"}
	}
	generation, err := strconv.Atoi(string(genTok.Value))
	if err != nil {
		return nil, &XRefError{Msg: fmt.Sprintf("invalid generation %q", genTok.Value), Cause: err}
	}

	flagTok, err := lexer.NextToken()
	if err != nil || flagTok.Type != TokenKeyword {
		return nil, &XRefError{Msg: "invalid xref entry flag"}
	}

	var inUse bool
	switch string(flagTok.Value) {
	case "n":
		inUse = true
	case "f":
		inUse = false
	default:
		return nil, &XRefError{Msg: fmt.Sprintf("invalid in-use flag %q", flagTok.Value)}
	}

	return &XRefEntry{
		Offset:     offset,
		Generation: generation,
		InUse:      inUse,
	}, nil
}

// parseStreamSection parses an xref stream positioned at the current reader
// offset: an indirect stream object with /Type /XRef whose decoded body holds
// fixed-width binary entries.
func (x *XRefParser) parseStreamSection() (*XRefTable, error) {
	parser := NewParser(x.reader)
	indirect, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, &XRefError{Msg: "failed to parse xref stream object", Cause: err}
	}

	stream, ok := indirect.Object.(*Stream)
	if !ok {
		return nil, &XRefError{Msg: fmt.Sprintf("xref section is not a stream, got %T", indirect.Object)}
	}

	table, err := decodeXRefStream(stream)
	if err != nil {
		return nil, err
	}

	table.readLinks()
	return table, nil
}

// ResolveChain walks the whole revision chain starting from the final
// startxref offset: each section's /Prev link leads to the previous
// revision, and a classic trailer's /XRefStm link names a supplementary
// stream section belonging to the same revision.
//
// Sections are returned newest first. A repeated offset ends the walk rather
// than looping.
func (x *XRefParser) ResolveChain() ([]*XRefTable, error) {
	start, err := x.FindStartXRef()
	if err != nil {
		return nil, err
	}
	return x.resolveChainFrom(start)
}

func (x *XRefParser) resolveChainFrom(start int64) ([]*XRefTable, error) {
	var sections []*XRefTable
	visited := make(map[int64]bool)

	offset := start
	for offset >= 0 {
		if visited[offset] {
			break
		}
		visited[offset] = true

		table, err := x.ParseSection(offset)
		if err != nil {
			if len(sections) == 0 {
				return nil, err
			}
			// A broken older revision loses only its own shadowed
			// entries; keep what parsed.
			break
		}

		sections = append(sections, table)

		// Hybrid file: the classic table's XRefStm section is part of
		// this same revision and read before following Prev.
		if table.XRefStm >= 0 && !visited[table.XRefStm] {
			visited[table.XRefStm] = true
			if stm, err := x.ParseSection(table.XRefStm); err == nil {
				sections = append(sections, stm)
			}
		}

		offset = table.Prev
	}

	if len(sections) == 0 {
		return nil, &XRefError{Msg: "no usable xref sections"}
	}
	return sections, nil
}

// MergeSections merges a newest-first chain of sections into one table.
// The first section to define an object number wins; later (older) sections
// never overwrite it. Free entries participate, so a newer free entry hides
// an older in-use one.
func MergeSections(sections []*XRefTable) *XRefTable {
	merged := NewXRefTable()

	for i, table := range sections {
		if i == 0 {
			merged.Trailer = table.Trailer
			merged.IsStream = table.IsStream
		}
		for objNum, entry := range table.Entries {
			if _, seen := merged.Entries[objNum]; !seen {
				merged.Set(objNum, entry)
			}
		}
	}

	return merged
}

// TrailerChain returns the trailer of every section, newest first.
func TrailerChain(sections []*XRefTable) []Dict {
	trailers := make([]Dict, 0, len(sections))
	for _, s := range sections {
		trailers = append(trailers, s.Trailer)
	}
	return trailers
}
