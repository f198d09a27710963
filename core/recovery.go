package core

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

var (
	objHeaderPattern = regexp.MustCompile(`(\d{1,10})\s+(\d{1,5})\s+obj\b`)
	trailerPattern   = regexp.MustCompile(`trailer`)
)

// RecoveryResult describes what a full-file scan managed to reconstruct.
type RecoveryResult struct {
	Table            *XRefTable
	ObjectsRecovered int
	TrailerFound     bool // a usable trailer dictionary was located in the file
	RootSynthesized  bool // Root was found by scanning for the catalog object
}

// Diagnostic returns a human-readable summary of the recovery.
func (r *RecoveryResult) Diagnostic() string {
	msg := fmt.Sprintf("recovered %d objects by full-file scan", r.ObjectsRecovered)
	if !r.TrailerFound {
		msg += ", trailer reconstructed"
	}
	if r.RootSynthesized {
		msg += ", catalog located by object scan"
	}
	return msg
}

// RecoverXRef rebuilds a cross-reference table by scanning the whole file
// for "N G obj" headers. It is the fallback used when the declared
// cross-reference chain is missing, unparseable, or points at a Root that
// does not resolve.
//
// For each object number the LAST occurrence in the file wins, matching the
// append-only semantics of incremental updates. A trailer dictionary is
// reconstructed from the newest parseable "trailer" keyword; when none
// carries a /Root, the catalog is located by parsing recovered objects and
// looking for /Type /Catalog.
//
// Recovery is best-effort: it only fails when the file yields no objects at
// all.
func RecoverXRef(r io.ReadSeeker) (*RecoveryResult, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, &RecoveryError{Msg: fmt.Sprintf("failed to rewind file: %v", err)}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &RecoveryError{Msg: fmt.Sprintf("failed to read file: %v", err)}
	}

	table := NewXRefTable()

	matches := objHeaderPattern.FindAllSubmatchIndex(data, -1)
	for _, m := range matches {
		start := m[0]

		// A header must begin at the file start or after whitespace or
		// a delimiter; otherwise the digits are the tail of something
		// else (a larger number, a name, string contents).
		if start > 0 && !isRecoveryBoundary(data[start-1]) {
			continue
		}

		objNum, err := strconv.Atoi(string(data[m[2]:m[3]]))
		if err != nil {
			continue
		}
		gen, err := strconv.Atoi(string(data[m[4]:m[5]]))
		if err != nil {
			continue
		}

		// Later occurrences overwrite earlier ones.
		table.Set(objNum, &XRefEntry{
			Offset:     int64(start),
			Generation: gen,
			InUse:      true,
		})
	}

	if table.Size() == 0 {
		return nil, &RecoveryError{Msg: "no object headers found in file"}
	}

	result := &RecoveryResult{
		Table:            table,
		ObjectsRecovered: table.Size(),
	}

	recoverTrailer(data, table, result)

	return result, nil
}

// recoverTrailer fills table.Trailer from the newest parseable trailer
// dictionary, falling back to a catalog scan for /Root.
func recoverTrailer(data []byte, table *XRefTable, result *RecoveryResult) {
	locs := trailerPattern.FindAllIndex(data, -1)

	// Walk newest to oldest; the last revision's trailer is authoritative.
	for i := len(locs) - 1; i >= 0; i-- {
		after := data[locs[i][1]:]
		parser := NewTolerantParser(bytes.NewReader(after))
		obj, err := parser.ParseObject()
		if err != nil {
			continue
		}
		dict, ok := obj.(Dict)
		if !ok {
			continue
		}
		if !dict.Has("Root") {
			continue
		}

		table.Trailer = dict
		result.TrailerFound = true
		break
	}

	if !result.TrailerFound {
		if ref, ok := findCatalog(data, table); ok {
			table.Trailer = Dict{"Root": ref}
			result.RootSynthesized = true
		}
	}

	if !table.Trailer.Has("Size") {
		maxNum := 0
		for objNum := range table.Entries {
			if objNum > maxNum {
				maxNum = objNum
			}
		}
		table.Trailer.Set("Size", Int(maxNum+1))
	}
}

// findCatalog parses each recovered object looking for /Type /Catalog.
func findCatalog(data []byte, table *XRefTable) (IndirectRef, bool) {
	for objNum, entry := range table.Entries {
		if entry.Offset < 0 || entry.Offset >= int64(len(data)) {
			continue
		}

		parser := NewTolerantParser(bytes.NewReader(data[entry.Offset:]))
		indirect, err := parser.ParseIndirectObject()
		if err != nil {
			continue
		}

		dict, ok := indirect.Object.(Dict)
		if !ok {
			continue
		}
		if typ, ok := dict.GetName("Type"); ok && typ == "Catalog" {
			return IndirectRef{Number: objNum, Generation: entry.Generation}, true
		}
	}
	return IndirectRef{}, false
}

// isRecoveryBoundary reports whether b can legally precede an object header.
func isRecoveryBoundary(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '\f', 0, '>', ']', ')':
		return true
	}
	return false
}
