package reader

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tsawler/vellum/format"
)

// IntegrityReport summarizes the structural health of a document.
type IntegrityReport struct {
	HeaderFound   bool
	HeaderOffset  int64
	Version       format.Version
	HasEOFMarker  bool
	HasStartXRef  bool
	XRefRecovered bool
	Revisions     int
	ObjectCount   int
	Encrypted     bool
	Warnings      []Warning
}

// Healthy reports whether the document opened with its declared structure
// intact and no tolerated damage.
func (ir IntegrityReport) Healthy() bool {
	return ir.HeaderFound && ir.HeaderOffset == 0 && ir.HasEOFMarker &&
		ir.HasStartXRef && !ir.XRefRecovered && len(ir.Warnings) == 0
}

// Summary returns a short human-readable account of the report.
func (ir IntegrityReport) Summary() string {
	var b strings.Builder
	if ir.HeaderFound {
		fmt.Fprintf(&b, "header %s at offset %d", ir.Version, ir.HeaderOffset)
	} else {
		b.WriteString("no header")
	}
	fmt.Fprintf(&b, ", %d objects, %d revision(s)", ir.ObjectCount, ir.Revisions)
	if !ir.HasEOFMarker {
		b.WriteString(", missing %%EOF")
	}
	if !ir.HasStartXRef {
		b.WriteString(", missing startxref")
	}
	if ir.XRefRecovered {
		b.WriteString(", xref rebuilt by scan")
	}
	if ir.Encrypted {
		b.WriteString(", encrypted")
	}
	if n := len(ir.Warnings); n > 0 {
		fmt.Fprintf(&b, ", %d warning(s)", n)
	}
	return b.String()
}

// CheckIntegrity inspects the opened document and reports on its
// structural markers. It does not re-parse objects.
func (r *Reader) CheckIntegrity() IntegrityReport {
	report := IntegrityReport{
		HeaderOffset:  r.header.Offset,
		Version:       r.header.Version,
		XRefRecovered: r.recovered,
		Revisions:     len(r.trailers),
		ObjectCount:   r.xrefTable.Size(),
		Encrypted:     r.IsEncrypted(),
		Warnings:      r.Warnings(),
	}

	report.HeaderFound = r.header.Version.Major > 0

	// Search the tail of the file for the closing markers. Appended junk
	// after %%EOF is common, so the scan covers a generous window.
	tail := r.data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	report.HasEOFMarker = bytes.Contains(tail, []byte("%%EOF"))
	report.HasStartXRef = bytes.Contains(tail, []byte("startxref"))

	return report
}
