package vellum

import (
	"fmt"
	"io"
	"os"

	"github.com/tsawler/vellum/core"
	"github.com/tsawler/vellum/format"
	"github.com/tsawler/vellum/reader"
	"github.com/tsawler/vellum/writer"
)

// Document provides a fluent interface for inspecting and rewriting a PDF.
// Each configuration method returns a new Document instance, making it
// safe to branch a chain and allowing method chaining.
type Document struct {
	// Source
	filename string
	data     []byte

	// Underlying reader and staged changes
	reader *reader.Reader
	writer *writer.Writer

	// Lifecycle
	ownsReader   bool // true if we opened the reader and should close it
	readerOpened bool

	// Configuration
	options openOptions

	// Accumulated error (fail-fast)
	err error
}

// clone creates a shallow copy of the Document. Configuration methods
// return the copy so earlier links in a chain stay usable.
func (d *Document) clone() *Document {
	return &Document{
		filename:     d.filename,
		data:         d.data,
		reader:       d.reader,
		writer:       d.writer,
		ownsReader:   d.ownsReader,
		readerOpened: d.readerOpened,
		options:      d.options,
		err:          d.err,
	}
}

// ensureReader opens the reader if not already open.
func (d *Document) ensureReader() error {
	if d.readerOpened {
		return nil
	}

	var (
		r   *reader.Reader
		err error
	)
	switch {
	case d.data != nil:
		r, err = reader.NewReaderFromBytes(d.data, d.options.readerOptions()...)
	case d.filename != "":
		r, err = reader.Open(d.filename, d.options.readerOptions()...)
	default:
		return fmt.Errorf("no source specified")
	}
	if err != nil {
		return fmt.Errorf("failed to open PDF: %w", err)
	}

	d.reader = r
	d.ownsReader = true
	d.readerOpened = true
	return nil
}

// ensureWriter lazily builds the writer over the open reader.
func (d *Document) ensureWriter() error {
	if err := d.ensureReader(); err != nil {
		return err
	}
	if d.writer == nil {
		d.writer = writer.NewWriter(d.reader)
		d.writer.UseXRefStream(d.options.xrefStreams)
	}
	return nil
}

// Close releases resources associated with the Document.
// It is safe to call Close multiple times.
func (d *Document) Close() error {
	if d.ownsReader && d.reader != nil {
		err := d.reader.Close()
		d.reader = nil
		d.ownsReader = false
		return err
	}
	return nil
}

// ============================================================================
// Configuration Methods (return new Document instance)
// ============================================================================

// Password supplies the password tried against an encrypted document.
// Both the user and the owner password paths are attempted.
//
// Example:
//
//	title, err := vellum.Open("secret.pdf").Password("hunter2").Title()
func (d *Document) Password(password string) *Document {
	newDoc := d.clone()
	newDoc.options.password = password
	newDoc.options.hasPassword = true
	return newDoc
}

// Strict makes structural damage fatal instead of tolerated: a broken
// cross-reference chain or missing header fails the open rather than
// falling back to recovery.
//
// Example:
//
//	count, err := vellum.Open("doc.pdf").Strict().PageCount()
func (d *Document) Strict() *Document {
	newDoc := d.clone()
	newDoc.options.strict = true
	return newDoc
}

// XRefStreams selects the cross-reference stream format when the document
// is saved with Save.
//
// Example:
//
//	err := vellum.Open("doc.pdf").XRefStreams().Save(out)
func (d *Document) XRefStreams() *Document {
	newDoc := d.clone()
	newDoc.options.xrefStreams = true
	return newDoc
}

// ============================================================================
// Inspection
// ============================================================================

// Reader returns the underlying reader, opening it if necessary. The
// Document retains ownership; do not close the returned reader.
func (d *Document) Reader() (*reader.Reader, error) {
	if d.err != nil {
		return nil, d.err
	}
	if err := d.ensureReader(); err != nil {
		return nil, err
	}
	return d.reader, nil
}

// PageCount returns the total number of pages in the document.
// Note: This does NOT close the reader, allowing further operations.
func (d *Document) PageCount() (int, error) {
	r, err := d.Reader()
	if err != nil {
		return 0, err
	}
	return r.PageCount()
}

// Version returns the PDF version from the file header.
func (d *Document) Version() (format.Version, error) {
	r, err := d.Reader()
	if err != nil {
		return format.Version{}, err
	}
	return r.Version(), nil
}

// Object loads an object by number, resolving it through the
// cross-reference table and decrypting it if needed.
func (d *Document) Object(num int) (core.Object, error) {
	r, err := d.Reader()
	if err != nil {
		return nil, err
	}
	return r.GetObject(num)
}

// Catalog returns the document catalog dictionary.
func (d *Document) Catalog() (core.Dict, error) {
	r, err := d.Reader()
	if err != nil {
		return nil, err
	}
	return r.GetCatalog()
}

// Info returns the document info dictionary, or nil when absent.
func (d *Document) Info() (core.Dict, error) {
	r, err := d.Reader()
	if err != nil {
		return nil, err
	}
	return r.GetInfo()
}

// Title returns the document title decoded as text, or the empty string
// when it is not set.
func (d *Document) Title() (string, error) {
	r, err := d.Reader()
	if err != nil {
		return "", err
	}
	return r.InfoText("Title")
}

// Author returns the document author decoded as text, or the empty string
// when it is not set.
func (d *Document) Author() (string, error) {
	r, err := d.Reader()
	if err != nil {
		return "", err
	}
	return r.InfoText("Author")
}

// Integrity opens the document and reports on its structural health.
func (d *Document) Integrity() (reader.IntegrityReport, error) {
	r, err := d.Reader()
	if err != nil {
		return reader.IntegrityReport{}, err
	}
	return r.CheckIntegrity(), nil
}

// Warnings returns the problems tolerated while reading so far.
func (d *Document) Warnings() ([]reader.Warning, error) {
	r, err := d.Reader()
	if err != nil {
		return nil, err
	}
	return r.Warnings(), nil
}

// IsEncrypted reports whether the document carries encryption.
func (d *Document) IsEncrypted() (bool, error) {
	r, err := d.Reader()
	if err != nil {
		return false, err
	}
	return r.IsEncrypted(), nil
}

// ============================================================================
// Mutation and saving
// ============================================================================

// Set stages a replacement for an object number. The change is applied by
// the next Save or Append; reads continue to see the original object.
func (d *Document) Set(num int, obj core.Object) *Document {
	newDoc := d.clone()
	if newDoc.err != nil {
		return newDoc
	}
	if err := newDoc.ensureWriter(); err != nil {
		newDoc.err = err
		return newDoc
	}
	newDoc.writer.PutObject(num, obj)
	return newDoc
}

// Add stages a new object and returns its allocated number.
func (d *Document) Add(obj core.Object) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	if err := d.ensureWriter(); err != nil {
		return 0, err
	}
	return d.writer.AddObject(obj), nil
}

// Save writes a complete copy of the document, with staged changes
// applied, to w. This is a terminal operation that closes the Document.
//
// Example:
//
//	err := vellum.Open("in.pdf").
//	    Set(5, core.Dict{"Producer": core.NewString("vellum")}).
//	    Save(out)
func (d *Document) Save(w io.Writer) error {
	if d.err != nil {
		return d.err
	}
	if err := d.ensureWriter(); err != nil {
		return err
	}
	defer d.Close()
	return d.writer.SaveFull(w)
}

// Append writes the original bytes followed by the staged changes as an
// incremental update. The original content is preserved byte for byte.
// This is a terminal operation that closes the Document.
func (d *Document) Append(w io.Writer) error {
	if d.err != nil {
		return d.err
	}
	if err := d.ensureWriter(); err != nil {
		return err
	}
	defer d.Close()
	return d.writer.SaveIncremental(w)
}

// SaveFile writes a complete copy of the document to a file.
// This is a terminal operation that closes the Document.
func (d *Document) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := d.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
