// Package vellum provides a fluent API for reading, inspecting, and
// rewriting PDF files.
//
// Basic usage:
//
//	title, err := vellum.Open("document.pdf").Title()
//	if err != nil {
//	    // handle error
//	}
//
// With options:
//
//	doc := vellum.Open("report.pdf").
//	    Password("hunter2").
//	    Strict()
//	count, err := doc.PageCount()
//
// For advanced use cases, the lower-level reader and writer packages are
// also available.
package vellum

import (
	"github.com/tsawler/vellum/reader"
)

// Open opens a PDF file and returns a Document for fluent configuration.
// The file is not read until the first operation that needs it, so options
// like Password apply before any parsing happens. The returned Document
// must be closed when done, either explicitly via Close() or implicitly
// when calling a terminal operation like Save().
//
// Example:
//
//	count, err := vellum.Open("document.pdf").PageCount()
func Open(filename string) *Document {
	return &Document{
		filename: filename,
		options:  defaultOptions(),
	}
}

// FromBytes creates a Document over a PDF already held in memory.
//
// Example:
//
//	doc := vellum.FromBytes(data).Password("hunter2")
func FromBytes(data []byte) *Document {
	return &Document{
		data:    data,
		options: defaultOptions(),
	}
}

// FromReader creates a Document from an already-opened reader.Reader.
// This is useful when you need more control over the reader lifecycle.
// Note: The caller is responsible for closing the reader.
//
// Example:
//
//	r, err := reader.Open("document.pdf")
//	if err != nil {
//	    // handle error
//	}
//	defer r.Close()
//	count, err := vellum.FromReader(r).PageCount()
func FromReader(r *reader.Reader) *Document {
	return &Document{
		reader:       r,
		ownsReader:   false,
		readerOpened: true,
		options:      defaultOptions(),
	}
}

// Must is a helper that wraps a call to a function returning (T, error)
// and panics if the error is non-nil. It is intended for use in scripts
// or tests where error handling would be cumbersome.
//
// Example:
//
//	count := vellum.Must(vellum.Open("document.pdf").PageCount())
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}
