package vellum

import "github.com/tsawler/vellum/reader"

// openOptions holds configuration applied when the document is first read.
type openOptions struct {
	password    string
	hasPassword bool
	strict      bool
	xrefStreams bool
}

// defaultOptions returns the default open options: tolerant parsing, no
// password, classic cross-reference output.
func defaultOptions() openOptions {
	return openOptions{}
}

// readerOptions translates the accumulated configuration into options for
// the reader package.
func (o openOptions) readerOptions() []reader.Option {
	var opts []reader.Option
	if o.hasPassword {
		opts = append(opts, reader.WithPassword(o.password))
	}
	if o.strict {
		opts = append(opts, reader.Strict())
	}
	return opts
}
