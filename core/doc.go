// Package core implements the low-level PDF file format: the lexer, the
// object parser, cross-reference tables and streams, object streams, and
// stream filter dispatch.
//
// The types here mirror the PDF object model (Null, Bool, Int, Real, String,
// Name, Array, Dict, Stream, IndirectRef) and everything above this package
// is built in terms of them. Parsing comes in strict and tolerant flavors;
// tolerant parsing resynchronizes after malformed input and is what document
// opening uses, backed by the full-file recovery scanner when the declared
// cross-reference chain is unusable.
package core
