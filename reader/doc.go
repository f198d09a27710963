// Package reader provides high-level PDF file reading and object resolution.
//
// This package orchestrates the lower-level core package to provide a
// convenient API for reading PDF files and extracting document structure.
//
// # Opening PDF Files
//
// Use [Open] to open a PDF file for reading:
//
//	r, err := reader.Open("document.pdf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
// Use [NewReader] with any io.Reader, or [NewReaderFromBytes] with a
// document already in memory. Encrypted documents take a password via
// [WithPassword]; damaged cross-reference tables are rebuilt by a
// full-file scan unless [Strict] is set.
//
// # Document Information
//
// The Reader provides access to document structure:
//
//   - Version() - PDF version (e.g., 1.7)
//   - PageCount() - number of pages
//   - GetCatalog() - document catalog dictionary
//   - GetInfo() - document info dictionary (metadata)
//   - Trailer() - trailer dictionary of the newest revision
//   - CheckIntegrity() - structural health report
//
// # Page Access
//
// Access pages by index (0-based):
//
//	page, err := r.GetPage(0)  // First page
//
// # Object Resolution
//
// The Reader resolves indirect object references:
//
//   - GetObject(objNum) - load object by number
//   - ResolveReference(ref) - resolve an IndirectRef
//   - Resolve(obj) - resolve if indirect, otherwise return as-is
//   - ResolveDeep(obj) - recursively resolve all references
//
// Objects stored inside object streams are located and extracted
// transparently. Resolution is cycle-safe and depth-bounded.
//
// # Object Caching
//
// The Reader caches loaded objects for efficiency. Use ClearCache() to free
// memory when processing large PDFs.
package reader
