package reader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tsawler/vellum/core"
	"github.com/tsawler/vellum/format"
	"github.com/tsawler/vellum/internal/crypt"
	"github.com/tsawler/vellum/internal/encoding"
	"github.com/tsawler/vellum/pages"
	"github.com/tsawler/vellum/resolver"
)

// Option configures a Reader.
type Option func(*config)

type config struct {
	password string
	strict   bool
}

// WithPassword supplies the password tried against an encrypted document.
// Both the user and the owner password paths are attempted.
func WithPassword(password string) Option {
	return func(c *config) {
		c.password = password
	}
}

// Strict makes parse and cross-reference failures fatal instead of falling
// back to recovery and warnings.
func Strict() Option {
	return func(c *config) {
		c.strict = true
	}
}

// Reader provides access to the object graph of a PDF file.
type Reader struct {
	data   []byte
	header format.Header
	strict bool

	xrefTable *core.XRefTable
	trailer   core.Dict
	trailers  []core.Dict // newest first, one per revision
	startXRef int64       // offset of the newest xref section, -1 when recovered
	recovered bool

	handler       *crypt.Handler
	locked        bool // encrypted, but no valid password supplied
	encryptObjNum int  // object number of the Encrypt dict, 0 if direct/absent

	mu        sync.RWMutex
	objCache  map[int]core.Object
	dataCache map[int][]byte
	stmCache  map[int]*core.ObjectStream

	warnings []Warning
	pageTree *pages.PageTree
}

// Ensure Reader implements pages.ObjectResolver
var _ pages.ObjectResolver = (*Reader)(nil)

// Open opens a PDF file and returns a Reader. The whole file is read into
// memory; object parsing happens lazily against that snapshot.
func Open(filename string, opts ...Option) (*Reader, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return NewReaderFromBytes(data, opts...)
}

// NewReader reads the whole stream and returns a Reader over its contents.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return NewReaderFromBytes(data, opts...)
}

// NewReaderFromBytes returns a Reader over an in-memory document.
func NewReaderFromBytes(data []byte, opts ...Option) (*Reader, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Reader{
		data:      data,
		strict:    cfg.strict,
		startXRef: -1,
		objCache:  make(map[int]core.Object),
		dataCache: make(map[int][]byte),
		stmCache:  make(map[int]*core.ObjectStream),
	}

	header, err := format.SniffHeader(data)
	if err != nil {
		if cfg.strict {
			return nil, err
		}
		r.warn(0, err.Error())
	}
	r.header = header

	if err := r.loadXRef(); err != nil {
		return nil, err
	}

	if err := r.setupEncryption(cfg.password); err != nil {
		return nil, err
	}

	return r, nil
}

// Close releases the reader. It exists for symmetry with file-backed use;
// the snapshot is garbage collected normally.
func (r *Reader) Close() error {
	return nil
}

// loadXRef walks the cross-reference chain, falling back to the full-file
// recovery scan when the declared chain is unusable.
func (r *Reader) loadXRef() error {
	parser := core.NewXRefParser(bytes.NewReader(r.data))

	start, err := parser.FindStartXRef()
	if err == nil {
		var sections []*core.XRefTable
		sections, err = parser.ResolveChain()
		if err == nil {
			table := core.MergeSections(sections)
			if verifyErr := r.verifyRoot(table); verifyErr != nil {
				err = verifyErr
			} else {
				r.xrefTable = table
				r.trailer = table.Trailer
				r.trailers = core.TrailerChain(sections)
				r.startXRef = start
				return nil
			}
		}
	}

	if r.strict {
		return fmt.Errorf("failed to load xref: %w", err)
	}

	r.warn(0, fmt.Sprintf("xref chain unusable (%v), scanning file", err))
	return r.recoverXRef()
}

// verifyRoot checks that the trailer names a Root that the table can
// actually locate. A dangling Root means the xref is stale or corrupt.
func (r *Reader) verifyRoot(table *core.XRefTable) error {
	ref, ok := table.Trailer.GetIndirectRef("Root")
	if !ok {
		return &core.XRefError{Msg: "trailer has no /Root"}
	}
	entry, ok := table.Get(ref.Number)
	if !ok || !entry.InUse {
		return &core.XRefError{Msg: fmt.Sprintf("trailer /Root %d 0 R has no xref entry", ref.Number)}
	}
	return nil
}

// recoverXRef rebuilds the table by scanning for object headers.
func (r *Reader) recoverXRef() error {
	result, err := core.RecoverXRef(bytes.NewReader(r.data))
	if err != nil {
		return err
	}

	r.xrefTable = result.Table
	r.trailer = result.Table.Trailer
	r.trailers = []core.Dict{result.Table.Trailer}
	r.recovered = true
	r.warn(0, result.Diagnostic())
	return nil
}

// setupEncryption builds the security handler from the trailer /Encrypt
// entry. A wrong password leaves the document open but locked; protected
// content then resolves to ErrPasswordRequired.
func (r *Reader) setupEncryption(password string) error {
	encObj := r.trailer.Get("Encrypt")
	if encObj == nil {
		return nil
	}

	if ref, ok := encObj.(core.IndirectRef); ok {
		r.encryptObjNum = ref.Number
		resolved, err := r.rawObject(ref.Number)
		if err != nil {
			return fmt.Errorf("failed to resolve /Encrypt: %w", err)
		}
		encObj = resolved
	}

	encDict, ok := encObj.(core.Dict)
	if !ok {
		return &core.EncryptionError{Msg: fmt.Sprintf("/Encrypt is %T, not a dictionary", encObj)}
	}

	handler, err := crypt.NewHandler(encDict, r.fileID(), []byte(password))
	if err != nil {
		if errors.Is(err, crypt.ErrInvalidPassword) {
			r.locked = true
			r.warn(0, "document is encrypted and the password did not validate")
			return nil
		}
		return err
	}

	r.handler = handler
	return nil
}

// fileID returns the raw bytes of the first trailer /ID element.
func (r *Reader) fileID() []byte {
	id, ok := r.trailer.GetArray("ID")
	if !ok || len(id) == 0 {
		return nil
	}
	if s, ok := id[0].(core.String); ok {
		return s.Value
	}
	return nil
}

// Version returns the PDF version from the file header.
func (r *Reader) Version() format.Version {
	return r.header.Version
}

// Trailer returns the trailer dictionary of the newest revision.
func (r *Reader) Trailer() core.Dict {
	return r.trailer
}

// Trailers returns the trailer of every revision, newest first.
func (r *Reader) Trailers() []core.Dict {
	return r.trailers
}

// Revisions returns the number of cross-reference sections in the chain.
func (r *Reader) Revisions() int {
	return len(r.trailers)
}

// IsEncrypted reports whether the document carries an /Encrypt dictionary.
func (r *Reader) IsEncrypted() bool {
	return r.handler != nil || r.locked
}

// IsLocked reports whether encrypted content is inaccessible because no
// valid password was supplied.
func (r *Reader) IsLocked() bool {
	return r.locked
}

// Recovered reports whether the xref table was rebuilt by the full-file scan.
func (r *Reader) Recovered() bool {
	return r.recovered
}

// StartXRef returns the byte offset of the newest cross-reference section,
// or -1 when the table was recovered by scanning.
func (r *Reader) StartXRef() int64 {
	return r.startXRef
}

// Bytes returns the raw file snapshot the reader parses from. The writer
// uses it as the immutable prefix for incremental updates.
func (r *Reader) Bytes() []byte {
	return r.data
}

// CryptHandler returns the active security handler, or nil for unencrypted
// or locked documents. The writer uses it to re-encrypt objects.
func (r *Reader) CryptHandler() *crypt.Handler {
	return r.handler
}

// GetObject loads an object by its number, resolving through the
// cross-reference table, decrypting, and caching the result.
func (r *Reader) GetObject(objNum int) (core.Object, error) {
	r.mu.RLock()
	if obj, ok := r.objCache[objNum]; ok {
		r.mu.RUnlock()
		return obj, nil
	}
	r.mu.RUnlock()

	entry, ok := r.xrefTable.Get(objNum)
	if !ok {
		return nil, fmt.Errorf("object %d not found in xref table", objNum)
	}
	if !entry.InUse {
		return nil, fmt.Errorf("object %d is free", objNum)
	}

	var obj core.Object
	var err error
	if entry.Compressed {
		obj, err = r.objectFromStream(objNum, entry)
	} else {
		obj, err = r.loadAt(objNum, entry)
	}
	if err != nil {
		r.warn(objNum, err.Error())
		return nil, err
	}

	r.mu.Lock()
	r.objCache[objNum] = obj
	r.mu.Unlock()

	return obj, nil
}

// GetObjectAt loads an object by number and generation. A generation that
// does not match the live entry is treated as not found, which is how
// shadowed objects from older revisions surface.
func (r *Reader) GetObjectAt(objNum, gen int) (core.Object, error) {
	entry, ok := r.xrefTable.Get(objNum)
	if !ok {
		return nil, fmt.Errorf("object %d not found in xref table", objNum)
	}
	if entry.Generation != gen {
		return nil, fmt.Errorf("object %d generation %d not found (live generation is %d)", objNum, gen, entry.Generation)
	}
	return r.GetObject(objNum)
}

// loadAt parses a top-level object at its xref offset and runs it through
// the decryption gate.
func (r *Reader) loadAt(objNum int, entry *core.XRefEntry) (core.Object, error) {
	ind, err := r.parseIndirect(entry.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to parse object %d: %w", objNum, err)
	}
	if ind.Ref.Number != objNum {
		return nil, fmt.Errorf("object number mismatch at offset %d: expected %d, got %d", entry.Offset, objNum, ind.Ref.Number)
	}

	obj := ind.Object

	// The Encrypt dictionary itself is never encrypted.
	if objNum == r.encryptObjNum {
		return obj, nil
	}

	if r.locked && containsProtected(obj) {
		return nil, fmt.Errorf("object %d: %w", objNum, core.ErrPasswordRequired)
	}
	if r.handler != nil {
		return r.decryptObject(obj, objNum, entry.Generation)
	}
	return obj, nil
}

// parseIndirect parses an indirect object at a byte offset of the snapshot.
func (r *Reader) parseIndirect(offset int64) (*core.IndirectObject, error) {
	if offset < 0 || offset >= int64(len(r.data)) {
		return nil, fmt.Errorf("offset %d outside file of %d bytes", offset, len(r.data))
	}

	var parser *core.Parser
	if r.strict {
		parser = core.NewParser(bytes.NewReader(r.data[offset:]))
	} else {
		parser = core.NewTolerantParser(bytes.NewReader(r.data[offset:]))
	}
	parser.SetReferenceResolver(rawResolver{r})
	return parser.ParseIndirectObject()
}

// rawObject parses a top-level object without decryption or caching. Used
// for the Encrypt dictionary and for indirect /Length values, which must
// resolve before the stream body they describe can be read.
func (r *Reader) rawObject(objNum int) (core.Object, error) {
	entry, ok := r.xrefTable.Get(objNum)
	if !ok || !entry.InUse {
		return nil, fmt.Errorf("object %d not found in xref table", objNum)
	}
	if entry.Compressed {
		obj, err := r.objectFromStream(objNum, entry)
		return obj, err
	}

	var parser *core.Parser
	if entry.Offset < 0 || entry.Offset >= int64(len(r.data)) {
		return nil, fmt.Errorf("offset %d outside file of %d bytes", entry.Offset, len(r.data))
	}
	if r.strict {
		parser = core.NewParser(bytes.NewReader(r.data[entry.Offset:]))
	} else {
		parser = core.NewTolerantParser(bytes.NewReader(r.data[entry.Offset:]))
	}
	ind, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, err
	}
	return ind.Object, nil
}

// rawResolver resolves indirect references during parsing without touching
// the object cache. Stream lengths are the only consumer.
type rawResolver struct {
	r *Reader
}

func (rr rawResolver) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	return rr.r.rawObject(ref.Number)
}

// objectFromStream extracts a compressed object from its container stream.
// Container bodies were decrypted when the container was loaded, so member
// objects come out as plaintext.
func (r *Reader) objectFromStream(objNum int, entry *core.XRefEntry) (core.Object, error) {
	if r.locked {
		return nil, fmt.Errorf("object %d: %w", objNum, core.ErrPasswordRequired)
	}

	container, err := r.objectStream(entry.StreamNum)
	if err != nil {
		return nil, fmt.Errorf("failed to load container stream %d: %w", entry.StreamNum, err)
	}

	// Lookup is by object number. The slot index recorded in the xref entry
	// is advisory and disagreements are tolerated.
	obj, _, err := container.GetObjectByNumber(objNum)
	if err == nil {
		return obj, nil
	}

	// A miss falls through the /Extends chain, one level deep.
	ext := container.Extends()
	if ext == nil {
		return nil, err
	}
	base, baseErr := r.objectStream(ext.Number)
	if baseErr != nil {
		return nil, fmt.Errorf("failed to load extended stream %d: %w", ext.Number, baseErr)
	}
	obj, _, err = base.GetObjectByNumber(objNum)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// objectStream loads and caches a container (/Type /ObjStm) stream.
func (r *Reader) objectStream(streamNum int) (*core.ObjectStream, error) {
	r.mu.RLock()
	if container, ok := r.stmCache[streamNum]; ok {
		r.mu.RUnlock()
		return container, nil
	}
	r.mu.RUnlock()

	entry, ok := r.xrefTable.Get(streamNum)
	if !ok || !entry.InUse {
		return nil, fmt.Errorf("container stream %d not found in xref table", streamNum)
	}
	// A container must live at a byte offset; a container inside another
	// container is malformed.
	if entry.Compressed {
		return nil, fmt.Errorf("container stream %d is itself stored in a container", streamNum)
	}

	obj, err := r.loadAt(streamNum, entry)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*core.Stream)
	if !ok {
		return nil, fmt.Errorf("object %d is %T, not a stream", streamNum, obj)
	}

	container, err := core.NewObjectStream(stream)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.stmCache[streamNum] = container
	r.mu.Unlock()

	return container, nil
}

// decryptObject walks an object decrypting strings and stream bodies with
// the object's key. Cross-reference streams are stored unencrypted and
// pass through.
func (r *Reader) decryptObject(obj core.Object, num, gen int) (core.Object, error) {
	switch v := obj.(type) {
	case core.String:
		dec, err := r.handler.DecryptBytes(num, gen, v.Value)
		if err != nil {
			return nil, err
		}
		return core.String{Value: dec, Hex: v.Hex}, nil

	case core.Array:
		out := make(core.Array, len(v))
		for i, elem := range v {
			dec, err := r.decryptObject(elem, num, gen)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil

	case core.Dict:
		out := make(core.Dict, len(v))
		for key, val := range v {
			dec, err := r.decryptObject(val, num, gen)
			if err != nil {
				return nil, err
			}
			out[key] = dec
		}
		return out, nil

	case *core.Stream:
		dictObj, err := r.decryptObject(v.Dict, num, gen)
		if err != nil {
			return nil, err
		}
		dict := dictObj.(core.Dict)

		data := v.Data
		if typ, ok := dict.GetName("Type"); !ok || typ != "XRef" {
			data, err = r.handler.DecryptBytes(num, gen, v.Data)
			if err != nil {
				return nil, err
			}
		}
		return &core.Stream{Dict: dict, Data: data}, nil

	default:
		return obj, nil
	}
}

// containsProtected reports whether an object carries string or stream
// content that would need decryption.
func containsProtected(obj core.Object) bool {
	switch v := obj.(type) {
	case core.String:
		return true
	case *core.Stream:
		return true
	case core.Array:
		for _, elem := range v {
			if containsProtected(elem) {
				return true
			}
		}
	case core.Dict:
		for _, val := range v {
			if containsProtected(val) {
				return true
			}
		}
	}
	return false
}

// GetStreamData returns the decrypted, filter-decoded body of a stream
// object. Results are memoized per object number.
func (r *Reader) GetStreamData(objNum int) ([]byte, error) {
	r.mu.RLock()
	if data, ok := r.dataCache[objNum]; ok {
		r.mu.RUnlock()
		return data, nil
	}
	r.mu.RUnlock()

	obj, err := r.GetObject(objNum)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*core.Stream)
	if !ok {
		return nil, fmt.Errorf("object %d is %T, not a stream", objNum, obj)
	}

	data, err := stream.Decode()
	if err != nil {
		r.warn(objNum, err.Error())
		return nil, err
	}

	r.mu.Lock()
	r.dataCache[objNum] = data
	r.mu.Unlock()

	return data, nil
}

// ResolveReference resolves an indirect reference
func (r *Reader) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	return r.GetObject(ref.Number)
}

// Resolve resolves an object if it's an indirect reference, otherwise returns it as-is
// Implements pages.ObjectResolver interface
func (r *Reader) Resolve(obj core.Object) (core.Object, error) {
	if ref, ok := obj.(core.IndirectRef); ok {
		return r.ResolveReference(ref)
	}
	return obj, nil
}

// ResolveDeep recursively resolves all indirect references in an object.
// Resolution is cycle-safe and depth-bounded.
// Implements pages.ObjectResolver interface
func (r *Reader) ResolveDeep(obj core.Object) (core.Object, error) {
	return resolver.NewResolver(r).ResolveDeep(obj)
}

// GetCatalog returns the document catalog (root object)
func (r *Reader) GetCatalog() (core.Dict, error) {
	ref, ok := r.trailer.GetIndirectRef("Root")
	if !ok {
		return nil, fmt.Errorf("trailer missing /Root entry")
	}

	obj, err := r.ResolveReference(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog: %w", err)
	}

	catalog, ok := obj.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("catalog is not a dictionary: %T", obj)
	}

	return catalog, nil
}

// GetInfo returns the document info dictionary (metadata)
func (r *Reader) GetInfo() (core.Dict, error) {
	infoRef := r.trailer.Get("Info")
	if infoRef == nil {
		return nil, nil // Info is optional
	}

	ref, ok := infoRef.(core.IndirectRef)
	if !ok {
		return nil, fmt.Errorf("invalid /Info type: %T", infoRef)
	}

	obj, err := r.ResolveReference(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve info: %w", err)
	}

	info, ok := obj.(core.Dict)
	if !ok {
		return nil, fmt.Errorf("info is not a dictionary: %T", obj)
	}

	return info, nil
}

// InfoText returns a document info entry decoded as text (title, author,
// and so on). Missing entries return the empty string.
func (r *Reader) InfoText(key string) (string, error) {
	info, err := r.GetInfo()
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}
	s, ok := info.GetString(key)
	if !ok {
		return "", nil
	}
	return encoding.DecodeText(s.Value), nil
}

// NumObjects returns the declared object count from the trailer /Size.
func (r *Reader) NumObjects() int {
	size, ok := r.trailer.GetInt("Size")
	if !ok {
		return 0
	}
	return int(size)
}

// FileSize returns the size of the PDF file in bytes
func (r *Reader) FileSize() int64 {
	return int64(len(r.data))
}

// XRefTable returns the cross-reference table
// Exposed for debugging/inspection
func (r *Reader) XRefTable() *core.XRefTable {
	return r.xrefTable
}

// ClearCache clears the object cache
// Useful for freeing memory when processing large PDFs
func (r *Reader) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objCache = make(map[int]core.Object)
	r.dataCache = make(map[int][]byte)
	r.stmCache = make(map[int]*core.ObjectStream)
}

// CacheSize returns the number of cached objects
func (r *Reader) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objCache)
}

// PageCount returns the number of pages in the PDF
func (r *Reader) PageCount() (int, error) {
	if err := r.ensurePageTree(); err != nil {
		return 0, err
	}
	return r.pageTree.Count()
}

// GetPage returns the page at the given index (0-based)
func (r *Reader) GetPage(index int) (*pages.Page, error) {
	if err := r.ensurePageTree(); err != nil {
		return nil, err
	}
	return r.pageTree.GetPage(index)
}

// ensurePageTree loads the page tree if not already loaded
func (r *Reader) ensurePageTree() error {
	if r.pageTree != nil {
		return nil
	}

	catalog, err := r.GetCatalog()
	if err != nil {
		return fmt.Errorf("failed to get catalog: %w", err)
	}

	pagesRef := catalog.Get("Pages")
	if pagesRef == nil {
		return fmt.Errorf("catalog missing /Pages entry")
	}

	pagesObj, err := r.Resolve(pagesRef)
	if err != nil {
		return fmt.Errorf("failed to resolve pages: %w", err)
	}

	pagesDict, ok := pagesObj.(core.Dict)
	if !ok {
		return fmt.Errorf("pages is not a dictionary: %T", pagesObj)
	}

	r.pageTree = pages.NewPageTree(pagesDict, r)
	return nil
}
