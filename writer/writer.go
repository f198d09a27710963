// Package writer serializes document object graphs back to PDF syntax,
// either as a full rewrite or as an incremental update appended after the
// original bytes.
package writer

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"sort"

	"github.com/tsawler/vellum/core"
	"github.com/tsawler/vellum/format"
	"github.com/tsawler/vellum/internal/crypt"
	"github.com/tsawler/vellum/reader"
)

// Writer accumulates object changes against an open document and saves
// them as a new file or an appended revision.
type Writer struct {
	reader     *reader.Reader
	original   []byte // snapshot taken at construction for the append invariant
	pending    map[int]core.Object
	nextNum    int
	xrefStream bool
	encryptNum int
}

// NewWriter returns a writer over an open document. New object numbers are
// allocated above the highest number the document already uses.
func NewWriter(r *reader.Reader) *Writer {
	maxNum := 0
	for num := range r.XRefTable().Entries {
		if num > maxNum {
			maxNum = num
		}
	}

	encryptNum := 0
	if ref, ok := r.Trailer().GetIndirectRef("Encrypt"); ok {
		encryptNum = ref.Number
	}

	original := make([]byte, len(r.Bytes()))
	copy(original, r.Bytes())

	return &Writer{
		reader:     r,
		original:   original,
		pending:    make(map[int]core.Object),
		nextNum:    maxNum + 1,
		encryptNum: encryptNum,
	}
}

// PutObject stages a replacement for an object number. The object is
// written on the next save; the reader's caches are never touched.
func (w *Writer) PutObject(num int, obj core.Object) {
	w.pending[num] = obj
	if num >= w.nextNum {
		w.nextNum = num + 1
	}
}

// AddObject stages a new object and returns its allocated number.
func (w *Writer) AddObject(obj core.Object) int {
	num := w.nextNum
	w.nextNum++
	w.pending[num] = obj
	return num
}

// Pending returns the number of staged objects.
func (w *Writer) Pending() int {
	return len(w.pending)
}

// UseXRefStream selects the cross-reference stream format for full saves.
// Object stream containers are then carried over for untouched members
// instead of being flattened.
func (w *Writer) UseXRefStream(on bool) {
	w.xrefStream = on
}

// SaveFull writes a complete document: every live object in ascending
// number order, a fresh cross-reference section, and a single trailer.
func (w *Writer) SaveFull(out io.Writer) error {
	var buf bytes.Buffer

	version := w.reader.Version()
	if w.xrefStream && (version.Major < 1 || (version.Major == 1 && version.Minor < 5)) {
		version = format.Version{Major: 1, Minor: 5}
	}
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", version)

	table := w.reader.XRefTable()
	nums := w.liveNumbers(table)

	offsets := make(map[int]int64)
	gens := make(map[int]int)
	type2 := make(map[int]*core.XRefEntry)
	maxNum := 0

	for _, num := range nums {
		if num > maxNum {
			maxNum = num
		}

		if obj, ok := w.pending[num]; ok {
			if err := w.writeObject(&buf, offsets, gens, num, 0, obj); err != nil {
				return err
			}
			continue
		}

		entry, _ := table.Get(num)
		if entry.Compressed {
			if w.xrefStream && !w.isModified(entry.StreamNum) {
				// Member stays in its original container.
				type2[num] = entry
				continue
			}
			obj, err := w.reader.GetObject(num)
			if err != nil {
				return fmt.Errorf("failed to load object %d: %w", num, err)
			}
			if err := w.writeObject(&buf, offsets, gens, num, 0, obj); err != nil {
				return err
			}
			continue
		}

		obj, err := w.reader.GetObject(num)
		if err != nil {
			return fmt.Errorf("failed to load object %d: %w", num, err)
		}

		// Structural streams from the source file are not carried over:
		// old xref streams are superseded by the section written below,
		// and containers are flattened unless the stream format keeps
		// their members in place.
		if s, ok := obj.(*core.Stream); ok {
			typ, _ := s.Dict.GetName("Type")
			if typ == "XRef" {
				continue
			}
			if typ == "ObjStm" && !w.xrefStream {
				continue
			}
		}

		if err := w.writeObject(&buf, offsets, gens, num, entry.Generation, obj); err != nil {
			return err
		}
	}

	if w.xrefStream {
		if err := w.writeXRefStreamSection(&buf, offsets, gens, type2, maxNum, -1); err != nil {
			return err
		}
	} else {
		if err := w.writeClassicSection(&buf, offsets, gens, maxNum, -1); err != nil {
			return err
		}
	}

	_, err := out.Write(buf.Bytes())
	return err
}

// SaveIncremental appends the staged objects after the original file bytes
// with a cross-reference section covering only them. The original bytes
// are never altered; a violated prefix aborts with ErrWriteInvariant
// before anything is written.
func (w *Writer) SaveIncremental(out io.Writer) error {
	if len(w.pending) == 0 {
		return fmt.Errorf("no staged objects to append")
	}
	prev := w.reader.StartXRef()
	if prev < 0 {
		return fmt.Errorf("document xref was rebuilt by recovery, append target unknown")
	}

	var buf bytes.Buffer
	buf.Write(w.reader.Bytes())
	if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}

	table := w.reader.XRefTable()
	nums := make([]int, 0, len(w.pending))
	for num := range w.pending {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	offsets := make(map[int]int64)
	gens := make(map[int]int)
	maxNum := 0

	for _, num := range nums {
		if num > maxNum {
			maxNum = num
		}
		gen := 0
		if entry, ok := table.Get(num); ok {
			gen = entry.Generation
		}
		if err := w.writeObject(&buf, offsets, gens, num, gen, w.pending[num]); err != nil {
			return err
		}
	}

	if table.IsStream {
		if err := w.writeXRefStreamSection(&buf, offsets, gens, nil, maxNum, prev); err != nil {
			return err
		}
	} else {
		if err := w.writeIncrementalClassic(&buf, nums, offsets, gens, maxNum, prev); err != nil {
			return err
		}
	}

	if len(buf.Bytes()) < len(w.original) ||
		!bytes.Equal(buf.Bytes()[:len(w.original)], w.original) {
		return fmt.Errorf("original bytes changed under the writer: %w", core.ErrWriteInvariant)
	}

	_, err := out.Write(buf.Bytes())
	return err
}

// liveNumbers returns every in-use object number plus staged ones, sorted.
func (w *Writer) liveNumbers(table *core.XRefTable) []int {
	seen := make(map[int]bool)
	for num, entry := range table.Entries {
		if entry.InUse && num > 0 {
			seen[num] = true
		}
	}
	for num := range w.pending {
		seen[num] = true
	}

	nums := make([]int, 0, len(seen))
	for num := range seen {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

func (w *Writer) isModified(num int) bool {
	_, ok := w.pending[num]
	return ok
}

// writeObject serializes one top-level object, re-encrypting its content
// when the document has an active security handler.
func (w *Writer) writeObject(buf *bytes.Buffer, offsets map[int]int64, gens map[int]int, num, gen int, obj core.Object) error {
	if handler := w.reader.CryptHandler(); handler != nil && num != w.encryptNum {
		var err error
		obj, err = encryptForWrite(handler, obj, num, gen)
		if err != nil {
			return fmt.Errorf("failed to encrypt object %d: %w", num, err)
		}
	}

	offsets[num] = int64(buf.Len())
	gens[num] = gen
	fmt.Fprintf(buf, "%d %d obj\n", num, gen)
	serializeObject(buf, obj)
	buf.WriteString("\nendobj\n")
	return nil
}

// writeClassicSection writes a full 0..maxNum table, trailer, and markers.
func (w *Writer) writeClassicSection(buf *bytes.Buffer, offsets map[int]int64, gens map[int]int, maxNum int, prev int64) error {
	xrefOff := int64(buf.Len())

	fmt.Fprintf(buf, "xref\n0 %d\n", maxNum+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= maxNum; num++ {
		if off, ok := offsets[num]; ok {
			fmt.Fprintf(buf, "%010d %05d n \n", off, gens[num])
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	trailer, err := w.buildTrailer(maxNum+1, prev)
	if err != nil {
		return err
	}
	buf.WriteString("trailer\n")
	serializeDict(buf, trailer)
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOff)
	return nil
}

// writeIncrementalClassic writes subsections covering only the staged
// object numbers, in contiguous runs.
func (w *Writer) writeIncrementalClassic(buf *bytes.Buffer, nums []int, offsets map[int]int64, gens map[int]int, maxNum int, prev int64) error {
	xrefOff := int64(buf.Len())
	buf.WriteString("xref\n")

	for i := 0; i < len(nums); {
		first := nums[i]
		j := i + 1
		for j < len(nums) && nums[j] == nums[j-1]+1 {
			j++
		}
		fmt.Fprintf(buf, "%d %d\n", first, j-i)
		for k := i; k < j; k++ {
			fmt.Fprintf(buf, "%010d %05d n \n", offsets[nums[k]], gens[nums[k]])
		}
		i = j
	}

	size := w.reader.NumObjects()
	if maxNum+1 > size {
		size = maxNum + 1
	}
	trailer, err := w.buildTrailer(size, prev)
	if err != nil {
		return err
	}
	buf.WriteString("trailer\n")
	serializeDict(buf, trailer)
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOff)
	return nil
}

// writeXRefStreamSection writes the table as a cross-reference stream
// object allocated just past the highest written number.
func (w *Writer) writeXRefStreamSection(buf *bytes.Buffer, offsets map[int]int64, gens map[int]int, type2 map[int]*core.XRefEntry, maxNum int, prev int64) error {
	xrefNum := maxNum + 1
	if xrefNum < w.nextNum {
		xrefNum = w.nextNum
	}
	xrefOff := int64(buf.Len())

	recs := make([]xrefRec, 0, len(offsets)+len(type2)+2)
	if prev < 0 {
		// Full rewrite: the conventional free head entry.
		recs = append(recs, xrefRec{num: 0, typ: 0, field2: 0, field3: 65535})
	}
	for num, off := range offsets {
		recs = append(recs, xrefRec{num: num, typ: 1, field2: off, field3: int64(gens[num])})
	}
	for num, entry := range type2 {
		recs = append(recs, xrefRec{num: num, typ: 2, field2: int64(entry.StreamNum), field3: int64(entry.StreamIndex)})
	}
	recs = append(recs, xrefRec{num: xrefNum, typ: 1, field2: xrefOff, field3: 0})

	size := xrefNum + 1
	if declared := w.reader.NumObjects(); declared > size {
		size = declared
	}
	trailer, err := w.buildTrailer(size, prev)
	if err != nil {
		return err
	}
	stream, err := encodeXRefStream(recs, trailer)
	if err != nil {
		return err
	}

	fmt.Fprintf(buf, "%d 0 obj\n", xrefNum)
	serializeObject(buf, stream)
	buf.WriteString("\nendobj\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOff)
	return nil
}

// buildTrailer carries the structural entries over from the source
// trailer and regenerates the second half of the document ID.
func (w *Writer) buildTrailer(size int, prev int64) (core.Dict, error) {
	trailer := core.Dict{"Size": core.Int(size)}
	src := w.reader.Trailer()
	for _, key := range []string{"Root", "Info", "Encrypt"} {
		if v := src.Get(key); v != nil {
			trailer[key] = v
		}
	}
	if prev >= 0 {
		trailer["Prev"] = core.Int(prev)
	}

	id, err := w.documentID()
	if err != nil {
		return nil, err
	}
	trailer["ID"] = id
	return trailer, nil
}

// documentID keeps the permanent first half of the file ID and draws a
// fresh second half.
func (w *Writer) documentID() (core.Array, error) {
	var first []byte
	if id, ok := w.reader.Trailer().GetArray("ID"); ok && len(id) > 0 {
		if s, ok := id[0].(core.String); ok {
			first = s.Value
		}
	}
	if first == nil {
		b, err := randomBytes(16)
		if err != nil {
			return nil, err
		}
		first = b
	}

	second, err := randomBytes(16)
	if err != nil {
		return nil, err
	}
	return core.Array{
		core.String{Value: first, Hex: true},
		core.String{Value: second, Hex: true},
	}, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate document ID: %w", err)
	}
	return b, nil
}

// encryptForWrite walks an object encrypting strings and stream bodies,
// mirroring the reader's decryption gate. Cross-reference streams stay
// plaintext.
func encryptForWrite(h *crypt.Handler, obj core.Object, num, gen int) (core.Object, error) {
	switch v := obj.(type) {
	case core.String:
		enc, err := h.EncryptBytes(num, gen, v.Value)
		if err != nil {
			return nil, err
		}
		return core.String{Value: enc, Hex: v.Hex}, nil

	case core.Array:
		out := make(core.Array, len(v))
		for i, elem := range v {
			enc, err := encryptForWrite(h, elem, num, gen)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil

	case core.Dict:
		out := make(core.Dict, len(v))
		for key, val := range v {
			enc, err := encryptForWrite(h, val, num, gen)
			if err != nil {
				return nil, err
			}
			out[key] = enc
		}
		return out, nil

	case *core.Stream:
		dictObj, err := encryptForWrite(h, v.Dict, num, gen)
		if err != nil {
			return nil, err
		}
		dict := dictObj.(core.Dict)

		data := v.Data
		if typ, ok := dict.GetName("Type"); !ok || typ != "XRef" {
			data, err = h.EncryptBytes(num, gen, v.Data)
			if err != nil {
				return nil, err
			}
		}
		return &core.Stream{Dict: dict, Data: data}, nil

	default:
		return obj, nil
	}
}
