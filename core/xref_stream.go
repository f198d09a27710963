package core

import (
	"fmt"
)

// decodeXRefStream converts a /Type /XRef stream into an XRefTable.
//
// The decoded body is a sequence of fixed-width binary records. The /W array
// gives the byte width of each record's three fields: entry type, second
// field, third field. A zero-width type field defaults every entry to type 1
// (in use); a zero-width third field defaults to 0. /Index lists
// (first, count) pairs naming the object numbers covered; absent, it
// defaults to [0 Size].
//
// Entry types: 0 = free, 1 = uncompressed at byte offset, 2 = compressed
// inside an object stream.
func decodeXRefStream(stream *Stream) (*XRefTable, error) {
	dict := stream.Dict

	if typ, ok := dict.GetName("Type"); !ok || typ != "XRef" {
		return nil, &XRefError{Msg: "stream is not /Type /XRef"}
	}

	size, ok := dict.GetInt("Size")
	if !ok || size <= 0 {
		return nil, &XRefError{Msg: "xref stream missing /Size"}
	}

	wArray, ok := dict.GetArray("W")
	if !ok || len(wArray) < 3 {
		return nil, &XRefError{Msg: "xref stream missing /W"}
	}

	widths := make([]int, 3)
	for i := 0; i < 3; i++ {
		w, ok := wArray[i].(Int)
		if !ok || w < 0 || w > 8 {
			return nil, &XRefError{Msg: fmt.Sprintf("invalid /W width at index %d", i)}
		}
		widths[i] = int(w)
	}

	recordLen := widths[0] + widths[1] + widths[2]
	if recordLen == 0 {
		return nil, &XRefError{Msg: "xref stream /W widths are all zero"}
	}

	subsections, err := xrefIndexSubsections(dict, int(size))
	if err != nil {
		return nil, err
	}

	data, err := stream.Decode()
	if err != nil {
		return nil, &XRefError{Msg: "failed to decode xref stream body", Cause: err}
	}

	table := NewXRefTable()
	table.IsStream = true
	table.Trailer = dict

	pos := 0
	for _, sub := range subsections {
		for i := 0; i < sub.count; i++ {
			if pos+recordLen > len(data) {
				// Truncated body: keep the entries decoded so far.
				table.readLinks()
				return table, nil
			}

			record := data[pos : pos+recordLen]
			pos += recordLen

			entryType := int64(1)
			if widths[0] > 0 {
				entryType = readBigEndian(record[:widths[0]])
			}
			field2 := readBigEndian(record[widths[0] : widths[0]+widths[1]])
			field3 := readBigEndian(record[widths[0]+widths[1]:])

			objNum := sub.first + i
			switch entryType {
			case 0:
				table.Set(objNum, &XRefEntry{
					Offset:     field2,
					Generation: int(field3),
					InUse:      false,
				})
			case 1:
				table.Set(objNum, &XRefEntry{
					Offset:     field2,
					Generation: int(field3),
					InUse:      true,
				})
			case 2:
				table.Set(objNum, &XRefEntry{
					InUse:       true,
					Compressed:  true,
					StreamNum:   int(field2),
					StreamIndex: int(field3),
				})
			default:
				// Unknown entry types are reserved; skip them.
			}
		}
	}

	table.readLinks()
	return table, nil
}

type xrefSubsection struct {
	first int
	count int
}

// xrefIndexSubsections reads the /Index pairs, defaulting to [0 Size].
func xrefIndexSubsections(dict Dict, size int) ([]xrefSubsection, error) {
	indexArray, ok := dict.GetArray("Index")
	if !ok {
		return []xrefSubsection{{first: 0, count: size}}, nil
	}

	if len(indexArray)%2 != 0 {
		return nil, &XRefError{Msg: "xref stream /Index has odd length"}
	}

	var subs []xrefSubsection
	for i := 0; i < len(indexArray); i += 2 {
		first, ok1 := indexArray[i].(Int)
		count, ok2 := indexArray[i+1].(Int)
		if !ok1 || !ok2 || first < 0 || count < 0 {
			return nil, &XRefError{Msg: fmt.Sprintf("invalid /Index pair at %d", i)}
		}
		subs = append(subs, xrefSubsection{first: int(first), count: int(count)})
	}
	return subs, nil
}

// readBigEndian interprets up to 8 bytes as a big-endian unsigned integer.
func readBigEndian(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}
