package writer

import (
	"sort"

	"github.com/tsawler/vellum/core"
	"github.com/tsawler/vellum/internal/filters"
)

// xrefRec is one cross-reference record destined for an xref stream:
// type 0 (free), type 1 (offset, generation), or type 2 (container, slot).
type xrefRec struct {
	num    int
	typ    int64
	field2 int64
	field3 int64
}

// byteWidth returns the number of big-endian bytes needed for a value.
func byteWidth(v int64) int {
	w := 1
	for v > 0xFF {
		v >>= 8
		w++
	}
	return w
}

// indexRuns flattens sorted records into /Index pairs, one per contiguous
// run of object numbers.
func indexRuns(recs []xrefRec) core.Array {
	var index core.Array
	for i := 0; i < len(recs); {
		first := recs[i].num
		j := i + 1
		for j < len(recs) && recs[j].num == recs[j-1].num+1 {
			j++
		}
		index = append(index, core.Int(first), core.Int(j-i))
		i = j
	}
	return index
}

// encodeXRefStream builds a cross-reference stream from the given records.
// Field widths are the minimum that fit the values; a uniform type-1 column
// is elided entirely. The body is Flate compressed without a predictor.
// extra supplies the trailer fields (Size, Root, and so on).
func encodeXRefStream(recs []xrefRec, extra core.Dict) (*core.Stream, error) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].num < recs[j].num })

	var maxType, max2, max3 int64
	allType1 := true
	for _, rec := range recs {
		if rec.typ != 1 {
			allType1 = false
		}
		if rec.typ > maxType {
			maxType = rec.typ
		}
		if rec.field2 > max2 {
			max2 = rec.field2
		}
		if rec.field3 > max3 {
			max3 = rec.field3
		}
	}

	w1 := byteWidth(maxType)
	if allType1 {
		w1 = 0
	}
	w2 := byteWidth(max2)
	w3 := byteWidth(max3)

	body := make([]byte, 0, len(recs)*(w1+w2+w3))
	put := func(v int64, width int) {
		for i := width - 1; i >= 0; i-- {
			body = append(body, byte(v>>(8*uint(i))))
		}
	}
	for _, rec := range recs {
		put(rec.typ, w1)
		put(rec.field2, w2)
		put(rec.field3, w3)
	}

	compressed, err := filters.FlateEncode(body)
	if err != nil {
		return nil, err
	}

	dict := core.Dict{
		"Type":   core.Name("XRef"),
		"W":      core.Array{core.Int(w1), core.Int(w2), core.Int(w3)},
		"Index":  indexRuns(recs),
		"Filter": core.Name("FlateDecode"),
	}
	for k, v := range extra {
		dict[k] = v
	}

	return &core.Stream{Dict: dict, Data: compressed}, nil
}
