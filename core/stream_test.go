package core

import (
	"bytes"
	"compress/zlib"
	"encoding/hex"
	"errors"
	"testing"
)

func deflate(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

// hexWithEOD encodes data as ASCIIHex with the '>' end marker.
func hexWithEOD(data []byte) []byte {
	return append([]byte(hex.EncodeToString(data)), '>')
}

func decodeStream(t *testing.T, dict Dict, data []byte) []byte {
	t.Helper()
	out, err := (&Stream{Dict: dict, Data: data}).Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return out
}

func TestDecodeSingleFilter(t *testing.T) {
	plain := []byte("stream payload for decode tests")

	tests := []struct {
		name   string
		filter string
		data   []byte
		want   []byte
	}{
		{"flate", "FlateDecode", deflate(plain), plain},
		{"flate abbreviation", "Fl", deflate(plain), plain},
		{"ascii hex", "ASCIIHexDecode", hexWithEOD([]byte("Hello")), []byte("Hello")},
		{"ascii hex abbreviation", "AHx", hexWithEOD([]byte("Hi")), []byte("Hi")},
		{"ascii 85", "ASCII85Decode", []byte("87cURDZ~>"), []byte("Hello")},
		{"run length", "RunLengthDecode", []byte{2, 'a', 'b', 'c', 254, 'x', 128}, []byte("abcxxx")},
		{"run length abbreviation", "RL", []byte{1, 'h', 'i', 128}, []byte("hi")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeStream(t, Dict{"Filter": Name(tt.filter)}, tt.data)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("decoded = %q, want %q", got, tt.want)
			}
		})
	}
}

// Image codecs and identity crypt filters hand the payload back untouched.
func TestDecodePassthrough(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}

	tests := []struct {
		name string
		dict Dict
	}{
		{"no filter", Dict{}},
		{"jpeg", Dict{"Filter": Name("DCTDecode")}},
		{"jpeg 2000", Dict{"Filter": Name("JPXDecode")}},
		{"identity crypt", Dict{
			"Filter":      Name("Crypt"),
			"DecodeParms": Dict{"Name": Name("Identity")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeStream(t, tt.dict, payload)
			if !bytes.Equal(got, payload) {
				t.Errorf("decoded = % X, want payload unchanged", got)
			}
		})
	}
}

func TestDecodeWithPredictor(t *testing.T) {
	// PNG None predictor: each row is prefixed with a filter-type byte.
	rows := []byte{0, 10, 20, 30}

	got := decodeStream(t, Dict{
		"Filter": Name("FlateDecode"),
		"DecodeParms": Dict{
			"Predictor":        Int(10),
			"Columns":          Int(3),
			"Colors":           Int(1),
			"BitsPerComponent": Int(8),
		},
	}, deflate(rows))

	if !bytes.Equal(got, []byte{10, 20, 30}) {
		t.Errorf("decoded = %v, want rows without filter bytes", got)
	}
}

func TestDecodeFilterChain(t *testing.T) {
	plain := []byte("chained filters")
	encoded := hexWithEOD(deflate(plain))

	t.Run("without params", func(t *testing.T) {
		got := decodeStream(t, Dict{
			"Filter": Array{Name("ASCIIHexDecode"), Name("FlateDecode")},
		}, encoded)
		if !bytes.Equal(got, plain) {
			t.Errorf("decoded = %q, want %q", got, plain)
		}
	})

	t.Run("per-filter params", func(t *testing.T) {
		got := decodeStream(t, Dict{
			"Filter": Array{Name("ASCIIHexDecode"), Name("FlateDecode")},
			"DecodeParms": Array{
				Null{},
				Dict{"Predictor": Int(1)},
			},
		}, encoded)
		if !bytes.Equal(got, plain) {
			t.Errorf("decoded = %q, want %q", got, plain)
		}
	})

	t.Run("DP alias", func(t *testing.T) {
		rows := []byte{0, 7, 7}
		got := decodeStream(t, Dict{
			"Filter": Name("FlateDecode"),
			"DP": Dict{
				"Predictor":        Int(10),
				"Columns":          Int(2),
				"Colors":           Int(1),
				"BitsPerComponent": Int(8),
			},
		}, deflate(rows))
		if !bytes.Equal(got, []byte{7, 7}) {
			t.Errorf("decoded = %v, want [7 7]", got)
		}
	})
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name       string
		dict       Dict
		wantFilter string
	}{
		{"unknown filter", Dict{"Filter": Name("Bogus")}, "Bogus"},
		{"jbig2 unsupported", Dict{"Filter": Name("JBIG2Decode")}, "JBIG2Decode"},
		{"named crypt filter", Dict{
			"Filter":      Name("Crypt"),
			"DecodeParms": Dict{"Name": Name("StdCF")},
		}, "Crypt"},
		{"non-name chain entry", Dict{"Filter": Array{Int(5)}}, "#0"},
		{"invalid filter type", Dict{"Filter": Int(123)}, "Filter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&Stream{Dict: tt.dict, Data: []byte("x")}).Decode()
			if err == nil {
				t.Fatal("Decode() succeeded, want error")
			}
			var fe *FilterError
			if !errors.As(err, &fe) {
				t.Fatalf("error is %T, want *FilterError", err)
			}
			if fe.Filter != tt.wantFilter {
				t.Errorf("FilterError.Filter = %q, want %q", fe.Filter, tt.wantFilter)
			}
		})
	}
}

func TestDecodeCaching(t *testing.T) {
	s := &Stream{
		Dict: Dict{"Filter": Name("FlateDecode")},
		Data: deflate([]byte("cache me")),
	}

	first, err := s.Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	second, err := s.Decode()
	if err != nil {
		t.Fatalf("second Decode() error = %v", err)
	}
	if &first[0] != &second[0] {
		t.Error("second Decode re-ran the filters instead of returning the cache")
	}

	// SetData drops the cache.
	s.SetData(deflate([]byte("fresh")))
	third, err := s.Decode()
	if err != nil {
		t.Fatalf("Decode() after SetData error = %v", err)
	}
	if string(third) != "fresh" {
		t.Errorf("decoded = %q after SetData, want fresh", third)
	}
}

func TestDecodeParamConversion(t *testing.T) {
	t.Run("paramsObjToDict", func(t *testing.T) {
		d := Dict{"Columns": Int(4)}
		if got := paramsObjToDict(d); got == nil {
			t.Error("dict input should pass through")
		}
		if got := paramsObjToDict(Null{}); got != nil {
			t.Errorf("Null input = %v, want nil", got)
		}
		if got := paramsObjToDict(nil); got != nil {
			t.Errorf("nil input = %v, want nil", got)
		}
		if got := paramsObjToDict(Int(3)); got != nil {
			t.Errorf("non-dict input = %v, want nil", got)
		}
	})

	t.Run("dictToParams", func(t *testing.T) {
		params := dictToParams(Dict{
			"I": Int(5),
			"R": Real(1.5),
			"B": Bool(true),
			"S": NewString("s"),
			"N": Name("EarlyChange"),
		})
		if params["I"] != 5 {
			t.Errorf("I = %v (%T), want int 5", params["I"], params["I"])
		}
		if params["R"] != 1.5 {
			t.Errorf("R = %v, want 1.5", params["R"])
		}
		if params["B"] != true {
			t.Errorf("B = %v, want true", params["B"])
		}
		if params["S"] != "s" {
			t.Errorf("S = %v, want s", params["S"])
		}
		if params["N"] != "EarlyChange" {
			t.Errorf("N = %v, want EarlyChange", params["N"])
		}
		if dictToParams(nil) != nil {
			t.Error("nil dict should yield nil params")
		}
	})
}
