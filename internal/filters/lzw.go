package filters

import (
	"bytes"
	"compress/lzw"
	"fmt"
	"io"
)

// LZWDecode decompresses LZW-encoded data and applies any declared predictor.
// PDF LZW uses MSB-first bit packing with 8-bit literals.
//
// EarlyChange is assumed to be 1 (code width bumps one code early), which is
// both the PDF default and what the standard decompressor implements.
func LZWDecode(data []byte, params Params) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		// Partial output is common at the tail of sloppy encoders; keep
		// what decoded cleanly if there is any.
		if buf.Len() == 0 {
			return nil, fmt.Errorf("lzw decompression failed: %w", err)
		}
	}

	return ApplyPredictor(buf.Bytes(), params)
}
