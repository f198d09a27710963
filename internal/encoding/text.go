// Package encoding converts text string bytes into Go strings. Document
// metadata strings are either UTF-16BE with a byte order mark or use the
// single-byte PDFDoc encoding.
package encoding

import (
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// NoRune marks code points with no mapping in the PDFDoc encoding.
const NoRune = '�'

// pdfDocEncoding maps each PDFDoc byte to its Unicode code point.
var pdfDocEncoding = buildPDFDocEncoding()

func buildPDFDocEncoding() [256]rune {
	var t [256]rune
	for i := range t {
		t[i] = NoRune
	}

	// Tab, line feed, carriage return pass through.
	t[0x09], t[0x0A], t[0x0D] = 0x09, 0x0A, 0x0D

	// Printable ASCII is identity.
	for i := 0x20; i <= 0x7E; i++ {
		t[i] = rune(i)
	}

	// The upper half is Latin-1 except for the gaps filled below.
	for i := 0xA1; i <= 0xFF; i++ {
		t[i] = rune(i)
	}
	t[0xAD] = NoRune

	// Spacing accents at 0x18..0x1F.
	accents := []rune{0x02D8, 0x02C7, 0x02C6, 0x02D9, 0x02DD, 0x02DB, 0x02DA, 0x02DC}
	for i, r := range accents {
		t[0x18+i] = r
	}

	// Punctuation, ligatures, and currency at 0x80..0xA0.
	specials := []rune{
		0x2022, 0x2020, 0x2021, 0x2026, 0x2014, 0x2013, 0x0192, 0x2044,
		0x2039, 0x203A, 0x2212, 0x2030, 0x201E, 0x201C, 0x201D, 0x2018,
		0x2019, 0x201A, 0x2122, 0xFB01, 0xFB02, 0x0141, 0x0152, 0x0160,
		0x0178, 0x017D, 0x0131, 0x0142, 0x0153, 0x0161, 0x017E, NoRune,
		0x20AC,
	}
	for i, r := range specials {
		t[0x80+i] = r
	}

	return t
}

// IsUTF16 reports whether the bytes carry a UTF-16BE byte order mark.
func IsUTF16(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF && len(b)%2 == 0
}

// UTF16Decode decodes UTF-16BE bytes, including the byte order mark, and
// normalizes the result to NFKC.
func UTF16Decode(b []byte) string {
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
	}
	if len(u) > 0 && u[0] == 0xFEFF {
		u = u[1:]
	}
	return norm.NFKC.String(string(utf16.Decode(u)))
}

// IsPDFDocEncoded reports whether every byte has a PDFDoc mapping.
func IsPDFDocEncoded(b []byte) bool {
	if IsUTF16(b) {
		return false
	}
	for _, c := range b {
		if pdfDocEncoding[c] == NoRune {
			return false
		}
	}
	return true
}

// PDFDocDecode converts PDFDoc encoded bytes to a Go string. Bytes without
// a mapping become the replacement character.
func PDFDocDecode(b []byte) string {
	// Pure ASCII needs no table lookup.
	ascii := true
	for _, c := range b {
		if c >= 0x80 || pdfDocEncoding[c] != rune(c) {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}

	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = pdfDocEncoding[c]
	}
	return string(r)
}

// DecodeText decodes a text string using whichever of the two encodings
// its bytes declare.
func DecodeText(b []byte) string {
	if IsUTF16(b) {
		return UTF16Decode(b)
	}
	return PDFDocDecode(b)
}
