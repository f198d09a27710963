package filters

import (
	"bytes"
	"encoding/ascii85"
	"fmt"
	"io"
)

// ASCIIHexDecode decodes ASCIIHex-encoded data.
// The encoding represents each byte as two hexadecimal digits. Whitespace is
// ignored and '>' marks end of data. An odd final digit is padded with zero.
func ASCIIHexDecode(data []byte) ([]byte, error) {
	var result []byte
	var hexDigits []byte

	for _, b := range data {
		// Check for EOD marker
		if b == '>' {
			break
		}

		// Skip whitespace
		if isWhitespace(b) {
			continue
		}

		// Validate hex digit
		if !isHexDigit(b) {
			return nil, fmt.Errorf("invalid hex digit: %c (0x%02x)", b, b)
		}

		hexDigits = append(hexDigits, b)

		// When we have two digits, decode them
		if len(hexDigits) == 2 {
			decoded, err := hexPairToByte(hexDigits[0], hexDigits[1])
			if err != nil {
				return nil, err
			}
			result = append(result, decoded)
			hexDigits = hexDigits[:0]
		}
	}

	// Handle odd number of digits (pad with 0)
	if len(hexDigits) == 1 {
		decoded, err := hexPairToByte(hexDigits[0], '0')
		if err != nil {
			return nil, err
		}
		result = append(result, decoded)
	}

	return result, nil
}

// ASCII85Decode decodes ASCII85 (base85) encoded data.
// Whitespace is stripped and the trailing "~>" EOD marker removed before
// handing the payload to the standard decoder, which also handles the 'z'
// shorthand for four zero bytes.
func ASCII85Decode(data []byte) ([]byte, error) {
	cleaned := make([]byte, 0, len(data))
	for _, b := range data {
		if isWhitespace(b) {
			continue
		}
		cleaned = append(cleaned, b)
	}

	// Some encoders open with "<~"; the standard decoder does not expect it.
	if bytes.HasPrefix(cleaned, []byte("<~")) {
		cleaned = cleaned[2:]
	}
	if idx := bytes.Index(cleaned, []byte("~>")); idx >= 0 {
		cleaned = cleaned[:idx]
	}

	dec := ascii85.NewDecoder(bytes.NewReader(cleaned))
	result, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("ascii85 decode failed: %w", err)
	}
	return result, nil
}

// hexPairToByte converts two hex digits to a single byte.
func hexPairToByte(high, low byte) (byte, error) {
	h, err := hexDigitValue(high)
	if err != nil {
		return 0, err
	}

	l, err := hexDigitValue(low)
	if err != nil {
		return 0, err
	}

	return byte(h<<4 | l), nil
}

// hexDigitValue returns the numeric value of a hex digit.
func hexDigitValue(b byte) (int, error) {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0'), nil
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10, nil
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit: %c", b)
	}
}

// isHexDigit checks if a byte is a valid hexadecimal digit.
func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') ||
		(b >= 'A' && b <= 'F') ||
		(b >= 'a' && b <= 'f')
}

// isWhitespace checks if a byte is PDF whitespace.
func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == '\f' || b == 0
}
