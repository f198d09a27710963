package filters

import "fmt"

// RunLengthDecode decodes run-length encoded data.
// Each run starts with a length byte L: 0-127 means copy the next L+1 bytes
// literally, 129-255 means repeat the next byte 257-L times, and 128 is EOD.
func RunLengthDecode(data []byte) ([]byte, error) {
	var result []byte
	i := 0

	for i < len(data) {
		length := data[i]
		i++

		if length == 128 {
			break
		}

		if length < 128 {
			n := int(length) + 1
			if i+n > len(data) {
				return nil, fmt.Errorf("literal run of %d bytes overruns input at offset %d", n, i)
			}
			result = append(result, data[i:i+n]...)
			i += n
			continue
		}

		// 129-255: repeated byte
		if i >= len(data) {
			return nil, fmt.Errorf("replicated run missing its byte at offset %d", i)
		}
		n := 257 - int(length)
		b := data[i]
		i++
		for j := 0; j < n; j++ {
			result = append(result, b)
		}
	}

	return result, nil
}
