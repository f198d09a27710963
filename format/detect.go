// Package format provides input sniffing for the vellum library.
package format

import (
	"bytes"
	"fmt"
	"io"
)

// headerScanWindow bounds how far into the file the %PDF- marker may sit.
// Files produced by mail gateways and print spoolers sometimes carry junk
// bytes before the header.
const headerScanWindow = 1024

// Version is a PDF specification version from the file header.
type Version struct {
	Major int
	Minor int
}

// String returns the version as a string (e.g., "1.7").
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Header describes a detected PDF header.
type Header struct {
	// Offset is the byte position of the %PDF- marker. Non-zero when junk
	// bytes precede the header.
	Offset int64
	// Version is the declared specification version.
	Version Version
}

var headerMarker = []byte("%PDF-")

// SniffHeader locates the PDF header within the leading bytes of a file.
// The marker must appear within the first 1024 bytes.
func SniffHeader(data []byte) (Header, error) {
	window := data
	if len(window) > headerScanWindow {
		window = window[:headerScanWindow]
	}

	idx := bytes.Index(window, headerMarker)
	if idx < 0 {
		return Header{}, fmt.Errorf("not a PDF: no %%PDF- header in the first %d bytes", headerScanWindow)
	}

	rest := data[idx+len(headerMarker):]
	major, minor, ok := parseVersion(rest)
	if !ok {
		return Header{}, fmt.Errorf("malformed PDF header at offset %d", idx)
	}

	return Header{
		Offset:  int64(idx),
		Version: Version{Major: major, Minor: minor},
	}, nil
}

// SniffReader reads the scan window from the start of r and locates the
// header. The reader's position afterwards is unspecified.
func SniffReader(r io.ReadSeeker) (Header, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Header{}, fmt.Errorf("failed to seek to start: %w", err)
	}

	buf := make([]byte, headerScanWindow+16)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Header{}, fmt.Errorf("failed to read header: %w", err)
	}
	return SniffHeader(buf[:n])
}

// IsPDF reports whether the data starts with a PDF header, allowing for a
// junk prefix.
func IsPDF(data []byte) bool {
	_, err := SniffHeader(data)
	return err == nil
}

// parseVersion reads the d.d version digits after the marker.
func parseVersion(b []byte) (major, minor int, ok bool) {
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		major = major*10 + int(b[i]-'0')
		i++
	}
	if i == 0 || i >= len(b) || b[i] != '.' {
		return 0, 0, false
	}
	i++
	j := i
	for j < len(b) && b[j] >= '0' && b[j] <= '9' {
		minor = minor*10 + int(b[j]-'0')
		j++
	}
	if j == i {
		return 0, 0, false
	}
	return major, minor, true
}
