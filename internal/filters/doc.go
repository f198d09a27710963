// Package filters implements the stream decode filters used by PDF files.
//
// Supported filters:
//   - FlateDecode (zlib/deflate, with PNG and TIFF predictors)
//   - LZWDecode (with predictors)
//   - ASCIIHexDecode and ASCII85Decode
//   - RunLengthDecode
//   - CCITTFaxDecode (Group 3 and Group 4 fax)
//
// Image codecs such as DCTDecode (JPEG) and JPXDecode (JPEG 2000) are not
// decoded here; streams using them are surfaced with their bytes intact so
// callers can hand them to an image decoder.
package filters
