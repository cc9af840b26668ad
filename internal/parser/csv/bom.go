package csv

import "bytes"

var utf8BOM = []byte("\uFEFF")

// StripBOM removes a leading UTF-8 byte order mark from data.
func StripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}
