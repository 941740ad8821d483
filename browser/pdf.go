package browser

import "bytes"

// pdfMagicBytes is the leading signature of every PDF file.
var pdfMagicBytes = []byte("%PDF")

// SniffPDFBytes reports whether body starts with the %PDF signature. It
// is a standalone helper: the session's PDF auto-download guard
// (looksLikePDF in session.go) decides from the CDP-reported MIME type
// and the URL extension only and does not call it.
func SniffPDFBytes(body []byte) bool {
	return bytes.HasPrefix(body, pdfMagicBytes)
}
