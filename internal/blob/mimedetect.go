package blob

import (
	"mime"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const octetStream = "application/octet-stream"

// detectMIME sniffs the content with the stdlib first and falls back to the
// broader mimetype library when the stdlib is not sure.
func detectMIME(head []byte) string {
	if len(head) == 0 {
		return octetStream
	}
	mt := http.DetectContentType(head)
	if mt != octetStream {
		return baseType(mt)
	}
	return baseType(mimetype.Detect(head).String())
}

// contentType picks the type recorded on a FileRef. The sniffed type wins
// unless it is generic, in which case a declared type of the same family
// may refine it (text/plain declared as text/csv).
func contentType(declared string, data []byte) string {
	sniffed := detectMIME(data)
	declared = baseType(declared)
	switch {
	case declared == "":
		return sniffed
	case sniffed == octetStream:
		return declared
	case sniffed == "text/plain" && strings.HasPrefix(declared, "text/"):
		return declared
	default:
		return sniffed
	}
}

func baseType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}
