package download

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// inspect settles the artifact's MIME type and, for PDFs, validates the
// payload and counts pages. A reported type wins over sniffing unless it is
// generic; a PDF that fails validation keeps page count zero, the download
// itself still stands.
func inspect(data []byte, reported string) (mime string, pages int) {
	mime = strings.TrimSpace(strings.Split(reported, ";")[0])
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
		mime = strings.Split(mime, ";")[0]
	}
	if mime == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF-")) {
		mime = "application/pdf"
		if n, err := api.PageCount(bytes.NewReader(data), nil); err == nil {
			pages = n
		}
	}
	return mime, pages
}
