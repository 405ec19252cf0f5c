// Package extract normalizes source documents to plain text before they
// reach the document tree producer, which otherwise only understands
// markdown. Most corpora are plain text or markdown already; PDF policy
// documents are the one format worth a real extractor.
package extract

import (
	"io"
	"strings"
)

// Extract reads r and returns a text representation of the content.
// Returns ("", nil) for unsupported content types.
func Extract(contentType string, r io.Reader) (string, error) {
	mime := strings.SplitN(contentType, ";", 2)[0]
	mime = strings.TrimSpace(strings.ToLower(mime))

	switch {
	case strings.HasPrefix(mime, "text/"):
		return extractText(r)
	case mime == "application/pdf":
		return extractPDF(r)
	default:
		return "", nil
	}
}

func extractText(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
