// Package extractor converts PDF bytes into plain text.
package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Text extracts the plain text of a PDF document. A parse failure is fatal
// for the file being ingested; callers treat it as a rejected ingestion.
func Text(data []byte) (text string, err error) {
	// The pdf library panics on some malformed files; surface those as
	// parse errors instead of killing the request goroutine.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panicked: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse pdf: %w", err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// Skip unreadable pages rather than losing the document.
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
