// Package extract turns raw uploaded bytes into plain document text.
package extract

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"paperchat/internal/faults"
)

// Text extracts plain text from an uploaded file. PDF content is parsed
// page by page; everything else is treated as plain text. Corrupt PDF
// input yields an extraction fault, never a partial silent success.
func Text(filename string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", faults.Input("empty file content")
	}
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		text, err := pdfText(content)
		if err != nil {
			return "", faults.Extraction("unreadable pdf", err)
		}
		return clean(text), nil
	}
	return clean(string(content)), nil
}

func pdfText(content []byte) (string, error) {
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	numPages := pdfReader.NumPage()
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// clean normalizes line endings and collapses runs of blank lines so the
// chunker sees the same token stream on every re-ingestion.
func clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
