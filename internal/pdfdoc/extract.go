package pdfdoc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/okozlov/mailvault/internal/domain"
)

// columnGap is the horizontal distance, in PDF points, beyond which adjacent
// text runs on a row are treated as separate columns.
const columnGap = 6.0

// ExtractText converts a decrypted PDF into text lines, preserving vertical
// order within each page. Returns domain.ErrUnreadableDocument when the
// document yields no text at all (scanned or image-only statements).
func ExtractText(doc []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return nil, fmt.Errorf("pdfdoc.ExtractText: %w: %v", domain.ErrUnreadableDocument, err)
	}

	var lines []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			// A single malformed page should not sink the document.
			continue
		}
		for _, row := range rows {
			line := joinRow(row.Content)
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
	}

	if len(lines) == 0 {
		return nil, domain.ErrUnreadableDocument
	}
	return lines, nil
}

// joinRow flattens one row of positioned text runs into a single line,
// doubling the space where the X gap indicates a column boundary so that
// date/description/amount columns stay distinguishable.
func joinRow(texts []pdf.Text) string {
	var sb strings.Builder
	lastEnd := -1.0
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		if sb.Len() > 0 {
			if lastEnd >= 0 && t.X-lastEnd > columnGap {
				sb.WriteString("  ")
			} else if !strings.HasSuffix(sb.String(), " ") && !strings.HasPrefix(t.S, " ") {
				sb.WriteString(" ")
			}
		}
		sb.WriteString(t.S)
		lastEnd = t.X + t.W
	}
	return sb.String()
}
