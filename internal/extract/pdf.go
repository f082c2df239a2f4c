package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/ledongthuc/pdf"
)

// extractPDF reads the text layer of every page and joins pages with newlines.
// The parser panics on some malformed inputs, so panics become extraction errors.
func extractPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = domain.NewExtractionError(domain.ExtractionCauseCorrupted, fmt.Errorf("pdf parser panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.NewExtractionError(classifyPDFError(err), err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", domain.NewExtractionError(classifyPDFError(err), fmt.Errorf("page %d: %w", i, err))
		}
		pages = append(pages, content)
	}

	text = strings.Join(pages, "\n")
	if strings.TrimSpace(text) == "" {
		return "", domain.NewExtractionError(domain.ExtractionCauseImageOnly, errors.New("no text extracted from pdf"))
	}
	return text, nil
}

func classifyPDFError(err error) domain.ExtractionCause {
	if errors.Is(err, pdf.ErrInvalidPassword) {
		return domain.ExtractionCauseEncrypted
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "encrypt"), strings.Contains(msg, "password"):
		return domain.ExtractionCauseEncrypted
	case strings.Contains(msg, "malformed"), strings.Contains(msg, "not a pdf"),
		strings.Contains(msg, "missing"), strings.Contains(msg, "eof"):
		return domain.ExtractionCauseCorrupted
	}
	return domain.ExtractionCauseUnknown
}
