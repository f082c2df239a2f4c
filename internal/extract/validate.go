package extract

import (
	"bytes"
	"context"
	"strings"

	"github.com/cloo-solutions/docchat/internal/domain"
)

const (
	pdfSignature      = "%PDF"
	largePDFBytes     = 50 * 1024 * 1024
	minimumTextLength = 50
)

// Validation lists problems that make a PDF unlikely to yield usable text.
type Validation struct {
	IsValid         bool     `json:"is_valid"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// ValidatePDF checks the signature and size of data and attempts a parse.
func (e *Extractor) ValidatePDF(ctx context.Context, data []byte) Validation {
	v := Validation{Issues: []string{}, Recommendations: []string{}}

	if len(data) < len(pdfSignature) {
		v.Issues = append(v.Issues, "File is too small to be a valid PDF")
		return v
	}
	if !bytes.HasPrefix(data, []byte(pdfSignature)) {
		v.Issues = append(v.Issues, "File does not have a valid PDF signature")
		v.Recommendations = append(v.Recommendations, "Ensure the file is a valid PDF document")
		return v
	}

	if len(data) > largePDFBytes {
		v.Issues = append(v.Issues, "PDF file is very large")
		v.Recommendations = append(v.Recommendations, "Large PDFs may take longer to process or fail")
	}

	text, err := e.Extract(ctx, data, domain.FileTypePDF)
	switch {
	case err != nil:
		v.Issues = append(v.Issues, "PDF parsing failed: "+err.Error())
		v.Recommendations = append(v.Recommendations, "The PDF may be encrypted, password-protected, or corrupted")
	case len(strings.TrimSpace(text)) < minimumTextLength:
		v.Issues = append(v.Issues, "PDF contains very little text")
		v.Recommendations = append(v.Recommendations, "The document may be mostly images or diagrams")
	}

	v.IsValid = len(v.Issues) == 0
	return v
}
