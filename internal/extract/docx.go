package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloo-solutions/docchat/internal/domain"
)

const docxBodyPart = "word/document.xml"

// extractDOCX pulls raw paragraph text out of word/document.xml.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.NewExtractionError(domain.ExtractionCauseCorrupted, fmt.Errorf("open docx container: %w", err))
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBodyPart {
			body = f
			break
		}
	}
	if body == nil {
		return "", domain.NewExtractionError(domain.ExtractionCauseCorrupted, errors.New("docx has no "+docxBodyPart))
	}

	rc, err := body.Open()
	if err != nil {
		return "", domain.NewExtractionError(domain.ExtractionCauseCorrupted, fmt.Errorf("open %s: %w", docxBodyPart, err))
	}
	defer rc.Close()

	text, err := docxText(rc)
	if err != nil {
		return "", domain.NewExtractionError(domain.ExtractionCauseCorrupted, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.NewExtractionError(domain.ExtractionCauseImageOnly, errors.New("no text extracted from docx"))
	}
	return text, nil
}

// docxText walks the WordprocessingML token stream. Text runs (w:t) are
// emitted as-is, w:tab becomes a tab, w:br and w:cr become newlines and
// every paragraph ends with a newline.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}

	return sb.String(), nil
}
