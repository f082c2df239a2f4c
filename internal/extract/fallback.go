package extract

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/docchat/internal/domain"
)

var causeReasons = map[domain.ExtractionCause][]string{
	domain.ExtractionCauseTimeout: {
		"Processing took too long and timed out",
		"This usually means a very large or complex file",
		"The file may contain many images or heavy formatting",
	},
	domain.ExtractionCauseEncrypted: {
		"The file is password-protected or encrypted",
		"Remove the protection and upload the file again",
	},
	domain.ExtractionCauseImageOnly: {
		"The file contains no extractable text",
		"This is common with scanned documents or image-only pages",
	},
	domain.ExtractionCauseCorrupted: {
		"The file structure could not be read",
		"It may be corrupted or use an unsupported feature",
	},
	domain.ExtractionCauseUnknown: {
		"The file could not be processed due to an unknown error",
		"It may be a scanned or image-based document",
	},
}

// FallbackText builds the text ingested in place of a document whose text
// could not be extracted. The output depends only on its arguments.
func FallbackText(filename string, size int64, fileType domain.FileType, cause domain.ExtractionCause) string {
	reasons, ok := causeReasons[cause]
	if !ok {
		reasons = causeReasons[domain.ExtractionCauseUnknown]
	}

	kind := "PDF (Portable Document Format)"
	label := "PDF"
	if fileType == domain.FileTypeDOCX {
		kind = "DOCX (Word document)"
		label = "DOCX"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Document: %s\n\n", label, filename)
	sb.WriteString("This document was uploaded and stored, but automatic text extraction was not possible.\n\n")
	sb.WriteString("DOCUMENT INFORMATION:\n")
	fmt.Fprintf(&sb, "- Filename: %s\n", filename)
	fmt.Fprintf(&sb, "- File Size: %.2f KB (%.2f MB)\n", float64(size)/1024, float64(size)/(1024*1024))
	fmt.Fprintf(&sb, "- Document Type: %s\n\n", kind)
	sb.WriteString("WHY TEXT EXTRACTION FAILED:\n")
	for _, r := range reasons {
		fmt.Fprintf(&sb, "- %s\n", r)
	}
	sb.WriteString("\nWHAT YOU CAN DO:\n")
	sb.WriteString("- You can still ask questions; answers will be limited to this description\n")
	sb.WriteString("- For best results upload a text-based PDF or Word document\n")
	sb.WriteString("- Run OCR software on scanned documents before uploading\n")
	return sb.String()
}
