package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/extract"
)

const sectionLabelLength = 50

// headingPattern matches markdown headings, all-caps lines and "Label ...:" lines.
var headingPattern = regexp.MustCompile(`^(#{1,6}\s+.+|[A-Z][A-Z\s]+|[A-Z][a-z]+.*:)$`)

// Chunker splits document text into overlapping, size-bounded chunks.
//
// Chunking is line-granular: a line is never split, so a single line longer
// than ChunkSize becomes a chunk of its own. Offsets are rune positions in
// extract.Clean(text).
type Chunker struct{}

// NewChunker creates a Chunker
func NewChunker() *Chunker {
	return &Chunker{}
}

type chunkBuilder struct {
	documentID   string
	documentName string
	opts         domain.ProcessingOptions

	chunks []domain.TextChunk
	lines  []string
	length int // runes in strings.Join(lines, "\n")
	start  int
}

// Chunk splits text into chunks for documentID. Empty or whitespace-only
// text yields no chunks.
func (c *Chunker) Chunk(text, documentID, documentName string, opts domain.ProcessingOptions) ([]domain.TextChunk, error) {
	if err := domain.ValidateProcessingOptions(opts); err != nil {
		return nil, err
	}

	b := &chunkBuilder{
		documentID:   documentID,
		documentName: documentName,
		opts:         opts,
	}

	offset := 0
	for _, section := range splitSections(extract.NormalizeLineEndings(text)) {
		cleaned := extract.Clean(section)
		if cleaned == "" {
			continue
		}

		label := ""
		if opts.IncludeMetadata {
			label = truncateRunes(strings.ReplaceAll(cleaned, "\n", " "), sectionLabelLength)
		}

		for _, line := range strings.Split(cleaned, "\n") {
			b.add(line, offset, label)
			offset += utf8.RuneCountInString(line) + 1
		}
		// Sections never share a chunk.
		b.flush(label)
	}

	return b.chunks, nil
}

// add appends line (starting at rune offset lineStart) to the buffer, closing
// the buffer first when the line would push it past ChunkSize.
func (b *chunkBuilder) add(line string, lineStart int, label string) {
	lineLen := utf8.RuneCountInString(line)

	if len(b.lines) == 0 {
		b.lines = []string{line}
		b.length = lineLen
		b.start = lineStart
		return
	}

	if b.length+1+lineLen <= b.opts.ChunkSize {
		b.lines = append(b.lines, line)
		b.length += 1 + lineLen
		return
	}

	closed := b.flush(label)
	seed := tailRunes(closed, b.opts.ChunkOverlap)
	seedLen := utf8.RuneCountInString(seed)
	if strings.TrimSpace(seed) == "" {
		b.lines = []string{line}
		b.length = lineLen
		b.start = lineStart
		return
	}

	b.lines = []string{seed, line}
	b.length = seedLen + 1 + lineLen
	b.start = lineStart - 1 - seedLen
}

// flush closes the buffer as a chunk and returns its content.
func (b *chunkBuilder) flush(label string) string {
	if len(b.lines) == 0 {
		return ""
	}
	content := strings.Join(b.lines, "\n")
	b.lines = nil

	if strings.TrimSpace(content) == "" {
		b.length = 0
		return ""
	}

	index := len(b.chunks)
	b.chunks = append(b.chunks, domain.TextChunk{
		ID:      domain.ChunkID(b.documentID, index),
		Content: content,
		Metadata: domain.ChunkMetadata{
			DocumentID:   b.documentID,
			ChunkIndex:   index,
			StartChar:    b.start,
			EndChar:      b.start + b.length,
			DocumentName: b.documentName,
			Section:      label,
		},
	})
	b.length = 0
	return content
}

// splitSections breaks text before every heading line. Without any heading
// the text is split into blank-line separated paragraphs instead.
func splitSections(text string) []string {
	lines := strings.Split(text, "\n")

	hasHeading := false
	for _, line := range lines {
		if isHeading(line) {
			hasHeading = true
			break
		}
	}

	var sections []string
	var current []string
	closeSection := func() {
		if len(current) > 0 {
			sections = append(sections, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range lines {
		if hasHeading {
			if isHeading(line) {
				closeSection()
			}
			current = append(current, line)
			continue
		}
		if strings.TrimSpace(line) == "" {
			closeSection()
			continue
		}
		current = append(current, line)
	}
	closeSection()

	return sections
}

func isHeading(line string) bool {
	line = strings.TrimSpace(line)
	return line != "" && headingPattern.MatchString(line)
}

func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
