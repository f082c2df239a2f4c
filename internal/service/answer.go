package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/openai"
)

const contextHeader = "Relevant document excerpts:"

// ChatClient defines the interface for generating an answer from a prompt
type ChatClient interface {
	GenerateAnswer(ctx context.Context, messages []openai.ChatMessage, opts openai.ChatOptions) (string, error)
}

// AnswerConfig holds context assembly limits, completion settings and the
// confidence heuristic constants.
type AnswerConfig struct {
	MaxContextLength int
	MaxTokens        int
	Temperature      float32

	ConfidencePerSource  float64
	ConfidenceSourceCap  float64
	LengthBonusThreshold int
	LengthBonus          float64
	DiversityBonus       float64
}

// DefaultAnswerConfig returns the answer generation defaults
func DefaultAnswerConfig() AnswerConfig {
	return AnswerConfig{
		MaxContextLength:     4000,
		MaxTokens:            1000,
		Temperature:          0.1,
		ConfidencePerSource:  0.2,
		ConfidenceSourceCap:  0.8,
		LengthBonusThreshold: 1000,
		LengthBonus:          0.1,
		DiversityBonus:       0.1,
	}
}

// AnswerGenerator turns retrieved chunks and a question into a grounded answer.
type AnswerGenerator struct {
	client ChatClient
	cfg    AnswerConfig
}

// NewAnswerGenerator creates a new AnswerGenerator instance
func NewAnswerGenerator(client ChatClient, cfg AnswerConfig) *AnswerGenerator {
	if cfg.MaxContextLength <= 0 {
		cfg.MaxContextLength = DefaultAnswerConfig().MaxContextLength
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultAnswerConfig().MaxTokens
	}
	return &AnswerGenerator{client: client, cfg: cfg}
}

// BuildContext formats sources as numbered excerpts under a header and cuts
// the result to MaxContextLength characters.
func (g *AnswerGenerator) BuildContext(sources []domain.Source) string {
	if len(sources) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(sources)+1)
	blocks = append(blocks, contextHeader)
	for i, s := range sources {
		blocks = append(blocks, fmt.Sprintf("Source %d (from %s):\n%s", i+1, s.Metadata.DocumentName, s.Content))
	}

	return truncateRunes(strings.Join(blocks, "\n\n"), g.cfg.MaxContextLength)
}

// BuildPrompt returns the system and user messages for one completion.
func (g *AnswerGenerator) BuildPrompt(question, docContext string) []openai.ChatMessage {
	system := fmt.Sprintf(`You are a helpful assistant that answers questions using only the provided document context.

Your task:
1. Answer the user's question based ONLY on the provided context
2. If the context doesn't contain the answer, say "%s"
3. Be concise and accurate
4. Cite the relevant parts of the context that support your answer
5. Do not make up information or use external knowledge

Context:
%s`, domain.NoInformationAnswer, docContext)

	return []openai.ChatMessage{
		{Role: openai.RoleSystem, Content: system},
		{Role: openai.RoleUser, Content: question},
	}
}

// Generate makes a single completion call for question over sources.
func (g *AnswerGenerator) Generate(ctx context.Context, question string, sources []domain.Source, includeContext bool) (string, error) {
	docContext := ""
	if includeContext {
		docContext = g.BuildContext(sources)
	}

	answer, err := g.client.GenerateAnswer(ctx, g.BuildPrompt(question, docContext), openai.ChatOptions{
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

// Confidence scores retrieval strength: more sources and more retrieved
// text score higher, capped at 1. It is a heuristic, not a probability.
func (g *AnswerGenerator) Confidence(sources []domain.Source) float64 {
	n := len(sources)
	if n == 0 {
		return 0
	}

	score := min(float64(n)*g.cfg.ConfidencePerSource, g.cfg.ConfidenceSourceCap)

	total := 0
	for _, s := range sources {
		total += len([]rune(s.Content))
	}
	if total > g.cfg.LengthBonusThreshold {
		score += g.cfg.LengthBonus
	}
	if n > 1 {
		score += g.cfg.DiversityBonus
	}

	return max(0, min(score, 1))
}
