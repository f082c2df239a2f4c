package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockChatClient is a mock implementation of ChatClient
type MockChatClient struct {
	mock.Mock
}

func (m *MockChatClient) GenerateAnswer(ctx context.Context, messages []openai.ChatMessage, opts openai.ChatOptions) (string, error) {
	args := m.Called(ctx, messages, opts)
	return args.String(0), args.Error(1)
}

func source(name, content string, sim float64) domain.Source {
	return domain.Source{
		TextChunk: domain.TextChunk{
			ID:       name + "-0",
			Content:  content,
			Metadata: domain.ChunkMetadata{DocumentID: name, DocumentName: name + ".pdf"},
		},
		Similarity: sim,
	}
}

func TestAnswerGenerator_BuildContext(t *testing.T) {
	g := NewAnswerGenerator(nil, DefaultAnswerConfig())

	ctx := g.BuildContext([]domain.Source{
		source("alpha", "Alpha content.", 0.9),
		source("beta", "Beta content.", 0.8),
	})

	want := "Relevant document excerpts:\n\n" +
		"Source 1 (from alpha.pdf):\nAlpha content.\n\n" +
		"Source 2 (from beta.pdf):\nBeta content."
	assert.Equal(t, want, ctx)
	assert.Empty(t, g.BuildContext(nil))
}

func TestAnswerGenerator_BuildContextTruncates(t *testing.T) {
	cfg := DefaultAnswerConfig()
	cfg.MaxContextLength = 100
	g := NewAnswerGenerator(nil, cfg)

	ctx := g.BuildContext([]domain.Source{
		source("a", strings.Repeat("é", 300), 0.9),
		source("b", "never reached", 0.8),
	})

	assert.Equal(t, 100, utf8.RuneCountInString(ctx))
	assert.True(t, strings.HasPrefix(ctx, "Relevant document excerpts:"))
	assert.NotContains(t, ctx, "never reached")
}

func TestAnswerGenerator_BuildPrompt(t *testing.T) {
	g := NewAnswerGenerator(nil, DefaultAnswerConfig())

	msgs := g.BuildPrompt("What is the refund window?", "Relevant document excerpts:\n\nSource 1 (from a.pdf):\n30 days")

	require.Len(t, msgs, 2)
	assert.Equal(t, openai.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "ONLY on the provided context")
	assert.Contains(t, msgs[0].Content, domain.NoInformationAnswer)
	assert.Contains(t, msgs[0].Content, "30 days")
	assert.Equal(t, openai.RoleUser, msgs[1].Role)
	assert.Equal(t, "What is the refund window?", msgs[1].Content)
}

func TestAnswerGenerator_Generate(t *testing.T) {
	client := new(MockChatClient)
	g := NewAnswerGenerator(client, DefaultAnswerConfig())
	sources := []domain.Source{source("a", "The refund window is 30 days.", 0.9)}

	client.On("GenerateAnswer", mock.Anything, mock.MatchedBy(func(msgs []openai.ChatMessage) bool {
		return len(msgs) == 2 && strings.Contains(msgs[0].Content, "The refund window is 30 days.")
	}), openai.ChatOptions{MaxTokens: 1000, Temperature: 0.1}).Return("30 days (Source 1).", nil).Once()

	answer, err := g.Generate(context.Background(), "refund window?", sources, true)

	require.NoError(t, err)
	assert.Equal(t, "30 days (Source 1).", answer)
	client.AssertExpectations(t)
}

func TestAnswerGenerator_GenerateWithoutContext(t *testing.T) {
	client := new(MockChatClient)
	g := NewAnswerGenerator(client, DefaultAnswerConfig())

	client.On("GenerateAnswer", mock.Anything, mock.MatchedBy(func(msgs []openai.ChatMessage) bool {
		return !strings.Contains(msgs[0].Content, "secret excerpt")
	}), mock.Anything).Return("ok", nil).Once()

	_, err := g.Generate(context.Background(), "q", []domain.Source{source("a", "secret excerpt", 0.9)}, false)
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestAnswerGenerator_GenerateError(t *testing.T) {
	client := new(MockChatClient)
	g := NewAnswerGenerator(client, DefaultAnswerConfig())

	client.On("GenerateAnswer", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("503")).Once()

	_, err := g.Generate(context.Background(), "q", nil, true)
	assert.Error(t, err)
}

func TestAnswerGenerator_Confidence(t *testing.T) {
	g := NewAnswerGenerator(nil, DefaultAnswerConfig())
	short := "short"
	long := strings.Repeat("x", 600)

	tests := []struct {
		name    string
		sources []domain.Source
		want    float64
	}{
		{"no sources", nil, 0},
		{"one short source", []domain.Source{source("a", short, 0.9)}, 0.2},
		{"one long source", []domain.Source{source("a", strings.Repeat("x", 1001), 0.9)}, 0.3},
		{"two short sources", []domain.Source{source("a", short, 0.9), source("b", short, 0.8)}, 0.5},
		{"two long sources", []domain.Source{source("a", long, 0.9), source("b", long, 0.8)}, 0.6},
		{"five long sources", []domain.Source{
			source("a", long, 0.9), source("b", long, 0.9), source("c", long, 0.9),
			source("d", long, 0.9), source("e", long, 0.9),
		}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Confidence(tt.sources)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}
