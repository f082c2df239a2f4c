//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationRepository_ListMessagesByDocument(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	docs := NewDocumentRepository(pool)
	repo := NewConversationRepository(pool)
	doc := createTestDocument(ctx, t, docs, "handbook.pdf", time.Now())

	now := time.Now().UTC().Truncate(time.Microsecond)
	for i, q := range []string{"first?", "second?"} {
		at := now.Add(time.Duration(i) * time.Minute)
		c := &domain.Conversation{ID: uuid.NewString(), DocumentID: doc.ID, Title: q, CreatedAt: at}
		require.NoError(t, repo.Create(ctx, c))
		require.NoError(t, repo.AddMessage(ctx, &domain.Message{
			ID: uuid.NewString(), ConversationID: c.ID, Role: domain.MessageRoleAssistant, Content: "answer to " + q, CreatedAt: at,
		}))
		require.NoError(t, repo.AddMessage(ctx, &domain.Message{
			ID: uuid.NewString(), ConversationID: c.ID, Role: domain.MessageRoleUser, Content: q, CreatedAt: at,
		}))
	}

	messages, err := repo.ListMessagesByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, "second?", messages[0].Content)
	assert.Equal(t, domain.MessageRoleUser, messages[0].Role)
	assert.Equal(t, "answer to second?", messages[1].Content)
	assert.Equal(t, "first?", messages[2].Content)
	assert.Equal(t, domain.MessageRoleAssistant, messages[3].Role)

	require.NoError(t, docs.Delete(ctx, doc.ID))
	messages, err = repo.ListMessagesByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestConversationRepository_TxRollback(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	doc := createTestDocument(ctx, t, NewDocumentRepository(pool), "handbook.pdf", time.Now())

	boom := errors.New("boom")
	err := NewTxRunner(pool).WithTx(ctx, func(repos service.TxRepositories) error {
		c := &domain.Conversation{ID: uuid.NewString(), DocumentID: doc.ID, Title: "q", CreatedAt: time.Now()}
		require.NoError(t, repos.Conversations().Create(ctx, c))
		require.NoError(t, repos.Conversations().AddMessage(ctx, &domain.Message{
			ID: uuid.NewString(), ConversationID: c.ID, Role: domain.MessageRoleUser, Content: "q", CreatedAt: c.CreatedAt,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	messages, err := NewConversationRepository(pool).ListMessagesByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
