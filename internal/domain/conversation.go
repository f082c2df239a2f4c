package domain

import (
	"time"
	"unicode/utf8"
)

// MessageRole says who wrote a message
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ConversationTitleLimit is how many characters of the question a title keeps.
const ConversationTitleLimit = 100

// Conversation groups the messages of one question asked about a document.
type Conversation struct {
	ID         string
	DocumentID string
	Title      string
	CreatedAt  time.Time
}

// Message is one turn of a conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	CreatedAt      time.Time
}

// ConversationTitle shortens question to a title, marking a cut with "...".
func ConversationTitle(question string) string {
	if utf8.RuneCountInString(question) <= ConversationTitleLimit {
		return question
	}
	return string([]rune(question)[:ConversationTitleLimit]) + "..."
}
