package coach

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Message roles stored on conversations.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const maxTitleLength = 48

// ErrConversationNotFound indicates the conversation does not exist for the user.
var ErrConversationNotFound = errors.New("coach: conversation not found")

// Message is one stored conversation entry.
type Message struct {
	Role      string    `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	Intent    Intent    `bson:"intent,omitempty" json:"intent,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Conversation is a persisted coach chat thread. It grows by appending
// user/coach message pairs; only the replay into the prompt is bounded, the
// stored thread keeps every message.
type Conversation struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"userId" json:"-"`
	Title     string    `bson:"title" json:"title"`
	Messages  []Message `bson:"messages" json:"messages"`
	Summary   string    `bson:"summary,omitempty" json:"summary,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// ConversationStore is the persistence surface for coach conversations.
type ConversationStore interface {
	Insert(ctx context.Context, conversation *Conversation) error
	FindByID(ctx context.Context, userID, id string) (*Conversation, error)
	// AppendMessages appends to the thread. Stored messages are never
	// truncated; they feed the weekly quota count.
	AppendMessages(ctx context.Context, userID, id string, messages []Message, updatedAt time.Time) error
	List(ctx context.Context, userID string) ([]Conversation, error)
	Delete(ctx context.Context, userID, id string) error
	// CountUserMessagesBetween counts user-role messages sent in [from, to],
	// feeding the weekly quota.
	CountUserMessagesBetween(ctx context.Context, userID string, from, to time.Time) (int, error)
}

// titleFromMessage derives a conversation title from its opening message.
func titleFromMessage(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxTitleLength])) + "…"
}

// historyPairs converts the tail of a stored thread into prompt history,
// keeping at most pairs user/coach exchanges.
func historyPairs(messages []Message, pairs int) []HistoryMessage {
	if pairs <= 0 || len(messages) == 0 {
		return nil
	}
	keep := pairs * 2
	if len(messages) > keep {
		messages = messages[len(messages)-keep:]
	}
	history := make([]HistoryMessage, 0, len(messages))
	for _, message := range messages {
		history = append(history, HistoryMessage{Role: message.Role, Content: message.Content})
	}
	return history
}
