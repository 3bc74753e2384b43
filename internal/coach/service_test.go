package coach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fitcheckhq/fitcheck/backend/internal/llm"
	"github.com/fitcheckhq/fitcheck/backend/internal/users"
)

type fakeUsers struct {
	user *users.User
	err  error
}

func (f *fakeUsers) FindByID(context.Context, string) (*users.User, error) {
	return f.user, f.err
}

type memoryConversations struct {
	mu    sync.Mutex
	items map[string]*Conversation
}

func newMemoryConversations() *memoryConversations {
	return &memoryConversations{items: make(map[string]*Conversation)}
}

func (m *memoryConversations) Insert(_ context.Context, conversation *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *conversation
	m.items[conversation.ID] = &copied
	return nil
}

func (m *memoryConversations) FindByID(_ context.Context, userID, id string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.items[id]
	if !ok || conversation.UserID != userID {
		return nil, ErrConversationNotFound
	}
	copied := *conversation
	return &copied, nil
}

func (m *memoryConversations) AppendMessages(_ context.Context, userID, id string, messages []Message, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.items[id]
	if !ok || conversation.UserID != userID {
		return ErrConversationNotFound
	}
	conversation.Messages = append(conversation.Messages, messages...)
	conversation.UpdatedAt = updatedAt
	return nil
}

func (m *memoryConversations) List(_ context.Context, userID string) ([]Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var listed []Conversation
	for _, conversation := range m.items {
		if conversation.UserID == userID {
			listed = append(listed, *conversation)
		}
	}
	return listed, nil
}

func (m *memoryConversations) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.items[id]
	if !ok || conversation.UserID != userID {
		return ErrConversationNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memoryConversations) CountUserMessagesBetween(_ context.Context, userID string, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, conversation := range m.items {
		if conversation.UserID != userID {
			continue
		}
		for _, message := range conversation.Messages {
			if message.Role != RoleUser {
				continue
			}
			if message.CreatedAt.Before(from) || message.CreatedAt.After(to) {
				continue
			}
			count++
		}
	}
	return count, nil
}

type memoryAdvice struct {
	mu      sync.Mutex
	entries []Advice
}

func (m *memoryAdvice) Insert(_ context.Context, advice *Advice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *advice)
	return nil
}

func (m *memoryAdvice) FindRecent(_ context.Context, userID, exerciseName string, limit int64) ([]Advice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []Advice
	for _, entry := range m.entries {
		if entry.UserID != userID {
			continue
		}
		if exerciseName != "" && entry.ExerciseName != exerciseName {
			continue
		}
		found = append(found, entry)
		if int64(len(found)) == limit {
			break
		}
	}
	return found, nil
}

type scriptedStream struct {
	deltas []string
	index  int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.index >= len(s.deltas) {
		return "", io.EOF
	}
	delta := s.deltas[s.index]
	s.index++
	return delta, nil
}

func (s *scriptedStream) Close() error { return nil }

type stubStreamer struct {
	deltas   []string
	err      error
	calls    int
	messages []llm.Message
}

func (s *stubStreamer) StreamChat(_ context.Context, messages []llm.Message) (DeltaStream, error) {
	s.calls++
	s.messages = messages
	if s.err != nil {
		return nil, s.err
	}
	return &scriptedStream{deltas: s.deltas}, nil
}

type recordingSink struct {
	intents  []Intent
	deltas   []string
	deltaErr error
}

func (r *recordingSink) Intent(intent Intent) error {
	r.intents = append(r.intents, intent)
	return nil
}

func (r *recordingSink) Delta(text string) error {
	if r.deltaErr != nil {
		return r.deltaErr
	}
	r.deltas = append(r.deltas, text)
	return nil
}

type sequentialIDs struct {
	next int
	err  error
}

func (s *sequentialIDs) NewID() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.next++
	return fmt.Sprintf("id-%d", s.next), nil
}

type serviceFixture struct {
	service       *Service
	users         *fakeUsers
	logs          *stubLogSource
	conversations *memoryConversations
	advice        *memoryAdvice
	streamer      *stubStreamer
	completer     *stubCompleter
}

func newServiceFixture(t *testing.T, mutate func(*ServiceConfig)) *serviceFixture {
	t.Helper()
	fixture := &serviceFixture{
		users:         &fakeUsers{user: &users.User{ID: "user-1", ReferralCode: "a1b2c3d4"}},
		logs:          &stubLogSource{},
		conversations: newMemoryConversations(),
		advice:        &memoryAdvice{},
		streamer:      &stubStreamer{deltas: []string{"keep ", "pushing"}},
		completer:     &stubCompleter{answer: string(IntentGeneralCoaching)},
	}
	cfg := ServiceConfig{
		Users:         fixture.users,
		Logs:          fixture.logs,
		Conversations: fixture.conversations,
		Advice:        fixture.advice,
		Completer:     fixture.completer,
		Streamer:      fixture.streamer,
		Quota:         QuotaConfig{WeeklyBaseRequests: 10, BonusPerReferral: 5, MaxReferrals: 5},
		HistoryLimit:  20,
		IDProvider:    &sequentialIDs{},
		Clock:         fixedClock(time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	fixture.service = service
	return fixture
}

func TestChatCreatesConversationAndStreams(t *testing.T) {
	fixture := newServiceFixture(t, nil)
	sink := &recordingSink{}

	conversationID, err := fixture.service.Chat(context.Background(), ChatRequest{
		UserID:  "user-1",
		Message: "I need a push to train today",
		Intent:  intentPtr(IntentMotivation),
	}, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conversationID == "" {
		t.Fatalf("expected a conversation id")
	}
	if len(sink.intents) != 1 || sink.intents[0] != IntentMotivation {
		t.Fatalf("expected one intent event, got %v", sink.intents)
	}
	if got := strings.Join(sink.deltas, ""); got != "keep pushing" {
		t.Fatalf("expected the streamed deltas forwarded, got %q", got)
	}

	stored, err := fixture.conversations.FindByID(context.Background(), "user-1", conversationID)
	if err != nil {
		t.Fatalf("expected the conversation persisted: %v", err)
	}
	if stored.Title != "I need a push to train today" {
		t.Fatalf("unexpected title %q", stored.Title)
	}
	if len(stored.Messages) != 2 {
		t.Fatalf("expected a user/coach message pair, got %d messages", len(stored.Messages))
	}
	if stored.Messages[0].Role != RoleUser || stored.Messages[1].Role != RoleAssistant {
		t.Fatalf("unexpected message roles: %+v", stored.Messages)
	}
	if stored.Messages[1].Content != "keep pushing" {
		t.Fatalf("expected the accumulated reply persisted, got %q", stored.Messages[1].Content)
	}
	if stored.Messages[0].Intent != IntentMotivation {
		t.Fatalf("expected the resolved intent stored on the message")
	}
}

func TestChatAppendsToExistingConversation(t *testing.T) {
	fixture := newServiceFixture(t, nil)
	now := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	existing := &Conversation{
		ID:     "conv-1",
		UserID: "user-1",
		Title:  "training chat",
		Messages: []Message{
			{Role: RoleUser, Content: "earlier question", CreatedAt: now},
			{Role: RoleAssistant, Content: "earlier answer", CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := fixture.conversations.Insert(context.Background(), existing); err != nil {
		t.Fatalf("seeding conversation: %v", err)
	}

	sink := &recordingSink{}
	conversationID, err := fixture.service.Chat(context.Background(), ChatRequest{
		UserID:         "user-1",
		Message:        "what about rest days?",
		Intent:         intentPtr(IntentGeneralCoaching),
		ConversationID: "conv-1",
	}, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conversationID != "conv-1" {
		t.Fatalf("expected the existing conversation id, got %q", conversationID)
	}

	var sawHistory bool
	for _, message := range fixture.streamer.messages {
		if message.Content == "earlier question" {
			sawHistory = true
		}
	}
	if !sawHistory {
		t.Fatalf("expected the stored history replayed into the prompt")
	}

	stored, _ := fixture.conversations.FindByID(context.Background(), "user-1", "conv-1")
	if len(stored.Messages) != 4 {
		t.Fatalf("expected the pair appended, got %d messages", len(stored.Messages))
	}
}

func TestChatRejectsExhaustedQuota(t *testing.T) {
	fixture := newServiceFixture(t, func(cfg *ServiceConfig) {
		cfg.Quota = QuotaConfig{WeeklyBaseRequests: 1}
	})
	now := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)
	spent := &Conversation{
		ID:     "conv-1",
		UserID: "user-1",
		Messages: []Message{
			{Role: RoleUser, Content: "used up", CreatedAt: now},
			{Role: RoleAssistant, Content: "reply", CreatedAt: now},
		},
	}
	if err := fixture.conversations.Insert(context.Background(), spent); err != nil {
		t.Fatalf("seeding conversation: %v", err)
	}

	_, err := fixture.service.Chat(context.Background(), ChatRequest{
		UserID:  "user-1",
		Message: "one more?",
		Intent:  intentPtr(IntentMotivation),
	}, &recordingSink{})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if fixture.streamer.calls != 0 {
		t.Fatalf("expected no completion call after the quota check")
	}
}

func TestChatQuotaExhaustsOnLongConversations(t *testing.T) {
	fixture := newServiceFixture(t, func(cfg *ServiceConfig) {
		cfg.Quota = QuotaConfig{WeeklyBaseRequests: 5}
		cfg.HistoryLimit = 4
	})

	conversationID := ""
	accepted, rejected := 0, 0
	for i := 0; i < 10; i++ {
		id, err := fixture.service.Chat(context.Background(), ChatRequest{
			UserID:         "user-1",
			Message:        "what should I train next?",
			Intent:         intentPtr(IntentGeneralCoaching),
			ConversationID: conversationID,
		}, &recordingSink{})
		switch {
		case err == nil:
			accepted++
			conversationID = id
		case errors.Is(err, ErrQuotaExceeded):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if accepted != 5 || rejected != 5 {
		t.Fatalf("expected 5 accepted and 5 rejected chats, got %d and %d", accepted, rejected)
	}

	stored, err := fixture.conversations.FindByID(context.Background(), "user-1", conversationID)
	if err != nil {
		t.Fatalf("expected the conversation persisted: %v", err)
	}
	if len(stored.Messages) != 10 {
		t.Fatalf("expected every exchange retained in the thread, got %d messages", len(stored.Messages))
	}
	// 1 system + at most HistoryLimit replayed messages + the user message.
	if len(fixture.streamer.messages) > 6 {
		t.Fatalf("expected the prompt replay bounded by the history limit, got %d messages", len(fixture.streamer.messages))
	}
}

func TestChatPioneerBypassesQuota(t *testing.T) {
	fixture := newServiceFixture(t, func(cfg *ServiceConfig) {
		cfg.Quota = QuotaConfig{WeeklyBaseRequests: 0}
	})
	fixture.users.user.Pioneer = true

	if _, err := fixture.service.Chat(context.Background(), ChatRequest{
		UserID:  "user-1",
		Message: "still here",
		Intent:  intentPtr(IntentMotivation),
	}, &recordingSink{}); err != nil {
		t.Fatalf("expected a pioneer chat to proceed, got %v", err)
	}
}

func TestChatSinkFailureAbortsWithoutPersisting(t *testing.T) {
	fixture := newServiceFixture(t, nil)
	sink := &recordingSink{deltaErr: errors.New("client gone")}

	_, err := fixture.service.Chat(context.Background(), ChatRequest{
		UserID:  "user-1",
		Message: "hello?",
		Intent:  intentPtr(IntentMotivation),
	}, sink)
	if err == nil {
		t.Fatalf("expected the sink error to surface")
	}
	listed, _ := fixture.conversations.List(context.Background(), "user-1")
	if len(listed) != 0 {
		t.Fatalf("expected nothing persisted after an aborted stream, got %d conversations", len(listed))
	}
}

func TestChatPersistsAdviceWhenEnabledAndMatched(t *testing.T) {
	fixture := newServiceFixture(t, func(cfg *ServiceConfig) {
		cfg.PersistAdvice = true
	})
	fixture.logs.names = []string{"Bench Press"}

	_, err := fixture.service.Chat(context.Background(), ChatRequest{
		UserID:  "user-1",
		Message: "is my bench press progressing?",
		Intent:  intentPtr(IntentProgressCheck),
	}, &recordingSink{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fixture.advice.entries) != 1 {
		t.Fatalf("expected one advice entry, got %d", len(fixture.advice.entries))
	}
	entry := fixture.advice.entries[0]
	if entry.ExerciseName != "Bench Press" || entry.Advice != "keep pushing" {
		t.Fatalf("unexpected advice entry: %+v", entry)
	}
}

func TestChatAdvicePersistenceOffByDefault(t *testing.T) {
	fixture := newServiceFixture(t, nil)
	fixture.logs.names = []string{"Bench Press"}

	if _, err := fixture.service.Chat(context.Background(), ChatRequest{
		UserID:  "user-1",
		Message: "is my bench press progressing?",
		Intent:  intentPtr(IntentProgressCheck),
	}, &recordingSink{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fixture.advice.entries) != 0 {
		t.Fatalf("expected no advice persisted with the flag off")
	}
}

func TestChatTruncatesLongTitles(t *testing.T) {
	fixture := newServiceFixture(t, nil)
	long := strings.Repeat("train hard ", 12)

	conversationID, err := fixture.service.Chat(context.Background(), ChatRequest{
		UserID:  "user-1",
		Message: long,
		Intent:  intentPtr(IntentMotivation),
	}, &recordingSink{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := fixture.conversations.FindByID(context.Background(), "user-1", conversationID)
	if got := len([]rune(stored.Title)); got > maxTitleLength+1 {
		t.Fatalf("expected the title truncated, got %d runes", got)
	}
	if !strings.HasSuffix(stored.Title, "…") {
		t.Fatalf("expected a truncation marker, got %q", stored.Title)
	}
}

func TestQuotaReportsWeeklyUsage(t *testing.T) {
	fixture := newServiceFixture(t, nil)
	now := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)
	lastWeek := now.AddDate(0, 0, -7)
	seeded := &Conversation{
		ID:     "conv-1",
		UserID: "user-1",
		Messages: []Message{
			{Role: RoleUser, Content: "this week", CreatedAt: now},
			{Role: RoleAssistant, Content: "reply", CreatedAt: now},
			{Role: RoleUser, Content: "last week", CreatedAt: lastWeek},
		},
	}
	if err := fixture.conversations.Insert(context.Background(), seeded); err != nil {
		t.Fatalf("seeding conversation: %v", err)
	}

	quota, err := fixture.service.Quota(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quota.UsedThisWeek != 1 {
		t.Fatalf("expected only this week's user messages counted, got %d", quota.UsedThisWeek)
	}
	if quota.AllowedThisWeek != 10 {
		t.Fatalf("expected the base allowance, got %d", quota.AllowedThisWeek)
	}
	if quota.ReferralCode != "a1b2c3d4" {
		t.Fatalf("expected the referral code surfaced, got %q", quota.ReferralCode)
	}
}
