package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fitcheckhq/fitcheck/backend/internal/auth"
	"github.com/fitcheckhq/fitcheck/backend/internal/coach"
	"github.com/fitcheckhq/fitcheck/backend/internal/llm"
	"github.com/fitcheckhq/fitcheck/backend/internal/users"
	"github.com/fitcheckhq/fitcheck/backend/internal/workouts"
)

type memUserStore struct {
	mu    sync.Mutex
	byID  map[string]*users.User
	items []*users.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{byID: make(map[string]*users.User)}
}

func (m *memUserStore) Insert(_ context.Context, user *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.Email == user.Email {
			return users.ErrEmailTaken
		}
	}
	copied := *user
	m.byID[user.ID] = &copied
	m.items = append(m.items, &copied)
	return nil
}

func (m *memUserStore) FindByID(_ context.Context, id string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *memUserStore) FindByEmail(_ context.Context, email string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.items {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, users.ErrNotFound
}

func (m *memUserStore) FindByReferralCode(_ context.Context, code string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.items {
		if user.ReferralCode == code {
			copied := *user
			return &copied, nil
		}
	}
	return nil, users.ErrNotFound
}

func (m *memUserStore) UpdateProfile(_ context.Context, id string, goal users.FitnessGoal, level users.ActivityLevel, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return users.ErrNotFound
	}
	user.FitnessGoal = goal
	user.ActivityLevel = level
	user.UpdatedAt = updatedAt
	return nil
}

func (m *memUserStore) MarkFirstWorkoutLogged(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok || user.FirstWorkoutLogged {
		return false, nil
	}
	user.FirstWorkoutLogged = true
	return true, nil
}

func (m *memUserStore) GrantReferralReward(_ context.Context, referredUserID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[referredUserID]
	if !ok || user.ReferralRewardGranted || user.ReferredBy == "" {
		return "", false, nil
	}
	user.ReferralRewardGranted = true
	return user.ReferredBy, true, nil
}

func (m *memUserStore) IncrementSuccessfulReferrals(_ context.Context, referrerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.byID[referrerID]; ok {
		user.SuccessfulReferrals++
	}
	return nil
}

type memWorkoutStore struct {
	mu   sync.Mutex
	logs []workouts.Log
}

func (m *memWorkoutStore) Insert(_ context.Context, log *workouts.Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *log)
	return nil
}

func (m *memWorkoutStore) FindByID(_ context.Context, userID, id string) (*workouts.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, log := range m.logs {
		if log.ID == id && log.UserID == userID {
			copied := log
			return &copied, nil
		}
	}
	return nil, workouts.ErrNotFound
}

func (m *memWorkoutStore) FindInRange(_ context.Context, userID string, from, to time.Time) ([]workouts.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []workouts.Log
	for _, log := range m.logs {
		if log.UserID == userID && !log.CreatedAt.Before(from) && !log.CreatedAt.After(to) {
			found = append(found, log)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.After(found[j].CreatedAt) })
	return found, nil
}

func (m *memWorkoutStore) List(_ context.Context, userID string, limit int64) ([]workouts.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []workouts.Log
	for _, log := range m.logs {
		if log.UserID == userID {
			found = append(found, log)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.After(found[j].CreatedAt) })
	if int64(len(found)) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (m *memWorkoutStore) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for index, log := range m.logs {
		if log.ID == id && log.UserID == userID {
			m.logs = append(m.logs[:index], m.logs[index+1:]...)
			return nil
		}
	}
	return workouts.ErrNotFound
}

func (m *memWorkoutStore) ExerciseNamesInRange(_ context.Context, userID string, from, to time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var names []string
	for _, log := range m.logs {
		if log.UserID != userID || log.CreatedAt.Before(from) || log.CreatedAt.After(to) {
			continue
		}
		if !seen[log.ExerciseName] {
			seen[log.ExerciseName] = true
			names = append(names, log.ExerciseName)
		}
	}
	return names, nil
}

type memConversationStore struct {
	mu    sync.Mutex
	items map[string]*coach.Conversation
}

func newMemConversationStore() *memConversationStore {
	return &memConversationStore{items: make(map[string]*coach.Conversation)}
}

func (m *memConversationStore) Insert(_ context.Context, conversation *coach.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *conversation
	m.items[conversation.ID] = &copied
	return nil
}

func (m *memConversationStore) FindByID(_ context.Context, userID, id string) (*coach.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.items[id]
	if !ok || conversation.UserID != userID {
		return nil, coach.ErrConversationNotFound
	}
	copied := *conversation
	return &copied, nil
}

func (m *memConversationStore) AppendMessages(_ context.Context, userID, id string, messages []coach.Message, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.items[id]
	if !ok || conversation.UserID != userID {
		return coach.ErrConversationNotFound
	}
	conversation.Messages = append(conversation.Messages, messages...)
	conversation.UpdatedAt = updatedAt
	return nil
}

func (m *memConversationStore) List(_ context.Context, userID string) ([]coach.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var listed []coach.Conversation
	for _, conversation := range m.items {
		if conversation.UserID == userID {
			listed = append(listed, *conversation)
		}
	}
	return listed, nil
}

func (m *memConversationStore) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.items[id]
	if !ok || conversation.UserID != userID {
		return coach.ErrConversationNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memConversationStore) CountUserMessagesBetween(_ context.Context, userID string, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, conversation := range m.items {
		if conversation.UserID != userID {
			continue
		}
		for _, message := range conversation.Messages {
			if message.Role != coach.RoleUser {
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

type scriptedDeltaStream struct {
	deltas []string
	index  int
	err    error
}

func (s *scriptedDeltaStream) Recv() (string, error) {
	if s.index >= len(s.deltas) {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	delta := s.deltas[s.index]
	s.index++
	return delta, nil
}

func (s *scriptedDeltaStream) Close() error { return nil }

type scriptedStreamer struct {
	deltas    []string
	streamErr error
	messages  []llm.Message
}

func (s *scriptedStreamer) StreamChat(_ context.Context, messages []llm.Message) (coach.DeltaStream, error) {
	s.messages = messages
	return &scriptedDeltaStream{deltas: s.deltas, err: s.streamErr}, nil
}

type scriptedCompleter struct {
	answer string
}

func (s *scriptedCompleter) Complete(context.Context, string, string) (string, error) {
	return s.answer, nil
}

type serverFixture struct {
	handler       http.Handler
	userStore     *memUserStore
	workoutStore  *memWorkoutStore
	conversations *memConversationStore
	streamer      *scriptedStreamer
	tokens        *auth.TokenIssuer
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	userStore := newMemUserStore()
	referralService := mustReferralService(t, userStore)
	userService := mustUserService(t, userStore, referralService)

	workoutStore := &memWorkoutStore{}
	workoutService, err := workouts.NewService(workouts.ServiceConfig{
		Store:      workoutStore,
		Referrals:  referralService,
		IDProvider: workouts.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build workout service: %v", err)
	}

	conversations := newMemConversationStore()
	streamer := &scriptedStreamer{deltas: []string{"stay ", "consistent"}}
	coachService, err := coach.NewService(coach.ServiceConfig{
		Users:         userStore,
		Logs:          workoutStore,
		Conversations: conversations,
		Completer:     &scriptedCompleter{answer: "GENERAL_COACHING"},
		Streamer:      streamer,
		Quota:         coach.QuotaConfig{WeeklyBaseRequests: 10, BonusPerReferral: 5, MaxReferrals: 5},
		HistoryLimit:  20,
		IDProvider:    coach.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build coach service: %v", err)
	}

	tokens := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "fitcheck-auth",
		Audience:      "fitcheck-api",
		TokenTTL:      time.Hour,
	})

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager:    tokens,
		UserService:     userService,
		ReferralService: referralService,
		WorkoutService:  workoutService,
		CoachService:    coachService,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &serverFixture{
		handler:       handler,
		userStore:     userStore,
		workoutStore:  workoutStore,
		conversations: conversations,
		streamer:      streamer,
		tokens:        tokens,
	}
}

func mustReferralService(t *testing.T, store users.Store) *users.ReferralService {
	t.Helper()
	service, err := users.NewReferralService(users.ReferralServiceConfig{
		Store:           store,
		FrontendBaseURL: "https://fitcheck.example",
	})
	if err != nil {
		t.Fatalf("failed to build referral service: %v", err)
	}
	return service
}

func mustUserService(t *testing.T, store users.Store, referrals *users.ReferralService) *users.Service {
	t.Helper()
	service, err := users.NewService(users.ServiceConfig{Store: store, Referrals: referrals})
	if err != nil {
		t.Fatalf("failed to build user service: %v", err)
	}
	return service
}

func (f *serverFixture) registerUser(t *testing.T, email string) (userID, token string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"display_name":"Tester"}`, email)
	recorder := f.do(t, http.MethodPost, "/auth/register", body, "")
	if recorder.Code != http.StatusCreated {
		t.Fatalf("registration failed with status %d: %s", recorder.Code, recorder.Body.String())
	}
	var response struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Token struct {
			AccessToken string `json:"access_token"`
		} `json:"token"`
	}
	mustDecode(t, recorder, &response)
	return response.User.ID, response.Token.AccessToken
}

func (f *serverFixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func mustDecode(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}
