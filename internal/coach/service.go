package coach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fitcheckhq/fitcheck/backend/internal/llm"
	"github.com/fitcheckhq/fitcheck/backend/internal/users"
	"github.com/fitcheckhq/fitcheck/backend/internal/workouts"
)

// profileLookbackDays is the fixed window feeding profile-level RPE and
// plateau derivation, independent of the intent's summary depth.
const profileLookbackDays = 28

var (
	errMissingDeps = errors.New("coach: missing dependencies")
	// ErrQuotaExceeded indicates the weekly coach-chat budget is spent.
	ErrQuotaExceeded = errors.New("coach: weekly quota exceeded")
)

// Completer performs one-shot completions (classification, extraction).
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// DeltaStream yields text increments of a streamed completion; it ends with
// io.EOF.
type DeltaStream interface {
	Recv() (string, error)
	Close() error
}

// Streamer opens streaming chat completions.
type Streamer interface {
	StreamChat(ctx context.Context, messages []llm.Message) (DeltaStream, error)
}

// UserSource resolves stored users.
type UserSource interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
}

// LogSource reads workout logs.
type LogSource interface {
	FindInRange(ctx context.Context, userID string, from, to time.Time) ([]workouts.Log, error)
	ExerciseNamesInRange(ctx context.Context, userID string, from, to time.Time) ([]string, error)
}

// IDProvider issues identifiers for new conversations and advice entries.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the coach service dependencies.
type ServiceConfig struct {
	Users         UserSource
	Logs          LogSource
	Conversations ConversationStore
	Advice        AdviceStore
	Completer     Completer
	Streamer      Streamer
	Quota         QuotaConfig
	// HistoryLimit bounds how many prior messages are replayed into the
	// prompt. The stored thread itself is unbounded.
	HistoryLimit int
	// PersistAdvice enables storing the coach reply as advice. Off by
	// default pending product decision.
	PersistAdvice bool
	IDProvider    IDProvider
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Service orchestrates a coach chat request: intent resolution, exercise
// matching, context assembly, streaming, and persistence.
type Service struct {
	users         UserSource
	logs          LogSource
	conversations ConversationStore
	advice        AdviceStore
	completer     Completer
	streamer      Streamer
	quota         QuotaConfig
	historyLimit  int
	persistAdvice bool
	ids           IDProvider
	clock         func() time.Time
	logger        *zap.Logger

	resolver *Resolver
	matcher  *Matcher
}

// NewService constructs the coach service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Users == nil || cfg.Logs == nil || cfg.Conversations == nil ||
		cfg.Completer == nil || cfg.Streamer == nil || cfg.IDProvider == nil {
		return nil, errMissingDeps
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &Service{
		users:         cfg.Users,
		logs:          cfg.Logs,
		conversations: cfg.Conversations,
		advice:        cfg.Advice,
		completer:     cfg.Completer,
		streamer:      cfg.Streamer,
		quota:         cfg.Quota,
		historyLimit:  historyLimit,
		persistAdvice: cfg.PersistAdvice,
		ids:           cfg.IDProvider,
		clock:         clock,
		logger:        logger,
		resolver:      NewResolver(cfg.Completer, cfg.Logs, clock, logger),
		matcher:       NewMatcher(cfg.Completer, logger),
	}, nil
}

// Quota derives the user's current weekly coach-chat budget.
func (s *Service) Quota(ctx context.Context, userID string) (Quota, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return Quota{}, err
	}
	weekStart, weekEnd := WeekBounds(s.clock())
	used, err := s.conversations.CountUserMessagesBetween(ctx, userID, weekStart, weekEnd)
	if err != nil {
		return Quota{}, err
	}
	return ComputeQuota(s.quota, user, used), nil
}

// ChatRequest carries one validated coach chat request.
type ChatRequest struct {
	UserID         string
	Message        string
	Intent         *Intent
	ConversationID string
	// History is caller-supplied context used only when no stored
	// conversation is referenced.
	History []HistoryMessage
}

// ChatSink receives the streamed response events in order: one Intent call,
// then zero or more Delta calls.
type ChatSink interface {
	Intent(intent Intent) error
	Delta(text string) error
}

// Chat runs the full coach pipeline and returns the conversation id the
// exchange was persisted under.
func (s *Service) Chat(ctx context.Context, req ChatRequest, sink ChatSink) (string, error) {
	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return "", err
	}

	weekStart, weekEnd := WeekBounds(s.clock())
	used, err := s.conversations.CountUserMessagesBetween(ctx, req.UserID, weekStart, weekEnd)
	if err != nil {
		return "", err
	}
	if ComputeQuota(s.quota, user, used).Exhausted() {
		return "", ErrQuotaExceeded
	}

	resolution, err := s.resolver.Resolve(ctx, req.UserID, req.Message, req.Intent)
	if err != nil {
		return "", err
	}
	intentCfg := resolution.Intent.Config()

	var conversation *Conversation
	if req.ConversationID != "" {
		conversation, err = s.conversations.FindByID(ctx, req.UserID, req.ConversationID)
		if err != nil {
			return "", err
		}
	}

	if err := sink.Intent(resolution.Intent); err != nil {
		return "", err
	}

	replay := intentCfg.HistoryPairs * 2
	if replay > s.historyLimit {
		replay = s.historyLimit
	}
	history := req.History
	if conversation != nil {
		history = historyPairs(conversation.Messages, replay/2)
	} else if len(history) > replay {
		history = history[len(history)-replay:]
	}

	match := s.matchExercise(ctx, req.UserID, req.Message, resolution.Intent, intentCfg)

	assembled, err := s.assembleContext(ctx, user, resolution, intentCfg, match, len(history) == 0)
	if err != nil {
		return "", err
	}

	messages, err := assembled.BuildMessages(history, resolution.SystemNote, req.Message)
	if err != nil {
		return "", err
	}

	reply, err := s.streamReply(ctx, messages, sink)
	if err != nil {
		return "", err
	}

	conversationID, err := s.persistExchange(ctx, req, conversation, resolution.Intent, reply)
	if err != nil {
		return "", err
	}

	if s.persistAdvice && s.advice != nil && match.Matched {
		s.saveAdvice(ctx, req.UserID, match.Exercise, reply, resolution.Intent)
	}
	return conversationID, nil
}

// matchExercise runs the two-stage matcher when the intent filters by
// exercise. The known list is drawn from the intent's summary window.
func (s *Service) matchExercise(ctx context.Context, userID, message string, intent Intent, cfg ContextConfig) MatchResult {
	if !cfg.ExerciseFilter {
		return MatchResult{Method: MatchMethodNone}
	}
	from, to := s.summaryWindow(cfg)
	known, err := s.logs.ExerciseNamesInRange(ctx, userID, from, to)
	if err != nil {
		s.logger.Warn("known exercise lookup failed", zap.Error(err), zap.String("intent", string(intent)))
		return MatchResult{Method: MatchMethodNone}
	}
	return s.matcher.Match(ctx, message, known)
}

// assembleContext builds the structured context. Profile, workout summary,
// and recent advice are fetched concurrently: each produces an independent
// field, so completion order does not affect the result.
func (s *Service) assembleContext(ctx context.Context, user *users.User, resolution Resolution, cfg ContextConfig, match MatchResult, isNew bool) (Context, error) {
	assembled := Context{
		Intent:            resolution.Intent,
		IsNewConversation: isNew,
	}
	if match.Matched {
		assembled.MatchedExercise = match.Exercise
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		profile, err := s.buildProfile(groupCtx, user, cfg.FullProfile)
		if err != nil {
			return err
		}
		assembled.Profile = profile
		return nil
	})

	if cfg.NeedsSummary {
		group.Go(func() error {
			summary, err := s.buildSummary(groupCtx, user.ID, resolution.Intent, cfg, match)
			if err != nil {
				return err
			}
			assembled.WorkoutSummary = summary
			return nil
		})
	}

	if s.advice != nil {
		group.Go(func() error {
			// Advice failures degrade the context instead of failing the chat.
			snippets, err := s.fetchAdvice(groupCtx, user.ID, match)
			if err != nil {
				s.logger.Warn("advice fetch failed", zap.Error(err))
				return nil
			}
			assembled.RecentAdvice = snippets
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return Context{}, err
	}
	return assembled, nil
}

func (s *Service) buildProfile(ctx context.Context, user *users.User, full bool) (*Profile, error) {
	if !full {
		profile := BuildProfile(user, nil, false)
		return &profile, nil
	}
	to := s.clock().UTC()
	from := to.AddDate(0, 0, -profileLookbackDays)
	logs, err := s.logs.FindInRange(ctx, user.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("coach: profile logs: %w", err)
	}
	profile := BuildProfile(user, BuildSummaries(logs), true)
	return &profile, nil
}

// buildSummary aggregates logs over the intent's window. For session
// feedback the logs are restricted to exercises trained today, still across
// the full window; a matched exercise restricts the summary further.
func (s *Service) buildSummary(ctx context.Context, userID string, intent Intent, cfg ContextConfig, match MatchResult) ([]ExerciseSummary, error) {
	from, to := s.summaryWindow(cfg)
	logs, err := s.logs.FindInRange(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("coach: summary logs: %w", err)
	}

	if intent == IntentSessionFeedback {
		dayStart, dayEnd := dayBounds(s.clock())
		trainedToday, err := s.logs.ExerciseNamesInRange(ctx, userID, dayStart, dayEnd)
		if err != nil {
			return nil, fmt.Errorf("coach: today's exercises: %w", err)
		}
		logs = filterLogsByExercises(logs, trainedToday)
	}
	if cfg.ExerciseFilter && match.Matched {
		logs = filterLogsByExercises(logs, []string{match.Exercise})
	}
	return BuildSummaries(logs), nil
}

func (s *Service) summaryWindow(cfg ContextConfig) (time.Time, time.Time) {
	to := s.clock().UTC()
	depth := cfg.SummaryDepthDays
	if depth <= 0 {
		depth = 14
	}
	return to.AddDate(0, 0, -depth), to
}

func (s *Service) fetchAdvice(ctx context.Context, userID string, match MatchResult) ([]AdviceSnippet, error) {
	exercise := ""
	if match.Matched {
		exercise = match.Exercise
	}
	entries, err := s.advice.FindRecent(ctx, userID, exercise, maxRecentAdvice)
	if err != nil {
		return nil, err
	}
	snippets := make([]AdviceSnippet, 0, len(entries))
	for _, entry := range entries {
		snippets = append(snippets, AdviceSnippet{
			Exercise: entry.ExerciseName,
			Advice:   entry.Advice,
			Given:    entry.CreatedAt.UTC().Format(time.DateOnly),
		})
	}
	return snippets, nil
}

// streamReply consumes the completion stream, forwarding each delta to the
// sink while accumulating the full reply for persistence.
func (s *Service) streamReply(ctx context.Context, messages []llm.Message, sink ChatSink) (string, error) {
	stream, err := s.streamer.StreamChat(ctx, messages)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if err := sink.Delta(delta); err != nil {
			// The consumer is gone; stop pulling from upstream.
			return "", err
		}
		reply.WriteString(delta)
	}
	return reply.String(), nil
}

func (s *Service) persistExchange(ctx context.Context, req ChatRequest, conversation *Conversation, intent Intent, reply string) (string, error) {
	now := s.clock().UTC()
	pair := []Message{
		{Role: RoleUser, Content: req.Message, Intent: intent, CreatedAt: now},
		{Role: RoleAssistant, Content: reply, Intent: intent, CreatedAt: now},
	}

	if conversation != nil {
		if err := s.conversations.AppendMessages(ctx, req.UserID, conversation.ID, pair, now); err != nil {
			return "", err
		}
		return conversation.ID, nil
	}

	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("coach: generate conversation id: %w", err)
	}
	created := &Conversation{
		ID:        id,
		UserID:    req.UserID,
		Title:     titleFromMessage(req.Message),
		Messages:  pair,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.conversations.Insert(ctx, created); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Service) saveAdvice(ctx context.Context, userID, exercise, reply string, intent Intent) {
	id, err := s.ids.NewID()
	if err != nil {
		s.logger.Warn("advice id generation failed", zap.Error(err))
		return
	}
	entry := &Advice{
		ID:           id,
		UserID:       userID,
		ExerciseName: exercise,
		Advice:       reply,
		Intent:       intent,
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.advice.Insert(ctx, entry); err != nil {
		s.logger.Warn("advice persistence failed", zap.Error(err))
	}
}

// Conversations lists the user's chat threads, newest activity first.
func (s *Service) Conversations(ctx context.Context, userID string) ([]Conversation, error) {
	return s.conversations.List(ctx, userID)
}

// Conversation returns one full chat thread.
func (s *Service) Conversation(ctx context.Context, userID, id string) (*Conversation, error) {
	return s.conversations.FindByID(ctx, userID, id)
}

// DeleteConversation removes one chat thread.
func (s *Service) DeleteConversation(ctx context.Context, userID, id string) error {
	return s.conversations.Delete(ctx, userID, id)
}
