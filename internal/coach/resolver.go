package coach

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const classifyPrompt = `You are an intent classifier for a fitness coaching assistant.
Classify the user's message into exactly one of these labels:
NEXT_WORKOUT, SESSION_FEEDBACK, PAST_SESSION_FEEDBACK, PROGRESS_CHECK, PLATEAU_HELP, MOTIVATION, GENERAL_COACHING.
Respond with the label only.`

const downgradeNote = "The user asked for feedback on today's session, but no workout " +
	"is logged for today. Briefly explain that, then discuss their most recent past session instead."

// Resolution is the outcome of intent resolution for one chat request.
type Resolution struct {
	Intent Intent
	// Downgraded marks the silent SESSION_FEEDBACK -> PAST_SESSION_FEEDBACK
	// substitution applied when no logs exist for the current UTC day.
	Downgraded bool
	// SystemNote carries the continuity note injected into the prompt when
	// the intent was downgraded.
	SystemNote string
}

// Resolver maps a free-text message to an intent. A supplied intent is
// trusted verbatim; otherwise classification is delegated to the completion
// API with a deterministic fallback to general coaching.
type Resolver struct {
	completer Completer
	logs      LogSource
	clock     func() time.Time
	logger    *zap.Logger
}

// NewResolver constructs an intent resolver.
func NewResolver(completer Completer, logs LogSource, clock func() time.Time, logger *zap.Logger) *Resolver {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{completer: completer, logs: logs, clock: clock, logger: logger}
}

// Resolve determines the intent for a message. The session-feedback downgrade
// check runs regardless of whether the intent was supplied or classified.
func (r *Resolver) Resolve(ctx context.Context, userID, message string, supplied *Intent) (Resolution, error) {
	var intent Intent
	if supplied != nil {
		intent = *supplied
	} else {
		intent = r.classify(ctx, message)
	}

	if intent != IntentSessionFeedback {
		return Resolution{Intent: intent}, nil
	}

	dayStart, dayEnd := dayBounds(r.clock())
	names, err := r.logs.ExerciseNamesInRange(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return Resolution{}, err
	}
	if len(names) > 0 {
		return Resolution{Intent: IntentSessionFeedback}, nil
	}
	return Resolution{
		Intent:     IntentPastSessionFeedback,
		Downgraded: true,
		SystemNote: downgradeNote,
	}, nil
}

// classify asks the completion API for a label. A failed call and an
// unparseable answer both fall back to general coaching.
func (r *Resolver) classify(ctx context.Context, message string) Intent {
	answer, err := r.completer.Complete(ctx, classifyPrompt, message)
	if err != nil {
		r.logger.Warn("intent classification failed", zap.Error(err))
		return IntentGeneralCoaching
	}
	intent, err := ParseIntent(answer)
	if err != nil {
		r.logger.Debug("unparseable intent label", zap.String("answer", answer))
		return IntentGeneralCoaching
	}
	return intent
}

// dayBounds returns the current UTC calendar day as an inclusive range.
func dayBounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24*time.Hour - time.Millisecond)
}
