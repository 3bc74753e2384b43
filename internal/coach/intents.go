// Package coach implements the AI-coach subsystem: intent resolution,
// exercise matching, workout-log aggregation, quota tracking, and assembly of
// the structured context handed to the completion API.
package coach

import (
	"errors"
	"fmt"
	"strings"
)

// Intent categorizes what the user is asking the coach for.
type Intent string

const (
	IntentNextWorkout         Intent = "NEXT_WORKOUT"
	IntentSessionFeedback     Intent = "SESSION_FEEDBACK"
	IntentPastSessionFeedback Intent = "PAST_SESSION_FEEDBACK"
	IntentProgressCheck       Intent = "PROGRESS_CHECK"
	IntentPlateauHelp         Intent = "PLATEAU_HELP"
	IntentMotivation          Intent = "MOTIVATION"
	IntentGeneralCoaching     Intent = "GENERAL_COACHING"
)

// ErrUnknownIntent indicates a value outside the intent vocabulary.
var ErrUnknownIntent = errors.New("coach: unknown intent")

// AllIntents lists the fixed intent vocabulary.
func AllIntents() []Intent {
	return []Intent{
		IntentNextWorkout,
		IntentSessionFeedback,
		IntentPastSessionFeedback,
		IntentProgressCheck,
		IntentPlateauHelp,
		IntentMotivation,
		IntentGeneralCoaching,
	}
}

// ParseIntent validates a raw intent value against the vocabulary.
func ParseIntent(raw string) (Intent, error) {
	candidate := Intent(strings.ToUpper(strings.TrimSpace(raw)))
	for _, intent := range AllIntents() {
		if candidate == intent {
			return intent, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownIntent, raw)
}

// ContextConfig declares what context an intent needs before the coach call.
type ContextConfig struct {
	// FullProfile selects the complete coach profile; otherwise only the
	// training goal is included.
	FullProfile bool
	// NeedsSummary enables workout-log aggregation over SummaryDepthDays.
	NeedsSummary     bool
	SummaryDepthDays int
	// HistoryPairs is how many prior user/coach message pairs to replay.
	HistoryPairs int
	// ExerciseFilter enables exercise matching and, on a match, restricts
	// the workout summary to the matched exercise.
	ExerciseFilter bool
}

var intentConfigs = map[Intent]ContextConfig{
	IntentNextWorkout:         {FullProfile: true, NeedsSummary: true, SummaryDepthDays: 14, HistoryPairs: 2, ExerciseFilter: true},
	IntentSessionFeedback:     {FullProfile: true, NeedsSummary: true, SummaryDepthDays: 28, HistoryPairs: 2},
	IntentPastSessionFeedback: {FullProfile: true, NeedsSummary: true, SummaryDepthDays: 14, HistoryPairs: 3, ExerciseFilter: true},
	IntentProgressCheck:       {FullProfile: true, NeedsSummary: true, SummaryDepthDays: 28, HistoryPairs: 2, ExerciseFilter: true},
	IntentPlateauHelp:         {FullProfile: true, NeedsSummary: true, SummaryDepthDays: 28, HistoryPairs: 2, ExerciseFilter: true},
	IntentMotivation:          {HistoryPairs: 3},
	IntentGeneralCoaching:     {HistoryPairs: 3},
}

// Config returns the context configuration declared for the intent.
func (i Intent) Config() ContextConfig {
	if cfg, ok := intentConfigs[i]; ok {
		return cfg
	}
	return intentConfigs[IntentGeneralCoaching]
}
