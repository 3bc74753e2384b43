package coach

import (
	"encoding/json"
	"fmt"

	"github.com/fitcheckhq/fitcheck/backend/internal/llm"
)

// maxSessionsPerExercise caps the serialized session list per exercise to
// keep the prompt small.
const maxSessionsPerExercise = 5

const personaPrompt = `You are FitCheck's AI strength coach. You give concise,
practical training advice grounded in the user's logged workouts. Prefer
specific numbers (sets, reps, loads, RPE) over generalities, never prescribe
medical treatment, and keep answers under 200 words unless asked for a plan.`

// HistoryMessage is one prior exchange entry replayed into the prompt.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AdviceSnippet is the serialized form of stored advice inside the context.
type AdviceSnippet struct {
	Exercise string `json:"exercise,omitempty"`
	Advice   string `json:"advice"`
	Given    string `json:"given"`
}

// Context is the structured object handed to the completion API alongside the
// persona prompt. Empty optional fields are omitted from serialization.
type Context struct {
	Intent            Intent            `json:"intent"`
	Profile           *Profile          `json:"profile,omitempty"`
	WorkoutSummary    []ExerciseSummary `json:"workoutSummary,omitempty"`
	RecentAdvice      []AdviceSnippet   `json:"recentAdvice,omitempty"`
	MatchedExercise   string            `json:"matchedExercise,omitempty"`
	IsNewConversation bool              `json:"isNewConversation"`
}

// compact trims the context to its serialization caps. The capped summaries
// go into a fresh slice so the caller's structs stay untouched.
func (c *Context) compact() {
	if len(c.WorkoutSummary) > 0 {
		capped := make([]ExerciseSummary, len(c.WorkoutSummary))
		copy(capped, c.WorkoutSummary)
		for i := range capped {
			if len(capped[i].Sessions) > maxSessionsPerExercise {
				capped[i].Sessions = capped[i].Sessions[:maxSessionsPerExercise]
			}
		}
		c.WorkoutSummary = capped
	}
	if len(c.RecentAdvice) > maxRecentAdvice {
		c.RecentAdvice = c.RecentAdvice[:maxRecentAdvice]
	}
}

// BuildMessages assembles the completion request: a system message carrying
// the persona and serialized context, replayed history, an optional injected
// system note, and the user's message last.
func (c Context) BuildMessages(history []HistoryMessage, systemNote, userMessage string) ([]llm.Message, error) {
	c.compact()
	serialized, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("coach: serialize context: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: personaPrompt + "\n\nContext:\n" + string(serialized),
	})
	for _, entry := range history {
		role := llm.RoleUser
		if entry.Role == RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: entry.Content})
	}
	if systemNote != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemNote})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return messages, nil
}
