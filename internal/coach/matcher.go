package coach

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"
)

// MatchMethod names the stage that produced an exercise match.
type MatchMethod string

const (
	MatchMethodExact   MatchMethod = "exact"
	MatchMethodSynonym MatchMethod = "synonym"
	MatchMethodFuzzy   MatchMethod = "fuzzy"
	MatchMethodLLM     MatchMethod = "llm"
	MatchMethodNone    MatchMethod = "none"
)

const (
	fuzzyAcceptThreshold = 0.6
	synonymConfidence    = 0.9
	llmConfidence        = 0.85
)

// Common gym shorthand mapped to canonical exercise names.
var exerciseSynonyms = map[string][]string{
	"bench press":    {"bench", "flat bench", "bp"},
	"squat":          {"back squat", "squats"},
	"deadlift":       {"deadlifts", "dl", "deads"},
	"overhead press": {"ohp", "shoulder press", "military press"},
	"pull up":        {"pullup", "pull ups", "chin up", "chins"},
	"barbell row":    {"rows", "bent over row", "bb row"},
}

// MatchResult describes which known exercise a message refers to, if any.
type MatchResult struct {
	Matched    bool
	Exercise   string
	Confidence float64
	Method     MatchMethod
}

// Matcher resolves free-text exercise references in two stages: deterministic
// string matching first, a completion-API extraction fallback second.
type Matcher struct {
	completer Completer
	logger    *zap.Logger
}

// NewMatcher constructs an exercise matcher.
func NewMatcher(completer Completer, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{completer: completer, logger: logger}
}

// Match resolves the exercise a message refers to against the known list.
// First match wins; a no-match result carries confidence 0 and method "none".
func (m *Matcher) Match(ctx context.Context, message string, known []string) MatchResult {
	if result, ok := matchDeterministic(message, known); ok {
		return result
	}
	if result, ok := m.matchViaLLM(ctx, message, known); ok {
		return result
	}
	return MatchResult{Method: MatchMethodNone}
}

func matchDeterministic(message string, known []string) (MatchResult, bool) {
	normalized := normalizeText(message)
	if normalized == "" || len(known) == 0 {
		return MatchResult{}, false
	}

	for _, name := range known {
		if containsPhrase(normalized, normalizeText(name)) {
			return MatchResult{Matched: true, Exercise: name, Confidence: 1.0, Method: MatchMethodExact}, true
		}
	}

	for _, name := range known {
		for _, synonym := range exerciseSynonyms[normalizeText(name)] {
			if containsPhrase(normalized, synonym) {
				return MatchResult{Matched: true, Exercise: name, Confidence: synonymConfidence, Method: MatchMethodSynonym}, true
			}
		}
	}

	bestScore := 0.0
	bestName := ""
	for _, name := range known {
		if score := fuzzyScore(normalized, normalizeText(name)); score > bestScore {
			bestScore = score
			bestName = name
		}
	}
	if bestScore >= fuzzyAcceptThreshold {
		return MatchResult{Matched: true, Exercise: bestName, Confidence: bestScore, Method: MatchMethodFuzzy}, true
	}
	return MatchResult{}, false
}

const extractPromptTemplate = `Extract the exercise the user's message refers to.
Known exercises: %s.
Respond with the exact exercise name from the list, or NONE if the message names no exercise from it.`

func (m *Matcher) matchViaLLM(ctx context.Context, message string, known []string) (MatchResult, bool) {
	if m.completer == nil || len(known) == 0 {
		return MatchResult{}, false
	}
	prompt := fmt.Sprintf(extractPromptTemplate, strings.Join(known, ", "))
	answer, err := m.completer.Complete(ctx, prompt, message)
	if err != nil {
		m.logger.Warn("exercise extraction failed", zap.Error(err))
		return MatchResult{}, false
	}
	answer = normalizeText(answer)
	if answer == "" || answer == "none" {
		return MatchResult{}, false
	}
	for _, name := range known {
		if normalizeText(name) == answer {
			return MatchResult{Matched: true, Exercise: name, Confidence: llmConfidence, Method: MatchMethodLLM}, true
		}
	}
	return MatchResult{}, false
}

// fuzzyScore slides a window of the target's token length over the message
// and returns the best levenshtein similarity ratio.
func fuzzyScore(message, target string) float64 {
	if target == "" {
		return 0
	}
	tokens := strings.Fields(message)
	width := len(strings.Fields(target))
	if width == 0 || len(tokens) < width {
		return similarity(message, target)
	}
	best := 0.0
	for i := 0; i+width <= len(tokens); i++ {
		window := strings.Join(tokens[i:i+width], " ")
		if score := similarity(window, target); score > best {
			best = score
		}
	}
	return best
}

func similarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}

func containsPhrase(haystack, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+haystack+" ", " "+phrase+" ")
}

// normalizeText lowercases and reduces a string to space-separated
// alphanumeric tokens.
func normalizeText(value string) string {
	var builder strings.Builder
	for _, r := range strings.ToLower(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		default:
			builder.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(builder.String()), " ")
}
