package coach

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fitcheckhq/fitcheck/backend/internal/workouts"
)

const (
	// trendWindowSessions is how many of the most recent sessions feed the
	// volume trend; below this count the trend is undefined.
	trendWindowSessions = 3
	// trendThresholdPercent is the +-5% band separating flat from up/down.
	trendThresholdPercent = 5.0

	unknownExerciseName = "unknown"
)

// Trend is the volume direction over the recent sessions of one exercise.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// SessionSummary condenses one logged session of an exercise.
type SessionSummary struct {
	Date   time.Time `json:"date"`
	Volume float64   `json:"volume"`
	Sets   string    `json:"sets"`
	RPE    *float64  `json:"rpe,omitempty"`
}

// ExerciseSummary aggregates a user's recent sessions of one exercise.
// Trend and VolumeChangePercent stay nil when fewer than three sessions exist.
type ExerciseSummary struct {
	Exercise            string           `json:"exercise"`
	AverageRPE          *float64         `json:"averageRpe,omitempty"`
	Trend               *Trend           `json:"trend,omitempty"`
	VolumeChangePercent *float64         `json:"volumeChangePercent,omitempty"`
	Sessions            []SessionSummary `json:"sessions"`
}

// BuildSummaries groups logs by exercise name and derives per-exercise
// volume, RPE, and trend summaries. Sessions are ordered most recent first;
// output groups are ordered by exercise name for determinism.
func BuildSummaries(logs []workouts.Log) []ExerciseSummary {
	groups := make(map[string][]workouts.Log)
	for _, log := range logs {
		name := log.ExerciseName
		if name == "" {
			name = unknownExerciseName
		}
		groups[name] = append(groups[name], log)
	}

	summaries := make([]ExerciseSummary, 0, len(groups))
	for name, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			return group[i].CreatedAt.After(group[j].CreatedAt)
		})

		sessions := make([]SessionSummary, 0, len(group))
		var rpeSum float64
		var rpeCount int
		for _, log := range group {
			sessions = append(sessions, SessionSummary{
				Date:   log.CreatedAt,
				Volume: log.Volume(),
				Sets:   formatSets(log.Sets),
				RPE:    log.RPE,
			})
			if log.RPE != nil {
				rpeSum += *log.RPE
				rpeCount++
			}
		}

		summary := ExerciseSummary{Exercise: name, Sessions: sessions}
		if rpeCount > 0 {
			average := rpeSum / float64(rpeCount)
			summary.AverageRPE = &average
		}
		if change, ok := volumeChange(sessions); ok {
			summary.VolumeChangePercent = &change
			trend := classifyTrend(change)
			summary.Trend = &trend
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Exercise < summaries[j].Exercise
	})
	return summaries
}

// ActivePlateaus lists the exercises whose trend resolved to flat.
func ActivePlateaus(summaries []ExerciseSummary) []string {
	var plateaus []string
	for _, summary := range summaries {
		if summary.Trend != nil && *summary.Trend == TrendFlat {
			plateaus = append(plateaus, summary.Exercise)
		}
	}
	return plateaus
}

// volumeChange compares the newest session's volume against the mean of the
// two sessions before it. Sessions must already be ordered newest first.
func volumeChange(sessions []SessionSummary) (float64, bool) {
	if len(sessions) < trendWindowSessions {
		return 0, false
	}
	newest := sessions[0].Volume
	baseline := (sessions[1].Volume + sessions[2].Volume) / 2
	if baseline == 0 {
		return 0, false
	}
	return (newest - baseline) / baseline * 100, true
}

func classifyTrend(changePercent float64) Trend {
	switch {
	case changePercent > trendThresholdPercent:
		return TrendUp
	case changePercent < -trendThresholdPercent:
		return TrendDown
	default:
		return TrendFlat
	}
}

// formatSets renders sets as "reps x weight" entries, e.g. "5x100, 5x102.5".
func formatSets(sets []workouts.SetEntry) string {
	parts := make([]string, 0, len(sets))
	for _, set := range sets {
		weight := strconv.FormatFloat(set.Weight, 'f', -1, 64)
		parts = append(parts, strconv.Itoa(set.Reps)+"x"+weight)
	}
	return strings.Join(parts, ", ")
}

// filterLogsByExercises keeps only logs whose exercise name appears in the
// allowed set (matched case-insensitively on normalized names).
func filterLogsByExercises(logs []workouts.Log, allowed []string) []workouts.Log {
	if len(allowed) == 0 {
		return nil
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowedSet[normalizeText(name)] = true
	}
	var filtered []workouts.Log
	for _, log := range logs {
		if allowedSet[normalizeText(log.ExerciseName)] {
			filtered = append(filtered, log)
		}
	}
	return filtered
}
