package coach

import (
	"github.com/fitcheckhq/fitcheck/backend/internal/users"
)

// defaultPreferredRPE is assumed when the user has no logged RPE data.
const defaultPreferredRPE = 7.0

// ExperienceLevel buckets a user's self-reported activity level.
type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceAdvanced     ExperienceLevel = "advanced"
)

// Profile is the derived coach-facing view of a user.
type Profile struct {
	Goal                  string          `json:"goal"`
	ExperienceLevel       ExperienceLevel `json:"experienceLevel,omitempty"`
	PreferredIntensityRPE float64         `json:"preferredIntensityRpe,omitempty"`
	ActivePlateaus        []string        `json:"activePlateaus,omitempty"`
}

var goalDescriptions = map[users.FitnessGoal]string{
	users.GoalLoseWeight:       "lose weight",
	users.GoalBuildMuscle:      "build muscle",
	users.GoalGainStrength:     "gain strength",
	users.GoalImproveEndurance: "improve endurance",
	users.GoalGeneralFitness:   "general fitness",
}

var experienceLevels = map[users.ActivityLevel]ExperienceLevel{
	users.ActivitySedentary: ExperienceBeginner,
	users.ActivityLight:     ExperienceBeginner,
	users.ActivityModerate:  ExperienceIntermediate,
	users.ActivityActive:    ExperienceAdvanced,
	users.ActivityAthlete:   ExperienceAdvanced,
}

// BuildProfile derives the coach profile from the stored user and recent
// exercise summaries. A minimal profile carries the goal only.
func BuildProfile(user *users.User, summaries []ExerciseSummary, full bool) Profile {
	profile := Profile{Goal: describeGoal(user.FitnessGoal)}
	if !full {
		return profile
	}

	if level, ok := experienceLevels[user.ActivityLevel]; ok {
		profile.ExperienceLevel = level
	}
	profile.PreferredIntensityRPE = preferredRPE(summaries)
	profile.ActivePlateaus = ActivePlateaus(summaries)
	return profile
}

func describeGoal(goal users.FitnessGoal) string {
	if description, ok := goalDescriptions[goal]; ok {
		return description
	}
	return goalDescriptions[users.GoalGeneralFitness]
}

// preferredRPE is the mean of all recent session RPEs, defaulting to 7.
func preferredRPE(summaries []ExerciseSummary) float64 {
	var sum float64
	var count int
	for _, summary := range summaries {
		for _, session := range summary.Sessions {
			if session.RPE != nil {
				sum += *session.RPE
				count++
			}
		}
	}
	if count == 0 {
		return defaultPreferredRPE
	}
	return sum / float64(count)
}
