package users

import (
	"context"
	"errors"
	"time"
)

// FitnessGoal enumerates the stored training goals.
type FitnessGoal string

const (
	GoalLoseWeight       FitnessGoal = "lose_weight"
	GoalBuildMuscle      FitnessGoal = "build_muscle"
	GoalGainStrength     FitnessGoal = "gain_strength"
	GoalImproveEndurance FitnessGoal = "improve_endurance"
	GoalGeneralFitness   FitnessGoal = "general_fitness"
)

// ActivityLevel enumerates self-reported training frequency.
type ActivityLevel string

const (
	ActivitySedentary ActivityLevel = "sedentary"
	ActivityLight     ActivityLevel = "light"
	ActivityModerate  ActivityLevel = "moderate"
	ActivityActive    ActivityLevel = "active"
	ActivityAthlete   ActivityLevel = "athlete"
)

// ErrNotFound indicates the requested user does not exist.
var ErrNotFound = errors.New("users: not found")

// ErrEmailTaken indicates a registration conflict on the email address.
var ErrEmailTaken = errors.New("users: email already registered")

// User is the persisted user document.
//
// FirstWorkoutLogged and ReferralRewardGranted are write-once flags: both are
// flipped through atomic set-if-unset updates so that repeated or racing
// requests cannot credit a referrer twice.
type User struct {
	ID            string        `bson:"_id" json:"id"`
	Email         string        `bson:"email" json:"email"`
	DisplayName   string        `bson:"displayName" json:"displayName"`
	FitnessGoal   FitnessGoal   `bson:"fitnessGoal,omitempty" json:"fitnessGoal,omitempty"`
	ActivityLevel ActivityLevel `bson:"activityLevel,omitempty" json:"activityLevel,omitempty"`

	ReferralCode          string `bson:"referralCode,omitempty" json:"referralCode,omitempty"`
	ReferredBy            string `bson:"referredBy,omitempty" json:"-"`
	SuccessfulReferrals   int    `bson:"successfulReferrals" json:"successfulReferrals"`
	FirstWorkoutLogged    bool   `bson:"firstWorkoutLogged" json:"-"`
	ReferralRewardGranted bool   `bson:"referralRewardGranted" json:"-"`
	Pioneer               bool   `bson:"pioneer" json:"pioneer"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Store is the persistence surface the user services depend on.
type Store interface {
	Insert(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByReferralCode(ctx context.Context, code string) (*User, error)
	UpdateProfile(ctx context.Context, id string, goal FitnessGoal, level ActivityLevel, updatedAt time.Time) error

	// MarkFirstWorkoutLogged flips the first-workout flag and reports whether
	// this call performed the transition. Must be a single-document
	// compare-and-set: a false result means the flag was already set.
	MarkFirstWorkoutLogged(ctx context.Context, id string) (bool, error)

	// GrantReferralReward flips the reward-granted flag on the referred user
	// if and only if it is unset and a referrer is recorded. It returns the
	// referrer id when this call performed the transition.
	GrantReferralReward(ctx context.Context, referredUserID string) (referrerID string, granted bool, err error)

	IncrementSuccessfulReferrals(ctx context.Context, referrerID string) error
}
