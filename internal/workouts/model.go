package workouts

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the workout log does not exist for the user.
	ErrNotFound = errors.New("workouts: not found")
	// ErrInvalidLog indicates a malformed workout log payload.
	ErrInvalidLog = errors.New("workouts: invalid log")
)

// SetEntry is one performed set within a workout log.
type SetEntry struct {
	Reps   int     `bson:"reps" json:"reps"`
	Weight float64 `bson:"weight" json:"weight"`
	Notes  string  `bson:"notes,omitempty" json:"notes,omitempty"`
}

// Log is one logged exercise session. Logs are immutable once created except
// via explicit edit, and owned by exactly one user.
type Log struct {
	ID           string     `bson:"_id" json:"id"`
	UserID       string     `bson:"userId" json:"-"`
	ExerciseID   string     `bson:"exerciseId,omitempty" json:"exerciseId,omitempty"`
	ExerciseName string     `bson:"exerciseName" json:"exerciseName"`
	Sets         []SetEntry `bson:"sets" json:"sets"`
	RPE          *float64   `bson:"rpe,omitempty" json:"rpe,omitempty"`
	Notes        string     `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt    time.Time  `bson:"createdAt" json:"createdAt"`
}

// Volume is the session volume: the sum of reps times weight over all sets.
func (l Log) Volume() float64 {
	total := 0.0
	for _, set := range l.Sets {
		total += float64(set.Reps) * set.Weight
	}
	return total
}

// Store is the persistence surface for workout logs.
type Store interface {
	Insert(ctx context.Context, log *Log) error
	FindByID(ctx context.Context, userID, id string) (*Log, error)
	// FindInRange returns a user's logs with createdAt in [from, to],
	// newest first.
	FindInRange(ctx context.Context, userID string, from, to time.Time) ([]Log, error)
	List(ctx context.Context, userID string, limit int64) ([]Log, error)
	Delete(ctx context.Context, userID, id string) error
	// ExerciseNamesInRange returns the distinct exercise names a user
	// trained with createdAt in [from, to].
	ExerciseNamesInRange(ctx context.Context, userID string, from, to time.Time) ([]string, error)
}
