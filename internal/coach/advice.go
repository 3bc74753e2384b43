package coach

import (
	"context"
	"time"
)

// maxRecentAdvice bounds how many stored advice entries are merged into the
// coach context.
const maxRecentAdvice = 10

// Advice is a persisted piece of coaching advice tied to a user and,
// optionally, an exercise.
type Advice struct {
	ID           string    `bson:"_id" json:"id"`
	UserID       string    `bson:"userId" json:"-"`
	ExerciseName string    `bson:"exerciseName,omitempty" json:"exerciseName,omitempty"`
	Advice       string    `bson:"advice" json:"advice"`
	Context      string    `bson:"context,omitempty" json:"context,omitempty"`
	Intent       Intent    `bson:"intent" json:"intent"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

// AdviceStore is the persistence surface for coach advice.
type AdviceStore interface {
	Insert(ctx context.Context, advice *Advice) error
	// FindRecent returns the newest advice entries, optionally filtered to
	// one exercise when exerciseName is non-empty.
	FindRecent(ctx context.Context, userID, exerciseName string, limit int64) ([]Advice, error)
}
