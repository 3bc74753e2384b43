package workouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultListLimit = 50

var errMissingStore = errors.New("workouts: store is required")

// FirstWorkoutRecorder is notified after every persisted log so the referral
// reward can be applied on a referred user's first workout.
type FirstWorkoutRecorder interface {
	RecordFirstWorkout(ctx context.Context, userID string) error
}

// IDProvider issues identifiers for new workout logs.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the workout service dependencies.
type ServiceConfig struct {
	Store      Store
	Referrals  FirstWorkoutRecorder
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service validates and persists workout logs.
type Service struct {
	store     Store
	referrals FirstWorkoutRecorder
	ids       IDProvider
	clock     func() time.Time
	logger    *zap.Logger
}

// NewService constructs the workout service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.IDProvider == nil {
		return nil, errors.New("workouts: id provider is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     cfg.Store,
		referrals: cfg.Referrals,
		ids:       cfg.IDProvider,
		clock:     clock,
		logger:    logger,
	}, nil
}

// CreateInput carries a new workout log payload.
type CreateInput struct {
	ExerciseID   string
	ExerciseName string
	Sets         []SetEntry
	RPE          *float64
	Notes        string
}

// CreateLog validates and stores a workout log, then fires the referral hook.
// Referral failures are logged and swallowed: the log itself is already
// persisted and the reward path is idempotent on retry.
func (s *Service) CreateLog(ctx context.Context, userID string, input CreateInput) (*Log, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	id, err := s.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("workouts: generate id: %w", err)
	}

	log := &Log{
		ID:           id,
		UserID:       userID,
		ExerciseID:   strings.TrimSpace(input.ExerciseID),
		ExerciseName: strings.TrimSpace(input.ExerciseName),
		Sets:         input.Sets,
		RPE:          input.RPE,
		Notes:        strings.TrimSpace(input.Notes),
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.store.Insert(ctx, log); err != nil {
		return nil, err
	}

	if s.referrals != nil {
		if err := s.referrals.RecordFirstWorkout(ctx, userID); err != nil {
			s.logger.Warn("referral hook failed",
				zap.String("userId", userID), zap.Error(err))
		}
	}
	return log, nil
}

// List returns the user's most recent logs.
func (s *Service) List(ctx context.Context, userID string) ([]Log, error) {
	return s.store.List(ctx, userID, defaultListLimit)
}

// Get returns one log owned by the user.
func (s *Service) Get(ctx context.Context, userID, id string) (*Log, error) {
	return s.store.FindByID(ctx, userID, id)
}

// Delete removes one log owned by the user.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.store.Delete(ctx, userID, id)
}

func validateInput(input CreateInput) error {
	if strings.TrimSpace(input.ExerciseName) == "" {
		return fmt.Errorf("%w: exercise name is required", ErrInvalidLog)
	}
	if len(input.Sets) == 0 {
		return fmt.Errorf("%w: at least one set is required", ErrInvalidLog)
	}
	for index, set := range input.Sets {
		if set.Reps <= 0 {
			return fmt.Errorf("%w: set %d has no reps", ErrInvalidLog, index+1)
		}
		if set.Weight < 0 {
			return fmt.Errorf("%w: set %d has negative weight", ErrInvalidLog, index+1)
		}
	}
	if input.RPE != nil && (*input.RPE < 1 || *input.RPE > 10) {
		return fmt.Errorf("%w: rpe must be between 1 and 10", ErrInvalidLog)
	}
	return nil
}
