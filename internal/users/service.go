package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("users: store is required")
	// ErrInvalidEmail indicates a registration payload without a usable email.
	ErrInvalidEmail = errors.New("users: invalid email")
)

// ServiceConfig describes the dependencies of the user service.
type ServiceConfig struct {
	Store      Store
	Referrals  *ReferralService
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service handles registration and profile maintenance.
type Service struct {
	store     Store
	referrals *ReferralService
	ids       IDProvider
	clock     func() time.Time
	logger    *zap.Logger
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Referrals == nil {
		return nil, errors.New("users: referral service is required")
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
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
		ids:       ids,
		clock:     clock,
		logger:    logger,
	}, nil
}

// RegisterInput carries the registration payload.
type RegisterInput struct {
	Email        string
	DisplayName  string
	ReferralCode string
}

// Register creates a user, issuing a fresh referral code and linking the
// supplied invitation code to its referrer. An unknown invitation code is
// ignored rather than failing the registration.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("users: lookup by email: %w", err)
	}

	id, err := s.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("users: generate id: %w", err)
	}
	code, err := s.referrals.GenerateCode(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	user := &User{
		ID:           id,
		Email:        email,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		ReferralCode: code,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if invite := strings.TrimSpace(input.ReferralCode); invite != "" {
		referrer, err := s.store.FindByReferralCode(ctx, invite)
		switch {
		case err == nil:
			user.ReferredBy = referrer.ID
		case errors.Is(err, ErrNotFound):
			s.logger.Warn("unknown referral code ignored", zap.String("code", invite))
		default:
			return nil, fmt.Errorf("users: resolve referral code: %w", err)
		}
	}

	if err := s.store.Insert(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail resolves an existing user for token re-issue.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.store.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// Profile returns the stored user document.
func (s *Service) Profile(ctx context.Context, userID string) (*User, error) {
	return s.store.FindByID(ctx, userID)
}

// UpdateProfile stores a new goal and activity level.
func (s *Service) UpdateProfile(ctx context.Context, userID string, goal FitnessGoal, level ActivityLevel) error {
	return s.store.UpdateProfile(ctx, userID, goal, level, s.clock().UTC())
}
