package users

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	referralCodeBytes    = 4
	maxCodeAttempts      = 10
	registerPathTemplate = "/register?ref=%s"
)

// ErrCodeGeneration indicates the referral code space was exhausted after the
// maximum number of collision retries.
var ErrCodeGeneration = errors.New("users: could not generate referral code")

// ReferralServiceConfig describes the referral service dependencies.
type ReferralServiceConfig struct {
	Store Store
	// FrontendBaseURL prefixes invitation links. When empty, links are
	// emitted as a relative path.
	FrontendBaseURL string
	Clock           func() time.Time
	Logger          *zap.Logger
}

// ReferralService owns the referral lifecycle: code issuance, invitation
// links, and the one-time reward granted when a referred user logs a first
// workout. Lifecycle per referred user: pending (code issued) -> linked
// (registered with the code) -> rewarded (terminal).
type ReferralService struct {
	store           Store
	frontendBaseURL string
	clock           func() time.Time
	logger          *zap.Logger
}

// NewReferralService constructs the referral service.
func NewReferralService(cfg ReferralServiceConfig) (*ReferralService, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferralService{
		store:           cfg.Store,
		frontendBaseURL: strings.TrimRight(cfg.FrontendBaseURL, "/"),
		clock:           clock,
		logger:          logger,
	}, nil
}

// GenerateCode draws random hex codes until one is unused, giving up after
// the retry cap. Collisions are expected to be vanishingly rare given the
// code space, so exhaustion is treated as a generic failure.
func (s *ReferralService) GenerateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		buf := make([]byte, referralCodeBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("users: read random bytes: %w", err)
		}
		code := hex.EncodeToString(buf)

		_, err := s.store.FindByReferralCode(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("users: check referral code: %w", err)
		}
	}
	return "", ErrCodeGeneration
}

// InvitationLink renders the shareable registration link for a code.
func (s *ReferralService) InvitationLink(code string) string {
	path := fmt.Sprintf(registerPathTemplate, code)
	if s.frontendBaseURL == "" {
		return path
	}
	return s.frontendBaseURL + path
}

// RecordFirstWorkout applies the referral reward for a referred user's first
// logged workout. Both guards are atomic set-if-unset updates on the referred
// user's document, so repeated calls (or concurrent requests racing the flag
// check) credit the referrer exactly once.
func (s *ReferralService) RecordFirstWorkout(ctx context.Context, userID string) error {
	first, err := s.store.MarkFirstWorkoutLogged(ctx, userID)
	if err != nil {
		return fmt.Errorf("users: mark first workout: %w", err)
	}
	if first {
		s.logger.Info("first workout logged", zap.String("userId", userID))
	}

	referrerID, granted, err := s.store.GrantReferralReward(ctx, userID)
	if err != nil {
		return fmt.Errorf("users: grant referral reward: %w", err)
	}
	if !granted {
		return nil
	}

	if err := s.store.IncrementSuccessfulReferrals(ctx, referrerID); err != nil {
		return fmt.Errorf("users: increment referrals: %w", err)
	}
	s.logger.Info("referral reward granted",
		zap.String("referredUserId", userID),
		zap.String("referrerId", referrerID))
	return nil
}
