package coach

import (
	"time"

	"github.com/fitcheckhq/fitcheck/backend/internal/users"
)

// QuotaConfig holds the configured weekly coach-chat allowances.
type QuotaConfig struct {
	WeeklyBaseRequests int
	BonusPerReferral   int
	MaxReferrals       int
}

// Quota is the weekly coach-chat budget derived for one user.
type Quota struct {
	UsedThisWeek               int    `json:"usedThisWeek"`
	AllowedThisWeek            int    `json:"allowedThisWeek"`
	RemainingThisWeek          int    `json:"remainingThisWeek"`
	IsUnlimited                bool   `json:"isUnlimited"`
	WeeklyBaseRequests         int    `json:"weeklyBaseRequests"`
	BonusPerSuccessfulReferral int    `json:"bonusPerSuccessfulReferral"`
	SuccessfulReferrals        int    `json:"successfulReferrals"`
	MaxReferrals               int    `json:"maxReferrals"`
	ReferralCode               string `json:"referralCode"`
}

// WeekBounds returns the UTC quota week containing now: Monday 00:00:00.000
// through Sunday 23:59:59.999.
func WeekBounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -daysSinceMonday)
	end := start.AddDate(0, 0, 7).Add(-time.Millisecond)
	return start, end
}

// ComputeQuota derives the weekly budget from the referral count and the
// number of user messages already sent this week. Referral bonuses clamp at
// the configured maximum; a pioneer flag grants unlimited use.
func ComputeQuota(cfg QuotaConfig, user *users.User, usedThisWeek int) Quota {
	referrals := user.SuccessfulReferrals
	counted := referrals
	if counted > cfg.MaxReferrals {
		counted = cfg.MaxReferrals
	}
	allowed := cfg.WeeklyBaseRequests + cfg.BonusPerReferral*counted

	remaining := allowed - usedThisWeek
	if remaining < 0 {
		remaining = 0
	}

	return Quota{
		UsedThisWeek:               usedThisWeek,
		AllowedThisWeek:            allowed,
		RemainingThisWeek:          remaining,
		IsUnlimited:                user.Pioneer,
		WeeklyBaseRequests:         cfg.WeeklyBaseRequests,
		BonusPerSuccessfulReferral: cfg.BonusPerReferral,
		SuccessfulReferrals:        referrals,
		MaxReferrals:               cfg.MaxReferrals,
		ReferralCode:               user.ReferralCode,
	}
}

// Exhausted reports whether a further coach request must be refused.
func (q Quota) Exhausted() bool {
	return !q.IsUnlimited && q.RemainingThisWeek <= 0
}
