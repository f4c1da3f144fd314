package account

import "time"

// AccountResponse defines the response structure for account state.
type AccountResponse struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Balance             int        `json:"balance"`
	Plan                string     `json:"plan"`
	SubscriptionStatus  string     `json:"subscription_status"`
	SubscriptionRef     string     `json:"subscription_ref,omitempty"`
	PeriodEnd           *time.Time `json:"period_end,omitempty"`
	BonusCreditsAwarded int        `json:"bonus_credits_awarded"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	Created             bool       `json:"created,omitempty"`
}

// ReactivationInfo carries the exact eligibility data for a rejected
// reactivation so the caller can act on it.
type ReactivationInfo struct {
	EligibleAt    time.Time `json:"eligible_at"`
	DaysRemaining int       `json:"days_remaining"`
}
