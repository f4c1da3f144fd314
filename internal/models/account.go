package models

import "time"

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

type SubscriptionStatus string

const (
	SubscriptionNone     SubscriptionStatus = "none"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Account is one ledger row per externally issued identity. The ID is
// the identity provider's stable user id, never generated here.
type Account struct {
	ID                  string             `gorm:"primarykey;type:varchar(64)" json:"id"`
	Email               string             `gorm:"type:varchar(255);not null" json:"email"`
	Balance             int                `gorm:"not null;default:0" json:"balance"`
	Plan                Plan               `gorm:"type:varchar(10);not null;default:'free'" json:"plan"`
	SubscriptionStatus  SubscriptionStatus `gorm:"type:varchar(20);not null;default:'none'" json:"subscription_status"`
	SubscriptionRef     string             `gorm:"type:varchar(64);index" json:"subscription_ref,omitempty"`
	PeriodEnd           *time.Time         `json:"period_end,omitempty"`
	BonusCreditsAwarded int                `gorm:"not null;default:0" json:"bonus_credits_awarded"`
	Version             int                `gorm:"default:1" json:"-"`
	DeletedAt           *time.Time         `gorm:"index" json:"deleted_at,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// Deleted reports whether the account is soft-deleted.
func (a *Account) Deleted() bool {
	return a.DeletedAt != nil
}
