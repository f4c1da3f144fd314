package models

import "time"

// BonusClaim is append-only: one row per email hash that ever received
// the signup bonus. Rows are never updated or deleted, which is what
// makes a second bonus for the same email structurally impossible.
type BonusClaim struct {
	ID        uint      `gorm:"primarykey"`
	EmailHash string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	AccountID string    `gorm:"type:varchar(64);index;not null"`
	ClaimedAt time.Time `gorm:"not null"`
}

func (BonusClaim) TableName() string {
	return "bonus_claims"
}
