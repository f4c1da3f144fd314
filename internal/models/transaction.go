package models

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type TransactionType string

const (
	TransactionTypeSubscription TransactionType = "subscription"
	TransactionTypeOneTime      TransactionType = "one_time"
	TransactionTypeRenewal      TransactionType = "renewal"
	TransactionTypeSignupBonus  TransactionType = "signup_bonus"
	TransactionTypeDebit        TransactionType = "debit"
)

type TransactionStatus string

const (
	TransactionStatusSucceeded TransactionStatus = "succeeded"
)

// Transaction records every credit movement on an account. Rows that
// originate from a billing-provider event carry the provider's event id;
// its unique index is what makes webhook replay a no-op.
type Transaction struct {
	ID              uint              `gorm:"primarykey" json:"id"`
	CreatedAt       time.Time         `gorm:"precision:3" json:"created_at"` // Millisecond precision
	AccountID       string            `gorm:"type:varchar(64);index;not null" json:"account_id"`
	ProviderEventID *string           `gorm:"type:varchar(64);uniqueIndex" json:"provider_event_id,omitempty"`
	CreditsDelta    int               `gorm:"not null" json:"credits_delta"`
	BalanceBefore   int               `gorm:"not null" json:"balance_before"`
	BalanceAfter    int               `gorm:"not null" json:"balance_after"`
	Type            TransactionType   `gorm:"type:varchar(20);index;not null" json:"type"`
	Status          TransactionStatus `gorm:"type:varchar(20);not null;default:'succeeded'" json:"status"`
	Reason          string            `gorm:"type:text" json:"reason"`
	Metadata        datatypes.JSON    `gorm:"type:jsonb" json:"metadata,omitempty"`
	Hash            string            `gorm:"type:varchar(64);default:''" json:"-"` // HMAC SHA256
}

func (Transaction) TableName() string {
	return "transactions"
}

// GenerateHash generates a tamper-proof hash for the transaction
func (t *Transaction) GenerateHash(secret string) string {
	eventID := ""
	if t.ProviderEventID != nil {
		eventID = *t.ProviderEventID
	}
	data := fmt.Sprintf("%s|%d|%d|%d|%d|%s|%s|%s",
		t.AccountID, t.CreatedAt.UnixNano(), t.CreditsDelta, t.BalanceBefore, t.BalanceAfter,
		t.Type, t.Reason, eventID)

	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
