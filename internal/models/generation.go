package models

import (
	"time"

	"gorm.io/datatypes"
)

// GenerationRecord is written only after the engine call succeeded AND
// the debit succeeded. RequestID dedupes client retries of one logical
// generation.
type GenerationRecord struct {
	ID              uint           `gorm:"primarykey" json:"id"`
	AccountID       string         `gorm:"type:varchar(64);index;not null" json:"account_id"`
	RequestID       string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"request_id"`
	Prompt          string         `gorm:"type:text;not null" json:"prompt"`
	ResultReference string         `gorm:"type:varchar(255);not null" json:"result_reference"`
	CreativeName    string         `gorm:"type:varchar(255)" json:"creative_name,omitempty"`
	Detail          datatypes.JSON `gorm:"type:jsonb" json:"detail,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (GenerationRecord) TableName() string {
	return "generations"
}
