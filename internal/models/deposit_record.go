package models

import (
	"time"
)

// DepositRecord is the persisted trail of one vault's trip through the
// deposit pipeline: one row per execution attempt plus stage transitions.
type DepositRecord struct {
	ID         string        `json:"id" gorm:"primaryKey"` // UUID
	SessionID  string        `json:"session_id" gorm:"index;not null"`
	VaultID    string        `json:"vault_id" gorm:"index;not null"`
	ChainID    string        `json:"chain_id" gorm:"not null"`
	Stage      PipelineStage `json:"stage" gorm:"not null"`
	Mode       string        `json:"mode"`     // "zap" or "direct"
	ProviderID string        `json:"provider_id"`
	FromToken  string        `json:"from_token"`
	FromAmount string        `json:"from_amount"` // human decimal
	ToAmount   string        `json:"to_amount"`   // human decimal
	TxHash     string        `json:"tx_hash"`
	ErrorMsg   string        `json:"error_message" gorm:"type:text"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// TableName sets the table name for DepositRecord
func (DepositRecord) TableName() string {
	return "deposit_records"
}
