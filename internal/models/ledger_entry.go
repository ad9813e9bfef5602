package models

import (
	"time"

	"gorm.io/datatypes"
)

// LedgerEntryType classifies a credit ledger movement.
type LedgerEntryType int

// LedgerEntryType constants define ledger movement kinds.
const (
	// LedgerEntrySignupGrant records the one-time signup allocation.
	LedgerEntrySignupGrant LedgerEntryType = 1
	// LedgerEntryDailyGrant records a daily top-up.
	LedgerEntryDailyGrant LedgerEntryType = 2
	// LedgerEntrySpend records a balance-gated debit.
	LedgerEntrySpend LedgerEntryType = 3
	// LedgerEntryAdminAdjust records a manual adjustment by an operator.
	LedgerEntryAdminAdjust LedgerEntryType = 4
)

// LedgerEntry is the audit record for one balance movement.
type LedgerEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AccountID uint64  `gorm:"not null;index"`       // Related account ID.
	Account   Account `gorm:"foreignKey:AccountID"` // Related account record.

	Type         LedgerEntryType `gorm:"not null"` // Movement kind.
	Amount       int64           `gorm:"not null"` // Signed credit delta.
	BalanceAfter int64           `gorm:"not null"` // Balance after the movement committed.

	Reason   string         `gorm:"type:text"`                        // Caller-supplied reason, if any.
	Metadata datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Extra context for operator tooling.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
