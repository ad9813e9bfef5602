package models

import (
	"strings"
	"time"
)

// AdminRole is the role value that grants unlimited credits.
const AdminRole = "admin"

// Account stores the credit balance for one platform user.
type Account struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ExternalID string `gorm:"type:text;not null;uniqueIndex"` // Stable subject assigned by the identity provider.
	Email      string `gorm:"type:text;index"`                // Email reported by the identity provider.

	Credits *int64 `gorm:"type:bigint"` // Balance; NULL until the signup grant is applied.

	LastDailyGrantAt *time.Time `gorm:"type:timestamp"` // Last successful daily grant.
	LastSpendAt      *time.Time `gorm:"type:timestamp"` // Last successful spend.
	LastSpendReason  string     `gorm:"type:text"`      // Reason supplied with the last spend.

	IsAdmin bool   `gorm:"not null;default:false"` // Persisted unlimited-credits flag.
	Role    string `gorm:"type:text"`              // Optional role; "admin" also grants unlimited credits.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// HasAdminFlag reports whether the persisted record marks the account as admin.
func (a *Account) HasAdminFlag() bool {
	if a == nil {
		return false
	}
	return a.IsAdmin || strings.EqualFold(strings.TrimSpace(a.Role), AdminRole)
}

// Initialized reports whether the signup grant has been applied.
func (a *Account) Initialized() bool {
	return a != nil && a.Credits != nil
}

// Balance returns the current balance, or zero for uninitialized accounts.
func (a *Account) Balance() int64 {
	if a == nil || a.Credits == nil {
		return 0
	}
	return *a.Credits
}
