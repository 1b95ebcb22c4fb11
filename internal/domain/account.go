package domain

import (
	"time" // Timestamps for audit columns

	"github.com/shopspring/decimal" // Fixed-point money
)

// Account Model
type Account struct {
	ID        int64           `gorm:"primaryKey" json:"account_id"`                         // Primary key
	UserID    int64           `gorm:"uniqueIndex;not null" json:"user_id"`                  // Owning user, one account per user
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"` // Current balance, never negative
	Version   int64           `gorm:"not null;default:0" json:"version"`                    // Optimistic concurrency token
	CreatedAt time.Time       `json:"created_at"`                                           // Creation time
	UpdatedAt time.Time       `json:"updated_at"`                                           // Last balance change
}

// Snapshot is the part of an account a conditional update is checked against.
type Snapshot struct {
	Balance decimal.Decimal
	Version int64
}

// Snapshot returns the balance and version the account was read at.
func (a *Account) Snapshot() Snapshot {
	return Snapshot{Balance: a.Balance, Version: a.Version}
}
