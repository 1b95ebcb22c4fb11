package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of balance change a ledger record describes.
type TransactionType string

const (
	TypeDeposit     TransactionType = "deposit"
	TypeWithdraw    TransactionType = "withdraw"
	TypeTransferOut TransactionType = "transfer_out"
	TypeTransferIn  TransactionType = "transfer_in"
)

// Valid reports whether t is one of the known ledger record types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdraw, TypeTransferOut, TypeTransferIn:
		return true
	}
	return false
}

// Credit reports whether records of this type increase the balance.
func (t TransactionType) Credit() bool {
	return t == TypeDeposit || t == TypeTransferIn
}

// BookingDateLayout is the format of Transaction.BookingDate.
const BookingDateLayout = "2006-01-02"

// BookingDate returns the UTC calendar date used for daily accounting.
func BookingDate(t time.Time) string {
	return t.UTC().Format(BookingDateLayout)
}

// Transaction Model, append-only
type Transaction struct {
	ID                    int64           `gorm:"primaryKey;autoIncrement" json:"id"`                                                       // Primary key, monotonically assigned
	AccountID             int64           `gorm:"not null;index:idx_tx_daily,priority:1;index:idx_tx_history,priority:1" json:"account_id"` // Account the record belongs to
	Type                  TransactionType `gorm:"size:16;not null;index:idx_tx_daily,priority:2" json:"type"`                               // deposit, withdraw, transfer_out, transfer_in
	Amount                decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`                                                // Always positive
	BookingDate           string          `gorm:"size:10;not null;index:idx_tx_daily,priority:3" json:"booking_date"`                       // UTC date of CreatedAt
	CounterpartyAccountID *int64          `json:"counterparty_account_id,omitempty"`                                                        // Other side of a transfer
	CreatedAt             time.Time       `gorm:"not null;index:idx_tx_history,priority:2" json:"date"`                                     // Commit time, assigned by the engine
}

// Notification is what the notification service is told after a committed mutation.
type Notification struct {
	Email         string          `json:"email"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	AccountID     int64           `json:"account_id"`
	TransactionID int64           `json:"transaction_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
