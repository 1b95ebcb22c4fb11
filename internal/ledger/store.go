package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/The-Quan/atm-banking-2/internal/domain"
)

// AccountStore maps account ids to balances and owners.
type AccountStore interface {
	// GetAccount returns ErrAccountNotFound when no account has the id.
	GetAccount(ctx context.Context, accountID int64) (*domain.Account, error)
	// CompareAndUpdateBalance sets the balance to newBalance only if the
	// stored account still matches expected, bumping its version. It
	// returns ErrConflict when the stored account has moved on.
	CompareAndUpdateBalance(ctx context.Context, accountID int64, expected domain.Snapshot, newBalance decimal.Decimal) error
	// CreateAccount opens a zero balance account for the owner.
	CreateAccount(ctx context.Context, ownerUserID int64) (*domain.Account, error)
}

// Page selects a window of a listing. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// TransactionLedger is the append-only record of balance changes.
type TransactionLedger interface {
	// Append stores rec and assigns its ID. CreatedAt and BookingDate are
	// stamped by the engine before the call.
	Append(ctx context.Context, rec *domain.Transaction) error
	// SumByTypeAndDate totals the amounts of one record type booked on the
	// UTC calendar date of day. It is zero when nothing matches.
	SumByTypeAndDate(ctx context.Context, accountID int64, typ domain.TransactionType, day time.Time) (decimal.Decimal, error)
	// ListByAccount returns the account's records most recent first along
	// with the total number of records.
	ListByAccount(ctx context.Context, accountID int64, page Page) ([]domain.Transaction, int64, error)
}

// Tx is the view of both stores inside one atomic unit.
type Tx interface {
	AccountStore
	TransactionLedger
}

// Store runs atomic units over accounts and the ledger. Reads made on the
// Store itself are outside any unit.
type Store interface {
	Tx
	// Atomic runs fn and commits every write it made, or none of them. A
	// commit that loses a race returns ErrConflict with nothing applied.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// SnapshotReader is implemented by stores that can run a read-only unit
// in which every read sees the same committed state.
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context, fn func(tx Tx) error) error
}

// UserDirectory resolves account owners.
type UserDirectory interface {
	// GetUser returns ErrUserNotFound when no user has the id.
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
}

// Notifier is told about committed mutations. Implementations should queue
// and return quickly; errors are logged and otherwise ignored.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// TransactionFilter narrows a search over every account's records.
type TransactionFilter struct {
	AccountID int64                  // Zero matches every account
	Type      domain.TransactionType // Empty matches every type
	From      time.Time              // Inclusive lower bound on CreatedAt, zero is open
	To        time.Time              // Inclusive upper bound on CreatedAt, zero is open
	Page      Page
}
