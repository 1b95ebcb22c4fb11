package memstore

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/The-Quan/atm-banking-2/internal/domain"
	"github.com/The-Quan/atm-banking-2/internal/ledger"
)

var errReadOnly = errors.New("memstore: snapshot is read-only")

var _ ledger.SnapshotReader = (*Store)(nil)

// ReadSnapshot runs fn over a copy of the committed state taken under one
// read lock. Writes through the view fail.
func (s *Store) ReadSnapshot(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	view := &snapshot{
		accounts: make(map[int64]domain.Account, len(s.accounts)),
		records:  append([]domain.Transaction(nil), s.records...),
	}
	for id, acct := range s.accounts {
		view.accounts[id] = *acct
	}
	s.mu.RUnlock()
	return fn(view)
}

// snapshot is a frozen copy of accounts and records.
type snapshot struct {
	accounts map[int64]domain.Account
	records  []domain.Transaction
}

func (v *snapshot) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acct, ok := v.accounts[accountID]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return &acct, nil
}

func (v *snapshot) CompareAndUpdateBalance(context.Context, int64, domain.Snapshot, decimal.Decimal) error {
	return errReadOnly
}

func (v *snapshot) CreateAccount(context.Context, int64) (*domain.Account, error) {
	return nil, errReadOnly
}

func (v *snapshot) Append(context.Context, *domain.Transaction) error {
	return errReadOnly
}

func (v *snapshot) SumByTypeAndDate(ctx context.Context, accountID int64, typ domain.TransactionType, day time.Time) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	return sumRecords(v.records, accountID, typ, domain.BookingDate(day)), nil
}

func (v *snapshot) ListByAccount(ctx context.Context, accountID int64, page ledger.Page) ([]domain.Transaction, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	matched := make([]domain.Transaction, 0)
	for _, rec := range v.records {
		if rec.AccountID == accountID {
			matched = append(matched, rec)
		}
	}
	sortRecent(matched)
	return window(matched, page), int64(len(matched)), nil
}
