package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/The-Quan/atm-banking-2/internal/domain"
)

// Reconciliation compares a stored balance with the balance replayed from
// the account's ledger records.
type Reconciliation struct {
	AccountID int64           `json:"account_id"`
	Stored    decimal.Decimal `json:"stored_balance"`
	Replayed  decimal.Decimal `json:"replayed_balance"`
	Records   int             `json:"records"`
}

// Balanced reports whether the stored and replayed balances agree.
func (r Reconciliation) Balanced() bool {
	return r.Stored.Equal(r.Replayed)
}

// Replay folds records into the balance they produce from zero.
func Replay(records []domain.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, rec := range records {
		if rec.Type.Credit() {
			sum = sum.Add(rec.Amount)
		} else {
			sum = sum.Sub(rec.Amount)
		}
	}
	return sum
}

// Verify replays the account's ledger so the records and the balance come
// from the same snapshot. Stores that implement SnapshotReader are read
// through it; others through an atomic unit.
func (e *Engine) Verify(ctx context.Context, accountID int64) (*Reconciliation, error) {
	read := e.store.Atomic
	if sr, ok := e.store.(SnapshotReader); ok {
		read = sr.ReadSnapshot
	}
	var rec Reconciliation
	err := read(ctx, func(tx Tx) error {
		acct, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		records, _, err := tx.ListByAccount(ctx, accountID, Page{})
		if err != nil {
			return err
		}
		rec = Reconciliation{
			AccountID: accountID,
			Stored:    acct.Balance,
			Replayed:  Replay(records),
			Records:   len(records),
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !rec.Balanced() {
		e.log.WithFields(logrus.Fields{
			"account_id": accountID,
			"stored":     rec.Stored.String(),
			"replayed":   rec.Replayed.String(),
		}).Error("ledger does not reconcile")
	}
	return &rec, nil
}
