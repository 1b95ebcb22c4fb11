package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/The-Quan/atm-banking-2/internal/domain"
	"github.com/The-Quan/atm-banking-2/internal/ledger"
)

// Append inserts rec; the database assigns its ID.
func (r *Repository) Append(ctx context.Context, rec *domain.Transaction) error {
	return mapError(r.conn(ctx).Create(rec).Error)
}

// SumByTypeAndDate totals one record type over a UTC booking date.
func (r *Repository) SumByTypeAndDate(ctx context.Context, accountID int64, typ domain.TransactionType, day time.Time) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.conn(ctx).Model(&domain.Transaction{}).
		Select("SUM(amount)").
		Where("account_id = ? AND type = ? AND booking_date = ?", accountID, typ, domain.BookingDate(day)).
		Row().Scan(&sum)
	if err != nil {
		return decimal.Zero, mapError(err)
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// ListByAccount returns the account's records most recent first.
func (r *Repository) ListByAccount(ctx context.Context, accountID int64, page ledger.Page) ([]domain.Transaction, int64, error) {
	return r.SearchTransactions(ctx, ledger.TransactionFilter{AccountID: accountID, Page: page})
}

// SearchTransactions filters records across every account.
func (r *Repository) SearchTransactions(ctx context.Context, f ledger.TransactionFilter) ([]domain.Transaction, int64, error) {
	query := filtered(r.conn(ctx).Model(&domain.Transaction{}), f)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, mapError(err)
	}
	txs := make([]domain.Transaction, 0)
	if err := paginate(query.Order("created_at desc, id desc"), f.Page).Find(&txs).Error; err != nil {
		return nil, 0, mapError(err)
	}
	return txs, total, nil
}

func filtered(q *gorm.DB, f ledger.TransactionFilter) *gorm.DB {
	if f.AccountID != 0 {
		q = q.Where("account_id = ?", f.AccountID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("created_at <= ?", f.To.UTC())
	}
	return q
}
