package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/The-Quan/atm-banking-2/internal/domain"
	"github.com/The-Quan/atm-banking-2/internal/ledger"
)

// GetAccount loads the account by id.
func (r *Repository) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	var acct domain.Account
	if err := r.conn(ctx).First(&acct, accountID).Error; err != nil {
		return nil, notFound(err, ledger.ErrAccountNotFound)
	}
	return &acct, nil
}

// CompareAndUpdateBalance writes newBalance only while the row still carries
// the expected version.
func (r *Repository) CompareAndUpdateBalance(ctx context.Context, accountID int64, expected domain.Snapshot, newBalance decimal.Decimal) error {
	res := r.conn(ctx).Model(&domain.Account{}).
		Where("id = ? AND version = ?", accountID, expected.Version).
		Updates(map[string]any{
			"balance":    newBalance,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var n int64
	if err := r.conn(ctx).Model(&domain.Account{}).Where("id = ?", accountID).Count(&n).Error; err != nil {
		return mapError(err)
	}
	if n == 0 {
		return ledger.ErrAccountNotFound
	}
	return ledger.ErrConflict
}

// CreateAccount opens a zero balance account for the owner.
func (r *Repository) CreateAccount(ctx context.Context, ownerUserID int64) (*domain.Account, error) {
	var n int64
	if err := r.conn(ctx).Model(&domain.User{}).Where("id = ?", ownerUserID).Count(&n).Error; err != nil {
		return nil, mapError(err)
	}
	if n == 0 {
		return nil, ledger.ErrUserNotFound
	}
	acct := domain.Account{UserID: ownerUserID, Balance: decimal.Zero}
	if err := r.conn(ctx).Create(&acct).Error; err != nil {
		return nil, mapError(err)
	}
	return &acct, nil
}

// GetAccountByUser loads the account owned by the user.
func (r *Repository) GetAccountByUser(ctx context.Context, userID int64) (*domain.Account, error) {
	var acct domain.Account
	if err := r.conn(ctx).Where("user_id = ?", userID).First(&acct).Error; err != nil {
		return nil, notFound(err, ledger.ErrAccountNotFound)
	}
	return &acct, nil
}

// ListAccountIDs returns every account id in ascending order.
func (r *Repository) ListAccountIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.conn(ctx).Model(&domain.Account{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}
