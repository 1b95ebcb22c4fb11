package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/The-Quan/atm-banking-2/internal/domain"
	"github.com/The-Quan/atm-banking-2/internal/ledger"
)

// GetUser loads the user with its account.
func (r *Repository) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var u domain.User
	if err := r.conn(ctx).Preload("Account").First(&u, userID).Error; err != nil {
		return nil, notFound(err, ledger.ErrUserNotFound)
	}
	return &u, nil
}

// GetUserByEmail loads the user registered under email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.conn(ctx).Preload("Account").Where("email = ?", normalizeEmail(email)).First(&u).Error
	if err != nil {
		return nil, notFound(err, ledger.ErrUserNotFound)
	}
	return &u, nil
}

// CreateUserWithAccount inserts the user and its zero balance account in one
// transaction.
func (r *Repository) CreateUserWithAccount(ctx context.Context, u *domain.User) error {
	u.Email = normalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.User{}).Where("email = ?", u.Email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrEmailTaken
		}
		if err := tx.Omit("Account").Create(u).Error; err != nil {
			return err
		}
		acct := &domain.Account{UserID: u.ID, Balance: decimal.Zero}
		if err := tx.Create(acct).Error; err != nil {
			return err
		}
		u.Account = acct
		return nil
	})
	err = mapError(err)
	if errors.Is(err, errDuplicate) {
		return domain.ErrEmailTaken
	}
	return err
}

// UpdatePassword replaces the stored password hash.
func (r *Repository) UpdatePassword(ctx context.Context, userID int64, hash string) error {
	res := r.conn(ctx).Model(&domain.User{}).Where("id = ?", userID).Update("password", hash)
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ledger.ErrUserNotFound
	}
	return nil
}

// ListUsers pages through users in id order with their accounts.
func (r *Repository) ListUsers(ctx context.Context, page ledger.Page) ([]domain.User, int64, error) {
	var total int64
	if err := r.conn(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
		return nil, 0, mapError(err)
	}
	users := make([]domain.User, 0)
	if err := paginate(r.conn(ctx).Preload("Account").Order("id"), page).Find(&users).Error; err != nil {
		return nil, 0, mapError(err)
	}
	return users, total, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
