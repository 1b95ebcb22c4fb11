package auth

import (
	"errors"

	"github.com/The-Quan/atm-banking-2/internal/domain"
)

// ErrForbidden is returned when the caller may not act on the account
var ErrForbidden = errors.New("access to this account is not allowed")

// Action is what a caller wants to do with an account
type Action int

const (
	// Read covers balance and history lookups
	Read Action = iota
	// Mutate covers deposits, withdrawals and the sending side of transfers
	Mutate
)

// Gateway is the authorization check applied before the ledger is called.
// Users act only on their own account; admins may read any account but
// move money only from their own.
type Gateway struct{}

// Authorize reports whether claims permit action on accountID
func (Gateway) Authorize(claims *Claims, accountID int64, action Action) error {
	if claims == nil {
		return ErrForbidden
	}
	if claims.AccountID == accountID {
		return nil
	}
	if action == Read && claims.Role == domain.RoleAdmin {
		return nil
	}
	return ErrForbidden
}

// AuthorizeUser reports whether claims permit reading the profile of userID
func (Gateway) AuthorizeUser(claims *Claims, userID int64) error {
	if claims == nil {
		return ErrForbidden
	}
	if claims.UserID == userID || claims.Role == domain.RoleAdmin {
		return nil
	}
	return ErrForbidden
}
