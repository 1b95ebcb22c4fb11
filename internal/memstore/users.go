package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/The-Quan/atm-banking-2/internal/domain"
	"github.com/The-Quan/atm-banking-2/internal/ledger"
)

// GetUser returns a copy of the user with its account attached.
func (s *Store) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	return s.withAccount(u), nil
}

// GetUserByEmail looks a user up by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	return s.withAccount(s.users[id]), nil
}

// CreateUserWithAccount registers u and opens its account in one step. It
// fills in u.ID and u.Account.
func (s *Store) CreateUserWithAccount(ctx context.Context, u *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email := normalizeEmail(u.Email)
	if _, taken := s.byEmail[email]; taken {
		return domain.ErrEmailTaken
	}
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	s.nextUser++
	u.ID = s.nextUser
	u.Email = email
	u.CreatedAt = time.Now()

	stored := *u
	stored.Account = nil
	s.users[u.ID] = &stored
	s.byEmail[email] = u.ID
	u.Account = s.createAccount(u.ID)
	return nil
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(ctx context.Context, userID int64, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ledger.ErrUserNotFound
	}
	u.Password = hash
	return nil
}

// GetAccountByUser returns the account owned by the user.
func (s *Store) GetAccountByUser(ctx context.Context, userID int64) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byOwner[userID]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	cp := *s.accounts[id]
	return &cp, nil
}

// ListUsers returns users in id order with their accounts.
func (s *Store) ListUsers(ctx context.Context, page ledger.Page) ([]domain.User, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	total := int64(len(ids))
	if page.Offset >= len(ids) {
		return []domain.User{}, total, nil
	}
	ids = ids[max(page.Offset, 0):]
	if page.Limit > 0 && page.Limit < len(ids) {
		ids = ids[:page.Limit]
	}
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, *s.withAccount(s.users[id]))
	}
	return users, total, nil
}

// withAccount copies u and attaches a copy of its account. Callers hold mu.
func (s *Store) withAccount(u *domain.User) *domain.User {
	cp := *u
	if id, ok := s.byOwner[u.ID]; ok {
		acct := *s.accounts[id]
		cp.Account = &acct
	}
	return &cp
}

// ListAccountIDs returns every account id in ascending order.
func (s *Store) ListAccountIDs(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
