// Package memstore keeps accounts, users and ledger records in process
// memory. It backs the engine in tests and in single-node demo deployments.
package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/The-Quan/atm-banking-2/internal/domain"
	"github.com/The-Quan/atm-banking-2/internal/ledger"
)

// Store implements ledger.Store and the user directory. Units of work stage
// their writes and validate them at commit under the store lock, so fn itself
// runs unlocked and concurrent units race the way they would against SQL.
type Store struct {
	mu       sync.RWMutex
	accounts map[int64]*domain.Account
	byOwner  map[int64]int64 // user id -> account id
	users    map[int64]*domain.User
	byEmail  map[string]int64
	records  []domain.Transaction

	nextAccount int64
	nextUser    int64
	nextRecord  int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[int64]*domain.Account),
		byOwner:  make(map[int64]int64),
		users:    make(map[int64]*domain.User),
		byEmail:  make(map[string]int64),
	}
}

var _ ledger.Store = (*Store)(nil)

var errAccountExists = errors.New("memstore: user already has an account")

// GetAccount returns a copy of the committed account.
func (s *Store) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

// CompareAndUpdateBalance applies the update immediately, outside any unit.
func (s *Store) CompareAndUpdateBalance(ctx context.Context, accountID int64, expected domain.Snapshot, newBalance decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyBalance(accountID, expected, newBalance, time.Now())
}

// CreateAccount opens a zero balance account for the owner.
func (s *Store) CreateAccount(ctx context.Context, ownerUserID int64) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[ownerUserID]; !ok {
		return nil, ledger.ErrUserNotFound
	}
	if _, ok := s.byOwner[ownerUserID]; ok {
		return nil, errAccountExists
	}
	return s.createAccount(ownerUserID), nil
}

// Append stores rec immediately, outside any unit.
func (s *Store) Append(ctx context.Context, rec *domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[rec.AccountID]; !ok {
		return ledger.ErrAccountNotFound
	}
	s.nextRecord++
	rec.ID = s.nextRecord
	s.records = append(s.records, *rec)
	return nil
}

// SumByTypeAndDate totals committed records.
func (s *Store) SumByTypeAndDate(ctx context.Context, accountID int64, typ domain.TransactionType, day time.Time) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumRecords(s.records, accountID, typ, domain.BookingDate(day)), nil
}

// ListByAccount lists committed records most recent first.
func (s *Store) ListByAccount(ctx context.Context, accountID int64, page ledger.Page) ([]domain.Transaction, int64, error) {
	return s.SearchTransactions(ctx, ledger.TransactionFilter{AccountID: accountID, Page: page})
}

// SearchTransactions filters records across every account.
func (s *Store) SearchTransactions(ctx context.Context, f ledger.TransactionFilter) ([]domain.Transaction, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	matched := make([]domain.Transaction, 0)
	for _, rec := range s.records {
		if matches(rec, f) {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	sortRecent(matched)
	total := int64(len(matched))
	return window(matched, f.Page), total, nil
}

// Atomic runs fn against a staging view and commits its writes together.
func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &unit{store: s, updates: make(map[int64]pending)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(tx.updates))
	for id := range tx.updates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		acct, ok := s.accounts[id]
		if !ok {
			return ledger.ErrAccountNotFound
		}
		if !sameSnapshot(acct, tx.updates[id].base) {
			return ledger.ErrConflict
		}
	}
	for _, rec := range tx.appends {
		if _, ok := s.accounts[rec.AccountID]; !ok {
			return ledger.ErrAccountNotFound
		}
	}

	now := time.Now()
	for _, id := range ids {
		p := tx.updates[id]
		acct := s.accounts[id]
		acct.Balance = p.balance
		acct.Version = p.base.Version + 1
		acct.UpdatedAt = now
	}
	for _, rec := range tx.appends {
		s.records = append(s.records, *rec)
	}
	return nil
}

func (s *Store) applyBalance(accountID int64, expected domain.Snapshot, newBalance decimal.Decimal, now time.Time) error {
	acct, ok := s.accounts[accountID]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	if !sameSnapshot(acct, expected) {
		return ledger.ErrConflict
	}
	acct.Balance = newBalance
	acct.Version++
	acct.UpdatedAt = now
	return nil
}

func (s *Store) createAccount(ownerUserID int64) *domain.Account {
	now := time.Now()
	s.nextAccount++
	acct := &domain.Account{
		ID:        s.nextAccount,
		UserID:    ownerUserID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.accounts[acct.ID] = acct
	s.byOwner[ownerUserID] = acct.ID
	cp := *acct
	return &cp
}

// reserveRecordID hands out ids in Append order. Ids of aborted units are
// never reused.
func (s *Store) reserveRecordID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRecord++
	return s.nextRecord
}

type pending struct {
	base    domain.Snapshot
	balance decimal.Decimal
}

// unit is the staging view handed to Atomic callbacks. Reads see the
// committed state overlaid with the unit's own writes.
type unit struct {
	store   *Store
	updates map[int64]pending
	appends []*domain.Transaction
}

func (u *unit) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	acct, err := u.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if p, ok := u.updates[accountID]; ok {
		acct.Balance = p.balance
		acct.Version = p.base.Version + 1
	}
	return acct, nil
}

func (u *unit) CompareAndUpdateBalance(ctx context.Context, accountID int64, expected domain.Snapshot, newBalance decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	current, err := u.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !sameSnapshot(current, expected) {
		return ledger.ErrConflict
	}
	base := expected
	if p, ok := u.updates[accountID]; ok {
		base = p.base
	}
	u.updates[accountID] = pending{base: base, balance: newBalance}
	return nil
}

func (u *unit) CreateAccount(ctx context.Context, ownerUserID int64) (*domain.Account, error) {
	return u.store.CreateAccount(ctx, ownerUserID)
}

func (u *unit) Append(ctx context.Context, rec *domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.ID = u.store.reserveRecordID()
	cp := *rec
	u.appends = append(u.appends, &cp)
	return nil
}

func (u *unit) SumByTypeAndDate(ctx context.Context, accountID int64, typ domain.TransactionType, day time.Time) (decimal.Decimal, error) {
	sum, err := u.store.SumByTypeAndDate(ctx, accountID, typ, day)
	if err != nil {
		return decimal.Zero, err
	}
	date := domain.BookingDate(day)
	for _, rec := range u.appends {
		if rec.AccountID == accountID && rec.Type == typ && rec.BookingDate == date {
			sum = sum.Add(rec.Amount)
		}
	}
	return sum, nil
}

func (u *unit) ListByAccount(ctx context.Context, accountID int64, page ledger.Page) ([]domain.Transaction, int64, error) {
	all, _, err := u.store.ListByAccount(ctx, accountID, ledger.Page{})
	if err != nil {
		return nil, 0, err
	}
	for _, rec := range u.appends {
		if rec.AccountID == accountID {
			all = append(all, *rec)
		}
	}
	sortRecent(all)
	return window(all, page), int64(len(all)), nil
}

func sameSnapshot(acct *domain.Account, snap domain.Snapshot) bool {
	return acct.Version == snap.Version && acct.Balance.Equal(snap.Balance)
}

func sumRecords(records []domain.Transaction, accountID int64, typ domain.TransactionType, date string) decimal.Decimal {
	sum := decimal.Zero
	for _, rec := range records {
		if rec.AccountID == accountID && rec.Type == typ && rec.BookingDate == date {
			sum = sum.Add(rec.Amount)
		}
	}
	return sum
}

func matches(rec domain.Transaction, f ledger.TransactionFilter) bool {
	if f.AccountID != 0 && rec.AccountID != f.AccountID {
		return false
	}
	if f.Type != "" && rec.Type != f.Type {
		return false
	}
	if !f.From.IsZero() && rec.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && rec.CreatedAt.After(f.To) {
		return false
	}
	return true
}

func sortRecent(records []domain.Transaction) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})
}

func window(records []domain.Transaction, page ledger.Page) []domain.Transaction {
	if page.Offset >= len(records) {
		return []domain.Transaction{}
	}
	records = records[max(page.Offset, 0):]
	if page.Limit > 0 && page.Limit < len(records) {
		records = records[:page.Limit]
	}
	return records
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
