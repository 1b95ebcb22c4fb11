package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/The-Quan/atm-banking-2/internal/config"
	"github.com/The-Quan/atm-banking-2/internal/db"
	"github.com/The-Quan/atm-banking-2/internal/domain"
	"github.com/The-Quan/atm-banking-2/internal/ledger"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	cfg := config.Default()
	cfg.DBDriver = config.DriverSQLite
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.LogLevel = "silent"
	gdb, err := db.Open(&cfg)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })
	return New(gdb)
}

func register(t *testing.T, r *Repository, email string) *domain.User {
	t.Helper()
	u := &domain.User{Name: "n", Email: email, Password: "hash"}
	require.NoError(t, r.CreateUserWithAccount(context.Background(), u))
	return u
}

func TestUsers(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	u := register(t, r, " Bob@Example.com ")
	require.NotNil(t, u.Account)
	assert.Equal(t, "bob@example.com", u.Email)
	assert.Equal(t, domain.RoleUser, u.Role)

	err := r.CreateUserWithAccount(ctx, &domain.User{Name: "x", Email: "bob@example.com", Password: "h"})
	require.ErrorIs(t, err, domain.ErrEmailTaken)

	got, err := r.GetUserByEmail(ctx, "BOB@example.com")
	require.NoError(t, err)
	require.NotNil(t, got.Account)
	assert.Equal(t, u.Account.ID, got.Account.ID)

	require.NoError(t, r.UpdatePassword(ctx, u.ID, "new-hash"))
	got, err = r.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.Password)

	_, err = r.GetUser(ctx, 404)
	require.ErrorIs(t, err, ledger.ErrUserNotFound)
	require.ErrorIs(t, r.UpdatePassword(ctx, 404, "h"), ledger.ErrUserNotFound)

	register(t, r, "carol@example.com")
	users, total, err := r.ListUsers(ctx, ledger.Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, users, 1)
	assert.Equal(t, "carol@example.com", users[0].Email)

	ids, err := r.ListAccountIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestCompareAndUpdateBalance(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	acct := register(t, r, "a@example.com").Account

	fresh, err := r.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	require.NoError(t, r.CompareAndUpdateBalance(ctx, acct.ID, fresh.Snapshot(), decimal.NewFromInt(40)))

	err = r.CompareAndUpdateBalance(ctx, acct.ID, fresh.Snapshot(), decimal.NewFromInt(99))
	require.ErrorIs(t, err, ledger.ErrConflict, "stale version")

	err = r.CompareAndUpdateBalance(ctx, 999, fresh.Snapshot(), decimal.NewFromInt(1))
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	got, err := r.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(40)))
	assert.EqualValues(t, fresh.Version+1, got.Version)

	_, err = r.GetAccount(ctx, 999)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestAtomicRollsBack(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	acct := register(t, r, "a@example.com").Account
	boom := errors.New("boom")

	err := r.Atomic(ctx, func(tx ledger.Tx) error {
		a, err := tx.GetAccount(ctx, acct.ID)
		require.NoError(t, err)
		require.NoError(t, tx.CompareAndUpdateBalance(ctx, acct.ID, a.Snapshot(), decimal.NewFromInt(10)))
		now := time.Now().UTC()
		require.NoError(t, tx.Append(ctx, &domain.Transaction{
			AccountID: acct.ID, Type: domain.TypeDeposit, Amount: decimal.NewFromInt(10),
			BookingDate: domain.BookingDate(now), CreatedAt: now,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := r.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())
	_, total, err := r.ListByAccount(ctx, acct.ID, ledger.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestLedgerQueries(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	a := register(t, r, "a@example.com").Account
	b := register(t, r, "b@example.com").Account
	day := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	add := func(acct int64, typ domain.TransactionType, amount string, at time.Time) {
		require.NoError(t, r.Append(ctx, &domain.Transaction{
			AccountID: acct, Type: typ, Amount: decimal.RequireFromString(amount),
			BookingDate: domain.BookingDate(at), CreatedAt: at,
		}))
	}
	add(a.ID, domain.TypeWithdraw, "10.25", day)
	add(a.ID, domain.TypeWithdraw, "4.75", day.Add(time.Hour))
	add(a.ID, domain.TypeWithdraw, "100", day.AddDate(0, 0, 1))
	add(a.ID, domain.TypeDeposit, "1000", day)
	add(b.ID, domain.TypeWithdraw, "1", day)

	sum, err := r.SumByTypeAndDate(ctx, a.ID, domain.TypeWithdraw, day)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(15)), "got %s", sum)

	sum, err = r.SumByTypeAndDate(ctx, b.ID, domain.TypeDeposit, day)
	require.NoError(t, err)
	assert.True(t, sum.IsZero())

	txs, total, err := r.ListByAccount(ctx, a.ID, ledger.Page{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].CreatedAt.After(txs[1].CreatedAt) || txs[0].CreatedAt.Equal(txs[1].CreatedAt))
	assert.Equal(t, domain.TypeWithdraw, txs[0].Type)

	_, total, err = r.SearchTransactions(ctx, ledger.TransactionFilter{Type: domain.TypeWithdraw, From: day, To: day.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
}

func TestEngineOverRepository(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	a := register(t, r, "a@example.com").Account
	b := register(t, r, "b@example.com").Account

	cfg := ledger.DefaultConfig()
	cfg.DailyWithdrawLimit = decimal.NewFromInt(100)
	eng, err := ledger.NewEngine(r, r, cfg)
	require.NoError(t, err)

	_, err = eng.Deposit(ctx, a.ID, decimal.NewFromInt(500))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Withdraw(ctx, a.ID, decimal.NewFromInt(60))
		}(i)
	}
	wg.Wait()
	failures := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ledger.ErrLimitExceeded)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	_, err = eng.Transfer(ctx, a.ID, b.ID, decimal.RequireFromString("200.50"))
	require.NoError(t, err)

	for _, id := range []int64{a.ID, b.ID} {
		rec, err := eng.Verify(ctx, id)
		require.NoError(t, err)
		assert.True(t, rec.Balanced(), "account %d", id)
	}
	got, err := r.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("239.50")), "got %s", got.Balance)
}

// newWALRepo opens a file database in WAL mode with a pool of connections,
// so concurrent units run on separate connections.
func newWALRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "wal.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(4)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })
	return New(gdb)
}

func TestWithdrawalRaceAcrossConnections(t *testing.T) {
	r := newWALRepo(t)
	ctx := context.Background()
	a := register(t, r, "a@example.com").Account

	cfg := ledger.DefaultConfig()
	cfg.MaxAttempts = 50
	cfg.RetryBackoff = time.Millisecond
	eng, err := ledger.NewEngine(r, r, cfg)
	require.NoError(t, err)
	_, err = eng.Deposit(ctx, a.ID, decimal.NewFromInt(100))
	require.NoError(t, err)

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = eng.Withdraw(ctx, a.ID, decimal.NewFromInt(60))
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	}
	assert.Equal(t, 1, succeeded)

	got, err := r.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(40)), "got %s", got.Balance)
	rec, err := eng.Verify(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, rec.Balanced())
	assert.Equal(t, 2, rec.Records)
}

func TestReadSnapshot(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	a := register(t, r, "a@example.com").Account
	now := time.Now().UTC()
	require.NoError(t, r.Atomic(ctx, func(tx ledger.Tx) error {
		if err := tx.CompareAndUpdateBalance(ctx, a.ID, a.Snapshot(), decimal.NewFromInt(5)); err != nil {
			return err
		}
		return tx.Append(ctx, &domain.Transaction{AccountID: a.ID, Type: domain.TypeDeposit, Amount: decimal.NewFromInt(5), BookingDate: domain.BookingDate(now), CreatedAt: now})
	}))

	err := r.ReadSnapshot(ctx, func(tx ledger.Tx) error {
		acct, err := tx.GetAccount(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, acct.Balance.Equal(decimal.NewFromInt(5)))
		records, total, err := tx.ListByAccount(ctx, a.ID, ledger.Page{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.True(t, ledger.Replay(records).Equal(acct.Balance))
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	require.ErrorIs(t, r.ReadSnapshot(ctx, func(ledger.Tx) error { return boom }), boom)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, ledger.ErrConflict},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, ledger.ErrConflict},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, errDuplicate},
		{"postgres serialization", &pq.Error{Code: "40001"}, ledger.ErrConflict},
		{"postgres deadlock", &pq.Error{Code: "40P01"}, ledger.ErrConflict},
		{"postgres unique", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), errDuplicate},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, ledger.ErrConflict},
		{"sqlite busy snapshot", sqlite3.Error{Code: sqlite3.ErrBusy, ExtendedCode: sqlite3.ErrBusySnapshot}, ledger.ErrConflict},
		{"sqlite extended code only", sqlite3.Error{Code: sqlite3.ErrNo(sqlite3.ErrBusySnapshot)}, ledger.ErrConflict},
		{"sqlite locked", fmt.Errorf("commit: %w", sqlite3.Error{Code: sqlite3.ErrLocked}), ledger.ErrConflict},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, errDuplicate},
		{"ledger error", ledger.ErrInsufficientFunds, ledger.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}
	other := errors.New("network")
	assert.Equal(t, other, mapError(other))
	assert.NoError(t, mapError(nil))
}
