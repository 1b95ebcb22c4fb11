package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Quan/atm-banking-2/internal/domain"
	"github.com/The-Quan/atm-banking-2/internal/ledger"
	"github.com/The-Quan/atm-banking-2/internal/memstore"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) all() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.sent...)
}

func testConfig() ledger.Config {
	cfg := ledger.DefaultConfig()
	cfg.Clock = func() time.Time { return fixedNow }
	cfg.RetryBackoff = 0
	cfg.MaxAttempts = 100
	return cfg
}

func quietLogger() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

func newEngine(t *testing.T, cfg ledger.Config, opts ...ledger.Option) (*ledger.Engine, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	opts = append([]ledger.Option{ledger.WithLogger(quietLogger())}, opts...)
	eng, err := ledger.NewEngine(store, store, cfg, opts...)
	require.NoError(t, err)
	return eng, store
}

// openAccount registers a user and funds its account through the engine.
func openAccount(t *testing.T, eng *ledger.Engine, store *memstore.Store, email, balance string) int64 {
	t.Helper()
	u := &domain.User{Name: email, Email: email, Password: "x"}
	require.NoError(t, store.CreateUserWithAccount(context.Background(), u))
	if b := dec(balance); b.IsPositive() {
		_, err := eng.Deposit(context.Background(), u.Account.ID, b)
		require.NoError(t, err)
	}
	return u.Account.ID
}

func balanceOf(t *testing.T, eng *ledger.Engine, id int64) decimal.Decimal {
	t.Helper()
	acct, err := eng.Account(context.Background(), id)
	require.NoError(t, err)
	return acct.Balance
}

func history(t *testing.T, eng *ledger.Engine, id int64) []domain.Transaction {
	t.Helper()
	txs, total, err := eng.History(context.Background(), id, ledger.Page{})
	require.NoError(t, err)
	require.EqualValues(t, len(txs), total)
	return txs
}

func TestDepositIntoEmptyAccount(t *testing.T) {
	eng, store := newEngine(t, testConfig())
	id := openAccount(t, eng, store, "a@example.com", "0")

	rcpt, err := eng.Deposit(context.Background(), id, dec("500"))
	require.NoError(t, err)
	assert.True(t, rcpt.Balance.Equal(dec("500")))
	assert.Equal(t, domain.TypeDeposit, rcpt.Type)
	assert.Equal(t, fixedNow, rcpt.At)

	assert.True(t, balanceOf(t, eng, id).Equal(dec("500")))
	txs := history(t, eng, id)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TypeDeposit, txs[0].Type)
	assert.True(t, txs[0].Amount.Equal(dec("500")))
	assert.Equal(t, "2025-03-14", txs[0].BookingDate)
	assert.Equal(t, rcpt.TransactionID, txs[0].ID)
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	eng, store := newEngine(t, testConfig())
	id := openAccount(t, eng, store, "a@example.com", "300")

	_, err := eng.Withdraw(context.Background(), id, dec("500"))
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, "INSUFFICIENT_FUNDS", ledger.Code(err))

	assert.True(t, balanceOf(t, eng, id).Equal(dec("300")))
	assert.Len(t, history(t, eng, id), 1, "only the funding deposit")
}

func TestWithdrawDebitsBalance(t *testing.T) {
	eng, store := newEngine(t, testConfig())
	id := openAccount(t, eng, store, "a@example.com", "300")

	rcpt, err := eng.Withdraw(context.Background(), id, dec("120.50"))
	require.NoError(t, err)
	assert.True(t, rcpt.Balance.Equal(dec("179.50")))
	assert.True(t, balanceOf(t, eng, id).Equal(dec("179.50")))
}

func TestConcurrentWithdrawalsRespectDailyLimit(t *testing.T) {
	eng, store := newEngine(t, testConfig())
	id := openAccount(t, eng, store, "a@example.com", "200000000")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Withdraw(context.Background(), id, dec("60000000"))
		}(i)
	}
	wg.Wait()

	var ok, limited int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ledger.ErrLimitExceeded):
			limited++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, limited)
	assert.True(t, balanceOf(t, eng, id).Equal(dec("140000000")))
}

func TestDailyLimitManyRacers(t *testing.T) {
	cfg := testConfig()
	cfg.DailyWithdrawLimit = dec("1000")
	eng, store := newEngine(t, cfg)
	id := openAccount(t, eng, store, "a@example.com", "5000")

	var wg sync.WaitGroup
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Withdraw(context.Background(), id, dec("70"))
			if err != nil && !errors.Is(err, ledger.ErrLimitExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	withdrawn := decimal.Zero
	for _, rec := range history(t, eng, id) {
		if rec.Type == domain.TypeWithdraw {
			withdrawn = withdrawn.Add(rec.Amount)
		}
	}
	assert.True(t, withdrawn.Equal(dec("980")), "14 withdrawals of 70 fit under 1000, got %s", withdrawn)
	assert.True(t, balanceOf(t, eng, id).Equal(dec("4020")))
}

func TestDailyLimitResetsOnNextUTCDay(t *testing.T) {
	now := fixedNow
	cfg := testConfig()
	cfg.DailyWithdrawLimit = dec("100")
	cfg.Clock = func() time.Time { return now }
	eng, store := newEngine(t, cfg)
	id := openAccount(t, eng, store, "a@example.com", "500")

	_, err := eng.Withdraw(context.Background(), id, dec("100"))
	require.NoError(t, err)
	_, err = eng.Withdraw(context.Background(), id, dec("0.01"))
	require.ErrorIs(t, err, ledger.ErrLimitExceeded)

	now = time.Date(2025, 3, 15, 0, 0, 1, 0, time.UTC)
	_, err = eng.Withdraw(context.Background(), id, dec("100"))
	require.NoError(t, err)
}

func TestLimitCheckedBeforeBalance(t *testing.T) {
	cfg := testConfig()
	cfg.DailyWithdrawLimit = dec("50")
	eng, store := newEngine(t, cfg)
	id := openAccount(t, eng, store, "a@example.com", "10")

	_, err := eng.Withdraw(context.Background(), id, dec("60"))
	require.ErrorIs(t, err, ledger.ErrLimitExceeded)
}

func TestTransfer(t *testing.T) {
	note := &recordingNotifier{}
	eng, store := newEngine(t, testConfig(), ledger.WithNotifier(note))
	a := openAccount(t, eng, store, "a@example.com", "500")
	b := openAccount(t, eng, store, "b@example.com", "100")

	rcpt, err := eng.Transfer(context.Background(), a, b, dec("200"))
	require.NoError(t, err)
	assert.True(t, rcpt.Balance.Equal(dec("300")))
	assert.NotZero(t, rcpt.CounterTransactionID)

	assert.True(t, balanceOf(t, eng, a).Equal(dec("300")))
	assert.True(t, balanceOf(t, eng, b).Equal(dec("300")))

	out := history(t, eng, a)[0]
	assert.Equal(t, domain.TypeTransferOut, out.Type)
	assert.True(t, out.Amount.Equal(dec("200")))
	require.NotNil(t, out.CounterpartyAccountID)
	assert.Equal(t, b, *out.CounterpartyAccountID)

	in := history(t, eng, b)[0]
	assert.Equal(t, domain.TypeTransferIn, in.Type)
	assert.True(t, in.Amount.Equal(dec("200")))
	assert.Equal(t, rcpt.CounterTransactionID, in.ID)

	sent := note.all()
	last := sent[len(sent)-1]
	assert.Equal(t, "transfer", last.Type)
	assert.Equal(t, "a@example.com", last.Email)
	assert.True(t, last.Balance.Equal(dec("300")))
}

func TestTransferRejections(t *testing.T) {
	eng, store := newEngine(t, testConfig())
	a := openAccount(t, eng, store, "a@example.com", "500")
	b := openAccount(t, eng, store, "b@example.com", "0")

	tests := []struct {
		name     string
		from, to int64
		amount   string
		want     error
	}{
		{"same account", a, a, "10", ledger.ErrInvalidTransfer},
		{"unknown receiver", a, 999, "10", ledger.ErrAccountNotFound},
		{"unknown sender", 999, a, "10", ledger.ErrAccountNotFound},
		{"zero amount", a, b, "0", ledger.ErrInvalidAmount},
		{"overdraw", a, b, "500.01", ledger.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Transfer(context.Background(), tt.from, tt.to, dec(tt.amount))
			require.ErrorIs(t, err, tt.want)
		})
	}

	assert.True(t, balanceOf(t, eng, a).Equal(dec("500")))
	assert.True(t, balanceOf(t, eng, b).Equal(decimal.Zero))
	assert.Len(t, history(t, eng, a), 1)
	assert.Empty(t, history(t, eng, b))
}

func TestInvalidAmounts(t *testing.T) {
	eng, store := newEngine(t, testConfig())
	id := openAccount(t, eng, store, "a@example.com", "100")

	for _, amount := range []string{"-10", "0", "1.001"} {
		t.Run(amount, func(t *testing.T) {
			_, err := eng.Deposit(context.Background(), id, dec(amount))
			require.ErrorIs(t, err, ledger.ErrInvalidAmount)
			_, err = eng.Withdraw(context.Background(), id, dec(amount))
			require.ErrorIs(t, err, ledger.ErrInvalidAmount)
		})
	}
	assert.True(t, balanceOf(t, eng, id).Equal(dec("100")))
	assert.Len(t, history(t, eng, id), 1)
}

func TestUnknownAccount(t *testing.T) {
	eng, _ := newEngine(t, testConfig())

	_, err := eng.Deposit(context.Background(), 42, dec("1"))
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
	_, _, err = eng.History(context.Background(), 42, ledger.Page{})
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestConcurrentOppositeTransfersConserveMoney(t *testing.T) {
	eng, store := newEngine(t, testConfig())
	a := openAccount(t, eng, store, "a@example.com", "1000")
	b := openAccount(t, eng, store, "b@example.com", "1000")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := a, b
			if i%2 == 1 {
				from, to = b, a
			}
			_, err := eng.Transfer(context.Background(), from, to, dec("37"))
			if err != nil && !errors.Is(err, ledger.ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	total := balanceOf(t, eng, a).Add(balanceOf(t, eng, b))
	assert.True(t, total.Equal(dec("2000")), "got %s", total)
	for _, id := range []int64{a, b} {
		rec, err := eng.Verify(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, rec.Balanced(), "account %d: stored %s replayed %s", id, rec.Stored, rec.Replayed)
	}
}

func TestBalanceNeverNegativeUnderContention(t *testing.T) {
	eng, store := newEngine(t, testConfig())
	id := openAccount(t, eng, store, "a@example.com", "100")

	var wg sync.WaitGroup
	for range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = eng.Withdraw(context.Background(), id, dec("7"))
		}()
	}
	wg.Wait()

	bal := balanceOf(t, eng, id)
	assert.False(t, bal.IsNegative())
	assert.True(t, bal.Equal(dec("2")), "14 withdrawals of 7 leave 2, got %s", bal)
}

func TestCancelledContextLeavesNoTrace(t *testing.T) {
	eng, store := newEngine(t, testConfig())
	id := openAccount(t, eng, store, "a@example.com", "100")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Withdraw(ctx, id, dec("10"))
	require.ErrorIs(t, err, context.Canceled)

	assert.True(t, balanceOf(t, eng, id).Equal(dec("100")))
	assert.Len(t, history(t, eng, id), 1)
}

func TestNotifierFailureDoesNotFailOperation(t *testing.T) {
	note := &recordingNotifier{err: errors.New("queue down")}
	eng, store := newEngine(t, testConfig(), ledger.WithNotifier(note))
	id := openAccount(t, eng, store, "a@example.com", "0")

	rcpt, err := eng.Deposit(context.Background(), id, dec("25"))
	require.NoError(t, err)
	assert.True(t, rcpt.Balance.Equal(dec("25")))
}

func TestReadsAreIdempotent(t *testing.T) {
	eng, store := newEngine(t, testConfig())
	id := openAccount(t, eng, store, "a@example.com", "77.70")

	first := balanceOf(t, eng, id)
	for range 5 {
		assert.True(t, balanceOf(t, eng, id).Equal(first))
	}
}

// conflictingStore loses every commit race.
type conflictingStore struct {
	*memstore.Store
	attempts int
}

func (s *conflictingStore) Atomic(ctx context.Context, fn func(ledger.Tx) error) error {
	s.attempts++
	return s.Store.Atomic(ctx, func(tx ledger.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return ledger.ErrConflict
	})
}

func TestConflictExhaustion(t *testing.T) {
	mem := memstore.New()
	u := &domain.User{Name: "a", Email: "a@example.com", Password: "x"}
	require.NoError(t, mem.CreateUserWithAccount(context.Background(), u))

	store := &conflictingStore{Store: mem}
	cfg := testConfig()
	cfg.MaxAttempts = 3
	eng, err := ledger.NewEngine(store, mem, cfg, ledger.WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = eng.Deposit(context.Background(), u.Account.ID, dec("5"))
	require.ErrorIs(t, err, ledger.ErrTransientConflict)
	assert.Equal(t, 3, store.attempts)
	assert.True(t, balanceOf(t, eng, u.Account.ID).IsZero())
}

// brokenStore fails every unit with a driver-level error.
type brokenStore struct {
	*memstore.Store
}

func (s brokenStore) Atomic(context.Context, func(ledger.Tx) error) error {
	return errors.New("dial tcp: connection refused")
}

func TestStoreFailureIsClassified(t *testing.T) {
	mem := memstore.New()
	u := &domain.User{Name: "a", Email: "a@example.com", Password: "x"}
	require.NoError(t, mem.CreateUserWithAccount(context.Background(), u))

	eng, err := ledger.NewEngine(brokenStore{mem}, mem, testConfig(), ledger.WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = eng.Deposit(context.Background(), u.Account.ID, dec("5"))
	require.ErrorIs(t, err, ledger.ErrStoreUnavailable)
	assert.Equal(t, "STORE_UNAVAILABLE", ledger.Code(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestVerifyDetectsDrift(t *testing.T) {
	eng, store := newEngine(t, testConfig())
	id := openAccount(t, eng, store, "a@example.com", "50")

	acct, err := store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, store.CompareAndUpdateBalance(context.Background(), id, acct.Snapshot(), dec("51")))

	rec, err := eng.Verify(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, rec.Balanced())
	assert.True(t, rec.Replayed.Equal(dec("50")))
	assert.Equal(t, 1, rec.Records)
}

func TestVerifyBalancedDuringConcurrentDeposits(t *testing.T) {
	eng, store := newEngine(t, testConfig())
	id := openAccount(t, eng, store, "a@example.com", "0")
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 200 {
			_, err := eng.Deposit(ctx, id, dec("1.25"))
			assert.NoError(t, err)
		}
		close(stop)
	}()

	checks := 0
	for done := false; !done; {
		select {
		case <-stop:
			done = true
		default:
		}
		rec, err := eng.Verify(ctx, id)
		require.NoError(t, err)
		require.True(t, rec.Balanced(), "stored %s replayed %s", rec.Stored, rec.Replayed)
		checks++
	}
	wg.Wait()
	assert.Positive(t, checks)
	assert.True(t, balanceOf(t, eng, id).Equal(dec("250")))
}

func TestNewEngineValidatesConfig(t *testing.T) {
	store := memstore.New()
	cfg := testConfig()
	cfg.DailyWithdrawLimit = decimal.Zero
	_, err := ledger.NewEngine(store, store, cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.MaxAttempts = 0
	_, err = ledger.NewEngine(store, store, cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.AmountScale = ledger.StorageScale + 2
	_, err = ledger.NewEngine(store, store, cfg)
	require.Error(t, err, "scale finer than the columns")

	cfg = testConfig()
	cfg.MaxAmount = ledger.MaxStoredAmount.Add(dec("1"))
	_, err = ledger.NewEngine(store, store, cfg)
	require.Error(t, err, "max amount beyond the columns")

	_, err = ledger.NewEngine(nil, store, testConfig())
	require.Error(t, err)
}

func TestAmountsBeyondStorageRejected(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.MaxAmount = dec("1000")
	eng, store := newEngine(t, cfg)
	a := openAccount(t, eng, store, "a@example.com", "900")
	b := openAccount(t, eng, store, "b@example.com", "500")

	_, err := eng.Deposit(ctx, a, dec("1e30"))
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = eng.Withdraw(ctx, a, dec("1001"))
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	// Each amount is in range but the resulting balance is not.
	_, err = eng.Deposit(ctx, a, dec("200"))
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = eng.Transfer(ctx, b, a, dec("150"))
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	assert.True(t, balanceOf(t, eng, a).Equal(dec("900")))
	assert.True(t, balanceOf(t, eng, b).Equal(dec("500")))

	_, err = eng.Deposit(ctx, a, dec("100"))
	require.NoError(t, err, "exactly the maximum is allowed")
}

func TestDefaultMaxAmountMatchesColumns(t *testing.T) {
	assert.Equal(t, "9999999999999999.9999", ledger.MaxStoredAmount.String())
	assert.True(t, ledger.DefaultConfig().MaxAmount.Equal(ledger.MaxStoredAmount))
}
