// Package ledger is the engine that moves money between accounts. Every
// mutation runs as one atomic unit over an AccountStore and a
// TransactionLedger, guarded by optimistic concurrency with bounded retry.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/The-Quan/atm-banking-2/internal/domain"
)

// Receipt is the success payload of a mutating operation.
type Receipt struct {
	TransactionID        int64                  `json:"transaction_id"`
	CounterTransactionID int64                  `json:"counter_transaction_id,omitempty"` // transfer_in record of a transfer
	AccountID            int64                  `json:"account_id"`
	Type                 domain.TransactionType `json:"type"`
	Amount               decimal.Decimal        `json:"amount"`
	Balance              decimal.Decimal        `json:"new_balance"`
	At                   time.Time              `json:"date"`
}

// Engine executes deposits, withdrawals and transfers. It holds no mutable
// state of its own and is safe for concurrent use.
type Engine struct {
	store    Store
	users    UserDirectory
	notifier Notifier
	cfg      Config
	log      *logrus.Entry
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the service told about committed mutations.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithLogger sets the logger the engine writes to.
func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// NewEngine builds an engine over store. users resolves account owners for
// notifications and owner checks.
func NewEngine(store Store, users UserDirectory, cfg Config, opts ...Option) (*Engine, error) {
	if store == nil || users == nil {
		return nil, errors.New("ledger: store and user directory are required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		store: store,
		users: users,
		cfg:   cfg,
		log:   logrus.WithField("component", "ledger"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the configuration the engine runs with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Deposit credits amount to the account.
func (e *Engine) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (*Receipt, error) {
	fields := logrus.Fields{"op": "deposit", "account_id": accountID, "amount": amount.String()}
	if err := checkAmount(amount, e.cfg); err != nil {
		return nil, e.fail(fields, err)
	}
	owner, err := e.owner(ctx, accountID)
	if err != nil {
		return nil, e.fail(fields, err)
	}

	var rcpt Receipt
	err = e.atomically(ctx, "deposit", func(tx Tx) error {
		acct, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		now := e.cfg.Clock()
		balance := acct.Balance.Add(amount)
		if err := checkBalance(balance, e.cfg); err != nil {
			return err
		}
		if err := tx.CompareAndUpdateBalance(ctx, accountID, acct.Snapshot(), balance); err != nil {
			return err
		}
		rec := newRecord(accountID, domain.TypeDeposit, amount, now, nil)
		if err := tx.Append(ctx, rec); err != nil {
			return err
		}
		rcpt = receipt(rec, balance)
		return nil
	})
	if err != nil {
		return nil, e.fail(fields, err)
	}

	fields["transaction_id"] = rcpt.TransactionID
	e.log.WithFields(fields).Info("Deposit transaction")
	e.notify(ctx, owner, string(domain.TypeDeposit), &rcpt)
	return &rcpt, nil
}

// Withdraw debits amount from the account, subject to the daily withdrawal
// limit and the balance. Both checks are made against the snapshot the
// debit commits on.
func (e *Engine) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (*Receipt, error) {
	fields := logrus.Fields{"op": "withdraw", "account_id": accountID, "amount": amount.String()}
	if err := checkAmount(amount, e.cfg); err != nil {
		return nil, e.fail(fields, err)
	}
	owner, err := e.owner(ctx, accountID)
	if err != nil {
		return nil, e.fail(fields, err)
	}

	var rcpt Receipt
	err = e.atomically(ctx, "withdraw", func(tx Tx) error {
		acct, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		now := e.cfg.Clock()
		withdrawn, err := tx.SumByTypeAndDate(ctx, accountID, domain.TypeWithdraw, now)
		if err != nil {
			return err
		}
		if withdrawn.Add(amount).GreaterThan(e.cfg.DailyWithdrawLimit) {
			return fmt.Errorf("%w: %s already withdrawn today, limit %s", ErrLimitExceeded, withdrawn, e.cfg.DailyWithdrawLimit)
		}
		if acct.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}
		balance := acct.Balance.Sub(amount)
		if err := tx.CompareAndUpdateBalance(ctx, accountID, acct.Snapshot(), balance); err != nil {
			return err
		}
		rec := newRecord(accountID, domain.TypeWithdraw, amount, now, nil)
		if err := tx.Append(ctx, rec); err != nil {
			return err
		}
		rcpt = receipt(rec, balance)
		return nil
	})
	if err != nil {
		return nil, e.fail(fields, err)
	}

	fields["transaction_id"] = rcpt.TransactionID
	e.log.WithFields(fields).Info("Withdraw transaction")
	e.notify(ctx, owner, string(domain.TypeWithdraw), &rcpt)
	return &rcpt, nil
}

// Transfer moves amount from sender to receiver. Both balances change and
// both ledger legs are written in one unit; accounts are updated in
// ascending id order whatever their role.
func (e *Engine) Transfer(ctx context.Context, senderID, receiverID int64, amount decimal.Decimal) (*Receipt, error) {
	fields := logrus.Fields{"op": "transfer", "account_id": senderID, "receiver_id": receiverID, "amount": amount.String()}
	if senderID == receiverID {
		return nil, e.fail(fields, fmt.Errorf("%w: cannot transfer to the same account", ErrInvalidTransfer))
	}
	if err := checkAmount(amount, e.cfg); err != nil {
		return nil, e.fail(fields, err)
	}
	owner, err := e.owner(ctx, senderID)
	if err != nil {
		return nil, e.fail(fields, err)
	}
	if _, err := e.store.GetAccount(ctx, receiverID); err != nil {
		return nil, e.fail(fields, err)
	}

	var rcpt Receipt
	err = e.atomically(ctx, "transfer", func(tx Tx) error {
		ids := lockOrder(senderID, receiverID)
		accounts := make(map[int64]*domain.Account, len(ids))
		for _, id := range ids {
			acct, err := tx.GetAccount(ctx, id)
			if err != nil {
				return err
			}
			accounts[id] = acct
		}
		if accounts[senderID].Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		balances := map[int64]decimal.Decimal{
			senderID:   accounts[senderID].Balance.Sub(amount),
			receiverID: accounts[receiverID].Balance.Add(amount),
		}
		if err := checkBalance(balances[receiverID], e.cfg); err != nil {
			return err
		}
		for _, id := range ids {
			if err := tx.CompareAndUpdateBalance(ctx, id, accounts[id].Snapshot(), balances[id]); err != nil {
				return err
			}
		}

		now := e.cfg.Clock()
		out := newRecord(senderID, domain.TypeTransferOut, amount, now, &receiverID)
		if err := tx.Append(ctx, out); err != nil {
			return err
		}
		in := newRecord(receiverID, domain.TypeTransferIn, amount, now, &senderID)
		if err := tx.Append(ctx, in); err != nil {
			return err
		}
		rcpt = receipt(out, balances[senderID])
		rcpt.CounterTransactionID = in.ID
		return nil
	})
	if err != nil {
		return nil, e.fail(fields, err)
	}

	fields["transaction_id"] = rcpt.TransactionID
	e.log.WithFields(fields).Info("Transfer transaction")
	e.notify(ctx, owner, "transfer", &rcpt)
	return &rcpt, nil
}

// Account returns the account as currently stored.
func (e *Engine) Account(ctx context.Context, accountID int64) (*domain.Account, error) {
	acct, err := e.store.GetAccount(ctx, accountID)
	return acct, classify(err)
}

// History lists the account's records most recent first.
func (e *Engine) History(ctx context.Context, accountID int64, page Page) ([]domain.Transaction, int64, error) {
	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		return nil, 0, classify(err)
	}
	txs, total, err := e.store.ListByAccount(ctx, accountID, page)
	return txs, total, classify(err)
}

// atomically runs fn as one unit, retrying when the commit loses a race.
func (e *Engine) atomically(ctx context.Context, op string, fn func(Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := e.store.Atomic(ctx, fn)
		if !errors.Is(err, ErrConflict) {
			return classify(err)
		}
		if attempt >= e.cfg.MaxAttempts {
			return fmt.Errorf("%w: %s gave up after %d attempts", ErrTransientConflict, op, attempt)
		}
		e.log.WithFields(logrus.Fields{"op": op, "attempt": attempt}).Debug("conflict, retrying")
		if err := sleep(ctx, backoff(e.cfg.RetryBackoff, attempt)); err != nil {
			return err
		}
	}
}

// owner resolves the user holding the account.
func (e *Engine) owner(ctx context.Context, accountID int64) (*domain.User, error) {
	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, classify(err)
	}
	user, err := e.users.GetUser(ctx, acct.UserID)
	if err != nil {
		return nil, classify(err)
	}
	return user, nil
}

// notify hands the receipt to the notifier. It never fails the operation.
func (e *Engine) notify(ctx context.Context, owner *domain.User, typ string, r *Receipt) {
	if e.notifier == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			e.log.WithField("panic", p).Error("notifier panicked")
		}
	}()
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.NotifyTimeout)
	defer cancel()

	n := domain.Notification{
		Email:         owner.Email,
		Type:          typ,
		Amount:        r.Amount,
		Balance:       r.Balance,
		AccountID:     r.AccountID,
		TransactionID: r.TransactionID,
		OccurredAt:    r.At,
	}
	if err := e.notifier.Notify(nctx, n); err != nil {
		e.log.WithFields(logrus.Fields{
			"account_id":     r.AccountID,
			"transaction_id": r.TransactionID,
			"error":          err.Error(),
		}).Warn("notification not queued")
	}
}

// fail logs a rejected or failed operation and returns err.
func (e *Engine) fail(fields logrus.Fields, err error) error {
	entry := e.log.WithFields(fields).WithField("error", err.Error())
	switch code := Code(err); code {
	case "", ErrStoreUnavailable.Code, ErrTransientConflict.Code:
		entry.Error("ledger operation failed")
	default:
		entry.WithField("code", code).Info("ledger operation rejected")
	}
	return err
}

func newRecord(accountID int64, typ domain.TransactionType, amount decimal.Decimal, at time.Time, counterparty *int64) *domain.Transaction {
	return &domain.Transaction{
		AccountID:             accountID,
		Type:                  typ,
		Amount:                amount,
		BookingDate:           domain.BookingDate(at),
		CounterpartyAccountID: counterparty,
		CreatedAt:             at.UTC(),
	}
}

func receipt(rec *domain.Transaction, balance decimal.Decimal) Receipt {
	return Receipt{
		TransactionID: rec.ID,
		AccountID:     rec.AccountID,
		Type:          rec.Type,
		Amount:        rec.Amount,
		Balance:       balance,
		At:            rec.CreatedAt,
	}
}

// lockOrder returns the ids in ascending order so overlapping transfers
// always touch accounts in the same sequence.
func lockOrder(a, b int64) []int64 {
	if a < b {
		return []int64{a, b}
	}
	return []int64{b, a}
}

func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << min(attempt-1, 6)
	return d + rand.N(base)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
