package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Defaults used by DefaultConfig.
const (
	DefaultMaxAttempts   = 5
	DefaultAmountScale   = 2
	DefaultRetryBackoff  = 5 * time.Millisecond
	DefaultNotifyTimeout = 2 * time.Second
)

// StorageScale is the number of fractional digits the decimal(20,4) amount
// and balance columns keep.
const StorageScale = 4

var (
	// DefaultDailyWithdrawLimit is 100,000,000 currency units.
	DefaultDailyWithdrawLimit = decimal.NewFromInt(100_000_000)
	// MaxStoredAmount is the largest value a decimal(20,4) column holds.
	MaxStoredAmount = decimal.New(1, 16).Sub(decimal.New(1, -StorageScale))
)

// Config holds the engine's tunables. It is passed in explicitly so tests can
// vary limits per case.
type Config struct {
	DailyWithdrawLimit decimal.Decimal  // Ceiling on withdrawals per account per UTC day
	AmountScale        int32            // Maximum number of fractional digits an amount may carry
	MaxAmount          decimal.Decimal  // Ceiling on any single amount and on any resulting balance
	MaxAttempts        int              // Optimistic attempts before ErrTransientConflict
	RetryBackoff       time.Duration    // Base backoff between attempts, jittered
	NotifyTimeout      time.Duration    // Upper bound on handing a notification to the notifier
	Clock              func() time.Time // Source of commit timestamps
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DailyWithdrawLimit: DefaultDailyWithdrawLimit,
		AmountScale:        DefaultAmountScale,
		MaxAmount:          MaxStoredAmount,
		MaxAttempts:        DefaultMaxAttempts,
		RetryBackoff:       DefaultRetryBackoff,
		NotifyTimeout:      DefaultNotifyTimeout,
		Clock:              time.Now,
	}
}

// Validate reports configuration that would make the engine misbehave.
func (c Config) Validate() error {
	if !c.DailyWithdrawLimit.IsPositive() {
		return fmt.Errorf("ledger: daily withdraw limit must be positive, got %s", c.DailyWithdrawLimit)
	}
	if c.AmountScale < 0 || c.AmountScale > StorageScale {
		return fmt.Errorf("ledger: amount scale must be between 0 and %d, got %d", StorageScale, c.AmountScale)
	}
	if !c.MaxAmount.IsPositive() || c.MaxAmount.GreaterThan(MaxStoredAmount) {
		return fmt.Errorf("ledger: max amount must be positive and at most %s, got %s", MaxStoredAmount, c.MaxAmount)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("ledger: max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("ledger: retry backoff must not be negative, got %s", c.RetryBackoff)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.MaxAmount.IsZero() {
		c.MaxAmount = MaxStoredAmount
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = DefaultNotifyTimeout
	}
	return c
}
