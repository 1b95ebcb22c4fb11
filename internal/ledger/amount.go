package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a caller supplied amount, accepting both bare and quoted
// JSON numbers. Sign and scale are checked by the engine.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(strings.Trim(s, `"`))
	if s == "" || s == "null" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a decimal", ErrInvalidAmount, s)
	}
	return d, nil
}

func checkAmount(amount decimal.Decimal, cfg Config) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, amount)
	}
	if !amount.Equal(amount.Truncate(cfg.AmountScale)) {
		return fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidAmount, amount, cfg.AmountScale)
	}
	if amount.GreaterThan(cfg.MaxAmount) {
		return fmt.Errorf("%w: %s exceeds the maximum amount %s", ErrInvalidAmount, amount, cfg.MaxAmount)
	}
	return nil
}

// checkBalance rejects a credit whose resulting balance could not be stored.
func checkBalance(balance decimal.Decimal, cfg Config) error {
	if balance.GreaterThan(cfg.MaxAmount) {
		return fmt.Errorf("%w: resulting balance %s exceeds the maximum %s", ErrInvalidAmount, balance, cfg.MaxAmount)
	}
	return nil
}
