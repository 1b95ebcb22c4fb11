package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/The-Quan/atm-banking-2/internal/domain"
)

// Subject is the email subject for n, e.g. "Deposit Notification".
func Subject(n domain.Notification) string {
	t := strings.ReplaceAll(n.Type, "_", " ")
	if t == "" {
		return "Transaction Notification"
	}
	return strings.ToUpper(t[:1]) + t[1:] + " Notification"
}

// Body is the plain text message for n.
func Body(n domain.Notification, currency string) string {
	return fmt.Sprintf("Your %s of %s %s was completed successfully. Account %d balance: %s %s.",
		n.Type, FormatAmount(n.Amount), currency, n.AccountID, FormatAmount(n.Balance), currency)
}

// FormatAmount rounds to whole units and groups thousands with commas.
func FormatAmount(d decimal.Decimal) string {
	s := d.Round(0).StringFixed(0)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}
