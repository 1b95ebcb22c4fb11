package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/The-Quan/atm-banking-2/internal/domain"
)

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

// LogSender writes notifications to the log. It is the default when no mail
// server or broker is configured.
type LogSender struct {
	Currency string
	Log      *logrus.Entry
}

func (s LogSender) Send(_ context.Context, n domain.Notification) error {
	log := s.Log
	if log == nil {
		log = logrus.WithField("component", "notify")
	}
	log.WithFields(logrus.Fields{
		"email":          n.Email,
		"subject":        Subject(n),
		"account_id":     n.AccountID,
		"transaction_id": n.TransactionID,
	}).Info(Body(n, s.Currency))
	return nil
}
