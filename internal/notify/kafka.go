package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/The-Quan/atm-banking-2/internal/domain"
)

// DefaultTopic carries TransactionCompleted events.
const DefaultTopic = "transaction_completed"

// TransactionCompleted is the event published for each committed mutation.
type TransactionCompleted struct {
	TransactionID int64           `json:"transaction_id"`
	AccountID     int64           `json:"account_id"`
	Type          string          `json:"type"`
	Email         string          `json:"email"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes notifications as TransactionCompleted events keyed by
// account, so one account's events stay in order on one partition.
type KafkaSender struct {
	writer messageWriter
}

// NewKafkaSender returns a sender writing to topic on brokers.
func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSender{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

func (s *KafkaSender) Send(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(TransactionCompleted{
		TransactionID: n.TransactionID,
		AccountID:     n.AccountID,
		Type:          n.Type,
		Email:         n.Email,
		Amount:        n.Amount,
		Balance:       n.Balance,
		OccurredAt:    n.OccurredAt,
	})
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(n.AccountID, 10)),
		Value: data,
	})
}

// Close flushes and closes the writer.
func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
