package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	goMFA "github.com/MrEthical07/goMFA"
)

const defaultWriteTimeout = 5 * time.Second

// ErrNoBrokers is returned by NewKafkaMailer without brokers or topic.
var ErrNoBrokers = errors.New("mailer: kafka brokers and topic required")

// messageWriter is the subset of *kafka.Writer the mailer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Job is the payload consumed by the email worker.
type Job struct {
	Kind      string    `json:"kind"`
	UserID    string    `json:"user_id"`
	To        string    `json:"to"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// KafkaMailer hands OTP emails to the delivery worker over Kafka. Messages
// are keyed by user ID so a resend lands on the same partition as the code
// it supersedes.
type KafkaMailer struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaMailer(brokers []string, topic string) (*KafkaMailer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, ErrNoBrokers
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaMailer{writer: writer, timeout: defaultWriteTimeout}, nil
}

func (m *KafkaMailer) SendOTP(ctx context.Context, msg goMFA.OTPMessage) error {
	if m == nil || m.writer == nil {
		return ErrNoBrokers
	}
	payload, err := json.Marshal(Job{
		Kind:      "login_otp",
		UserID:    msg.UserID,
		To:        msg.To,
		Code:      msg.Code,
		ExpiresAt: msg.ExpiresAt.UTC(),
	})
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(msg.UserID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("mailer: kafka publish: %w", err)
	}
	return nil
}

// Close flushes and closes the writer. Safe on a nil mailer.
func (m *KafkaMailer) Close() error {
	if m == nil || m.writer == nil {
		return nil
	}
	return m.writer.Close()
}
