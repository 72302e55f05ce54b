package goMFA

import (
	"context"
	"time"
)

// OTPMessage is the one place a plaintext email code leaves the Engine.
type OTPMessage struct {
	UserID    string
	To        string
	Code      string
	ExpiresAt time.Time
}

// Mailer hands an email one-time code to the delivery transport. The Engine
// treats any error as ErrDeliveryUnavailable; the code stays stored and a
// resend supersedes it.
type Mailer interface {
	SendOTP(ctx context.Context, msg OTPMessage) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg OTPMessage) error

func (f MailerFunc) SendOTP(ctx context.Context, msg OTPMessage) error {
	return f(ctx, msg)
}
