package mailer

import (
	"context"

	"go.uber.org/zap"

	goMFA "github.com/MrEthical07/goMFA"
)

// LogMailer logs every code at info level. Never use it in production.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger.Named("mailer")}
}

func (m *LogMailer) SendOTP(_ context.Context, msg goMFA.OTPMessage) error {
	m.logger.Info("login code",
		zap.String("user_id", msg.UserID),
		zap.String("to", msg.To),
		zap.String("code", msg.Code),
		zap.Time("expires_at", msg.ExpiresAt),
	)
	return nil
}
