// Package notify delivers password-reset codes to admins out of band.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Sender hands a freshly generated reset code to the admin who requested it.
type Sender interface {
	SendResetCode(ctx context.Context, email, code string) error
}

// LogSender writes reset-code notifications to the log. The code itself is
// written only when reveal is set, which serve enables in dev mode.
type LogSender struct {
	log    *zap.Logger
	reveal bool
}

// NewLogSender returns a Sender that logs instead of mailing.
func NewLogSender(log *zap.Logger, reveal bool) *LogSender {
	return &LogSender{log: log, reveal: reveal}
}

func (s *LogSender) SendResetCode(_ context.Context, email, code string) error {
	fields := []zap.Field{zap.String("email", email)}
	if s.reveal {
		fields = append(fields, zap.String("code", code))
	}
	s.log.Info("password reset code issued", fields...)
	return nil
}
