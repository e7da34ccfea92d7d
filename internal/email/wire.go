package email

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"labspace/config"
)

type InviteSender interface {
	SendInviteCode(to, groupName, inviterName, inviteCode string) error
}

// ProvideInviteSender returns the SMTP sender, or a logging stand-in when
// SMTP_HOST is unset.
func ProvideInviteSender(cfg *config.Config, log *zap.Logger) InviteSender {
	if !cfg.SMTPEnabled() {
		return NewLogSender(log)
	}
	return NewEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
}

var Set = wire.NewSet(ProvideInviteSender)
