package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Sender struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailSender(host string, port int, username, password, from string) *Sender {
	dialer := gomail.NewDialer(host, port, username, password)
	return &Sender{
		dialer: dialer,
		from:   from,
	}
}

func (s *Sender) sendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	return s.dialer.DialAndSend(m)
}

func (s *Sender) SendInviteCode(to, groupName, inviterName, inviteCode string) error {
	subject := fmt.Sprintf("You're invited to %s", groupName)
	body, err := renderInvite(groupName, inviterName, inviteCode)
	if err != nil {
		return err
	}
	return s.sendEmail(to, subject, body)
}

func renderInvite(groupName, inviterName, inviteCode string) (string, error) {
	buf := new(bytes.Buffer)
	err := templates.ExecuteTemplate(buf, "invite_email.html", map[string]string{
		"GroupName":  groupName,
		"Inviter":    inviterName,
		"InviteCode": inviteCode,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute invite template: %w", err)
	}
	return buf.String(), nil
}

// LogSender stands in for Sender when SMTP is not configured.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendInviteCode(to, groupName, inviterName, inviteCode string) error {
	if _, err := renderInvite(groupName, inviterName, inviteCode); err != nil {
		return err
	}
	s.log.Info("invite e-mail not sent, smtp disabled",
		zap.String("group", groupName),
		zap.String("inviter", inviterName),
	)
	return nil
}
