package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/agentrun/agentrun/pkg/models"
)

// EmailConfig configures the SMTP email adapter. There is no maintained
// ecosystem SMTP client among the retrieved examples; net/smtp is the
// standard, idiomatic choice for a send-only mailer and is used here
// directly rather than hand-rolling a replacement.
type EmailConfig struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

// sendFunc matches net/smtp.SendMail's signature, overridable in tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailAdapter implements channels.OutboundAdapter for the master
// contact's email address.
type EmailAdapter struct {
	cfg  EmailConfig
	send sendFunc
}

// NewEmailAdapter constructs an EmailAdapter.
func NewEmailAdapter(cfg EmailConfig) *EmailAdapter {
	return &EmailAdapter{cfg: cfg, send: smtp.SendMail}
}

// Type implements channels.Adapter.
func (a *EmailAdapter) Type() models.ChannelType { return models.ChannelEmail }

// Send implements channels.OutboundAdapter. The recipient address is
// carried in msg.ChannelID.
func (a *EmailAdapter) Send(ctx context.Context, msg *models.Message) error {
	to := msg.ChannelID
	if to == "" {
		return fmt.Errorf("email send: recipient address required in message channel_id")
	}

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Agent notification\r\n\r\n%s\r\n", a.cfg.From, to, msg.Content)

	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	}

	addr := a.cfg.Host + ":" + a.cfg.Port
	return a.send(addr, auth, a.cfg.From, []string{to}, []byte(body))
}
