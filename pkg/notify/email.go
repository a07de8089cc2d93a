package notify

import (
	"context"
	"time"

	"gopkg.in/mail.v2"

	"github.com/isabella232/sdc-amon/pkg/event"
	"github.com/isabella232/sdc-amon/pkg/model"
)

const smtpDialTimeout = 10 * time.Second

// EmailConfig configures the SMTP notifier. From is the envelope and header
// sender.
type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

type emailNotifier struct {
	dialer *mail.Dialer
	from   string
}

// NewEmail returns the notifier behind the "email" medium. The contact data
// is the recipient address.
func NewEmail(cfg EmailConfig) Notifier {
	dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.Timeout = smtpDialTimeout
	return &emailNotifier{dialer: dialer, from: cfg.From}
}

func (n *emailNotifier) Medium() string { return "email" }

func (n *emailNotifier) Notify(ctx context.Context, ev *event.Event, contact *model.Contact) error {
	msg := mail.NewMessage()
	msg.SetHeader("From", n.from)
	msg.SetHeader("To", contact.Data)
	msg.SetHeader("Subject", Subject(ev))
	msg.SetBody("text/plain", Body(ev))
	return n.dialer.DialAndSend(msg)
}
