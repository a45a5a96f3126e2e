package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// MailNotifier sends event summaries through an SMTP relay
type MailNotifier struct {
	addr string
	from string
	to   []string

	// send is swappable in tests
	send func(addr, from string, to []string, msg []byte) error
}

// NewMailNotifier creates a notifier for the given relay and recipients
func NewMailNotifier(addr, from string, to []string) *MailNotifier {
	return &MailNotifier{
		addr: addr,
		from: from,
		to:   to,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

func (n *MailNotifier) Notify(ctx context.Context, ev Event) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.from, strings.Join(n.to, ", "), ev.Subject(), ev.Body())

	if err := n.send(n.addr, n.from, n.to, []byte(msg)); err != nil {
		return fmt.Errorf("sending mail via %s: %w", n.addr, err)
	}
	return nil
}

func (n *MailNotifier) Close() error {
	return nil
}
