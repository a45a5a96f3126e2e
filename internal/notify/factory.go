package notify

import (
	"context"
	"fmt"

	"github.com/powerfold/powerfold/internal/config"
	"github.com/powerfold/powerfold/internal/logging"
)

// NewNotifier builds the configured notification fan-out.
// The log channel is always included so every event reaches the shared
// operational log even with a minimal configuration.
func NewNotifier(cfg config.NotifyConfig, logger *logging.Logger) (Notifier, error) {
	notifiers := []Notifier{NewLogNotifier(logger)}

	for _, ch := range cfg.Channels {
		switch ch {
		case "log":
			// Already present

		case "nats":
			n, err := NewNATSNotifier(cfg.NATSURL, cfg.NATSSubject)
			if err != nil {
				return nil, err
			}
			notifiers = append(notifiers, n)

		case "mail":
			notifiers = append(notifiers, NewMailNotifier(cfg.SMTPAddress, cfg.MailFrom, cfg.MailTo))

		case "wall":
			notifiers = append(notifiers, NewWallNotifier())

		default:
			return nil, fmt.Errorf("unsupported notify channel: %s (supported: log, nats, mail, wall)", ch)
		}
	}

	return &MultiNotifier{notifiers: notifiers, logger: logger}, nil
}

// MultiNotifier fans one event out to every configured channel. A channel
// failure is logged and does not stop delivery to the remaining channels;
// the first failure is still returned so callers can surface it.
type MultiNotifier struct {
	notifiers []Notifier
	logger    *logging.Logger
}

func (m *MultiNotifier) Notify(ctx context.Context, ev Event) error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			m.logger.Error("Notification delivery failed",
				"workflow", ev.Workflow, "phase", string(ev.Phase), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *MultiNotifier) Close() error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
