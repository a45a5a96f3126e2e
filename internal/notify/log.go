package notify

import (
	"context"

	"github.com/powerfold/powerfold/internal/logging"
)

// LogNotifier writes events to the operational log
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, ev Event) error {
	fields := []interface{}{
		"run_id", ev.RunID,
		"workflow", ev.Workflow,
		"phase", string(ev.Phase),
	}
	if ev.Detail != "" {
		fields = append(fields, "detail", ev.Detail)
	}

	if ev.Phase == PhaseAborted {
		fields = append(fields, "reason", ev.Reason)
		n.logger.Error("Workflow aborted", fields...)
		return nil
	}

	n.logger.Info("Workflow event", fields...)
	return nil
}

func (n *LogNotifier) Close() error {
	return nil
}
