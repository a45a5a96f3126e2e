// Package notify delivers workflow audit events to operators: the shared
// operational log, a NATS ops subject, mail, and terminal broadcast.
package notify

import (
	"context"
	"fmt"
	"time"
)

// Phase marks where in a workflow an event was emitted
type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseCompleted Phase = "completed"
	PhaseAborted   Phase = "aborted"
)

// Event represents one workflow boundary notification
type Event struct {
	RunID    string    `json:"run_id"`
	Workflow string    `json:"workflow"` // shutdown or startup
	Phase    Phase     `json:"phase"`
	Reason   string    `json:"reason,omitempty"` // failure kind tag on abort
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// Subject renders a short single-line summary
func (e Event) Subject() string {
	if e.Reason != "" {
		return fmt.Sprintf("[powerfold] %s %s (%s)", e.Workflow, e.Phase, e.Reason)
	}
	return fmt.Sprintf("[powerfold] %s %s", e.Workflow, e.Phase)
}

// Body renders a human-readable message
func (e Event) Body() string {
	body := fmt.Sprintf("Workflow: %s\nPhase: %s\nRun: %s\nAt: %s\n",
		e.Workflow, e.Phase, e.RunID, e.At.Format(time.RFC3339))
	if e.Reason != "" {
		body += fmt.Sprintf("Reason: %s\n", e.Reason)
	}
	if e.Detail != "" {
		body += fmt.Sprintf("Detail: %s\n", e.Detail)
	}
	return body
}

// Notifier delivers workflow events to one channel
type Notifier interface {
	// Notify delivers one event. Failures are reportable, never silent.
	Notify(ctx context.Context, ev Event) error

	// Close releases the channel's resources
	Close() error
}
