package notify

import (
	"context"
	"fmt"
	"os/exec"
)

// WallNotifier broadcasts events to every logged-in operator terminal
type WallNotifier struct {
	// run is swappable in tests
	run func(ctx context.Context, msg string) error
}

// NewWallNotifier creates a wall(1)-backed notifier
func NewWallNotifier() *WallNotifier {
	return &WallNotifier{
		run: func(ctx context.Context, msg string) error {
			return exec.CommandContext(ctx, "wall", msg).Run()
		},
	}
}

func (n *WallNotifier) Notify(ctx context.Context, ev Event) error {
	if err := n.run(ctx, ev.Subject()+"\n"+ev.Body()); err != nil {
		return fmt.Errorf("broadcasting to terminals: %w", err)
	}
	return nil
}

func (n *WallNotifier) Close() error {
	return nil
}
