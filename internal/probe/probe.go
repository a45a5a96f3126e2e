// Package probe answers "does this network target respond right now".
// Both workflows gate on it: shutdown refuses to act on a degraded network,
// and node power-off is confirmed by a target going silent.
package probe

import (
	"context"
	"net"
	"time"
)

// Prober reports current reachability of a host:port target
type Prober interface {
	Reachable(ctx context.Context, target string) bool
}

// DialProber probes with a single bounded TCP connection attempt
type DialProber struct {
	Timeout time.Duration
}

// NewDialProber creates a prober with the given per-attempt budget
func NewDialProber(timeout time.Duration) *DialProber {
	return &DialProber{Timeout: timeout}
}

func (p *DialProber) Reachable(ctx context.Context, target string) bool {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
