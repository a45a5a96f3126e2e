// Package power reads the stored charge of the uninterruptible power source
// through the NUT (Network UPS Tools) daemon protocol.
package power

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/powerfold/powerfold/internal/config"
)

// ChargeReader reports the power source's stored charge as a percentage.
// A non-nil error means the reading is unknown; callers must treat unknown
// as insufficient, never as zero or as success.
type ChargeReader interface {
	Charge(ctx context.Context) (int, error)
}

// NUTClient queries battery.charge over the NUT text protocol
type NUTClient struct {
	address     string
	upsName     string
	dialTimeout time.Duration
}

// NewNUTClient creates a reader for the configured power source
func NewNUTClient(cfg config.PowerConfig) *NUTClient {
	return &NUTClient{
		address:     cfg.NUTAddress,
		upsName:     cfg.UPSName,
		dialTimeout: 5 * time.Second,
	}
}

func (c *NUTClient) Charge(ctx context.Context) (int, error) {
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return 0, fmt.Errorf("connecting to NUT at %s: %w", c.address, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(c.dialTimeout))
	}

	if _, err := fmt.Fprintf(conn, "GET VAR %s battery.charge\n", c.upsName); err != nil {
		return 0, fmt.Errorf("querying NUT: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("reading NUT response: %w", err)
	}

	return parseChargeLine(strings.TrimSpace(line), c.upsName)
}

// parseChargeLine extracts the percentage from a response of the form
//
//	VAR <ups> battery.charge "87"
func parseChargeLine(line, upsName string) (int, error) {
	want := fmt.Sprintf("VAR %s battery.charge ", upsName)
	if !strings.HasPrefix(line, want) {
		return 0, fmt.Errorf("unexpected NUT response: %q", line)
	}

	value := strings.Trim(strings.TrimPrefix(line, want), `"`)
	charge, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("non-numeric charge %q: %w", value, err)
	}

	if charge < 0 || charge > 100 {
		return 0, fmt.Errorf("charge %d outside 0-100", charge)
	}
	return charge, nil
}
