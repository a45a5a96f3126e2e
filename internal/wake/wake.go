// Package wake sends wake-on-LAN magic packets. Fire-and-forget with no
// acknowledgment; effectiveness is only inferred later via reachability.
package wake

import (
	"bytes"
	"context"
	"fmt"
	"net"
)

// Waker powers on a physically-off machine addressed by hardware identifier
type Waker interface {
	Wake(ctx context.Context, mac string) error
}

// BroadcastWaker sends magic packets over UDP broadcast
type BroadcastWaker struct {
	Addr string // Broadcast target, host:port
}

// NewBroadcastWaker creates a waker targeting the given broadcast address
func NewBroadcastWaker(addr string) *BroadcastWaker {
	return &BroadcastWaker{Addr: addr}
}

func (w *BroadcastWaker) Wake(ctx context.Context, mac string) error {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return fmt.Errorf("invalid MAC %q: %w", mac, err)
	}
	if len(hw) != 6 {
		return fmt.Errorf("MAC %q is not a 48-bit address", mac)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", w.Addr)
	if err != nil {
		return fmt.Errorf("opening wake socket to %s: %w", w.Addr, err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Write(magicPacket(hw)); err != nil {
		return fmt.Errorf("sending wake signal for %s: %w", mac, err)
	}
	return nil
}

// magicPacket builds the 102-byte payload: six 0xFF bytes followed by the
// hardware address repeated sixteen times
func magicPacket(hw net.HardwareAddr) []byte {
	buf := bytes.Repeat([]byte{0xFF}, 6)
	for i := 0; i < 16; i++ {
		buf = append(buf, hw...)
	}
	return buf
}
