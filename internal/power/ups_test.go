package power

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerfold/powerfold/internal/config"
)

// fakeNUT answers one GET VAR request per connection with a fixed line
func fakeNUT(t *testing.T, response string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer func() { _ = conn.Close() }()
				if _, err := bufio.NewReader(conn).ReadString('\n'); err != nil {
					return
				}
				_, _ = fmt.Fprintf(conn, "%s\n", response)
			}(conn)
		}
	}()

	return ln.Addr().String()
}

func newClient(addr string) *NUTClient {
	return NewNUTClient(config.PowerConfig{
		NUTAddress: addr,
		UPSName:    "apc1500",
	})
}

func TestCharge(t *testing.T) {
	addr := fakeNUT(t, `VAR apc1500 battery.charge "87"`)

	charge, err := newClient(addr).Charge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 87, charge)
}

func TestCharge_UnknownReadings(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{name: "protocol_error", response: "ERR VAR-NOT-SUPPORTED"},
		{name: "non_numeric", response: `VAR apc1500 battery.charge "n/a"`},
		{name: "out_of_range", response: `VAR apc1500 battery.charge "140"`},
		{name: "wrong_ups", response: `VAR other battery.charge "90"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := fakeNUT(t, tt.response)

			_, err := newClient(addr).Charge(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestCharge_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := newClient(addr)
	client.dialTimeout = 500 * time.Millisecond

	_, err = client.Charge(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "connecting to NUT"))
}
