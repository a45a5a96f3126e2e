package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialProber_Reachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	p := NewDialProber(2 * time.Second)
	assert.True(t, p.Reachable(context.Background(), ln.Addr().String()))
}

func TestDialProber_Unreachable(t *testing.T) {
	// Bind then close to get a port with nothing listening
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	p := NewDialProber(500 * time.Millisecond)
	assert.False(t, p.Reachable(context.Background(), addr))
}
