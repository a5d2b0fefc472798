package session

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	connectTimeout  = 10 * time.Second
	recvTimeout     = 100 * time.Millisecond
	recvBufferBytes = 1 << 20 // SO_RCVBUF = 1 MiB
)

// dialTCP opens a TCP connection to addr with the socket options required
// for real-time throughput: SO_REUSEADDR set pre-connect via the dialer's
// Control hook, TCP_NODELAY and a 1 MiB receive buffer set post-connect
// through the standard library, and a bounded connect timeout.
func dialTCP(ctx context.Context, addr string) (*net.TCPConn, error) {
	dialer := &net.Dialer{
		Timeout: connectTimeout,
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, addr, err)
	}
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: dial %s: not a TCP connection", ErrTransport, addr)
	}
	if err := tcp.SetNoDelay(true); err != nil {
		_ = tcp.Close()
		return nil, fmt.Errorf("%w: set_nodelay %s: %v", ErrTransport, addr, err)
	}
	if err := tcp.SetReadBuffer(recvBufferBytes); err != nil {
		_ = tcp.Close()
		return nil, fmt.Errorf("%w: set_rcvbuf %s: %v", ErrTransport, addr, err)
	}
	return tcp, nil
}
