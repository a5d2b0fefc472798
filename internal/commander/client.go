// Package commander implements the fire-and-forget command channel to the
// MEG instrument: a short-lived, lazily-reconnecting TCP connection
// carrying length-prefixed pipe-delimited text commands.
package commander

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/kstaniek/meg-acq-server/internal/logging"
	"github.com/kstaniek/meg-acq-server/internal/metrics"
)

// ErrSend is the sentinel wrapped around every Send failure.
var ErrSend = errors.New("commander_send")

const connectTimeout = 5 * time.Second

// Command is one pipe-delimited instruction: "Component|Action[|P1[|P2]]".
type Command struct {
	Component string
	Action    string
	P1        string
	P2        string
}

// Encode renders the wire payload (without the length prefix).
func (c Command) Encode() []byte {
	s := c.Component + "|" + c.Action
	if c.P1 != "" {
		s += "|" + c.P1
	}
	if c.P2 != "" {
		s += "|" + c.P2
	}
	return []byte(s)
}

// Client is a lazily-reconnecting commander connection. It is safe for
// concurrent use: sends are serialized through an internal mutex.
type Client struct {
	host string
	port int

	mu   sync.Mutex
	conn net.Conn
}

// NewClient returns a disconnected commander client for host:port.
func NewClient(host string, port int) *Client {
	return &Client{host: host, port: port}
}

// Connect dials the command port. Calling Connect while already connected
// disconnects first.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	dialer := &net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", c.host, c.port))
	if err != nil {
		return fmt.Errorf("%w: connect %s:%d: %v", ErrSend, c.host, c.port, err)
	}
	c.conn = conn
	logging.WithComponent("commander").Info("commander_connected", "host", c.host, "port", c.port)
	return nil
}

// Disconnect closes the connection, if any.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked()
}

func (c *Client) disconnectLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Send transmits one command, reconnecting first if not currently
// connected. On write failure it disconnects so the next Send reconnects.
// The peer sends no response; a nil error only means the write succeeded.
func (c *Client) Send(ctx context.Context, cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(ctx); err != nil {
			metrics.IncCommandError()
			return err
		}
	}

	payload := cmd.Encode()
	frame := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	}
	if _, err := c.conn.Write(frame); err != nil {
		_ = c.disconnectLocked()
		metrics.IncCommandError()
		return fmt.Errorf("%w: send %s|%s: %v", ErrSend, cmd.Component, cmd.Action, err)
	}
	metrics.IncCommandSent()
	logging.WithComponent("commander").Info("commander_send", "component", cmd.Component, "action", cmd.Action)
	return nil
}

// ActivateAll sends the "activate every sensor" convenience command.
func (c *Client) ActivateAll(ctx context.Context) error {
	return c.Send(ctx, Command{Component: "Sensor", Action: "Activate All"})
}

// DeactivateAll sends the "deactivate every sensor" convenience command.
func (c *Client) DeactivateAll(ctx context.Context) error {
	return c.Send(ctx, Command{Component: "Sensor", Action: "Deactivate All"})
}

// ToggleStream activates or deactivates one sensor by index.
func (c *Client) ToggleStream(ctx context.Context, sensorID int, activate bool) error {
	action := "Deactivate Sensor"
	if activate {
		action = "Activate Sensor"
	}
	return c.Send(ctx, Command{Component: "Sensor", Action: action, P1: strconv.Itoa(sensorID)})
}
