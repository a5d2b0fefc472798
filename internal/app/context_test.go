package app

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/kstaniek/meg-acq-server/internal/framing"
	"github.com/kstaniek/meg-acq-server/internal/session"
)

func splitPort(t *testing.T, addr net.Addr) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return host, port
}

// TestAppContextConnectAndClose exercises the façade end to end: connecting
// the data session to a loopback frame source, reading a row back out
// through MonitorData, and closing every connection it opened.
func TestAppContextConnectAndClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	codec := framing.NewDataCodec(framing.DefaultNChannelsOut, framing.DefaultSamplingRate)
	var raw [framing.NSamplesPerFrame][framing.NChannelsRaw]float32
	wire := codec.Encode(1, raw, 0)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write(wire)
		time.Sleep(300 * time.Millisecond)
	}()

	host, port := splitPort(t, ln.Addr())

	a := New(Config{RecvBufferSize: 0, CommandHost: "127.0.0.1", CommandPort: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := a.Connect(ctx, host, port, framing.DefaultSamplingRate, framing.DefaultNChannelsOut); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	stats, info := a.DataStatus()
	if info.Host != host || info.Port != port {
		t.Fatalf("DataSessionInfo = %+v, want host %s port %d", info, host, port)
	}
	_ = stats

	deadline := time.Now().Add(1 * time.Second)
	var gotRows bool
	for time.Now().Before(deadline) {
		if rows, ok, _ := a.MonitorData(framing.NSamplesPerFrame); ok && len(rows) > 0 {
			gotRows = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !gotRows {
		t.Fatalf("expected MonitorData to return rows fed from the loopback frame")
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-serverDone
}

// TestAppContextCloseIdle verifies Close is a no-op (no error) when nothing
// was ever connected, since the command client's Disconnect must tolerate
// being called on a client that never dialed.
func TestAppContextCloseIdle(t *testing.T) {
	a := New(Config{RecvBufferSize: 0, CommandHost: "127.0.0.1", CommandPort: 1})
	if err := a.Close(); err != nil {
		t.Fatalf("Close on idle AppContext: %v", err)
	}
}

// TestAppContextTestConnectionDoesNotTouchPersistentSession verifies the
// transient probe path leaves the persistent data session untouched.
func TestAppContextTestConnectionDoesNotTouchPersistentSession(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	codec := framing.NewDataCodec(framing.DefaultNChannelsOut, framing.DefaultSamplingRate)
	var raw [framing.NSamplesPerFrame][framing.NChannelsRaw]float32
	wire := codec.Encode(1, raw, 0)
	for i := 0; i < 4; i++ {
		wire = append(wire, codec.Encode(uint32(i+2), raw, 0)...)
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write(wire)
		time.Sleep(200 * time.Millisecond)
	}()

	host, port := splitPort(t, ln.Addr())

	a := New(Config{RecvBufferSize: 0, CommandHost: "127.0.0.1", CommandPort: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := a.TestConnection(ctx, host, port, 1*time.Second)
	if err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if result.FramesFound == 0 {
		t.Fatalf("expected at least one frame found by the probe")
	}
	if got := a.data.State(); got != session.Disconnected {
		t.Fatalf("persistent data session state = %v, want Disconnected after a transient probe", got)
	}
}
