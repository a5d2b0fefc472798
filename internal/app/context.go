// Package app is the thin host façade binding one data session, one status
// session, and one commander client into the single in-process surface the
// rest of the program (CLI, future RPC front-end) calls into. It owns no
// framing or session logic itself — it only validates arguments, maps
// lifecycle state to the host-facing contract, and forwards.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kstaniek/meg-acq-server/internal/commander"
	"github.com/kstaniek/meg-acq-server/internal/framing"
	"github.com/kstaniek/meg-acq-server/internal/ring"
	"github.com/kstaniek/meg-acq-server/internal/session"
)

// DataSessionInfo echoes the parameters the current data session was (or
// would be) opened with, alongside its live ConnectionStats.
type DataSessionInfo struct {
	Host         string
	Port         int
	SamplingRate uint32
	NChannels    int
}

// AppContext binds the three persistent connections the acquisition process
// manages and exposes the host-facing operations as plain methods. Sessions
// are single-use: once one reaches Error or is disconnected, the next
// Connect constructs a fresh session in its place, carrying registered
// callbacks over.
type AppContext struct {
	data   *session.DataSession
	status *session.StatusSession
	cmd    *commander.Client

	recvBufferSize int

	callbacks []ring.DataCallback

	dataHost         string
	dataPort         int
	dataSamplingRate uint32
	dataNChannels    int
}

// Config bundles the construction-time parameters AppContext needs.
type Config struct {
	RecvBufferSize int
	CommandHost    string
	CommandPort    int
}

// New constructs an AppContext with fresh, disconnected sessions and a
// commander client pointed at CommandHost:CommandPort.
func New(cfg Config) *AppContext {
	return &AppContext{
		data:           session.NewDataSession(cfg.RecvBufferSize),
		status:         session.NewStatusSession(cfg.RecvBufferSize),
		cmd:            commander.NewClient(cfg.CommandHost, cfg.CommandPort),
		recvBufferSize: cfg.RecvBufferSize,
	}
}

// RegisterDataCallback forwards to the underlying DataSession so callers
// (e.g. a prediction pipeline) can observe every ingested batch of rows.
// The registration survives session replacement on reconnect.
func (a *AppContext) RegisterDataCallback(cb ring.DataCallback) {
	a.callbacks = append(a.callbacks, cb)
	a.data.RegisterDataCallback(cb)
}

// DataStatus returns the data session's connection statistics alongside the
// parameters it was last told to connect with.
func (a *AppContext) DataStatus() (session.ConnectionStats, DataSessionInfo) {
	return a.data.Status(), DataSessionInfo{
		Host:         a.dataHost,
		Port:         a.dataPort,
		SamplingRate: a.dataSamplingRate,
		NChannels:    a.dataNChannels,
	}
}

// StatusStatus returns the status session's connection statistics.
func (a *AppContext) StatusStatus() session.ConnectionStats {
	return a.status.Status()
}

// Connect opens the persistent data session. The current session (whether
// it errored, streamed, or was never used) is replaced with a fresh one
// first, since sessions are single-use past Disconnected.
func (a *AppContext) Connect(ctx context.Context, host string, port int, samplingRate uint32, nChannels int) error {
	if a.data.State() != session.Disconnected {
		_ = a.data.Disconnect()
	}
	fresh := session.NewDataSession(a.recvBufferSize)
	for _, cb := range a.callbacks {
		fresh.RegisterDataCallback(cb)
	}
	a.data = fresh
	if err := a.data.Connect(ctx, host, port, samplingRate, nChannels); err != nil {
		return err
	}
	a.dataHost, a.dataPort, a.dataSamplingRate, a.dataNChannels = host, port, samplingRate, nChannels
	return nil
}

// Disconnect closes the persistent data session.
func (a *AppContext) Disconnect() error {
	return a.data.Disconnect()
}

// ConnectStatus opens the persistent status session, replacing a used-up
// one the same way Connect does.
func (a *AppContext) ConnectStatus(ctx context.Context, host string, port int) error {
	if a.status.State() != session.Disconnected {
		_ = a.status.Disconnect()
	}
	a.status = session.NewStatusSession(a.recvBufferSize)
	return a.status.Connect(ctx, host, port)
}

// DisconnectStatus closes the persistent status session.
func (a *AppContext) DisconnectStatus() error {
	return a.status.Disconnect()
}

// TestConnection opens a transient probe connection and reports what it
// found without touching the persistent data session.
func (a *AppContext) TestConnection(ctx context.Context, host string, port int, timeout time.Duration) (session.TestResult, error) {
	return session.TestDataConnection(ctx, host, port, timeout)
}

// MonitorData returns up to maxSamples of the most recent raw rows,
// evicting from the monitor queue.
func (a *AppContext) MonitorData(maxSamples int) ([][]float32, bool, error) {
	return a.data.MonitorData(maxSamples)
}

// LatestData returns the last n rows of the raw sample window.
func (a *AppContext) LatestData(n int) ([][]float32, bool, error) {
	return a.data.LatestData(n)
}

// PredictionStart opens a prediction collection window for duration.
func (a *AppContext) PredictionStart(duration time.Duration) error {
	return a.data.PredictionStart(duration)
}

// PredictionData drains and returns the prediction window.
func (a *AppContext) PredictionData() ([][]float32, error) {
	return a.data.PredictionData()
}

// ChannelActivity computes per-channel activity over the raw window.
func (a *AppContext) ChannelActivity() (ring.ChannelActivity, bool, error) {
	return a.data.ChannelActivity()
}

// SensorStatus returns the most recently decoded sensor-status frame.
func (a *AppContext) SensorStatus() (framing.StatusFrame, bool, error) {
	sf, ok, err := a.status.SensorStatus()
	if err != nil || !ok {
		return framing.StatusFrame{}, ok, err
	}
	return *sf, true, nil
}

// SendCommand issues an arbitrary component/command/p1/p2 instruction over
// the commander channel.
func (a *AppContext) SendCommand(ctx context.Context, component, command, p1, p2 string) error {
	return a.cmd.Send(ctx, commander.Command{Component: component, Action: command, P1: p1, P2: p2})
}

// ActivateAll activates every sensor.
func (a *AppContext) ActivateAll(ctx context.Context) error {
	return a.cmd.ActivateAll(ctx)
}

// DeactivateAll deactivates every sensor.
func (a *AppContext) DeactivateAll(ctx context.Context) error {
	return a.cmd.DeactivateAll(ctx)
}

// ToggleStream activates or deactivates a single sensor's stream.
func (a *AppContext) ToggleStream(ctx context.Context, sensorID int, activate bool) error {
	return a.cmd.ToggleStream(ctx, sensorID, activate)
}

// Close tears down whichever of the three connections are currently open.
// It aggregates (rather than short-circuits on) individual failures so a
// stuck command socket never prevents the data/status sockets from closing.
func (a *AppContext) Close() error {
	var errs []error
	if a.data.State() != session.Disconnected {
		if err := a.data.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.status.State() != session.Disconnected {
		if err := a.status.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.cmd.Disconnect(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("app close: %v", errs)
}
