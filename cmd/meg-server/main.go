package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kstaniek/meg-acq-server/internal/app"
	"github.com/kstaniek/meg-acq-server/internal/metrics"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("meg-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.testOnly {
		runConnectionTest(ctx, cfg, l)
		return
	}

	application := app.New(app.Config{
		RecvBufferSize: cfg.recvBuffer,
		CommandHost:    cfg.host,
		CommandPort:    cfg.commandPort,
	})

	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	if err := application.Connect(ctx, cfg.host, cfg.dataPort, uint32(cfg.samplingRate), cfg.nChannels); err != nil {
		l.Error("data_connect_failed", "error", err)
		return
	}
	if err := application.ConnectStatus(ctx, cfg.host, cfg.statusPort); err != nil {
		l.Error("status_connect_failed", "error", err)
		_ = application.Disconnect()
		return
	}
	l.Info("sessions_connected", "host", cfg.host, "data_port", cfg.dataPort, "status_port", cfg.statusPort)

	metrics.SetReadinessFunc(func() bool {
		stats, _ := application.DataStatus()
		return stats.State == "streaming"
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	cleanupMDNS, err := startMDNS(ctx, cfg)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
	} else {
		defer cleanupMDNS()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()

	if err := application.Close(); err != nil {
		l.Error("shutdown_close_error", "error", err)
	}
	wg.Wait()
}

// runConnectionTest implements the `-test` flag: a transient connection
// probe that never touches a persistent session.
func runConnectionTest(ctx context.Context, cfg *appConfig, l *slog.Logger) {
	a := app.New(app.Config{RecvBufferSize: cfg.recvBuffer, CommandHost: cfg.host, CommandPort: cfg.commandPort})
	result, err := a.TestConnection(ctx, cfg.host, cfg.dataPort, cfg.testTimeout)
	if err != nil {
		l.Error("connection_test_failed", "error", err)
		os.Exit(1)
	}
	l.Info("connection_test_result",
		"frames_found", result.FramesFound,
		"throughput_mbps", result.ThroughputMbps,
		"connection_time_ms", result.ConnectionTimeMs,
	)
	if result.FramesFound == 0 {
		os.Exit(1)
	}
}
