package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

// mdnsServiceType is the mDNS service type advertised for this acquisition
// process, so monitoring/UI tooling on the same network can discover its
// metrics endpoint without being told the host up front.
const mdnsServiceType = "_meg-acq._tcp"

// startMDNS registers the service via mDNS and returns a cleanup function.
// It is a no-op when mDNS is disabled or no metrics port is configured,
// since the acquisition process is itself a TCP client of the instrument,
// not a listener — the metrics HTTP port is the only stable advertisable
// endpoint it owns.
func startMDNS(ctx context.Context, cfg *appConfig) (func(), error) {
	if !cfg.mdnsEnable || cfg.metricsAddr == "" {
		return func() {}, nil
	}
	_, portStr, err := net.SplitHostPort(cfg.metricsAddr)
	if err != nil {
		return nil, fmt.Errorf("mdns: parse metrics-addr %q: %w", cfg.metricsAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("mdns: metrics-addr port %q: %w", portStr, err)
	}

	instance := cfg.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("meg-acq-%s", host)
	}
	meta := []string{
		"host=" + cfg.host,
		"data_port=" + strconv.Itoa(cfg.dataPort),
		"status_port=" + strconv.Itoa(cfg.statusPort),
		"version=" + version,
		"commit=" + commit,
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
