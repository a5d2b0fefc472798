package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverridesBasic(t *testing.T) {
	base := validConfig()

	os.Setenv("MEG_SERVER_HOST", "10.0.0.5")
	os.Setenv("MEG_SERVER_DATA_PORT", "9001")
	os.Setenv("MEG_SERVER_MDNS_ENABLE", "true")
	os.Setenv("MEG_SERVER_LOG_METRICS_INTERVAL", "5s")
	t.Cleanup(func() {
		os.Unsetenv("MEG_SERVER_HOST")
		os.Unsetenv("MEG_SERVER_DATA_PORT")
		os.Unsetenv("MEG_SERVER_MDNS_ENABLE")
		os.Unsetenv("MEG_SERVER_LOG_METRICS_INTERVAL")
	})

	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.host != "10.0.0.5" {
		t.Fatalf("expected host override, got %q", base.host)
	}
	if base.dataPort != 9001 {
		t.Fatalf("expected dataPort override, got %d", base.dataPort)
	}
	if !base.mdnsEnable {
		t.Fatal("expected mdnsEnable true")
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s, got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverridesFlagPrecedence(t *testing.T) {
	base := &appConfig{dataPort: 8089}
	os.Setenv("MEG_SERVER_DATA_PORT", "9001")
	t.Cleanup(func() { os.Unsetenv("MEG_SERVER_DATA_PORT") })

	if err := applyEnvOverrides(base, map[string]struct{}{"data-port": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.dataPort != 8089 {
		t.Fatalf("expected dataPort unchanged at 8089, got %d", base.dataPort)
	}
}

func TestApplyEnvOverridesBadInt(t *testing.T) {
	base := &appConfig{recvBuffer: 8192}
	os.Setenv("MEG_SERVER_RECV_BUFFER", "notanumber")
	t.Cleanup(func() { os.Unsetenv("MEG_SERVER_RECV_BUFFER") })

	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatal("expected error for bad integer")
	}
}
