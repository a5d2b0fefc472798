package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// appConfig bundles every flag/env-recognized option, plus the ambient
// process options a runnable acquisition process needs.
type appConfig struct {
	host         string
	dataPort     int
	statusPort   int
	commandPort  int
	samplingRate uint
	nChannels    int
	recvBuffer   int
	testTimeout  time.Duration

	testOnly bool

	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	host := flag.String("host", "192.168.0.10", "MEG instrument address")
	dataPort := flag.Int("data-port", 8089, "Data stream TCP port")
	statusPort := flag.Int("status-port", 8090, "Sensor-status stream TCP port")
	commandPort := flag.Int("command-port", 8092, "Commander TCP port")
	samplingRate := flag.Uint("sampling-rate", 375, "Expected sampling rate for data-frame header validation")
	nChannels := flag.Int("n-channels", 192, "Channels exposed per sample row (<= 256)")
	recvBuffer := flag.Int("recv-buffer", 8192, "Per-recv read slice size, bytes")
	testTimeoutMs := flag.Int("test-timeout-ms", 10000, "Deadline for a one-shot connection test (see -test)")
	testOnly := flag.Bool("test", false, "Run a transient connection test against -host:-data-port and exit")

	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement of the acquisition process")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default meg-acq-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.host = *host
	cfg.dataPort = *dataPort
	cfg.statusPort = *statusPort
	cfg.commandPort = *commandPort
	cfg.samplingRate = *samplingRate
	cfg.nChannels = *nChannels
	cfg.recvBuffer = *recvBuffer
	cfg.testTimeout = time.Duration(*testTimeoutMs) * time.Millisecond
	cfg.testOnly = *testOnly
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to dial the instrument — only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.host == "" {
		return errors.New("host must not be empty")
	}
	if c.dataPort <= 0 || c.dataPort > 65535 {
		return fmt.Errorf("data-port out of range: %d", c.dataPort)
	}
	if c.statusPort <= 0 || c.statusPort > 65535 {
		return fmt.Errorf("status-port out of range: %d", c.statusPort)
	}
	if c.commandPort <= 0 || c.commandPort > 65535 {
		return fmt.Errorf("command-port out of range: %d", c.commandPort)
	}
	if c.samplingRate == 0 {
		return errors.New("sampling-rate must be > 0")
	}
	if c.nChannels <= 0 || c.nChannels > 256 {
		return fmt.Errorf("n-channels out of range (1..256): %d", c.nChannels)
	}
	if c.recvBuffer <= 0 {
		return fmt.Errorf("recv-buffer must be > 0 (got %d)", c.recvBuffer)
	}
	if c.testTimeout <= 0 {
		return errors.New("test-timeout-ms must be > 0")
	}
	if c.logMetricsEvery < 0 {
		return errors.New("log-metrics-interval must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps MEG_SERVER_* environment variables to config
// fields unless a corresponding flag was explicitly set. Boolean & numeric
// parsing is lax: empty values ignored. Duration accepts Go time.ParseDuration
// format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	reportErr := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if _, ok := set["host"]; !ok {
		if v, ok := get("MEG_SERVER_HOST"); ok && v != "" {
			c.host = v
		}
	}
	if _, ok := set["data-port"]; !ok {
		if v, ok := get("MEG_SERVER_DATA_PORT"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.dataPort = n
			} else if err != nil {
				reportErr(fmt.Errorf("invalid MEG_SERVER_DATA_PORT: %w", err))
			}
		}
	}
	if _, ok := set["status-port"]; !ok {
		if v, ok := get("MEG_SERVER_STATUS_PORT"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.statusPort = n
			} else if err != nil {
				reportErr(fmt.Errorf("invalid MEG_SERVER_STATUS_PORT: %w", err))
			}
		}
	}
	if _, ok := set["command-port"]; !ok {
		if v, ok := get("MEG_SERVER_COMMAND_PORT"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.commandPort = n
			} else if err != nil {
				reportErr(fmt.Errorf("invalid MEG_SERVER_COMMAND_PORT: %w", err))
			}
		}
	}
	if _, ok := set["sampling-rate"]; !ok {
		if v, ok := get("MEG_SERVER_SAMPLING_RATE"); ok && v != "" {
			if n, err := strconv.ParseUint(v, 10, 32); err == nil && n > 0 {
				c.samplingRate = uint(n)
			} else if err != nil {
				reportErr(fmt.Errorf("invalid MEG_SERVER_SAMPLING_RATE: %w", err))
			}
		}
	}
	if _, ok := set["n-channels"]; !ok {
		if v, ok := get("MEG_SERVER_N_CHANNELS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.nChannels = n
			} else if err != nil {
				reportErr(fmt.Errorf("invalid MEG_SERVER_N_CHANNELS: %w", err))
			}
		}
	}
	if _, ok := set["recv-buffer"]; !ok {
		if v, ok := get("MEG_SERVER_RECV_BUFFER"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.recvBuffer = n
			} else if err != nil {
				reportErr(fmt.Errorf("invalid MEG_SERVER_RECV_BUFFER: %w", err))
			}
		}
	}
	if _, ok := set["test-timeout-ms"]; !ok {
		if v, ok := get("MEG_SERVER_TEST_TIMEOUT_MS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.testTimeout = time.Duration(n) * time.Millisecond
			} else if err != nil {
				reportErr(fmt.Errorf("invalid MEG_SERVER_TEST_TIMEOUT_MS: %w", err))
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("MEG_SERVER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("MEG_SERVER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("MEG_SERVER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("MEG_SERVER_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil {
				reportErr(fmt.Errorf("invalid MEG_SERVER_LOG_METRICS_INTERVAL: %w", err))
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("MEG_SERVER_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("MEG_SERVER_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	return firstErr
}
