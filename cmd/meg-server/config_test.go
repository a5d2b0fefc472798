package main

import (
	"testing"
	"time"
)

func validConfig() *appConfig {
	return &appConfig{
		host:         "192.168.0.10",
		dataPort:     8089,
		statusPort:   8090,
		commandPort:  8092,
		samplingRate: 375,
		nChannels:    192,
		recvBuffer:   8192,
		testTimeout:  10 * time.Second,
		logFormat:    "text",
		logLevel:     "info",
	}
}

func TestConfigValidateOK(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badLogFormat", func(c *appConfig) { c.logFormat = "xml" }},
		{"badLogLevel", func(c *appConfig) { c.logLevel = "loud" }},
		{"emptyHost", func(c *appConfig) { c.host = "" }},
		{"dataPortZero", func(c *appConfig) { c.dataPort = 0 }},
		{"dataPortTooLarge", func(c *appConfig) { c.dataPort = 70000 }},
		{"statusPortZero", func(c *appConfig) { c.statusPort = 0 }},
		{"commandPortZero", func(c *appConfig) { c.commandPort = 0 }},
		{"samplingRateZero", func(c *appConfig) { c.samplingRate = 0 }},
		{"nChannelsZero", func(c *appConfig) { c.nChannels = 0 }},
		{"nChannelsOverRaw", func(c *appConfig) { c.nChannels = 257 }},
		{"recvBufferZero", func(c *appConfig) { c.recvBuffer = 0 }},
		{"testTimeoutZero", func(c *appConfig) { c.testTimeout = 0 }},
		{"negativeLogMetricsInterval", func(c *appConfig) { c.logMetricsEvery = -time.Second }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mod(c)
			if err := c.validate(); err == nil {
				t.Fatalf("%s: expected error, got nil", tc.name)
			}
		})
	}
}

func TestConfigValidateNilReceiver(t *testing.T) {
	var c *appConfig
	if err := c.validate(); err == nil {
		t.Fatal("expected error for nil config")
	}
}
