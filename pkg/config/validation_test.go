package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"invalid log level", func(c *Config) { c.Logging.Level = "INVALID" }, "oneof"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "oneof"},
		{"empty log output", func(c *Config) { c.Logging.Output = "" }, "required"},
		{"metrics port out of range", func(c *Config) { c.Server.Metrics.Port = 70000 }, "max"},
		{"metrics enabled without port", func(c *Config) { c.Server.Metrics.Port = 0 }, "port is required"},
		{"udp port out of range", func(c *Config) { c.Adapters.UDP.Port = 70000 }, "max"},
		{"udp ttl out of range", func(c *Config) { c.Adapters.UDP.TTL = 256 }, "max"},
		{"unknown peer store", func(c *Config) { c.Peers.Type = "redis" }, "oneof"},
		{"gc without peers", func(c *Config) { c.Peers.Enabled = false }, "requires peers.enabled"},
		{"badger without path", func(c *Config) {
			c.Peers.Type = "badger"
			c.Peers.Badger = map[string]any{}
		}, "path is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatalf("Expected validation error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_LowercaseLevelAccepted(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "debug"

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected lowercase level to pass, got: %v", err)
	}
}
