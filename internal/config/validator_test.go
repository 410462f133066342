package config

import (
	"strings"
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"sqlite", func(c *Config) { c.Store.Driver = "sqlite" }, ""},
		{"missing tool", func(c *Config) { c.Tool.Path = "" }, "tool.path"},
		{"negative timeout", func(c *Config) { c.Tool.Timeout = -1 }, "tool.timeout"},
		{"negative retries", func(c *Config) { c.Tool.MaxRetries = -1 }, "tool.max_retries"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"no duration key", func(c *Config) { c.DurationKey = "" }, "duration_key"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("/home/alice")
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestMultiValidationError_Error(t *testing.T) {
	err := &MultiValidationError{Errors: []ValidationError{
		{Field: "workers", Message: "workers must be positive"},
		{Field: "duration_key", Message: "duration key is required"},
	}}

	msg := err.Error()
	if !strings.Contains(msg, "2 errors") || !strings.Contains(msg, "1. workers") {
		t.Errorf("unexpected message: %s", msg)
	}
}
