package cache

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.StaleRatio != 0.8 {
		t.Errorf("expected stale ratio 0.8, got %v", cfg.StaleRatio)
	}
	if cfg.LockTTL != 300*time.Second {
		t.Errorf("expected lock ttl 300s, got %v", cfg.LockTTL)
	}
	if cfg.DefaultTTL != time.Hour {
		t.Errorf("expected default ttl 1h, got %v", cfg.DefaultTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "inline refresh", mutate: func(c *Config) { c.RefreshWorkers = 0; c.RefreshQueueSize = 0 }},
		{name: "missing namespace", mutate: func(c *Config) { c.Namespace = "" }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.DefaultTTL = 0 }, wantErr: true},
		{name: "zero stale ratio", mutate: func(c *Config) { c.StaleRatio = 0 }, wantErr: true},
		{name: "stale ratio above one", mutate: func(c *Config) { c.StaleRatio = 1.2 }, wantErr: true},
		{name: "stale ratio of one", mutate: func(c *Config) { c.StaleRatio = 1 }},
		{name: "zero lock ttl", mutate: func(c *Config) { c.LockTTL = 0 }, wantErr: true},
		{name: "zero operation timeout", mutate: func(c *Config) { c.OperationTimeout = 0 }, wantErr: true},
		{name: "negative workers", mutate: func(c *Config) { c.RefreshWorkers = -1 }, wantErr: true},
		{name: "workers without queue", mutate: func(c *Config) { c.RefreshQueueSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
