package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Addr != ":8800" {
		t.Errorf("Addr = %q, want :8800", cfg.Addr)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q, want ./data", cfg.DataDir)
	}
	if cfg.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", cfg.WriteTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RELAY_ADDR", ":9999")
	t.Setenv("RELAY_LOG_LEVEL", "debug")
	t.Setenv("RELAY_CLIENT_BUFFER", "64")
	t.Setenv("RELAY_WRITE_TIMEOUT", "2s")

	cfg := Load()
	if cfg.Addr != ":9999" || cfg.LogLevel != "debug" || cfg.ClientBuffer != 64 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.WriteTimeout != 2*time.Second {
		t.Errorf("WriteTimeout = %v, want 2s", cfg.WriteTimeout)
	}
}

func TestLoadIgnoresBadValues(t *testing.T) {
	t.Setenv("RELAY_CLIENT_BUFFER", "not-a-number")
	t.Setenv("RELAY_WRITE_TIMEOUT", "soon")

	cfg := Load()
	if cfg.ClientBuffer != 256 {
		t.Errorf("ClientBuffer = %d, want default 256", cfg.ClientBuffer)
	}
	if cfg.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want default 10s", cfg.WriteTimeout)
	}
}
