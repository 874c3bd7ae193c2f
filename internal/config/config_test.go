package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DRIVER", "DATABASE_URL", "REDIS_ADDR", "WS_SEND_BUFFER", "WS_WRITE_TIMEOUT", "WS_PING_INTERVAL", "WS_MAX_MESSAGE_BYTES"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Port != "8080" || cfg.Addr() != ":8080" {
		t.Fatalf("unexpected port %q", cfg.Port)
	}
	if cfg.DBDriver != "sqlite" || cfg.DatabaseURL != "noteflare.db" {
		t.Fatalf("unexpected db config %q %q", cfg.DBDriver, cfg.DatabaseURL)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("expected redis disabled by default, got %q", cfg.RedisAddr)
	}
	if cfg.WSSendBuffer != 32 || cfg.WSWriteTimeout != 10*time.Second || cfg.WSPingInterval != 25*time.Second {
		t.Fatalf("unexpected websocket defaults: %+v", cfg)
	}
	if cfg.WSMaxMessageBytes != 1<<20 {
		t.Fatalf("unexpected max message bytes %d", cfg.WSMaxMessageBytes)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("WS_SEND_BUFFER", "4")
	t.Setenv("WS_WRITE_TIMEOUT", "2s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "9000" || cfg.DBDriver != "postgres" || cfg.RedisAddr != "redis:6379" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.WSSendBuffer != 4 || cfg.WSWriteTimeout != 2*time.Second {
		t.Fatalf("websocket overrides not applied: %+v", cfg)
	}
}

func TestLoadConfig_UnsupportedDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestLoadConfig_InvalidNumbers(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("WS_SEND_BUFFER", "lots")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for non-numeric buffer")
	}

	t.Setenv("WS_SEND_BUFFER", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for zero buffer")
	}

	t.Setenv("WS_SEND_BUFFER", "")
	t.Setenv("WS_PING_INTERVAL", "soon")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("UNIT_TEST_ENV", "value")
	if got := getEnvOrDefault("UNIT_TEST_ENV", "fallback"); got != "value" {
		t.Fatalf("expected env value, got %s", got)
	}

	t.Setenv("UNIT_TEST_ENV", "")
	if got := getEnvOrDefault("UNIT_TEST_ENV", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback value, got %s", got)
	}
}
