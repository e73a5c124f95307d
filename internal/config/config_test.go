package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	for _, key := range []string{"REDIS_URL", "REDIS_HOST", "REDIS_PORT", "DEFAULT_BALANCE", "LOCK_TTL", "PORT", "CHARGE_RATE_LIMIT"} {
		t.Setenv(key, "")
	}

	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RedisURL != "redis://localhost:6379" {
		t.Fatalf("unexpected redis url %q", cfg.RedisURL)
	}
	if cfg.DefaultBalance != 100 || cfg.LockTTL != 10*time.Second || cfg.ChargeRateLimit != 0 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestRedisHostAndPort(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RedisURL != "redis://cache:6380" {
		t.Fatalf("unexpected redis url %q", cfg.RedisURL)
	}
}

func TestDurationsAcceptSecondsAndGoSyntax(t *testing.T) {
	t.Setenv("LOCK_TTL", "0")
	t.Setenv("SHUTDOWN_TIMEOUT", "1500ms")
	t.Setenv("IDEMPOTENCY_TTL", "30")

	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LockTTL != 0 {
		t.Fatalf("expected lock ttl disabled, got %v", cfg.LockTTL)
	}
	if cfg.ShutdownPeriod != 1500*time.Millisecond {
		t.Fatalf("unexpected shutdown %v", cfg.ShutdownPeriod)
	}
	if cfg.IdempotencyTTL != 30*time.Second {
		t.Fatalf("unexpected idempotency ttl %v", cfg.IdempotencyTTL)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]string{
		"LOCK_TTL":          "soon",
		"DEFAULT_BALANCE":   "lots",
		"CHARGE_RATE_LIMIT": "1.5",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := fromEnv(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}

	t.Run("negative balance", func(t *testing.T) {
		t.Setenv("DEFAULT_BALANCE", "-1")
		if _, err := fromEnv(); err == nil {
			t.Fatal("expected error for negative balance")
		}
	})

	for _, value := range []string{"-5", "-5s"} {
		t.Run("negative lock ttl "+value, func(t *testing.T) {
			t.Setenv("LOCK_TTL", value)
			if _, err := fromEnv(); err == nil {
				t.Fatalf("expected error for LOCK_TTL=%s", value)
			}
		})
	}
}
