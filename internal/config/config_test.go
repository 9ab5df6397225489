package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "DEAL_EVENT_EXCHANGE")
	unsetEnvWithCleanup(t, "RECONCILE_SCHEDULE")
	unsetEnvWithCleanup(t, "REDIS_RATE_LIMIT_PREFIX")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default ServerPort 8080, got %q", cfg.ServerPort)
	}
	if cfg.DealEventExchange != "deal_service.deal_events" {
		t.Fatalf("expected default DealEventExchange, got %q", cfg.DealEventExchange)
	}
	if cfg.ReconcileSchedule != "@every 5m" {
		t.Fatalf("expected default ReconcileSchedule, got %q", cfg.ReconcileSchedule)
	}
	if cfg.RedisRateLimitPrefix != "etharis:rate_limit" {
		t.Fatalf("expected default RedisRateLimitPrefix, got %q", cfg.RedisRateLimitPrefix)
	}
	if cfg.DealCreateRateLimitPerMinute != 30 {
		t.Fatalf("expected default create rate limit 30, got %d", cfg.DealCreateRateLimitPerMinute)
	}
	if cfg.DisputeRateLimitPerMinute != 10 {
		t.Fatalf("expected default dispute rate limit 10, got %d", cfg.DisputeRateLimitPerMinute)
	}
}

func TestLoadConfig_PortEnvOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9999")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9999" {
		t.Fatalf("expected PORT to override ServerPort, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_UsesRedisURLAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "REDIS_URL")
	setEnvWithCleanup(t, "DEAL_SERVICE_REDIS_URL", "redis://alias:6379")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RedisURL != "redis://alias:6379" {
		t.Fatalf("expected RedisURL from alias env var, got %q", cfg.RedisURL)
	}
}

func TestLoadConfig_NegativeRateLimitsDisable(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "DEAL_CREATE_RATE_LIMIT_PER_MINUTE", "-5")
	setEnvWithCleanup(t, "DISPUTE_RATE_LIMIT_PER_MINUTE", "-1")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.DealCreateRateLimitPerMinute != 0 {
		t.Fatalf("expected negative create rate limit to disable, got %d", cfg.DealCreateRateLimitPerMinute)
	}
	if cfg.DisputeRateLimitPerMinute != 0 {
		t.Fatalf("expected negative dispute rate limit to disable, got %d", cfg.DisputeRateLimitPerMinute)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
