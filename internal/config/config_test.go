package config

import (
	"testing"
	"time"

	"fintank/internal/ocean"
)

func TestEnvPolicyPreset(t *testing.T) {
	t.Setenv("FINTANK_TIMERS", "")
	if got := envPolicy(); got != ocean.ProductionPolicy() {
		t.Fatalf("default preset should be production")
	}
	t.Setenv("FINTANK_TIMERS", "development")
	if got := envPolicy(); got != ocean.DevelopmentPolicy() {
		t.Fatalf("development preset not selected")
	}
	t.Setenv("FINTANK_TIMERS", "DEV")
	if got := envPolicy(); got != ocean.DevelopmentPolicy() {
		t.Fatalf("preset lookup should be case-insensitive")
	}
}

func TestEnvDurationDefault(t *testing.T) {
	t.Setenv("FINTANK_SYNC_EVERY", "90s")
	if got := envDurationDefault("FINTANK_SYNC_EVERY", time.Minute); got != 90*time.Second {
		t.Fatalf("got %v want 90s", got)
	}
	t.Setenv("FINTANK_SYNC_EVERY", "not-a-duration")
	if got := envDurationDefault("FINTANK_SYNC_EVERY", time.Minute); got != time.Minute {
		t.Fatalf("bad value should fall back, got %v", got)
	}
}

func TestLoadAPIRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("WALLET_AUTH_URL", "http://wallet.local")
	t.Setenv("WALLET_AUTH_KEY", "k")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("missing DATABASE_URL should fail")
	}
}
