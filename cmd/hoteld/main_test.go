package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/roomhold/internal/availcache"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func TestLoadConfigFromFlagsEnvAndFile(test *testing.T) {
	configPath := filepath.Join(test.TempDir(), "hotel.yaml")
	document := `
hotel:
  hold_duration: 20m
  timezone: UTC
  rooms:
    - number: 7
      name: Attic
      rate: 9900
`
	if err := os.WriteFile(configPath, []byte(document), 0o600); err != nil {
		test.Fatalf("write config: %v", err)
	}
	test.Setenv("HOTELD_SESSION_SIGNING_KEY", "env-secret")

	cmd := newRootCommand()
	if err := cmd.ParseFlags([]string{
		"--config", configPath,
		"--database-url", "sqlite:///tmp/roomhold-test.db",
		"--staff-roles", "frontdesk, manager",
		"--cache-ttl", "30s",
	}); err != nil {
		test.Fatalf("parse flags: %v", err)
	}
	cfg := &runtimeConfig{}
	if err := loadConfig(cmd, viper.New(), cfg); err != nil {
		test.Fatalf("load config: %v", err)
	}

	if cfg.HTTP.SessionSigningKey != "env-secret" {
		test.Fatalf("expected signing key from env, got %q", cfg.HTTP.SessionSigningKey)
	}
	if len(cfg.HTTP.StaffRoles) != 2 || cfg.HTTP.StaffRoles[1] != "manager" {
		test.Fatalf("unexpected staff roles: %v", cfg.HTTP.StaffRoles)
	}
	if cfg.HTTP.AvailabilityCacheTTL != 30*time.Second {
		test.Fatalf("unexpected cache ttl: %s", cfg.HTTP.AvailabilityCacheTTL)
	}
	if cfg.Hotel.HoldDuration != 20*time.Minute || len(cfg.Hotel.Rooms) != 1 || cfg.Hotel.Rooms[0].Number != 7 {
		test.Fatalf("unexpected hotel: %+v", cfg.Hotel)
	}
	if cfg.Store.DatabaseURL != "sqlite:///tmp/roomhold-test.db" || !cfg.Store.Migrate {
		test.Fatalf("unexpected store config: %+v", cfg.Store)
	}
}

func TestLoadConfigRequiresSigningKey(test *testing.T) {
	test.Setenv("HOTELD_SESSION_SIGNING_KEY", "")
	cmd := newRootCommand()
	if err := cmd.ParseFlags(nil); err != nil {
		test.Fatalf("parse flags: %v", err)
	}
	if err := loadConfig(cmd, viper.New(), &runtimeConfig{}); err == nil {
		test.Fatalf("expected missing signing key to fail")
	}
}

func TestAvailabilityCacheFallsBackToMemory(test *testing.T) {
	cfg := &runtimeConfig{}
	cfg.HTTP.AvailabilityCacheTTL = time.Minute
	cache, closeFn, err := newAvailabilityCache(context.Background(), cfg, zap.NewNop())
	if err != nil {
		test.Fatalf("cache: %v", err)
	}
	defer closeFn()
	if _, ok := cache.(*availcache.Memory); !ok {
		test.Fatalf("expected in-process cache, got %T", cache)
	}
}
