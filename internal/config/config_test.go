package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DatabaseDriver != "sqlite" || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected database defaults: %+v", cfg)
	}
	if cfg.Cooldown != 15*time.Second || cfg.MaxBodyLength != 500 {
		t.Fatalf("unexpected content defaults: %+v", cfg)
	}
	if len(cfg.Zones) != 5 || cfg.Zones[0] != "Campus" {
		t.Fatalf("unexpected zones: %v", cfg.Zones)
	}
	if cfg.ModerationUnconfigured != "fail_open" {
		t.Fatalf("expected fail_open default, got %q", cfg.ModerationUnconfigured)
	}
	if cfg.ViolationThreshold != 3 || !cfg.LockOnSevere {
		t.Fatalf("unexpected autolock defaults: %+v", cfg)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SAFEYAK_CONTENT_COOLDOWN", "30s")
	t.Setenv("SAFEYAK_CONTENT_ZONES", "Campus, Library ,")
	t.Setenv("SAFEYAK_MODERATION_UNCONFIGURED_MODE", "fail_closed")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Cooldown != 30*time.Second {
		t.Fatalf("expected 30s cooldown, got %s", cfg.Cooldown)
	}
	if len(cfg.Zones) != 2 || cfg.Zones[1] != "Library" {
		t.Fatalf("unexpected zones %v", cfg.Zones)
	}
	if cfg.ModerationUnconfigured != "fail_closed" {
		t.Fatalf("expected fail_closed, got %q", cfg.ModerationUnconfigured)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testCases := map[string]map[string]string{
		"postgres-without-dsn": {"SAFEYAK_DATABASE_DRIVER": "postgres"},
		"unknown-driver":       {"SAFEYAK_DATABASE_DRIVER": "oracle"},
		"inverted-thresholds":  {"SAFEYAK_MODERATION_BLUR_THRESHOLD": "0.95"},
		"unknown-mode":         {"SAFEYAK_MODERATION_UNCONFIGURED_MODE": "maybe"},
		"zero-threshold":       {"SAFEYAK_AUTOLOCK_VIOLATION_THRESHOLD": "0"},
	}
	for name, env := range testCases {
		t.Run(name, func(t *testing.T) {
			for key, value := range env {
				t.Setenv(key, value)
			}
			if _, err := Load(NewViper()); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
