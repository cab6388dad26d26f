package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pergyra-lang/core/security"
)

func TestLoadMergesOverJSONCDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pergyra.jsonc")
	jsonc := `{
		// worker count override
		"scheduler": {"numWorkers": 8, "isDeterministic": true},
		"security": {"defaultLevel": "Hardware"},
	}`
	if err := os.WriteFile(path, []byte(jsonc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.NumWorkers != 8 || !cfg.Scheduler.IsDeterministic {
		t.Fatalf("scheduler settings not applied: %+v", cfg.Scheduler)
	}
	if cfg.Security.Level() != security.Hardware {
		t.Fatalf("Level() = %v, want Hardware", cfg.Security.Level())
	}
	if cfg.Security.TokenTtlMs != 300000 {
		t.Fatalf("default TokenTtlMs not preserved: %d", cfg.Security.TokenTtlMs)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.jsonc")
	if err := os.WriteFile(path, []byte("{ not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject malformed JSONC")
	}
}

func TestSecuritySettingsLevelDefaultsToInsecure(t *testing.T) {
	var s SecuritySettings
	if s.Level() != security.Insecure {
		t.Fatalf("zero-value SecuritySettings.Level() = %v, want Insecure", s.Level())
	}
}
