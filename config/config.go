// Package config loads the runtime's three configuration structs
// (SchedulerConfig, DispatcherConfig, SecurityConfig — spec §6) from a
// JSON-with-comments file, following the same `github.com/tailscale/hujson`
// pattern `calvinalkan-agent-task/config.go` uses for its own config file.
// Embedders that configure the runtime directly from Go never need this
// package; it exists for the ones who want a human-edited config file next
// to a compiled program.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/pergyra-lang/core/security"
)

// SchedulerSettings mirrors spec §6's Scheduler configuration enumeration.
type SchedulerSettings struct {
	NumWorkers         int    `json:"numWorkers"`
	IsDeterministic    bool   `json:"isDeterministic"`
	RandomSeed         uint32 `json:"randomSeed"`
	StackSizeHintBytes int    `json:"stackSizeHint"`
	EnableWorkStealing bool   `json:"enableWorkStealing"`
}

// DispatcherSettings mirrors spec §6's Dispatcher configuration
// enumeration. onFiberError/onTimeout are Go callbacks, not serializable,
// so they are attached by the embedder after loading, not read from file.
type DispatcherSettings struct {
	MaxCpuFibers         int   `json:"maxCpuFibers"`
	MaxGpuFibers         int   `json:"maxGpuFibers"`
	MaxIoFibers          int   `json:"maxIoFibers"`
	MaxBackgroundThreads int   `json:"maxBackgroundThreads"`
	MaxMemoryPerFiber    int64 `json:"maxMemoryPerFiber"`
	MaxExecutionTimeMs   int64 `json:"maxExecutionTimeMs"`
}

// SecuritySettings mirrors spec §6's Security configuration enumeration.
type SecuritySettings struct {
	DefaultLevel          string `json:"defaultLevel"`
	TokenTtlMs            int64  `json:"tokenTtlMs"`
	MaxValidationFailures uint64 `json:"maxValidationFailures"`
	HardwareBinding       bool   `json:"hardwareBinding"`
	TokenEncryption       bool   `json:"tokenEncryption"`
	TimingProtection      bool   `json:"timingProtection"`
	AuditLogging          bool   `json:"auditLogging"`
	ReplayProtection      bool   `json:"replayProtection"`
}

// Level resolves DefaultLevel to a security.Level, defaulting to Insecure
// for an empty or unrecognized string.
func (s SecuritySettings) Level() security.Level {
	switch s.DefaultLevel {
	case "Basic":
		return security.Basic
	case "Hardware":
		return security.Hardware
	case "Encrypted":
		return security.Encrypted
	default:
		return security.Insecure
	}
}

// Config is the top-level file format: a pergyra.jsonc next to a compiled
// program, per SPEC_FULL.md's Configuration section.
type Config struct {
	Scheduler  SchedulerSettings  `json:"scheduler"`
	Dispatcher DispatcherSettings `json:"dispatcher"`
	Security   SecuritySettings   `json:"security"`
}

// Default returns the spec's documented defaults: tokenTtlMs 300000,
// maxValidationFailures 10, work stealing and audit logging on.
func Default() Config {
	return Config{
		Scheduler: SchedulerSettings{
			EnableWorkStealing: true,
		},
		Security: SecuritySettings{
			DefaultLevel:          "Insecure",
			TokenTtlMs:            300000,
			MaxValidationFailures: 10,
			AuditLogging:          true,
		},
	}
}

// Load reads path as JSON-with-comments (JSONC) and unmarshals it over
// Default(), so a config file only needs to name the fields it overrides.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid JSONC in %s: %w", path, err)
	}
	cfg := Default()
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}
