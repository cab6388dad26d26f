package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/pergyra-lang/core/fiber"
	"github.com/pergyra-lang/core/party"
)

// RoleManifest declares one Fiber Map entry in a YAML party manifest. Unlike
// the compile-time-generated FiberMap (see cmd/fibermapgen), a manifest
// names its work function by a registry key rather than embedding a Go
// closure, since YAML cannot carry executable code; the caller supplies the
// registry mapping those keys to fiber.Func values.
type RoleManifest struct {
	RoleId         string `yaml:"roleId"`
	InstanceSlotId uint32 `yaml:"instanceSlotId"`
	WorkKey        string `yaml:"work"`
	SchedulerTag   string `yaml:"schedulerTag"`
	Priority       string `yaml:"priority"`
	IntervalMs     int64  `yaml:"intervalMs"`
	IsContinuous   bool   `yaml:"isContinuous"`
}

// PartyManifest is the declarative counterpart to a compile-time-generated
// FiberMap, per SPEC_FULL.md's Configuration section: a yaml.v2 document
// listing a party's roles, scheduler tags, and priorities without
// recompiling, grounded in the teacher's cmd/mkaddon AddonData YAML shape.
type PartyManifest struct {
	PartyTypeName string         `yaml:"partyTypeName"`
	IsStatic      bool           `yaml:"isStatic"`
	Roles         []RoleManifest `yaml:"roles"`
}

// LoadPartyManifest reads and parses a YAML party manifest from path.
func LoadPartyManifest(path string) (*PartyManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var m PartyManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("config: parse manifest %s: %w", path, err)
	}
	return &m, nil
}

var schedulerTagNames = map[string]party.SchedulerTag{
	"MainThread":       party.MainThread,
	"CpuFiber":         party.CpuFiber,
	"GpuFiber":         party.GpuFiber,
	"IoFiber":          party.IoFiber,
	"BackgroundThread": party.BackgroundThread,
	"ComputeThread":    party.ComputeThread,
	"NetworkThread":    party.NetworkThread,
	"Custom1":          party.Custom1,
	"Custom2":          party.Custom2,
	"Custom3":          party.Custom3,
	"Any":              party.Any,
}

var priorityNames = map[string]fiber.Priority{
	"Idle":     fiber.Idle,
	"Low":      fiber.Low,
	"Normal":   fiber.Normal,
	"High":     fiber.High,
	"Critical": fiber.Critical,
}

// Build resolves m into a *party.FiberMap, looking up each role's work
// function by WorkKey in workRegistry. An entry whose WorkKey is absent
// from workRegistry is skipped with a nil ParallelFn, which
// party.DispatchParallel records as a RoleInstanceMissing error rather than
// failing the whole build — matching the "record error and skip" behavior
// spec §4.6 already defines for an unresolvable entry.
func (m *PartyManifest) Build(workRegistry map[string]fiber.Func) *party.FiberMap {
	entries := make([]party.FiberMapEntry, len(m.Roles))
	for i, r := range m.Roles {
		tag, ok := schedulerTagNames[r.SchedulerTag]
		if !ok {
			tag = party.CpuFiber
		}
		prio, ok := priorityNames[r.Priority]
		if !ok {
			prio = fiber.Normal
		}
		entries[i] = party.FiberMapEntry{
			RoleId:         r.RoleId,
			InstanceSlotId: r.InstanceSlotId,
			ParallelFn:     workRegistry[r.WorkKey],
			SchedulerTag:   tag,
			Priority:       prio,
			IntervalMs:     r.IntervalMs,
			IsContinuous:   r.IsContinuous,
		}
	}
	return party.NewFiberMap(m.PartyTypeName, entries, m.IsStatic)
}
