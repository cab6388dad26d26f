// Package party implements the Party Dispatcher from spec §4.6: a
// fiber-map-driven orchestrator that resolves role instances, wraps their
// work functions, schedules them by tag, and joins the resulting fibers
// under a declarative policy.
package party

import (
	"hash/fnv"
	"strconv"

	"github.com/pergyra-lang/core/fiber"
)

// FiberMapEntry describes one role's work, per spec §3's Fiber Map entry.
type FiberMapEntry struct {
	RoleId         string
	InstanceSlotId uint32
	ParallelFn     fiber.Func
	SchedulerTag   SchedulerTag
	Priority       fiber.Priority
	IntervalMs     int64
	IsContinuous   bool
}

// FiberMap is the compile-time-generated (or config-loaded, see the config
// package) role -> work -> scheduler -> priority table from spec §3. A
// FiberMap is immutable once constructed.
type FiberMap struct {
	PartyTypeName string
	Entries       []FiberMapEntry
	CacheKey      uint64
	IsStatic      bool
}

// NewFiberMap builds a FiberMap and computes its CacheKey deterministically
// from the party type name and the ordered (roleId, schedulerTag) pairs, per
// spec §3: "cacheKey is a deterministic hash of the (party type, ordered
// role ids, scheduler tags)". fnv-1a is used rather than a cryptographic
// hash because the key is an opaque cache index, not a security boundary —
// the same reasoning spec §1's Non-goals apply to cryptographic primitives
// in the other direction: this is plain bookkeeping, not the case `crypto/`
// is reserved for.
func NewFiberMap(partyTypeName string, entries []FiberMapEntry, isStatic bool) *FiberMap {
	h := fnv.New64a()
	_, _ = h.Write([]byte(partyTypeName))
	for _, e := range entries {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(e.RoleId))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(strconv.Itoa(int(e.SchedulerTag))))
	}
	return &FiberMap{
		PartyTypeName: partyTypeName,
		Entries:       append([]FiberMapEntry(nil), entries...),
		CacheKey:      h.Sum64(),
		IsStatic:      isStatic,
	}
}
