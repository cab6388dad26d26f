// Package slotmanager implements the typed, reference-counted slot
// allocator from spec §4.2: it layers typed handles, ownership tracking,
// and optional capability-token security over internal/pool's raw index
// allocator.
package slotmanager

// TypeTag identifies the Go type a slot was claimed to hold. The manager
// never interprets slot bytes itself; TypeTag exists purely so mismatched
// accesses can be rejected before any bytes move, per spec §4.2's "typed
// access" rule.
type TypeTag uint32

// Ownership classifies how a Handle's lifetime is managed, the
// SmartSlot-derived supplement from original_source/ that spec.md's
// distillation dropped (see SPEC_FULL.md's SUPPLEMENT section).
type Ownership int

const (
	// Owned handles are the sole reference; Release frees the slot
	// immediately.
	Owned Ownership = iota
	// Shared handles participate in reference counting; the slot frees
	// when the last Shared handle releases.
	Shared
	// Weak handles observe a Shared-owned slot without keeping it alive;
	// operations against a Weak handle whose target has already been
	// freed return SlotNotFound rather than corrupting memory.
	Weak
)

func (o Ownership) String() string {
	switch o {
	case Owned:
		return "Owned"
	case Shared:
		return "Shared"
	case Weak:
		return "Weak"
	default:
		return "Ownership(?)"
	}
}

// Handle is the opaque capability callers hold in place of a raw pointer,
// per spec §3's Slot Handle: `{ slotId, typeTag, generation }`. A Handle is
// valid only while an occupied entry with the same triple exists.
type Handle struct {
	SlotID     uint32
	TypeTag    TypeTag
	Generation uint32
	Ownership  Ownership
}

// nullSlotID is the slot-id counterpart of internal/pool's NullIndex
// exhaustion sentinel. Manager.Claim reports pool exhaustion as an
// OutOfSlots error rather than through this value.
const nullSlotID uint32 = 0xFFFFFFFF
