package party

import (
	"hash/fnv"
	"sync"

	"github.com/zephyrtronium/contains"

	"github.com/pergyra-lang/core/errs"
)

// Role is one entry of a Party Context's role table, per spec §3.
type Role struct {
	SlotName  string
	SlotId    uint32
	Instance  interface{}
	Abilities []string

	// Delegates lists other slot names this role forwards an unresolved
	// ability lookup to. Spec §9 asserts "no cycle ever exists in the
	// ownership graph" for a well-formed program; Delegates is an optional
	// escape hatch for roles that proxy abilities to a teammate, and
	// PartyContext.ResolveAbility guards its traversal against a
	// malformed, cyclic Delegates graph regardless.
	Delegates []string
}

func hasAbility(r *Role, ability string) bool {
	for _, a := range r.Abilities {
		if a == ability {
			return true
		}
	}
	return false
}

func slotNameID(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// PartyContext is the narrow capability surface roles use to look each
// other up, per spec §3/§4.6: GetRole, FindRoles, GetShared.
type PartyContext struct {
	mu           sync.RWMutex
	partyName    string
	roles        map[string]*Role
	sharedFields map[string]interface{}
	inCombat     bool
}

// NewPartyContext creates an empty context for the named party.
func NewPartyContext(partyName string) *PartyContext {
	return &PartyContext{
		partyName:    partyName,
		roles:        make(map[string]*Role),
		sharedFields: make(map[string]interface{}),
	}
}

// AddRole registers or replaces a role by its SlotName.
func (c *PartyContext) AddRole(r *Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roles[r.SlotName] = r
}

// PartyName returns the party's display name.
func (c *PartyContext) PartyName() string { return c.partyName }

// InCombat reports the party's combat flag.
func (c *PartyContext) InCombat() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inCombat
}

// SetInCombat sets the party's combat flag.
func (c *PartyContext) SetInCombat(v bool) {
	c.mu.Lock()
	c.inCombat = v
	c.mu.Unlock()
}

// GetRole returns the role at slotName if it exists and has
// requiredAbility; otherwise it returns SlotNotFound or PermissionDenied.
// An empty requiredAbility skips the ability check.
func (c *PartyContext) GetRole(slotName, requiredAbility string) (*Role, error) {
	c.mu.RLock()
	r, ok := c.roles[slotName]
	c.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.SlotNotFound, "PartyContext.GetRole", nil)
	}
	if requiredAbility != "" && !hasAbility(r, requiredAbility) {
		return nil, errs.New(errs.PermissionDenied, "PartyContext.GetRole", nil)
	}
	return r, nil
}

// FindRoles returns every role that has the given ability, in no
// particular order.
func (c *PartyContext) FindRoles(ability string) []*Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Role
	for _, r := range c.roles {
		if hasAbility(r, ability) {
			out = append(out, r)
		}
	}
	return out
}

// GetShared returns a shared field's value and whether it was present.
func (c *PartyContext) GetShared(field string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.sharedFields[field]
	return v, ok
}

// SetShared stores a shared field's value.
func (c *PartyContext) SetShared(field string, v interface{}) {
	c.mu.Lock()
	c.sharedFields[field] = v
	c.mu.Unlock()
}

// ResolveAbility finds the first role reachable from startSlotName, by
// Delegates chain, that holds ability — either startSlotName's own role or
// a role it delegates to (transitively). Traversal is guarded with a
// contains.Set of visited slot-name hashes, the same guard the teacher's
// getSlotAncestor (internal/slots.go) uses against diamond-shaped proto
// graphs, so a malformed cyclic Delegates graph terminates instead of
// looping forever, per SPEC_FULL.md's cycle-safe-traversal section.
func (c *PartyContext) ResolveAbility(startSlotName, ability string) (*Role, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := contains.Set{}
	stack := []string{startSlotName}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !seen.Add(slotNameID(name)) {
			continue
		}
		r, ok := c.roles[name]
		if !ok {
			continue
		}
		if hasAbility(r, ability) {
			return r, nil
		}
		stack = append(stack, r.Delegates...)
	}
	return nil, errs.New(errs.PermissionDenied, "PartyContext.ResolveAbility", nil)
}
