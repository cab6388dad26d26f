package slotmanager

import "github.com/pergyra-lang/core/security"

// Scope is the secure slot scope collaborator from spec §4.2: a bag of
// (handle, capability) pairs released in reverse order on scope exit
// regardless of exit path, wiping capability bytes before freeing.
type Scope struct {
	mgr     *Manager
	entries []scopeEntry
}

type scopeEntry struct {
	handle Handle
	capb   security.Capability
	secure bool
}

// NewScope opens a Scope bound to mgr. Typical use is a deferred Close:
//
//	scope := slotmanager.NewScope(mgr)
//	defer scope.Close()
func NewScope(mgr *Manager) *Scope {
	return &Scope{mgr: mgr}
}

// Track registers a plain (non-secure) handle for release on Close.
func (s *Scope) Track(h Handle) {
	s.entries = append(s.entries, scopeEntry{handle: h})
}

// TrackSecure registers a (handle, capability) pair for secure release on
// Close.
func (s *Scope) TrackSecure(h Handle, capb security.Capability) {
	s.entries = append(s.entries, scopeEntry{handle: h, capb: capb, secure: true})
}

// Close releases every tracked handle in reverse registration order,
// wiping each tracked capability's token bytes once its secure release has
// been attempted. Close is idempotent: a
// second call finds nothing tracked and returns nil. The first error
// encountered is returned after every entry has still been given a chance
// to release — a failure on one handle must not leak the rest.
func (s *Scope) Close() error {
	var first error
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.secure {
			err := s.mgr.ReleaseSecure(e.handle, e.capb)
			wipeCapability(&s.entries[i].capb)
			if err != nil && first == nil {
				first = err
			}
			continue
		}
		if err := s.mgr.Release(e.handle); err != nil && first == nil {
			first = err
		}
	}
	s.entries = nil
	return first
}

// wipeCapability zeroes a Capability's token material in place once its
// slot has been released, per spec §4.2's release semantics.
func wipeCapability(c *security.Capability) {
	for i := range c.Token.Data {
		c.Token.Data[i] = 0
	}
	c.Token.Generation = 0
	c.Token.Checksum = 0
}
