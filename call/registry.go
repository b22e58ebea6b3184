/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package call

import "sync"

// Registry maps callID to Call, generalizing the teacher SDK's
// callingclient.go activeCalls map. Mutation happens only through
// Add/Remove, which keep the session's ongoingCall flag honest per
// spec.md §3's invariant: session.ongoingCall ⇔ registry non-empty.
type Registry struct {
	mu    sync.RWMutex
	calls map[string]*Call

	onChange func(ongoing bool)
}

// NewRegistry constructs an empty Registry. onChange, if non-nil, is
// invoked after every Add/Remove with the registry's new non-empty state
// — the hook the owning session uses to maintain ongoingCall.
func NewRegistry(onChange func(ongoing bool)) *Registry {
	return &Registry{calls: make(map[string]*Call), onChange: onChange}
}

// Add inserts c, keyed by its callID.
func (r *Registry) Add(c *Call) {
	r.mu.Lock()
	r.calls[c.ID()] = c
	ongoing := len(r.calls) > 0
	r.mu.Unlock()
	r.notify(ongoing)
}

// Remove drops the call with the given callID, if present.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	delete(r.calls, callID)
	ongoing := len(r.calls) > 0
	r.mu.Unlock()
	r.notify(ongoing)
}

// Get returns the call with the given callID, and whether it was found.
// A miss is the UnknownCall condition named in spec.md §4.2.
func (r *Registry) Get(callID string) (*Call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[callID]
	return c, ok
}

// Len returns the number of live calls.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// Snapshot returns a point-in-time copy of every live call, used by
// disconnect's implicit-endCall sweep (spec.md §5's "On session
// disconnect, every Call receives an implicit endCall").
func (r *Registry) Snapshot() []*Call {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c)
	}
	return out
}

func (r *Registry) notify(ongoing bool) {
	if r.onChange != nil {
		r.onChange(ongoing)
	}
}
