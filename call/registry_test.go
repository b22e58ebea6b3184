/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package call

import (
	"testing"

	"github.com/vertocall/go-verto/emitter"
)

func TestRegistryOngoingCallInvariant(t *testing.T) {
	var ongoing bool
	r := NewRegistry(func(o bool) { ongoing = o })

	session := &fakeSession{sessionID: "S1"}
	pc := &fakePeerConnection{}
	c := NewOutboundCall(session, pc, emitter.New(), "Alice", "1000", "2000", "stateX")

	r.Add(c)
	if !ongoing {
		t.Fatalf("expected ongoing=true after Add")
	}
	if got, ok := r.Get(c.ID()); !ok || got != c {
		t.Fatalf("expected Get to find the added call")
	}

	r.Remove(c.ID())
	if ongoing {
		t.Fatalf("expected ongoing=false after Remove")
	}
	if _, ok := r.Get(c.ID()); ok {
		t.Fatalf("expected Get to miss after Remove")
	}
}

func TestRegistryUnknownCallIsAMiss(t *testing.T) {
	r := NewRegistry(nil)
	if _, ok := r.Get("does-not-exist"); ok {
		t.Fatalf("expected miss for unknown callID")
	}
}

func TestRegistrySnapshotIsPointInTime(t *testing.T) {
	r := NewRegistry(nil)
	session := &fakeSession{sessionID: "S1"}
	pc := &fakePeerConnection{}
	c1 := NewOutboundCall(session, pc, emitter.New(), "Alice", "1000", "2000", "stateX")
	c2 := NewOutboundCall(session, pc, emitter.New(), "Bob", "1001", "2001", "stateY")
	r.Add(c1)
	r.Add(c2)

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected snapshot of 2 calls, got %d", len(snap))
	}
}
