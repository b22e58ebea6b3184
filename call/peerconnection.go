/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package call

import "context"

// PeerConnection is the narrow interface this engine needs from the
// underlying WebRTC peer-connection stack. Its internals (SDP generation,
// ICE, media capture) are out of scope per spec.md §1 — this interface is
// the boundary the spec states but does not design. The media package
// provides a pion/webrtc-backed implementation; tests may inject a fake.
type PeerConnection interface {
	// CreateOffer starts local capture and SDP offer generation, and
	// returns the local description once ICE gathering has completed (or
	// a bounded fallback timeout elapses — spec.md §9's compliant
	// alternative to the fixed 300 ms wait).
	CreateOffer(ctx context.Context) (sdp string, err error)

	// CreateAnswer sets remoteOfferSDP as the remote description and
	// returns a local answer once ICE gathering has completed or the
	// fallback timeout elapses.
	CreateAnswer(ctx context.Context, remoteOfferSDP string) (sdp string, err error)

	// SetRemoteAnswer applies a final remote answer SDP.
	SetRemoteAnswer(sdp string) error

	// SetRemoteEarlyMedia applies an early-media remote SDP delivered
	// before the final answer (spec.md §4.4's onMediaReceived).
	SetRemoteEarlyMedia(sdp string) error

	// Close releases all media resources. Idempotent.
	Close() error
}

// SessionHandle is the narrow, non-owning reference a Call holds back to
// its owning session, per spec.md §9's design note on breaking the
// Client/Call reference cycle: Call never holds the session or Transport
// directly, only this interface.
type SessionHandle interface {
	// SessionID returns the session's current sessionId.
	SessionID() string
	// Send transmits a method/params body over the session's current
	// Transport, resolved at call time so a supervisor-driven reconnect
	// is transparent to in-flight Calls (spec.md §4.5 point 5).
	Send(method string, params any)
	// Remove drops callID from the owning registry and updates
	// ongoingCall (spec.md §3's CallRegistry invariant).
	Remove(callID string)
}
