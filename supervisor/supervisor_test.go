/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package supervisor

import (
	"context"
	"sync"
	"testing"

	"github.com/vertocall/go-verto/call"
	"github.com/vertocall/go-verto/emitter"
	"github.com/vertocall/go-verto/session"
	"github.com/vertocall/go-verto/transport"
)

type fakeTransport struct {
	mu        sync.Mutex
	listener  transport.Listener
	connected bool
	sent      []any
	destroyed bool
}

func (f *fakeTransport) Connect(listener transport.Listener, host string, port int) error {
	f.mu.Lock()
	f.listener = listener
	f.connected = true
	f.mu.Unlock()
	listener.OnConnectionEstablished()
	return nil
}

func (f *fakeTransport) Send(body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		f.sent = append(f.sent, body)
	}
}

func (f *fakeTransport) Destroy(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.destroyed = true
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

type fakePeerConnection struct{}

func (fakePeerConnection) CreateOffer(ctx context.Context) (string, error)         { return "v=0", nil }
func (fakePeerConnection) CreateAnswer(ctx context.Context, sdp string) (string, error) {
	return "v=0", nil
}
func (fakePeerConnection) SetRemoteAnswer(sdp string) error    { return nil }
func (fakePeerConnection) SetRemoteEarlyMedia(sdp string) error { return nil }
func (fakePeerConnection) Close() error                        { return nil }

func newTestSupervisor() (*Supervisor, *session.Session, *fakeTransport, func() *fakeTransport) {
	events := emitter.New()
	initial := &fakeTransport{}
	sess := session.New(initial, session.DefaultConfig(), events, session.AlwaysAvailable{}, func() call.PeerConnection {
		return fakePeerConnection{}
	})

	var lastMinted *fakeTransport
	factory := func() session.Transport {
		lastMinted = &fakeTransport{}
		return lastMinted
	}

	sv := New(sess, session.DefaultServerConfig(), factory, events, nil)
	return sv, sess, initial, func() *fakeTransport { return lastMinted }
}

func TestRegisterNetworkObserverIsIdempotent(t *testing.T) {
	sv, _, _, _ := newTestSupervisor()
	sv.RegisterNetworkObserver()
	sv.RegisterNetworkObserver()
	if !sv.Registered() {
		t.Fatalf("expected Registered true")
	}
}

func TestOnNetworkUnavailableEmitsErrorAndArmsReconnect(t *testing.T) {
	sv, _, _, _ := newTestSupervisor()

	var errs []any
	sv.events.On(emitter.EventError, func(data any) { errs = append(errs, data) })

	sv.OnNetworkUnavailable()

	if !sv.Reconnecting() {
		t.Fatalf("expected Reconnecting true after OnNetworkUnavailable")
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 ERROR event, got %d", len(errs))
	}
}

func TestOnNetworkAvailableWithoutPendingReconnectIsNoOp(t *testing.T) {
	sv, _, initial, mintedFn := newTestSupervisor()
	sv.OnNetworkAvailable()
	if mintedFn() != nil {
		t.Fatalf("expected no Transport minted without a pending reconnect")
	}
	if initial.destroyed {
		t.Fatalf("expected the original Transport untouched on a no-op")
	}
}

func TestOnNetworkAvailableWithoutSavedCredentialsIsNoOp(t *testing.T) {
	sv, _, initial, mintedFn := newTestSupervisor()
	sv.OnNetworkUnavailable()
	sv.OnNetworkAvailable()
	if mintedFn() != nil {
		t.Fatalf("expected no Transport minted when nothing is saved to replay")
	}
	if initial.destroyed {
		t.Fatalf("expected the original Transport untouched when there is nothing to replay")
	}
	if sv.Reconnecting() {
		t.Fatalf("expected Reconnecting cleared even on a no-op reconnect")
	}
}

func TestOnNetworkAvailableReplaysLoginAfterReconnect(t *testing.T) {
	sv, sess, initial, mintedFn := newTestSupervisor()

	sess.CredentialLogin(session.CredentialConfig{SipUser: "1000", SipPassword: "secret"})

	sv.OnNetworkUnavailable()
	sv.OnNetworkAvailable()

	minted := mintedFn()
	if minted == nil {
		t.Fatalf("expected a fresh Transport to be minted")
	}
	if !minted.IsConnected() {
		t.Fatalf("expected the fresh Transport to be connected")
	}
	if len(minted.sent) != 1 {
		t.Fatalf("expected 1 replayed login send on the fresh Transport, got %d", len(minted.sent))
	}
	if !initial.destroyed {
		t.Fatalf("expected the pre-reconnect Transport to be destroyed, not leaked")
	}
	if sv.Reconnecting() {
		t.Fatalf("expected Reconnecting cleared after a completed reconnect")
	}
}
