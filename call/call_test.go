/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package call

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/vertocall/go-verto/codec"
	"github.com/vertocall/go-verto/emitter"
)

type fakePeerConnection struct {
	offerSDP  string
	answerSDP string
	closed    bool
}

func (f *fakePeerConnection) CreateOffer(ctx context.Context) (string, error) {
	return f.offerSDP, nil
}

func (f *fakePeerConnection) CreateAnswer(ctx context.Context, remoteOfferSDP string) (string, error) {
	return f.answerSDP, nil
}

func (f *fakePeerConnection) SetRemoteAnswer(sdp string) error    { return nil }
func (f *fakePeerConnection) SetRemoteEarlyMedia(sdp string) error { return nil }
func (f *fakePeerConnection) Close() error                        { f.closed = true; return nil }

type fakeSession struct {
	mu        sync.Mutex
	sessionID string
	sent      []sentMessage
	removed   []string
}

type sentMessage struct {
	method string
	params any
}

func (f *fakeSession) SessionID() string { return f.sessionID }

func (f *fakeSession) Send(method string, params any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{method: method, params: params})
}

func (f *fakeSession) Remove(callID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, callID)
}

func TestNewOutboundCallStartsRinging(t *testing.T) {
	session := &fakeSession{sessionID: "S1"}
	pc := &fakePeerConnection{offerSDP: "v=0 offer"}
	c := NewOutboundCall(session, pc, emitter.New(), "Alice", "1000", "2000", "stateX")

	if c.State() != StateRinging {
		t.Fatalf("expected initial state RINGING, got %s", c.State())
	}
}

func TestDialSendsInvite(t *testing.T) {
	session := &fakeSession{sessionID: "S1"}
	pc := &fakePeerConnection{offerSDP: "v=0 offer"}
	c := NewOutboundCall(session, pc, emitter.New(), "Alice", "1000", "2000", "stateX")

	if err := c.Dial(context.Background()); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if len(session.sent) != 1 || session.sent[0].method != "telnyx_rtc.invite" {
		t.Fatalf("expected one invite sent, got %+v", session.sent)
	}
}

func TestOnAnswerReceivedWithSDPGoesActive(t *testing.T) {
	session := &fakeSession{sessionID: "S1"}
	pc := &fakePeerConnection{}
	c := NewOutboundCall(session, pc, emitter.New(), "Alice", "1000", "2000", "stateX")

	var gotCallID, gotSDP string
	c.events.On(emitter.EventAnswer, func(data any) {
		p := data.(emitter.AnswerPayload)
		gotCallID, gotSDP = p.CallID, p.SDP
	})

	raw, _ := json.Marshal(map[string]string{"callID": c.ID(), "sdp": "v=0 answer"})
	if err := c.OnAnswerReceived(raw); err != nil {
		t.Fatalf("OnAnswerReceived: %v", err)
	}

	if c.State() != StateActive {
		t.Fatalf("expected ACTIVE, got %s", c.State())
	}
	if gotCallID != c.ID() || gotSDP != "v=0 answer" {
		t.Fatalf("unexpected ANSWER payload: callID=%s sdp=%s", gotCallID, gotSDP)
	}
}

func TestOnAnswerReceivedWithEarlySdpGoesConnecting(t *testing.T) {
	session := &fakeSession{sessionID: "S1"}
	pc := &fakePeerConnection{}
	c := NewOutboundCall(session, pc, emitter.New(), "Alice", "1000", "2000", "stateX")
	c.earlySdp = true

	raw, _ := json.Marshal(map[string]any{"callID": c.ID()})
	if err := c.OnAnswerReceived(raw); err != nil {
		t.Fatalf("OnAnswerReceived: %v", err)
	}
	if c.State() != StateConnecting {
		t.Fatalf("expected CONNECTING, got %s", c.State())
	}
}

func TestOnAnswerReceivedNeitherGoesDone(t *testing.T) {
	session := &fakeSession{sessionID: "S1"}
	pc := &fakePeerConnection{}
	c := NewOutboundCall(session, pc, emitter.New(), "Alice", "1000", "2000", "stateX")

	raw, _ := json.Marshal(map[string]any{"callID": c.ID()})
	if err := c.OnAnswerReceived(raw); err != nil {
		t.Fatalf("OnAnswerReceived: %v", err)
	}
	if c.State() != StateDone {
		t.Fatalf("expected DONE, got %s", c.State())
	}
	if len(session.removed) != 1 {
		t.Fatalf("expected call removed from registry")
	}
}

func TestOnByeReceivedIsIdempotentViaTeardown(t *testing.T) {
	session := &fakeSession{sessionID: "S1"}
	pc := &fakePeerConnection{}
	c := NewOutboundCall(session, pc, emitter.New(), "Alice", "1000", "2000", "stateX")

	var byeCount int
	c.events.On(emitter.EventBye, func(data any) { byeCount++ })

	c.OnByeReceived()
	c.OnByeReceived()

	if c.State() != StateDone {
		t.Fatalf("expected DONE after bye")
	}
	if !pc.closed {
		t.Fatalf("expected peer connection closed on bye")
	}
	// Two explicit OnByeReceived calls both emit BYE; the registry-level
	// dedup (UnknownCall on the second inbound frame) is session's job,
	// not Call's — see scenario 6 in spec.md §8.
	if byeCount != 2 {
		t.Fatalf("expected 2 BYE emissions from 2 direct calls, got %d", byeCount)
	}
}

func TestSendDigitForwardsToneVerbatim(t *testing.T) {
	session := &fakeSession{sessionID: "S1"}
	pc := &fakePeerConnection{}
	c := NewOutboundCall(session, pc, emitter.New(), "Alice", "1000", "2000", "stateX")

	c.SendDigit("5")
	c.SendDigit("5Z")

	if len(session.sent) != 2 {
		t.Fatalf("expected 2 info requests sent, got %d", len(session.sent))
	}
	first := session.sent[0].params.(codec.InfoParams)
	if first.Dtmf != "5" {
		t.Fatalf("expected dtmf %q, got %q", "5", first.Dtmf)
	}
	second := session.sent[1].params.(codec.InfoParams)
	if second.Dtmf != "5Z" {
		t.Fatalf("expected tone forwarded verbatim for the remote to filter, got %q", second.Dtmf)
	}
}

func TestToggleHoldSendsModifyAndUpdatesState(t *testing.T) {
	session := &fakeSession{sessionID: "S1"}
	pc := &fakePeerConnection{}
	c := NewOutboundCall(session, pc, emitter.New(), "Alice", "1000", "2000", "stateX")
	c.setState(StateActive)

	c.ToggleHold()
	if c.State() != StateHeld || !c.IsOnHold() {
		t.Fatalf("expected HELD after first toggle")
	}

	c.ToggleHold()
	if c.State() != StateActive || c.IsOnHold() {
		t.Fatalf("expected ACTIVE after second toggle")
	}

	if len(session.sent) != 2 {
		t.Fatalf("expected 2 modify requests sent, got %d", len(session.sent))
	}
}
