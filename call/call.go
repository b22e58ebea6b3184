/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package call implements the per-call state machine named in spec.md
// §4.4: it mediates between the SignalingSession and a PeerConnection,
// handling invite/answer/bye/media/ringing/info and the mid-call
// controls (mute, hold, DTMF). It is the generalization of the teacher
// SDK's calling.Call and calling.EventEmitter.
package call

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vertocall/go-verto/codec"
	"github.com/vertocall/go-verto/emitter"
	"github.com/vertocall/go-verto/vertoerrors"
)

// State is a Call's position in the state machine diagrammed in spec.md
// §4.4.
type State string

const (
	StateNew        State = "NEW"
	StateRinging    State = "RINGING"
	StateConnecting State = "CONNECTING"
	StateActive     State = "ACTIVE"
	StateHeld       State = "HELD"
	StateDone       State = "DONE"
)

// Direction distinguishes an outbound (newInvite) Call from an inbound
// (onOfferReceived) one.
type Direction int

const (
	DirectionOutbound Direction = iota
	DirectionInbound
)

// IceGatherFallback bounds how long CreateOffer/CreateAnswer wait for the
// PeerConnection's gathering-complete signal before sending with whatever
// candidates have gathered so far. This is the compliant alternative
// spec.md §9 names for the fixed 300 ms wait.
const IceGatherFallback = 300 * time.Millisecond

// Call is one active or terminating conversation.
type Call struct {
	mu sync.RWMutex

	id        string
	direction Direction
	state     State

	telnyxSessionID string
	telnyxLegID     string

	muted       bool
	onHold      bool
	loudspeaker bool
	earlySdp    bool

	callerIDName      string
	callerIDNumber    string
	destinationNumber string
	clientState       string

	session SessionHandle
	pc      PeerConnection
	events  *emitter.Emitter
}

// ID returns the call's primary key.
func (c *Call) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// State returns the call's current state.
func (c *Call) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsMuted reports the current mute flag.
func (c *Call) IsMuted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.muted
}

// IsOnHold reports the current hold flag.
func (c *Call) IsOnHold() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onHold
}

func (c *Call) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// NewOutboundCall allocates a callId and sets the initial state to
// RINGING, the same initial state as an inbound call (spec.md §4.4, §9).
// No event is emitted for this state; observers read it through State.
func NewOutboundCall(session SessionHandle, pc PeerConnection, events *emitter.Emitter, callerIDName, callerIDNumber, destinationNumber, clientState string) *Call {
	c := &Call{
		id:                uuid.New().String(),
		direction:         DirectionOutbound,
		state:             StateRinging,
		callerIDName:      callerIDName,
		callerIDNumber:    callerIDNumber,
		destinationNumber: destinationNumber,
		clientState:       clientState,
		session:           session,
		pc:                pc,
		events:            events,
	}
	return c
}

// NewInboundCall constructs a Call for an inbound offer, callID assigned
// by the remote. Initial state is RINGING, identically to the outbound
// constructor (spec.md §4.4, §9).
func NewInboundCall(session SessionHandle, pc PeerConnection, events *emitter.Emitter, callID, callerIDName, callerIDNumber string) *Call {
	return &Call{
		id:             callID,
		direction:      DirectionInbound,
		state:          StateRinging,
		callerIDName:   callerIDName,
		callerIDNumber: callerIDNumber,
		session:        session,
		pc:             pc,
		events:         events,
	}
}

// waitForLocalSDP blocks for the gathering-complete signal with a bounded
// fallback, then returns whatever local description is available. It
// replaces the fixed "after a 300 ms delay" wording in spec.md §4.4 with
// the "wait for ICE gathering complete, or a bounded gathering timeout"
// alternative spec.md §9 names as the compliant implementation.
func waitForLocalSDP(ctx context.Context, produce func(context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, IceGatherFallback)
	defer cancel()
	return produce(ctx)
}

// Dial performs the outbound newInvite flow (spec.md §4.4): allocate a
// PeerConnection offer, wait for ICE gathering, then send invite.
func (c *Call) Dial(ctx context.Context) error {
	sdp, err := waitForLocalSDP(ctx, c.pc.CreateOffer)
	if err != nil {
		return fmt.Errorf("call: create offer: %w", err)
	}

	params := codec.InviteParams{
		SessionID: c.session.SessionID(),
		SDP:       sdp,
		DialogParams: codec.DialogParams{
			CallID:            c.id,
			CallerIDName:      c.callerIDName,
			CallerIDNumber:    c.callerIDNumber,
			ClientState:       base64.StdEncoding.EncodeToString([]byte(c.clientState)),
			DestinationNumber: c.destinationNumber,
		},
	}
	c.session.Send(codec.MethodInvite, params)
	return nil
}

// OnOfferReceived handles an inbound telnyx_rtc.invite: sets the remote
// offer, produces a local answer, and emits INVITE to the host for UI
// ring (spec.md §4.4).
func (c *Call) OnOfferReceived(ctx context.Context, remoteSDP string) error {
	sdp, err := waitForLocalSDP(ctx, func(ctx context.Context) (string, error) {
		return c.pc.CreateAnswer(ctx, remoteSDP)
	})
	if err != nil {
		return fmt.Errorf("call: create answer: %w", err)
	}

	c.events.Emit(emitter.EventInvite, emitter.InvitePayload{
		CallID:       c.id,
		SDP:          sdp,
		CallerName:   c.callerIDName,
		CallerNumber: c.callerIDNumber,
		SessionID:    c.session.SessionID(),
	})
	return nil
}

// AcceptCall sends the local answer already produced by OnOfferReceived
// and transitions the call to ACTIVE (spec.md §4.4's "Answering").
func (c *Call) AcceptCall(localSDP string) {
	params := codec.InviteParams{
		SessionID: c.session.SessionID(),
		SDP:       localSDP,
		DialogParams: codec.DialogParams{
			CallID: c.id,
		},
	}
	c.session.Send("telnyx_rtc.answer", params)
	c.setState(StateActive)
}

// answerParams is the params shape of an inbound telnyx_rtc.answer.
type answerParams struct {
	CallID   string `json:"callID"`
	SDP      string `json:"sdp"`
	EarlySdp bool   `json:"earlySdp"`
}

// OnAnswerReceived implements the three branches in spec.md §4.4.
func (c *Call) OnAnswerReceived(raw json.RawMessage) error {
	var p answerParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return vertoerrors.NewMalformedFrame(err)
	}

	c.mu.RLock()
	earlySdp := c.earlySdp
	c.mu.RUnlock()

	switch {
	case p.SDP != "":
		if err := c.pc.SetRemoteAnswer(p.SDP); err != nil {
			return fmt.Errorf("call: set remote answer: %w", err)
		}
		c.setState(StateActive)
		c.events.Emit(emitter.EventAnswer, emitter.AnswerPayload{CallID: c.id, SDP: p.SDP})
	case earlySdp:
		c.setState(StateConnecting)
		c.events.Emit(emitter.EventAnswer, emitter.AnswerPayload{CallID: c.id})
	default:
		c.setState(StateDone)
		c.session.Remove(c.id)
	}
	return nil
}

// mediaParams is the params shape of an inbound telnyx_rtc.media.
type mediaParams struct {
	CallID string `json:"callID"`
	SDP    string `json:"sdp"`
}

// OnMediaReceived implements spec.md §4.4's early-media handling.
func (c *Call) OnMediaReceived(raw json.RawMessage) error {
	var p mediaParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return vertoerrors.NewMalformedFrame(err)
	}

	if p.SDP == "" {
		c.setState(StateDone)
		c.session.Remove(c.id)
		return nil
	}

	if err := c.pc.SetRemoteEarlyMedia(p.SDP); err != nil {
		return fmt.Errorf("call: set remote early media: %w", err)
	}
	c.mu.Lock()
	c.earlySdp = true
	c.mu.Unlock()
	c.events.Emit(emitter.EventMedia, emitter.AnswerPayload{CallID: c.id, SDP: p.SDP})
	return nil
}

// OnRingingReceived emits RINGING to the host. The call remains in its
// current state; ringing is informational only (spec.md §4.2).
func (c *Call) OnRingingReceived() {
	c.events.Emit(emitter.EventRinging, emitter.ByePayload{CallID: c.id})
}

// OnByeReceived handles an inbound bye: emit BYE, tear down, remove from
// the registry. Idempotent — a second bye for an already-DONE call never
// reaches here because the registry has already dropped it (spec.md §5,
// §8 scenario 6); routing such a frame yields UnknownCall upstream.
func (c *Call) OnByeReceived() {
	c.teardown()
	c.events.Emit(emitter.EventBye, emitter.ByePayload{CallID: c.id})
}

// EndCall sends a local bye with the given cause and tears down
// identically to an inbound bye (spec.md §4.4's endCall).
func (c *Call) EndCall(cause codec.CauseCode) {
	if c.State() == StateDone {
		return
	}
	params := codec.ByeParams{
		SessionID: c.session.SessionID(),
		CauseCode: cause,
		CauseName: cause.Name(),
		DialogParams: codec.DialogParams{
			CallID: c.id,
		},
	}
	c.session.Send(codec.MethodBye, params)
	c.teardown()
}

func (c *Call) teardown() {
	c.mu.Lock()
	if c.state == StateDone {
		c.mu.Unlock()
		return
	}
	c.state = StateDone
	c.mu.Unlock()

	_ = c.pc.Close()
	c.session.Remove(c.id)
}

// ToggleMute flips the muted flag and returns its new value. Platform
// mic-mute plumbing is out of scope (spec.md §1) — this only tracks the
// flag the host acts on.
func (c *Call) ToggleMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = !c.muted
	return c.muted
}

// ToggleLoudspeaker flips the loudspeaker flag and returns its new value.
func (c *Call) ToggleLoudspeaker() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loudspeaker = !c.loudspeaker
	return c.loudspeaker
}

// ToggleHold toggles hold/unhold, sends the modify request, and updates
// state (spec.md §4.4's onHoldUnholdPressed).
func (c *Call) ToggleHold() {
	c.mu.Lock()
	c.onHold = !c.onHold
	onHold := c.onHold
	c.mu.Unlock()

	action := "unhold"
	newState := StateActive
	if onHold {
		action = "hold"
		newState = StateHeld
	}

	c.session.Send(codec.MethodModify, codec.ModifyParams{
		SessionID: c.session.SessionID(),
		Action:    action,
		DialogParams: codec.DialogParams{
			CallID: c.id,
		},
	})
	c.setState(newState)
}

// SendDigit sends an info request carrying one DTMF tone, per spec.md
// §4.4. The tone is forwarded to the remote verbatim — recognizing the
// supported tones (0-9, A-D, *, #) and ignoring any other character is
// the remote gateway's job, not the client's.
func (c *Call) SendDigit(tone string) {
	c.session.Send(codec.MethodInfo, codec.InfoParams{
		SessionID: c.session.SessionID(),
		Dtmf:      tone,
		DialogParams: codec.DialogParams{
			CallID: c.id,
		},
	})
}
