/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package codec encodes and decodes the Verto JSON-RPC dialect exchanged
// with the remote telephony gateway: framing the outgoing request bodies
// named in spec.md §4.3/§4.4, and classifying inbound envelopes by method
// the way the teacher's HandleMercuryEvent routes by eventType prefix.
package codec

import (
	"encoding/json"
	"fmt"
)

// Method names used on the wire, as listed in spec.md §4.2.
const (
	MethodLogin        = "login"
	MethodGatewayState = "telnyx_rtc.gatewayState"
	MethodClientReady  = "telnyx_rtc.clientReady"
	MethodInvite       = "telnyx_rtc.invite"
	MethodAnswer       = "telnyx_rtc.answer"
	MethodMedia        = "telnyx_rtc.media"
	MethodRinging      = "telnyx_rtc.ringing"
	MethodBye          = "telnyx_rtc.bye"
	MethodModify       = "telnyx_rtc.modify"
	MethodInfo         = "telnyx_rtc.info"
)

// GatewayState is the remote's registration state, carried in
// telnyx_rtc.gatewayState notifications (spec.md §3).
type GatewayState string

const (
	GatewayStateIdle       GatewayState = "IDLE"
	GatewayStateTrying     GatewayState = "TRYING"
	GatewayStateRegister   GatewayState = "REGISTER"
	GatewayStateReged      GatewayState = "REGED"
	GatewayStateUnreged    GatewayState = "UNREGED"
	GatewayStateUnregister GatewayState = "UNREGISTER"
	GatewayStateAttached   GatewayState = "ATTACHED"
	GatewayStateFailed     GatewayState = "FAILED"
	GatewayStateFailWait   GatewayState = "FAIL_WAIT"
	GatewayStateExpired    GatewayState = "EXPIRED"
	GatewayStateNoReg      GatewayState = "NOREG"
	GatewayStateNoAuthed   GatewayState = "NOAUTHED"
)

// CauseCode is a SIP-style disconnect cause, named by spec.md §6.
type CauseCode int

const (
	CauseUnallocatedNumber CauseCode = 1
	CauseNormalClearing    CauseCode = 16
	CauseUserBusy          CauseCode = 17
	CauseCallRejected      CauseCode = 21
)

// causeNames maps a CauseCode to its wire cause_name string.
var causeNames = map[CauseCode]string{
	CauseUnallocatedNumber: "UNALLOCATED_NUMBER",
	CauseNormalClearing:    "NORMAL_CLEARING",
	CauseUserBusy:          "USER_BUSY",
	CauseCallRejected:      "CALL_REJECTED",
}

// Name returns the wire cause_name string for c, or "NORMAL_CLEARING" if c
// is not one of the named codes.
func (c CauseCode) Name() string {
	if name, ok := causeNames[c]; ok {
		return name
	}
	return "NORMAL_CLEARING"
}

// DialogParams is the literal per-call payload shape carried by invite,
// bye, modify and info requests (spec.md §4.4).
type DialogParams struct {
	CallID             string `json:"callID"`
	CallerIDName       string `json:"callerIdName,omitempty"`
	CallerIDNumber     string `json:"callerIdNumber,omitempty"`
	RemoteCallerIDName string `json:"remote_caller_id_name,omitempty"`
	ClientState        string `json:"clientState,omitempty"`
	DestinationNumber  string `json:"destination_number,omitempty"`
}

// LoginParams carries the credential or token variant for a login request
// (spec.md §3's credentials variant, §4.3's login payload shape).
type LoginParams struct {
	Login         string            `json:"login,omitempty"`
	Passwd        string            `json:"passwd,omitempty"`
	LoginToken    string            `json:"login_token,omitempty"`
	LoginParams   []any             `json:"loginParams,omitempty"`
	UserVariables map[string]string `json:"userVariables,omitempty"`
	SessID        string            `json:"sessid,omitempty"`
}

// InviteParams is the body of an outbound invite request.
type InviteParams struct {
	SessionID    string       `json:"sessionId"`
	SDP          string       `json:"sdp"`
	DialogParams DialogParams `json:"dialogParams"`
}

// ByeParams is the body of an outbound (or inbound, as to-host) bye
// request.
type ByeParams struct {
	SessionID    string       `json:"sessionId"`
	CauseCode    CauseCode    `json:"causeCode"`
	CauseName    string       `json:"causeName"`
	DialogParams DialogParams `json:"dialogParams"`
}

// ModifyParams is the body of an outbound hold/unhold request.
type ModifyParams struct {
	SessionID    string       `json:"sessionId"`
	Action       string       `json:"action"`
	DialogParams DialogParams `json:"dialogParams"`
}

// InfoParams is the body of an outbound DTMF request.
type InfoParams struct {
	SessionID    string       `json:"sessionId"`
	Dtmf         string       `json:"dtmf"`
	DialogParams DialogParams `json:"dialogParams"`
}

// StateParams polls telnyx_rtc.gatewayState; State is nil on the poll
// itself and populated on the response.
type StateParams struct {
	State *string `json:"state"`
}

// RemoteEnvelopeError is the top-level error object an inbound envelope
// may carry (spec.md §3's wire envelope).
type RemoteEnvelopeError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// Envelope is the inbound wire shape: { jsonrpc, id?, method, params?,
// result?, error? } (spec.md §3).
type Envelope struct {
	JSONRPC string               `json:"jsonrpc,omitempty"`
	ID      string               `json:"id,omitempty"`
	Method  string               `json:"method,omitempty"`
	Params  json.RawMessage      `json:"params,omitempty"`
	Result  json.RawMessage      `json:"result,omitempty"`
	Error   *RemoteEnvelopeError `json:"error,omitempty"`
}

// OutboundEnvelope is the literal sent shape: { id, method, params }
// (spec.md §3).
type OutboundEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// NewRequest builds an outbound envelope carrying a fresh id, ready to be
// handed to Transport.Send.
func NewRequest(id, method string, params any) OutboundEnvelope {
	return OutboundEnvelope{JSONRPC: "2.0", ID: id, Method: method, Params: params}
}

// Encode marshals an outbound envelope to JSON bytes for a text frame.
func Encode(env OutboundEnvelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode unmarshals a raw inbound text frame into an Envelope. A non-nil
// error here is the MalformedFrame condition named in spec.md §7: the
// caller logs and drops, it does not disconnect.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("codec: decode envelope: %w", err)
	}
	return env, nil
}

// Scope classifies an inbound envelope as session-scoped or call-scoped,
// per the table in spec.md §4.2.
type Scope int

const (
	// ScopeSession routes to the SignalingSession's own handlers.
	ScopeSession Scope = iota
	// ScopeCall routes to the Call named by params.callID.
	ScopeCall
	// ScopeUnknown carries no method the engine recognizes.
	ScopeUnknown
)

var callScopedMethods = map[string]bool{
	MethodInvite:  true,
	MethodAnswer:  true,
	MethodMedia:   true,
	MethodRinging: true,
	MethodBye:     true,
}

var sessionScopedMethods = map[string]bool{
	MethodLogin:        true,
	MethodGatewayState: true,
	MethodClientReady:  true,
}

// Classify returns the routing scope for an inbound envelope. A
// top-level error object always takes precedence (spec.md §4.2's last
// row: "any with top-level error" routes to onErrorReceived regardless
// of method).
func Classify(env Envelope) Scope {
	if env.Error != nil {
		return ScopeSession
	}
	if callScopedMethods[env.Method] {
		return ScopeCall
	}
	if sessionScopedMethods[env.Method] {
		return ScopeSession
	}
	return ScopeUnknown
}

// CallIDParams extracts the call-scoped callID field shared by invite,
// answer, media, ringing and bye params.
type CallIDParams struct {
	CallID string `json:"callID"`
}

// ExtractCallID reads params.callID from a call-scoped envelope. An error
// here means the frame is structurally call-scoped but missing the field
// the registry needs to route it — treated the same as UnknownCall by the
// caller.
func ExtractCallID(params json.RawMessage) (string, error) {
	var p CallIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("codec: extract callID: %w", err)
	}
	return p.CallID, nil
}
