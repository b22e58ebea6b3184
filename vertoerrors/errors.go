/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package vertoerrors defines the taxonomy of errors the signaling engine
// surfaces to hosts through the single ERROR event (see the emitter
// package). Every taxonomy member embeds *Error so callers can recover
// the common fields with errors.As regardless of which specific kind they
// caught.
package vertoerrors

import "errors"

// Kind identifies which taxonomy member an Error belongs to.
type Kind string

const (
	KindNetworkUnavailable         Kind = "network_unavailable"
	KindGatewayRegistrationTimeout Kind = "gateway_registration_timeout"
	KindRemote                     Kind = "remote_error"
	KindSessionNotReady            Kind = "session_not_ready"
	KindUnknownCall                Kind = "unknown_call"
	KindMalformedFrame             Kind = "malformed_frame"
)

// Error is the base error type for every error the engine emits.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Unwrap returns the wrapped error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// baseError is embedded under this name so the embedded field does not
// hide the promoted Error() method.
type baseError = Error

// NetworkUnavailableError is emitted synchronously from connect when the
// reachability probe fails, and asynchronously from the supervisor on loss.
type NetworkUnavailableError struct{ *baseError }

// Unwrap returns the underlying Error for errors.As traversal.
func (e *NetworkUnavailableError) Unwrap() error { return e.baseError }

// GatewayRegistrationTimeoutError is returned after MAX_REG_RETRIES retries
// or immediately on a NOREG gateway state.
type GatewayRegistrationTimeoutError struct{ *baseError }

// Unwrap returns the underlying Error for errors.As traversal.
func (e *GatewayRegistrationTimeoutError) Unwrap() error { return e.baseError }

// RemoteError carries an error.message from a received envelope, propagated
// verbatim from the gateway.
type RemoteError struct{ *baseError }

// Unwrap returns the underlying Error for errors.As traversal.
func (e *RemoteError) Unwrap() error { return e.baseError }

// SessionNotReadyError is returned when a Call is requested before login
// has succeeded.
type SessionNotReadyError struct{ *baseError }

// Unwrap returns the underlying Error for errors.As traversal.
func (e *SessionNotReadyError) Unwrap() error { return e.baseError }

// UnknownCallError is returned when an inbound call-scoped frame names a
// callID absent from the registry. The frame is dropped, not fatal.
type UnknownCallError struct{ *baseError }

// Unwrap returns the underlying Error for errors.As traversal.
func (e *UnknownCallError) Unwrap() error { return e.baseError }

// MalformedFrameError is returned when an inbound text frame fails to parse
// as a wire envelope. The frame is dropped, not fatal.
type MalformedFrameError struct{ *baseError }

// Unwrap returns the underlying Error for errors.As traversal.
func (e *MalformedFrameError) Unwrap() error { return e.baseError }

// NewNetworkUnavailable builds a NetworkUnavailableError with the fixed
// message the scenarios in spec §8 expect.
func NewNetworkUnavailable() error {
	return &NetworkUnavailableError{&Error{Kind: KindNetworkUnavailable, Message: "No Network Connection"}}
}

// NewGatewayRegistrationTimeout builds a GatewayRegistrationTimeoutError
// with the fixed message the scenarios in spec §8 expect.
func NewGatewayRegistrationTimeout() error {
	return &GatewayRegistrationTimeoutError{&Error{Kind: KindGatewayRegistrationTimeout, Message: "Gateway registration has timed out"}}
}

// NewRemoteError wraps a gateway-supplied error message verbatim.
func NewRemoteError(message string) error {
	return &RemoteError{&Error{Kind: KindRemote, Message: message}}
}

// NewSessionNotReady builds a SessionNotReadyError.
func NewSessionNotReady() error {
	return &SessionNotReadyError{&Error{Kind: KindSessionNotReady, Message: "session is not logged in"}}
}

// NewUnknownCall builds an UnknownCallError for the given callID.
func NewUnknownCall(callID string) error {
	return &UnknownCallError{&Error{Kind: KindUnknownCall, Message: "unknown call: " + callID}}
}

// NewMalformedFrame wraps a JSON decode error for a dropped inbound frame.
func NewMalformedFrame(err error) error {
	return &MalformedFrameError{&Error{Kind: KindMalformedFrame, Message: "malformed frame", Err: err}}
}

// IsNetworkUnavailable reports whether err is a NetworkUnavailableError.
func IsNetworkUnavailable(err error) bool {
	var e *NetworkUnavailableError
	return errors.As(err, &e)
}

// IsGatewayRegistrationTimeout reports whether err is a
// GatewayRegistrationTimeoutError.
func IsGatewayRegistrationTimeout(err error) bool {
	var e *GatewayRegistrationTimeoutError
	return errors.As(err, &e)
}

// IsRemoteError reports whether err is a RemoteError.
func IsRemoteError(err error) bool {
	var e *RemoteError
	return errors.As(err, &e)
}

// IsSessionNotReady reports whether err is a SessionNotReadyError.
func IsSessionNotReady(err error) bool {
	var e *SessionNotReadyError
	return errors.As(err, &e)
}

// IsUnknownCall reports whether err is an UnknownCallError.
func IsUnknownCall(err error) bool {
	var e *UnknownCallError
	return errors.As(err, &e)
}

// IsMalformedFrame reports whether err is a MalformedFrameError.
func IsMalformedFrame(err error) bool {
	var e *MalformedFrameError
	return errors.As(err, &e)
}
