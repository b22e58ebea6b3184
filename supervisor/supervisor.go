/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package supervisor implements the ConnectionSupervisor named in
// spec.md §4.5: it watches host network reachability, and on a
// network-unavailable/network-available edge drives exactly one
// reconnect pass — install a fresh Transport, reconnect it, and only
// after the connection is confirmed open replay the last login. It is
// the generalization of mercury.Client's reconnect()/getReconnectURL()
// pair, adapted from Mercury's device-provider re-registration to
// replaying a saved SignalingSession credential, and from
// callingclient.go's DiscoverMobiusServers fallback-list idea to a
// single fixed server (spec.md names one TxServerConfiguration, not a
// list to fail over across).
package supervisor

import (
	"sync"

	"github.com/vertocall/go-verto/emitter"
	"github.com/vertocall/go-verto/session"
	"github.com/vertocall/go-verto/vertoerrors"
)

// TransportFactory mints a fresh Transport for a reconnect attempt.
type TransportFactory func() session.Transport

// Logger is the subset of *log.Logger a Session needs for diagnostics.
type Logger interface {
	Printf(format string, v ...any)
}

// Supervisor watches network reachability for one Session and drives
// its reconnect flow. It never reconnects on its own timer — it only
// reacts to the two edges a host reports through OnNetworkUnavailable
// and OnNetworkAvailable.
type Supervisor struct {
	mu sync.Mutex

	session      *session.Session
	serverConfig session.ServerConfig
	trFactory    TransportFactory
	events       *emitter.Emitter
	logger       Logger

	registered   bool
	reconnecting bool
}

// New constructs a Supervisor bound to sess. trFactory mints a new
// Transport for each reconnect pass; serverConfig is the host/port the
// fresh Transport dials (spec.md §4.5 point 3).
func New(sess *session.Session, serverConfig session.ServerConfig, trFactory TransportFactory, events *emitter.Emitter, logger Logger) *Supervisor {
	return &Supervisor{
		session:      sess,
		serverConfig: serverConfig,
		trFactory:    trFactory,
		events:       events,
		logger:       logger,
	}
}

// RegisterNetworkObserver arms the Supervisor's reachability callbacks.
// Idempotent — a host that calls it twice (e.g. on every app-resume)
// does not get a doubled observer, mirroring spec.md §4.5's explicit
// requirement that observer registration itself be idempotent.
func (sv *Supervisor) RegisterNetworkObserver() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.registered = true
}

// Registered reports whether RegisterNetworkObserver has run.
func (sv *Supervisor) Registered() bool {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.registered
}

// OnNetworkUnavailable is the host's signal that connectivity was
// lost. It marks the Supervisor as needing a reconnect and surfaces
// the same NetworkUnavailableError a direct Connect() would have
// produced, so hosts see one error shape regardless of cause.
func (sv *Supervisor) OnNetworkUnavailable() {
	sv.mu.Lock()
	sv.reconnecting = true
	sv.mu.Unlock()

	err := vertoerrors.NewNetworkUnavailable()
	sv.events.Emit(emitter.EventError, emitter.ErrorPayload{Message: err.Error(), Err: err})
}

// OnNetworkAvailable is the host's signal that connectivity returned.
// If a reconnect is pending and the Session has credentials to
// replay, it performs exactly one reconnect pass: allocate a fresh
// Transport, destroy the old one, install the new one, reconnect, and
// only once the connection is confirmed open (OnConnectionEstablished
// has fired) replay the saved login. A bare connectivity blip with no
// pending reconnect, or a Session with nothing saved to replay, is a
// no-op.
func (sv *Supervisor) OnNetworkAvailable() {
	sv.mu.Lock()
	if !sv.reconnecting {
		sv.mu.Unlock()
		return
	}
	sv.reconnecting = false
	sv.mu.Unlock()

	if !sv.session.HasSavedCredentials() {
		return
	}

	tr := sv.trFactory()
	sv.session.SwapTransport(tr)

	if err := sv.session.Connect(sv.serverConfig); err != nil {
		return
	}

	// The reconnected Transport's OnConnectionEstablished has already
	// run synchronously inside Connect by the time it returns (it is
	// called after the dial succeeds and before Connect returns — see
	// transport.Connect),
	// so replaying login here happens strictly after the connection is
	// confirmed open, never before (spec.md §9's explicit correction).
	sv.session.ReplayLogin(sv.logger)
}

// Reconnecting reports whether a reconnect pass is pending: it is set by
// OnNetworkUnavailable and cleared when OnNetworkAvailable starts a pass,
// so it is already false while that pass runs.
func (sv *Supervisor) Reconnecting() bool {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.reconnecting
}
