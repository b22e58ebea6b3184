/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package session implements the SignalingSession named in spec.md §4.3:
// it owns a Transport, performs login, polls gateway registration with a
// bounded retry/timeout loop, and dispatches parsed messages to the
// SignalingSession's own handlers or down to the matching Call. It is the
// generalization of the teacher SDK's calling.Line registration state
// machine, adapted from polling a keepalive endpoint over HTTP to polling
// a gateway-state notification over the same WebSocket as login.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/vertocall/go-verto/call"
	"github.com/vertocall/go-verto/codec"
	"github.com/vertocall/go-verto/emitter"
	"github.com/vertocall/go-verto/transport"
	"github.com/vertocall/go-verto/vertoerrors"
)

// ServerConfig is TxServerConfiguration from spec.md §6.
type ServerConfig struct {
	Host string
	Port int
	Turn string
	Stun string
}

// DefaultServerConfig returns the production defaults named in spec.md §6.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host: "rtc.telnyx.com",
		Port: 14938,
		Turn: "turn:turn.telnyx.com:3478?transport=tcp",
		Stun: "stun:stun.telnyx.com:3843",
	}
}

// LogLevel is the log verbosity named in spec.md §6.
type LogLevel string

const (
	LogLevelAll     LogLevel = "ALL"
	LogLevelNone    LogLevel = "NONE"
	LogLevelVerbo   LogLevel = "VERBO"
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// CredentialConfig is the credentials variant of spec.md §3/§6.
type CredentialConfig struct {
	SipUser           string
	SipPassword       string
	SipCallerIDName   string
	SipCallerIDNumber string
	FcmToken          string
	Ringtone          string
	Ringback          string
	LogLevel          LogLevel
}

// TokenConfig is the token variant of spec.md §3/§6.
type TokenConfig struct {
	SipToken          string
	SipCallerIDName   string
	SipCallerIDNumber string
	FcmToken          string
	Ringtone          string
	Ringback          string
	LogLevel          LogLevel
}

// Config holds SignalingSession's gateway-registration poll parameters
// (spec.md §3's retryCounter invariant, §6's defaults).
type Config struct {
	GatewayPollInterval time.Duration
	MaxRegRetries       int
}

// DefaultConfig returns the 3000ms/2-retries defaults named in spec.md §6.
func DefaultConfig() Config {
	return Config{GatewayPollInterval: 3000 * time.Millisecond, MaxRegRetries: 2}
}

// Transport is the subset of *transport.Transport's API the session
// depends on, so a ConnectionSupervisor-driven reconnect (or a test) can
// swap in a different instance or a fake.
type Transport interface {
	Connect(listener transport.Listener, host string, port int) error
	Send(body any)
	Destroy(reason string)
	IsConnected() bool
}

// NetworkProbe reports whether the host currently has network
// connectivity. spec.md §4.3's connect() consults this before dialing.
type NetworkProbe interface {
	Available() bool
}

// AlwaysAvailable is a NetworkProbe that always reports connectivity —
// the default for hosts that don't wire a platform reachability check.
type AlwaysAvailable struct{}

// Available always returns true.
func (AlwaysAvailable) Available() bool { return true }

// PeerConnectionFactory builds a fresh PeerConnection for a new Call.
type PeerConnectionFactory func() call.PeerConnection

// Session is the SignalingSession named in spec.md §4.3.
type Session struct {
	mu sync.Mutex

	cfg          Config
	serverConfig ServerConfig
	tr           Transport
	network      NetworkProbe
	pcFactory    PeerConnectionFactory

	events   *emitter.Emitter
	registry *call.Registry

	sessionID     string
	loggedIn      bool
	ongoingCall   bool
	gatewayState  codec.GatewayState
	waitingForReg bool
	retryCounter  int
	gatewayTimer  *time.Timer

	savedCredential *CredentialConfig
	savedToken      *TokenConfig
}

// New constructs a Session bound to tr, reporting events on events, using
// network to gate connect(), and pcFactory to mint PeerConnections for new
// Calls.
func New(tr Transport, cfg Config, events *emitter.Emitter, network NetworkProbe, pcFactory PeerConnectionFactory) *Session {
	if network == nil {
		network = AlwaysAvailable{}
	}
	s := &Session{
		cfg:       cfg,
		tr:        tr,
		network:   network,
		pcFactory: pcFactory,
		events:    events,
	}
	s.registry = call.NewRegistry(func(ongoing bool) {
		s.mu.Lock()
		s.ongoingCall = ongoing
		s.mu.Unlock()
	})
	return s
}

// SwapTransport destroys the session's current Transport and installs
// tr in its place. Used by ConnectionSupervisor to install a fresh
// Transport after a reconnect (spec.md §4.5 point 3): the outgoing
// Transport's pending reads, sends and ping-loop goroutine are
// cancelled via Destroy before the new one takes over, per spec.md's
// "Reconnect explicitly cancels the old Transport before using the new
// one". Live Calls are undisturbed — they resolve the current Transport
// indirectly through Session, which satisfies call.SessionHandle.
func (s *Session) SwapTransport(tr Transport) {
	s.mu.Lock()
	old := s.tr
	s.tr = tr
	s.mu.Unlock()

	if old != nil {
		old.Destroy("reconnect")
	}
}

// --- call.SessionHandle ---

// SessionID returns the current sessionId, or "" before login succeeds.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Send builds a fresh-id request envelope and hands it to the current
// Transport. If the Transport is not connected the send is silently
// discarded (spec.md §4.1/§4.3) — the caller does not need to check
// IsConnected first.
func (s *Session) Send(method string, params any) {
	s.mu.Lock()
	tr := s.tr
	s.mu.Unlock()
	if tr == nil {
		return
	}
	tr.Send(codec.NewRequest(uuid.New().String(), method, params))
}

// Remove drops callID from the registry (spec.md §3's CallRegistry
// invariant is maintained by Registry.Remove's onChange hook).
func (s *Session) Remove(callID string) {
	s.registry.Remove(callID)
}

// --- Lifecycle ---

// IsLoggedIn reports whether login has completed (gateway state REGED).
func (s *Session) IsLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// OngoingCall reports whether the registry is non-empty.
func (s *Session) OngoingCall() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ongoingCall
}

// Registry exposes the CallRegistry for hosts that need to enumerate or
// end all calls directly.
func (s *Session) Registry() *call.Registry {
	return s.registry
}

// Connect opens the Transport to serverConfig's host/port, per spec.md
// §4.3: if the network probe reports unavailable, it emits
// NetworkUnavailable synchronously and never dials.
func (s *Session) Connect(serverConfig ServerConfig) error {
	if !s.network.Available() {
		err := vertoerrors.NewNetworkUnavailable()
		s.events.Emit(emitter.EventError, emitter.ErrorPayload{Message: err.Error(), Err: err})
		return err
	}

	s.mu.Lock()
	s.serverConfig = serverConfig
	s.mu.Unlock()

	return s.tr.Connect(s, serverConfig.Host, serverConfig.Port)
}

// Disconnect cancels the gateway timer, ends every live call (spec.md §5:
// "every Call receives an implicit endCall"), clears the login state and
// destroys the Transport. It does not unregister any network observer;
// the ConnectionSupervisor's registration is left as it is.
func (s *Session) Disconnect() {
	s.cancelGatewayTimer()
	for _, c := range s.registry.Snapshot() {
		c.EndCall(codec.CauseNormalClearing)
	}
	s.mu.Lock()
	tr := s.tr
	s.loggedIn = false
	s.sessionID = ""
	s.mu.Unlock()
	if tr != nil {
		tr.Destroy("disconnect")
	}
}

// CredentialLogin remembers cfg for reconnect replay and sends a login
// request carrying {login, passwd} plus the userVariables block named in
// spec.md §4.3.
func (s *Session) CredentialLogin(cfg CredentialConfig) {
	s.mu.Lock()
	s.savedCredential = &cfg
	s.savedToken = nil
	s.mu.Unlock()

	s.Send(codec.MethodLogin, codec.LoginParams{
		Login:         cfg.SipUser,
		Passwd:        cfg.SipPassword,
		UserVariables: userVariables(cfg.FcmToken),
	})
}

// TokenLogin remembers cfg for reconnect replay and sends a login request
// carrying {login_token}. The opaque sipToken is additionally parsed
// (without signature verification — the remote gateway is the verifier)
// purely to log its subject/expiry for diagnostics.
func (s *Session) TokenLogin(cfg TokenConfig, logger Logger) {
	s.mu.Lock()
	s.savedToken = &cfg
	s.savedCredential = nil
	s.mu.Unlock()

	if logger != nil {
		if sub, exp, err := parseTokenClaims(cfg.SipToken); err == nil {
			logger.Printf("session: token login sub=%s exp=%s", sub, exp)
		}
	}

	s.Send(codec.MethodLogin, codec.LoginParams{
		LoginToken:    cfg.SipToken,
		UserVariables: userVariables(cfg.FcmToken),
	})
}

// HasSavedCredentials reports whether a prior CredentialLogin/TokenLogin
// has something to replay — the "credentials are saved" condition
// ConnectionSupervisor checks before reconnecting (spec.md §4.5).
func (s *Session) HasSavedCredentials() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savedCredential != nil || s.savedToken != nil
}

// ReplayLogin re-sends whichever login variant was last used. Exported
// for ConnectionSupervisor's reconnect flow (spec.md §4.5 point 4).
func (s *Session) ReplayLogin(logger Logger) {
	s.replayLogin(logger)
}

// replayLogin re-sends whichever login variant was last used, for the
// ConnectionSupervisor's reconnect flow (spec.md §4.5 point 4). It does
// nothing if no login has ever been attempted.
func (s *Session) replayLogin(logger Logger) {
	s.mu.Lock()
	cred := s.savedCredential
	tok := s.savedToken
	s.mu.Unlock()

	switch {
	case cred != nil:
		s.CredentialLogin(*cred)
	case tok != nil:
		s.TokenLogin(*tok, logger)
	}
}

func userVariables(fcmToken string) map[string]string {
	return map[string]string{
		"push_device_token":          fcmToken,
		"push_notification_provider": "android",
	}
}

// Logger is the minimal logging interface session accepts for diagnostics,
// matching the Printf shape used across this module's ambient stack.
type Logger interface {
	Printf(format string, v ...any)
}

func parseTokenClaims(token string) (subject string, expiry string, err error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{
		jose.HS256, jose.HS384, jose.HS512,
		jose.RS256, jose.RS384, jose.RS512,
		jose.ES256, jose.ES384, jose.ES512,
	})
	if err != nil {
		return "", "", fmt.Errorf("session: parse token: %w", err)
	}
	var claims jwt.Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return "", "", fmt.Errorf("session: read token claims: %w", err)
	}
	expiry = ""
	if claims.Expiry != nil {
		expiry = claims.Expiry.Time().String()
	}
	return claims.Subject, expiry, nil
}

// --- transport.Listener ---

// OnConnectionEstablished resets the gateway-registration retry state and
// emits CONNECTION_ESTABLISHED (spec.md §2's control flow).
func (s *Session) OnConnectionEstablished() {
	s.mu.Lock()
	s.retryCounter = 0
	s.gatewayState = codec.GatewayStateIdle
	s.waitingForReg = true
	s.mu.Unlock()

	s.events.Emit(emitter.EventConnectionEstablished, nil)
}

// OnFrame decodes one inbound text frame and routes it. A decode failure
// is the MalformedFrame condition (spec.md §7): logged via an ERROR event
// and dropped, never a disconnect.
func (s *Session) OnFrame(raw []byte) {
	env, err := codec.Decode(raw)
	if err != nil {
		wrapped := vertoerrors.NewMalformedFrame(err)
		s.events.Emit(emitter.EventError, emitter.ErrorPayload{Message: wrapped.Error(), Err: wrapped})
		return
	}
	s.route(env)
}

// OnError handles a terminal Transport failure: the session considers
// itself disconnected and surfaces the error to the host (spec.md §4.1's
// failure semantics — the Transport itself never reconnects).
func (s *Session) OnError(err error) {
	s.mu.Lock()
	s.loggedIn = false
	s.mu.Unlock()
	s.events.Emit(emitter.EventError, emitter.ErrorPayload{Message: err.Error(), Err: err})
}

// route classifies env and dispatches it, per the table in spec.md §4.2.
func (s *Session) route(env codec.Envelope) {
	if env.Method == codec.MethodInvite && env.Error == nil {
		s.onIncomingInvite(env)
		return
	}

	switch codec.Classify(env) {
	case codec.ScopeSession:
		s.routeSession(env)
	case codec.ScopeCall:
		s.routeCall(env)
	default:
		// Unrecognized method: nothing in spec.md §4.2 names a handler,
		// so it is dropped silently.
	}
}

func (s *Session) routeSession(env codec.Envelope) {
	if env.Error != nil {
		err := vertoerrors.NewRemoteError(env.Error.Message)
		s.events.Emit(emitter.EventError, emitter.ErrorPayload{Message: env.Error.Message, Err: err})
		return
	}

	switch env.Method {
	case codec.MethodLogin:
		s.onSessionIDReceived(env.Result)
	case codec.MethodGatewayState:
		s.onGatewayStateReceived(env.Result)
	case codec.MethodClientReady:
		s.onClientReady()
	}
}

func (s *Session) routeCall(env codec.Envelope) {
	callID, err := codec.ExtractCallID(env.Params)
	if err != nil || callID == "" {
		wrapped := vertoerrors.NewUnknownCall("")
		s.events.Emit(emitter.EventError, emitter.ErrorPayload{Message: wrapped.Error(), Err: wrapped})
		return
	}

	c, ok := s.registry.Get(callID)
	if !ok {
		wrapped := vertoerrors.NewUnknownCall(callID)
		s.events.Emit(emitter.EventError, emitter.ErrorPayload{Message: wrapped.Error(), Err: wrapped})
		return
	}

	switch env.Method {
	case codec.MethodAnswer:
		_ = c.OnAnswerReceived(env.Params)
	case codec.MethodMedia:
		_ = c.OnMediaReceived(env.Params)
	case codec.MethodRinging:
		c.OnRingingReceived()
	case codec.MethodBye:
		c.OnByeReceived()
	}
}

type loginResult struct {
	SessID string `json:"sessid"`
}

func (s *Session) onSessionIDReceived(result json.RawMessage) {
	var r loginResult
	if err := json.Unmarshal(result, &r); err != nil || r.SessID == "" {
		return
	}
	s.mu.Lock()
	s.sessionID = r.SessID
	s.mu.Unlock()
}

type gatewayStateResult struct {
	SessID string `json:"sessid"`
	Params struct {
		State string `json:"state"`
	} `json:"params"`
}

// onGatewayStateReceived implements spec.md §4.3's transitions.
func (s *Session) onGatewayStateReceived(result json.RawMessage) {
	var r gatewayStateResult
	if err := json.Unmarshal(result, &r); err != nil {
		return
	}

	state := codec.GatewayState(r.Params.State)
	s.mu.Lock()
	s.gatewayState = state
	s.mu.Unlock()

	switch state {
	case codec.GatewayStateReged:
		s.cancelGatewayTimer()
		s.mu.Lock()
		s.waitingForReg = false
		s.mu.Unlock()
		s.onLoginSuccessful(r.SessID)
	case codec.GatewayStateNoReg:
		s.cancelGatewayTimer()
		err := vertoerrors.NewGatewayRegistrationTimeout()
		s.events.Emit(emitter.EventError, emitter.ErrorPayload{Message: err.Error(), Err: err})
	default:
		// Leave the polling loop running; the timer armed by onClientReady
		// (or the previous retry) is still in flight.
	}
}

// onLoginSuccessful sets sessionId/loggedIn and emits LOGIN then
// CLIENT_READY, in that order (spec.md §4.3 and §5's ordering guarantee).
func (s *Session) onLoginSuccessful(sessID string) {
	s.mu.Lock()
	s.sessionID = sessID
	s.loggedIn = true
	s.mu.Unlock()

	s.events.Emit(emitter.EventLogin, emitter.LoginPayload{SessionID: sessID})
	s.events.Emit(emitter.EventClientReady, nil)
}

// onClientReady implements spec.md §4.3's gateway-registration poll entry
// point. Each call sends one gatewayState poll and re-arms the single
// gateway timer; when that timer fires, onGatewayTimeout increments
// retryCounter and calls this method again until MaxRegRetries is reached,
// then emits the registration-timeout error.
func (s *Session) onClientReady() {
	s.mu.Lock()
	waiting := s.waitingForReg
	reged := s.gatewayState == codec.GatewayStateReged
	s.mu.Unlock()

	if !waiting || reged {
		return
	}

	s.Send(codec.MethodGatewayState, codec.StateParams{State: nil})
	s.armGatewayTimer()
}

func (s *Session) armGatewayTimer() {
	s.mu.Lock()
	if s.gatewayTimer != nil {
		s.gatewayTimer.Stop()
	}
	interval := s.cfg.GatewayPollInterval
	s.gatewayTimer = time.AfterFunc(interval, s.onGatewayTimeout)
	s.mu.Unlock()
}

func (s *Session) cancelGatewayTimer() {
	s.mu.Lock()
	if s.gatewayTimer != nil {
		s.gatewayTimer.Stop()
		s.gatewayTimer = nil
	}
	s.mu.Unlock()
}

func (s *Session) onGatewayTimeout() {
	s.mu.Lock()
	if s.retryCounter < s.cfg.MaxRegRetries {
		s.retryCounter++
		s.mu.Unlock()
		s.onClientReady()
		return
	}
	s.mu.Unlock()

	s.cancelGatewayTimer()
	err := vertoerrors.NewGatewayRegistrationTimeout()
	s.events.Emit(emitter.EventError, emitter.ErrorPayload{Message: err.Error(), Err: err})
}

// inboundInviteParams is the payload shape of an inbound telnyx_rtc.invite
// (spec.md §4.4's "Extract callID, remote SDP, caller id, telnyx_session_id,
// telnyx_leg_id").
type inboundInviteParams struct {
	CallID          string `json:"callID"`
	SDP             string `json:"sdp"`
	CallerIDName    string `json:"caller_id_name"`
	CallerIDNumber  string `json:"caller_id_number"`
	TelnyxSessionID string `json:"telnyx_session_id"`
	TelnyxLegID     string `json:"telnyx_leg_id"`
}

func (s *Session) onIncomingInvite(env codec.Envelope) {
	var p inboundInviteParams
	if err := json.Unmarshal(env.Params, &p); err != nil {
		wrapped := vertoerrors.NewMalformedFrame(err)
		s.events.Emit(emitter.EventError, emitter.ErrorPayload{Message: wrapped.Error(), Err: wrapped})
		return
	}

	pc := s.pcFactory()
	c := call.NewInboundCall(s, pc, s.events, p.CallID, p.CallerIDName, p.CallerIDNumber)
	s.registry.Add(c)

	ctx, cancel := context.WithTimeout(context.Background(), call.IceGatherFallback+time.Second)
	defer cancel()
	_ = c.OnOfferReceived(ctx, p.SDP)
}

// NewCall builds and dials an outbound Call. It fails with
// SessionNotReady if login has not yet succeeded, per spec.md §3's
// invariant that a Call may exist only after sessionId is set.
func (s *Session) NewCall(ctx context.Context, callerIDName, callerIDNumber, destinationNumber, clientState string) (*call.Call, error) {
	if !s.IsLoggedIn() {
		return nil, vertoerrors.NewSessionNotReady()
	}

	pc := s.pcFactory()
	c := call.NewOutboundCall(s, pc, s.events, callerIDName, callerIDNumber, destinationNumber, clientState)
	s.registry.Add(c)

	if err := c.Dial(ctx); err != nil {
		s.registry.Remove(c.ID())
		return nil, err
	}
	return c, nil
}
