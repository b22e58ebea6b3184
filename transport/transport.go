/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package transport implements the WebSocket framing layer named in
// spec.md §4.1: it owns the single TLS WebSocket connection to the
// telephony gateway, serializes outgoing JSON bodies, and hands every
// inbound text frame to a listener. It is the direct structural
// descendant of the teacher SDK's mercury.Client read/write pump.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config holds Transport's dial and liveness parameters.
type Config struct {
	// HandshakeTimeout bounds the initial WebSocket upgrade.
	HandshakeTimeout time.Duration
	// PingInterval is how often the read pump sends a liveness ping.
	PingInterval time.Duration
	// PongTimeout is the read deadline armed on connect and re-armed on
	// each pong.
	PongTimeout time.Duration
}

// DefaultConfig mirrors the teacher SDK's mercury.DefaultConfig liveness
// numbers, scaled for a telephony signaling link rather than a messaging
// bus.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     20 * time.Second,
		PongTimeout:      25 * time.Second,
	}
}

// Listener receives Transport lifecycle and frame notifications.
// OnConnectionEstablished is called on the goroutine that called Connect,
// OnFrame on the Transport's read-pump goroutine, and OnError on the read
// pump, the ping loop, or the goroutine calling Send on a write failure.
type Listener interface {
	// OnConnectionEstablished fires once the WebSocket handshake succeeds.
	OnConnectionEstablished()
	// OnFrame fires once per inbound text frame, verbatim.
	OnFrame(raw []byte)
	// OnError fires once per terminal transport error (spec.md §4.1's
	// "notify listener onErrorReceived(synthetic error) once").
	OnError(err error)
}

// Transport owns one WebSocket connection. destroy is terminal: a fresh
// Transport must be constructed to reconnect (spec.md §4.1).
type Transport struct {
	config Config
	dialer *websocket.Dialer

	mu          sync.Mutex
	conn        *websocket.Conn
	listener    Listener
	connected   bool
	destroyed   bool
	errNotified bool
	done        chan struct{}
}

// New constructs a Transport that has not yet dialed.
func New(config Config) *Transport {
	return &Transport{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
	}
}

// Connect opens a TLS WebSocket to host:port and starts the read pump.
// listener.OnConnectionEstablished is invoked on success before Connect
// returns. Per spec.md §4.1, only the Supervisor decides whether to
// retry on failure — Transport itself never reconnects.
func (t *Transport) Connect(listener Listener, host string, port int) error {
	u := url.URL{Scheme: "wss", Host: fmt.Sprintf("%s:%d", host, port), Path: "/"}

	conn, _, err := t.dialer.Dial(u.String(), http.Header{})
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", u.String(), err)
	}

	t.mu.Lock()
	t.conn = conn
	t.listener = listener
	t.connected = true
	t.destroyed = false
	t.errNotified = false
	t.done = make(chan struct{})
	t.mu.Unlock()

	t.armPong()
	go t.readPump()

	listener.OnConnectionEstablished()
	return nil
}

// IsConnected reports whether the socket is open.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && !t.destroyed
}

// Send serializes body to JSON and writes it as a text frame. If the
// socket is not open, the send is silently discarded per spec.md §4.1 —
// "no queuing, no backpressure in the core".
func (t *Transport) Send(body any) {
	t.mu.Lock()
	conn := t.conn
	ok := t.connected && !t.destroyed
	t.mu.Unlock()

	if !ok || conn == nil {
		return
	}

	raw, err := json.Marshal(body)
	if err != nil {
		t.notifyError(fmt.Errorf("transport: marshal outbound body: %w", err))
		return
	}

	t.mu.Lock()
	writeErr := conn.WriteMessage(websocket.TextMessage, raw)
	t.mu.Unlock()
	if writeErr != nil {
		t.notifyError(fmt.Errorf("transport: write: %w", writeErr))
	}
}

// Destroy closes the socket, cancels the read pump, and clears flags.
// The Transport must not be reused afterward (spec.md §4.1).
func (t *Transport) Destroy(reason string) {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	t.connected = false
	conn := t.conn
	done := t.done
	t.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
	if done != nil {
		select {
		case <-done:
		default:
			close(done)
		}
	}
}

func (t *Transport) armPong() {
	t.mu.Lock()
	conn := t.conn
	timeout := t.config.PongTimeout
	t.mu.Unlock()
	if conn == nil {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	conn.SetPongHandler(func(string) error {
		t.mu.Lock()
		c := t.conn
		to := t.config.PongTimeout
		t.mu.Unlock()
		if c != nil {
			_ = c.SetReadDeadline(time.Now().Add(to))
		}
		return nil
	})
}

func (t *Transport) readPump() {
	t.mu.Lock()
	conn := t.conn
	done := t.done
	t.mu.Unlock()
	if conn == nil {
		return
	}

	go t.pingLoop(conn, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.handleReadError(err)
			return
		}
		t.mu.Lock()
		listener := t.listener
		t.mu.Unlock()
		if listener != nil {
			listener.OnFrame(raw)
		}
	}
}

func (t *Transport) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(t.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.mu.Lock()
			destroyed := t.destroyed
			t.mu.Unlock()
			if destroyed {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				t.handleReadError(err)
				return
			}
		}
	}
}

func (t *Transport) handleReadError(err error) {
	t.mu.Lock()
	deliberate := t.destroyed
	t.connected = false
	t.mu.Unlock()

	if deliberate {
		return
	}
	t.notifyError(fmt.Errorf("transport: connection lost: %w", err))
}

// notifyError fires OnError at most once per Transport instance, per
// spec.md §4.1's "notify listener onErrorReceived(synthetic error) once".
func (t *Transport) notifyError(err error) {
	t.mu.Lock()
	if t.errNotified {
		t.mu.Unlock()
		return
	}
	t.errNotified = true
	listener := t.listener
	t.mu.Unlock()

	if listener != nil {
		listener.OnError(err)
	}
}
