/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package transport

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testListener records every callback Transport makes, guarded by a mutex
// since OnFrame/OnError/OnConnectionEstablished may race with assertions.
type testListener struct {
	mu        sync.Mutex
	connected bool
	frames    [][]byte
	errs      []error
}

func (l *testListener) OnConnectionEstablished() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = true
}

func (l *testListener) OnFrame(raw []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := make([]byte, len(raw))
	copy(cp, raw)
	l.frames = append(l.frames, cp)
}

func (l *testListener) OnError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *testListener) frameCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

func (l *testListener) errCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errs)
}

// newEchoServer starts an in-process WebSocket server that echoes every
// text frame it receives back to the client, and returns its host/port.
func newEchoServer(t *testing.T) (host string, port int, closeFn func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	h, p, err := splitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	return h, p, srv.Close
}

func splitHostPort(hostport string) (string, int, error) {
	idx := strings.LastIndex(hostport, ":")
	port, err := strconv.Atoi(hostport[idx+1:])
	if err != nil {
		return "", 0, err
	}
	return hostport[:idx], port, nil
}

// Connect dials wss:// unconditionally; for this in-process test we swap
// the dialer's scheme expectation by dialing through a ws:// URL built
// directly rather than going through Connect's host:port constructor,
// since httptest serves plain HTTP/WS, not TLS.
func dialPlain(t *testing.T, tr *Transport, listener Listener, host string, port int) {
	t.Helper()
	u := url.URL{Scheme: "ws", Host: host + ":" + strconv.Itoa(port), Path: "/"}
	conn, _, err := tr.dialer.Dial(u.String(), http.Header{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	tr.mu.Lock()
	tr.conn = conn
	tr.listener = listener
	tr.connected = true
	tr.destroyed = false
	tr.errNotified = false
	tr.done = make(chan struct{})
	tr.mu.Unlock()
	tr.armPong()
	go tr.readPump()
	listener.OnConnectionEstablished()
}

func TestTransportSendAndReceive(t *testing.T) {
	host, port, closeFn := newEchoServer(t)
	defer closeFn()

	tr := New(DefaultConfig())
	listener := &testListener{}
	dialPlain(t, tr, listener, host, port)
	defer tr.Destroy("test done")

	if !tr.IsConnected() {
		t.Fatalf("expected transport to report connected")
	}

	tr.Send(map[string]string{"hello": "world"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if listener.frameCount() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if listener.frameCount() != 1 {
		t.Fatalf("expected 1 echoed frame, got %d", listener.frameCount())
	}
}

func TestTransportSendWhenNotConnectedIsDiscarded(t *testing.T) {
	tr := New(DefaultConfig())
	// Never connected: Send must not panic and must be a silent no-op.
	tr.Send(map[string]string{"x": "y"})
	if tr.IsConnected() {
		t.Fatalf("expected not connected")
	}
}

func TestTransportDestroyIsIdempotent(t *testing.T) {
	host, port, closeFn := newEchoServer(t)
	defer closeFn()

	tr := New(DefaultConfig())
	listener := &testListener{}
	dialPlain(t, tr, listener, host, port)

	tr.Destroy("first")
	tr.Destroy("second")

	if tr.IsConnected() {
		t.Fatalf("expected transport to report disconnected after destroy")
	}
}

func TestTransportNotifiesErrorAtMostOnce(t *testing.T) {
	host, port, closeFn := newEchoServer(t)

	tr := New(DefaultConfig())
	listener := &testListener{}
	dialPlain(t, tr, listener, host, port)

	// Kill the server out from under the open connection to trigger a read
	// error on the pump, then give the pump time to notice.
	closeFn()
	time.Sleep(200 * time.Millisecond)

	if listener.errCount() > 1 {
		t.Fatalf("expected at most 1 error notification, got %d", listener.errCount())
	}
}
