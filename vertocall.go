/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package vertocall is the facade spec.md §2 implies but never names
// directly: it owns one SignalingSession, one ConnectionSupervisor, and
// the shared event stream, the way webexsdk.Client owns an http.Client,
// a Config and a set of registered plugins. A host constructs one
// Client, logs in through it, and dials or receives Calls through the
// Session it wraps.
package vertocall

import (
	"log"
	"time"

	"github.com/vertocall/go-verto/call"
	"github.com/vertocall/go-verto/emitter"
	"github.com/vertocall/go-verto/media"
	"github.com/vertocall/go-verto/session"
	"github.com/vertocall/go-verto/supervisor"
	"github.com/vertocall/go-verto/transport"
)

// Logger is the interface for engine-wide diagnostics. Any logger that
// implements Printf (such as the standard library's *log.Logger) can
// be used — mirrors webexsdk.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Config holds the configuration for a Client. Unset fields fall back
// to the production defaults named in spec.md §6.
type Config struct {
	// ServerConfig is the TxServerConfiguration named in spec.md §6. If
	// zero-valued, session.DefaultServerConfig() is used.
	ServerConfig session.ServerConfig

	// HandshakeTimeout, PingInterval and PongTimeout tune the
	// underlying Transport. Zero values fall back to
	// transport.DefaultConfig().
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration

	// GatewayPollInterval and MaxRegRetries tune the SignalingSession's
	// registration poll. Zero values fall back to
	// session.DefaultConfig().
	GatewayPollInterval time.Duration
	MaxRegRetries       int

	// MediaConfig supplies the ICE servers the default PeerConnection
	// factory builds pion/webrtc engines with. If zero-valued,
	// media.DefaultConfig() is used. Ignored if PeerConnectionFactory
	// is set.
	MediaConfig media.Config

	// PeerConnectionFactory overrides how new Calls obtain a
	// call.PeerConnection. If nil, a factory backed by the media
	// package (pion/webrtc) is used.
	PeerConnectionFactory session.PeerConnectionFactory

	// NetworkProbe overrides connectivity detection. If nil, the
	// engine always assumes the network is available.
	NetworkProbe session.NetworkProbe

	// Logger receives engine diagnostics. If nil, log.Default() is
	// used.
	Logger Logger
}

// DefaultConfig returns a Config with every field at its spec.md §6
// default.
func DefaultConfig() Config {
	tr := transport.DefaultConfig()
	return Config{
		ServerConfig:        session.DefaultServerConfig(),
		HandshakeTimeout:    tr.HandshakeTimeout,
		PingInterval:        tr.PingInterval,
		PongTimeout:         tr.PongTimeout,
		GatewayPollInterval: 3000 * time.Millisecond,
		MaxRegRetries:       2,
		MediaConfig:         media.DefaultConfig(),
	}
}

// Client is the engine-wide facade: one SignalingSession, one
// ConnectionSupervisor, one event stream.
type Client struct {
	Config Config

	events     *emitter.Emitter
	session    *session.Session
	supervisor *supervisor.Supervisor
	logger     Logger
}

// New constructs a Client. If config is the zero value, DefaultConfig
// is used.
func New(config Config) *Client {
	if config.ServerConfig.Host == "" {
		config.ServerConfig = session.DefaultServerConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	events := emitter.New()

	pcFactory := config.PeerConnectionFactory
	if pcFactory == nil {
		mediaCfg := config.MediaConfig
		if mediaCfg.ICEServers == nil {
			mediaCfg = media.DefaultConfig()
		}
		pcFactory = func() call.PeerConnection {
			eng, err := media.New(mediaCfg)
			if err != nil {
				config.Logger.Printf("vertocall: failed to build media engine: %v", err)
				return nil
			}
			return eng
		}
	}

	sessCfg := session.Config{
		GatewayPollInterval: config.GatewayPollInterval,
		MaxRegRetries:       config.MaxRegRetries,
	}
	defSess := session.DefaultConfig()
	if sessCfg.GatewayPollInterval == 0 {
		sessCfg.GatewayPollInterval = defSess.GatewayPollInterval
	}
	if sessCfg.MaxRegRetries == 0 {
		sessCfg.MaxRegRetries = defSess.MaxRegRetries
	}

	trCfg := transport.Config{
		HandshakeTimeout: config.HandshakeTimeout,
		PingInterval:     config.PingInterval,
		PongTimeout:      config.PongTimeout,
	}
	defTr := transport.DefaultConfig()
	if trCfg.HandshakeTimeout == 0 {
		trCfg.HandshakeTimeout = defTr.HandshakeTimeout
	}
	if trCfg.PingInterval == 0 {
		trCfg.PingInterval = defTr.PingInterval
	}
	if trCfg.PongTimeout == 0 {
		trCfg.PongTimeout = defTr.PongTimeout
	}

	tr := transport.New(trCfg)
	sess := session.New(tr, sessCfg, events, config.NetworkProbe, pcFactory)

	sv := supervisor.New(sess, config.ServerConfig, func() session.Transport {
		return transport.New(trCfg)
	}, events, config.Logger)

	return &Client{
		Config:     config,
		events:     events,
		session:    sess,
		supervisor: sv,
		logger:     config.Logger,
	}
}

// Events returns the Client's shared event stream (spec.md §6's single
// tagged event emitter).
func (c *Client) Events() *emitter.Emitter {
	return c.events
}

// Session returns the underlying SignalingSession for hosts that need
// direct access (login variants, Registry, NewCall).
func (c *Client) Session() *session.Session {
	return c.session
}

// Connect dials the configured server and arms the ConnectionSupervisor's
// network observer (spec.md §4.5).
func (c *Client) Connect() error {
	c.supervisor.RegisterNetworkObserver()
	return c.session.Connect(c.Config.ServerConfig)
}

// Disconnect tears down the session and every live call.
func (c *Client) Disconnect() {
	c.session.Disconnect()
}

// OnNetworkUnavailable forwards a host-detected connectivity loss to
// the ConnectionSupervisor.
func (c *Client) OnNetworkUnavailable() {
	c.supervisor.OnNetworkUnavailable()
}

// OnNetworkAvailable forwards a host-detected connectivity recovery to
// the ConnectionSupervisor, which performs at most one reconnect pass.
func (c *Client) OnNetworkAvailable() {
	c.supervisor.OnNetworkAvailable()
}
