/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package media provides the pion/webrtc-backed implementation of the
// call.PeerConnection interface. Its internals are explicitly out of
// scope per spec.md §1 ("The underlying WebRTC peer-connection engine");
// this package exists only so the engine is runnable end to end, the way
// the teacher SDK wires pion/webrtc behind calling.MediaEngine. Callers
// who only need the signaling engine can satisfy call.PeerConnection with
// a fake instead of importing this package.
package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Config carries the ICE server list the PeerConnection is built with —
// the TURN/STUN pair named in spec.md §6.
type Config struct {
	ICEServers []webrtc.ICEServer
}

// DefaultConfig returns a Config pointed at the Telnyx TURN/STUN defaults
// named in spec.md §6.
func DefaultConfig() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"turn:turn.telnyx.com:3478?transport=tcp"}},
			{URLs: []string{"stun:stun.telnyx.com:3843"}},
		},
	}
}

// Engine adapts a pion *webrtc.PeerConnection to call.PeerConnection.
// Only PCMU/PCMA codecs are registered, mirroring the teacher SDK's
// deliberate avoidance of RegisterDefaultCodecs for BroadWorks-style
// gateway compatibility.
type Engine struct {
	mu  sync.Mutex
	pc  *webrtc.PeerConnection
	api *webrtc.API
}

// New constructs an Engine with cfg's ICE servers and a restricted codec
// table (PCMU payload type 0, PCMA payload type 8).
func New(cfg Config) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	if err := registerNarrowCodecs(m); err != nil {
		return nil, fmt.Errorf("media: register codecs: %w", err)
	}

	registry := &webrtc.InterceptorRegistry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("media: register interceptors: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("media: new peer connection: %w", err)
	}

	return &Engine{pc: pc, api: api}, nil
}

func registerNarrowCodecs(m *webrtc.MediaEngine) error {
	codecs := []webrtc.RTPCodecParameters{
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000, Channels: 0, SDPFmtpLine: "", RTCPFeedback: nil},
			PayloadType:        0,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMA, ClockRate: 8000, Channels: 0, SDPFmtpLine: "", RTCPFeedback: nil},
			PayloadType:        8,
		},
	}
	for _, c := range codecs {
		if err := m.RegisterCodec(c, webrtc.RTPCodecTypeAudio); err != nil {
			return err
		}
	}
	return nil
}

// waitForGatherComplete blocks until ICE gathering finishes or ctx is
// done, whichever comes first — the compliant alternative to a fixed
// sleep named in spec.md §9.
func (e *Engine) waitForGatherComplete(ctx context.Context) {
	gatherComplete := webrtc.GatheringCompletePromise(e.pc)
	select {
	case <-gatherComplete:
	case <-ctx.Done():
	}
}

// CreateOffer creates a local audio track, generates an SDP offer, and
// waits for ICE gathering (or ctx's deadline) before returning.
func (e *Engine) CreateOffer(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.addAudioTrackLocked(); err != nil {
		return "", err
	}

	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("media: create offer: %w", err)
	}
	if err := e.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("media: set local description: %w", err)
	}

	e.waitForGatherComplete(ctx)

	if ld := e.pc.LocalDescription(); ld != nil {
		return ld.SDP, nil
	}
	return offer.SDP, nil
}

// CreateAnswer applies remoteOfferSDP as the remote description, creates
// a local audio track, generates an answer, and waits for ICE gathering.
func (e *Engine) CreateAnswer(ctx context.Context, remoteOfferSDP string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: remoteOfferSDP}
	if err := e.pc.SetRemoteDescription(remote); err != nil {
		return "", fmt.Errorf("media: set remote description: %w", err)
	}

	if _, err := e.addAudioTrackLocked(); err != nil {
		return "", err
	}

	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("media: create answer: %w", err)
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("media: set local description: %w", err)
	}

	e.waitForGatherComplete(ctx)

	if ld := e.pc.LocalDescription(); ld != nil {
		return ld.SDP, nil
	}
	return answer.SDP, nil
}

// SetRemoteAnswer applies a final remote answer SDP. It guards against a
// duplicate answer the way calling.MediaEngine.SetRemoteAnswer does, by
// checking the signaling state first.
func (e *Engine) SetRemoteAnswer(sdp string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pc.SignalingState() == webrtc.SignalingStateStable {
		return nil
	}
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := e.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("media: set remote answer: %w", err)
	}
	return nil
}

// SetRemoteEarlyMedia applies an early-media SDP the same way a final
// answer is applied — the remote description setter does not distinguish
// between the two.
func (e *Engine) SetRemoteEarlyMedia(sdp string) error {
	return e.SetRemoteAnswer(sdp)
}

// Close tears down the peer connection. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pc == nil {
		return nil
	}
	err := e.pc.Close()
	e.pc = nil
	return err
}

func (e *Engine) addAudioTrackLocked() (*webrtc.TrackLocalStaticRTP, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000},
		"audio", "verto-audio",
	)
	if err != nil {
		return nil, fmt.Errorf("media: new local track: %w", err)
	}
	sender, err := e.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("media: add track: %w", err)
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return track, nil
}
