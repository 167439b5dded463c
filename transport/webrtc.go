// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// Compile-time interface checks.
var (
	_ Factory  = (*WebRTCFactory)(nil)
	_ Endpoint = (*webrtcEndpoint)(nil)
)

// offerPollInterval is how often a listener polls the signaler for an
// inbound SDP offer.
const offerPollInterval = 500 * time.Millisecond

// answerPollInterval is how often the dialer polls for an SDP answer
// after publishing an offer.
const answerPollInterval = 500 * time.Millisecond

// iceGatherTimeout is the maximum time to wait for ICE candidate
// gathering to complete before publishing the SDP.
const iceGatherTimeout = 15 * time.Second

// channelOpenTimeout bounds the wait for the data channel to reach the
// open state after signaling completes.
const channelOpenTimeout = 30 * time.Second

// inboundQueueDepth is the buffering between pion's OnMessage callback
// and the consumer of Endpoint.Messages. Deep enough that a burst of
// chunk frames does not stall SCTP delivery while the receiver engine
// is persisting the previous record.
const inboundQueueDepth = 1024

// WebRTCFactory opens peer-to-peer endpoints over pion data channels.
// Connection establishment uses vanilla ICE: all candidates are
// gathered before the SDP is published, so signaling requires exactly
// one round-trip per connection.
//
// Each endpoint owns its PeerConnection with a single ordered data
// channel labeled "sync". PeerSync transfers are strictly one channel
// per session; there is no connection pooling.
type WebRTCFactory struct {
	signaler Signaler
	logger   *slog.Logger

	// iceConfig is the ICE server configuration, fixed at creation.
	iceConfig ICEConfig
}

// NewWebRTCFactory creates a factory that signals through signaler and
// gathers candidates against the given ICE servers. A nil logger
// discards output.
func NewWebRTCFactory(signaler Signaler, iceConfig ICEConfig, logger *slog.Logger) *WebRTCFactory {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &WebRTCFactory{
		signaler:  signaler,
		iceConfig: iceConfig,
		logger:    logger,
	}
}

// Listen claims name with the signaler and blocks until a peer dials
// it. The name is released once the connection is established (or the
// attempt fails), since a PeerSync listener accepts exactly one peer.
func (f *WebRTCFactory) Listen(ctx context.Context, name string) (Endpoint, error) {
	if err := f.signaler.Register(ctx, name); err != nil {
		return nil, err
	}
	defer func() {
		// Release regardless of outcome; the session either holds a
		// live endpoint now or will retry under a fresh name.
		if err := f.signaler.Unregister(context.WithoutCancel(ctx), name); err != nil {
			f.logger.Warn("unregistering endpoint name failed", "name", name, "error", err)
		}
	}()

	offer, err := f.waitForOffer(ctx, name)
	if err != nil {
		return nil, err
	}

	f.logger.Info("offer received", "name", name, "peer", offer.Peer)
	return f.answerOffer(ctx, name, offer)
}

// Dial connects to the endpoint listening under name. The local
// endpoint name is the target name plus a random suffix; both names
// feed the pairing fingerprint, so the suffix must be unpredictable.
func (f *WebRTCFactory) Dial(ctx context.Context, name string) (Endpoint, error) {
	localName := name + "-peer-" + randomSuffix()

	pc, err := f.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}

	ordered := true
	dc, err := pc.CreateDataChannel("sync", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("creating data channel: %w", err)
	}

	endpoint := newWebRTCEndpoint(pc, dc, localName, name, f.logger)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		endpoint.Close()
		return nil, fmt.Errorf("creating SDP offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		endpoint.Close()
		return nil, fmt.Errorf("setting local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		endpoint.Close()
		return nil, fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		endpoint.Close()
		return nil, ctx.Err()
	}

	completeSDP := pc.LocalDescription().SDP
	if err := f.signaler.PublishOffer(ctx, localName, name, completeSDP); err != nil {
		endpoint.Close()
		return nil, fmt.Errorf("publishing SDP offer: %w", err)
	}
	f.logger.Info("offer published", "name", localName, "target", name)

	answer, err := f.waitForAnswer(ctx, localName, name)
	if err != nil {
		endpoint.Close()
		return nil, fmt.Errorf("waiting for SDP answer from %s: %w", name, err)
	}

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}
	if err := pc.SetRemoteDescription(remote); err != nil {
		endpoint.Close()
		return nil, fmt.Errorf("setting remote description: %w", err)
	}

	if err := endpoint.waitOpen(ctx); err != nil {
		endpoint.Close()
		return nil, err
	}

	f.logger.Info("outbound connection established", "name", localName, "peer", name)
	return endpoint, nil
}

// answerOffer builds the answering side of a connection: create the
// PeerConnection, accept the remote offer, publish the answer, and
// wait for the peer's "sync" data channel to arrive and open.
func (f *WebRTCFactory) answerOffer(ctx context.Context, name string, offer SignalMessage) (Endpoint, error) {
	pc, err := f.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}

	endpoint := newWebRTCEndpoint(pc, nil, name, offer.Peer, f.logger)

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		endpoint.adoptChannel(dc)
	})

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := pc.SetRemoteDescription(remote); err != nil {
		endpoint.Close()
		return nil, fmt.Errorf("setting remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		endpoint.Close()
		return nil, fmt.Errorf("creating SDP answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		endpoint.Close()
		return nil, fmt.Errorf("setting local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		endpoint.Close()
		return nil, fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		endpoint.Close()
		return nil, ctx.Err()
	}

	completeSDP := pc.LocalDescription().SDP
	if err := f.signaler.PublishAnswer(ctx, name, offer.Peer, completeSDP); err != nil {
		endpoint.Close()
		return nil, fmt.Errorf("publishing SDP answer: %w", err)
	}

	if err := endpoint.waitOpen(ctx); err != nil {
		endpoint.Close()
		return nil, err
	}

	f.logger.Info("inbound connection established", "name", name, "peer", offer.Peer)
	return endpoint, nil
}

// waitForOffer polls the signaler until an offer addressed to name
// arrives.
func (f *WebRTCFactory) waitForOffer(ctx context.Context, name string) (SignalMessage, error) {
	ticker := time.NewTicker(offerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return SignalMessage{}, ctx.Err()
		case <-ticker.C:
			offers, err := f.signaler.PollOffers(ctx, name)
			if err != nil {
				f.logger.Warn("polling for SDP offers failed", "error", err)
				continue
			}
			if len(offers) > 0 {
				// One listener, one peer: the first offer wins.
				return offers[0], nil
			}
		}
	}
}

// waitForAnswer polls the signaler for an SDP answer from target.
func (f *WebRTCFactory) waitForAnswer(ctx context.Context, localName, target string) (SignalMessage, error) {
	ticker := time.NewTicker(answerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return SignalMessage{}, ctx.Err()
		case <-ticker.C:
			answers, err := f.signaler.PollAnswers(ctx, localName)
			if err != nil {
				f.logger.Warn("polling for SDP answer failed", "error", err)
				continue
			}
			for _, answer := range answers {
				if answer.Peer == target {
					return answer, nil
				}
			}
		}
	}
}

// newPeerConnection creates a pion PeerConnection with the factory's
// ICE config. Loopback candidates are enabled so same-machine
// transfers and test environments work without STUN.
func (f *WebRTCFactory) newPeerConnection() (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: f.iceConfig.Servers})
}

// randomSuffix returns 8 hex characters from crypto/rand.
func randomSuffix() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("transport: reading random suffix: " + err.Error())
	}
	return hex.EncodeToString(buf[:])
}

// webrtcEndpoint adapts one pion data channel to the Endpoint
// interface. The channel stays in message mode (no detach): pion
// delivers whole messages through OnMessage, and BufferedAmount is
// available for flow control, which is exactly the surface the
// transfer engines need.
type webrtcEndpoint struct {
	pc     *webrtc.PeerConnection
	logger *slog.Logger

	localName string
	peerName  string

	// dcMu guards dc, which the answering side populates from the
	// OnDataChannel callback after construction.
	dcMu sync.Mutex
	dc   *webrtc.DataChannel

	// open is closed when the data channel reaches the open state.
	open     chan struct{}
	openOnce sync.Once

	messages chan []byte
	inbound  chan []byte

	closed    chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

func newWebRTCEndpoint(pc *webrtc.PeerConnection, dc *webrtc.DataChannel, localName, peerName string, logger *slog.Logger) *webrtcEndpoint {
	e := &webrtcEndpoint{
		pc:        pc,
		logger:    logger,
		localName: localName,
		peerName:  peerName,
		open:      make(chan struct{}),
		messages:  make(chan []byte),
		inbound:   make(chan []byte, inboundQueueDepth),
		closed:    make(chan struct{}),
	}

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logger.Debug("ICE state change", "peer", peerName, "state", state.String())
		if state == webrtc.ICEConnectionStateFailed {
			e.fail(fmt.Errorf("transport: ICE connection failed: %w", ErrClosed))
		}
	})

	if dc != nil {
		e.adoptChannel(dc)
	}

	go e.pump()
	return e
}

// adoptChannel wires a data channel's callbacks into the endpoint.
// Called at construction on the dialing side, and from OnDataChannel
// on the answering side.
func (e *webrtcEndpoint) adoptChannel(dc *webrtc.DataChannel) {
	e.dcMu.Lock()
	if e.dc != nil {
		// The protocol opens exactly one channel; anything further is
		// a misbehaving peer.
		e.dcMu.Unlock()
		e.logger.Warn("unexpected extra data channel", "label", dc.Label())
		dc.Close()
		return
	}
	e.dc = dc
	e.dcMu.Unlock()

	dc.OnOpen(func() {
		e.openOnce.Do(func() { close(e.open) })
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case e.inbound <- msg.Data:
		case <-e.closed:
		}
	})
	dc.OnClose(func() {
		e.fail(ErrClosed)
	})
	dc.OnError(func(err error) {
		e.fail(fmt.Errorf("transport: data channel error: %w", err))
	})
}

// waitOpen blocks until the data channel opens, the endpoint fails, or
// ctx/timeout expires.
func (e *webrtcEndpoint) waitOpen(ctx context.Context) error {
	select {
	case <-e.open:
		return nil
	case <-e.closed:
		return e.Err()
	case <-time.After(channelOpenTimeout):
		return fmt.Errorf("data channel did not open within %s", channelOpenTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pump moves inbound messages from the callback-fed queue to the
// consumer-facing channel. Owning both ends in one goroutine makes
// closing messages race-free.
func (e *webrtcEndpoint) pump() {
	defer close(e.messages)
	for {
		select {
		case data := <-e.inbound:
			select {
			case e.messages <- data:
			case <-e.closed:
				return
			}
		case <-e.closed:
			return
		}
	}
}

func (e *webrtcEndpoint) Name() string { return e.localName }
func (e *webrtcEndpoint) Peer() string { return e.peerName }

func (e *webrtcEndpoint) Send(data []byte) error {
	select {
	case <-e.closed:
		return e.Err()
	default:
	}

	e.dcMu.Lock()
	dc := e.dc
	e.dcMu.Unlock()
	if dc == nil {
		return fmt.Errorf("transport: data channel not open: %w", ErrClosed)
	}

	if err := dc.Send(data); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

func (e *webrtcEndpoint) BufferedAmount() int {
	e.dcMu.Lock()
	dc := e.dc
	e.dcMu.Unlock()
	if dc == nil {
		return 0
	}
	return int(dc.BufferedAmount())
}

func (e *webrtcEndpoint) Messages() <-chan []byte { return e.messages }

func (e *webrtcEndpoint) Closed() <-chan struct{} { return e.closed }

func (e *webrtcEndpoint) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

func (e *webrtcEndpoint) Close() error {
	e.fail(ErrClosed)
	return nil
}

// fail records the terminal error and tears the connection down.
// First caller wins; later calls are no-ops.
func (e *webrtcEndpoint) fail(err error) {
	e.closeOnce.Do(func() {
		e.errMu.Lock()
		e.err = err
		e.errMu.Unlock()
		close(e.closed)
		e.pc.Close()
	})
}
