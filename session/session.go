// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/atelier-foundation/peersync/lib/clock"
	"github.com/atelier-foundation/peersync/transport"
	"github.com/atelier-foundation/peersync/wire"
)

// Status is the session lifecycle state.
type Status int

const (
	// StatusIdle is the initial state and the state after Close.
	StatusIdle Status = iota

	// StatusWaiting: the sender has posted a connection code and is
	// waiting for an inbound connection.
	StatusWaiting

	// StatusConnecting: the receiver is dialing a connection code.
	StatusConnecting

	// StatusPaired: the data channel is open; fingerprints are shown
	// and confirmation is pending on both sides.
	StatusPaired

	// StatusTransferring: both sides confirmed; data frames flow.
	StatusTransferring

	// StatusCompleted: the final reconciliation exchange finished.
	StatusCompleted

	// StatusError: transport error, ICE failure, or open timeout.
	StatusError
)

var statusNames = map[Status]string{
	StatusIdle:         "idle",
	StatusWaiting:      "waiting",
	StatusConnecting:   "connecting",
	StatusPaired:       "paired",
	StatusTransferring: "transferring",
	StatusCompleted:    "completed",
	StatusError:        "error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Role distinguishes which side of the transfer this session is.
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}
	return "receiver"
}

// Options configures session timing and retry behavior. Zero values
// take the defaults.
type Options struct {
	// OpenTimeout bounds connection establishment (dial through data
	// channel open). Default 30s.
	OpenTimeout time.Duration

	// ListenRetries is how many fresh codes the sender tries when its
	// endpoint name collides with a ghost registration. Default 3.
	ListenRetries int
}

func (o Options) withDefaults() Options {
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = 30 * time.Second
	}
	if o.ListenRetries <= 0 {
		o.ListenRetries = 3
	}
	return o
}

// Session owns one pairing and its connection. It is constructed per
// transfer attempt, injected into the engines, and never shared:
// exactly one Session exists per active connection, and Close returns
// it to idle.
//
// All state transitions happen through Session's methods; observers
// register a status callback at construction instead of reading
// mutable fields.
type Session struct {
	factory transport.Factory
	clk     clock.Clock
	logger  *slog.Logger
	opts    Options

	// onStatus, if non-nil, is invoked after every status transition,
	// outside the session lock.
	onStatus func(Status)

	mu              sync.Mutex
	status          Status
	role            Role
	code            string
	fingerprint     string
	localConfirmed  bool
	remoteConfirmed bool
	endpoint        transport.Endpoint
	handler         func(wire.Frame)
	err             error

	// transferring is closed when the session enters
	// StatusTransferring. Engines block on it before streaming.
	transferring chan struct{}
}

// New creates an idle Session. onStatus may be nil.
func New(factory transport.Factory, opts Options, clk clock.Clock, logger *slog.Logger, onStatus func(Status)) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Session{
		factory:      factory,
		clk:          clk,
		logger:       logger,
		opts:         opts.withDefaults(),
		onStatus:     onStatus,
		transferring: make(chan struct{}),
	}
}

// StartSender generates a connection code, posts it, and blocks until
// a peer connects (or ctx ends). On an endpoint-name collision — a
// ghost registration from a dead session — it regenerates the code and
// retries, a bounded number of times. The current code is readable via
// Code the moment the session enters StatusWaiting, which is before
// this method returns.
func (s *Session) StartSender(ctx context.Context) error {
	opts := s.opts

	for attempt := 1; ; attempt++ {
		code := GenerateCode()

		s.mu.Lock()
		s.role = RoleSender
		s.code = code
		s.mu.Unlock()
		s.setStatus(StatusWaiting)

		endpoint, err := s.factory.Listen(ctx, EndpointName(code))
		if errors.Is(err, transport.ErrNameTaken) {
			if attempt >= opts.ListenRetries {
				err = fmt.Errorf("no free endpoint name after %d attempts: %w", attempt, err)
				s.fail(err)
				return err
			}
			s.logger.Warn("endpoint name collision, regenerating code",
				"code", code,
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			err = fmt.Errorf("waiting for peer: %w", err)
			s.fail(err)
			return err
		}

		s.adopt(endpoint)
		return nil
	}
}

// Connect dials the sender identified by a connection code and blocks
// until the data channel is open. Establishment is bounded by
// Options.OpenTimeout.
func (s *Session) Connect(ctx context.Context, rawCode string) error {
	code, err := NormalizeCode(rawCode)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.role = RoleReceiver
	s.code = code
	s.mu.Unlock()
	s.setStatus(StatusConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.OpenTimeout)
	defer cancel()

	endpoint, err := s.factory.Dial(dialCtx, EndpointName(code))
	if err != nil {
		err = fmt.Errorf("connecting to code %s: %w", code, err)
		s.fail(err)
		return err
	}

	s.adopt(endpoint)
	return nil
}

// adopt installs the established endpoint, computes the pairing
// fingerprint, and starts the inbound frame loop.
func (s *Session) adopt(endpoint transport.Endpoint) {
	s.mu.Lock()
	s.endpoint = endpoint
	s.fingerprint = Fingerprint(endpoint.Name(), endpoint.Peer())
	s.mu.Unlock()

	s.logger.Info("paired",
		"role", s.Role().String(),
		"peer", endpoint.Peer(),
		"fingerprint", s.Fingerprint(),
	)
	s.setStatus(StatusPaired)

	go s.readLoop(endpoint)
}

// readLoop decodes every inbound message and routes it: pairing
// confirmations feed the state machine, everything else goes to the
// registered frame handler once data flow is allowed.
func (s *Session) readLoop(endpoint transport.Endpoint) {
	for message := range endpoint.Messages() {
		frame := wire.Decode(message)

		if frame.Kind == wire.KindControl {
			if _, ok := frame.Control.(*wire.ConfirmPairing); ok {
				s.peerConfirmed()
				continue
			}
		}

		s.mu.Lock()
		handler := s.handler
		accepting := s.status == StatusTransferring
		s.mu.Unlock()

		if !accepting || handler == nil {
			// Data before both confirmations, or no engine attached.
			// Dropping is safe: the sender does not stream until the
			// confirmation handshake completes.
			s.logger.Debug("dropping frame outside transfer window", "kind", int(frame.Kind))
			continue
		}
		handler(frame)
	}

	// Inbound channel closed: the connection is gone. Terminal states
	// keep their status; an active session degrades to error.
	s.mu.Lock()
	status := s.status
	err := endpoint.Err()
	s.mu.Unlock()

	switch status {
	case StatusCompleted, StatusIdle, StatusError:
		return
	default:
		s.fail(fmt.Errorf("connection lost: %w", err))
	}
}

// ConfirmPairing records that the local human verified the
// fingerprint, and tells the peer. When the peer's confirmation has
// also arrived, the session enters StatusTransferring.
func (s *Session) ConfirmPairing() error {
	s.mu.Lock()
	if s.status != StatusPaired && s.status != StatusTransferring {
		status := s.status
		s.mu.Unlock()
		return fmt.Errorf("cannot confirm pairing in state %s", status)
	}
	endpoint := s.endpoint
	s.localConfirmed = true
	s.mu.Unlock()

	frame, err := wire.EncodeControl(&wire.ConfirmPairing{})
	if err != nil {
		return err
	}
	if err := endpoint.Send(frame); err != nil {
		return fmt.Errorf("sending pairing confirmation: %w", err)
	}

	s.maybeStartTransfer()
	return nil
}

// peerConfirmed handles the remote confirm_pairing frame.
func (s *Session) peerConfirmed() {
	s.mu.Lock()
	s.remoteConfirmed = true
	s.mu.Unlock()
	s.logger.Info("peer confirmed pairing")
	s.maybeStartTransfer()
}

// maybeStartTransfer transitions to StatusTransferring once both
// confirmation flags are set.
func (s *Session) maybeStartTransfer() {
	s.mu.Lock()
	ready := s.localConfirmed && s.remoteConfirmed && s.status == StatusPaired
	if ready {
		s.status = StatusTransferring
		close(s.transferring)
	}
	s.mu.Unlock()

	if ready {
		s.notify(StatusTransferring)
	}
}

// Transferring is closed once both sides have confirmed pairing.
func (s *Session) Transferring() <-chan struct{} { return s.transferring }

// SetFrameHandler registers the engine that consumes non-pairing
// frames. Must be set before the transfer starts.
func (s *Session) SetFrameHandler(handler func(wire.Frame)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Endpoint returns the live endpoint, or nil before pairing.
func (s *Session) Endpoint() transport.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// Code returns the connection code of the current attempt.
func (s *Session) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Fingerprint returns the 3-symbol pairing fingerprint, or "" before
// pairing.
func (s *Session) Fingerprint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprint
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Role returns which side of the transfer this session is.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Err returns the error that moved the session to StatusError, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Complete marks the transfer finished and closes the connection.
func (s *Session) Complete() {
	s.mu.Lock()
	endpoint := s.endpoint
	s.status = StatusCompleted
	s.mu.Unlock()

	if endpoint != nil {
		endpoint.Close()
	}
	s.notify(StatusCompleted)
}

// fail moves the session to StatusError and tears the connection down.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.status == StatusError || s.status == StatusCompleted || s.status == StatusIdle {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.status = StatusError
	endpoint := s.endpoint
	s.mu.Unlock()

	s.logger.Error("session failed", "error", err)
	if endpoint != nil {
		endpoint.Close()
	}
	s.notify(StatusError)
}

// Close force-resets the session to idle from any state, closing the
// connection if one exists. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	endpoint := s.endpoint
	s.endpoint = nil
	s.code = ""
	s.fingerprint = ""
	s.localConfirmed = false
	s.remoteConfirmed = false
	alreadyIdle := s.status == StatusIdle
	s.status = StatusIdle
	s.mu.Unlock()

	if endpoint != nil {
		endpoint.Close()
	}
	if !alreadyIdle {
		s.notify(StatusIdle)
	}
}

// setStatus transitions to status and notifies the observer.
func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.notify(status)
}

// notify invokes the status callback outside the session lock.
func (s *Session) notify(status Status) {
	if s.onStatus != nil {
		s.onStatus(status)
	}
}
