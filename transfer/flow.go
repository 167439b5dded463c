// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/atelier-foundation/peersync/lib/clock"
	"github.com/atelier-foundation/peersync/transport"
)

// ErrTransportClosed is returned by any send or wait attempted after
// the connection reported closed. It is fatal to the current batch.
var ErrTransportClosed = errors.New("transport closed")

// ErrAckTimeout is recorded when a record or character acknowledgement
// does not arrive in time. It fails the one item, not the batch.
var ErrAckTimeout = errors.New("acknowledgement timeout")

const (
	// DefaultDrainThreshold is the outbound buffer level a payload send
	// waits for before writing the next frame.
	DefaultDrainThreshold = 64 * 1024

	// drainPollInterval is how often the flow controller re-checks the
	// outbound buffer while waiting.
	drainPollInterval = 50 * time.Millisecond

	// defaultDrainTimeout bounds a drain wait. A transport that never
	// reports drainage would otherwise stall the batch forever; after
	// the timeout the send proceeds anyway and risks overflow, the
	// lesser failure.
	defaultDrainTimeout = 60 * time.Second
)

// FlowController gates payload sends on the transport's outbound
// buffer level. One controller is exclusive to one connection; no two
// transfers share one.
type FlowController struct {
	endpoint     transport.Endpoint
	clk          clock.Clock
	logger       *slog.Logger
	threshold    int
	drainTimeout time.Duration
}

// FlowOptions overrides the controller defaults. Zero values keep
// them.
type FlowOptions struct {
	// Threshold is the buffer level sends wait for. Negative means 0
	// (a hard drain before every send).
	Threshold int

	// DrainTimeout bounds each buffer wait.
	DrainTimeout time.Duration
}

// NewFlowController wraps endpoint with backpressure gating.
func NewFlowController(endpoint transport.Endpoint, opts FlowOptions, clk clock.Clock, logger *slog.Logger) *FlowController {
	threshold := DefaultDrainThreshold
	if opts.Threshold > 0 {
		threshold = opts.Threshold
	} else if opts.Threshold < 0 {
		threshold = 0
	}
	drainTimeout := opts.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FlowController{
		endpoint:     endpoint,
		clk:          clk,
		logger:       logger,
		threshold:    threshold,
		drainTimeout: drainTimeout,
	}
}

// Send blocks until the outbound buffer is at or below the threshold,
// then writes the frame. Fails immediately with ErrTransportClosed if
// the connection closes while waiting.
func (f *FlowController) Send(frame []byte) error {
	if err := f.waitForDrain(f.threshold); err != nil {
		return err
	}
	if err := f.endpoint.Send(frame); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return fmt.Errorf("%w: %w", ErrTransportClosed, err)
		}
		return err
	}
	return nil
}

// Drain blocks until the outbound buffer is empty. Used before the
// final reconciliation exchange so the completion frame does not sit
// behind megabytes of payload.
func (f *FlowController) Drain() error {
	return f.waitForDrain(0)
}

func (f *FlowController) waitForDrain(threshold int) error {
	if f.endpoint.BufferedAmount() <= threshold {
		return nil
	}

	ticker := f.clk.NewTicker(drainPollInterval)
	defer ticker.Stop()
	deadline := f.clk.After(f.drainTimeout)

	for {
		select {
		case <-f.endpoint.Closed():
			return fmt.Errorf("%w: waiting for buffer drain", ErrTransportClosed)
		case <-deadline:
			f.logger.Warn("outbound buffer never drained, sending anyway",
				"buffered", f.endpoint.BufferedAmount(),
				"threshold", threshold,
				"waited", f.drainTimeout,
			)
			return nil
		case <-ticker.C:
			if f.endpoint.BufferedAmount() <= threshold {
				return nil
			}
		}
	}
}
