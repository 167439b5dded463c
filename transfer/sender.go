// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/atelier-foundation/peersync/lib/clock"
	"github.com/atelier-foundation/peersync/session"
	"github.com/atelier-foundation/peersync/store"
	"github.com/atelier-foundation/peersync/transport"
	"github.com/atelier-foundation/peersync/wire"
)

// transferAckKey is the pending-ack id for the final reconciliation
// frame. The NUL prefix keeps it out of the record-UUID and
// character-name namespaces.
const transferAckKey = "\x00transfer_ack"

// Progress reports per-item advancement during a transfer.
type Progress struct {
	// Phase is "history" or "characters".
	Phase string

	// Done and Total count logical items within the phase.
	Done  int
	Total int

	// Item is the record UUID or character name just handled.
	Item string
}

// SenderSummary is what a completed (or aborted) send reports.
type SenderSummary struct {
	// Sent counts items that were acknowledged, including ones the
	// receiver skipped as duplicates.
	Sent int

	// Failed counts items whose acknowledgement never arrived.
	Failed int

	// Remote is the receiver's final reconciliation, nil when the
	// transfer_ack never arrived.
	Remote *wire.TransferAck
}

// SenderOptions configures transfer timing. Zero values take the
// defaults.
type SenderOptions struct {
	// AckTimeout bounds the wait for each record_ack / character_ack.
	// Default 60s.
	AckTimeout time.Duration

	// SettleDelay is inserted after a burst of payload frames, before
	// the closing control frame, so the receiver drains its inbound
	// queue before the logical boundary arrives. Default 100ms.
	SettleDelay time.Duration

	// Flow configures the backpressure controller.
	Flow FlowOptions
}

func (o SenderOptions) withDefaults() SenderOptions {
	if o.AckTimeout <= 0 {
		o.AckTimeout = 60 * time.Second
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 100 * time.Millisecond
	}
	return o
}

// Sender streams the local history and character library to the peer,
// one logical item at a time, gated on a per-item acknowledgement.
type Sender struct {
	session    *session.Session
	library    store.Library
	blobs      store.BlobStore
	clk        clock.Clock
	logger     *slog.Logger
	opts       SenderOptions
	onProgress func(Progress)

	endpoint transport.Endpoint
	flow     *FlowController

	mu      sync.Mutex
	pending *pendingAck
}

// pendingAck is the single outstanding acknowledgement wait. Exactly
// one logical item is in flight at a time, so one slot suffices;
// anything arriving for a different id is dropped as stale.
type pendingAck struct {
	id string
	ch chan wire.Control
}

// NewSender wires a sender engine to a paired session. onProgress may
// be nil.
func NewSender(sess *session.Session, library store.Library, blobs store.BlobStore, opts SenderOptions, clk clock.Clock, logger *slog.Logger, onProgress func(Progress)) *Sender {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sender{
		session:    sess,
		library:    library,
		blobs:      blobs,
		clk:        clk,
		logger:     logger,
		opts:       opts.withDefaults(),
		onProgress: onProgress,
	}
}

// Run executes the whole batch: history records, then characters, then
// the final reconciliation exchange. A per-item acknowledgement
// timeout fails that item and continues; a closed transport aborts the
// batch. Run blocks until the session enters the transferring state.
func (s *Sender) Run(ctx context.Context) (SenderSummary, error) {
	s.session.SetFrameHandler(s.handleFrame)

	select {
	case <-s.session.Transferring():
	case <-ctx.Done():
		return SenderSummary{}, ctx.Err()
	}

	s.endpoint = s.session.Endpoint()
	s.flow = NewFlowController(s.endpoint, s.opts.Flow, s.clk, s.logger)

	records, err := s.library.Records(ctx)
	if err != nil {
		return SenderSummary{}, fmt.Errorf("loading records: %w", err)
	}
	characters, err := s.library.Characters(ctx)
	if err != nil {
		return SenderSummary{}, fmt.Errorf("loading characters: %w", err)
	}

	var summary SenderSummary

	if err := s.sendControl(&wire.HistoryMeta{Count: len(records)}); err != nil {
		return summary, err
	}
	for i := range records {
		err := s.sendRecord(&records[i])
		if errors.Is(err, ErrTransportClosed) {
			return summary, err
		}
		if err != nil {
			summary.Failed++
			s.logger.Warn("record failed", "uuid", records[i].UUID, "error", err)
		} else {
			summary.Sent++
		}
		s.progress(Progress{Phase: "history", Done: i + 1, Total: len(records), Item: records[i].UUID})
	}

	if err := s.sendControl(&wire.CharactersMeta{Count: len(characters)}); err != nil {
		return summary, err
	}
	for i := range characters {
		err := s.sendCharacter(&characters[i])
		if errors.Is(err, ErrTransportClosed) {
			return summary, err
		}
		if err != nil {
			summary.Failed++
			s.logger.Warn("character failed", "name", characters[i].Name, "error", err)
		} else {
			summary.Sent++
		}
		s.progress(Progress{Phase: "characters", Done: i + 1, Total: len(characters), Item: characters[i].Name})
	}

	// Let every queued payload reach the wire before the completion
	// frame, so the receiver's reconciliation sees the full batch.
	if err := s.flow.Drain(); err != nil {
		return summary, err
	}

	total := len(records) + len(characters)
	pending := s.armAck(transferAckKey)
	if err := s.sendControl(&wire.TransferComplete{Total: total}); err != nil {
		return summary, err
	}
	ack, err := s.awaitAck(pending)
	if errors.Is(err, ErrTransportClosed) {
		return summary, err
	}
	if err != nil {
		s.logger.Warn("final reconciliation never arrived", "error", err)
		return summary, nil
	}

	remote, ok := ack.(*wire.TransferAck)
	if !ok {
		s.logger.Warn("final reconciliation had unexpected type", "type", ack.ControlType())
		return summary, nil
	}
	summary.Remote = remote
	if remote.ReceivedCount != total {
		s.logger.Warn("reconciliation count mismatch",
			"sent", total,
			"receiverCounted", remote.ReceivedCount,
		)
	}
	s.logger.Info("transfer complete",
		"sent", summary.Sent,
		"failed", summary.Failed,
		"imported", remote.Imported,
		"skipped", remote.Skipped,
		"remoteFailed", remote.Failed,
	)
	return summary, nil
}

// sendRecord streams one record: start frame, image payloads, chunked
// video, end frame, then the acknowledgement wait.
func (s *Sender) sendRecord(record *store.Record) error {
	pending := s.armAck(record.UUID)

	meta := wire.RecordMeta{
		UUID:         record.UUID,
		Timestamp:    record.Timestamp,
		Prompt:       record.Prompt,
		Mode:         record.Mode,
		Options:      record.Options,
		Status:       record.Status,
		ThinkingText: record.ThinkingText,
		Error:        record.Error,
		ImageCount:   len(record.Images),
		HasVideo:     record.HasVideo && record.Video != nil,
	}
	if err := s.sendControl(&wire.RecordStart{Meta: meta}); err != nil {
		return err
	}

	sentPayload := false
	for _, image := range record.Images {
		data, err := s.blobs.Read(image.Path)
		if err != nil {
			// The receiver will ack with a lower received count and
			// the gap shows up in the reconciliation.
			s.logger.Warn("image blob unreadable, skipping payload",
				"uuid", record.UUID,
				"index", image.Index,
				"error", err,
			)
			continue
		}
		frame, err := wire.EncodeBinary(wire.Header{
			Type:     wire.PayloadRecordImage,
			UUID:     record.UUID,
			Index:    image.Index,
			Width:    image.Width,
			Height:   image.Height,
			Size:     int64(len(data)),
			MimeType: image.MimeType,
		}, data)
		if err != nil {
			return err
		}
		if err := s.flow.Send(frame); err != nil {
			return err
		}
		sentPayload = true
	}

	if meta.HasVideo {
		if err := s.sendVideo(record); err != nil {
			return err
		}
		sentPayload = true
	}

	if sentPayload {
		s.clk.Sleep(s.opts.SettleDelay)
	}

	if err := s.sendControl(&wire.RecordEnd{UUID: record.UUID}); err != nil {
		return err
	}

	ack, err := s.awaitAck(pending)
	if err != nil {
		return err
	}
	recordAck, ok := ack.(*wire.RecordAck)
	if !ok {
		return fmt.Errorf("acknowledgement for %s had unexpected type %s", record.UUID, ack.ControlType())
	}
	if recordAck.Skipped {
		s.logger.Info("record already present on peer", "uuid", record.UUID)
	} else if recordAck.ReceivedImages < recordAck.ExpectedImages {
		s.logger.Warn("peer received fewer images than sent",
			"uuid", record.UUID,
			"received", recordAck.ReceivedImages,
			"expected", recordAck.ExpectedImages,
		)
	}
	return nil
}

// sendVideo streams the record's video payload as Chunk frames.
func (s *Sender) sendVideo(record *store.Record) error {
	data, err := s.blobs.Read(record.Video.Path)
	if err != nil {
		s.logger.Warn("video blob unreadable, skipping payload",
			"uuid", record.UUID,
			"error", err,
		)
		return nil
	}

	header := wire.Header{
		Type:     wire.PayloadRecordVideo,
		UUID:     record.UUID,
		Width:    record.Video.Width,
		Height:   record.Video.Height,
		Size:     int64(len(data)),
		MimeType: record.Video.MimeType,
	}
	chunks := wire.SplitChunks(data)
	for i, chunk := range chunks {
		frame, err := wire.EncodeChunk(uint32(i), uint32(len(chunks)), header, chunk)
		if err != nil {
			return err
		}
		if err := s.flow.Send(frame); err != nil {
			return err
		}
	}
	return nil
}

// sendCharacter streams one character: start frame with the full
// definition, optional image payload, end frame, acknowledgement wait.
func (s *Sender) sendCharacter(character *store.Character) error {
	pending := s.armAck(character.Name)

	if err := s.sendControl(&wire.CharacterStart{Character: wire.Character{
		Name:                character.Name,
		Description:         character.Description,
		PhysicalTraits:      character.PhysicalTraits,
		Clothing:            character.Clothing,
		Accessories:         character.Accessories,
		DistinctiveFeatures: character.DistinctiveFeatures,
		Thumbnail:           character.Thumbnail,
	}}); err != nil {
		return err
	}

	if err := s.sendCharacterImage(character); err != nil {
		return err
	}

	if err := s.sendControl(&wire.CharacterEnd{Name: character.Name}); err != nil {
		return err
	}

	ack, err := s.awaitAck(pending)
	if err != nil {
		return err
	}
	characterAck, ok := ack.(*wire.CharacterAck)
	if !ok {
		return fmt.Errorf("acknowledgement for %q had unexpected type %s", character.Name, ack.ControlType())
	}
	if characterAck.Skipped {
		s.logger.Info("character already present on peer", "name", character.Name)
	}
	return nil
}

// sendCharacterImage sends the character's full-size image payload if
// one exists in the blob store.
func (s *Sender) sendCharacterImage(character *store.Character) error {
	path := characterImagePath(character.Name)
	exists, err := s.blobs.Exists(path)
	if err != nil || !exists {
		return nil
	}
	data, err := s.blobs.Read(path)
	if err != nil {
		s.logger.Warn("character image unreadable, skipping payload",
			"name", character.Name,
			"error", err,
		)
		return nil
	}
	frame, err := wire.EncodeBinary(wire.Header{
		Type:     wire.PayloadCharacterImage,
		Name:     character.Name,
		Size:     int64(len(data)),
		MimeType: sniffImageMime(data),
	}, data)
	if err != nil {
		return err
	}
	if err := s.flow.Send(frame); err != nil {
		return err
	}
	s.clk.Sleep(s.opts.SettleDelay)
	return nil
}

// sendControl writes a control frame directly; control frames are
// small and skip the backpressure gate.
func (s *Sender) sendControl(msg wire.Control) error {
	frame, err := wire.EncodeControl(msg)
	if err != nil {
		return err
	}
	if err := s.endpoint.Send(frame); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return fmt.Errorf("%w: sending %s", ErrTransportClosed, msg.ControlType())
		}
		return err
	}
	return nil
}

// armAck installs the outstanding acknowledgement slot for id.
func (s *Sender) armAck(id string) *pendingAck {
	pending := &pendingAck{id: id, ch: make(chan wire.Control, 1)}
	s.mu.Lock()
	s.pending = pending
	s.mu.Unlock()
	return pending
}

// awaitAck blocks until the matching acknowledgement arrives, the ack
// timeout elapses, or the connection closes.
func (s *Sender) awaitAck(pending *pendingAck) (wire.Control, error) {
	select {
	case msg := <-pending.ch:
		return msg, nil
	case <-s.clk.After(s.opts.AckTimeout):
		s.disarmAck(pending)
		return nil, fmt.Errorf("%w: waiting for %s", ErrAckTimeout, pending.id)
	case <-s.endpoint.Closed():
		s.disarmAck(pending)
		return nil, fmt.Errorf("%w: waiting for acknowledgement", ErrTransportClosed)
	}
}

func (s *Sender) disarmAck(pending *pendingAck) {
	s.mu.Lock()
	if s.pending == pending {
		s.pending = nil
	}
	s.mu.Unlock()
}

// handleFrame is the session frame handler: it resolves the pending
// acknowledgement slot. Anything else arriving on the sender side is
// logged and dropped.
func (s *Sender) handleFrame(frame wire.Frame) {
	if frame.Kind != wire.KindControl {
		s.logger.Debug("unexpected non-control frame on sender side", "kind", int(frame.Kind))
		return
	}
	switch msg := frame.Control.(type) {
	case *wire.RecordAck:
		s.resolveAck(msg.UUID, msg)
	case *wire.CharacterAck:
		s.resolveAck(msg.Name, msg)
	case *wire.TransferAck:
		s.resolveAck(transferAckKey, msg)
	default:
		s.logger.Debug("unexpected control frame on sender side", "type", frame.Control.ControlType())
	}
}

func (s *Sender) resolveAck(id string, msg wire.Control) {
	s.mu.Lock()
	pending := s.pending
	if pending != nil && pending.id == id {
		s.pending = nil
	} else {
		pending = nil
	}
	s.mu.Unlock()

	if pending == nil {
		// A late ack for an item already counted as failed.
		s.logger.Debug("unmatched acknowledgement dropped", "id", id)
		return
	}
	pending.ch <- msg
}

func (s *Sender) progress(p Progress) {
	if s.onProgress != nil {
		s.onProgress(p)
	}
}
