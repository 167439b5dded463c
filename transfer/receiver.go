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

// Counters is the receiver's import tally, reported back to the sender
// in the final reconciliation frame.
type Counters struct {
	Imported int
	Skipped  int
	Failed   int
}

// ReceiverOptions configures assembly timing. Zero values take the
// defaults. The waits are grace periods, not protocol requirements: a
// record_end may overtake payload frames still working through the
// receiver, and the wait gives them time to land before the record is
// persisted incomplete.
type ReceiverOptions struct {
	// ImageWait bounds the wait for missing image payloads after
	// record_end. Default 10s.
	ImageWait time.Duration

	// VideoWait bounds the wait for missing payloads of a record that
	// carries video. Default 30s.
	VideoWait time.Duration
}

func (o ReceiverOptions) withDefaults() ReceiverOptions {
	if o.ImageWait <= 0 {
		o.ImageWait = 10 * time.Second
	}
	if o.VideoWait <= 0 {
		o.VideoWait = 30 * time.Second
	}
	return o
}

// payloadPart is one received Binary payload (or reassembled chunked
// payload) with its routing header.
type payloadPart struct {
	header wire.Header
	data   []byte
}

// recordAssembly accumulates the one in-flight record. Exactly one
// record is open at a time; payload frames referencing any other UUID
// are stale and silently discarded.
type recordAssembly struct {
	meta   wire.RecordMeta
	images map[int]payloadPart
	video  *payloadPart

	// closing is set when record_end has arrived but declared parts
	// are still missing. The assembly finalizes the moment the counts
	// are satisfied, or when the grace timer fires.
	closing     bool
	finalized   bool
	cancelTimer chan struct{}
}

// satisfied reports whether every part the metadata declared has
// arrived.
func (a *recordAssembly) satisfied() bool {
	if len(a.images) < a.meta.ImageCount {
		return false
	}
	if a.meta.HasVideo && a.video == nil {
		return false
	}
	return true
}

// characterAssembly accumulates the one in-flight character. The image
// payload is optional and not announced in advance, so character_end
// finalizes immediately with whatever arrived.
type characterAssembly struct {
	character wire.Character
	image     *payloadPart
}

// chunkAssembly reassembles one chunked payload. Chunked frames carry
// their own UUID routing, so a chunk stream may interleave with Binary
// frames of the same record.
type chunkAssembly struct {
	header   wire.Header
	parts    [][]byte
	received int
}

// Receiver consumes the peer's frames, assembles records and
// characters, persists them idempotently, and acknowledges each one.
type Receiver struct {
	session     *session.Session
	library     store.Library
	blobs       store.BlobStore
	thumbnailer store.Thumbnailer
	clk         clock.Clock
	logger      *slog.Logger
	opts        ReceiverOptions
	onProgress  func(Progress)

	mu            sync.Mutex
	record        *recordAssembly
	character     *characterAssembly
	chunks        map[string]*chunkAssembly
	counters      Counters
	expectedItems int
	receivedItems int
	historyTotal  int
	historyDone   int
	charTotal     int
	charDone      int

	// done is closed after the final reconciliation frame is sent.
	done chan struct{}
	// final holds the reconciliation summary once done is closed.
	final wire.TransferAck
}

// NewReceiver wires a receiver engine to a paired session. thumbnailer
// and onProgress may be nil.
func NewReceiver(sess *session.Session, library store.Library, blobs store.BlobStore, thumbnailer store.Thumbnailer, opts ReceiverOptions, clk clock.Clock, logger *slog.Logger, onProgress func(Progress)) *Receiver {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Receiver{
		session:     sess,
		library:     library,
		blobs:       blobs,
		thumbnailer: thumbnailer,
		clk:         clk,
		logger:      logger,
		opts:        opts.withDefaults(),
		onProgress:  onProgress,
		chunks:      make(map[string]*chunkAssembly),
		done:        make(chan struct{}),
	}
}

// Run registers the engine with the session and blocks until the
// sender's completion frame has been reconciled, the connection
// closes, or ctx ends.
func (r *Receiver) Run(ctx context.Context) (Counters, error) {
	r.session.SetFrameHandler(r.HandleFrame)

	select {
	case <-r.session.Transferring():
	case <-ctx.Done():
		return Counters{}, ctx.Err()
	}
	endpoint := r.session.Endpoint()

	select {
	case <-r.done:
		r.mu.Lock()
		counters := r.counters
		r.mu.Unlock()
		return counters, nil
	case <-endpoint.Closed():
		r.mu.Lock()
		counters := r.counters
		clear(r.chunks)
		r.mu.Unlock()
		return counters, fmt.Errorf("%w: before transfer completed", ErrTransportClosed)
	case <-ctx.Done():
		return Counters{}, ctx.Err()
	}
}

// Summary returns the final reconciliation once Run has finished.
func (r *Receiver) Summary() wire.TransferAck {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final
}

// HandleFrame consumes one decoded inbound frame. It is called from
// the session's read loop and must not block on further inbound
// frames: a record whose parts are still in flight is finalized later,
// by the part that satisfies it or by the grace timer.
func (r *Receiver) HandleFrame(frame wire.Frame) {
	switch frame.Kind {
	case wire.KindControl:
		r.handleControl(frame.Control)
	case wire.KindBinary:
		r.handleBinary(frame.Header, frame.Payload)
	case wire.KindChunk:
		r.handleChunk(frame)
	case wire.KindOpaque:
		r.logger.Debug("opaque frame dropped", "bytes", len(frame.Payload))
	}
}

func (r *Receiver) handleControl(msg wire.Control) {
	switch msg := msg.(type) {
	case *wire.HistoryMeta:
		r.mu.Lock()
		r.historyTotal = msg.Count
		r.expectedItems += msg.Count
		r.mu.Unlock()
		r.logger.Info("history transfer announced", "records", msg.Count)

	case *wire.RecordStart:
		r.openRecord(msg.Meta)

	case *wire.RecordEnd:
		r.closeRecord(msg.UUID)

	case *wire.CharactersMeta:
		r.mu.Lock()
		r.charTotal = msg.Count
		r.expectedItems += msg.Count
		r.mu.Unlock()
		r.logger.Info("character transfer announced", "characters", msg.Count)

	case *wire.CharacterStart:
		r.mu.Lock()
		r.character = &characterAssembly{character: msg.Character}
		r.mu.Unlock()

	case *wire.CharacterEnd:
		r.closeCharacter(msg.Name)

	case *wire.TransferComplete:
		r.reconcile(msg.Total)

	case *wire.Unknown:
		r.logger.Debug("unknown control frame dropped", "type", msg.Type)

	default:
		r.logger.Debug("unexpected control frame on receiver side", "type", msg.ControlType())
	}
}

// openRecord starts a fresh assembly, discarding any unfinalized
// predecessor (which the sender has already given up on).
func (r *Receiver) openRecord(meta wire.RecordMeta) {
	r.mu.Lock()
	if r.record != nil && !r.record.finalized {
		r.logger.Warn("record_start arrived with an assembly still open",
			"open", r.record.meta.UUID,
			"new", meta.UUID,
		)
		r.stopTimerLocked(r.record)
	}
	r.record = &recordAssembly{
		meta:   meta,
		images: make(map[int]payloadPart),
	}
	r.mu.Unlock()
}

// closeRecord handles record_end: finalize now if every declared part
// arrived, otherwise arm the grace timer and finalize on satisfaction
// or expiry.
func (r *Receiver) closeRecord(uuid string) {
	r.mu.Lock()
	assembly := r.record
	if assembly == nil || assembly.meta.UUID != uuid || assembly.finalized {
		r.mu.Unlock()
		r.logger.Debug("record_end for unknown record dropped", "uuid", uuid)
		return
	}
	if assembly.satisfied() {
		r.mu.Unlock()
		r.finalizeRecord(assembly)
		return
	}

	assembly.closing = true
	assembly.cancelTimer = make(chan struct{})
	wait := r.opts.ImageWait
	if assembly.meta.HasVideo {
		wait = r.opts.VideoWait
	}
	r.mu.Unlock()

	r.logger.Debug("record_end before all parts arrived, waiting",
		"uuid", uuid,
		"images", len(assembly.images),
		"expected", assembly.meta.ImageCount,
		"wait", wait,
	)
	go func() {
		select {
		case <-r.clk.After(wait):
			r.finalizeRecord(assembly)
		case <-assembly.cancelTimer:
		}
	}()
}

func (r *Receiver) handleBinary(header wire.Header, payload []byte) {
	switch header.Type {
	case wire.PayloadRecordImage:
		r.addRecordPart(header, payload)
	case wire.PayloadRecordVideo:
		r.addRecordPart(header, payload)
	case wire.PayloadCharacterImage:
		r.mu.Lock()
		assembly := r.character
		if assembly == nil || assembly.character.Name != header.Name {
			r.mu.Unlock()
			r.logger.Debug("character image for unknown character dropped", "name", header.Name)
			return
		}
		assembly.image = &payloadPart{header: header, data: payload}
		r.mu.Unlock()
	default:
		r.logger.Debug("binary frame with unknown payload type dropped", "type", header.Type)
	}
}

// addRecordPart routes an image or video payload into the open
// assembly. Payloads for any other UUID are stale — a record_end
// already closed their window — and are silently discarded.
func (r *Receiver) addRecordPart(header wire.Header, payload []byte) {
	r.mu.Lock()
	assembly := r.record
	if assembly == nil || assembly.meta.UUID != header.UUID || assembly.finalized {
		r.mu.Unlock()
		r.logger.Debug("payload for unknown record dropped",
			"uuid", header.UUID,
			"type", header.Type,
		)
		return
	}

	part := payloadPart{header: header, data: payload}
	switch header.Type {
	case wire.PayloadRecordImage:
		assembly.images[header.Index] = part
	case wire.PayloadRecordVideo:
		assembly.video = &part
	}

	ready := assembly.closing && assembly.satisfied()
	if ready {
		r.stopTimerLocked(assembly)
	}
	r.mu.Unlock()

	if ready {
		r.finalizeRecord(assembly)
	}
}

func (r *Receiver) handleChunk(frame wire.Frame) {
	header := frame.Header
	r.mu.Lock()
	entry, ok := r.chunks[header.UUID]
	if !ok {
		if frame.TotalChunks == 0 {
			r.mu.Unlock()
			return
		}
		entry = &chunkAssembly{
			header: header,
			parts:  make([][]byte, frame.TotalChunks),
		}
		r.chunks[header.UUID] = entry
	}
	if int(frame.ChunkIndex) >= len(entry.parts) || entry.parts[frame.ChunkIndex] != nil {
		r.mu.Unlock()
		r.logger.Debug("chunk out of range or duplicate dropped",
			"uuid", header.UUID,
			"index", frame.ChunkIndex,
		)
		return
	}
	entry.parts[frame.ChunkIndex] = frame.Payload
	entry.received++
	complete := entry.received == len(entry.parts)
	if complete {
		delete(r.chunks, header.UUID)
	}
	r.mu.Unlock()

	if !complete {
		return
	}

	size := 0
	for _, part := range entry.parts {
		size += len(part)
	}
	payload := make([]byte, 0, size)
	for _, part := range entry.parts {
		payload = append(payload, part...)
	}
	r.handleBinary(entry.header, payload)
}

// finalizeRecord persists the assembled record and acknowledges it.
// Runs at most once per assembly.
func (r *Receiver) finalizeRecord(assembly *recordAssembly) {
	r.mu.Lock()
	if assembly.finalized {
		r.mu.Unlock()
		return
	}
	assembly.finalized = true
	receivedImages := len(assembly.images)
	// Any half-assembled chunk buffer for this record is now stale;
	// the window for its remaining chunks closed with the record.
	delete(r.chunks, assembly.meta.UUID)
	r.mu.Unlock()

	ctx := context.Background()
	uuid := assembly.meta.UUID

	skipped := false
	exists, err := r.library.RecordExists(ctx, uuid)
	if err != nil {
		r.logger.Error("existence check failed", "uuid", uuid, "error", err)
		r.countFailed()
	} else if exists {
		skipped = true
		r.logger.Info("record already present, skipped", "uuid", uuid)
		r.mu.Lock()
		r.counters.Skipped++
		r.mu.Unlock()
	} else if err := r.persistRecord(ctx, assembly); err != nil {
		r.logger.Error("record import failed", "uuid", uuid, "error", err)
		if removeErr := r.blobs.RemoveAll(recordBlobPrefix(uuid)); removeErr != nil {
			r.logger.Warn("cleanup of failed import left blobs behind",
				"uuid", uuid,
				"error", removeErr,
			)
		}
		r.countFailed()
	} else {
		r.mu.Lock()
		r.counters.Imported++
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.receivedItems++
	r.historyDone++
	done, total := r.historyDone, r.historyTotal
	r.mu.Unlock()
	r.progress(Progress{Phase: "history", Done: done, Total: total, Item: uuid})

	r.sendControl(&wire.RecordAck{
		UUID:           uuid,
		ReceivedImages: receivedImages,
		ExpectedImages: assembly.meta.ImageCount,
		HasVideo:       assembly.video != nil,
		Skipped:        skipped,
	})
}

// persistRecord writes payload blobs and then the metadata row. The
// blob writes happen first so a metadata row never points at missing
// bytes.
func (r *Receiver) persistRecord(ctx context.Context, assembly *recordAssembly) error {
	record := store.Record{
		UUID:         assembly.meta.UUID,
		Timestamp:    assembly.meta.Timestamp,
		Prompt:       assembly.meta.Prompt,
		Mode:         assembly.meta.Mode,
		Options:      assembly.meta.Options,
		Status:       assembly.meta.Status,
		ThinkingText: assembly.meta.ThinkingText,
		Error:        assembly.meta.Error,
		ImageCount:   assembly.meta.ImageCount,
		HasVideo:     assembly.meta.HasVideo,
	}

	for index, part := range assembly.images {
		path := recordImagePath(record.UUID, index, part.header.MimeType)
		if err := r.blobs.Write(path, part.data); err != nil {
			return fmt.Errorf("writing image %d: %w", index, err)
		}
		record.Images = append(record.Images, store.RecordImage{
			Index:    index,
			Width:    part.header.Width,
			Height:   part.header.Height,
			Size:     int64(len(part.data)),
			MimeType: part.header.MimeType,
			Path:     path,
		})
	}

	if assembly.video != nil {
		path := recordVideoPath(record.UUID, assembly.video.header.MimeType)
		if err := r.blobs.Write(path, assembly.video.data); err != nil {
			return fmt.Errorf("writing video: %w", err)
		}
		record.Video = &store.RecordVideo{
			Width:    assembly.video.header.Width,
			Height:   assembly.video.header.Height,
			Size:     int64(len(assembly.video.data)),
			MimeType: assembly.video.header.MimeType,
			Path:     path,
		}
	}

	if _, err := r.library.CreateRecord(ctx, &record); err != nil {
		return err
	}
	return nil
}

// closeCharacter persists the in-flight character and acknowledges it.
// The image payload is optional and unannounced, so there is no grace
// wait: the sender settles before character_end.
func (r *Receiver) closeCharacter(name string) {
	r.mu.Lock()
	assembly := r.character
	r.character = nil
	r.mu.Unlock()

	if assembly == nil || assembly.character.Name != name {
		r.logger.Debug("character_end for unknown character dropped", "name", name)
		return
	}

	ctx := context.Background()
	skipped := false

	exists, err := r.library.CharacterExists(ctx, name)
	if err != nil {
		r.logger.Error("existence check failed", "name", name, "error", err)
		r.countFailed()
	} else if exists {
		skipped = true
		r.logger.Info("character already present, skipped", "name", name)
		r.mu.Lock()
		r.counters.Skipped++
		r.mu.Unlock()
	} else if err := r.persistCharacter(ctx, assembly); err != nil {
		r.logger.Error("character import failed", "name", name, "error", err)
		r.countFailed()
	} else {
		r.mu.Lock()
		r.counters.Imported++
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.receivedItems++
	r.charDone++
	done, total := r.charDone, r.charTotal
	r.mu.Unlock()
	r.progress(Progress{Phase: "characters", Done: done, Total: total, Item: name})

	r.sendControl(&wire.CharacterAck{Name: name, Skipped: skipped})
}

func (r *Receiver) persistCharacter(ctx context.Context, assembly *characterAssembly) error {
	character := store.Character{
		Name:                assembly.character.Name,
		Description:         assembly.character.Description,
		PhysicalTraits:      assembly.character.PhysicalTraits,
		Clothing:            assembly.character.Clothing,
		Accessories:         assembly.character.Accessories,
		DistinctiveFeatures: assembly.character.DistinctiveFeatures,
		Thumbnail:           assembly.character.Thumbnail,
	}

	if assembly.image != nil {
		path := characterImagePath(character.Name)
		if err := r.blobs.Write(path, assembly.image.data); err != nil {
			return fmt.Errorf("writing character image: %w", err)
		}
		if character.Thumbnail == "" && r.thumbnailer != nil {
			thumbnail, err := r.thumbnailer.Thumbnail(assembly.image.data, assembly.image.header.MimeType)
			if err != nil {
				r.logger.Warn("thumbnail generation failed",
					"name", character.Name,
					"error", err,
				)
			} else {
				character.Thumbnail = thumbnail
			}
		}
	}

	return r.library.CreateCharacter(ctx, &character)
}

// reconcile answers transfer_complete with the final tally and ends
// the run.
func (r *Receiver) reconcile(senderTotal int) {
	r.mu.Lock()
	r.final = wire.TransferAck{
		ReceivedCount: r.receivedItems,
		ExpectedCount: senderTotal,
		Imported:      r.counters.Imported,
		Skipped:       r.counters.Skipped,
		Failed:        r.counters.Failed,
	}
	final := r.final
	expected := r.expectedItems
	r.mu.Unlock()

	if final.ReceivedCount != senderTotal {
		r.logger.Warn("reconciliation count mismatch",
			"senderTotal", senderTotal,
			"received", final.ReceivedCount,
			"announced", expected,
		)
	}
	r.logger.Info("transfer complete",
		"imported", final.Imported,
		"skipped", final.Skipped,
		"failed", final.Failed,
		"received", final.ReceivedCount,
	)

	r.sendControl(&final)
	close(r.done)
}

func (r *Receiver) countFailed() {
	r.mu.Lock()
	r.counters.Failed++
	r.mu.Unlock()
}

func (r *Receiver) stopTimerLocked(assembly *recordAssembly) {
	if assembly.cancelTimer != nil {
		close(assembly.cancelTimer)
		assembly.cancelTimer = nil
	}
}

// sendControl writes a control frame, logging rather than failing on a
// closed connection: the sender side decides batch abort, the receiver
// just stops hearing frames.
func (r *Receiver) sendControl(msg wire.Control) {
	frame, err := wire.EncodeControl(msg)
	if err != nil {
		r.logger.Error("encoding control frame", "type", msg.ControlType(), "error", err)
		return
	}
	endpoint := r.session.Endpoint()
	if endpoint == nil {
		return
	}
	if err := endpoint.Send(frame); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			r.logger.Warn("connection closed before acknowledgement could be sent",
				"type", msg.ControlType(),
			)
			return
		}
		r.logger.Error("sending control frame", "type", msg.ControlType(), "error", err)
	}
}

func (r *Receiver) progress(p Progress) {
	if r.onProgress != nil {
		r.onProgress(p)
	}
}
