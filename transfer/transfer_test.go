// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/atelier-foundation/peersync/lib/testutil"
	"github.com/atelier-foundation/peersync/session"
	"github.com/atelier-foundation/peersync/store"
	"github.com/atelier-foundation/peersync/transport"
)

// memoryLibrary is an in-memory store.Library for engine tests.
type memoryLibrary struct {
	mu         sync.Mutex
	records    map[string]*store.Record
	order      []string
	characters map[string]*store.Character
	nextID     int64

	// failCreates makes every CreateRecord/CreateCharacter fail, for
	// exercising the failed counter.
	failCreates bool
}

func newMemoryLibrary() *memoryLibrary {
	return &memoryLibrary{
		records:    make(map[string]*store.Record),
		characters: make(map[string]*store.Character),
	}
}

func (l *memoryLibrary) Records(ctx context.Context) ([]store.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	records := make([]store.Record, 0, len(l.order))
	for _, uuid := range l.order {
		records = append(records, *l.records[uuid])
	}
	return records, nil
}

func (l *memoryLibrary) RecordExists(ctx context.Context, uuid string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.records[uuid]
	return ok, nil
}

func (l *memoryLibrary) CreateRecord(ctx context.Context, record *store.Record) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failCreates {
		return 0, fmt.Errorf("library unavailable")
	}
	if _, ok := l.records[record.UUID]; ok {
		return 0, fmt.Errorf("uuid %s already present", record.UUID)
	}
	l.nextID++
	stored := *record
	stored.ID = l.nextID
	l.records[record.UUID] = &stored
	l.order = append(l.order, record.UUID)
	return l.nextID, nil
}

func (l *memoryLibrary) Characters(ctx context.Context) ([]store.Character, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var characters []store.Character
	for _, character := range l.characters {
		characters = append(characters, *character)
	}
	return characters, nil
}

func (l *memoryLibrary) CharacterExists(ctx context.Context, name string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.characters[name]
	return ok, nil
}

func (l *memoryLibrary) CreateCharacter(ctx context.Context, character *store.Character) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failCreates {
		return fmt.Errorf("library unavailable")
	}
	if _, ok := l.characters[character.Name]; ok {
		return fmt.Errorf("character %q already present", character.Name)
	}
	stored := *character
	l.characters[character.Name] = &stored
	return nil
}

func (l *memoryLibrary) record(t *testing.T, uuid string) store.Record {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[uuid]
	if !ok {
		t.Fatalf("record %s not in library", uuid)
	}
	return *record
}

// memoryBlobs is an in-memory store.BlobStore.
type memoryBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{data: make(map[string][]byte)}
}

func (b *memoryBlobs) Write(path string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	b.data[path] = stored
	return nil
}

func (b *memoryBlobs) Read(path string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[path]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", path)
	}
	return data, nil
}

func (b *memoryBlobs) Exists(path string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[path]
	return ok, nil
}

func (b *memoryBlobs) RemoveAll(prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for path := range b.data {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			delete(b.data, path)
		}
	}
	return nil
}

// confirmedSessions returns a sender/receiver session pair that has
// completed the pairing handshake on both sides.
func confirmedSessions(t *testing.T) (sender, receiver *session.Session) {
	t.Helper()
	factory := transport.NewMemoryFactory()

	sender = session.New(factory, session.Options{}, nil, nil, nil)
	receiver = session.New(factory, session.Options{}, nil, nil, nil)
	t.Cleanup(sender.Close)
	t.Cleanup(receiver.Close)

	senderErr := make(chan error, 1)
	go func() { senderErr <- sender.StartSender(context.Background()) }()

	testutil.RequireEventually(t, func() bool {
		return sender.Status() == session.StatusWaiting
	}, 5*time.Second, "sender waiting")

	if err := receiver.Connect(context.Background(), sender.Code()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := testutil.RequireReceive(t, senderErr, 5*time.Second, "StartSender"); err != nil {
		t.Fatalf("StartSender: %v", err)
	}

	if err := sender.ConfirmPairing(); err != nil {
		t.Fatalf("sender ConfirmPairing: %v", err)
	}
	if err := receiver.ConfirmPairing(); err != nil {
		t.Fatalf("receiver ConfirmPairing: %v", err)
	}
	testutil.RequireClosed(t, sender.Transferring(), 5*time.Second, "sender transfer gate")
	testutil.RequireClosed(t, receiver.Transferring(), 5*time.Second, "receiver transfer gate")
	return sender, receiver
}
