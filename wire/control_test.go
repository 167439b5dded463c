// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestControlRoundtrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Control
	}{
		{name: "confirm_pairing", msg: &ConfirmPairing{}},
		{name: "history_meta", msg: &HistoryMeta{Count: 42}},
		{
			name: "record_start",
			msg: &RecordStart{Meta: RecordMeta{
				UUID:         "nbp-lx2m9k-4f7q",
				Timestamp:    1756200000000,
				Prompt:       "a lighthouse in a storm",
				Mode:         "image",
				Options:      json.RawMessage(`{"aspectRatio":"16:9","quality":"high"}`),
				Status:       "completed",
				ThinkingText: "considering composition",
				ImageCount:   2,
				HasVideo:     true,
			}},
		},
		{name: "record_end", msg: &RecordEnd{UUID: "nbp-abc-123"}},
		{
			name: "record_ack",
			msg: &RecordAck{
				UUID:           "nbp-abc-123",
				ReceivedImages: 2,
				ExpectedImages: 2,
				HasVideo:       true,
				Skipped:        false,
			},
		},
		{name: "characters_meta", msg: &CharactersMeta{Count: 3}},
		{
			name: "character_start",
			msg: &CharacterStart{Character: Character{
				Name:                "Captain Vex",
				Description:         "weathered starship captain",
				PhysicalTraits:      "tall, silver hair",
				Clothing:            "long navy coat",
				Accessories:         "brass pocket chronometer",
				DistinctiveFeatures: "scar over left eyebrow",
				Thumbnail:           "data:image/png;base64,AAAA",
			}},
		},
		{name: "character_end", msg: &CharacterEnd{Name: "Captain Vex"}},
		{name: "character_ack", msg: &CharacterAck{Name: "Captain Vex", Skipped: true}},
		{name: "transfer_complete", msg: &TransferComplete{Total: 7}},
		{
			name: "transfer_ack",
			msg: &TransferAck{
				ReceivedCount: 7,
				ExpectedCount: 7,
				Imported:      5,
				Skipped:       2,
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			encoded, err := EncodeControl(test.msg)
			if err != nil {
				t.Fatalf("EncodeControl: %v", err)
			}
			if encoded[0] != TagJSON {
				t.Fatalf("tag byte = %#x, want %#x", encoded[0], TagJSON)
			}

			frame := Decode(encoded)
			if frame.Kind != KindControl {
				t.Fatalf("Kind = %v, want KindControl", frame.Kind)
			}
			if frame.Control.ControlType() != test.msg.ControlType() {
				t.Fatalf("type = %q, want %q", frame.Control.ControlType(), test.msg.ControlType())
			}
			if !reflect.DeepEqual(frame.Control, test.msg) {
				t.Errorf("decoded = %+v, want %+v", frame.Control, test.msg)
			}
		})
	}
}

// TestControlWireShape pins the JSON envelope: the type discriminator
// and field names are shared with the browser client and must not
// drift with Go struct renames.
func TestControlWireShape(t *testing.T) {
	encoded, err := EncodeControl(&RecordAck{
		UUID:           "nbp-abc-123",
		ReceivedImages: 1,
		ExpectedImages: 2,
	})
	if err != nil {
		t.Fatalf("EncodeControl: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(encoded[1:], &fields); err != nil {
		t.Fatalf("unmarshaling envelope: %v", err)
	}

	for _, key := range []string{"type", "uuid", "receivedImages", "expectedImages", "hasVideo", "skipped"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("envelope missing field %q", key)
		}
	}
	if fields["type"] != "record_ack" {
		t.Errorf("type = %v, want record_ack", fields["type"])
	}
}

func TestUnknownControlType(t *testing.T) {
	body := []byte(`{"type":"hologram_start","shape":"cube"}`)
	frame := Decode(EncodeJSON(body))

	if frame.Kind != KindControl {
		t.Fatalf("Kind = %v, want KindControl", frame.Kind)
	}
	unknown, ok := frame.Control.(*Unknown)
	if !ok {
		t.Fatalf("control = %T, want *Unknown", frame.Control)
	}
	if unknown.Type != "hologram_start" {
		t.Errorf("Type = %q, want hologram_start", unknown.Type)
	}
	if string(unknown.Raw) != string(body) {
		t.Errorf("Raw not preserved: %s", unknown.Raw)
	}
}
