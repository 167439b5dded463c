// Copyright 2026 The PeerSync Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"fmt"
)

// Control message type values. Each names a JSON control frame; the
// struct of the same shape carries its fields.
const (
	TypeConfirmPairing   = "confirm_pairing"
	TypeHistoryMeta      = "history_meta"
	TypeRecordStart      = "record_start"
	TypeRecordEnd        = "record_end"
	TypeRecordAck        = "record_ack"
	TypeCharactersMeta   = "characters_meta"
	TypeCharacterStart   = "character_start"
	TypeCharacterEnd     = "character_end"
	TypeCharacterAck     = "character_ack"
	TypeTransferComplete = "transfer_complete"
	TypeTransferAck      = "transfer_ack"
)

// Control is the tagged union of JSON control messages. The concrete
// types below are the only members, plus [Unknown] as the explicit
// forward-compatibility arm for type values this build does not know.
type Control interface {
	// ControlType returns the wire "type" discriminator.
	ControlType() string
}

// ConfirmPairing tells the peer that the local human has verified the
// pairing fingerprint. Data flows only after both sides have sent and
// received one of these.
type ConfirmPairing struct{}

func (ConfirmPairing) ControlType() string { return TypeConfirmPairing }

// HistoryMeta announces the number of history records about to be sent.
type HistoryMeta struct {
	Count int `json:"count"`
}

func (HistoryMeta) ControlType() string { return TypeHistoryMeta }

// RecordMeta is the scalar metadata of one generation record. UUIDs
// are stable across machines (format "nbp-<base36 timestamp>-<random>")
// and are the unit of deduplication.
type RecordMeta struct {
	UUID         string          `json:"uuid"`
	Timestamp    int64           `json:"timestamp"`
	Prompt       string          `json:"prompt"`
	Mode         string          `json:"mode"`
	Options      json.RawMessage `json:"options,omitempty"`
	Status       string          `json:"status"`
	ThinkingText string          `json:"thinkingText,omitempty"`
	Error        string          `json:"error,omitempty"`
	ImageCount   int             `json:"imageCount"`
	HasVideo     bool            `json:"hasVideo"`
}

// RecordStart opens one logical record transfer. Image and video
// payload frames for this UUID follow, then a RecordEnd.
type RecordStart struct {
	Meta RecordMeta `json:"meta"`
}

func (RecordStart) ControlType() string { return TypeRecordStart }

// RecordEnd closes the logical record opened by the matching RecordStart.
type RecordEnd struct {
	UUID string `json:"uuid"`
}

func (RecordEnd) ControlType() string { return TypeRecordEnd }

// RecordAck reports the receiver's outcome for one record. The actual
// received image count lets the sender detect partial loss even when
// persistence succeeded.
type RecordAck struct {
	UUID           string `json:"uuid"`
	ReceivedImages int    `json:"receivedImages"`
	ExpectedImages int    `json:"expectedImages"`
	HasVideo       bool   `json:"hasVideo"`
	Skipped        bool   `json:"skipped"`
}

func (RecordAck) ControlType() string { return TypeRecordAck }

// CharactersMeta announces the number of character records about to be
// sent.
type CharactersMeta struct {
	Count int `json:"count"`
}

func (CharactersMeta) ControlType() string { return TypeCharactersMeta }

// Character is the full character-library entry. Characters are keyed
// by name; Thumbnail is a small encoded preview (data URI).
type Character struct {
	Name                string `json:"name"`
	Description         string `json:"description"`
	PhysicalTraits      string `json:"physicalTraits"`
	Clothing            string `json:"clothing"`
	Accessories         string `json:"accessories"`
	DistinctiveFeatures string `json:"distinctiveFeatures"`
	Thumbnail           string `json:"thumbnail,omitempty"`
}

// CharacterStart opens one character transfer. An optional
// character_image payload frame follows, then a CharacterEnd.
type CharacterStart struct {
	Character Character `json:"character"`
}

func (CharacterStart) ControlType() string { return TypeCharacterStart }

// CharacterEnd closes the character opened by the matching CharacterStart.
type CharacterEnd struct {
	Name string `json:"name"`
}

func (CharacterEnd) ControlType() string { return TypeCharacterEnd }

// CharacterAck reports the receiver's outcome for one character.
type CharacterAck struct {
	Name    string `json:"name"`
	Skipped bool   `json:"skipped"`
}

func (CharacterAck) ControlType() string { return TypeCharacterAck }

// TransferComplete ends the batch; Total is the sender's count of
// logical items (records plus characters) it attempted.
type TransferComplete struct {
	Total int `json:"total"`
}

func (TransferComplete) ControlType() string { return TypeTransferComplete }

// TransferAck is the receiver's final reconciliation summary.
type TransferAck struct {
	ReceivedCount int `json:"receivedCount"`
	ExpectedCount int `json:"expectedCount"`
	Imported      int `json:"imported"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
}

func (TransferAck) ControlType() string { return TypeTransferAck }

// Unknown is the fallback arm for control messages whose type value
// this build does not recognize. Raw preserves the full JSON body so
// diagnostics can log it.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (u Unknown) ControlType() string { return u.Type }

// EncodeControl marshals a control message as a Json frame, splicing
// the "type" discriminator into the object.
func EncodeControl(msg Control) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", msg.ControlType(), err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("control message %s is not a JSON object: %w", msg.ControlType(), err)
	}
	typeValue, err := json.Marshal(msg.ControlType())
	if err != nil {
		return nil, err
	}
	fields["type"] = typeValue

	body, err = json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return EncodeJSON(body), nil
}

// decodeControl parses a Json frame body into the matching concrete
// control type. Returns ok=false only when the body is not a JSON
// object at all; an unrecognized type value comes back as [Unknown].
func decodeControl(body []byte) (Control, bool) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false
	}

	var msg Control
	switch envelope.Type {
	case TypeConfirmPairing:
		msg = &ConfirmPairing{}
	case TypeHistoryMeta:
		msg = &HistoryMeta{}
	case TypeRecordStart:
		msg = &RecordStart{}
	case TypeRecordEnd:
		msg = &RecordEnd{}
	case TypeRecordAck:
		msg = &RecordAck{}
	case TypeCharactersMeta:
		msg = &CharactersMeta{}
	case TypeCharacterStart:
		msg = &CharacterStart{}
	case TypeCharacterEnd:
		msg = &CharacterEnd{}
	case TypeCharacterAck:
		msg = &CharacterAck{}
	case TypeTransferComplete:
		msg = &TransferComplete{}
	case TypeTransferAck:
		msg = &TransferAck{}
	default:
		return &Unknown{Type: envelope.Type, Raw: append(json.RawMessage(nil), body...)}, true
	}

	if err := json.Unmarshal(body, msg); err != nil {
		return nil, false
	}
	return msg, true
}
