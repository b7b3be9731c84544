// Copyright (C) 2025 veil.chat <dev@veil.chat>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// EventKind discriminates application events and relay-level envelope kinds.
// The sync engine switches exhaustively over these; an unrecognized kind is
// counted, never silently dropped.
type EventKind int

const (
	KindUnknown     EventKind = 0
	KindMessage     EventKind = 1
	KindReaction    EventKind = 7
	KindChannelMeta EventKind = 41

	// Envelope-level kinds, visible to the relay for routing. All encrypted
	// group traffic shares KindGroupEvent so the relay cannot distinguish a
	// message from a reaction.
	KindGroupEvent   EventKind = 445
	KindAnnouncement EventKind = 140
	KindSnapshot     EventKind = 1060
)

// Tag is a key/value pair attached to an event. Well-known keys:
// "e" target/reply event id, "g" external group id, "t" hashtag,
// "q" quoted event id, "import" original-author display label.
type Tag [2]string

// Event is a plaintext application event. Two events with identical canonical
// fields are the same event: ID is content-addressed.
type Event struct {
	ID        string    `json:"id"`
	Pubkey    string    `json:"pubkey"`
	CreatedAt time.Time `json:"created_at"`
	Kind      EventKind `json:"kind"`
	Tags      []Tag     `json:"tags"`
	Content   string    `json:"content"`
}

// ComputeID returns the lowercase hex sha256 of the canonical serialization
// [0, pubkey, created_at_unix, kind, tags, content].
func (e *Event) ComputeID() string {
	tags := e.Tags
	if tags == nil {
		tags = []Tag{}
	}
	canonical := []interface{}{0, e.Pubkey, e.CreatedAt.Unix(), int(e.Kind), tags, e.Content}
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Seal fills in the content-addressed ID. Call after all other fields are set.
func (e *Event) Seal() {
	e.ID = e.ComputeID()
}

// TagValue returns the value of the first tag with the given key.
func (e *Event) TagValue(key string) (string, bool) {
	for _, t := range e.Tags {
		if t[0] == key {
			return t[1], true
		}
	}
	return "", false
}

// TargetID returns the event id a reaction or reply points at ("e" tag).
func (e *Event) TargetID() (string, bool) {
	return e.TagValue("e")
}

// ImportedAuthor returns the original author label carried by an imported
// event. Imported authors have no member keys; the label is display metadata.
func (e *Event) ImportedAuthor() (string, bool) {
	return e.TagValue("import")
}

// IsLike reports the polarity of a reaction event: content "+" is a like,
// anything else ("-" by convention) retracts it.
func (e *Event) IsLike() bool {
	return e.Content == "+"
}
