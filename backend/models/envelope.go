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
	"encoding/binary"
	"encoding/hex"
	"time"
)

// Envelope is the signed wire form of an event. The relay sees the group id,
// epoch and envelope kind for routing; content stays opaque. The envelope id
// is derived from the ciphertext, so it never equals the inner event id.
type Envelope struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"group_id"`
	Kind       EventKind `json:"kind"`
	Epoch      uint64    `json:"epoch"`
	SenderPub  string    `json:"sender_pub"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	Sig        []byte    `json:"sig"`
	CreatedAt  time.Time `json:"created_at"`
}

// SignBytes is the byte string bound by the envelope signature.
func (env *Envelope) SignBytes() []byte {
	h := sha256.New()
	h.Write([]byte(env.GroupID))
	h.Write([]byte(env.SenderPub))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], env.Epoch)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(env.Kind))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(env.CreatedAt.Unix()))
	h.Write(buf[:])
	h.Write(env.Nonce)
	h.Write(env.Ciphertext)
	return h.Sum(nil)
}

// ComputeID derives the envelope id from the public header and ciphertext.
func (env *Envelope) ComputeID() string {
	sum := sha256.Sum256(env.SignBytes())
	return hex.EncodeToString(sum[:])
}

// Seal fills in the envelope id. Call after the signature fields are set.
func (env *Envelope) Seal() {
	env.ID = env.ComputeID()
}
