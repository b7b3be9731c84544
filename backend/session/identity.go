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

package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Identity is the account signing key. The seed alone is enough to
// reconstruct it, which is what the recovery credential carries.
type Identity struct {
	Seed []byte
	Priv ed25519.PrivateKey
	Pub  string
}

// NewIdentity generates a fresh account identity.
func NewIdentity() (*Identity, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate identity seed: %w", err)
	}
	return IdentityFromSeed(seed)
}

// IdentityFromSeed rebuilds an identity from a 32-byte seed.
func IdentityFromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{
		Seed: append([]byte(nil), seed...),
		Priv: priv,
		Pub:  hex.EncodeToString(pub),
	}, nil
}

// IdentityFromSeedHex rebuilds an identity from a hex-encoded seed, the form
// used by the IDENTITY_SEED environment variable and recovery credentials.
func IdentityFromSeedHex(seedHex string) (*Identity, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("decode identity seed: %w", err)
	}
	return IdentityFromSeed(seed)
}

// Sign signs msg with the account key.
func (id *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.Priv, msg)
}

// VerifyFrom checks sig over msg against a hex-encoded ed25519 public key.
func VerifyFrom(pubHex string, msg, sig []byte) bool {
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}
