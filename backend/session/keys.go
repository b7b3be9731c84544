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
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const secretSize = 32

// Epoch key schedule. Joins ratchet the old secret forward through HKDF, so
// a new member holding epoch n cannot derive any epoch before n. Removals
// replace the secret with fresh randomness, so a removed member cannot derive
// epoch n+1 from any amount of retained material.

func newEpochSecret() ([]byte, error) {
	secret := make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate epoch secret: %w", err)
	}
	return secret, nil
}

func ratchetSecret(secret []byte, nextEpoch uint64) ([]byte, error) {
	info := fmt.Sprintf("veil/epoch/%d", nextEpoch)
	out := make([]byte, secretSize)
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("ratchet epoch secret: %w", err)
	}
	return out, nil
}

// messageCipher derives the per-epoch AEAD from an epoch secret.
func messageCipher(secret []byte) (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, secret, nil, []byte("veil/msg/v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive message key: %w", err)
	}
	return chacha20poly1305.New(key)
}

// DeriveKey expands a root secret into an AEAD key for a named purpose.
// Used by the backup service for the account key and credential boxes.
func DeriveKey(secret []byte, info string) (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key %q: %w", info, err)
	}
	return chacha20poly1305.New(key)
}

func randomNonce() ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}
