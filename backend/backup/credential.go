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

package backup

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
	"github.com/veilchat/veil/backend/session"
)

// Credential token format: a human-recognizable prefix followed by
// base64url(secret || nonce || box), where box seals the JSON bundle under a
// key derived from the leading secret. Self-contained on purpose: the token
// is the only copy, shown to the user once.
const (
	credentialPrefix  = "veilsec1"
	credentialKeyInfo = "veil/credential/v1"
	credentialSecret  = 32
)

// EncodeCredential seals a bundle into a recovery token.
func EncodeCredential(bundle models.CredentialBundle) (string, error) {
	plaintext, err := json.Marshal(bundle)
	if err != nil {
		return "", errors.Wrap(errors.CodeInternal, "marshal credential", err)
	}

	secret := make([]byte, credentialSecret)
	if _, err := rand.Read(secret); err != nil {
		return "", errors.Wrap(errors.CodeInternal, "generate credential secret", err)
	}
	aead, err := session.DeriveKey(secret, credentialKeyInfo)
	if err != nil {
		return "", errors.Wrap(errors.CodeInternal, "derive credential key", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(errors.CodeInternal, "generate nonce", err)
	}

	box := aead.Seal(nil, nonce, plaintext, []byte(credentialPrefix))
	raw := make([]byte, 0, len(secret)+len(nonce)+len(box))
	raw = append(raw, secret...)
	raw = append(raw, nonce...)
	raw = append(raw, box...)
	return credentialPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCredential opens a recovery token. Any malformed or tampered token
// fails with the same invalid-credential error.
func DecodeCredential(token string) (models.CredentialBundle, error) {
	var bundle models.CredentialBundle
	if !strings.HasPrefix(token, credentialPrefix) {
		return bundle, errors.ErrInvalidCredential
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, credentialPrefix))
	if err != nil || len(raw) < credentialSecret {
		return bundle, errors.ErrInvalidCredential
	}

	secret := raw[:credentialSecret]
	aead, err := session.DeriveKey(secret, credentialKeyInfo)
	if err != nil {
		return bundle, errors.ErrInvalidCredential
	}
	rest := raw[credentialSecret:]
	if len(rest) < aead.NonceSize() {
		return bundle, errors.ErrInvalidCredential
	}
	nonce, box := rest[:aead.NonceSize()], rest[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, box, []byte(credentialPrefix))
	if err != nil {
		return bundle, errors.ErrInvalidCredential
	}
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return bundle, errors.ErrInvalidCredential
	}
	return bundle, nil
}
