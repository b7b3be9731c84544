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
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
	"github.com/veilchat/veil/backend/relay"
	"github.com/veilchat/veil/backend/session"
	"github.com/veilchat/veil/backend/storage"
)

// accountKeyInfo labels the HKDF expansion of the identity seed into the
// account key that encrypts snapshot payloads. Changing it invalidates every
// existing snapshot.
const accountKeyInfo = "veil/backup/v1"

const fetchTimeout = 15 * time.Second

// Store is what the backup service needs from local storage.
type Store interface {
	storage.GroupStore
	storage.BackupStore
}

// Service publishes encrypted group-state snapshots to the relay and rebuilds
// an account from them on a fresh device. Snapshots are encrypted under the
// account key, so the relay stores them without learning anything.
type Service struct {
	session *session.Manager
	relay   relay.Relay
	store   Store
}

func NewService(sess *session.Manager, rel relay.Relay, store Store) *Service {
	return &Service{session: sess, relay: rel, store: store}
}

func (s *Service) accountCipher(id *session.Identity) (cipher.AEAD, error) {
	return session.DeriveKey(id.Seed, accountKeyInfo)
}

// Snapshot publishes the current state of one group, encrypted under the
// account key. If the state hash matches the last snapshot, nothing is
// published and ErrAlreadyBackedUp is returned alongside the existing record.
func (s *Service) Snapshot(ctx context.Context, groupID string) (*models.BackupRecord, error) {
	id := s.session.Identity()
	if id == nil {
		return nil, errors.ErrNoIdentity
	}

	state, err := s.session.State(groupID)
	if err != nil {
		return nil, err
	}
	hash := state.Hash()

	if rec, err := s.store.GetBackupRecord(groupID); err == nil && rec != nil && rec.StateHash == hash {
		return rec, errors.ErrAlreadyBackedUp
	}

	_, secret, err := s.session.ExportSecret(groupID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	plaintext, err := json.Marshal(models.SnapshotPayload{
		State:       state,
		EpochSecret: secret,
		TakenAt:     now,
	})
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "marshal snapshot", err)
	}

	aead, err := s.accountCipher(id)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "derive account key", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "generate nonce", err)
	}

	env := &models.Envelope{
		GroupID:    groupID,
		Kind:       models.KindSnapshot,
		Epoch:      state.Epoch,
		SenderPub:  id.Pub,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, []byte(groupID)),
		CreatedAt:  now,
	}
	env.Sig = id.Sign(env.SignBytes())
	env.Seal()

	if err := s.relay.Publish(ctx, env); err != nil {
		return nil, errors.Wrap(errors.CodeNotConnected, "publish snapshot", err)
	}

	rec := models.BackupRecord{
		GroupID:         groupID,
		StateHash:       hash,
		SnapshotEventID: env.ID,
		SnapshotAt:      now,
	}
	if err := s.store.SaveBackupRecord(rec); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "record snapshot", err)
	}
	return &rec, nil
}

// ManualBackup snapshots every group the session knows. Groups whose state is
// unchanged are skipped and count as succeeded. A mix of outcomes surfaces as
// a partial failure; nothing stops halfway.
func (s *Service) ManualBackup(ctx context.Context) error {
	groups := s.session.Groups()
	var causes []error
	succeeded := 0
	for _, g := range groups {
		_, err := s.Snapshot(ctx, g.ID)
		if err != nil && errors.CodeOf(err) != errors.CodeAlreadyExists {
			causes = append(causes, err)
			continue
		}
		succeeded++
	}
	if len(causes) > 0 {
		return errors.NewPartialFailure(succeeded, len(causes), causes)
	}
	return nil
}

// Status derives the backup state: newest snapshot time across groups, and
// how many groups have membership changes not yet snapshotted.
func (s *Service) Status() (models.BackupStatus, error) {
	var status models.BackupStatus
	for _, g := range s.session.Groups() {
		state, err := s.session.State(g.ID)
		if err != nil {
			continue
		}
		rec, err := s.store.GetBackupRecord(g.ID)
		if err != nil {
			return status, errors.Wrap(errors.CodeInternal, "load backup record", err)
		}
		if rec == nil || rec.StateHash != state.Hash() {
			status.PendingGroups++
			continue
		}
		if status.LastSnapshotAt == nil || rec.SnapshotAt.After(*status.LastSnapshotAt) {
			at := rec.SnapshotAt
			status.LastSnapshotAt = &at
		}
	}
	return status, nil
}

// GenerateCredential snapshots everything and returns a self-contained
// recovery token: identity seed plus snapshot references, sealed so only the
// token holder can read it. The token is the whole secret; it is shown once
// and never stored.
func (s *Service) GenerateCredential(ctx context.Context) (string, error) {
	id := s.session.Identity()
	if id == nil {
		return "", errors.ErrNoIdentity
	}
	if err := s.ManualBackup(ctx); err != nil {
		return "", err
	}

	bundle := models.CredentialBundle{IdentitySeed: hex.EncodeToString(id.Seed)}
	for _, g := range s.session.Groups() {
		rec, err := s.store.GetBackupRecord(g.ID)
		if err != nil || rec == nil {
			continue
		}
		bundle.Groups = append(bundle.Groups, models.CredentialGroupRef{
			GroupID:         g.ID,
			SnapshotEventID: rec.SnapshotEventID,
		})
	}
	return EncodeCredential(bundle)
}

// Restore rebuilds the account from a recovery credential: the identity is
// reconstructed from the seed, each referenced snapshot is fetched from the
// relay, decrypted under the account key, and imported. Importing is
// idempotent, so restoring twice converges on the same state. Returns the
// number of groups restored.
func (s *Service) Restore(ctx context.Context, token string) (int, error) {
	bundle, err := DecodeCredential(token)
	if err != nil {
		return 0, err
	}
	id, err := session.IdentityFromSeedHex(bundle.IdentitySeed)
	if err != nil {
		return 0, errors.ErrInvalidCredential
	}
	s.session.SetIdentity(id)

	aead, err := s.accountCipher(id)
	if err != nil {
		return 0, errors.Wrap(errors.CodeInternal, "derive account key", err)
	}

	var causes []error
	restored := 0
	for _, ref := range bundle.Groups {
		if err := s.restoreGroup(ctx, id, aead, ref); err != nil {
			causes = append(causes, err)
			continue
		}
		restored++
	}
	if len(causes) > 0 {
		return restored, errors.NewPartialFailure(restored, len(causes), causes)
	}
	return restored, nil
}

func (s *Service) restoreGroup(ctx context.Context, id *session.Identity, aead cipher.AEAD, ref models.CredentialGroupRef) error {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	page, err := s.relay.FetchPage(fetchCtx, relay.Filter{
		GroupID: ref.GroupID,
		Author:  id.Pub,
		Kinds:   []models.EventKind{models.KindSnapshot},
	}, time.Now().UTC().Add(time.Minute), 50)
	if err != nil {
		return errors.Wrap(errors.CodeNotConnected, "fetch snapshots", err)
	}

	// Prefer the exact snapshot the credential references; fall back to the
	// newest one we can verify, in case newer snapshots superseded it.
	var env *models.Envelope
	for _, candidate := range page {
		if !session.VerifyFrom(candidate.SenderPub, candidate.SignBytes(), candidate.Sig) {
			continue
		}
		if candidate.ID == ref.SnapshotEventID {
			env = candidate
			break
		}
		if env == nil || candidate.CreatedAt.After(env.CreatedAt) {
			env = candidate
		}
	}
	if env == nil {
		return errors.NotFound("no snapshot on relay for group " + ref.GroupID)
	}

	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(ref.GroupID))
	if err != nil {
		return errors.ErrDecryptFailed
	}
	var payload models.SnapshotPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return errors.Wrap(errors.CodeInternal, "decode snapshot", err)
	}
	if payload.State.GroupID != ref.GroupID {
		return errors.InvalidArg("snapshot does not match its group id")
	}

	if err := s.session.ImportState(payload.State, payload.EpochSecret); err != nil {
		return err
	}
	if err := s.store.SaveGroup(models.Group{
		ID:        ref.GroupID,
		Name:      payload.State.Name,
		CreatedAt: payload.TakenAt,
	}); err != nil {
		return errors.Wrap(errors.CodeInternal, "save group", err)
	}
	return s.store.SaveBackupRecord(models.BackupRecord{
		GroupID:         ref.GroupID,
		StateHash:       payload.State.Hash(),
		SnapshotEventID: env.ID,
		SnapshotAt:      env.CreatedAt,
	})
}
