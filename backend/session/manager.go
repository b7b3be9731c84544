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
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
)

// groupKeys is the live per-group state: the current epoch, every epoch
// secret this member has held, and the membership snapshot.
type groupKeys struct {
	group   models.Group
	epoch   uint64
	secrets map[uint64][]byte
	members map[string]models.Member
}

// Manager owns group membership and key material. Epoch advance is atomic
// with respect to Encrypt/Decrypt: callers see pre- or post-advance state,
// never a torn intermediate. Epochs only move forward; old secrets are kept
// for decrypting history this member held.
type Manager struct {
	mu       sync.RWMutex
	identity *Identity
	groups   map[string]*groupKeys
}

func NewManager(identity *Identity) *Manager {
	return &Manager{
		identity: identity,
		groups:   make(map[string]*groupKeys),
	}
}

// Identity returns the current account identity, or nil before restore.
func (m *Manager) Identity() *Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// SetIdentity installs an identity, used when restoring onto a fresh device.
func (m *Manager) SetIdentity(id *Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = id
}

func newGroupID() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// CreateGroup establishes epoch 0 with the creator as sole member and admin.
func (m *Manager) CreateGroup(name string) (models.Group, error) {
	return m.createGroup(name, false)
}

// CreatePersonalGroup creates the private single-member group used for
// self-addressed drafts and uploads.
func (m *Manager) CreatePersonalGroup(name string) (models.Group, error) {
	return m.createGroup(name, true)
}

func (m *Manager) createGroup(name string, personal bool) (models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.identity == nil {
		return models.Group{}, errors.ErrNoIdentity
	}
	id, err := newGroupID()
	if err != nil {
		return models.Group{}, errors.Wrap(errors.CodeInternal, "create group id", err)
	}
	secret, err := newEpochSecret()
	if err != nil {
		return models.Group{}, errors.Wrap(errors.CodeInternal, "create group keys", err)
	}

	now := time.Now().UTC()
	g := models.Group{
		ID:         id,
		Name:       name,
		CreatedBy:  m.identity.Pub,
		CreatedAt:  now,
		IsPersonal: personal,
	}
	m.groups[id] = &groupKeys{
		group:   g,
		epoch:   0,
		secrets: map[uint64][]byte{0: secret},
		members: map[string]models.Member{
			m.identity.Pub: {Pubkey: m.identity.Pub, Role: models.RoleAdmin, JoinedAt: now},
		},
	}
	return g, nil
}

// Groups lists all groups this manager holds state for.
func (m *Manager) Groups() []models.Group {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Group, 0, len(m.groups))
	for _, gk := range m.groups {
		out = append(out, gk.group)
	}
	return out
}

// RemoveGroup drops all local state for a group (leave or evict). Groups are
// never destroyed implicitly.
func (m *Manager) RemoveGroup(groupID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, groupID)
}

// AddMember advances the epoch and ratchets the secret forward, so the new
// member can decrypt from this epoch on and nothing before it. The admin
// check runs against the current snapshot on every call.
func (m *Manager) AddMember(groupID, candidatePub string) (models.GroupState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gk, err := m.requireAdmin(groupID)
	if err != nil {
		return models.GroupState{}, err
	}
	if _, ok := gk.members[candidatePub]; ok {
		return models.GroupState{}, errors.AlreadyExists("already a member")
	}

	next, err := ratchetSecret(gk.secrets[gk.epoch], gk.epoch+1)
	if err != nil {
		return models.GroupState{}, errors.Wrap(errors.CodeInternal, "advance epoch", err)
	}
	gk.epoch++
	gk.secrets[gk.epoch] = next
	gk.members[candidatePub] = models.Member{
		Pubkey:   candidatePub,
		Role:     models.RoleMember,
		JoinedAt: time.Now().UTC(),
	}
	return gk.stateLocked(), nil
}

// RemoveMember advances the epoch with a fresh random secret, so the removed
// member cannot derive it even with all prior key material.
func (m *Manager) RemoveMember(groupID, memberPub string) (models.GroupState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gk, err := m.requireAdmin(groupID)
	if err != nil {
		return models.GroupState{}, err
	}
	if _, ok := gk.members[memberPub]; !ok {
		return models.GroupState{}, errors.ErrNotAMember
	}

	next, err := newEpochSecret()
	if err != nil {
		return models.GroupState{}, errors.Wrap(errors.CodeInternal, "advance epoch", err)
	}
	delete(gk.members, memberPub)
	gk.epoch++
	gk.secrets[gk.epoch] = next
	return gk.stateLocked(), nil
}

func (m *Manager) requireAdmin(groupID string) (*groupKeys, error) {
	if m.identity == nil {
		return nil, errors.ErrNoIdentity
	}
	gk, ok := m.groups[groupID]
	if !ok {
		return nil, errors.ErrGroupNotFound
	}
	self, ok := gk.members[m.identity.Pub]
	if !ok {
		return nil, errors.ErrNotAMember
	}
	if self.Role != models.RoleAdmin {
		return nil, errors.ErrNotAdmin
	}
	return gk, nil
}

// IsAdmin is a pure check over the current membership snapshot.
func (m *Manager) IsAdmin(groupID, pub string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gk, ok := m.groups[groupID]
	if !ok {
		return false
	}
	member, ok := gk.members[pub]
	return ok && member.Role == models.RoleAdmin
}

// IsMember reports whether pub is in the current membership snapshot.
func (m *Manager) IsMember(groupID, pub string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gk, ok := m.groups[groupID]
	if !ok {
		return false
	}
	_, ok = gk.members[pub]
	return ok
}

func aeadContext(groupID string, epoch uint64, sender string) []byte {
	aad := make([]byte, 0, len(groupID)+len(sender)+8)
	aad = append(aad, groupID...)
	aad = binary.BigEndian.AppendUint64(aad, epoch)
	aad = append(aad, sender...)
	return aad
}

// Encrypt seals a plaintext event into a signed envelope under the current
// epoch. Epoch tagging is deterministic; ciphertext is not (fresh nonce per
// call). Fails with NoActiveEpoch when the caller holds no key state.
func (m *Manager) Encrypt(groupID string, event *models.Event) (*models.Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.identity == nil {
		return nil, errors.ErrNoIdentity
	}
	gk, ok := m.groups[groupID]
	if !ok {
		return nil, errors.ErrNoActiveEpoch
	}
	if _, ok := gk.members[m.identity.Pub]; !ok {
		return nil, errors.ErrNoActiveEpoch
	}
	secret, ok := gk.secrets[gk.epoch]
	if !ok {
		return nil, errors.ErrNoActiveEpoch
	}

	if event.Pubkey == "" {
		event.Pubkey = m.identity.Pub
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.Seal()

	plaintext, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "marshal event", err)
	}
	aead, err := messageCipher(secret)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "derive message cipher", err)
	}
	nonce, err := randomNonce()
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "generate nonce", err)
	}

	env := &models.Envelope{
		GroupID:    groupID,
		Kind:       models.KindGroupEvent,
		Epoch:      gk.epoch,
		SenderPub:  m.identity.Pub,
		Nonce:      nonce,
		CreatedAt:  event.CreatedAt,
		Ciphertext: aead.Seal(nil, nonce, plaintext, aeadContext(groupID, gk.epoch, m.identity.Pub)),
	}
	env.Sig = m.identity.Sign(env.SignBytes())
	env.Seal()
	return env, nil
}

// Decrypt opens an envelope. A DecryptFailure is non-fatal and expected for
// envelopes from epochs this member never held, corrupted ciphertext, or
// foreign groups; callers filter and count, they do not crash.
func (m *Manager) Decrypt(env *models.Envelope) (*models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if env.Kind != models.KindGroupEvent {
		return nil, errors.ErrDecryptFailed
	}
	gk, ok := m.groups[env.GroupID]
	if !ok {
		return nil, errors.ErrDecryptFailed
	}
	secret, ok := gk.secrets[env.Epoch]
	if !ok {
		return nil, errors.ErrDecryptFailed
	}
	if !VerifyFrom(env.SenderPub, env.SignBytes(), env.Sig) {
		return nil, errors.ErrDecryptFailed
	}

	aead, err := messageCipher(secret)
	if err != nil {
		return nil, errors.ErrDecryptFailed
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, aeadContext(env.GroupID, env.Epoch, env.SenderPub))
	if err != nil {
		return nil, errors.ErrDecryptFailed
	}

	var event models.Event
	if err := json.Unmarshal(plaintext, &event); err != nil {
		return nil, errors.ErrDecryptFailed
	}
	if event.ComputeID() != event.ID {
		return nil, errors.ErrDecryptFailed
	}
	return &event, nil
}

// State returns the snapshot-serializable membership and epoch state.
func (m *Manager) State(groupID string) (models.GroupState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gk, ok := m.groups[groupID]
	if !ok {
		return models.GroupState{}, errors.ErrGroupNotFound
	}
	return gk.stateLocked(), nil
}

func (gk *groupKeys) stateLocked() models.GroupState {
	members := make([]models.Member, 0, len(gk.members))
	for _, member := range gk.members {
		members = append(members, member)
	}
	return models.GroupState{
		GroupID: gk.group.ID,
		Name:    gk.group.Name,
		Epoch:   gk.epoch,
		Members: members,
	}
}

// ExportSecret returns the current epoch and its secret, for welcome
// payloads and backup snapshots.
func (m *Manager) ExportSecret(groupID string) (uint64, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gk, ok := m.groups[groupID]
	if !ok {
		return 0, nil, errors.ErrGroupNotFound
	}
	secret, ok := gk.secrets[gk.epoch]
	if !ok {
		return 0, nil, errors.ErrNoActiveEpoch
	}
	return gk.epoch, append([]byte(nil), secret...), nil
}

// ImportState installs or updates group state received out of band (invite
// welcome, backup snapshot). Members are upserted, never duplicated, and an
// older snapshot never rolls an epoch back, so re-running a restore is safe.
func (m *Manager) ImportState(state models.GroupState, secret []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(secret) != secretSize {
		return errors.InvalidArg("epoch secret has wrong size")
	}

	gk, ok := m.groups[state.GroupID]
	if !ok {
		gk = &groupKeys{
			group: models.Group{
				ID:        state.GroupID,
				Name:      state.Name,
				CreatedAt: time.Now().UTC(),
			},
			secrets: make(map[uint64][]byte),
			members: make(map[string]models.Member),
		}
		m.groups[state.GroupID] = gk
	}
	if state.Epoch < gk.epoch {
		// Stale snapshot; keep the newer local state.
		return nil
	}

	gk.epoch = state.Epoch
	gk.secrets[state.Epoch] = append([]byte(nil), secret...)
	gk.members = make(map[string]models.Member, len(state.Members))
	for _, member := range state.Members {
		gk.members[member.Pubkey] = member
	}
	if state.Name != "" {
		gk.group.Name = state.Name
	}
	return nil
}
