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

package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/veilchat/veil/backend/models"
)

// MemoryStore is an in-process Store used by tests and by ephemeral mode,
// where nothing should touch disk. Semantics match the postgres store:
// upserts everywhere, first-seen-wins for timeline events.
type MemoryStore struct {
	mu       sync.Mutex
	groups   map[string]models.Group
	events   map[string]map[string]models.Event
	channels map[string]map[string]models.ChannelMeta
	invites  map[string]models.Invite
	backups  map[string]models.BackupRecord
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups:   make(map[string]models.Group),
		events:   make(map[string]map[string]models.Event),
		channels: make(map[string]map[string]models.ChannelMeta),
		invites:  make(map[string]models.Invite),
		backups:  make(map[string]models.BackupRecord),
	}
}

func (s *MemoryStore) SaveGroup(g models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = g
	return nil
}

func (s *MemoryStore) GetGroup(groupID string) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (s *MemoryStore) ListGroups() ([]models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) DeleteGroup(groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupID)
	return nil
}

func (s *MemoryStore) SaveEvent(groupID string, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.events[groupID]
	if !ok {
		byID = make(map[string]models.Event)
		s.events[groupID] = byID
	}
	if _, seen := byID[event.ID]; !seen {
		byID[event.ID] = event
	}
	return nil
}

func (s *MemoryStore) GetEvents(groupID string, before time.Time, limit int) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, event := range s.events[groupID] {
		if event.CreatedAt.Before(before) {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveChannelMeta(meta models.ChannelMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byChannel, ok := s.channels[meta.GroupID]
	if !ok {
		byChannel = make(map[string]models.ChannelMeta)
		s.channels[meta.GroupID] = byChannel
	}
	byChannel[meta.Channel] = meta
	return nil
}

func (s *MemoryStore) GetChannelMeta(groupID string) ([]models.ChannelMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChannelMeta
	for _, meta := range s.channels[groupID] {
		out = append(out, meta)
	}
	return out, nil
}

func (s *MemoryStore) SaveInvite(inv models.Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites[inv.ID] = inv
	return nil
}

func (s *MemoryStore) GetInvite(inviteID string) (*models.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[inviteID]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (s *MemoryStore) ListInvites() ([]models.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Invite, 0, len(s.invites))
	for _, inv := range s.invites {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteInvite(inviteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.invites, inviteID)
	return nil
}

func (s *MemoryStore) SaveBackupRecord(rec models.BackupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backups[rec.GroupID] = rec
	return nil
}

func (s *MemoryStore) GetBackupRecord(groupID string) (*models.BackupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.backups[groupID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) ListBackupRecords() ([]models.BackupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BackupRecord, 0, len(s.backups))
	for _, rec := range s.backups {
		out = append(out, rec)
	}
	return out, nil
}

// MemoryQueue is an in-process Queue with the same contract as the redis one,
// minus expiry.
type MemoryQueue struct {
	mu      sync.Mutex
	pending map[string][]*models.Envelope
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{pending: make(map[string][]*models.Envelope)}
}

func (q *MemoryQueue) Enqueue(groupID string, env *models.Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[groupID] = append(q.pending[groupID], env)
	return nil
}

func (q *MemoryQueue) Pending(groupID string) ([]*models.Envelope, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*models.Envelope(nil), q.pending[groupID]...), nil
}

func (q *MemoryQueue) PendingGroups() ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for groupID, envs := range q.pending {
		if len(envs) > 0 {
			out = append(out, groupID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (q *MemoryQueue) Remove(groupID, envelopeID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	envs := q.pending[groupID]
	for i, env := range envs {
		if env.ID == envelopeID {
			q.pending[groupID] = append(envs[:i], envs[i+1:]...)
			break
		}
	}
	return nil
}

func (q *MemoryQueue) Notify(groupID string, payload []byte) error { return nil }
