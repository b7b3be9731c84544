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
	"database/sql"
	"testing"
	"time"

	"github.com/veilchat/veil/backend/models"
)

// sqlStyleStore mimics a database/sql backend over the in-memory maps: row
// lookups surface sql.ErrNoRows and the exported getters translate that to
// the interface's nil-on-miss contract, the way the postgres store does.
type sqlStyleStore struct {
	*MemoryStore
}

func (s *sqlStyleStore) GetGroup(groupID string) (*models.Group, error) {
	g, err := s.groupRow(groupID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

func (s *sqlStyleStore) groupRow(groupID string) (*models.Group, error) {
	g, err := s.MemoryStore.GetGroup(groupID)
	if err == nil && g == nil {
		return nil, sql.ErrNoRows
	}
	return g, err
}

func (s *sqlStyleStore) GetInvite(inviteID string) (*models.Invite, error) {
	inv, err := s.inviteRow(inviteID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return inv, err
}

func (s *sqlStyleStore) inviteRow(inviteID string) (*models.Invite, error) {
	inv, err := s.MemoryStore.GetInvite(inviteID)
	if err == nil && inv == nil {
		return nil, sql.ErrNoRows
	}
	return inv, err
}

func (s *sqlStyleStore) GetBackupRecord(groupID string) (*models.BackupRecord, error) {
	rec, err := s.backupRow(groupID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *sqlStyleStore) backupRow(groupID string) (*models.BackupRecord, error) {
	rec, err := s.MemoryStore.GetBackupRecord(groupID)
	if err == nil && rec == nil {
		return nil, sql.ErrNoRows
	}
	return rec, err
}

// Every Store implementation answers a single-row miss with (nil, nil); an
// error is reserved for failed lookups.
func TestStoreMissContract(t *testing.T) {
	stores := []struct {
		name  string
		store Store
	}{
		{"memory", NewMemoryStore()},
		{"sql-style", &sqlStyleStore{MemoryStore: NewMemoryStore()}},
	}

	for _, tc := range stores {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.store

			group, err := s.GetGroup("missing")
			if group != nil || err != nil {
				t.Errorf("GetGroup miss = (%v, %v), want (nil, nil)", group, err)
			}
			inv, err := s.GetInvite("missing")
			if inv != nil || err != nil {
				t.Errorf("GetInvite miss = (%v, %v), want (nil, nil)", inv, err)
			}
			rec, err := s.GetBackupRecord("missing")
			if rec != nil || err != nil {
				t.Errorf("GetBackupRecord miss = (%v, %v), want (nil, nil)", rec, err)
			}

			now := time.Now().UTC()
			if err := s.SaveGroup(models.Group{ID: "g1", Name: "ops", CreatedAt: now}); err != nil {
				t.Fatalf("SaveGroup: %v", err)
			}
			if err := s.SaveInvite(models.Invite{ID: "i1", GroupID: "g1", ReceivedAt: now}); err != nil {
				t.Fatalf("SaveInvite: %v", err)
			}
			if err := s.SaveBackupRecord(models.BackupRecord{GroupID: "g1", StateHash: "h", SnapshotAt: now}); err != nil {
				t.Fatalf("SaveBackupRecord: %v", err)
			}

			if group, err = s.GetGroup("g1"); err != nil || group == nil || group.Name != "ops" {
				t.Errorf("GetGroup hit = (%v, %v)", group, err)
			}
			if inv, err = s.GetInvite("i1"); err != nil || inv == nil || inv.GroupID != "g1" {
				t.Errorf("GetInvite hit = (%v, %v)", inv, err)
			}
			if rec, err = s.GetBackupRecord("g1"); err != nil || rec == nil || rec.StateHash != "h" {
				t.Errorf("GetBackupRecord hit = (%v, %v)", rec, err)
			}
		})
	}
}
