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
	"time"

	"github.com/veilchat/veil/backend/models"
)

// Single-row getters return (nil, nil) for an id that was never saved; an
// error means the lookup itself failed. Every implementation follows this,
// the SQL-backed one translates sql.ErrNoRows.

type GroupStore interface {
	SaveGroup(g models.Group) error
	GetGroup(groupID string) (*models.Group, error)
	ListGroups() ([]models.Group, error)
	DeleteGroup(groupID string) error
}

type TimelineStore interface {
	// SaveEvent is idempotent: re-saving an id keeps the first-seen row.
	SaveEvent(groupID string, event models.Event) error
	GetEvents(groupID string, before time.Time, limit int) ([]models.Event, error)
}

type ChannelStore interface {
	SaveChannelMeta(meta models.ChannelMeta) error
	GetChannelMeta(groupID string) ([]models.ChannelMeta, error)
}

type InviteStore interface {
	SaveInvite(inv models.Invite) error
	GetInvite(inviteID string) (*models.Invite, error)
	ListInvites() ([]models.Invite, error)
	DeleteInvite(inviteID string) error
}

type BackupStore interface {
	SaveBackupRecord(rec models.BackupRecord) error
	GetBackupRecord(groupID string) (*models.BackupRecord, error)
	ListBackupRecords() ([]models.BackupRecord, error)
}

type Store interface {
	GroupStore
	TimelineStore
	ChannelStore
	InviteStore
	BackupStore
}

// Queue holds envelopes that could not be delivered to the relay yet, and
// fans out change notifications to out-of-process consumers.
type Queue interface {
	Enqueue(groupID string, env *models.Envelope) error
	Pending(groupID string) ([]*models.Envelope, error)
	PendingGroups() ([]string, error)
	Remove(groupID, envelopeID string) error
	Notify(groupID string, payload []byte) error
}
