// Copyright (C) 2025 veil.chat <dev@veil.chat>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import "time"

// BackupRecord remembers the last successful snapshot of a group: the state
// hash at snapshot time and the relay event that carries the ciphertext.
type BackupRecord struct {
	GroupID         string    `json:"group_id" db:"group_id"`
	StateHash       string    `json:"state_hash" db:"state_hash"`
	SnapshotEventID string    `json:"snapshot_event_id" db:"snapshot_event_id"`
	SnapshotAt      time.Time `json:"snapshot_at" db:"snapshot_at"`
}

// BackupStatus is a derived view: when the newest snapshot happened and how
// many groups have changed since their last one.
type BackupStatus struct {
	LastSnapshotAt *time.Time `json:"last_snapshot_at,omitempty"`
	PendingGroups  int        `json:"pending_groups"`
}

// SnapshotPayload is what gets encrypted under the account key and published
// as a snapshot envelope.
type SnapshotPayload struct {
	State       GroupState `json:"state"`
	EpochSecret []byte     `json:"epoch_secret"`
	TakenAt     time.Time  `json:"taken_at"`
}

// CredentialBundle is the plaintext inside a recovery credential: everything
// needed to rebuild the account on a fresh device, given relay access.
type CredentialBundle struct {
	IdentitySeed string               `json:"identity_seed"`
	Groups       []CredentialGroupRef `json:"groups"`
}

type CredentialGroupRef struct {
	GroupID         string `json:"group_id"`
	SnapshotEventID string `json:"snapshot_event_id"`
}
