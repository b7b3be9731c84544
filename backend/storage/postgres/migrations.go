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

package postgres

func (s *Store) Migrate() error {
	migrations := []string{
		// Groups known to this device
		`CREATE TABLE IF NOT EXISTS groups (
			group_id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL DEFAULT '',
			created_by VARCHAR(64) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			is_personal BOOLEAN NOT NULL DEFAULT FALSE
		)`,

		// Decrypted timeline cache
		`CREATE TABLE IF NOT EXISTS timeline_events (
			event_id VARCHAR(64) PRIMARY KEY,
			group_id VARCHAR(64) NOT NULL,
			pubkey VARCHAR(64) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			kind INTEGER NOT NULL,
			tags JSONB NOT NULL DEFAULT '[]',
			content TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE INDEX IF NOT EXISTS idx_timeline_group_time
		ON timeline_events(group_id, created_at DESC)`,

		// Per-channel extras (pin state, ordering)
		`CREATE TABLE IF NOT EXISTS channel_meta (
			group_id VARCHAR(64) NOT NULL,
			channel VARCHAR(255) NOT NULL,
			pinned BOOLEAN NOT NULL DEFAULT FALSE,
			sort_order DOUBLE PRECISION,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (group_id, channel)
		)`,

		// Inbound invitations, consumed exactly once
		`CREATE TABLE IF NOT EXISTS invites (
			invite_id VARCHAR(64) PRIMARY KEY,
			group_id VARCHAR(64) NOT NULL,
			inviter VARCHAR(64) NOT NULL,
			payload BYTEA NOT NULL,
			received_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Last successful snapshot per group
		`CREATE TABLE IF NOT EXISTS backup_records (
			group_id VARCHAR(64) PRIMARY KEY,
			state_hash VARCHAR(64) NOT NULL,
			snapshot_event_id VARCHAR(64) NOT NULL,
			snapshot_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}
