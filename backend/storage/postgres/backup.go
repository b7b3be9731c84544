// Copyright (C) 2025 veil.chat <dev@veil.chat>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package postgres

import (
	"database/sql"

	"github.com/veilchat/veil/backend/models"
)

func (s *Store) SaveBackupRecord(rec models.BackupRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO backup_records (group_id, state_hash, snapshot_event_id, snapshot_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_id) DO UPDATE
		SET state_hash = $2, snapshot_event_id = $3, snapshot_at = $4`,
		rec.GroupID, rec.StateHash, rec.SnapshotEventID, rec.SnapshotAt)
	return err
}

func (s *Store) GetBackupRecord(groupID string) (*models.BackupRecord, error) {
	var rec models.BackupRecord
	err := s.db.QueryRow(`
		SELECT group_id, state_hash, snapshot_event_id, snapshot_at
		FROM backup_records WHERE group_id = $1`, groupID).Scan(
		&rec.GroupID, &rec.StateHash, &rec.SnapshotEventID, &rec.SnapshotAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListBackupRecords() ([]models.BackupRecord, error) {
	rows, err := s.db.Query(`
		SELECT group_id, state_hash, snapshot_event_id, snapshot_at
		FROM backup_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.BackupRecord
	for rows.Next() {
		var rec models.BackupRecord
		if err := rows.Scan(&rec.GroupID, &rec.StateHash, &rec.SnapshotEventID, &rec.SnapshotAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
