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

import (
	"database/sql"

	"github.com/veilchat/veil/backend/models"
)

func (s *Store) SaveGroup(g models.Group) error {
	_, err := s.db.Exec(`
		INSERT INTO groups (group_id, name, created_by, created_at, is_personal)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_id) DO UPDATE
		SET name = $2`,
		g.ID, g.Name, g.CreatedBy, g.CreatedAt, g.IsPersonal)
	return err
}

func (s *Store) GetGroup(groupID string) (*models.Group, error) {
	var g models.Group
	err := s.db.QueryRow(`
		SELECT group_id, name, created_by, created_at, is_personal
		FROM groups WHERE group_id = $1`, groupID).Scan(
		&g.ID, &g.Name, &g.CreatedBy, &g.CreatedAt, &g.IsPersonal)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) ListGroups() ([]models.Group, error) {
	rows, err := s.db.Query(`
		SELECT group_id, name, created_by, created_at, is_personal
		FROM groups ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatedAt, &g.IsPersonal); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *Store) DeleteGroup(groupID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.Exec(`DELETE FROM groups WHERE group_id = $1`, groupID); err != nil {
		return err
	}
	if _, err = tx.Exec(`DELETE FROM timeline_events WHERE group_id = $1`, groupID); err != nil {
		return err
	}
	if _, err = tx.Exec(`DELETE FROM channel_meta WHERE group_id = $1`, groupID); err != nil {
		return err
	}
	return tx.Commit()
}
