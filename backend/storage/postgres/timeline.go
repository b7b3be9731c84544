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
	"encoding/json"
	"time"

	"github.com/veilchat/veil/backend/models"
)

func (s *Store) SaveEvent(groupID string, event models.Event) error {
	tags, err := json.Marshal(event.Tags)
	if err != nil {
		return err
	}
	// First-seen wins: re-delivered events keep the original row.
	_, err = s.db.Exec(`
		INSERT INTO timeline_events (event_id, group_id, pubkey, created_at, kind, tags, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING`,
		event.ID, groupID, event.Pubkey, event.CreatedAt, int(event.Kind), tags, event.Content)
	return err
}

func (s *Store) GetEvents(groupID string, before time.Time, limit int) ([]models.Event, error) {
	rows, err := s.db.Query(`
		SELECT event_id, pubkey, created_at, kind, tags, content
		FROM timeline_events
		WHERE group_id = $1 AND created_at < $2
		ORDER BY created_at DESC, event_id ASC
		LIMIT $3`,
		groupID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var event models.Event
		var kind int
		var tags []byte
		if err := rows.Scan(&event.ID, &event.Pubkey, &event.CreatedAt, &kind, &tags, &event.Content); err != nil {
			return nil, err
		}
		event.Kind = models.EventKind(kind)
		if err := json.Unmarshal(tags, &event.Tags); err != nil {
			continue // skip malformed rows
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
