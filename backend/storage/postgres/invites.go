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

func (s *Store) SaveInvite(inv models.Invite) error {
	_, err := s.db.Exec(`
		INSERT INTO invites (invite_id, group_id, inviter, payload, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (invite_id) DO NOTHING`,
		inv.ID, inv.GroupID, inv.Inviter, inv.Payload, inv.ReceivedAt)
	return err
}

func (s *Store) GetInvite(inviteID string) (*models.Invite, error) {
	var inv models.Invite
	err := s.db.QueryRow(`
		SELECT invite_id, group_id, inviter, payload, received_at
		FROM invites WHERE invite_id = $1`, inviteID).Scan(
		&inv.ID, &inv.GroupID, &inv.Inviter, &inv.Payload, &inv.ReceivedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) ListInvites() ([]models.Invite, error) {
	rows, err := s.db.Query(`
		SELECT invite_id, group_id, inviter, payload, received_at
		FROM invites ORDER BY received_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []models.Invite
	for rows.Next() {
		var inv models.Invite
		if err := rows.Scan(&inv.ID, &inv.GroupID, &inv.Inviter, &inv.Payload, &inv.ReceivedAt); err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

func (s *Store) DeleteInvite(inviteID string) error {
	_, err := s.db.Exec(`DELETE FROM invites WHERE invite_id = $1`, inviteID)
	return err
}
