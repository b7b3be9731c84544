// Copyright (C) 2025 veil.chat <dev@veil.chat>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package postgres

import (
	"github.com/veilchat/veil/backend/models"
)

func (s *Store) SaveChannelMeta(meta models.ChannelMeta) error {
	_, err := s.db.Exec(`
		INSERT INTO channel_meta (group_id, channel, pinned, sort_order, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_id, channel) DO UPDATE
		SET pinned = $3, sort_order = $4, updated_at = $5`,
		meta.GroupID, meta.Channel, meta.Pinned, meta.Order, meta.UpdatedAt)
	return err
}

func (s *Store) GetChannelMeta(groupID string) ([]models.ChannelMeta, error) {
	rows, err := s.db.Query(`
		SELECT group_id, channel, pinned, sort_order, updated_at
		FROM channel_meta WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metas []models.ChannelMeta
	for rows.Next() {
		var meta models.ChannelMeta
		if err := rows.Scan(&meta.GroupID, &meta.Channel, &meta.Pinned, &meta.Order, &meta.UpdatedAt); err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}
