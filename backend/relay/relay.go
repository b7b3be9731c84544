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

package relay

import (
	"context"
	"time"

	"github.com/veilchat/veil/backend/models"
)

// Filter selects envelopes on the relay. Zero values match everything.
type Filter struct {
	GroupID string             `json:"group_id,omitempty"`
	Author  string             `json:"author,omitempty"`
	Kinds   []models.EventKind `json:"kinds,omitempty"`
	Since   *time.Time         `json:"since,omitempty"`
	Until   *time.Time         `json:"until,omitempty"`
	Limit   int                `json:"limit,omitempty"`
}

// Matches reports whether env passes the filter. Limit is not applied here.
func (f Filter) Matches(env *models.Envelope) bool {
	if f.GroupID != "" && env.GroupID != f.GroupID {
		return false
	}
	if f.Author != "" && env.SenderPub != f.Author {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if env.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Since != nil && env.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !env.CreatedAt.Before(*f.Until) {
		return false
	}
	return true
}

// Relay is the store-and-forward transport boundary: no delivery order, no
// retention guarantee. Publish acks or errors; Subscribe streams until the
// context is cancelled, then closes the channel; FetchPage returns envelopes
// created before the given time, newest first.
type Relay interface {
	Publish(ctx context.Context, env *models.Envelope) error
	Subscribe(ctx context.Context, filter Filter) (<-chan *models.Envelope, error)
	FetchPage(ctx context.Context, filter Filter, before time.Time, limit int) ([]*models.Envelope, error)
}
