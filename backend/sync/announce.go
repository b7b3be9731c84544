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

package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
	"github.com/veilchat/veil/backend/relay"
	"github.com/veilchat/veil/backend/session"
)

// Announcements are the one deliberately public thing here: a plaintext,
// signed descriptor carried in an envelope so a group can be discovered by
// id. Edits republish; readers resolve to the newest by creation time.

// PublishAnnouncement publishes or republishes the public descriptor of a
// group the caller administers.
func (e *Engine) PublishAnnouncement(ctx context.Context, ann models.Announcement) error {
	id := e.session.Identity()
	if id == nil {
		return errors.ErrNoIdentity
	}
	if ann.GroupID == "" {
		return errors.InvalidArg("announcement without a group id is unusable")
	}
	if !e.session.IsAdmin(ann.GroupID, id.Pub) {
		return errors.ErrNotAdmin
	}

	ann.Owner = id.Pub
	if ann.CreatedAt.IsZero() {
		ann.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ann)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "marshal announcement", err)
	}

	env := &models.Envelope{
		GroupID:    ann.GroupID,
		Kind:       models.KindAnnouncement,
		SenderPub:  id.Pub,
		Ciphertext: payload,
		CreatedAt:  ann.CreatedAt,
	}
	env.Sig = id.Sign(env.SignBytes())
	env.Seal()

	if err := e.deliver(ctx, env); err != nil {
		return errors.Wrap(errors.CodeNotConnected, "publish announcement", err)
	}
	return nil
}

// ResolveAnnouncement fetches the newest valid announcement for a group id.
func (e *Engine) ResolveAnnouncement(ctx context.Context, groupID string) (*models.Announcement, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, defaultFetchTimeout)
	defer cancel()

	page, err := e.relay.FetchPage(fetchCtx, relay.Filter{
		GroupID: groupID,
		Kinds:   []models.EventKind{models.KindAnnouncement},
	}, time.Now().UTC().Add(time.Minute), 50)
	if err != nil {
		return nil, errors.Wrap(errors.CodeNotConnected, "fetch announcements", err)
	}

	var newest *models.Announcement
	for _, env := range page {
		if !session.VerifyFrom(env.SenderPub, env.SignBytes(), env.Sig) {
			continue
		}
		var ann models.Announcement
		if err := json.Unmarshal(env.Ciphertext, &ann); err != nil {
			continue
		}
		// A descriptor that does not resolve to its envelope's group id is
		// unusable for group actions.
		if ann.GroupID != env.GroupID {
			continue
		}
		ann.EventID = env.ID
		ann.CreatedAt = env.CreatedAt
		if newest == nil || ann.CreatedAt.After(newest.CreatedAt) {
			copied := ann
			newest = &copied
		}
	}
	if newest == nil {
		return nil, errors.NotFound("no announcement for group")
	}
	return newest, nil
}
