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
	"time"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
)

// React publishes a like or unlike for a target event, with an optimistic
// local overlay: the UI sees the new polarity immediately, the overlay is
// reverted if the publish fails and replaced by the confirmed value once the
// relay acks. The same write-then-reconcile shape applies to any optimistic
// write going through Publish.
func (e *Engine) React(ctx context.Context, groupID, targetID string, like bool) error {
	id := e.session.Identity()
	if id == nil {
		return errors.ErrNoIdentity
	}
	self := id.Pub

	e.mu.Lock()
	overlay, ok := e.pendingReacts[targetID]
	if !ok {
		overlay = make(map[string]bool)
		e.pendingReacts[targetID] = overlay
	}
	overlay[self] = like
	e.mu.Unlock()
	e.notifyEvent(targetID)

	content := "-"
	if like {
		content = "+"
	}
	event := &models.Event{
		Kind:      models.KindReaction,
		Content:   content,
		Tags:      []models.Tag{{"e", targetID}},
		CreatedAt: time.Now().UTC(),
	}

	err := e.Publish(ctx, groupID, event)

	e.mu.Lock()
	delete(e.pendingReacts[targetID], self)
	if len(e.pendingReacts[targetID]) == 0 {
		delete(e.pendingReacts, targetID)
	}
	e.mu.Unlock()
	e.notifyEvent(targetID)

	return err
}

// ReactionCount returns the net reaction count for a target: the number of
// distinct authors whose latest reaction is a like, adjusted by the caller's
// own pending overlay. Never negative.
func (e *Engine) ReactionCount(groupID, targetID string) int {
	id := e.session.Identity()
	if id == nil {
		return 0
	}
	self := id.Pub

	e.mu.RLock()
	defer e.mu.RUnlock()

	tl, ok := e.timelines[groupID]
	count := 0
	confirmedLike := false
	if ok {
		count = tl.netCount(targetID)
		confirmedLike = tl.authorReacted(targetID, self)
	}

	if pending, ok := e.pendingReacts[targetID][self]; ok && pending != confirmedLike {
		if pending {
			count++
		} else if count > 0 {
			count--
		}
	}
	return count
}

// HasUserReacted reports the current user's net polarity for a target,
// defaulting to false when they never reacted. A pending overlay wins over
// the confirmed state until the publish resolves.
func (e *Engine) HasUserReacted(groupID, targetID string) bool {
	id := e.session.Identity()
	if id == nil {
		return false
	}
	self := id.Pub

	e.mu.RLock()
	defer e.mu.RUnlock()

	if pending, ok := e.pendingReacts[targetID][self]; ok {
		return pending
	}
	tl, ok := e.timelines[groupID]
	if !ok {
		return false
	}
	return tl.authorReacted(targetID, self)
}
