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
	"sort"

	"github.com/veilchat/veil/backend/models"
)

// timeline is the per-group cache of decrypted events. The engine is the
// sole mutator; readers get copies. Messages are kept strictly descending by
// creation time, ties broken by event id ascending, so rendering order is
// deterministic regardless of arrival order.
type timeline struct {
	messages  map[string]*models.Event
	ordered   []*models.Event
	reactions map[string]map[string]*models.Event // target -> author -> latest reaction
}

func newTimeline() *timeline {
	return &timeline{
		messages:  make(map[string]*models.Event),
		reactions: make(map[string]map[string]*models.Event),
	}
}

func timelineLess(a, b *models.Event) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// insertMessage adds a message to the cache. Re-delivery of a known id keeps
// the earliest-seen instance and reports false.
func (tl *timeline) insertMessage(event *models.Event) bool {
	if _, seen := tl.messages[event.ID]; seen {
		return false
	}
	tl.messages[event.ID] = event
	idx := sort.Search(len(tl.ordered), func(i int) bool {
		return !timelineLess(tl.ordered[i], event)
	})
	tl.ordered = append(tl.ordered, nil)
	copy(tl.ordered[idx+1:], tl.ordered[idx:])
	tl.ordered[idx] = event
	return true
}

// insertReaction records a reaction, keeping only each author's latest
// reaction per target. Returns the target id and whether anything changed.
func (tl *timeline) insertReaction(event *models.Event) (string, bool) {
	target, ok := event.TargetID()
	if !ok {
		return "", false
	}
	byAuthor, ok := tl.reactions[target]
	if !ok {
		byAuthor = make(map[string]*models.Event)
		tl.reactions[target] = byAuthor
	}
	current, ok := byAuthor[event.Pubkey]
	if ok {
		if current.ID == event.ID {
			return target, false
		}
		// Latest by creation time wins; identical times resolve by id so
		// every replica converges on the same winner.
		if current.CreatedAt.After(event.CreatedAt) {
			return target, false
		}
		if current.CreatedAt.Equal(event.CreatedAt) && current.ID > event.ID {
			return target, false
		}
	}
	byAuthor[event.Pubkey] = event
	return target, true
}

// netCount is the number of authors whose latest reaction on target is a
// like. It can never go negative.
func (tl *timeline) netCount(target string) int {
	count := 0
	for _, event := range tl.reactions[target] {
		if event.IsLike() {
			count++
		}
	}
	return count
}

// authorReacted reports the net polarity of one author's reactions.
func (tl *timeline) authorReacted(target, author string) bool {
	event, ok := tl.reactions[target][author]
	return ok && event.IsLike()
}

// snapshot returns up to limit newest messages as a copy.
func (tl *timeline) snapshot(limit int) []*models.Event {
	n := len(tl.ordered)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*models.Event, n)
	copy(out, tl.ordered[:n])
	return out
}
