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
	"sort"
	"sync"
	"time"

	"github.com/veilchat/veil/backend/models"
)

// MemoryRelay is an in-process Relay used by tests and offline mode. It
// retains everything published and fans out to live subscribers.
type MemoryRelay struct {
	mu        sync.RWMutex
	envelopes []*models.Envelope
	byID      map[string]struct{}
	subs      map[int]*memorySub
	nextSub   int
	published int
}

type memorySub struct {
	filter Filter
	ch     chan *models.Envelope
}

func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{
		byID: make(map[string]struct{}),
		subs: make(map[int]*memorySub),
	}
}

func (r *MemoryRelay) Publish(ctx context.Context, env *models.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.published++
	if _, dup := r.byID[env.ID]; !dup {
		r.byID[env.ID] = struct{}{}
		r.envelopes = append(r.envelopes, env)
	}
	subs := make([]*memorySub, 0, len(r.subs))
	for _, sub := range r.subs {
		if sub.filter.Matches(env) {
			subs = append(subs, sub)
		}
	}
	r.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- env:
		default: // slow subscriber; relays drop, they do not block
		}
	}
	return nil
}

func (r *MemoryRelay) Subscribe(ctx context.Context, filter Filter) (<-chan *models.Envelope, error) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	sub := &memorySub{filter: filter, ch: make(chan *models.Envelope, 64)}
	r.subs[id] = sub
	r.mu.Unlock()

	out := make(chan *models.Envelope)
	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-sub.ch:
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *MemoryRelay) FetchPage(ctx context.Context, filter Filter, before time.Time, limit int) ([]*models.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	matched := make([]*models.Envelope, 0)
	for _, env := range r.envelopes {
		if !env.CreatedAt.Before(before) {
			continue
		}
		if filter.Matches(env) {
			matched = append(matched, env)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// PublishCount reports how many Publish calls the relay accepted, duplicates
// included. Tests use it to assert backup idempotence.
func (r *MemoryRelay) PublishCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.published
}
