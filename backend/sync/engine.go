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
	"log"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
	"github.com/veilchat/veil/backend/relay"
	"github.com/veilchat/veil/backend/session"
	"github.com/veilchat/veil/backend/storage"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultPageSize     = 50
	refreshWindow       = 200
)

// Engine converts between plaintext application events and signed encrypted
// envelopes, and reconstructs a consistent local timeline from whatever the
// relay delivers, in whatever order.
type Engine struct {
	session *session.Manager
	relay   relay.Relay
	store   storage.Store
	queue   storage.Queue

	// Publish retry policy. Mutable before first use; tests shrink it.
	MaxPublishTries uint
	RetryInterval   time.Duration

	mu            sync.RWMutex
	timelines     map[string]*timeline
	pendingReacts map[string]map[string]bool // target -> author -> optimistic polarity
	undecryptable map[string]int
	unknownKinds  map[string]int

	obs observers
}

func NewEngine(sess *session.Manager, rel relay.Relay, store storage.Store, queue storage.Queue) *Engine {
	e := &Engine{
		session:         sess,
		relay:           rel,
		store:           store,
		queue:           queue,
		MaxPublishTries: 5,
		RetryInterval:   500 * time.Millisecond,
		timelines:       make(map[string]*timeline),
		pendingReacts:   make(map[string]map[string]bool),
		undecryptable:   make(map[string]int),
		unknownKinds:    make(map[string]int),
	}
	e.obs.init()
	return e
}

func (e *Engine) timelineFor(groupID string) *timeline {
	if tl, ok := e.timelines[groupID]; ok {
		return tl
	}
	tl := newTimeline()
	e.timelines[groupID] = tl
	return tl
}

// Publish encrypts, signs and sends an event. On transport failure the
// envelope stays queued for RetryPending and the error surfaces to the
// caller; the event is never silently dropped.
func (e *Engine) Publish(ctx context.Context, groupID string, event *models.Event) error {
	env, err := e.session.Encrypt(groupID, event)
	if err != nil {
		return err
	}
	if err := e.queue.Enqueue(groupID, env); err != nil {
		return errors.Wrap(errors.CodeInternal, "queue envelope", err)
	}

	if err := e.deliver(ctx, env); err != nil {
		return errors.Wrap(errors.CodeNotConnected, "publish failed, queued for retry", err)
	}

	if err := e.queue.Remove(groupID, env.ID); err != nil {
		log.Printf("[sync] failed to ack queued envelope %s: %v", env.ID, err)
	}
	e.applyEnvelope(env)
	return nil
}

// deliver pushes one envelope to the relay with bounded exponential backoff.
func (e *Engine) deliver(ctx context.Context, env *models.Envelope) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.RetryInterval

	op := func() (struct{}, error) {
		return struct{}{}, e.relay.Publish(ctx, env)
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(e.MaxPublishTries))
	return err
}

// RetryPending re-drives every queued envelope. Envelopes that keep failing
// stay queued; delivered ones are acked and applied locally.
func (e *Engine) RetryPending(ctx context.Context) error {
	groups, err := e.queue.PendingGroups()
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "list pending groups", err)
	}

	var failures []error
	delivered := 0
	for _, groupID := range groups {
		pending, err := e.queue.Pending(groupID)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		for _, env := range pending {
			if err := e.deliver(ctx, env); err != nil {
				failures = append(failures, err)
				continue
			}
			if err := e.queue.Remove(groupID, env.ID); err != nil {
				log.Printf("[sync] failed to ack queued envelope %s: %v", env.ID, err)
			}
			e.applyEnvelope(env)
			delivered++
		}
	}
	if len(failures) > 0 {
		return errors.NewPartialFailure(delivered, len(failures), failures)
	}
	return nil
}

// applyEnvelope decrypts and merges one envelope into local state.
// Undecryptable envelopes are counted, not surfaced.
func (e *Engine) applyEnvelope(env *models.Envelope) *models.Event {
	if env.Kind != models.KindGroupEvent {
		return nil
	}
	event, err := e.session.Decrypt(env)
	if err != nil {
		e.mu.Lock()
		e.undecryptable[env.GroupID]++
		e.mu.Unlock()
		return nil
	}
	e.apply(env.GroupID, event)
	return event
}

// apply dispatches a decrypted event by kind. The switch is exhaustive over
// application kinds; anything else is counted so nothing disappears silently.
func (e *Engine) apply(groupID string, event *models.Event) {
	switch event.Kind {
	case models.KindMessage:
		e.mu.Lock()
		inserted := e.timelineFor(groupID).insertMessage(event)
		e.mu.Unlock()
		if !inserted {
			return
		}
		if err := e.store.SaveEvent(groupID, *event); err != nil {
			log.Printf("[sync] failed to persist event %s: %v", event.ID, err)
		}
		e.notifyGroup(groupID)

	case models.KindReaction:
		e.mu.Lock()
		target, changed := e.timelineFor(groupID).insertReaction(event)
		e.mu.Unlock()
		if !changed {
			return
		}
		if err := e.store.SaveEvent(groupID, *event); err != nil {
			log.Printf("[sync] failed to persist reaction %s: %v", event.ID, err)
		}
		e.notifyEvent(target)
		e.notifyGroup(groupID)

	case models.KindChannelMeta:
		e.applyChannelMeta(groupID, event)
		e.notifyGroup(groupID)

	default:
		e.mu.Lock()
		e.unknownKinds[groupID]++
		e.mu.Unlock()
		log.Printf("[sync] unrecognized event kind %d in group %s", event.Kind, groupID)
	}
}

// notifyGroup pushes an in-process tick and mirrors it to the redis channel
// for out-of-process UIs.
func (e *Engine) notifyGroup(groupID string) {
	e.obs.notifyGroup(groupID)
	payload, _ := json.Marshal(map[string]string{"type": "timeline_changed", "group_id": groupID})
	if err := e.queue.Notify(groupID, payload); err != nil {
		log.Printf("[sync] notify failed for group %s: %v", groupID, err)
	}
}

func (e *Engine) notifyEvent(eventID string) {
	e.obs.notifyEvent(eventID)
}

// SubscribeTimeline opens a restartable live stream of decrypted events for
// a group. Undecryptable envelopes are filtered out and counted. The stream
// closes when ctx is cancelled.
func (e *Engine) SubscribeTimeline(ctx context.Context, groupID string) (<-chan *models.Event, error) {
	stream, err := e.relay.Subscribe(ctx, relay.Filter{
		GroupID: groupID,
		Kinds:   []models.EventKind{models.KindGroupEvent},
	})
	if err != nil {
		return nil, errors.Wrap(errors.CodeNotConnected, "subscribe timeline", err)
	}

	out := make(chan *models.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-stream:
				if !ok {
					return
				}
				event := e.applyEnvelope(env)
				if event == nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// LoadMore pages backwards through history. The pagination key is creation
// time, not arrival time. A cancelled fetch discards its partial results
// before anything is merged into the cache.
func (e *Engine) LoadMore(ctx context.Context, groupID string, before time.Time, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	fetchCtx, cancel := context.WithTimeout(ctx, defaultFetchTimeout)
	defer cancel()

	page, err := e.relay.FetchPage(fetchCtx, relay.Filter{
		GroupID: groupID,
		Kinds:   []models.EventKind{models.KindGroupEvent},
	}, before, limit)
	if err != nil {
		return nil, errors.Wrap(errors.CodeNotConnected, "fetch page", err)
	}
	if ctx.Err() != nil {
		// Cancelled mid-fetch: drop the partial page, keep the cache intact.
		return nil, errors.Wrap(errors.CodeNotConnected, "fetch cancelled", ctx.Err())
	}

	seen := make(map[string]struct{}, len(page))
	var events []*models.Event
	for _, env := range page {
		event := e.applyEnvelope(env)
		if event == nil || event.Kind != models.KindMessage {
			continue
		}
		if _, dup := seen[event.ID]; dup {
			continue
		}
		seen[event.ID] = struct{}{}
		events = append(events, event)
	}
	sortEventsDesc(events)
	return events, nil
}

// Refresh re-fetches the most recent window and reconciles it with the
// cache: unseen events are inserted, reaction counts updated, and nothing
// previously seen is ever deleted.
func (e *Engine) Refresh(ctx context.Context, groupID string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, defaultFetchTimeout)
	defer cancel()

	page, err := e.relay.FetchPage(fetchCtx, relay.Filter{
		GroupID: groupID,
		Kinds:   []models.EventKind{models.KindGroupEvent},
	}, time.Now().UTC().Add(time.Minute), refreshWindow)
	if err != nil {
		return errors.Wrap(errors.CodeNotConnected, "refresh", err)
	}
	if ctx.Err() != nil {
		return errors.Wrap(errors.CodeNotConnected, "refresh cancelled", ctx.Err())
	}
	for _, env := range page {
		e.applyEnvelope(env)
	}
	return nil
}

// Timeline returns up to limit newest cached messages, strictly descending
// by creation time with ties broken by event id.
func (e *Engine) Timeline(groupID string, limit int) []*models.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tl, ok := e.timelines[groupID]
	if !ok {
		return nil
	}
	return tl.snapshot(limit)
}

// UndecryptableCount reports how many envelopes failed to decrypt for a
// group. Diagnostic only; these never appear as timeline items.
func (e *Engine) UndecryptableCount(groupID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.undecryptable[groupID]
}

// WarmUp loads the persisted timeline cache for a group, newest first.
func (e *Engine) WarmUp(groupID string, limit int) error {
	events, err := e.store.GetEvents(groupID, time.Now().UTC().Add(time.Minute), limit)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "load cached timeline", err)
	}
	for i := range events {
		event := events[i]
		switch event.Kind {
		case models.KindMessage:
			e.mu.Lock()
			e.timelineFor(groupID).insertMessage(&event)
			e.mu.Unlock()
		case models.KindReaction:
			e.mu.Lock()
			e.timelineFor(groupID).insertReaction(&event)
			e.mu.Unlock()
		}
	}
	return nil
}

func sortEventsDesc(events []*models.Event) {
	sort.Slice(events, func(i, j int) bool {
		return timelineLess(events[i], events[j])
	})
}
