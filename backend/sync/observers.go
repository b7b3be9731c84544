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
	"sync"
)

// observers is the engine-owned subscription registry: per-event-id and
// per-group tick channels with removal tied to the cancel func returned at
// registration. Ticks coalesce; a slow consumer misses intermediate ticks
// but never blocks the engine.
type observers struct {
	mu     sync.Mutex
	events map[string]map[int]chan struct{}
	groups map[string]map[int]chan struct{}
	next   int
}

func (o *observers) init() {
	o.events = make(map[string]map[int]chan struct{})
	o.groups = make(map[string]map[int]chan struct{})
}

func register(m map[string]map[int]chan struct{}, key string, id int) chan struct{} {
	byID, ok := m[key]
	if !ok {
		byID = make(map[int]chan struct{})
		m[key] = byID
	}
	ch := make(chan struct{}, 1)
	byID[id] = ch
	return ch
}

func unregister(m map[string]map[int]chan struct{}, key string, id int) {
	if byID, ok := m[key]; ok {
		delete(byID, id)
		if len(byID) == 0 {
			delete(m, key)
		}
	}
}

func notify(m map[string]map[int]chan struct{}, key string) {
	for _, ch := range m[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (o *observers) observeEvent(eventID string) (<-chan struct{}, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.next
	o.next++
	ch := register(o.events, eventID, id)
	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		unregister(o.events, eventID, id)
	}
}

func (o *observers) observeGroup(groupID string) (<-chan struct{}, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.next
	o.next++
	ch := register(o.groups, groupID, id)
	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		unregister(o.groups, groupID, id)
	}
}

func (o *observers) notifyEvent(eventID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	notify(o.events, eventID)
}

func (o *observers) notifyGroup(groupID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	notify(o.groups, groupID)
}

// ObserveEvent subscribes to change ticks for one event id (reaction count
// updates). Call the returned cancel func to unsubscribe.
func (e *Engine) ObserveEvent(eventID string) (<-chan struct{}, func()) {
	return e.obs.observeEvent(eventID)
}

// ObserveGroup subscribes to timeline-change ticks for a group.
func (e *Engine) ObserveGroup(groupID string) (<-chan struct{}, func()) {
	return e.obs.observeGroup(groupID)
}
