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
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsDialTimeout  = 15 * time.Second
)

// WSRelay speaks a small JSON frame protocol to a relay over a websocket:
//
//	client: ["EVENT", envelope]            publish
//	client: ["REQ", subID, filter]         open subscription / page request
//	client: ["CLOSE", subID]               end subscription
//	server: ["EVENT", subID, envelope]     matching envelope
//	server: ["EOSE", subID]                end of stored events
//	server: ["OK", envelopeID, accepted]   publish ack
//
// One goroutine owns the write side; reads are demultiplexed to
// per-subscription channels.
type WSRelay struct {
	url string

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string]chan *models.Envelope
	eose    map[string]chan struct{}
	acks    map[string]chan bool
	writeCh chan []byte
	closed  bool
}

// DialWS connects to a relay websocket endpoint.
func DialWS(ctx context.Context, url string) (*WSRelay, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsDialTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.CodeNotConnected, "dial relay", err)
	}
	r := &WSRelay{
		url:     url,
		conn:    conn,
		subs:    make(map[string]chan *models.Envelope),
		eose:    make(map[string]chan struct{}),
		acks:    make(map[string]chan bool),
		writeCh: make(chan []byte, 64),
	}
	go r.writeLoop()
	go r.readLoop()
	return r, nil
}

// Close tears down the connection and all subscriptions.
func (r *WSRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.writeCh)
	return r.conn.Close()
}

func (r *WSRelay) writeLoop() {
	for frame := range r.writeCh {
		r.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := r.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Printf("[relay] write failed: %v", err)
			return
		}
	}
}

func (r *WSRelay) readLoop() {
	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			for _, ch := range r.subs {
				close(ch)
			}
			r.subs = make(map[string]chan *models.Envelope)
			r.mu.Unlock()
			return
		}
		r.dispatch(data)
	}
}

func (r *WSRelay) dispatch(data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 2 {
		return
	}
	var verb string
	if json.Unmarshal(frame[0], &verb) != nil {
		return
	}

	switch verb {
	case "EVENT":
		if len(frame) < 3 {
			return
		}
		var subID string
		if json.Unmarshal(frame[1], &subID) != nil {
			return
		}
		var env models.Envelope
		if json.Unmarshal(frame[2], &env) != nil {
			return
		}
		r.mu.Lock()
		ch := r.subs[subID]
		r.mu.Unlock()
		if ch != nil {
			select {
			case ch <- &env:
			default:
			}
		}
	case "EOSE":
		var subID string
		if json.Unmarshal(frame[1], &subID) != nil {
			return
		}
		r.mu.Lock()
		done := r.eose[subID]
		delete(r.eose, subID)
		r.mu.Unlock()
		if done != nil {
			close(done)
		}
	case "OK":
		if len(frame) < 3 {
			return
		}
		var envID string
		var accepted bool
		if json.Unmarshal(frame[1], &envID) != nil || json.Unmarshal(frame[2], &accepted) != nil {
			return
		}
		r.mu.Lock()
		ack := r.acks[envID]
		delete(r.acks, envID)
		r.mu.Unlock()
		if ack != nil {
			ack <- accepted
		}
	}
}

func (r *WSRelay) send(frame []interface{}) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.ErrNotConnected
	}
	select {
	case r.writeCh <- data:
		return nil
	default:
		return errors.Wrap(errors.CodeNotConnected, "relay write queue full", nil)
	}
}

func (r *WSRelay) Publish(ctx context.Context, env *models.Envelope) error {
	ack := make(chan bool, 1)
	r.mu.Lock()
	r.acks[env.ID] = ack
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.acks, env.ID)
		r.mu.Unlock()
	}()

	if err := r.send([]interface{}{"EVENT", env}); err != nil {
		return err
	}
	select {
	case accepted := <-ack:
		if !accepted {
			return errors.Wrap(errors.CodeNotConnected, "relay rejected envelope", nil)
		}
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.CodeNotConnected, "publish timeout", ctx.Err())
	}
}

func (r *WSRelay) Subscribe(ctx context.Context, filter Filter) (<-chan *models.Envelope, error) {
	subID := uuid.New().String()
	ch := make(chan *models.Envelope, 64)
	r.mu.Lock()
	r.subs[subID] = ch
	r.mu.Unlock()

	if err := r.send([]interface{}{"REQ", subID, filter}); err != nil {
		r.mu.Lock()
		delete(r.subs, subID)
		r.mu.Unlock()
		return nil, err
	}

	out := make(chan *models.Envelope)
	go func() {
		defer close(out)
		defer func() {
			r.send([]interface{}{"CLOSE", subID})
			r.mu.Lock()
			delete(r.subs, subID)
			r.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
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

func (r *WSRelay) FetchPage(ctx context.Context, filter Filter, before time.Time, limit int) ([]*models.Envelope, error) {
	subID := uuid.New().String()
	ch := make(chan *models.Envelope, 256)
	done := make(chan struct{})
	r.mu.Lock()
	r.subs[subID] = ch
	r.eose[subID] = done
	r.mu.Unlock()
	defer func() {
		r.send([]interface{}{"CLOSE", subID})
		r.mu.Lock()
		delete(r.subs, subID)
		delete(r.eose, subID)
		r.mu.Unlock()
	}()

	pageFilter := filter
	pageFilter.Until = &before
	pageFilter.Limit = limit
	if err := r.send([]interface{}{"REQ", subID, pageFilter}); err != nil {
		return nil, err
	}

	var page []*models.Envelope
	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(errors.CodeNotConnected, "fetch page timeout", ctx.Err())
		case <-done:
			// Drain anything that arrived before EOSE.
			for {
				select {
				case env := <-ch:
					page = append(page, env)
				default:
					return page, nil
				}
			}
		case env, ok := <-ch:
			if !ok {
				return nil, errors.Wrap(errors.CodeNotConnected, "relay connection lost", nil)
			}
			page = append(page, env)
			if limit > 0 && len(page) >= limit {
				return page, nil
			}
		}
	}
}

var _ Relay = (*WSRelay)(nil)
var _ Relay = (*MemoryRelay)(nil)

// String describes the relay endpoint for logs.
func (r *WSRelay) String() string {
	return fmt.Sprintf("ws-relay(%s)", r.url)
}
