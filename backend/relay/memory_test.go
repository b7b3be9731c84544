// Copyright (C) 2025 veil.chat <dev@veil.chat>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package relay

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/veilchat/veil/backend/models"
)

func memEnvelope(group string, kind models.EventKind, at time.Time, seq int) *models.Envelope {
	env := &models.Envelope{
		GroupID:    group,
		Kind:       kind,
		SenderPub:  "aa",
		Ciphertext: []byte(fmt.Sprintf("payload-%d", seq)),
		CreatedAt:  at,
	}
	env.Seal()
	return env
}

func TestMemoryRelayFetchPageOrdering(t *testing.T) {
	r := NewMemoryRelay()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		env := memEnvelope("g1", models.KindGroupEvent, base.Add(time.Duration(i)*time.Minute), i)
		if err := r.Publish(context.Background(), env); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	r.Publish(context.Background(), memEnvelope("g2", models.KindGroupEvent, base, 99))

	page, err := r.FetchPage(context.Background(), Filter{GroupID: "g1"}, base.Add(time.Hour), 3)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("page size = %d, want 3", len(page))
	}
	for i := 1; i < len(page); i++ {
		if page[i].CreatedAt.After(page[i-1].CreatedAt) {
			t.Errorf("page not descending at %d", i)
		}
	}
}

func TestMemoryRelaySubscribeCancel(t *testing.T) {
	r := NewMemoryRelay()
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := r.Subscribe(ctx, Filter{GroupID: "g1"})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	env := memEnvelope("g1", models.KindGroupEvent, time.Now().UTC(), 1)
	r.Publish(context.Background(), env)

	select {
	case got := <-stream:
		if got.ID != env.ID {
			t.Errorf("got envelope %s, want %s", got.ID, env.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no envelope delivered")
	}

	cancel()
	select {
	case _, ok := <-stream:
		if ok {
			t.Error("expected closed stream after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancel")
	}
}

func TestMemoryRelayDeduplicatesByID(t *testing.T) {
	r := NewMemoryRelay()
	env := memEnvelope("g1", models.KindGroupEvent, time.Now().UTC(), 1)
	r.Publish(context.Background(), env)
	r.Publish(context.Background(), env)

	page, err := r.FetchPage(context.Background(), Filter{GroupID: "g1"}, time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("stored envelopes = %d, want 1", len(page))
	}
	if r.PublishCount() != 2 {
		t.Errorf("publish count = %d, want 2", r.PublishCount())
	}
}
