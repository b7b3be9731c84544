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
	stdsync "sync"
	"testing"
	"time"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
	"github.com/veilchat/veil/backend/relay"
	"github.com/veilchat/veil/backend/session"
	"github.com/veilchat/veil/backend/storage"
)

// flakyRelay fails Publish while broken, passing everything else through.
type flakyRelay struct {
	*relay.MemoryRelay
	mu     stdsync.Mutex
	broken bool
}

func (r *flakyRelay) setBroken(broken bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broken = broken
}

func (r *flakyRelay) Publish(ctx context.Context, env *models.Envelope) error {
	r.mu.Lock()
	broken := r.broken
	r.mu.Unlock()
	if broken {
		return errors.ErrNotConnected
	}
	return r.MemoryRelay.Publish(ctx, env)
}

type testRig struct {
	engine  *Engine
	relay   *relay.MemoryRelay
	session *session.Manager
	store   *storage.MemoryStore
	queue   *storage.MemoryQueue
}

func newTestRig(t *testing.T, rel relay.Relay, mem *relay.MemoryRelay) *testRig {
	t.Helper()
	id, err := session.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	sess := session.NewManager(id)
	store := storage.NewMemoryStore()
	queue := storage.NewMemoryQueue()
	e := NewEngine(sess, rel, store, queue)
	e.MaxPublishTries = 2
	e.RetryInterval = time.Millisecond
	return &testRig{engine: e, relay: mem, session: sess, store: store, queue: queue}
}

func newRig(t *testing.T) *testRig {
	mem := relay.NewMemoryRelay()
	return newTestRig(t, mem, mem)
}

func message(content string, at time.Time) *models.Event {
	return &models.Event{Kind: models.KindMessage, Content: content, CreatedAt: at}
}

func queueSize(t *testing.T, q *storage.MemoryQueue, groupID string) int {
	t.Helper()
	pending, err := q.Pending(groupID)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	return len(pending)
}

func TestPublishAndIdempotentRedelivery(t *testing.T) {
	rig := newRig(t)
	g, _ := rig.session.CreateGroup("ops")

	if err := rig.engine.Publish(context.Background(), g.ID, message("hello", time.Now().UTC())); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := len(rig.engine.Timeline(g.ID, 0)); got != 1 {
		t.Fatalf("timeline size = %d, want 1", got)
	}

	// The relay re-delivers the same envelope on refresh; the cache must
	// keep exactly one entry.
	if err := rig.engine.Refresh(context.Background(), g.ID); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := rig.engine.Refresh(context.Background(), g.ID); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := len(rig.engine.Timeline(g.ID, 0)); got != 1 {
		t.Errorf("timeline size after re-delivery = %d, want 1", got)
	}
	if queueSize(t, rig.queue, g.ID) != 0 {
		t.Errorf("queue should be empty after delivery")
	}
}

func TestTimelineOrderingDeterminism(t *testing.T) {
	rig := newRig(t)
	g, _ := rig.session.CreateGroup("ops")
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// Published deliberately out of order, with one creation-time tie.
	for _, at := range []time.Time{base.Add(2 * time.Minute), base, base.Add(time.Minute), base.Add(time.Minute)} {
		if err := rig.engine.Publish(context.Background(), g.ID, message("m-"+at.String(), at)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	events := rig.engine.Timeline(g.ID, 0)
	if len(events) != 4 {
		t.Fatalf("timeline size = %d, want 4", len(events))
	}
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if cur.CreatedAt.After(prev.CreatedAt) {
			t.Errorf("timeline not descending at %d", i)
		}
		if cur.CreatedAt.Equal(prev.CreatedAt) && prev.ID > cur.ID {
			t.Errorf("tie at %d not broken by id", i)
		}
	}
}

func TestPaginationConcatenation(t *testing.T) {
	mem := relay.NewMemoryRelay()
	writer := newTestRig(t, mem, mem)
	g, _ := writer.session.CreateGroup("ops")
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		if err := writer.engine.Publish(context.Background(), g.ID, message("m", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	shareTo := func() *testRig {
		rig := newTestRig(t, mem, mem)
		state, _ := writer.session.State(g.ID)
		_, secret, _ := writer.session.ExportSecret(g.ID)
		if err := rig.session.ImportState(state, secret); err != nil {
			t.Fatalf("ImportState: %v", err)
		}
		return rig
	}

	cursor := base.Add(time.Hour)
	paged := shareTo()
	page1, err := paged.engine.LoadMore(context.Background(), g.ID, cursor, 5)
	if err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	page2, err := paged.engine.LoadMore(context.Background(), g.ID, page1[len(page1)-1].CreatedAt, 5)
	if err != nil {
		t.Fatalf("LoadMore: %v", err)
	}

	direct := shareTo()
	all, err := direct.engine.LoadMore(context.Background(), g.ID, cursor, 10)
	if err != nil {
		t.Fatalf("LoadMore: %v", err)
	}

	concat := append(append([]*models.Event(nil), page1...), page2...)
	if len(concat) != len(all) {
		t.Fatalf("concatenated pages = %d events, direct = %d", len(concat), len(all))
	}
	seen := make(map[string]struct{})
	for i := range concat {
		if concat[i].ID != all[i].ID {
			t.Errorf("page mismatch at %d: %s vs %s", i, concat[i].ID, all[i].ID)
		}
		if _, dup := seen[concat[i].ID]; dup {
			t.Errorf("duplicate id across pages: %s", concat[i].ID)
		}
		seen[concat[i].ID] = struct{}{}
	}
}

func TestPublishFailureQueuesForRetry(t *testing.T) {
	mem := relay.NewMemoryRelay()
	flaky := &flakyRelay{MemoryRelay: mem, broken: true}
	rig := newTestRig(t, flaky, mem)
	g, _ := rig.session.CreateGroup("ops")

	err := rig.engine.Publish(context.Background(), g.ID, message("stuck", time.Now().UTC()))
	if errors.CodeOf(err) != errors.CodeNotConnected {
		t.Fatalf("Publish while broken: code = %v, want NOT_CONNECTED", errors.CodeOf(err))
	}
	if n := queueSize(t, rig.queue, g.ID); n != 1 {
		t.Fatalf("queue size = %d, want 1 (never silently dropped)", n)
	}
	if got := len(rig.engine.Timeline(g.ID, 0)); got != 0 {
		t.Fatalf("unconfirmed event in timeline: %d", got)
	}

	flaky.setBroken(false)
	if err := rig.engine.RetryPending(context.Background()); err != nil {
		t.Fatalf("RetryPending: %v", err)
	}
	if queueSize(t, rig.queue, g.ID) != 0 {
		t.Errorf("queue not drained after retry")
	}
	if got := len(rig.engine.Timeline(g.ID, 0)); got != 1 {
		t.Errorf("timeline size after retry = %d, want 1", got)
	}
}

func TestSubscribeTimelineFiltersUndecryptable(t *testing.T) {
	mem := relay.NewMemoryRelay()
	alice := newTestRig(t, mem, mem)
	mallory := newTestRig(t, mem, mem)
	g, _ := alice.session.CreateGroup("ops")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := mallory.engine.SubscribeTimeline(ctx, g.ID)
	if err != nil {
		t.Fatalf("SubscribeTimeline: %v", err)
	}

	if err := alice.engine.Publish(context.Background(), g.ID, message("secret", time.Now().UTC())); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case event := <-stream:
		t.Fatalf("outsider received plaintext event %v", event)
	case <-time.After(100 * time.Millisecond):
	}

	deadline := time.Now().Add(time.Second)
	for mallory.engine.UndecryptableCount(g.ID) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := mallory.engine.UndecryptableCount(g.ID); got != 1 {
		t.Errorf("undecryptable count = %d, want 1", got)
	}
}

func TestSubscribeTimelineDeliversToMember(t *testing.T) {
	mem := relay.NewMemoryRelay()
	alice := newTestRig(t, mem, mem)
	bob := newTestRig(t, mem, mem)
	g, _ := alice.session.CreateGroup("ops")
	if _, err := alice.session.AddMember(g.ID, bob.session.Identity().Pub); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	state, _ := alice.session.State(g.ID)
	_, secret, _ := alice.session.ExportSecret(g.ID)
	if err := bob.session.ImportState(state, secret); err != nil {
		t.Fatalf("ImportState: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := bob.engine.SubscribeTimeline(ctx, g.ID)
	if err != nil {
		t.Fatalf("SubscribeTimeline: %v", err)
	}

	if err := alice.engine.Publish(context.Background(), g.ID, message("hi bob", time.Now().UTC())); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case event := <-stream:
		if event.Content != "hi bob" {
			t.Errorf("received %q, want %q", event.Content, "hi bob")
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered to member")
	}

	cancel()
	select {
	case _, ok := <-stream:
		if ok {
			t.Error("stream should close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancel")
	}
}

func TestLoadMoreCancelDiscardsPartialResults(t *testing.T) {
	rig := newRig(t)
	g, _ := rig.session.CreateGroup("ops")
	if err := rig.engine.Publish(context.Background(), g.ID, message("m", time.Now().UTC())); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	fresh := newTestRig(t, rig.relay, rig.relay)
	state, _ := rig.session.State(g.ID)
	_, secret, _ := rig.session.ExportSecret(g.ID)
	fresh.session.ImportState(state, secret)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fresh.engine.LoadMore(ctx, g.ID, time.Now().Add(time.Hour), 10); err == nil {
		t.Fatal("cancelled LoadMore should error")
	}
	if got := len(fresh.engine.Timeline(g.ID, 0)); got != 0 {
		t.Errorf("cancelled fetch merged %d events into the cache", got)
	}
}

func TestInviteAcceptConsumesOnce(t *testing.T) {
	mem := relay.NewMemoryRelay()
	alice := newTestRig(t, mem, mem)
	bob := newTestRig(t, mem, mem)
	g, _ := alice.session.CreateGroup("ops")
	if _, err := alice.session.AddMember(g.ID, bob.session.Identity().Pub); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	welcome, err := alice.engine.BuildWelcome(g.ID)
	if err != nil {
		t.Fatalf("BuildWelcome: %v", err)
	}
	inv, err := bob.engine.RecordInvite(g.ID, alice.session.Identity().Pub, welcome)
	if err != nil {
		t.Fatalf("RecordInvite: %v", err)
	}

	joined, err := bob.engine.AcceptInvite(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
	if joined.ID != g.ID {
		t.Errorf("joined group %s, want %s", joined.ID, g.ID)
	}

	// Membership is live: bob can decrypt new traffic.
	if err := alice.engine.Publish(context.Background(), g.ID, message("welcome", time.Now().UTC())); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := bob.engine.Refresh(context.Background(), g.ID); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := len(bob.engine.Timeline(g.ID, 0)); got != 1 {
		t.Errorf("bob timeline size = %d, want 1", got)
	}

	// Consumed exactly once.
	if _, err := bob.engine.AcceptInvite(context.Background(), inv.ID); errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("second accept: code = %v, want NOT_FOUND", errors.CodeOf(err))
	}
}

func TestInviteReject(t *testing.T) {
	rig := newRig(t)
	inv, err := rig.engine.RecordInvite("aaaa", "bbbb", []byte(`{}`))
	if err != nil {
		t.Fatalf("RecordInvite: %v", err)
	}
	if err := rig.engine.RejectInvite(inv.ID); err != nil {
		t.Fatalf("RejectInvite: %v", err)
	}
	if err := rig.engine.RejectInvite(inv.ID); errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("second reject: code = %v, want NOT_FOUND", errors.CodeOf(err))
	}
	invites, _ := rig.engine.Invites()
	if len(invites) != 0 {
		t.Errorf("invites remaining = %d, want 0", len(invites))
	}
}

func TestAnnouncementResolvesNewest(t *testing.T) {
	rig := newRig(t)
	g, _ := rig.session.CreateGroup("ops")

	older := models.Announcement{GroupID: g.ID, Name: "old name", CreatedAt: time.Now().UTC().Add(-time.Hour)}
	newer := models.Announcement{GroupID: g.ID, Name: "new name", CreatedAt: time.Now().UTC()}
	for _, ann := range []models.Announcement{older, newer} {
		if err := rig.engine.PublishAnnouncement(context.Background(), ann); err != nil {
			t.Fatalf("PublishAnnouncement: %v", err)
		}
	}

	resolved, err := rig.engine.ResolveAnnouncement(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("ResolveAnnouncement: %v", err)
	}
	if resolved.Name != "new name" {
		t.Errorf("resolved %q, want newest announcement", resolved.Name)
	}

	if _, err := rig.engine.ResolveAnnouncement(context.Background(), "no-such-group"); errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("missing announcement: code = %v, want NOT_FOUND", errors.CodeOf(err))
	}
}

func TestObserverCancelRemovesSubscription(t *testing.T) {
	rig := newRig(t)
	ch, cancel := rig.engine.ObserveGroup("g1")
	rig.engine.notifyGroup("g1")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no tick delivered")
	}
	cancel()
	rig.engine.notifyGroup("g1")
	select {
	case <-ch:
		t.Error("tick delivered after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}
