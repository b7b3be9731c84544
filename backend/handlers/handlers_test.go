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

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/veilchat/veil/backend/models"
	"github.com/veilchat/veil/backend/relay"
	"github.com/veilchat/veil/backend/session"
	"github.com/veilchat/veil/backend/storage"
	"github.com/veilchat/veil/backend/sync"
)

func newTestRouter(t *testing.T) (*mux.Router, *session.Manager) {
	t.Helper()
	id, err := session.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	sess := session.NewManager(id)
	store := storage.NewMemoryStore()
	engine := sync.NewEngine(sess, relay.NewMemoryRelay(), store, storage.NewMemoryQueue())
	engine.MaxPublishTries = 2
	engine.RetryInterval = time.Millisecond

	groups := NewGroupHandler(sess, engine, store)
	timeline := NewTimelineHandler(engine)
	channels := NewChannelHandler(engine)

	r := mux.NewRouter()
	r.HandleFunc("/groups", groups.CreateGroup).Methods("POST")
	r.HandleFunc("/groups", groups.ListGroups).Methods("GET")
	r.HandleFunc("/groups/{groupId}", groups.GetGroup).Methods("GET")
	r.HandleFunc("/groups/{groupId}/announcement", groups.GetAnnouncement).Methods("GET")
	r.HandleFunc("/groups/{groupId}/timeline", timeline.GetTimeline).Methods("GET")
	r.HandleFunc("/groups/{groupId}/messages", timeline.SendMessage).Methods("POST")
	r.HandleFunc("/groups/{groupId}/events/{eventId}/reactions", timeline.React).Methods("POST")
	r.HandleFunc("/groups/{groupId}/events/{eventId}/reactions", timeline.GetReactions).Methods("GET")
	r.HandleFunc("/groups/{groupId}/channels/{channel}/pin", channels.SetPin).Methods("PUT")
	return r, sess
}

func doJSON(t *testing.T, router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateGroupAndSendMessage(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/groups", `{"name":"ops"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create group: status = %d, body %s", w.Code, w.Body.String())
	}
	var group models.Group
	if err := json.Unmarshal(w.Body.Bytes(), &group); err != nil {
		t.Fatalf("decode group: %v", err)
	}

	w = doJSON(t, router, "POST", "/groups/"+group.ID+"/messages", `{"content":"hello"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("send message: status = %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/groups/"+group.ID+"/timeline", "")
	if w.Code != http.StatusOK {
		t.Fatalf("timeline: status = %d", w.Code)
	}
	var events []models.Event
	if err := json.Unmarshal(w.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	if len(events) != 1 || events[0].Content != "hello" {
		t.Errorf("timeline = %+v, want one hello message", events)
	}
}

func TestSendMessageValidation(t *testing.T) {
	router, sess := newTestRouter(t)
	g, _ := sess.CreateGroup("ops")

	w := doJSON(t, router, "POST", "/groups/"+g.ID+"/messages", `{"content":""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty content: status = %d, want 400", w.Code)
	}

	// Sending into an unknown group surfaces the session error: no epoch
	// key state means 409, not a silent drop.
	w = doJSON(t, router, "POST", "/groups/deadbeef/messages", `{"content":"hi"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("unknown group: status = %d, want 409", w.Code)
	}
}

func TestReactionEndpoints(t *testing.T) {
	router, sess := newTestRouter(t)
	g, _ := sess.CreateGroup("ops")

	w := doJSON(t, router, "POST", "/groups/"+g.ID+"/messages", `{"content":"target"}`)
	var event models.Event
	if err := json.Unmarshal(w.Body.Bytes(), &event); err != nil {
		t.Fatalf("decode message: %v", err)
	}

	w = doJSON(t, router, "POST", "/groups/"+g.ID+"/events/"+event.ID+"/reactions", `{"like":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("react: status = %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/groups/"+g.ID+"/events/"+event.ID+"/reactions", "")
	var counts struct {
		Count   int  `json:"count"`
		Reacted bool `json:"reacted"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decode counts: %v", err)
	}
	if counts.Count != 1 || !counts.Reacted {
		t.Errorf("counts = %+v, want 1/true", counts)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	router, sess := newTestRouter(t)
	g, _ := sess.CreateGroup("ops")

	// No announcement published yet.
	w := doJSON(t, router, "GET", "/groups/"+g.ID+"/announcement", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing announcement: status = %d, want 404", w.Code)
	}

	// The default channel cannot be pinned.
	w = doJSON(t, router, "PUT", "/groups/"+g.ID+"/channels/general/pin", `{"pinned":true}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("pin general: status = %d, want 400", w.Code)
	}

	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if payload.Code == "" {
		t.Error("error response missing machine-readable code")
	}
}

func TestGetGroupMissingFromStore(t *testing.T) {
	router, sess := newTestRouter(t)

	// Session state exists but the group row was never persisted; the lookup
	// miss must read as 404, not as a storage failure.
	g, _ := sess.CreateGroup("ops")
	w := doJSON(t, router, "GET", "/groups/"+g.ID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("group missing from store: status = %d, want 404", w.Code)
	}
}
