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
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
	"github.com/veilchat/veil/backend/sync"
)

type TimelineHandler struct {
	engine *sync.Engine
}

func NewTimelineHandler(engine *sync.Engine) *TimelineHandler {
	return &TimelineHandler{engine: engine}
}

// GetTimeline returns the cached timeline, or pages backwards through relay
// history when a before cursor is given.
func (h *TimelineHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, errors.InvalidArg("limit must be a positive integer"))
			return
		}
		limit = n
	}

	if raw := r.URL.Query().Get("before"); raw != "" {
		before, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, errors.InvalidArg("before must be RFC3339"))
			return
		}
		events, err := h.engine.LoadMore(r.Context(), groupID, before, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeEvents(w, events)
		return
	}

	writeEvents(w, h.engine.Timeline(groupID, limit))
}

func writeEvents(w http.ResponseWriter, events []*models.Event) {
	if events == nil {
		events = []*models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *TimelineHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]

	var req struct {
		Content string       `json:"content"`
		Tags    []models.Tag `json:"tags,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeError(w, errors.InvalidArg("message content is required"))
		return
	}

	event := &models.Event{
		Kind:      models.KindMessage,
		Content:   req.Content,
		Tags:      req.Tags,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.engine.Publish(r.Context(), groupID, event); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *TimelineHandler) React(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req struct {
		Like bool `json:"like"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidArg("invalid reaction body"))
		return
	}
	if err := h.engine.React(r.Context(), vars["groupId"], vars["eventId"], req.Like); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reacted"})
}

func (h *TimelineHandler) GetReactions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	groupID, eventID := vars["groupId"], vars["eventId"]
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   h.engine.ReactionCount(groupID, eventID),
		"reacted": h.engine.HasUserReacted(groupID, eventID),
	})
}

func (h *TimelineHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	if err := h.engine.Refresh(r.Context(), groupID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "refreshed",
		"undecryptable": h.engine.UndecryptableCount(groupID),
	})
}

// RetryPending re-drives envelopes queued while the relay was unreachable.
func (h *TimelineHandler) RetryPending(w http.ResponseWriter, r *http.Request) {
	err := h.engine.RetryPending(r.Context())
	if err != nil {
		var pf *errors.PartialFailure
		if errors.As(err, &pf) {
			writeJSON(w, http.StatusMultiStatus, map[string]int{
				"delivered": pf.Succeeded,
				"failed":    pf.Failed,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "drained"})
}
