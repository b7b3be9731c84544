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

	"github.com/gorilla/mux"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
	"github.com/veilchat/veil/backend/sync"
)

type ChannelHandler struct {
	engine *sync.Engine
}

func NewChannelHandler(engine *sync.Engine) *ChannelHandler {
	return &ChannelHandler{engine: engine}
}

func (h *ChannelHandler) SetPin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req struct {
		Pinned bool `json:"pinned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidArg("invalid pin body"))
		return
	}
	if err := h.engine.SetChannelPin(r.Context(), vars["groupId"], vars["channel"], req.Pinned); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *ChannelHandler) SetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req struct {
		Order float64 `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidArg("invalid order body"))
		return
	}
	if err := h.engine.SetChannelOrder(r.Context(), vars["groupId"], vars["channel"], req.Order); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *ChannelHandler) ListPinned(w http.ResponseWriter, r *http.Request) {
	pinned, err := h.engine.PinnedChannels(mux.Vars(r)["groupId"])
	if err != nil {
		writeError(w, err)
		return
	}
	if pinned == nil {
		pinned = []models.ChannelMeta{}
	}
	writeJSON(w, http.StatusOK, pinned)
}
