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
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
	"github.com/veilchat/veil/backend/sync"
)

type InviteHandler struct {
	engine *sync.Engine
}

func NewInviteHandler(engine *sync.Engine) *InviteHandler {
	return &InviteHandler{engine: engine}
}

// RecordInvite stores an invitation received out of band.
func (h *InviteHandler) RecordInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupID string `json:"group_id"`
		Inviter string `json:"inviter"`
		Welcome string `json:"welcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GroupID == "" || req.Welcome == "" {
		writeError(w, errors.InvalidArg("group_id and welcome are required"))
		return
	}
	welcome, err := base64.StdEncoding.DecodeString(req.Welcome)
	if err != nil {
		writeError(w, errors.InvalidArg("welcome must be base64"))
		return
	}

	inv, err := h.engine.RecordInvite(req.GroupID, req.Inviter, welcome)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *InviteHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.engine.Invites()
	if err != nil {
		writeError(w, err)
		return
	}
	if invites == nil {
		invites = []models.Invite{}
	}
	writeJSON(w, http.StatusOK, invites)
}

func (h *InviteHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	group, err := h.engine.AcceptInvite(r.Context(), mux.Vars(r)["inviteId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *InviteHandler) RejectInvite(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RejectInvite(mux.Vars(r)["inviteId"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}
