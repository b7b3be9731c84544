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
	"github.com/veilchat/veil/backend/session"
	"github.com/veilchat/veil/backend/storage"
	"github.com/veilchat/veil/backend/sync"
)

type GroupHandler struct {
	session *session.Manager
	engine  *sync.Engine
	store   storage.GroupStore
}

func NewGroupHandler(sess *session.Manager, engine *sync.Engine, store storage.GroupStore) *GroupHandler {
	return &GroupHandler{session: sess, engine: engine, store: store}
}

func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Personal bool   `json:"personal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidArg("invalid request body"))
		return
	}
	if req.Name == "" {
		writeError(w, errors.InvalidArg("group name is required"))
		return
	}

	var (
		group models.Group
		err   error
	)
	if req.Personal {
		group, err = h.session.CreatePersonalGroup(req.Name)
	} else {
		group, err = h.session.CreateGroup(req.Name)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.SaveGroup(group); err != nil {
		writeError(w, errors.Wrap(errors.CodeInternal, "save group", err))
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.ListGroups()
	if err != nil {
		writeError(w, errors.Wrap(errors.CodeInternal, "list groups", err))
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]

	state, err := h.session.State(groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	group, err := h.store.GetGroup(groupID)
	if err != nil {
		writeError(w, errors.Wrap(errors.CodeInternal, "load group", err))
		return
	}
	if group == nil {
		writeError(w, errors.ErrGroupNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"group": group,
		"state": state,
	})
}

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]

	var req struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pubkey == "" {
		writeError(w, errors.InvalidArg("member pubkey is required"))
		return
	}

	state, err := h.session.AddMember(groupID, req.Pubkey)
	if err != nil {
		writeError(w, err)
		return
	}
	// Welcome blob for the invitee, to be carried out of band.
	welcome, err := h.engine.BuildWelcome(groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":   state,
		"welcome": base64.StdEncoding.EncodeToString(welcome),
	})
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	state, err := h.session.RemoveMember(vars["groupId"], vars["pubkey"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": state})
}

func (h *GroupHandler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	h.session.RemoveGroup(groupID)
	if err := h.store.DeleteGroup(groupID); err != nil {
		writeError(w, errors.Wrap(errors.CodeInternal, "delete group", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (h *GroupHandler) PublishAnnouncement(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]

	var ann models.Announcement
	if err := json.NewDecoder(r.Body).Decode(&ann); err != nil {
		writeError(w, errors.InvalidArg("invalid announcement body"))
		return
	}
	ann.GroupID = groupID
	if err := h.engine.PublishAnnouncement(r.Context(), ann); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "published"})
}

func (h *GroupHandler) GetAnnouncement(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	ann, err := h.engine.ResolveAnnouncement(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ann)
}
