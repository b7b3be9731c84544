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

	"github.com/veilchat/veil/backend/backup"
	"github.com/veilchat/veil/backend/errors"
)

type BackupHandler struct {
	service *backup.Service
}

func NewBackupHandler(service *backup.Service) *BackupHandler {
	return &BackupHandler{service: service}
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	err := h.service.ManualBackup(r.Context())
	if err != nil {
		var pf *errors.PartialFailure
		if errors.As(err, &pf) {
			writeJSON(w, http.StatusMultiStatus, map[string]int{
				"snapshotted": pf.Succeeded,
				"failed":      pf.Failed,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "backed_up"})
}

// Credential returns a fresh recovery token. It is never stored server-side;
// this response is the only copy.
func (h *BackupHandler) Credential(w http.ResponseWriter, r *http.Request) {
	token, err := h.service.GenerateCredential(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"credential": token})
}

func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credential string `json:"credential"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Credential == "" {
		writeError(w, errors.InvalidArg("credential is required"))
		return
	}

	restored, err := h.service.Restore(r.Context(), req.Credential)
	if err != nil {
		var pf *errors.PartialFailure
		if errors.As(err, &pf) {
			writeJSON(w, http.StatusMultiStatus, map[string]int{
				"restored": pf.Succeeded,
				"failed":   pf.Failed,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"restored": restored})
}
