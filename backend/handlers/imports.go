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
	"net/http"

	"github.com/gorilla/mux"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/importer"
)

type ImportHandler struct {
	importer *importer.Importer
}

func NewImportHandler(im *importer.Importer) *ImportHandler {
	return &ImportHandler{importer: im}
}

// Preview summarizes an uploaded feed without importing it. The request body
// is the raw JSON export.
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	feed, err := importer.ParseFeed(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, importer.Preview(feed))
}

// Run imports an uploaded feed into a group. Partial failure is a valid
// terminal state and reports both counters.
func (h *ImportHandler) Run(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]

	feed, err := importer.ParseFeed(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.importer.Import(r.Context(), groupID, feed, nil)
	if err != nil {
		var pf *errors.PartialFailure
		if errors.As(err, &pf) {
			writeJSON(w, http.StatusMultiStatus, result)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
