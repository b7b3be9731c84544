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
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
)

// BuildWelcome produces the opaque payload an admin attaches to an invite:
// the current group state plus the current epoch secret. In transit it rides
// inside an encrypted DM to the invitee; at this layer it is already bytes.
func (e *Engine) BuildWelcome(groupID string) ([]byte, error) {
	state, err := e.session.State(groupID)
	if err != nil {
		return nil, err
	}
	_, secret, err := e.session.ExportSecret(groupID)
	if err != nil {
		return nil, err
	}
	payload := models.SnapshotPayload{
		State:       state,
		EpochSecret: secret,
		TakenAt:     time.Now().UTC(),
	}
	return json.Marshal(payload)
}

// RecordInvite stores an inbound invitation for later accept/reject.
func (e *Engine) RecordInvite(groupID, inviter string, welcome []byte) (models.Invite, error) {
	inv := models.Invite{
		ID:         uuid.New().String(),
		GroupID:    groupID,
		Inviter:    inviter,
		Payload:    welcome,
		ReceivedAt: time.Now().UTC(),
	}
	if err := e.store.SaveInvite(inv); err != nil {
		return models.Invite{}, errors.Wrap(errors.CodeInternal, "save invite", err)
	}
	return inv, nil
}

// Invites lists pending invitations.
func (e *Engine) Invites() ([]models.Invite, error) {
	invites, err := e.store.ListInvites()
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "list invites", err)
	}
	return invites, nil
}

// AcceptInvite consumes an invitation: the welcome payload is imported into
// the session, the group becomes known locally, and the record is gone. A
// second accept (or reject) of the same id fails with NotFound.
func (e *Engine) AcceptInvite(ctx context.Context, inviteID string) (*models.Group, error) {
	inv, err := e.store.GetInvite(inviteID)
	if err != nil || inv == nil {
		return nil, errors.ErrInviteNotFound
	}

	var welcome models.SnapshotPayload
	if err := json.Unmarshal(inv.Payload, &welcome); err != nil {
		return nil, errors.InvalidArg("invite carries a malformed welcome payload")
	}
	if welcome.State.GroupID != inv.GroupID {
		return nil, errors.InvalidArg("welcome payload does not match invite group")
	}
	if err := e.session.ImportState(welcome.State, welcome.EpochSecret); err != nil {
		return nil, err
	}

	group := models.Group{
		ID:        inv.GroupID,
		Name:      welcome.State.Name,
		CreatedBy: inv.Inviter,
		CreatedAt: time.Now().UTC(),
	}
	if ann, err := e.ResolveAnnouncement(ctx, inv.GroupID); err == nil {
		group.Name = ann.Name
		group.CreatedBy = ann.Owner
	}
	if err := e.store.SaveGroup(group); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "save group", err)
	}
	if err := e.store.DeleteInvite(inviteID); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "consume invite", err)
	}
	e.notifyGroup(inv.GroupID)
	return &group, nil
}

// RejectInvite discards an invitation without any other state change.
func (e *Engine) RejectInvite(inviteID string) error {
	inv, err := e.store.GetInvite(inviteID)
	if err != nil || inv == nil {
		return errors.ErrInviteNotFound
	}
	if err := e.store.DeleteInvite(inviteID); err != nil {
		return errors.Wrap(errors.CodeInternal, "discard invite", err)
	}
	return nil
}
