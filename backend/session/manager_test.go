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

package session

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	id, err := NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	return NewManager(id)
}

// shareState hands the current group state and epoch secret from an admin's
// manager to another member's manager, standing in for the welcome message
// a real invite flow would deliver.
func shareState(t *testing.T, from, to *Manager, groupID string) {
	t.Helper()
	state, err := from.State(groupID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	_, secret, err := from.ExportSecret(groupID)
	if err != nil {
		t.Fatalf("ExportSecret: %v", err)
	}
	if err := to.ImportState(state, secret); err != nil {
		t.Fatalf("ImportState: %v", err)
	}
}

func testEvent(content string) *models.Event {
	return &models.Event{
		Kind:      models.KindMessage,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateGroup(t *testing.T) {
	m := newTestManager(t)
	g, err := m.CreateGroup("ops")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if len(g.ID) != 64 {
		t.Errorf("group id should be 32 bytes hex, got %q", g.ID)
	}
	state, err := m.State(g.ID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Epoch != 0 {
		t.Errorf("new group epoch = %d, want 0", state.Epoch)
	}
	if len(state.Members) != 1 {
		t.Fatalf("new group members = %d, want 1", len(state.Members))
	}
	if !m.IsAdmin(g.ID, m.Identity().Pub) {
		t.Error("creator should be admin")
	}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	m := newTestManager(t)
	g, _ := m.CreateGroup("ops")

	env, err := m.Encrypt(g.ID, testEvent("hello"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if env.Epoch != 0 {
		t.Errorf("envelope epoch = %d, want 0", env.Epoch)
	}

	event, err := m.Decrypt(env)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if event.Content != "hello" {
		t.Errorf("decrypted content = %q, want %q", event.Content, "hello")
	}
	if env.ID == event.ID {
		t.Error("envelope id must not equal inner event id")
	}
}

func TestEpochAdvancesOncePerMembershipChange(t *testing.T) {
	a := newTestManager(t)
	b := newTestManager(t)
	g, _ := a.CreateGroup("ops")

	state, err := a.AddMember(g.ID, b.Identity().Pub)
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if state.Epoch != 1 {
		t.Errorf("epoch after add = %d, want 1", state.Epoch)
	}

	state, err = a.RemoveMember(g.ID, b.Identity().Pub)
	if err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if state.Epoch != 2 {
		t.Errorf("epoch after remove = %d, want 2", state.Epoch)
	}
}

func TestAddMemberRequiresAdmin(t *testing.T) {
	a := newTestManager(t)
	b := newTestManager(t)
	c := newTestManager(t)
	g, _ := a.CreateGroup("ops")
	if _, err := a.AddMember(g.ID, b.Identity().Pub); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	shareState(t, a, b, g.ID)

	// b is a plain member of the same group and must not be able to add.
	if _, err := b.AddMember(g.ID, c.Identity().Pub); errors.CodeOf(err) != errors.CodeNotAdmin {
		t.Errorf("AddMember by non-admin: code = %v, want NOT_ADMIN", errors.CodeOf(err))
	}
	if _, err := b.RemoveMember(g.ID, a.Identity().Pub); errors.CodeOf(err) != errors.CodeNotAdmin {
		t.Errorf("RemoveMember by non-admin: code = %v, want NOT_ADMIN", errors.CodeOf(err))
	}
}

func TestRemoveMemberErrors(t *testing.T) {
	a := newTestManager(t)
	g, _ := a.CreateGroup("ops")

	if _, err := a.RemoveMember(g.ID, "deadbeef"); !stderrors.Is(err, errors.ErrNotAMember) {
		t.Errorf("RemoveMember of stranger: %v, want NotAMember", err)
	}
	if _, err := a.RemoveMember("missing", "deadbeef"); errors.CodeOf(err) != errors.CodeNotFound {
		t.Errorf("RemoveMember on unknown group: code = %v, want NOT_FOUND", errors.CodeOf(err))
	}
}

func TestBackwardOpacityOnJoin(t *testing.T) {
	a := newTestManager(t)
	b := newTestManager(t)
	g, _ := a.CreateGroup("ops")

	preJoin, err := a.Encrypt(g.ID, testEvent("before b joined"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := a.AddMember(g.ID, b.Identity().Pub); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	shareState(t, a, b, g.ID)

	// b can read traffic from its join epoch forward.
	postJoin, err := a.Encrypt(g.ID, testEvent("after b joined"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := b.Decrypt(postJoin); err != nil {
		t.Errorf("member cannot decrypt current-epoch traffic: %v", err)
	}

	// But never history from before it held membership.
	if _, err := b.Decrypt(preJoin); !stderrors.Is(err, errors.ErrDecryptFailed) {
		t.Errorf("pre-membership decrypt: %v, want DecryptFailure", err)
	}
}

func TestMembershipRevocation(t *testing.T) {
	a := newTestManager(t)
	b := newTestManager(t)
	g, _ := a.CreateGroup("ops")

	if _, err := a.AddMember(g.ID, b.Identity().Pub); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	shareState(t, a, b, g.ID)

	if _, err := a.RemoveMember(g.ID, b.Identity().Pub); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}

	env, err := a.Encrypt(g.ID, testEvent("post-removal"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// a still reads its own traffic; b holds every pre-removal secret and
	// must still fail.
	if _, err := a.Decrypt(env); err != nil {
		t.Errorf("sender cannot decrypt own message: %v", err)
	}
	if _, err := b.Decrypt(env); !stderrors.Is(err, errors.ErrDecryptFailed) {
		t.Errorf("removed member decrypt: %v, want DecryptFailure", err)
	}
}

func TestEncryptWithoutMembership(t *testing.T) {
	a := newTestManager(t)
	b := newTestManager(t)
	g, _ := a.CreateGroup("ops")

	if _, err := b.Encrypt(g.ID, testEvent("x")); errors.CodeOf(err) != errors.CodeNoActiveEpoch {
		t.Errorf("Encrypt without state: code = %v, want NO_ACTIVE_EPOCH", errors.CodeOf(err))
	}
}

func TestDecryptForeignAndCorrupt(t *testing.T) {
	a := newTestManager(t)
	g, _ := a.CreateGroup("ops")
	env, _ := a.Encrypt(g.ID, testEvent("x"))

	t.Run("corrupted ciphertext", func(t *testing.T) {
		bad := *env
		bad.Ciphertext = append([]byte(nil), env.Ciphertext...)
		bad.Ciphertext[0] ^= 0xff
		if _, err := a.Decrypt(&bad); !stderrors.Is(err, errors.ErrDecryptFailed) {
			t.Errorf("got %v, want DecryptFailure", err)
		}
	})

	t.Run("forged sender", func(t *testing.T) {
		bad := *env
		bad.SenderPub = "00" + env.SenderPub[2:]
		if _, err := a.Decrypt(&bad); !stderrors.Is(err, errors.ErrDecryptFailed) {
			t.Errorf("got %v, want DecryptFailure", err)
		}
	})

	t.Run("unknown group", func(t *testing.T) {
		bad := *env
		bad.GroupID = "ffff"
		if _, err := a.Decrypt(&bad); !stderrors.Is(err, errors.ErrDecryptFailed) {
			t.Errorf("got %v, want DecryptFailure", err)
		}
	})
}

func TestImportStateIdempotent(t *testing.T) {
	a := newTestManager(t)
	b := newTestManager(t)
	g, _ := a.CreateGroup("ops")
	if _, err := a.AddMember(g.ID, b.Identity().Pub); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	shareState(t, a, b, g.ID)
	shareState(t, a, b, g.ID) // re-run, as an interrupted restore would

	state, err := b.State(g.ID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if len(state.Members) != 2 {
		t.Errorf("members after double import = %d, want 2", len(state.Members))
	}
}

func TestImportStateNeverRollsBack(t *testing.T) {
	a := newTestManager(t)
	b := newTestManager(t)
	c := newTestManager(t)
	g, _ := a.CreateGroup("ops")
	if _, err := a.AddMember(g.ID, b.Identity().Pub); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	stale, _ := a.State(g.ID)
	_, staleSecret, _ := a.ExportSecret(g.ID)

	if _, err := a.AddMember(g.ID, c.Identity().Pub); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	shareState(t, a, b, g.ID)

	// Applying the stale snapshot afterwards must not move b backwards.
	if err := b.ImportState(stale, staleSecret); err != nil {
		t.Fatalf("ImportState: %v", err)
	}
	state, _ := b.State(g.ID)
	if state.Epoch != 2 {
		t.Errorf("epoch after stale import = %d, want 2", state.Epoch)
	}
}

func TestPersonalGroup(t *testing.T) {
	m := newTestManager(t)
	g, err := m.CreatePersonalGroup("drafts")
	if err != nil {
		t.Fatalf("CreatePersonalGroup: %v", err)
	}
	if !g.IsPersonal {
		t.Error("personal group should carry IsPersonal")
	}
}
