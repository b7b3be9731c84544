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

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Group is the local record of a group. The id is a 32-byte value rendered
// as hex. A personal group is a private single-member group used for
// self-addressed drafts and uploads.
type Group struct {
	ID         string    `json:"group_id" db:"group_id"`
	Name       string    `json:"name" db:"name"`
	CreatedBy  string    `json:"created_by" db:"created_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	IsPersonal bool      `json:"is_personal" db:"is_personal"`
}

// Announcement is the public, unencrypted descriptor of a group. Edits
// republish; the newest announcement by creation time wins.
type Announcement struct {
	EventID   string    `json:"event_id"`
	GroupID   string    `json:"group_id"`
	Name      string    `json:"name"`
	About     string    `json:"about"`
	Picture   string    `json:"picture"`
	Cover     string    `json:"cover"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	Pubkey   string    `json:"pubkey" db:"pubkey"`
	Role     string    `json:"role" db:"role"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}

// GroupState is the snapshot-serializable membership and epoch state of a
// group. Epoch secrets travel separately.
type GroupState struct {
	GroupID string   `json:"group_id"`
	Name    string   `json:"name"`
	Epoch   uint64   `json:"epoch"`
	Members []Member `json:"members"`
}

// Hash returns a canonical hash of the state: members sorted by pubkey,
// join times reduced to unix seconds. Used to detect unsnapshotted changes.
func (s GroupState) Hash() string {
	members := make([]Member, len(s.Members))
	copy(members, s.Members)
	sort.Slice(members, func(i, j int) bool { return members[i].Pubkey < members[j].Pubkey })

	type canonMember struct {
		Pubkey string `json:"pubkey"`
		Role   string `json:"role"`
		Joined int64  `json:"joined"`
	}
	canon := struct {
		GroupID string        `json:"group_id"`
		Epoch   uint64        `json:"epoch"`
		Members []canonMember `json:"members"`
	}{GroupID: s.GroupID, Epoch: s.Epoch, Members: make([]canonMember, 0, len(members))}
	for _, m := range members {
		canon.Members = append(canon.Members, canonMember{m.Pubkey, m.Role, m.JoinedAt.Unix()})
	}
	data, _ := json.Marshal(canon)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Invite is an inbound join invitation. Payload is the opaque welcome blob
// (group state plus current epoch secret) produced by the inviter. Consumed
// exactly once by accept or reject.
type Invite struct {
	ID         string    `json:"invite_id" db:"invite_id"`
	GroupID    string    `json:"group_id" db:"group_id"`
	Inviter    string    `json:"inviter" db:"inviter"`
	Payload    []byte    `json:"payload" db:"payload"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}
