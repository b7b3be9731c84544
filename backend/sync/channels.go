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
	"log"
	"sort"
	"time"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
)

// channelMetaContent is the payload of a KindChannelMeta event.
type channelMetaContent struct {
	Channel string   `json:"channel"`
	Pinned  bool     `json:"pinned"`
	Order   *float64 `json:"order,omitempty"`
}

func (e *Engine) applyChannelMeta(groupID string, event *models.Event) {
	var content channelMetaContent
	if err := json.Unmarshal([]byte(event.Content), &content); err != nil || content.Channel == "" {
		log.Printf("[sync] malformed channel metadata event %s", event.ID)
		return
	}
	if content.Channel == models.DefaultChannel {
		return
	}

	// Last-writer-wins against what we already hold.
	existing, err := e.store.GetChannelMeta(groupID)
	if err == nil {
		for _, meta := range existing {
			if meta.Channel == content.Channel && meta.UpdatedAt.After(event.CreatedAt) {
				return
			}
		}
	}

	meta := models.ChannelMeta{
		GroupID:   groupID,
		Channel:   content.Channel,
		Pinned:    content.Pinned,
		Order:     content.Order,
		UpdatedAt: event.CreatedAt,
	}
	if err := e.store.SaveChannelMeta(meta); err != nil {
		log.Printf("[sync] failed to persist channel metadata: %v", err)
	}
}

// SetChannelPin pins or unpins a channel, preserving its order value. The
// default channel cannot be pinned or unpinned.
func (e *Engine) SetChannelPin(ctx context.Context, groupID, channel string, pinned bool) error {
	if channel == models.DefaultChannel {
		return errors.InvalidArg("the general channel cannot be pinned or unpinned")
	}
	var order *float64
	if metas, err := e.store.GetChannelMeta(groupID); err == nil {
		for _, meta := range metas {
			if meta.Channel == channel {
				order = meta.Order
			}
		}
	}
	return e.publishChannelMeta(ctx, groupID, channelMetaContent{Channel: channel, Pinned: pinned, Order: order})
}

// SetChannelOrder assigns a sort position among pinned channels. The default
// channel cannot be reordered.
func (e *Engine) SetChannelOrder(ctx context.Context, groupID, channel string, order float64) error {
	if channel == models.DefaultChannel {
		return errors.InvalidArg("the general channel cannot be reordered")
	}
	pinned := false
	if metas, err := e.store.GetChannelMeta(groupID); err == nil {
		for _, meta := range metas {
			if meta.Channel == channel {
				pinned = meta.Pinned
			}
		}
	}
	return e.publishChannelMeta(ctx, groupID, channelMetaContent{Channel: channel, Pinned: pinned, Order: &order})
}

func (e *Engine) publishChannelMeta(ctx context.Context, groupID string, content channelMetaContent) error {
	payload, err := json.Marshal(content)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "marshal channel metadata", err)
	}
	event := &models.Event{
		Kind:      models.KindChannelMeta,
		Content:   string(payload),
		CreatedAt: time.Now().UTC(),
	}
	return e.Publish(ctx, groupID, event)
}

// PinnedChannels returns the pinned channels of a group, ascending by order
// with unset order last and ties broken by name. The default channel is
// excluded under all conditions.
func (e *Engine) PinnedChannels(groupID string) ([]models.ChannelMeta, error) {
	metas, err := e.store.GetChannelMeta(groupID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "load channel metadata", err)
	}

	var pinned []models.ChannelMeta
	for _, meta := range metas {
		if meta.Channel == models.DefaultChannel || !meta.Pinned {
			continue
		}
		pinned = append(pinned, meta)
	}
	sort.Slice(pinned, func(i, j int) bool {
		a, b := pinned[i].OrderValue(), pinned[j].OrderValue()
		if a != b {
			return a < b
		}
		return pinned[i].Channel < pinned[j].Channel
	})
	return pinned, nil
}
