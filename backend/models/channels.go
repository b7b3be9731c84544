// Copyright (C) 2025 veil.chat <dev@veil.chat>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import (
	"math"
	"time"
)

// DefaultChannel is excluded from pin/unpin and reorder operations.
const DefaultChannel = "general"

// ChannelMeta carries per-channel extras. Order is meaningful only among
// pinned channels, compared ascending; nil sorts last.
type ChannelMeta struct {
	GroupID   string    `json:"group_id" db:"group_id"`
	Channel   string    `json:"channel" db:"channel"`
	Pinned    bool      `json:"pinned" db:"pinned"`
	Order     *float64  `json:"order,omitempty" db:"sort_order"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// OrderValue returns the sort key for pin ordering; unset order sorts last,
// after any explicit order however large.
func (c ChannelMeta) OrderValue() float64 {
	if c.Order == nil {
		return math.Inf(1)
	}
	return *c.Order
}
