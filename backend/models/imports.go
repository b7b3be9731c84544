// Copyright (C) 2025 veil.chat <dev@veil.chat>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import "time"

// ExternalMessage is one entry of an external plaintext feed (a chat export).
type ExternalMessage struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// ImportPreview summarizes a feed before importing it.
type ImportPreview struct {
	Messages  int            `json:"messages"`
	Authors   int            `json:"authors"`
	PerAuthor map[string]int `json:"per_author"`
	Earliest  time.Time      `json:"earliest"`
	Latest    time.Time      `json:"latest"`
}

// ImportResult is the terminal state of an import batch. Failed > 0 means
// partial failure; both outcomes are valid terminal states.
type ImportResult struct {
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
}
