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

package importer

import (
	"context"
	"encoding/json"
	"io"
	"log"

	"github.com/veilchat/veil/backend/errors"
	"github.com/veilchat/veil/backend/models"
	"github.com/veilchat/veil/backend/sync"
)

// Importer replays an external plaintext feed into a group as ordinary
// encrypted messages. Original authors have no keys here; they survive as a
// display tag on each imported event, authored by the importing account.
type Importer struct {
	engine *sync.Engine
}

func NewImporter(engine *sync.Engine) *Importer {
	return &Importer{engine: engine}
}

// ProgressFunc is called after every processed message, failures included,
// so a UI can render a complete progress bar.
type ProgressFunc func(done, total int)

// ParseFeed decodes a JSON export: an array of {author, body, timestamp}.
func ParseFeed(r io.Reader) ([]models.ExternalMessage, error) {
	var feed []models.ExternalMessage
	if err := json.NewDecoder(r).Decode(&feed); err != nil {
		return nil, errors.InvalidArg("feed is not a valid message export")
	}
	return feed, nil
}

// Preview summarizes a feed without importing anything.
func Preview(feed []models.ExternalMessage) models.ImportPreview {
	preview := models.ImportPreview{
		Messages:  len(feed),
		PerAuthor: make(map[string]int),
	}
	for _, msg := range feed {
		preview.PerAuthor[msg.Author]++
		if preview.Earliest.IsZero() || msg.Timestamp.Before(preview.Earliest) {
			preview.Earliest = msg.Timestamp
		}
		if msg.Timestamp.After(preview.Latest) {
			preview.Latest = msg.Timestamp
		}
	}
	preview.Authors = len(preview.PerAuthor)
	return preview
}

// Import publishes every feed message into the group, preserving original
// timestamps. A malformed or unpublishable message is counted and skipped;
// the batch never aborts halfway. Failed > 0 surfaces as a partial failure
// with the full result still returned.
func (im *Importer) Import(ctx context.Context, groupID string, feed []models.ExternalMessage, onProgress ProgressFunc) (models.ImportResult, error) {
	var result models.ImportResult
	var causes []error
	total := len(feed)

	for i, msg := range feed {
		err := im.importOne(ctx, groupID, msg)
		if err != nil {
			result.Failed++
			causes = append(causes, err)
			log.Printf("[import] message %d/%d failed: %v", i+1, total, err)
		} else {
			result.Imported++
		}
		if onProgress != nil {
			onProgress(i+1, total)
		}
	}

	if result.Failed > 0 {
		return result, errors.NewPartialFailure(result.Imported, result.Failed, causes)
	}
	return result, nil
}

func (im *Importer) importOne(ctx context.Context, groupID string, msg models.ExternalMessage) error {
	if msg.Author == "" {
		return errors.InvalidArg("message without an author")
	}
	if msg.Body == "" {
		return errors.InvalidArg("message without a body")
	}
	if msg.Timestamp.IsZero() {
		return errors.InvalidArg("message without a timestamp")
	}

	event := &models.Event{
		Kind:      models.KindMessage,
		Content:   msg.Body,
		Tags:      []models.Tag{{"import", msg.Author}},
		CreatedAt: msg.Timestamp.UTC(),
	}
	return im.engine.Publish(ctx, groupID, event)
}
