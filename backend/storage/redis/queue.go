// Copyright (C) 2025 veil.chat <dev@veil.chat>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veilchat/veil/backend/models"
	"github.com/veilchat/veil/backend/storage"
)

const (
	// Pending envelopes survive a week; after that the publish is lost and
	// must be re-issued by the application.
	PendingTTL = 7 * 24 * time.Hour

	// Redis key prefixes
	queuePrefix    = "veil:queue:"  // veil:queue:{groupId} - list of envelope IDs
	envelopePrefix = "veil:env:"    // veil:env:{envelopeId} - envelope JSON
	groupSetKey    = "veil:pending" // set of group IDs with queued envelopes
	notifyPrefix   = "veil:notify:" // veil:notify:{groupId} - pub/sub channel
)

// QueueStore keeps envelopes that have not been acked by the relay yet, so a
// crash between encrypt and publish never silently drops an event.
type QueueStore struct {
	rdb *redis.Client
	ctx context.Context
}

var _ storage.Queue = (*QueueStore)(nil)

func NewQueueStore(rdb *redis.Client) *QueueStore {
	return &QueueStore{
		rdb: rdb,
		ctx: context.Background(),
	}
}

// Enqueue stores an undelivered envelope in the group's pending queue.
func (s *QueueStore) Enqueue(groupID string, env *models.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	envelopeKey := envelopePrefix + env.ID
	if err := s.rdb.Set(s.ctx, envelopeKey, data, PendingTTL).Err(); err != nil {
		return fmt.Errorf("failed to store envelope: %w", err)
	}

	queueKey := queuePrefix + groupID
	if err := s.rdb.RPush(s.ctx, queueKey, env.ID).Err(); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}
	s.rdb.Expire(s.ctx, queueKey, PendingTTL)

	if err := s.rdb.SAdd(s.ctx, groupSetKey, groupID).Err(); err != nil {
		return fmt.Errorf("failed to track pending group: %w", err)
	}
	return nil
}

// Pending returns the queued envelopes for a group in enqueue order,
// dropping ids whose payload already expired.
func (s *QueueStore) Pending(groupID string) ([]*models.Envelope, error) {
	queueKey := queuePrefix + groupID

	envelopeIDs, err := s.rdb.LRange(s.ctx, queueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	var pending []*models.Envelope
	for _, id := range envelopeIDs {
		data, err := s.rdb.Get(s.ctx, envelopePrefix+id).Result()
		if err == redis.Nil {
			s.rdb.LRem(s.ctx, queueKey, 1, id)
			continue
		} else if err != nil {
			return nil, fmt.Errorf("failed to get envelope: %w", err)
		}

		var env models.Envelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			continue // skip malformed entries
		}
		pending = append(pending, &env)
	}
	return pending, nil
}

// PendingGroups lists group ids that still have queued envelopes.
func (s *QueueStore) PendingGroups() ([]string, error) {
	groups, err := s.rdb.SMembers(s.ctx, groupSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending groups: %w", err)
	}
	return groups, nil
}

// Remove acknowledges a delivered envelope.
func (s *QueueStore) Remove(groupID, envelopeID string) error {
	queueKey := queuePrefix + groupID
	if err := s.rdb.LRem(s.ctx, queueKey, 1, envelopeID).Err(); err != nil {
		return fmt.Errorf("failed to remove from queue: %w", err)
	}
	s.rdb.Del(s.ctx, envelopePrefix+envelopeID)

	length := s.rdb.LLen(s.ctx, queueKey).Val()
	if length == 0 {
		s.rdb.Del(s.ctx, queueKey)
		s.rdb.SRem(s.ctx, groupSetKey, groupID)
	}
	return nil
}

// Notify publishes a change notification for out-of-process UI consumers.
func (s *QueueStore) Notify(groupID string, payload []byte) error {
	return s.rdb.Publish(s.ctx, notifyPrefix+groupID, payload).Err()
}

// SubscribeNotifications subscribes to change notifications for a group.
func (s *QueueStore) SubscribeNotifications(groupID string) *redis.PubSub {
	return s.rdb.Subscribe(s.ctx, notifyPrefix+groupID)
}
