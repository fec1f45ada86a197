package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"burnt-beats-be/internal/jobs"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "job:snapshot:"

// JobSnapshotStore keeps the latest snapshot of each job in Redis so a
// polling client still gets an answer after a process restart evicts the
// in-memory state machine.
type JobSnapshotStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewJobSnapshotStore(rdb *redis.Client, ttl time.Duration) *JobSnapshotStore {
	return &JobSnapshotStore{rdb: rdb, ttl: ttl}
}

func (s *JobSnapshotStore) Save(ctx context.Context, snap jobs.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal job snapshot: %w", err)
	}
	return s.rdb.Set(ctx, keyPrefix+snap.Id.String(), data, s.ttl).Err()
}

func (s *JobSnapshotStore) Load(ctx context.Context, id uuid.UUID) (*jobs.Snapshot, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+id.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Not found
		}
		return nil, err
	}

	var snap jobs.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job snapshot: %w", err)
	}
	return &snap, nil
}
