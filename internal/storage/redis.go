package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/posify/internal/queue"
	"github.com/redis/go-redis/v9"
)

// RedisPersister stores the snapshot under a single key without expiry.
type RedisPersister struct {
	client    *redis.Client
	namespace string
}

func NewRedisPersister(client *redis.Client, namespace string) *RedisPersister {
	return &RedisPersister{client: client, namespace: namespace}
}

func (r *RedisPersister) Load(ctx context.Context) (*queue.Snapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey(r.namespace)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &queue.Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var s queue.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal queue snapshot failed: %w", err)
	}
	return &s, nil
}

func (r *RedisPersister) Save(ctx context.Context, snapshot *queue.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal queue snapshot failed: %w", err)
	}
	if err := r.client.Set(ctx, snapshotKey(r.namespace), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func snapshotKey(namespace string) string {
	return fmt.Sprintf("pos:queue:%s", namespace)
}
