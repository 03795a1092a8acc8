package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fjod/posify/internal/domain"
)

// Snapshot is the whole durable state of the queue. Persisters replace it
// atomically; there are no partial writes.
type Snapshot struct {
	Queued    []domain.QueueEntry `json:"queuedOrders"`
	Failed    []domain.QueueEntry `json:"failedOrders"`
	Processed []string            `json:"processedOrders"`
}

// Persister loads and saves the queue snapshot under a single logical key.
// Load returns an empty snapshot when nothing was saved yet.
type Persister interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snapshot *Snapshot) error
}

// MemoryPersister keeps the encoded snapshot in memory. Used for tests and
// for running without durable storage.
type MemoryPersister struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Load(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return &Snapshot{}, nil
	}
	var s Snapshot
	if err := json.Unmarshal(m.data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal queue snapshot failed: %w", err)
	}
	return &s, nil
}

func (m *MemoryPersister) Save(_ context.Context, snapshot *Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal queue snapshot failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	return nil
}
