// Package queue keeps durable bookkeeping of orders that still wait for a
// confirmation from the order service.
//
// Every idempotency key lives in exactly one partition: queued, failed or
// processed. Processed is terminal; a processed key is kept as a tombstone
// so the same order can never be queued again.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fjod/posify/internal/domain"
)

const defaultSaveTimeout = 5 * time.Second

type Store struct {
	mu          sync.RWMutex
	persister   Persister
	log         *slog.Logger
	now         func() time.Time
	saveTimeout time.Duration

	queued    []domain.QueueEntry // ordered by QueuedAt
	failed    []domain.QueueEntry // ordered by QueuedAt
	processed map[string]struct{}
	tombstone []string // processed keys in insertion order
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithSaveTimeout bounds a single write to the persister.
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Store) { s.saveTimeout = d }
}

// NewStore restores the queue from p.
func NewStore(ctx context.Context, p Persister, opts ...Option) (*Store, error) {
	s := &Store{
		persister:   p,
		log:         slog.Default(),
		now:         time.Now,
		saveTimeout: defaultSaveTimeout,
		processed:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	snapshot, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	s.restore(snapshot)
	s.log.Info("order queue restored",
		"queued", len(s.queued), "failed", len(s.failed), "processed", len(s.tombstone))
	return s, nil
}

// restore rebuilds partitions from a snapshot, dropping anything that
// breaks the one-partition-per-key rule. Processed wins over failed, failed
// over queued.
func (s *Store) restore(snapshot *Snapshot) {
	if snapshot == nil {
		return
	}
	for _, key := range snapshot.Processed {
		if _, ok := s.processed[key]; ok {
			continue
		}
		s.processed[key] = struct{}{}
		s.tombstone = append(s.tombstone, key)
	}
	seen := make(map[string]struct{})
	for _, e := range snapshot.Failed {
		if _, ok := s.processed[e.IdempotencyKey]; ok {
			continue
		}
		if _, ok := seen[e.IdempotencyKey]; ok {
			continue
		}
		seen[e.IdempotencyKey] = struct{}{}
		s.failed = append(s.failed, e)
	}
	for _, e := range snapshot.Queued {
		if _, ok := s.processed[e.IdempotencyKey]; ok {
			continue
		}
		if _, ok := seen[e.IdempotencyKey]; ok {
			continue
		}
		seen[e.IdempotencyKey] = struct{}{}
		s.queued = append(s.queued, e)
	}
	sortFIFO(s.queued)
	sortFIFO(s.failed)
}

// Enqueue inserts entry into the queued partition. It reports false and
// does nothing when the key is already known in any partition.
func (s *Store) Enqueue(ctx context.Context, entry domain.QueueEntry) (bool, error) {
	if entry.IdempotencyKey == "" {
		return false, domain.NewValidationError("idempotency_key", "is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.knownLocked(entry.IdempotencyKey) {
		s.log.Debug("enqueue ignored, key already known", "idempotency_key", entry.IdempotencyKey)
		return false, nil
	}

	if entry.QueuedAt.IsZero() {
		entry.QueuedAt = s.now()
	}
	entry.Error = ""
	entry.FailedAt = nil
	s.queued = append(s.queued, entry)
	sortFIFO(s.queued)

	s.log.Info("order queued", "idempotency_key", entry.IdempotencyKey)
	return true, s.saveLocked(ctx, "enqueue")
}

// MarkProcessed moves key to the processed partition. Calling it again is harmless.
func (s *Store) MarkProcessed(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[key]; ok {
		return nil
	}
	s.queued, _ = removeKey(s.queued, key)
	s.failed, _ = removeKey(s.failed, key)
	s.processed[key] = struct{}{}
	s.tombstone = append(s.tombstone, key)

	s.log.Info("order processed", "idempotency_key", key)
	return s.saveLocked(ctx, "mark processed")
}

// MarkFailed moves key from queued to failed with the given error. If the
// key is already failed it is only removed from queued.
func (s *Store) MarkFailed(ctx context.Context, key, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		entry    domain.QueueEntry
		inQueued bool
	)
	s.queued, entry, inQueued = takeKey(s.queued, key)
	if indexOf(s.failed, key) >= 0 {
		if !inQueued {
			return nil
		}
		return s.saveLocked(ctx, "mark failed")
	}
	if !inQueued {
		return nil
	}

	failedAt := s.now()
	entry.Error = errMsg
	entry.FailedAt = &failedAt
	entry.Attempts++
	s.failed = append(s.failed, entry)
	sortFIFO(s.failed)

	s.log.Warn("order failed", "idempotency_key", key, "error", errMsg)
	return s.saveLocked(ctx, "mark failed")
}

// Retry moves key from failed back to queued without its error. Keys that
// are not failed are ignored.
func (s *Store) Retry(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		entry domain.QueueEntry
		ok    bool
	)
	s.failed, entry, ok = takeKey(s.failed, key)
	if !ok {
		return nil
	}
	entry.Error = ""
	entry.FailedAt = nil
	s.queued = append(s.queued, entry)
	sortFIFO(s.queued)

	s.log.Info("order retry scheduled", "idempotency_key", key)
	return s.saveLocked(ctx, "retry")
}

// Remove drops a queued or failed entry without marking it processed.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removedQueued, removedFailed bool
	s.queued, removedQueued = removeKey(s.queued, key)
	s.failed, removedFailed = removeKey(s.failed, key)
	if !removedQueued && !removedFailed {
		return domain.ErrEntryNotFound
	}
	s.log.Info("order removed from queue", "idempotency_key", key)
	return s.saveLocked(ctx, "remove")
}

func (s *Store) ClearQueued(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = nil
	return s.saveLocked(ctx, "clear queued")
}

func (s *Store) ClearFailed(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = nil
	return s.saveLocked(ctx, "clear failed")
}

// ClearProcessed forgets the tombstones. After this the store can no longer
// reject re-enqueue of those keys; the order service's idempotency still does.
func (s *Store) ClearProcessed(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = make(map[string]struct{})
	s.tombstone = nil
	return s.saveLocked(ctx, "clear processed")
}

func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = nil
	s.failed = nil
	s.processed = make(map[string]struct{})
	s.tombstone = nil
	return s.saveLocked(ctx, "clear all")
}

// ListQueued returns queued entries oldest first.
func (s *Store) ListQueued() []domain.QueueEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.queued)
}

// ListFailed returns failed entries oldest first.
func (s *Store) ListFailed() []domain.QueueEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.failed)
}

// Get finds key in any partition. Processed entries only carry the key.
func (s *Store) Get(key string) (domain.QueueEntry, domain.Partition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := indexOf(s.queued, key); i >= 0 {
		return s.queued[i], domain.PartitionQueued, true
	}
	if i := indexOf(s.failed, key); i >= 0 {
		return s.failed[i], domain.PartitionFailed, true
	}
	if _, ok := s.processed[key]; ok {
		return domain.QueueEntry{IdempotencyKey: key}, domain.PartitionProcessed, true
	}
	return domain.QueueEntry{}, "", false
}

func (s *Store) Stats() domain.QueueStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := domain.QueueStats{
		Queued:    len(s.queued),
		Failed:    len(s.failed),
		Processed: len(s.tombstone),
	}
	st.Total = st.Queued + st.Failed + st.Processed
	return st
}

func (s *Store) knownLocked(key string) bool {
	if _, ok := s.processed[key]; ok {
		return true
	}
	return indexOf(s.queued, key) >= 0 || indexOf(s.failed, key) >= 0
}

// saveLocked writes the whole state. On failure the in-memory state is kept
// and a *domain.PersistenceError is returned.
func (s *Store) saveLocked(ctx context.Context, op string) error {
	snapshot := &Snapshot{
		Queued:    slices.Clone(s.queued),
		Failed:    slices.Clone(s.failed),
		Processed: slices.Clone(s.tombstone),
	}
	// Memory has already changed, so the write must outlive a caller that
	// gave up. It is bounded by saveTimeout instead.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.saveTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, snapshot); err != nil {
		s.log.Warn("order queue not persisted", "op", op, "error", err)
		return &domain.PersistenceError{Op: op, Err: err}
	}
	return nil
}

func sortFIFO(entries []domain.QueueEntry) {
	slices.SortStableFunc(entries, func(a, b domain.QueueEntry) int {
		return a.QueuedAt.Compare(b.QueuedAt)
	})
}

func indexOf(entries []domain.QueueEntry, key string) int {
	return slices.IndexFunc(entries, func(e domain.QueueEntry) bool {
		return e.IdempotencyKey == key
	})
}

func takeKey(entries []domain.QueueEntry, key string) ([]domain.QueueEntry, domain.QueueEntry, bool) {
	i := indexOf(entries, key)
	if i < 0 {
		return entries, domain.QueueEntry{}, false
	}
	entry := entries[i]
	return slices.Delete(entries, i, i+1), entry, true
}

func removeKey(entries []domain.QueueEntry, key string) ([]domain.QueueEntry, bool) {
	entries, _, ok := takeKey(entries, key)
	return entries, ok
}
