package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/posify/internal/domain"
	"github.com/fjod/posify/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T) (*SQLitePersister, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	p, err := NewSQLitePersister(path, "device-1")
	require.NoError(t, err)
	require.NoError(t, p.RunMigrations("./migrations"))
	t.Cleanup(func() { _ = p.Close() })
	return p, path
}

func setupRedis(t *testing.T) (*RedisPersister, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPersister(client, "device-1"), mr
}

func sampleSnapshot() *queue.Snapshot {
	queuedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	failedAt := queuedAt.Add(time.Minute)
	return &queue.Snapshot{
		Queued: []domain.QueueEntry{{
			IdempotencyKey: "k1",
			Payload:        domain.OrderPayload{IdempotencyKey: "k1", OrganizationID: "org-1", Currency: "USD"},
			QueuedAt:       queuedAt,
		}},
		Failed: []domain.QueueEntry{{
			IdempotencyKey: "k2",
			QueuedAt:       queuedAt,
			Error:          "timeout",
			FailedAt:       &failedAt,
			Attempts:       2,
		}},
		Processed: []string{"k3"},
	}
}

func assertSnapshot(t *testing.T, want, got *queue.Snapshot) {
	t.Helper()
	require.Len(t, got.Queued, len(want.Queued))
	require.Len(t, got.Failed, len(want.Failed))
	assert.Equal(t, want.Queued[0].IdempotencyKey, got.Queued[0].IdempotencyKey)
	assert.Equal(t, "USD", got.Queued[0].Payload.Currency)
	assert.True(t, want.Queued[0].QueuedAt.Equal(got.Queued[0].QueuedAt))
	assert.Equal(t, "timeout", got.Failed[0].Error)
	assert.Equal(t, 2, got.Failed[0].Attempts)
	require.NotNil(t, got.Failed[0].FailedAt)
	assert.Equal(t, want.Processed, got.Processed)
}

func TestSQLiteLoadEmpty(t *testing.T) {
	p, _ := setupSQLite(t)

	s, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.Queued)
	assert.Empty(t, s.Failed)
	assert.Empty(t, s.Processed)
}

func TestSQLiteSaveReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	p, _ := setupSQLite(t)

	require.NoError(t, p.Save(ctx, &queue.Snapshot{Processed: []string{"old"}}))
	want := sampleSnapshot()
	require.NoError(t, p.Save(ctx, want))

	got, err := p.Load(ctx)
	require.NoError(t, err)
	assertSnapshot(t, want, got)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	p, path := setupSQLite(t)
	want := sampleSnapshot()
	require.NoError(t, p.Save(ctx, want))
	require.NoError(t, p.Close())

	reopened, err := NewSQLitePersister(path, "device-1")
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.RunMigrations("./migrations"))

	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assertSnapshot(t, want, got)
}

func TestSQLiteNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	p, path := setupSQLite(t)
	require.NoError(t, p.Save(ctx, sampleSnapshot()))

	other, err := NewSQLitePersister(path, "device-2")
	require.NoError(t, err)
	defer other.Close()

	s, err := other.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, s.Queued)
}

func TestSQLiteCancelledContext(t *testing.T) {
	p, _ := setupSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, p.Save(ctx, sampleSnapshot()))
}

func TestRedisLoadMissingKey(t *testing.T) {
	p, _ := setupRedis(t)

	s, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.Queued)
}

func TestRedisRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, mr := setupRedis(t)
	want := sampleSnapshot()

	require.NoError(t, p.Save(ctx, want))
	assert.True(t, mr.Exists("pos:queue:device-1"))
	assert.Zero(t, mr.TTL("pos:queue:device-1"))

	got, err := p.Load(ctx)
	require.NoError(t, err)
	assertSnapshot(t, want, got)
}

func TestRedisCorruptPayload(t *testing.T) {
	p, mr := setupRedis(t)
	require.NoError(t, mr.Set("pos:queue:device-1", "{not json"))

	_, err := p.Load(context.Background())
	assert.Error(t, err)
}

func TestRedisUnavailable(t *testing.T) {
	p, mr := setupRedis(t)
	mr.Close()

	err := p.Save(context.Background(), sampleSnapshot())
	assert.Error(t, err)
}

func TestStoreOnSQLite(t *testing.T) {
	ctx := context.Background()
	p, _ := setupSQLite(t)

	s, err := queue.NewStore(ctx, p)
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, domain.QueueEntry{IdempotencyKey: "k1"})
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, "k1", "offline"))

	restored, err := queue.NewStore(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStats{Failed: 1, Total: 1}, restored.Stats())
}
