// Package reconciler drains the order queue against the order service,
// reusing the idempotency key each entry was created with.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fjod/posify/internal/domain"
	"golang.org/x/time/rate"
)

type Submitter interface {
	SubmitOrder(ctx context.Context, payload domain.OrderPayload) (*domain.OrderResult, error)
}

type Store interface {
	ListQueued() []domain.QueueEntry
	ListFailed() []domain.QueueEntry
	Get(key string) (domain.QueueEntry, domain.Partition, bool)
	MarkProcessed(ctx context.Context, key string) error
	MarkFailed(ctx context.Context, key, errMsg string) error
}

// SyncCommand asks for one entry to be synced, or all of them when Key is empty.
type SyncCommand struct {
	Key string
}

type EntryResult struct {
	Key       string              `json:"idempotency_key"`
	Partition domain.Partition    `json:"partition"`
	Order     *domain.OrderResult `json:"order,omitempty"`
	Error     string              `json:"error,omitempty"`
	Warning   string              `json:"warning,omitempty"`
}

type Report struct {
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Results   []EntryResult `json:"results"`
}

func (r *Report) add(res EntryResult) {
	r.Attempted++
	if res.Error == "" {
		r.Succeeded++
	} else {
		r.Failed++
	}
	r.Results = append(r.Results, res)
}

type Config struct {
	Interval      time.Duration
	RatePerSecond float64
}

type Reconciler struct {
	store     Store
	submitter Submitter
	limiter   *rate.Limiter
	interval  time.Duration
	log       *slog.Logger
	running   atomic.Bool
}

func New(store Store, submitter Submitter, cfg Config, log *slog.Logger) *Reconciler {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		store:     store,
		submitter: submitter,
		limiter:   rate.NewLimiter(limit, 1),
		interval:  cfg.Interval,
		log:       log,
	}
}

// Execute runs cmd until it finishes or ctx is cancelled.
func (r *Reconciler) Execute(ctx context.Context, cmd SyncCommand) (Report, error) {
	if cmd.Key == "" {
		return r.SyncAll(ctx)
	}
	var report Report
	res, err := r.SyncOne(ctx, cmd.Key)
	if err != nil {
		return report, err
	}
	report.add(res)
	return report, nil
}

// SyncAll submits every queued entry and then every failed entry, oldest
// first, one at a time.
func (r *Reconciler) SyncAll(ctx context.Context) (Report, error) {
	var report Report
	if !r.running.CompareAndSwap(false, true) {
		return report, domain.ErrSyncInProgress
	}
	defer r.running.Store(false)

	entries := append(r.store.ListQueued(), r.store.ListFailed()...)
	if len(entries) == 0 {
		return report, nil
	}
	r.log.Info("sync started", "entries", len(entries))

	for _, e := range entries {
		if err := r.limiter.Wait(ctx); err != nil {
			return report, err
		}
		// the entry may have been processed or removed meanwhile
		if _, p, ok := r.store.Get(e.IdempotencyKey); !ok || p == domain.PartitionProcessed {
			continue
		}
		res, err := r.syncEntry(ctx, e)
		if err != nil {
			return report, err
		}
		report.add(res)
	}

	r.log.Info("sync finished",
		"attempted", report.Attempted, "succeeded", report.Succeeded, "failed", report.Failed)
	return report, nil
}

// SyncOne submits a single queued or failed entry. A processed key is
// reported as is without contacting the order service.
func (r *Reconciler) SyncOne(ctx context.Context, key string) (EntryResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return EntryResult{}, domain.ErrSyncInProgress
	}
	defer r.running.Store(false)

	e, p, ok := r.store.Get(key)
	if !ok {
		return EntryResult{}, domain.ErrEntryNotFound
	}
	if p == domain.PartitionProcessed {
		return EntryResult{Key: key, Partition: p}, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return EntryResult{}, err
	}
	return r.syncEntry(ctx, e)
}

// Run syncs the queue every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := r.SyncAll(ctx); err != nil &&
				!errors.Is(err, domain.ErrSyncInProgress) && ctx.Err() == nil {
				r.log.Warn("periodic sync failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// syncEntry returns an error only when ctx was cancelled; the entry is then
// left where it was.
func (r *Reconciler) syncEntry(ctx context.Context, e domain.QueueEntry) (EntryResult, error) {
	key := e.IdempotencyKey
	res := EntryResult{Key: key}

	order, err := r.submitter.SubmitOrder(ctx, e.Payload)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		r.log.Warn("order sync failed",
			"idempotency_key", key, "network", domain.IsNetwork(err), "error", err)
		res.Error = err.Error()
		res.Partition = domain.PartitionFailed
		if perr := r.store.MarkFailed(context.WithoutCancel(ctx), key, err.Error()); perr != nil {
			res.Warning = perr.Error()
		}
		return res, nil
	}

	r.log.Info("order synced",
		"idempotency_key", key, "order_id", order.OrderID, "duplicate", order.Duplicate)
	res.Order = order
	res.Partition = domain.PartitionProcessed
	// the order exists remotely; record it even if the caller is gone
	if perr := r.store.MarkProcessed(context.WithoutCancel(ctx), key); perr != nil {
		res.Warning = perr.Error()
	}
	return res, nil
}
