package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/posify/internal/domain"
	"github.com/fjod/posify/internal/reconciler"
	"github.com/go-chi/chi/v5"
)

type QueueStore interface {
	ListQueued() []domain.QueueEntry
	ListFailed() []domain.QueueEntry
	Stats() domain.QueueStats
	Retry(ctx context.Context, key string) error
	Remove(ctx context.Context, key string) error
	ClearQueued(ctx context.Context) error
	ClearFailed(ctx context.Context) error
	ClearProcessed(ctx context.Context) error
	ClearAll(ctx context.Context) error
}

type Syncer interface {
	Execute(ctx context.Context, cmd reconciler.SyncCommand) (reconciler.Report, error)
}

type QueueHandler struct {
	store   QueueStore
	syncer  Syncer
	timeout time.Duration
}

func NewQueueHandler(store QueueStore, syncer Syncer, timeout time.Duration) *QueueHandler {
	return &QueueHandler{store: store, syncer: syncer, timeout: timeout}
}

type QueueResponseDTO struct {
	Queued  []domain.QueueEntry `json:"queued"`
	Failed  []domain.QueueEntry `json:"failed"`
	Stats   domain.QueueStats   `json:"stats"`
	Warning string              `json:"warning,omitempty"`
}

type SyncResponseDTO struct {
	Report reconciler.Report `json:"report"`
	Stats  domain.QueueStats `json:"stats"`
}

// GET /api/v1/queue
func (h *QueueHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	h.respondQueue(w, "")
}

// GET /api/v1/queue/stats
func (h *QueueHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Stats())
}

// POST /api/v1/queue/sync
func (h *QueueHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	h.sync(w, r, reconciler.SyncCommand{})
}

// POST /api/v1/queue/{key}/sync
func (h *QueueHandler) SyncOne(w http.ResponseWriter, r *http.Request) {
	h.sync(w, r, reconciler.SyncCommand{Key: chi.URLParam(r, "key")})
}

func (h *QueueHandler) sync(w http.ResponseWriter, r *http.Request, cmd reconciler.SyncCommand) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.syncer.Execute(ctx, cmd)
	if err != nil {
		handleError(w, err)
		return
	}
	if report.Results == nil {
		report.Results = make([]reconciler.EntryResult, 0)
	}
	respondJSON(w, http.StatusOK, SyncResponseDTO{Report: report, Stats: h.store.Stats()})
}

// POST /api/v1/queue/{key}/retry
func (h *QueueHandler) Retry(w http.ResponseWriter, r *http.Request) {
	warning, err := warningOf(h.store.Retry(r.Context(), chi.URLParam(r, "key")))
	if err != nil {
		handleError(w, err)
		return
	}
	h.respondQueue(w, warning)
}

// DELETE /api/v1/queue/{key}
func (h *QueueHandler) Remove(w http.ResponseWriter, r *http.Request) {
	warning, err := warningOf(h.store.Remove(r.Context(), chi.URLParam(r, "key")))
	if err != nil {
		handleError(w, err)
		return
	}
	h.respondQueue(w, warning)
}

// DELETE /api/v1/queue?partition=queued|failed|processed
//
// Without a partition everything is cleared.
func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var clearFn func(context.Context) error
	switch domain.Partition(r.URL.Query().Get("partition")) {
	case "":
		clearFn = h.store.ClearAll
	case domain.PartitionQueued:
		clearFn = h.store.ClearQueued
	case domain.PartitionFailed:
		clearFn = h.store.ClearFailed
	case domain.PartitionProcessed:
		clearFn = h.store.ClearProcessed
	default:
		respondError(w, http.StatusBadRequest, "invalid_partition", "partition must be queued, failed or processed")
		return
	}

	warning, err := warningOf(clearFn(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}
	h.respondQueue(w, warning)
}

func (h *QueueHandler) respondQueue(w http.ResponseWriter, warning string) {
	resp := QueueResponseDTO{
		Queued:  h.store.ListQueued(),
		Failed:  h.store.ListFailed(),
		Stats:   h.store.Stats(),
		Warning: warning,
	}
	if resp.Queued == nil {
		resp.Queued = make([]domain.QueueEntry, 0)
	}
	if resp.Failed == nil {
		resp.Failed = make([]domain.QueueEntry, 0)
	}
	respondJSON(w, http.StatusOK, resp)
}
