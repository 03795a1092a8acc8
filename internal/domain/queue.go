package domain

import "time"

type Partition string

const (
	PartitionQueued    Partition = "queued"
	PartitionFailed    Partition = "failed"
	PartitionProcessed Partition = "processed"
)

// QueueEntry is one order waiting for confirmation from the order service.
type QueueEntry struct {
	IdempotencyKey string       `json:"idempotency_key"`
	Payload        OrderPayload `json:"payload"`
	QueuedAt       time.Time    `json:"queued_at"`
	Error          string       `json:"error,omitempty"`
	FailedAt       *time.Time   `json:"failed_at,omitempty"`
	Attempts       int          `json:"attempts"`
}

type QueueStats struct {
	Queued    int `json:"queued"`
	Failed    int `json:"failed"`
	Processed int `json:"processed"`
	Total     int `json:"total"`
}
