// Package repository persists orders and their outbox events in Postgres.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderIDConflict means the generated order id is already taken.
	// Idempotency key conflicts never produce it; a retry with a new id does.
	ErrOrderIDConflict = errors.New("order id already exists")
)

const EventOrderCreated = "OrderCreated"

type Credentials struct {
	Host              string
	Port              string
	User              string
	Password          string
	DBName            string
	SSLMode           string
	MigrationsDirPath string
}

type Order struct {
	ID             uuid.UUID
	OrganizationID string
	IdempotencyKey string
	OrderNumber    int64
	Status         string
	Total          decimal.Decimal
	Currency       string
	Request        json.RawMessage
	CreatedAt      time.Time
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

type RepoInterface interface {
	// CreateOrder inserts order and its OrderCreated event in one
	// transaction. When the idempotency key is already used it returns the
	// stored order and created=false.
	CreateOrder(ctx context.Context, order *Order) (stored *Order, created bool, err error)
	GetByIdempotencyKey(ctx context.Context, organizationID, key string) (*Order, error)
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	Close() error
}
