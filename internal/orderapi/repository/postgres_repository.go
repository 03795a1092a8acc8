package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	sslMode := cred.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	psqlconn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName,
		sslMode)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

type orderCreatedEvent struct {
	OrderID        string `json:"orderId"`
	OrderNumber    int64  `json:"orderNumber"`
	OrganizationID string `json:"organizationId"`
	IdempotencyKey string `json:"idempotencyKey"`
	Status         string `json:"status"`
	Total          string `json:"total"`
	Currency       string `json:"currency"`
	CreatedAt      string `json:"createdAt"`
}

func (r *Repository) CreateOrder(ctx context.Context, order *Order) (*Order, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO orders (id, organization_id, idempotency_key, status, total, currency, request)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (organization_id, idempotency_key) DO NOTHING
	          RETURNING order_number, created_at`

	stored := *order
	err = tx.QueryRowContext(ctx, query,
		order.ID,
		order.OrganizationID,
		order.IdempotencyKey,
		order.Status,
		order.Total,
		order.Currency,
		[]byte(order.Request),
	).Scan(&stored.OrderNumber, &stored.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		// key already used; hand back the first order
		existing, getErr := r.GetByIdempotencyKey(ctx, order.OrganizationID, order.IdempotencyKey)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		var pqErr *pq.Error
		// (organization_id, idempotency_key) is covered by ON CONFLICT, so a
		// unique violation here can only be the primary key
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, false, ErrOrderIDConflict
		}
		return nil, false, fmt.Errorf("insert order: %w", err)
	}

	payload, err := json.Marshal(orderCreatedEvent{
		OrderID:        stored.ID.String(),
		OrderNumber:    stored.OrderNumber,
		OrganizationID: stored.OrganizationID,
		IdempotencyKey: stored.IdempotencyKey,
		Status:         stored.Status,
		Total:          stored.Total.String(),
		Currency:       stored.Currency,
		CreatedAt:      stored.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		stored.ID.String(), EventOrderCreated, payload)
	if err != nil {
		return nil, false, fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit order: %w", err)
	}
	return &stored, true, nil
}

func (r *Repository) GetByIdempotencyKey(ctx context.Context, organizationID, key string) (*Order, error) {
	query := `SELECT id, organization_id, idempotency_key, order_number, status, total, currency, request, created_at
	          FROM orders WHERE organization_id = $1 AND idempotency_key = $2`

	var (
		order   Order
		request []byte
	)
	err := r.db.QueryRowContext(ctx, query, organizationID, key).Scan(
		&order.ID,
		&order.OrganizationID,
		&order.IdempotencyKey,
		&order.OrderNumber,
		&order.Status,
		&order.Total,
		&order.Currency,
		&request,
		&order.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by idempotency key: %w", err)
	}
	order.Request = request
	return &order, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events WHERE processed_at IS NULL ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var (
			e       OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		e.Payload = payload
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET processed_at = NOW() WHERE id = $1 AND processed_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("outbox event %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
