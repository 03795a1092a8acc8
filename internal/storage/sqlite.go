// Package storage holds durable backends for the order queue snapshot.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/posify/internal/queue"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

// SQLitePersister stores the snapshot as one JSON row per namespace.
type SQLitePersister struct {
	db        *sql.DB
	namespace string
}

func NewSQLitePersister(dbPath, namespace string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer keeps whole-snapshot replaces ordered
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLitePersister{db: db, namespace: namespace}, nil
}

func (p *SQLitePersister) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(p.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (p *SQLitePersister) Load(ctx context.Context) (*queue.Snapshot, error) {
	var payload string
	err := p.db.QueryRowContext(ctx,
		`SELECT payload FROM queue_state WHERE namespace = ?`, p.namespace).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return &queue.Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query queue state: %w", err)
	}

	var s queue.Snapshot
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, fmt.Errorf("unmarshal queue snapshot failed: %w", err)
	}
	return &s, nil
}

func (p *SQLitePersister) Save(ctx context.Context, snapshot *queue.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal queue snapshot failed: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO queue_state (namespace, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (namespace) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		p.namespace, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save queue state: %w", err)
	}
	return nil
}

func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
