package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by the repositories. pgxmock pools
// satisfy it as well.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store aggregates repositories backed by PostgreSQL.
type Store struct {
	pool DB

	Connections   ConnectionRepository
	Mirrors       MirrorRepository
	Documents     DocumentRepository
	Events        EventRepository
	Notifications NotificationRepository
}

// New wires concrete repository implementations with shared connection pool.
func New(pool DB) *Store {
	return &Store{
		pool:          pool,
		Connections:   &connectionRepo{pool: pool},
		Mirrors:       &mirrorRepo{pool: pool},
		Documents:     &documentRepo{pool: pool},
		Events:        &eventRepo{pool: pool},
		Notifications: &notificationRepo{pool: pool},
	}
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer observeDB(ctx, "db.healthcheck")()
	return s.pool.Ping(ctx)
}

// Migrate applies embedded migrations to the store's database.
func (s *Store) Migrate(ctx context.Context) error {
	return ApplyMigrations(ctx, s.pool)
}

func affectedOrNotFound(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
