package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the devices table. Execute it via
// [PostgresDevices.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS devices (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    model        TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_devices_user ON devices(user_id);
`

// DB is the database interface used by [PostgresDevices]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresDevices is a [DeviceStore] backed by PostgreSQL.
type PostgresDevices struct {
	db DB
}

// Compile-time interface check.
var _ DeviceStore = (*PostgresDevices)(nil)

// NewPostgresDevices creates a [PostgresDevices] using the given connection
// or pool.
func NewPostgresDevices(db DB) *PostgresDevices {
	return &PostgresDevices{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresDevices) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("device store: migrate: %w", err)
	}
	return nil
}

// Create implements [DeviceStore].
func (s *PostgresDevices) Create(ctx context.Context, d *Device) error {
	const q = `
		INSERT INTO devices (id, user_id, model, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.Exec(ctx, q, d.ID, d.UserID, d.Model, d.CreatedAt, d.LastSeen); err != nil {
		return fmt.Errorf("device store: create %q: %w", d.ID, err)
	}
	return nil
}

// Get implements [DeviceStore].
func (s *PostgresDevices) Get(ctx context.Context, id string) (*Device, error) {
	const q = `SELECT id, user_id, model, created_at, last_seen_at FROM devices WHERE id = $1`

	var d Device
	err := s.db.QueryRow(ctx, q, id).Scan(&d.ID, &d.UserID, &d.Model, &d.CreatedAt, &d.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("device store: %q: %w", id, ErrDeviceNotFound)
		}
		return nil, fmt.Errorf("device store: get %q: %w", id, err)
	}
	return &d, nil
}

// Touch implements [DeviceStore].
func (s *PostgresDevices) Touch(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `UPDATE devices SET last_seen_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("device store: touch %q: %w", id, err)
	}
	return nil
}
