// Package postgres persists booking attempts in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
)

// DefaultTable holds booking attempts when no table is configured.
const DefaultTable = "booking_attempts"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for history rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// HistoryStore writes booking attempts into Postgres.
type HistoryStore struct {
	pool  pool
	table string
}

// NewHistoryStore connects to Postgres, creates the table if needed and returns the store.
func NewHistoryStore(ctx context.Context, cfg Config) (*HistoryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewHistoryStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewHistoryStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewHistoryStoreWithPool(p pool, table string) (*HistoryStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &HistoryStore{pool: p, table: table}, nil
}

// Migrate creates the history table and its time index.
func (s *HistoryStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id          TEXT PRIMARY KEY,
	tick_id     TEXT NOT NULL,
	username    TEXT NOT NULL,
	slot_id     TEXT NOT NULL,
	slot_type   TEXT NOT NULL,
	slot_date   DATE NOT NULL,
	session     INT  NOT NULL,
	start_time  TEXT NOT NULL DEFAULT '',
	end_time    TEXT NOT NULL DEFAULT '',
	result      TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_recorded_at_idx ON %[1]s (recorded_at DESC)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *HistoryStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Record inserts one booking attempt.
func (s *HistoryStore) Record(ctx context.Context, record booking.Record) error {
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	tick_id,
	username,
	slot_id,
	slot_type,
	slot_date,
	session,
	start_time,
	end_time,
	result,
	recorded_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`, s.table)

	args := []any{
		record.ID,
		record.TickID,
		record.Username,
		record.SlotID,
		string(record.Slot.Type),
		record.Slot.Day,
		record.Slot.Session,
		record.Slot.Start,
		record.Slot.End,
		string(record.Result),
		record.RecordedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert booking attempt: %w", err)
	}
	return nil
}

// List returns up to limit attempts, newest first. A non-positive limit returns all.
func (s *HistoryStore) List(ctx context.Context, limit int) ([]booking.Record, error) {
	query := fmt.Sprintf(`
SELECT id, tick_id, username, slot_id, slot_type, slot_date, session, start_time, end_time, result, recorded_at
FROM %s
ORDER BY recorded_at DESC`, s.table)
	var args []any
	if limit > 0 {
		query += "\nLIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query booking attempts: %w", err)
	}
	defer rows.Close()

	var out []booking.Record
	for rows.Next() {
		var (
			rec      booking.Record
			slotType string
			result   string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.TickID,
			&rec.Username,
			&rec.SlotID,
			&slotType,
			&rec.Slot.Day,
			&rec.Slot.Session,
			&rec.Slot.Start,
			&rec.Slot.End,
			&result,
			&rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan booking attempt: %w", err)
		}
		rec.Slot.Type = booking.SlotType(slotType)
		rec.Result = booking.Result(result)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booking attempts: %w", err)
	}
	return out, nil
}
