// Package storage persists the audit trail in the operator's PostgreSQL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"

	"github.com/matrixise/walletd/internal/notify"
)

// ErrInvalidLimit is returned when a listing limit is out of range.
var ErrInvalidLimit = errors.New("limit must be between 1 and 1000")

const insertEventSQL = `
INSERT INTO audit_events
	(occurred_at, kind, address, chain_id, wallet, token, symbol, spender, amount, tx_hash, detail)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`

const recentEventsSQL = `
SELECT id, occurred_at, kind, address, chain_id, wallet, token, symbol, spender, amount, tx_hash, detail
FROM audit_events
WHERE address = $1
ORDER BY occurred_at DESC, id DESC
LIMIT $2`

// Store manages PostgreSQL operations
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PostgreSQL store with connection pooling
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Record inserts one event and returns its row id. Addresses are stored
// lower-cased so lookups do not depend on checksum casing.
func (s *Store) Record(ctx context.Context, ev notify.Event) (int64, error) {
	row := fromEvent(ev)
	if row.OccurredAt.IsZero() {
		row.OccurredAt = time.Now().UTC()
	}

	var id int64
	err := s.pool.QueryRow(ctx, insertEventSQL,
		row.OccurredAt,
		row.Kind,
		strings.ToLower(row.Address),
		int64(row.ChainID),
		row.Wallet,
		strings.ToLower(row.Token),
		row.Symbol,
		strings.ToLower(row.Spender),
		row.Amount,
		row.TxHash,
		row.Detail,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit event: %w", err)
	}
	return id, nil
}

// RecentEvents lists the newest events for an address.
func (s *Store) RecentEvents(ctx context.Context, address string, limit int) ([]AuditEvent, error) {
	if limit < 1 || limit > 1000 {
		return nil, ErrInvalidLimit
	}

	rows, err := s.pool.Query(ctx, recentEventsSQL, strings.ToLower(address), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (AuditEvent, error) {
		var (
			a       AuditEvent
			chainID int64
		)
		err := r.Scan(&a.ID, &a.OccurredAt, &a.Kind, &a.Address, &chainID, &a.Wallet,
			&a.Token, &a.Symbol, &a.Spender, &a.Amount, &a.TxHash, &a.Detail)
		a.ChainID = uint64(chainID)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit events: %w", err)
	}
	return events, nil
}

// Name implements notify.Sink.
func (s *Store) Name() string { return "postgres" }

// Deliver implements notify.Sink.
func (s *Store) Deliver(ctx context.Context, ev notify.Event) error {
	_, err := s.Record(ctx, ev)
	return err
}
