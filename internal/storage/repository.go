package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createDeliveriesSQL = `CREATE TABLE IF NOT EXISTS deliveries (
        id              BIGSERIAL PRIMARY KEY,
        kind            TEXT        NOT NULL,
        message_id      BIGINT      NOT NULL,
        body            TEXT        NOT NULL,
        primary_price   NUMERIC     NOT NULL,
        secondary_price NUMERIC     NOT NULL,
        sent_at         TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS deliveries_sent_at_idx ON deliveries (sent_at);`

	insertDeliverySQL = `INSERT INTO deliveries (
        kind,
        message_id,
        body,
        primary_price,
        secondary_price,
        sent_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id;`

	listRecentDeliveriesSQL = `SELECT
        id,
        kind,
        message_id,
        body,
        primary_price::text,
        secondary_price::text,
        sent_at
    FROM deliveries
    ORDER BY sent_at DESC
    LIMIT $1;`

	listDeliveriesBetweenSQL = `SELECT
        id,
        kind,
        message_id,
        body,
        primary_price::text,
        secondary_price::text,
        sent_at
    FROM deliveries
    WHERE kind = $1
      AND sent_at >= $2
      AND sent_at < $3
    ORDER BY sent_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// DeliveryJournal records confirmed deliveries for auditing. It is never read back by the service.
type DeliveryJournal interface {
	RecordDelivery(ctx context.Context, d Delivery) (int64, error)
}

// DeliveryReader serves the show and export commands.
type DeliveryReader interface {
	ListRecentDeliveries(ctx context.Context, limit int) ([]Delivery, error)
	ListDeliveriesBetween(ctx context.Context, kind string, from, to time.Time) ([]Delivery, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the Postgres-backed journal.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the deliveries table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createDeliveriesSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a session advisory lock and returns a release func.
// The connection stays checked out until the release func runs.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the session ends with the connection anyway; unlock is best effort
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// RecordDelivery appends a delivery and returns its id.
func (s *Store) RecordDelivery(ctx context.Context, d Delivery) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	sentAt := d.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	var id int64
	if err := pool.QueryRow(ctx, insertDeliverySQL,
		d.Kind,
		d.MessageID,
		d.Body,
		d.PrimaryPrice.String(),
		d.SecondaryPrice.String(),
		sentAt,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert delivery: %w", err)
	}
	return id, nil
}

// ListRecentDeliveries lists the most recent deliveries, newest first.
func (s *Store) ListRecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentDeliveriesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent deliveries: %w", queryErr)
	}
	defer rows.Close()

	return collectDeliveries(rows, limit)
}

// ListDeliveriesBetween lists deliveries of one kind within [from, to), oldest first.
func (s *Store) ListDeliveriesBetween(ctx context.Context, kind string, from, to time.Time) ([]Delivery, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDeliveriesBetweenSQL, kind, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list deliveries between: %w", queryErr)
	}
	defer rows.Close()

	return collectDeliveries(rows, 0)
}

func collectDeliveries(rows pgx.Rows, capacity int) ([]Delivery, error) {
	deliveries := make([]Delivery, 0, capacity)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deliveries, nil
}

func scanDelivery(rows pgx.Rows) (Delivery, error) {
	var (
		d            Delivery
		primaryStr   string
		secondaryStr string
	)
	if err := rows.Scan(
		&d.ID,
		&d.Kind,
		&d.MessageID,
		&d.Body,
		&primaryStr,
		&secondaryStr,
		&d.SentAt,
	); err != nil {
		return Delivery{}, err
	}

	var err error
	if d.PrimaryPrice, err = decimal.NewFromString(primaryStr); err != nil {
		return Delivery{}, fmt.Errorf("parse primary price: %w", err)
	}
	if d.SecondaryPrice, err = decimal.NewFromString(secondaryStr); err != nil {
		return Delivery{}, fmt.Errorf("parse secondary price: %w", err)
	}
	return d, nil
}

var (
	_ DeliveryJournal = (*Store)(nil)
	_ DeliveryReader  = (*Store)(nil)
	_ AdvisoryLocker  = (*Store)(nil)
)
