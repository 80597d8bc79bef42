// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/sirupsen/logrus"
)

const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS mqactor_dedup (
	key        TEXT PRIMARY KEY,
	expires_at TIMESTAMPTZ NOT NULL
)`

	// An existing row is only taken over once it has expired.
	claimQuery = `INSERT INTO mqactor_dedup (key, expires_at) VALUES (:key, :expires_at)
ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at
WHERE mqactor_dedup.expires_at <= :now`

	markQuery = `INSERT INTO mqactor_dedup (key, expires_at) VALUES (:key, :expires_at)
ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at`

	consumeQuery = `DELETE FROM mqactor_dedup WHERE key = $1 AND expires_at > $2`

	purgeQuery = `DELETE FROM mqactor_dedup WHERE expires_at <= $1`
)

type marker struct {
	Key       string    `db:"key"`
	ExpiresAt time.Time `db:"expires_at"`
	Now       time.Time `db:"now"`
}

// PostgresStore keeps markers in the mqactor_dedup table. Expired rows
// are ignored and removed by Purge.
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresStore creates the marker table if needed.
func NewPostgresStore(ctx context.Context, db *sqlx.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, createTableQuery); err != nil {
		return nil, fmt.Errorf("dedup: create table: %w", err)
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

// OpenPostgres connects to the database at dsn.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	logrus.Info("dedup connecting to database...")
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("dedup: connect to database: %w", err)
	}

	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	store, err := NewPostgresStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logrus.Info("dedup database connection successful")
	return store, nil
}

func (s *PostgresStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.now().UTC()
	res, err := s.db.NamedExecContext(ctx, claimQuery, marker{Key: key, ExpiresAt: now.Add(ttl), Now: now})
	if err != nil {
		return false, fmt.Errorf("dedup: claim %s: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup: claim %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *PostgresStore) Mark(ctx context.Context, key string, ttl time.Duration) error {
	now := s.now().UTC()
	if _, err := s.db.NamedExecContext(ctx, markQuery, marker{Key: key, ExpiresAt: now.Add(ttl)}); err != nil {
		return fmt.Errorf("dedup: mark %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Consume(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, consumeQuery, key, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("dedup: consume %s: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup: consume %s: %w", key, err)
	}
	return n > 0, nil
}

// Purge deletes expired markers and returns how many were removed.
func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, purgeQuery, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("dedup: purge: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Close() error {
	logrus.Info("dedup closing database connection")
	return s.db.Close()
}
