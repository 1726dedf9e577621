package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/crawl-validator/internal/validation"
)

// DefaultRecordsTable stores key-value records.
const DefaultRecordsTable = "validator_records"

// KVStore keeps records in a jsonb column keyed by record key.
//
//	CREATE TABLE validator_records (
//		key        text PRIMARY KEY,
//		value      jsonb NOT NULL,
//		updated_at timestamptz NOT NULL
//	);
type KVStore struct {
	pool  Pool
	table string
	now   func() time.Time
}

// NewKVStore constructs a store from an existing pool.
func NewKVStore(pool Pool, table string) (*KVStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, DefaultRecordsTable)
	if err != nil {
		return nil, err
	}
	return &KVStore{
		pool:  pool,
		table: name,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Get selects the record value for key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.table)
	var value []byte
	if err := s.pool.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", validation.ErrRecordNotFound, key)
		}
		return nil, fmt.Errorf("select record: %w", err)
	}
	return value, nil
}

// Set upserts the record value for key.
func (s *KVStore) Set(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (key, value, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, key, data, s.now()); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}
