package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/crawl-validator/internal/validation"
)

// DefaultInvocationsTable stores serve-mode invocation metadata.
const DefaultInvocationsTable = "validator_invocations"

// InvocationStore implements validation.InvocationStore using Postgres.
type InvocationStore struct {
	pool  Pool
	table string
	now   func() time.Time
}

// NewInvocationStore constructs an InvocationStore from an existing pool.
func NewInvocationStore(pool Pool, table string) (*InvocationStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, DefaultInvocationsTable)
	if err != nil {
		return nil, err
	}
	return &InvocationStore{
		pool:  pool,
		table: name,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateInvocation inserts a new invocation row.
func (s *InvocationStore) CreateInvocation(ctx context.Context, inv validation.Invocation) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, status, submitted_at, error_count)
VALUES ($1, $2, $3, $4)`, s.table)
	if _, err := s.pool.Exec(ctx, query, inv.ID, string(inv.Status), inv.Submitted, inv.ErrorCount); err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// UpdateInvocation sets the status and stamps start/finish times.
func (s *InvocationStore) UpdateInvocation(
	ctx context.Context,
	id string,
	status validation.InvocationStatus,
	errText string,
	errorCount int,
) error {
	now := s.now()
	var started, finished *time.Time
	if status == validation.InvocationRunning {
		started = &now
	}
	if status.IsTerminal() {
		finished = &now
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1,
	error_text = $2,
	error_count = $3,
	started_at = COALESCE(started_at, $4),
	finished_at = COALESCE($5, finished_at)
WHERE id = $6`, s.table)
	tag, err := s.pool.Exec(ctx, query, string(status), errText, errorCount, started, finished, id)
	if err != nil {
		return fmt.Errorf("update invocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return validation.ErrInvocationNotFound
	}
	return nil
}

// GetInvocation fetches an invocation by id.
func (s *InvocationStore) GetInvocation(ctx context.Context, id string) (validation.Invocation, error) {
	query := fmt.Sprintf(`
SELECT id, status, submitted_at, started_at, finished_at, COALESCE(error_text, ''), error_count
FROM %s WHERE id = $1`, s.table)
	var (
		inv    validation.Invocation
		status string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&inv.ID,
		&status,
		&inv.Submitted,
		&inv.Started,
		&inv.Finished,
		&inv.ErrorText,
		&inv.ErrorCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return validation.Invocation{}, validation.ErrInvocationNotFound
		}
		return validation.Invocation{}, fmt.Errorf("select invocation: %w", err)
	}
	inv.Status = validation.InvocationStatus(status)
	return inv, nil
}
