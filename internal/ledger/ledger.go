package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAlreadySucceeded is returned by Begin when the idempotency key already
// belongs to a successful submission.
var ErrAlreadySucceeded = errors.New("submission already succeeded")

// ErrNotPending is returned when completing a row that is no longer PENDING.
var ErrNotPending = errors.New("submission is not pending")

// Attempt describes one submit about to hit the backend.
type Attempt struct {
	DraftID        string
	UserID         string
	IdempotencyKey string
	PageState      string
	JobID          string
	Payload        any
}

// Recorder is what the workflow needs from the ledger.
type Recorder interface {
	Begin(ctx context.Context, a Attempt) (string, error)
	Complete(ctx context.Context, id, jobID, message string) error
	Fail(ctx context.Context, id, message string) error
}

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	draft_id        TEXT        NOT NULL,
	user_id         TEXT        NOT NULL,
	idempotency_key TEXT        NOT NULL UNIQUE,
	page_state      TEXT        NOT NULL,
	job_id          TEXT,
	status          TEXT        NOT NULL DEFAULT 'PENDING',
	message         TEXT,
	attempts        INT         NOT NULL DEFAULT 1,
	payload         JSONB       NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS submissions_pending_idx ON submissions (updated_at) WHERE status = 'PENDING';`

// Store is the PostgreSQL Recorder.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the submissions table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate submissions: %w", err)
	}
	return nil
}

// Begin inserts a PENDING row for a.IdempotencyKey, or reopens the existing
// row for the same key unless it already SUCCEEDED. A PENDING row here was
// left by an attempt whose submit lock expired. It returns the row id.
func (s *Store) Begin(ctx context.Context, a Attempt) (string, error) {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return "", fmt.Errorf("begin: marshal payload: %w", err)
	}

	var id string
	err = s.pool.QueryRow(ctx,
		`INSERT INTO submissions (draft_id, user_id, idempotency_key, page_state, job_id, payload)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6::jsonb)
		 ON CONFLICT (idempotency_key) DO UPDATE
		 SET status     = 'PENDING',
		     payload    = EXCLUDED.payload,
		     message    = NULL,
		     attempts   = submissions.attempts + 1,
		     updated_at = NOW()
		 WHERE submissions.status <> 'SUCCEEDED'
		 RETURNING id::text`,
		a.DraftID, a.UserID, a.IdempotencyKey, a.PageState, a.JobID, payload,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrAlreadySucceeded
	}
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	return id, nil
}

// Complete marks row id SUCCEEDED.
func (s *Store) Complete(ctx context.Context, id, jobID, message string) error {
	return s.finish(ctx, id, StatusSucceeded, jobID, message)
}

// Fail marks row id FAILED.
func (s *Store) Fail(ctx context.Context, id, message string) error {
	return s.finish(ctx, id, StatusFailed, "", message)
}

func (s *Store) finish(ctx context.Context, id string, to Status, jobID, message string) error {
	if !IsTransitionAllowed(StatusPending, to) {
		return fmt.Errorf("transition %s → %s is not allowed", StatusPending, to)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE submissions
		 SET status     = $1,
		     job_id     = COALESCE(NULLIF($2, ''), job_id),
		     message    = NULLIF($3, ''),
		     updated_at = NOW()
		 WHERE id = $4::uuid AND status = 'PENDING'`,
		string(to), jobID, message, id,
	)
	if err != nil {
		return fmt.Errorf("finish %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// ReapStale marks PENDING rows untouched for olderThan as ABANDONED and
// returns how many it changed.
func (s *Store) ReapStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`UPDATE submissions
		 SET status = 'ABANDONED', message = 'no response before process exit', updated_at = NOW()
		 WHERE status = 'PENDING' AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("reapStale: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Nop records nothing. Used when no database is configured.
type Nop struct{}

func (Nop) Begin(_ context.Context, a Attempt) (string, error) {
	return a.IdempotencyKey, nil
}

func (Nop) Complete(context.Context, string, string, string) error { return nil }

func (Nop) Fail(context.Context, string, string) error { return nil }
