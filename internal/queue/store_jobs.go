package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnqueueJob schedules a lane run for a media file. When a pending or running
// job for the same file and lane already exists it is returned with created=false.
func (s *Store) EnqueueJob(ctx context.Context, lane Lane, fileID string, maxAttempts int) (*Job, bool, error) {
	ctx = ensureContext(ctx)
	if _, err := columnsFor(lane); err != nil {
		return nil, false, err
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var (
		jobID   string
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		created = false
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM jobs WHERE file_id = ? AND lane = ? AND status IN (?, ?) ORDER BY created_at LIMIT 1`,
			fileID, lane, JobPending, JobRunning,
		).Scan(&existing)
		switch {
		case err == nil:
			jobID = existing
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("find existing job: %w", err)
		}

		jobID = uuid.NewString()
		now := nowString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, file_id, lane, status, attempts, max_attempts, next_run_at, created_at, updated_at)
             VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
			jobID, fileID, lane, JobPending, maxAttempts, now, now, now,
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("enqueue %s job: %w", lane, err)
	}
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	return job, created, nil
}

// GetJob fetches a job by ID. It returns nil, nil when no row exists.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ClaimNextJob marks the oldest due pending job in the lane as running and
// consumes one attempt. It returns nil, nil when nothing is due.
func (s *Store) ClaimNextJob(ctx context.Context, lane Lane, now time.Time) (*Job, error) {
	ctx = ensureContext(ctx)
	var claimed string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = ""
		var candidate string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM jobs WHERE lane = ? AND status = ? AND next_run_at <= ?
             ORDER BY next_run_at, created_at LIMIT 1`,
			lane, JobPending, formatTime(now),
		).Scan(&candidate)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select due job: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, attempts = attempts + 1, updated_at = ? WHERE id = ? AND status = ?`,
			JobRunning, nowString(), candidate, JobPending,
		)
		if err != nil {
			return fmt.Errorf("mark job running: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 1 {
			claimed = candidate
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim %s job: %w", lane, err)
	}
	if claimed == "" {
		return nil, nil
	}
	return s.GetJob(ctx, claimed)
}

// CompleteJob marks a job done.
func (s *Store) CompleteJob(ctx context.Context, id string) error {
	return s.finishJob(ctx, id, JobDone, "")
}

// FailJob marks a job failed without further attempts.
func (s *Store) FailJob(ctx context.Context, id, message string) error {
	return s.finishJob(ctx, id, JobFailed, message)
}

func (s *Store) finishJob(ctx context.Context, id string, status JobStatus, message string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		status, nullableString(strings.TrimSpace(message)), nowString(), id,
	); err != nil {
		return fmt.Errorf("finish job %s: %w", id, err)
	}
	return nil
}

// RescheduleJob returns a running job to pending, due at nextRun.
func (s *Store) RescheduleJob(ctx context.Context, id string, nextRun time.Time, message string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET status = ?, next_run_at = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		JobPending, formatTime(nextRun), nullableString(strings.TrimSpace(message)), nowString(), id,
	); err != nil {
		return fmt.Errorf("reschedule job %s: %w", id, err)
	}
	return nil
}

// ReleaseJob returns a running job to pending and refunds the attempt it consumed.
// Used when the daemon shuts down mid-run.
func (s *Store) ReleaseJob(ctx context.Context, id string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET status = ?, attempts = MAX(attempts - 1, 0), updated_at = ? WHERE id = ? AND status = ?`,
		JobPending, nowString(), id, JobRunning,
	); err != nil {
		return fmt.Errorf("release job %s: %w", id, err)
	}
	return nil
}

// TouchJob refreshes the updated_at stamp of a running job.
func (s *Store) TouchJob(ctx context.Context, id string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET updated_at = ? WHERE id = ? AND status = ?`,
		nowString(), id, JobRunning,
	); err != nil {
		return fmt.Errorf("touch job %s: %w", id, err)
	}
	return nil
}

// ResetRunningJobs returns every running job to pending without consuming an
// attempt. Jobs last touched before cutoff are reset; pass time.Now() at
// daemon start to reset all of them.
func (s *Store) ResetRunningJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, attempts = MAX(attempts - 1, 0), updated_at = ?
         WHERE status = ? AND updated_at <= ?`,
		JobPending, nowString(), JobRunning, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reset running jobs: %w", err)
	}
	return res.RowsAffected()
}

// ListJobs returns the most recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+jobColumns+" FROM jobs ORDER BY created_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// JobCounts returns the number of jobs per status.
func (s *Store) JobCounts(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[JobStatus(status)] = count
	}
	return counts, rows.Err()
}
