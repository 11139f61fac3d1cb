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

// ErrFileNotFound is returned by mutations that target a missing media file.
var ErrFileNotFound = errors.New("media file not found")

// CreateMediaFile registers an uploaded recording in the unprocessed state.
func (s *Store) CreateMediaFile(ctx context.Context, sourcePath string) (*MediaFile, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return nil, errors.New("create media file: source path required")
	}
	id := uuid.NewString()
	now := nowString()
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO media_files (id, source_path, status, packaging_status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id, sourcePath, StatusUnprocessed, StatusUnprocessed, now, now,
	); err != nil {
		return nil, fmt.Errorf("insert media file: %w", err)
	}
	return s.GetMediaFile(ctx, id)
}

// GetMediaFile fetches a media file by ID. It returns nil, nil when no row exists.
func (s *Store) GetMediaFile(ctx context.Context, id string) (*MediaFile, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+mediaFileColumns+" FROM media_files WHERE id = ?", id)
	file, err := scanMediaFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media file: %w", err)
	}
	return file, nil
}

// ListMediaFiles returns media files ordered by creation time, optionally
// filtered by transcription status.
func (s *Store) ListMediaFiles(ctx context.Context, statuses ...Status) ([]*MediaFile, error) {
	query := "SELECT " + mediaFileColumns + " FROM media_files"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media files: %w", err)
	}
	defer rows.Close()

	var files []*MediaFile
	for rows.Next() {
		file, err := scanMediaFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// Claim atomically moves the lane into processing. It reports false when the
// lane is already processing, which makes a concurrent second run a no-op.
func (s *Store) Claim(ctx context.Context, lane Lane, id string) (bool, error) {
	cols, err := columnsFor(lane)
	if err != nil {
		return false, err
	}
	now := nowString()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_files SET `+cols.status+` = ?, `+cols.errorMsg+` = NULL, `+cols.heartbeat+` = ?, updated_at = ?
         WHERE id = ? AND `+cols.status+` != ?`,
		StatusProcessing, now, now, id, StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", lane, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", lane, err)
	}
	return affected == 1, nil
}

// UpdateStatus records the lane status for a media file. message is stored as
// the lane's error message and cleared when empty.
func (s *Store) UpdateStatus(ctx context.Context, lane Lane, id string, status Status, message string) error {
	if _, ok := statusSet[status]; !ok {
		return fmt.Errorf("update status: unknown status %q", status)
	}
	cols, err := columnsFor(lane)
	if err != nil {
		return err
	}
	var heartbeat any
	if status == StatusProcessing {
		heartbeat = nowString()
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_files SET `+cols.status+` = ?, `+cols.errorMsg+` = ?, `+cols.heartbeat+` = ?, updated_at = ?
         WHERE id = ?`,
		status, nullableString(strings.TrimSpace(message)), heartbeat, nowString(), id,
	)
	if err != nil {
		return fmt.Errorf("update %s status: %w", lane, err)
	}
	return requireAffected(res, id)
}

// SetDuration records the probed duration of the media file.
func (s *Store) SetDuration(ctx context.Context, id string, seconds float64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_files SET duration_seconds = ?, updated_at = ? WHERE id = ?`,
		seconds, nowString(), id,
	)
	if err != nil {
		return fmt.Errorf("set duration: %w", err)
	}
	return requireAffected(res, id)
}

// SetPlaylistPath records the master playlist location relative to the media root.
func (s *Store) SetPlaylistPath(ctx context.Context, id, path string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_files SET playlist_path = ?, updated_at = ? WHERE id = ?`,
		nullableString(path), nowString(), id,
	)
	if err != nil {
		return fmt.Errorf("set playlist path: %w", err)
	}
	return requireAffected(res, id)
}

// CompletePackaging records the published playlist and moves the packaging
// lane to completed in a single statement. A positive duration fills
// duration_seconds only when transcription has not recorded one.
func (s *Store) CompletePackaging(ctx context.Context, id, playlistPath string, durationSeconds float64) error {
	cols, err := columnsFor(LanePackaging)
	if err != nil {
		return err
	}
	var duration any
	if durationSeconds > 0 {
		duration = durationSeconds
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE media_files SET playlist_path = ?, duration_seconds = COALESCE(duration_seconds, ?),
         `+cols.status+` = ?, `+cols.errorMsg+` = NULL, `+cols.heartbeat+` = NULL, updated_at = ?
         WHERE id = ?`,
		nullableString(playlistPath), duration, StatusCompleted, nowString(), id,
	)
	if err != nil {
		return fmt.Errorf("complete packaging: %w", err)
	}
	return requireAffected(res, id)
}

// UpdateHeartbeat refreshes the lane heartbeat for an in-flight run.
func (s *Store) UpdateHeartbeat(ctx context.Context, lane Lane, id string) error {
	cols, err := columnsFor(lane)
	if err != nil {
		return err
	}
	now := nowString()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE media_files SET `+cols.heartbeat+` = ?, updated_at = ? WHERE id = ? AND `+cols.status+` = ?`,
		now, now, id, StatusProcessing,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ResetStuckProcessing returns every lane left in processing to unprocessed.
// It runs at daemon start, when no run can be in flight.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	var total int64
	for _, lane := range Lanes() {
		cols, _ := columnsFor(lane)
		res, err := s.execWithRetry(
			ctx,
			`UPDATE media_files SET `+cols.status+` = ?, `+cols.heartbeat+` = NULL, updated_at = ?
             WHERE `+cols.status+` = ?`,
			StatusUnprocessed, nowString(), StatusProcessing,
		)
		if err != nil {
			return total, fmt.Errorf("reset stuck %s: %w", lane, err)
		}
		affected, _ := res.RowsAffected()
		total += affected
	}
	return total, nil
}

// ReclaimStaleProcessing returns lanes whose heartbeat expired before cutoff
// to unprocessed so a redelivered job can run them again.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, lane := range Lanes() {
		cols, _ := columnsFor(lane)
		res, err := s.execWithRetry(
			ctx,
			`UPDATE media_files SET `+cols.status+` = ?, `+cols.heartbeat+` = NULL, updated_at = ?
             WHERE `+cols.status+` = ? AND `+cols.heartbeat+` IS NOT NULL AND `+cols.heartbeat+` < ?`,
			StatusUnprocessed, nowString(), StatusProcessing, formatTime(cutoff),
		)
		if err != nil {
			return total, fmt.Errorf("reclaim stale %s: %w", lane, err)
		}
		affected, _ := res.RowsAffected()
		total += affected
	}
	return total, nil
}

func requireAffected(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	return nil
}
