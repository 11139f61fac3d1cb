package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ReplaceTranscriptSegments deletes every existing segment for the file and
// inserts segments in one transaction. Callers pass segments ordered by start.
func (s *Store) ReplaceTranscriptSegments(ctx context.Context, fileID string, segments []TranscriptSegment) error {
	ctx = ensureContext(ctx)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireFileTx(ctx, tx, fileID); err != nil {
			return err
		}
		return replaceSegmentsTx(ctx, tx, fileID, segments)
	})
}

// CompleteTranscription finishes a transcription run: the transcript is
// replaced, a positive duration is recorded, and the transcription lane moves
// to completed with its error and heartbeat cleared. Either all of it commits
// or none of it does.
func (s *Store) CompleteTranscription(ctx context.Context, fileID string, segments []TranscriptSegment, durationSeconds float64) error {
	ctx = ensureContext(ctx)
	cols, err := columnsFor(LaneTranscription)
	if err != nil {
		return err
	}
	var duration any
	if durationSeconds > 0 {
		duration = durationSeconds
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireFileTx(ctx, tx, fileID); err != nil {
			return err
		}
		if err := replaceSegmentsTx(ctx, tx, fileID, segments); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE media_files SET `+cols.status+` = ?, `+cols.errorMsg+` = NULL, `+cols.heartbeat+` = NULL,
             duration_seconds = COALESCE(?, duration_seconds), updated_at = ?
             WHERE id = ?`,
			StatusCompleted, duration, nowString(), fileID,
		); err != nil {
			return fmt.Errorf("complete transcription: %w", err)
		}
		return nil
	})
}

func requireFileTx(ctx context.Context, tx *sql.Tx, fileID string) error {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM media_files WHERE id = ?`, fileID).Scan(&exists); err != nil {
		return fmt.Errorf("check media file: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	return nil
}

func replaceSegmentsTx(ctx context.Context, tx *sql.Tx, fileID string, segments []TranscriptSegment) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_segments WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("delete transcript segments: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transcript_segments (file_id, position, start_seconds, end_seconds, speaker, text)
         VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare segment insert: %w", err)
	}
	defer stmt.Close()
	for i, seg := range segments {
		speaker := strings.TrimSpace(seg.Speaker)
		if speaker == "" {
			speaker = UnknownSpeaker
		}
		if _, err := stmt.ExecContext(ctx, fileID, i, seg.StartSeconds, seg.EndSeconds, speaker, seg.Text); err != nil {
			return fmt.Errorf("insert segment %d: %w", i, err)
		}
	}
	return nil
}

// ListTranscriptSegments returns the current transcript ordered by start offset.
func (s *Store) ListTranscriptSegments(ctx context.Context, fileID string) ([]TranscriptSegment, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT file_id, position, start_seconds, end_seconds, speaker, text
         FROM transcript_segments WHERE file_id = ? ORDER BY start_seconds, position`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list transcript segments: %w", err)
	}
	defer rows.Close()

	var segments []TranscriptSegment
	for rows.Next() {
		var seg TranscriptSegment
		if err := rows.Scan(&seg.FileID, &seg.Position, &seg.StartSeconds, &seg.EndSeconds, &seg.Speaker, &seg.Text); err != nil {
			return nil, fmt.Errorf("scan transcript segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}
