package queue

import (
	"database/sql"
	"errors"
	"time"
)

const mediaFileColumns = "id, source_path, duration_seconds, status, error_message, transcription_heartbeat, packaging_status, packaging_error, packaging_heartbeat, playlist_path, created_at, updated_at"

const jobColumns = "id, file_id, lane, status, attempts, max_attempts, next_run_at, last_error, created_at, updated_at"

// timeLayout is fixed width so stored timestamps compare correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type rowScanner interface{ Scan(dest ...any) error }

func scanMediaFile(scanner rowScanner) (*MediaFile, error) {
	var (
		id                 string
		sourcePath         string
		duration           sql.NullFloat64
		statusStr          string
		errorMessage       sql.NullString
		transcriptionBeat  sql.NullString
		packagingStatusStr string
		packagingError     sql.NullString
		packagingBeat      sql.NullString
		playlistPath       sql.NullString
		createdRaw         string
		updatedRaw         string
	)
	if err := scanner.Scan(
		&id,
		&sourcePath,
		&duration,
		&statusStr,
		&errorMessage,
		&transcriptionBeat,
		&packagingStatusStr,
		&packagingError,
		&packagingBeat,
		&playlistPath,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	file := &MediaFile{
		ID:              id,
		SourcePath:      sourcePath,
		Status:          Status(statusStr),
		ErrorMessage:    errorMessage.String,
		PackagingStatus: Status(packagingStatusStr),
		PackagingError:  packagingError.String,
		PlaylistPath:    playlistPath.String,
	}
	if duration.Valid {
		value := duration.Float64
		file.DurationSeconds = &value
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		file.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		file.UpdatedAt = updated
	}
	file.LastHeartbeat = latestHeartbeat(transcriptionBeat, packagingBeat)
	return file, nil
}

func latestHeartbeat(values ...sql.NullString) *time.Time {
	var latest *time.Time
	for _, value := range values {
		if !value.Valid {
			continue
		}
		parsed, err := parseTimeString(value.String)
		if err != nil {
			continue
		}
		if latest == nil || parsed.After(*latest) {
			t := parsed
			latest = &t
		}
	}
	return latest
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job        Job
		laneStr    string
		statusStr  string
		nextRunRaw string
		lastError  sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&job.ID,
		&job.FileID,
		&laneStr,
		&statusStr,
		&job.Attempts,
		&job.MaxAttempts,
		&nextRunRaw,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.Lane = Lane(laneStr)
	job.Status = JobStatus(statusStr)
	job.LastError = lastError.String
	if next, err := parseTimeString(nextRunRaw); err == nil {
		job.NextRunAt = next
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func nowString() string {
	return formatTime(time.Now())
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
