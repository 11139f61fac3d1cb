package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of one pipeline lane for a media file.
type Status string

const (
	StatusUnprocessed Status = "unprocessed"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

var allStatuses = []Status{
	StatusUnprocessed,
	StatusProcessing,
	StatusCompleted,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus converts a string into a known status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// AllStatuses returns the ordered list of statuses.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Lane identifies one of the two independent pipelines a media file passes through.
type Lane string

const (
	LaneTranscription Lane = "transcription"
	LanePackaging     Lane = "packaging"
)

// Lanes returns every lane in dispatch order.
func Lanes() []Lane {
	return []Lane{LaneTranscription, LanePackaging}
}

// ParseLane converts a string into a known lane.
func ParseLane(value string) (Lane, bool) {
	switch Lane(strings.ToLower(strings.TrimSpace(value))) {
	case LaneTranscription:
		return LaneTranscription, true
	case LanePackaging:
		return LanePackaging, true
	default:
		return "", false
	}
}

type laneColumns struct {
	status    string
	errorMsg  string
	heartbeat string
}

func columnsFor(lane Lane) (laneColumns, error) {
	switch lane {
	case LaneTranscription:
		return laneColumns{status: "status", errorMsg: "error_message", heartbeat: "transcription_heartbeat"}, nil
	case LanePackaging:
		return laneColumns{status: "packaging_status", errorMsg: "packaging_error", heartbeat: "packaging_heartbeat"}, nil
	default:
		return laneColumns{}, fmt.Errorf("unknown lane %q", lane)
	}
}

// UnknownSpeaker labels transcript text whose speaker could not be determined.
const UnknownSpeaker = "unknown"

// MediaFile is an uploaded recording tracked by the pipeline.
type MediaFile struct {
	ID              string
	SourcePath      string
	DurationSeconds *float64
	Status          Status
	ErrorMessage    string
	PackagingStatus Status
	PackagingError  string
	PlaylistPath    string
	LastHeartbeat   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StatusFor returns the status of the given lane.
func (f *MediaFile) StatusFor(lane Lane) Status {
	if f == nil {
		return ""
	}
	if lane == LanePackaging {
		return f.PackagingStatus
	}
	return f.Status
}

// ErrorFor returns the persisted failure message of the given lane.
func (f *MediaFile) ErrorFor(lane Lane) string {
	if f == nil {
		return ""
	}
	if lane == LanePackaging {
		return f.PackagingError
	}
	return f.ErrorMessage
}

// TranscriptSegment is one persisted, speaker-attributed transcript record.
type TranscriptSegment struct {
	FileID       string
	Position     int
	StartSeconds int
	EndSeconds   int
	Speaker      string
	Text         string
}

// JobStatus tracks a dispatcher job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is a durable request to run one lane for one media file.
type Job struct {
	ID          string
	FileID      string
	Lane        Lane
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	NextRunAt   time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Exhausted reports whether the job has consumed its attempt budget.
func (j *Job) Exhausted() bool {
	return j != nil && j.Attempts >= j.MaxAttempts
}
