package workflow_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"mediapost/internal/config"
	"mediapost/internal/hls"
	"mediapost/internal/media/ffprobe"
	"mediapost/internal/queue"
	"mediapost/internal/testsupport"
	"mediapost/internal/transcription"
)

type fakeTranscriber struct {
	mu      sync.Mutex
	outcome transcription.Outcome
	err     error
	calls   []string
	hook    func(ctx context.Context) error
}

func (f *fakeTranscriber) Run(ctx context.Context, fileID, _ string) (transcription.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fileID)
	f.mu.Unlock()
	if f.hook != nil {
		if err := f.hook(ctx); err != nil {
			return transcription.Outcome{}, err
		}
	}
	return f.outcome, f.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePackager struct {
	err   error
	calls int
}

func (f *fakePackager) Package(_ context.Context, fileID, _ string, _ int64) (*hls.Package, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &hls.Package{FileID: fileID, StoredPath: "hls/" + fileID + "/master.m3u8"}, nil
}

type fakeProber struct {
	probe ffprobe.Probe
	err   error
}

func (f fakeProber) Probe(context.Context, string) (ffprobe.Probe, error) {
	return f.probe, f.err
}

var videoProbe = ffprobe.Probe{DurationSeconds: 120, SizeBytes: 4096, Kind: ffprobe.KindVideo}

type harness struct {
	cfg   *config.Config
	store *queue.Store
	file  *queue.MediaFile
}

func newHarness(t *testing.T) harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.HeartbeatInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	file := testsupport.NewMediaFile(t, store, "uploads/talk.mp4")
	return harness{cfg: cfg, store: store, file: file}
}

func (h harness) reload(t *testing.T) *queue.MediaFile {
	t.Helper()
	file, err := h.store.GetMediaFile(context.Background(), h.file.ID)
	if err != nil || file == nil {
		t.Fatalf("GetMediaFile: %v (%v)", file, err)
	}
	return file
}

func (h harness) jobs(t *testing.T) []*queue.Job {
	t.Helper()
	jobs, err := h.store.ListJobs(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	return jobs
}

// rejectCompletion makes the database refuse to mark the given status column
// completed until the returned restore func runs.
func rejectCompletion(t *testing.T, h harness, column string) (restore func()) {
	t.Helper()
	db, err := sql.Open("sqlite", h.store.Path())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	create := `CREATE TRIGGER reject_completion BEFORE UPDATE OF ` + column + ` ON media_files
        WHEN NEW.` + column + ` = 'completed'
        BEGIN SELECT RAISE(ABORT, 'disk I/O error'); END`
	if _, err := db.Exec(create); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	return func() {
		if _, err := db.Exec(`DROP TRIGGER reject_completion`); err != nil {
			t.Fatalf("drop trigger: %v", err)
		}
	}
}
