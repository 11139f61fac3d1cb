package workflow_test

import (
	"context"
	"errors"
	"testing"

	"mediapost/internal/hls"
	"mediapost/internal/media/ffprobe"
	"mediapost/internal/queue"
	"mediapost/internal/services"
	"mediapost/internal/transcription"
	"mediapost/internal/workflow"
)

func TestRunTranscriptionCompletesAndQueuesPackaging(t *testing.T) {
	h := newHarness(t)
	transcriber := &fakeTranscriber{outcome: transcription.Outcome{Probe: videoProbe, Chunks: 1, Segments: 3}}
	supervisor := workflow.NewSupervisor(h.cfg, h.store, transcriber, nil, nil, nil)

	if err := supervisor.RunTranscription(context.Background(), h.file.ID); err != nil {
		t.Fatalf("RunTranscription failed: %v", err)
	}
	file := h.reload(t)
	if file.Status != queue.StatusCompleted || file.ErrorMessage != "" {
		t.Fatalf("unexpected status %s (%q)", file.Status, file.ErrorMessage)
	}
	if file.DurationSeconds == nil || *file.DurationSeconds != 120 {
		t.Fatalf("expected duration recorded, got %v", file.DurationSeconds)
	}
	jobs := h.jobs(t)
	if len(jobs) != 1 || jobs[0].Lane != queue.LanePackaging || jobs[0].FileID != h.file.ID {
		t.Fatalf("expected a packaging job, got %+v", jobs)
	}
	if jobs[0].MaxAttempts != 1+h.cfg.Workflow.PackagingMaxRetries {
		t.Fatalf("unexpected packaging attempt budget %d", jobs[0].MaxAttempts)
	}
}

func TestRunTranscriptionPersistsTranscriptWithCompletion(t *testing.T) {
	h := newHarness(t)
	transcript := []queue.TranscriptSegment{
		{StartSeconds: 0, EndSeconds: 4, Speaker: "SPEAKER_00", Text: "hello"},
		{StartSeconds: 5, EndSeconds: 9, Speaker: "SPEAKER_01", Text: "world"},
	}
	transcriber := &fakeTranscriber{outcome: transcription.Outcome{Probe: videoProbe, Segments: 2, Transcript: transcript}}
	supervisor := workflow.NewSupervisor(h.cfg, h.store, transcriber, nil, nil, nil)

	if err := supervisor.RunTranscription(context.Background(), h.file.ID); err != nil {
		t.Fatalf("RunTranscription failed: %v", err)
	}
	segments, err := h.store.ListTranscriptSegments(context.Background(), h.file.ID)
	if err != nil {
		t.Fatalf("ListTranscriptSegments: %v", err)
	}
	if len(segments) != 2 || segments[1].Text != "world" || segments[1].FileID != h.file.ID {
		t.Fatalf("unexpected transcript %+v", segments)
	}
}

func TestRunTranscriptionCompletionFailureLeavesRetryableError(t *testing.T) {
	h := newHarness(t)
	previous := []queue.TranscriptSegment{{StartSeconds: 0, EndSeconds: 3, Speaker: "A", Text: "old"}}
	if err := h.store.ReplaceTranscriptSegments(context.Background(), h.file.ID, previous); err != nil {
		t.Fatalf("seed transcript: %v", err)
	}
	transcript := []queue.TranscriptSegment{{StartSeconds: 0, EndSeconds: 6, Speaker: "B", Text: "new"}}
	transcriber := &fakeTranscriber{outcome: transcription.Outcome{Probe: videoProbe, Segments: 1, Transcript: transcript}}
	supervisor := workflow.NewSupervisor(h.cfg, h.store, transcriber, nil, nil, nil)

	restore := rejectCompletion(t, h, "status")
	err := supervisor.RunTranscription(context.Background(), h.file.ID)
	if !errors.Is(err, services.ErrTransient) || !services.Retryable(err) {
		t.Fatalf("expected retryable persistence error, got %v", err)
	}
	file := h.reload(t)
	if file.Status != queue.StatusError || file.ErrorMessage == "" {
		t.Fatalf("expected error status so a retry can claim the file, got %s (%q)", file.Status, file.ErrorMessage)
	}
	if file.DurationSeconds != nil {
		t.Fatalf("duration must roll back with the transcript, got %v", *file.DurationSeconds)
	}
	segments, _ := h.store.ListTranscriptSegments(context.Background(), h.file.ID)
	if len(segments) != 1 || segments[0].Text != "old" {
		t.Fatalf("expected previous transcript kept, got %+v", segments)
	}
	if jobs := h.jobs(t); len(jobs) != 0 {
		t.Fatalf("packaging must wait for a committed transcript, got %+v", jobs)
	}

	restore()
	if err := supervisor.RunTranscription(context.Background(), h.file.ID); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if file := h.reload(t); file.Status != queue.StatusCompleted || file.ErrorMessage != "" {
		t.Fatalf("expected retry to complete, got %s (%q)", file.Status, file.ErrorMessage)
	}
	segments, _ = h.store.ListTranscriptSegments(context.Background(), h.file.ID)
	if len(segments) != 1 || segments[0].Text != "new" {
		t.Fatalf("expected new transcript after retry, got %+v", segments)
	}
	if transcriber.callCount() != 2 {
		t.Fatalf("expected the retry to run the pipeline again, got %d calls", transcriber.callCount())
	}
}

func TestRunTranscriptionSilentVideoStillQueuesPackaging(t *testing.T) {
	h := newHarness(t)
	silent := videoProbe
	silent.NoAudio = true
	supervisor := workflow.NewSupervisor(h.cfg, h.store, &fakeTranscriber{outcome: transcription.Outcome{Probe: silent}}, nil, nil, nil)

	if err := supervisor.RunTranscription(context.Background(), h.file.ID); err != nil {
		t.Fatalf("RunTranscription failed: %v", err)
	}
	if file := h.reload(t); file.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s (%q)", file.Status, file.ErrorMessage)
	}
	segments, err := h.store.ListTranscriptSegments(context.Background(), h.file.ID)
	if err != nil || len(segments) != 0 {
		t.Fatalf("expected empty transcript, got %+v (%v)", segments, err)
	}
	if jobs := h.jobs(t); len(jobs) != 1 || jobs[0].Lane != queue.LanePackaging {
		t.Fatalf("expected a packaging job, got %+v", jobs)
	}
}

func TestRunTranscriptionSkipsPackagingForAudio(t *testing.T) {
	h := newHarness(t)
	audio := ffprobe.Probe{DurationSeconds: 60, SizeBytes: 100, Kind: ffprobe.KindAudio}
	supervisor := workflow.NewSupervisor(h.cfg, h.store, &fakeTranscriber{outcome: transcription.Outcome{Probe: audio}}, nil, nil, nil)

	if err := supervisor.RunTranscription(context.Background(), h.file.ID); err != nil {
		t.Fatalf("RunTranscription failed: %v", err)
	}
	if jobs := h.jobs(t); len(jobs) != 0 {
		t.Fatalf("expected no packaging job for audio, got %+v", jobs)
	}
}

func TestRunTranscriptionRecordsFailure(t *testing.T) {
	h := newHarness(t)
	failure := services.Wrap(services.ErrDomain, "transcription", "transcribe", "2 of 2 chunks failed", transcription.ErrAllChunksFailed)
	supervisor := workflow.NewSupervisor(h.cfg, h.store, &fakeTranscriber{err: failure}, nil, nil, nil)

	err := supervisor.RunTranscription(context.Background(), h.file.ID)
	if !errors.Is(err, transcription.ErrAllChunksFailed) {
		t.Fatalf("expected failure to propagate, got %v", err)
	}
	file := h.reload(t)
	if file.Status != queue.StatusError || file.ErrorMessage == "" {
		t.Fatalf("expected error status with message, got %s (%q)", file.Status, file.ErrorMessage)
	}
	if len(h.jobs(t)) != 0 {
		t.Fatal("failed transcription must not queue packaging")
	}
}

func TestRunTranscriptionIsNoOpWhileProcessing(t *testing.T) {
	h := newHarness(t)
	if ok, err := h.store.Claim(context.Background(), queue.LaneTranscription, h.file.ID); err != nil || !ok {
		t.Fatalf("pre-claim failed: %v %v", ok, err)
	}
	transcriber := &fakeTranscriber{}
	supervisor := workflow.NewSupervisor(h.cfg, h.store, transcriber, nil, nil, nil)

	if err := supervisor.RunTranscription(context.Background(), h.file.ID); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if transcriber.callCount() != 0 {
		t.Fatal("second run must not invoke the pipeline")
	}
	if file := h.reload(t); file.Status != queue.StatusProcessing {
		t.Fatalf("expected status untouched, got %s", file.Status)
	}
}

func TestRunTranscriptionUnknownFile(t *testing.T) {
	h := newHarness(t)
	supervisor := workflow.NewSupervisor(h.cfg, h.store, &fakeTranscriber{}, nil, nil, nil)
	err := supervisor.RunTranscription(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) || services.Retryable(err) {
		t.Fatalf("expected terminal not-found, got %v", err)
	}
}

func TestRunTranscriptionInterruptedReleasesFile(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	transcriber := &fakeTranscriber{hook: func(context.Context) error {
		cancel()
		return context.Canceled
	}}
	supervisor := workflow.NewSupervisor(h.cfg, h.store, transcriber, nil, nil, nil)

	if err := supervisor.RunTranscription(ctx, h.file.ID); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if file := h.reload(t); file.Status != queue.StatusUnprocessed {
		t.Fatalf("expected file released to unprocessed, got %s", file.Status)
	}
}

func TestRunPackagingRecordsPlaylist(t *testing.T) {
	h := newHarness(t)
	packager := &fakePackager{}
	supervisor := workflow.NewSupervisor(h.cfg, h.store, nil, packager, fakeProber{probe: videoProbe}, nil)

	if err := supervisor.RunPackaging(context.Background(), h.file.ID); err != nil {
		t.Fatalf("RunPackaging failed: %v", err)
	}
	file := h.reload(t)
	if file.PackagingStatus != queue.StatusCompleted || file.PlaylistPath != "hls/"+h.file.ID+"/master.m3u8" {
		t.Fatalf("unexpected packaging state %s %q", file.PackagingStatus, file.PlaylistPath)
	}
	if file.Status != queue.StatusUnprocessed {
		t.Fatalf("packaging must not touch the transcription status, got %s", file.Status)
	}
}

func TestRunPackagingCompletionFailureKeepsPlaylistUnset(t *testing.T) {
	h := newHarness(t)
	supervisor := workflow.NewSupervisor(h.cfg, h.store, nil, &fakePackager{}, fakeProber{probe: videoProbe}, nil)

	restore := rejectCompletion(t, h, "packaging_status")
	defer restore()
	err := supervisor.RunPackaging(context.Background(), h.file.ID)
	if !services.Retryable(err) {
		t.Fatalf("expected retryable persistence error, got %v", err)
	}
	file := h.reload(t)
	if file.PackagingStatus != queue.StatusError || file.PlaylistPath != "" {
		t.Fatalf("expected error status without playlist, got %s %q", file.PackagingStatus, file.PlaylistPath)
	}
}

func TestRunPackagingRejectsAudio(t *testing.T) {
	h := newHarness(t)
	packager := &fakePackager{}
	audio := ffprobe.Probe{DurationSeconds: 10, SizeBytes: 10, Kind: ffprobe.KindAudio}
	supervisor := workflow.NewSupervisor(h.cfg, h.store, nil, packager, fakeProber{probe: audio}, nil)

	err := supervisor.RunPackaging(context.Background(), h.file.ID)
	if !errors.Is(err, hls.ErrNotVideo) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected not-video validation error, got %v", err)
	}
	if packager.calls != 0 {
		t.Fatal("packager must not run for audio")
	}
	if file := h.reload(t); file.PackagingStatus != queue.StatusError {
		t.Fatalf("expected packaging error status, got %s", file.PackagingStatus)
	}
}

func TestRunPackagingClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		marker    error
		retryable bool
	}{
		{
			name:   "no variants",
			err:    errors.Join(hls.ErrNoVariantsSucceeded, errors.New("exit status 1")),
			marker: services.ErrDomain,
		},
		{
			name:   "minimum variant timed out",
			err:    errors.Join(hls.ErrMinimumVariantFailed, &hls.VariantError{Variant: "360p", TimedOut: true, Err: context.DeadlineExceeded}),
			marker: services.ErrTimeout,
		},
		{
			name:   "minimum variant out of memory",
			err:    errors.Join(hls.ErrMinimumVariantFailed, &hls.VariantError{Variant: "360p", Output: "Cannot allocate memory", Err: errors.New("exit status 1")}),
			marker: services.ErrExternalTool,
		},
		{
			name:      "minimum variant crashed",
			err:       errors.Join(hls.ErrMinimumVariantFailed, &hls.VariantError{Variant: "360p", Output: "Conversion failed!", Err: errors.New("signal: killed")}),
			marker:    services.ErrTransient,
			retryable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			supervisor := workflow.NewSupervisor(h.cfg, h.store, nil, &fakePackager{err: tt.err}, fakeProber{probe: videoProbe}, nil)
			err := supervisor.RunPackaging(context.Background(), h.file.ID)
			if !errors.Is(err, tt.marker) {
				t.Fatalf("expected %v, got %v", tt.marker, err)
			}
			if services.Retryable(err) != tt.retryable {
				t.Fatalf("Retryable = %v, want %v", services.Retryable(err), tt.retryable)
			}
		})
	}
}
