package transcription_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"mediapost/internal/chunking"
	"mediapost/internal/diarization"
	"mediapost/internal/media/ffprobe"
	"mediapost/internal/queue"
	"mediapost/internal/services"
	"mediapost/internal/testsupport"
	"mediapost/internal/transcription"
)

type stubProber struct {
	probe ffprobe.Probe
	err   error
}

func (p stubProber) Probe(context.Context, string) (ffprobe.Probe, error) {
	return p.probe, p.err
}

type copyNormalizer struct{}

func (copyNormalizer) Normalize(_ context.Context, _ string, dest string) error {
	return os.WriteFile(dest, []byte("audio"), 0o644)
}

// rangePlanner splits into fixed ranges and writes a file per chunk.
type rangePlanner struct {
	ranges [][2]float64
}

func (p rangePlanner) Plan(_ context.Context, path, workDir string) (*chunking.Plan, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, err
	}
	plan := &chunking.Plan{Source: path, Split: len(p.ranges) > 1}
	for i, r := range p.ranges {
		chunkPath := path
		if plan.Split {
			chunkPath = filepath.Join(workDir, fmt.Sprintf("chunk_%03d.mp3", i))
			if err := os.WriteFile(chunkPath, []byte("chunk"), 0o644); err != nil {
				return nil, err
			}
		}
		plan.Chunks = append(plan.Chunks, chunking.Chunk{Index: i, Start: r[0], End: r[1], Path: chunkPath})
		plan.Duration = r[1]
	}
	return plan, nil
}

// chunkTranscriber answers by chunk position in call order.
type chunkTranscriber struct {
	results []transcription.Result
	errs    []error
	calls   int
}

func (c *chunkTranscriber) Transcribe(context.Context, transcription.Request) (transcription.Result, error) {
	idx := c.calls
	c.calls++
	if idx < len(c.errs) && c.errs[idx] != nil {
		return transcription.Result{}, c.errs[idx]
	}
	if idx < len(c.results) {
		return c.results[idx], nil
	}
	return transcription.Result{}, nil
}

type stubDiarizer struct {
	turns []diarization.Turn
	err   error
}

func (d stubDiarizer) Diarize(context.Context, string) ([]diarization.Turn, error) {
	return d.turns, d.err
}

type orchestratorFixture struct {
	fileID   string
	workRoot string
}

func newFixture(t *testing.T) orchestratorFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return orchestratorFixture{fileID: "3f2a9c1e-talk", workRoot: cfg.Paths.WorkDir}
}

func (f orchestratorFixture) orchestrator(planner transcription.Planner, transcriber transcription.Transcriber, diarizer diarization.Diarizer) *transcription.Orchestrator {
	return transcription.NewOrchestrator(transcription.Dependencies{
		Prober:      stubProber{probe: ffprobe.Probe{DurationSeconds: 300, SizeBytes: 1000, Kind: ffprobe.KindVideo}},
		Normalizer:  copyNormalizer{},
		Planner:     planner,
		Transcriber: transcriber,
		Diarizer:    diarizer,
		Merger:      transcription.Merger{MaxGapSeconds: 2, MaxDurationSeconds: 30},
		WorkRoot:    f.workRoot,
	})
}

func exhausted() error {
	return fmt.Errorf("%w after 5 attempts: %w", transcription.ErrRetriesExhausted, errors.New("HTTP 500"))
}

func TestRunToleratesFailedChunk(t *testing.T) {
	f := newFixture(t)
	transcriber := &chunkTranscriber{
		results: []transcription.Result{
			{Fragments: []transcription.Fragment{{Start: 1, End: 5, Text: "alpha"}}},
			{},
			{Fragments: []transcription.Fragment{{Start: 2, End: 6, Text: "gamma"}}},
		},
		errs: []error{nil, exhausted(), nil},
	}
	planner := rangePlanner{ranges: [][2]float64{{0, 100}, {100, 200}, {200, 300}}}

	outcome, err := f.orchestrator(planner, transcriber, nil).Run(context.Background(), f.fileID, "/media/talk.mp4")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Chunks != 3 || outcome.FailedChunks != 1 || outcome.Segments != 2 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	want := []queue.TranscriptSegment{
		{FileID: f.fileID, Position: 0, StartSeconds: 1, EndSeconds: 5, Speaker: queue.UnknownSpeaker, Text: "alpha"},
		{FileID: f.fileID, Position: 1, StartSeconds: 202, EndSeconds: 206, Speaker: queue.UnknownSpeaker, Text: "gamma"},
	}
	if !reflect.DeepEqual(outcome.Transcript, want) {
		t.Fatalf("unexpected segments\n got %+v\nwant %+v", outcome.Transcript, want)
	}
}

func TestRunSkipsRejectedChunk(t *testing.T) {
	f := newFixture(t)
	rejected := transcription.ClassifyResponse("openai", 413, []byte("Maximum content size exceeded"))
	transcriber := &chunkTranscriber{
		results: []transcription.Result{{}, {Fragments: []transcription.Fragment{{Start: 0, End: 3, Text: "beta"}}}},
		errs:    []error{rejected, nil},
	}
	planner := rangePlanner{ranges: [][2]float64{{0, 150}, {150, 300}}}

	outcome, err := f.orchestrator(planner, transcriber, nil).Run(context.Background(), f.fileID, "/media/talk.mp4")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.FailedChunks != 1 || len(outcome.Transcript) != 1 || outcome.Transcript[0].StartSeconds != 150 {
		t.Fatalf("expected the rejected chunk to be skipped, got %+v", outcome)
	}
}

func TestRunAllChunksFailedReturnsNoTranscript(t *testing.T) {
	f := newFixture(t)
	transcriber := &chunkTranscriber{errs: []error{exhausted(), exhausted()}}
	planner := rangePlanner{ranges: [][2]float64{{0, 150}, {150, 300}}}

	outcome, err := f.orchestrator(planner, transcriber, nil).Run(context.Background(), f.fileID, "/media/talk.mp4")
	if !errors.Is(err, transcription.ErrAllChunksFailed) || !errors.Is(err, services.ErrDomain) {
		t.Fatalf("expected all-chunks-failed domain error, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("all-chunks-failed must not be retried by the dispatcher")
	}
	if outcome.FailedChunks != 2 || outcome.Transcript != nil {
		t.Fatalf("expected 2 failed chunks and no transcript, got %+v", outcome)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	planner := rangePlanner{ranges: [][2]float64{{0, 60}}}
	newTranscriber := func() *chunkTranscriber {
		return &chunkTranscriber{results: []transcription.Result{{Fragments: []transcription.Fragment{
			{Start: 0, End: 2, Text: "one"},
			{Start: 2, End: 4, Text: "two"},
			{Start: 40, End: 44, Text: "three"},
		}}}}
	}

	firstOutcome, err := f.orchestrator(planner, newTranscriber(), nil).Run(context.Background(), f.fileID, "/media/talk.mp4")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	secondOutcome, err := f.orchestrator(planner, newTranscriber(), nil).Run(context.Background(), f.fileID, "/media/talk.mp4")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	first, second := firstOutcome.Transcript, secondOutcome.Transcript

	if len(first) != 2 || !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical transcripts, got %+v then %+v", first, second)
	}
	if first[0].Text != "one two" {
		t.Fatalf("expected merged first segment, got %q", first[0].Text)
	}
}

func TestRunAbortsOnQuota(t *testing.T) {
	f := newFixture(t)
	quota := &transcription.RemoteError{Backend: "openai", Kind: transcription.ErrorQuota, StatusCode: 429, Message: "insufficient_quota"}
	transcriber := &chunkTranscriber{errs: []error{quota}}
	planner := rangePlanner{ranges: [][2]float64{{0, 100}, {100, 200}, {200, 300}}}

	_, err := f.orchestrator(planner, transcriber, nil).Run(context.Background(), f.fileID, "/media/talk.mp4")
	if !errors.Is(err, transcription.ErrQuotaExceeded) || !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error wrapping quota, got %v", err)
	}
	if transcriber.calls != 1 {
		t.Fatalf("expected the run to stop after the first chunk, got %d calls", transcriber.calls)
	}
}

func TestRunTransportFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	transcriber := &chunkTranscriber{errs: []error{errors.New("connection reset")}}
	planner := rangePlanner{ranges: [][2]float64{{0, 60}}}

	_, err := f.orchestrator(planner, transcriber, nil).Run(context.Background(), f.fileID, "/media/talk.mp4")
	if !errors.Is(err, services.ErrTransient) || !services.Retryable(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestRunAssignsSpeakers(t *testing.T) {
	f := newFixture(t)
	transcriber := &chunkTranscriber{results: []transcription.Result{{Fragments: []transcription.Fragment{
		{Start: 0, End: 4, Text: "hi"},
		{Start: 12, End: 15, Text: "yo"},
		{Start: 20, End: 22, Text: "labelled", Speaker: "SPEAKER_09"},
	}}}}
	diarizer := stubDiarizer{turns: []diarization.Turn{
		{Start: 0, End: 10, Speaker: "SPEAKER_00"},
		{Start: 10, End: 60, Speaker: "SPEAKER_01"},
	}}
	planner := rangePlanner{ranges: [][2]float64{{0, 60}}}

	outcome, err := f.orchestrator(planner, transcriber, diarizer).Run(context.Background(), f.fileID, "/media/talk.mp4")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	segments := outcome.Transcript
	speakers := make([]string, 0, len(segments))
	for _, seg := range segments {
		speakers = append(speakers, seg.Speaker)
	}
	want := []string{"SPEAKER_00", "SPEAKER_01", "SPEAKER_09"}
	if !reflect.DeepEqual(speakers, want) {
		t.Fatalf("unexpected speakers %v, want %v", speakers, want)
	}
}

func TestRunDiarizationFailureFallsBackToUnknown(t *testing.T) {
	f := newFixture(t)
	transcriber := &chunkTranscriber{results: []transcription.Result{{Fragments: []transcription.Fragment{{Start: 0, End: 3, Text: "hello"}}}}}
	diarizer := stubDiarizer{err: errors.New("model missing")}
	planner := rangePlanner{ranges: [][2]float64{{0, 30}}}

	outcome, err := f.orchestrator(planner, transcriber, diarizer).Run(context.Background(), f.fileID, "/media/talk.mp4")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if segments := outcome.Transcript; len(segments) != 1 || segments[0].Speaker != queue.UnknownSpeaker {
		t.Fatalf("expected unknown speaker, got %+v", segments)
	}
}

func TestRunRemovesScratchSpace(t *testing.T) {
	f := newFixture(t)
	transcriber := &chunkTranscriber{errs: []error{nil, errors.New("boom")}}
	planner := rangePlanner{ranges: [][2]float64{{0, 10}, {10, 20}}}

	if _, err := f.orchestrator(planner, transcriber, nil).Run(context.Background(), f.fileID, "/media/talk.mp4"); err == nil {
		t.Fatal("expected transport failure")
	}
	entries, err := os.ReadDir(f.workRoot)
	if err != nil {
		t.Fatalf("read work root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected scratch space removed, found %d entries", len(entries))
	}
}

func TestRunVideoWithoutAudioYieldsEmptyTranscript(t *testing.T) {
	f := newFixture(t)
	transcriber := &chunkTranscriber{}
	orch := transcription.NewOrchestrator(transcription.Dependencies{
		Prober:      stubProber{probe: ffprobe.Probe{DurationSeconds: 30, SizeBytes: 500, Kind: ffprobe.KindVideo, NoAudio: true}},
		Transcriber: transcriber,
		WorkRoot:    f.workRoot,
	})
	outcome, err := orch.Run(context.Background(), f.fileID, "/media/screen.mp4")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(outcome.Transcript) != 0 || !outcome.Probe.IsVideo() {
		t.Fatalf("expected empty transcript for a video, got %+v", outcome)
	}
	if transcriber.calls != 0 {
		t.Fatalf("expected no backend calls, got %d", transcriber.calls)
	}
}

func TestRunRejectsUnreadableSource(t *testing.T) {
	f := newFixture(t)
	orch := transcription.NewOrchestrator(transcription.Dependencies{
		Prober:   stubProber{err: ffprobe.ErrProbe},
		WorkRoot: f.workRoot,
	})
	_, err := orch.Run(context.Background(), f.fileID, "/media/broken.mp4")
	if !errors.Is(err, services.ErrValidation) || services.Retryable(err) {
		t.Fatalf("expected terminal validation error, got %v", err)
	}
}
