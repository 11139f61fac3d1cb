package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"mediapost/internal/chunking"
	"mediapost/internal/config"
	"mediapost/internal/diarization"
	"mediapost/internal/logging"
	"mediapost/internal/media/audio"
	"mediapost/internal/media/ffprobe"
	"mediapost/internal/queue"
	"mediapost/internal/services"
)

const stageName = "transcription"

// Prober reports duration, size, and kind for a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (ffprobe.Probe, error)
}

// Normalizer converts a source into compact speech audio.
type Normalizer interface {
	Normalize(ctx context.Context, source, dest string) error
}

// Planner splits audio for size-limited backends.
type Planner interface {
	Plan(ctx context.Context, path, workDir string) (*chunking.Plan, error)
}

// Transcriber turns one audio payload into fragments.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}

// Dependencies wires an Orchestrator. Diarizer may be nil.
type Dependencies struct {
	Prober      Prober
	Normalizer  Normalizer
	Planner     Planner
	Transcriber Transcriber
	Diarizer    diarization.Diarizer
	Merger      Merger
	WorkRoot    string
	Language    string
	Logger      *slog.Logger
}

// Orchestrator runs the transcription pipeline for one media file.
type Orchestrator struct {
	deps   Dependencies
	logger *slog.Logger
}

// NewOrchestrator constructs an orchestrator from explicit dependencies.
func NewOrchestrator(deps Dependencies) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{deps: deps, logger: logger}
}

// NewOrchestratorFromConfig builds the production pipeline: the configured
// backend behind the retrying client, ffprobe, ffmpeg, the chunk planner
// bounded by the backend's payload limit, and the optional diarizer.
func NewOrchestratorFromConfig(cfg *config.Config, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	backend, err := NewBackend(cfg.Transcription)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "backend", "select transcription backend", err)
	}
	prober := ffprobe.NewProber(cfg.FFprobeBinary(), cfg.FFmpegBinary())
	tool := audio.NewTool(cfg.FFmpegBinary())
	planner := chunking.NewPlanner(
		chunking.SettingsFromConfig(cfg, backend.MaxUploadBytes()),
		prober,
		tool,
		logging.NewComponentLogger(logger, "chunking"),
	)
	client := NewClient(backend,
		WithMaxAttempts(cfg.Transcription.MaxRetries),
		WithLogger(logging.NewComponentLogger(logger, "transcription-client")),
	)

	deps := Dependencies{
		Prober:      prober,
		Normalizer:  tool,
		Planner:     planner,
		Transcriber: client,
		Merger:      NewMerger(cfg.Merge),
		WorkRoot:    cfg.Paths.WorkDir,
		Language:    cfg.Transcription.Language,
		Logger:      logging.NewComponentLogger(logger, "transcription"),
	}
	if diarizer := diarization.NewCommandDiarizer(cfg.Diarization); diarizer != nil {
		deps.Diarizer = diarizer
	}
	return NewOrchestrator(deps), nil
}

// Outcome summarizes a successful run. Transcript is the merged result,
// ready to replace the stored transcript; the caller persists it together
// with the lane's completion.
type Outcome struct {
	Probe        ffprobe.Probe
	Chunks       int
	FailedChunks int
	Segments     int
	Transcript   []queue.TranscriptSegment
}

// Run transcribes sourcePath for fileID. It never writes to the store, so a
// failed run leaves the previous transcript in place. Scratch files are
// removed on every exit path.
func (o *Orchestrator) Run(ctx context.Context, fileID, sourcePath string) (Outcome, error) {
	ctx = services.WithStage(ctx, stageName)
	logger := logging.WithContext(ctx, o.logger)

	probe, err := o.deps.Prober.Probe(ctx, sourcePath)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrValidation, stageName, "probe", "source is unreadable", err)
	}
	outcome := Outcome{Probe: probe}
	logger.Info("transcription started",
		logging.String(logging.FieldEventType, "transcription_start"),
		logging.Float64("duration_seconds", probe.DurationSeconds),
		logging.Int64("size_bytes", probe.SizeBytes),
		logging.String("kind", string(probe.Kind)),
	)

	if probe.NoAudio {
		logging.WarnWithContext(logger, "source has no audio track; transcript will be empty", "transcription_no_audio",
			logging.String(logging.FieldErrorHint, "check the upload if speech was expected"),
			logging.String(logging.FieldImpact, "the file completes with an empty transcript"),
		)
		return outcome, nil
	}

	if err := os.MkdirAll(o.deps.WorkRoot, 0o755); err != nil {
		return outcome, services.Wrap(services.ErrConfiguration, stageName, "workdir", "create work root", err)
	}
	workDir, err := os.MkdirTemp(o.deps.WorkRoot, "transcribe-"+fileID+"-")
	if err != nil {
		return outcome, services.Wrap(services.ErrConfiguration, stageName, "workdir", "create scratch dir", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("failed to remove scratch dir",
				logging.String("path", workDir),
				logging.Error(err),
				logging.String(logging.FieldEventType, "scratch_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "remove the directory manually"),
			)
		}
	}()

	normalized := filepath.Join(workDir, "audio"+audio.Extension)
	if err := o.deps.Normalizer.Normalize(ctx, sourcePath, normalized); err != nil {
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
		return outcome, services.Wrap(services.ErrExternalTool, stageName, "normalize", "convert source audio", err)
	}

	plan, err := o.deps.Planner.Plan(ctx, normalized, filepath.Join(workDir, "chunks"))
	if err != nil {
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
		marker := services.ErrExternalTool
		if errors.Is(err, chunking.ErrChunkLimitExceeded) || errors.Is(err, ffprobe.ErrProbe) {
			marker = services.ErrValidation
		}
		return outcome, services.Wrap(marker, stageName, "plan", "split audio", err)
	}
	defer func() { _ = plan.Cleanup() }()
	outcome.Chunks = len(plan.Chunks)

	var fragments []Fragment
	for _, chunk := range plan.Chunks {
		chunkFragments, err := o.transcribeChunk(ctx, logger, chunk, len(plan.Chunks))
		if err != nil {
			if isChunkFailure(err) {
				outcome.FailedChunks++
				continue
			}
			return outcome, err
		}
		fragments = append(fragments, chunkFragments...)
	}
	if outcome.FailedChunks == len(plan.Chunks) {
		return outcome, services.Wrap(services.ErrDomain, stageName, "transcribe",
			fmt.Sprintf("%d of %d chunks failed", outcome.FailedChunks, len(plan.Chunks)), ErrAllChunksFailed)
	}

	sort.SliceStable(fragments, func(i, j int) bool { return fragments[i].Start < fragments[j].Start })
	merged := o.deps.Merger.Merge(fragments)
	outcome.Transcript = ToSegments(fileID, merged)
	outcome.Segments = len(outcome.Transcript)

	if outcome.FailedChunks > 0 {
		logging.WarnWithContext(logger, "transcription completed with missing chunks", "transcription_partial",
			logging.Int("failed_chunks", outcome.FailedChunks),
			logging.Int("chunks", outcome.Chunks),
			logging.String(logging.FieldErrorHint, "re-run transcription once the backend recovers"),
			logging.String(logging.FieldImpact, "the transcript has gaps"),
		)
	}
	logger.Info("transcription completed",
		logging.String(logging.FieldEventType, "transcription_complete"),
		logging.Int("segments", outcome.Segments),
		logging.Int("chunks", outcome.Chunks),
	)
	return outcome, nil
}

// chunkFailure marks an expected per-chunk failure the run tolerates.
type chunkFailure struct{ err error }

func (c chunkFailure) Error() string { return c.err.Error() }
func (c chunkFailure) Unwrap() error { return c.err }

func isChunkFailure(err error) bool {
	var failure chunkFailure
	return errors.As(err, &failure)
}

func (o *Orchestrator) transcribeChunk(ctx context.Context, logger *slog.Logger, chunk chunking.Chunk, total int) ([]Fragment, error) {
	chunkLogger := logger.With(logging.Int("chunk", chunk.Index+1), logging.Int("chunks", total))
	turns := o.diarize(ctx, chunkLogger, chunk)

	result, err := o.deps.Transcriber.Transcribe(ctx, Request{Path: chunk.Path, Language: o.deps.Language})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		switch {
		case errors.Is(err, ErrQuotaExceeded), errors.Is(err, ErrAuth):
			return nil, services.Wrap(services.ErrConfiguration, stageName, "transcribe", "backend rejected credentials or quota", err)
		case errors.Is(err, ErrRetriesExhausted), errors.Is(err, ErrRequestRejected):
			chunkLogger.Warn("chunk transcription failed; continuing",
				logging.Error(err),
				logging.Float64("start", chunk.Start),
				logging.Float64("end", chunk.End),
				logging.String(logging.FieldEventType, "chunk_failed"),
				logging.String(logging.FieldErrorHint, "check backend availability"),
				logging.String(logging.FieldImpact, "this chunk will be missing from the transcript"),
			)
			return nil, chunkFailure{err: err}
		default:
			return nil, services.Wrap(services.ErrTransient, stageName, "transcribe", "backend transport failure", err)
		}
	}

	fragments := make([]Fragment, 0, len(result.Fragments))
	for _, fragment := range result.Fragments {
		if fragment.End <= fragment.Start && fragment.Start == 0 {
			fragment.End = chunk.Duration()
		}
		if fragment.Speaker == "" && len(turns) > 0 {
			fragment.Speaker = diarization.SpeakerFor(turns, fragment.Start, fragment.End)
		}
		fragment.Start += chunk.Start
		fragment.End += chunk.Start
		fragments = append(fragments, fragment)
	}
	chunkLogger.Debug("chunk transcribed", logging.Int("fragments", len(fragments)))
	return fragments, nil
}

// diarize returns the chunk's speaker timeline, relative to the chunk start.
// Failure degrades to a single unknown-speaker turn spanning the chunk.
func (o *Orchestrator) diarize(ctx context.Context, logger *slog.Logger, chunk chunking.Chunk) []diarization.Turn {
	if o.deps.Diarizer == nil {
		return nil
	}
	turns, err := o.deps.Diarizer.Diarize(ctx, chunk.Path)
	if err == nil && len(turns) > 0 {
		return turns
	}
	if err == nil {
		err = errors.New("no speaker turns")
	}
	logging.WarnWithContext(logger, "diarization failed; using unknown speaker", "diarization_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check diarization.command"),
		logging.String(logging.FieldImpact, "speaker labels unavailable for this chunk"),
	)
	return []diarization.Turn{{Start: 0, End: chunk.Duration(), Speaker: queue.UnknownSpeaker}}
}
