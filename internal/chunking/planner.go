package chunking

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"mediapost/internal/logging"
	"mediapost/internal/media/audio"
	"mediapost/internal/media/ffprobe"
)

// Prober reports duration and size for a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (ffprobe.Probe, error)
}

// AudioTool detects silence and cuts ranges from audio files.
type AudioTool interface {
	DetectSilence(ctx context.Context, path string, noiseDB, minSeconds float64) ([]audio.Silence, error)
	Extract(ctx context.Context, source string, start, duration float64, dest string) error
}

// Planner decides how to split audio for a size-limited backend.
type Planner struct {
	settings Settings
	prober   Prober
	audio    AudioTool
	logger   *slog.Logger
}

// NewPlanner constructs a planner.
func NewPlanner(settings Settings, prober Prober, tool AudioTool, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{
		settings: settings,
		prober:   prober,
		audio:    tool,
		logger:   logger,
	}
}

// Plan returns the chunk plan for path. Files within the limit yield a
// single chunk pointing at path. Otherwise chunks are extracted into
// workDir, which the caller owns and must remove.
func (p *Planner) Plan(ctx context.Context, path, workDir string) (*Plan, error) {
	probe, err := p.prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Source: path, Duration: probe.DurationSeconds}
	if p.settings.MaxBytes <= 0 || probe.SizeBytes <= p.settings.MaxBytes {
		plan.Chunks = []Chunk{{Index: 0, Start: 0, End: probe.DurationSeconds, Path: path}}
		return plan, nil
	}
	plan.Split = true

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}

	silences, err := p.audio.DetectSilence(ctx, path, p.settings.SilenceNoiseDB, p.settings.SilenceMinSeconds)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("silence detection failed; using raw boundaries",
			logging.Error(err),
			logging.String(logging.FieldEventType, "silence_detect_failed"),
			logging.String(logging.FieldErrorHint, "chunks will be cut at fixed intervals"),
			logging.String(logging.FieldImpact, "cuts may land mid-word"),
		)
		silences = nil
	}

	state := &splitState{plan: plan, silences: silences, workDir: workDir}
	target := TargetDuration(probe.SizeBytes, p.settings.MaxBytes, probe.DurationSeconds, p.settings.SafetyMargin, p.settings.MinChunkSeconds)
	if err := p.split(ctx, state, Range{Start: 0, End: probe.DurationSeconds}, target, p.settings.MinChunkSeconds); err != nil {
		_ = plan.Cleanup()
		return nil, err
	}
	for i := range plan.Chunks {
		plan.Chunks[i].Index = i
	}

	p.logger.Info("chunk plan ready",
		logging.Int("chunks", len(plan.Chunks)),
		logging.Int("extractions", state.extracted),
		logging.Float64("target_seconds", target),
		logging.Int("silences", len(silences)),
		logging.Int64("size_bytes", probe.SizeBytes),
	)
	return plan, nil
}

type splitState struct {
	plan      *Plan
	silences  []audio.Silence
	workDir   string
	extracted int
}

func (p *Planner) split(ctx context.Context, state *splitState, span Range, target, minSeconds float64) error {
	for _, r := range Boundaries(span.Start, span.End, target, minSeconds, state.silences, p.settings.SnapWindowRatio) {
		if err := ctx.Err(); err != nil {
			return err
		}
		state.extracted++
		if p.settings.MaxChunks > 0 && state.extracted > p.settings.MaxChunks {
			return fmt.Errorf("%w: more than %d extractions for %s", ErrChunkLimitExceeded, p.settings.MaxChunks, state.plan.Source)
		}

		dest := filepath.Join(state.workDir, fmt.Sprintf("chunk_%03d%s", state.extracted, audio.Extension))
		if err := p.audio.Extract(ctx, state.plan.Source, r.Start, r.End-r.Start, dest); err != nil {
			return fmt.Errorf("extract chunk %.1f-%.1fs: %w", r.Start, r.End, err)
		}
		info, err := os.Stat(dest)
		if err != nil {
			return fmt.Errorf("stat chunk: %w", err)
		}
		if info.Size() <= p.settings.MaxBytes {
			state.plan.Chunks = append(state.plan.Chunks, Chunk{Start: r.Start, End: r.End, Path: dest})
			continue
		}

		p.logger.Debug("chunk still over limit; re-planning",
			logging.Float64("start", r.Start),
			logging.Float64("end", r.End),
			logging.Int64("size_bytes", info.Size()),
		)
		_ = os.Remove(dest)
		subTarget := TargetDuration(info.Size(), p.settings.MaxBytes, r.End-r.Start, p.settings.SafetyMargin, p.settings.MinChunkSeconds)
		// An oversized range too short to halve at the minimum length has
		// to be cut below it; the payload limit wins.
		subMin := p.settings.MinChunkSeconds
		if r.End-r.Start < 2*subMin {
			subMin = 0
		}
		if err := p.split(ctx, state, r, subTarget, subMin); err != nil {
			return err
		}
	}
	return nil
}
