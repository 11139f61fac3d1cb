package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mediapost/internal/config"
	"mediapost/internal/fileutil"
	"mediapost/internal/hls"
	"mediapost/internal/logging"
	"mediapost/internal/media/ffprobe"
	"mediapost/internal/queue"
	"mediapost/internal/services"
	"mediapost/internal/transcription"
)

// UploadsDir is the media root subdirectory that imported files land in.
const UploadsDir = "uploads"

// NewSupervisorFromConfig assembles the production pipeline: the
// transcription orchestrator, the hardware-aware HLS packager, and ffprobe.
func NewSupervisorFromConfig(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	orchestrator, err := transcription.NewOrchestratorFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	detector := hls.NewDetector(cfg.FFmpegBinary(), cfg.Packaging.HardwareAcceleration, logging.NewComponentLogger(logger, "hwaccel"))
	transcoder := hls.NewTranscoder(cfg.FFmpegBinary(), cfg.Packaging.SegmentSeconds, detector, logging.NewComponentLogger(logger, "transcoder"))
	packager := hls.NewPackager(cfg, transcoder, logging.NewComponentLogger(logger, "packager"))
	prober := ffprobe.NewProber(cfg.FFprobeBinary(), cfg.FFmpegBinary())
	return NewSupervisor(cfg, store, orchestrator, packager, prober, logger), nil
}

// AddFile registers a media file for processing. Paths under the media root
// are stored relative to it; anything else is stored absolute.
func AddFile(ctx context.Context, cfg *config.Config, store *queue.Store, sourcePath string) (*queue.MediaFile, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, services.Wrap(services.ErrValidation, "ingest", "add", "source path is required", nil)
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "ingest", "stat", absPath, err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "ingest", "stat", fmt.Sprintf("%s is a directory", absPath), nil)
	}
	if info.Size() == 0 {
		return nil, services.Wrap(services.ErrValidation, "ingest", "stat", fmt.Sprintf("%s is empty", absPath), nil)
	}

	stored := absPath
	if rel, err := filepath.Rel(cfg.Paths.MediaRoot, absPath); err == nil && !strings.HasPrefix(rel, "..") {
		stored = rel
	}
	file, err := store.CreateMediaFile(ctx, stored)
	if err != nil {
		return nil, fmt.Errorf("register media file: %w", err)
	}
	return file, nil
}

// ImportFile copies sourcePath into the media root's uploads directory and
// registers the copy.
func ImportFile(ctx context.Context, cfg *config.Config, store *queue.Store, sourcePath string) (*queue.MediaFile, error) {
	info, err := os.Stat(strings.TrimSpace(sourcePath))
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "ingest", "stat", sourcePath, err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "ingest", "stat", fmt.Sprintf("%s is a directory", sourcePath), nil)
	}
	dst, err := fileutil.Import(strings.TrimSpace(sourcePath), filepath.Join(cfg.Paths.MediaRoot, UploadsDir))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "copy", "import into media root", err)
	}
	return AddFile(ctx, cfg, store, dst)
}
