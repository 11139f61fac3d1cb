package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediapost/internal/config"
	"mediapost/internal/hls"
	"mediapost/internal/logging"
	"mediapost/internal/media/ffprobe"
	"mediapost/internal/queue"
	"mediapost/internal/services"
	"mediapost/internal/transcription"
)

// TranscriptionRunner runs the transcription pipeline for one file.
type TranscriptionRunner interface {
	Run(ctx context.Context, fileID, sourcePath string) (transcription.Outcome, error)
}

// PackageBuilder renders and publishes a streaming package.
type PackageBuilder interface {
	Package(ctx context.Context, fileID, input string, sizeBytes int64) (*hls.Package, error)
}

// MediaProber inspects a source file.
type MediaProber interface {
	Probe(ctx context.Context, path string) (ffprobe.Probe, error)
}

// Supervisor owns the status transitions around each pipeline run. Claiming
// the lane is the single-run lock: a second invocation for a file whose lane
// is already processing returns without doing anything.
type Supervisor struct {
	cfg         *config.Config
	store       *queue.Store
	transcriber TranscriptionRunner
	packager    PackageBuilder
	prober      MediaProber
	heartbeat   *HeartbeatMonitor
	logger      *slog.Logger
}

// NewSupervisor wires a supervisor. The packager and prober may be nil when
// packaging is not used.
func NewSupervisor(cfg *config.Config, store *queue.Store, transcriber TranscriptionRunner, packager PackageBuilder, prober MediaProber, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Supervisor{
		cfg:         cfg,
		store:       store,
		transcriber: transcriber,
		packager:    packager,
		prober:      prober,
		heartbeat: NewHeartbeatMonitor(store, logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		logger: logging.NewComponentLogger(logger, "supervisor"),
	}
}

// completion is what a successful lane body hands back to runLane. commit
// persists the run's results together with the lane's completed status;
// after runs only once commit has landed.
type completion struct {
	commit func(ctx context.Context) error
	after  func(ctx context.Context)
}

// RunTranscription transcribes the file and replaces its transcript. Video
// files are queued for packaging afterwards when auto-packaging is enabled.
func (s *Supervisor) RunTranscription(ctx context.Context, fileID string) error {
	return s.runLane(ctx, queue.LaneTranscription, fileID, func(ctx context.Context, file *queue.MediaFile, logger *slog.Logger) (completion, error) {
		if s.transcriber == nil {
			return completion{}, services.Wrap(services.ErrConfiguration, "transcription", "run", "no transcription pipeline configured", nil)
		}
		outcome, err := s.transcriber.Run(ctx, file.ID, s.cfg.ResolveMediaPath(file.SourcePath))
		if err != nil {
			return completion{}, err
		}
		return completion{
			commit: func(ctx context.Context) error {
				return s.store.CompleteTranscription(ctx, file.ID, outcome.Transcript, outcome.Probe.DurationSeconds)
			},
			after: func(ctx context.Context) {
				if s.cfg.Workflow.AutoPackage && outcome.Probe.IsVideo() {
					s.enqueuePackaging(ctx, file.ID, logger)
				}
			},
		}, nil
	})
}

// RunPackaging builds the streaming package for a video file.
func (s *Supervisor) RunPackaging(ctx context.Context, fileID string) error {
	return s.runLane(ctx, queue.LanePackaging, fileID, func(ctx context.Context, file *queue.MediaFile, logger *slog.Logger) (completion, error) {
		if s.packager == nil || s.prober == nil {
			return completion{}, services.Wrap(services.ErrConfiguration, "packaging", "run", "no packaging pipeline configured", nil)
		}
		source := s.cfg.ResolveMediaPath(file.SourcePath)
		probe, err := s.prober.Probe(ctx, source)
		if err != nil {
			return completion{}, services.Wrap(services.ErrValidation, "packaging", "probe", "source is unreadable", err)
		}
		if !probe.IsVideo() {
			return completion{}, services.Wrap(services.ErrValidation, "packaging", "probe", "source is not a video", hls.ErrNotVideo)
		}
		pkg, err := s.packager.Package(ctx, file.ID, source, probe.SizeBytes)
		if err != nil {
			if ctx.Err() != nil {
				return completion{}, ctx.Err()
			}
			return completion{}, classifyPackagingError(err)
		}
		return completion{
			commit: func(ctx context.Context) error {
				return s.store.CompletePackaging(ctx, file.ID, pkg.StoredPath, probe.DurationSeconds)
			},
		}, nil
	})
}

func (s *Supervisor) runLane(ctx context.Context, lane queue.Lane, fileID string, body func(context.Context, *queue.MediaFile, *slog.Logger) (completion, error)) error {
	ctx = services.WithFileID(ctx, fileID)
	ctx = services.WithLane(ctx, string(lane))
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	logger := logging.WithContext(ctx, s.logger)

	file, err := s.store.GetMediaFile(ctx, fileID)
	if err != nil {
		return services.Wrap(services.ErrTransient, string(lane), "load", "read media file", err)
	}
	if file == nil {
		return services.Wrap(services.ErrNotFound, string(lane), "load", "media file "+fileID, nil)
	}

	claimed, err := s.store.Claim(ctx, lane, fileID)
	if err != nil {
		return services.Wrap(services.ErrTransient, string(lane), "claim", "mark processing", err)
	}
	if !claimed {
		logger.Info("run already in progress; skipping",
			logging.String(logging.FieldEventType, "run_skipped"),
		)
		return nil
	}

	start := time.Now()
	logger.Info("run started", logging.String(logging.FieldEventType, "run_start"))

	var done completion
	beat := func(ctx context.Context) error { return s.store.UpdateHeartbeat(ctx, lane, fileID) }
	runErr := s.heartbeat.run(ctx, string(lane)+":"+fileID, beat, func() error {
		var err error
		done, err = body(ctx, file, logger)
		return err
	})

	// Final transitions must land even when the run was cancelled.
	persistCtx := context.WithoutCancel(ctx)
	if runErr == nil && done.commit != nil {
		if err := done.commit(persistCtx); err != nil {
			runErr = services.Wrap(services.ErrTransient, string(lane), "persist", "record results", err)
		}
	}
	switch {
	case runErr == nil:
		logger.Info("run completed",
			logging.String(logging.FieldEventType, "run_complete"),
			logging.Duration("duration", time.Since(start)),
		)
		if done.after != nil {
			done.after(persistCtx)
		}
		return nil
	case errors.Is(runErr, context.Canceled) && ctx.Err() != nil:
		if err := s.store.UpdateStatus(persistCtx, lane, fileID, queue.StatusUnprocessed, ""); err != nil {
			logger.Warn("failed to release interrupted run", logging.Error(err))
		}
		logger.Info("run interrupted by shutdown", logging.String(logging.FieldEventType, "run_interrupted"))
		return runErr
	default:
		message := failureMessage(runErr)
		if err := s.store.UpdateStatus(persistCtx, lane, fileID, queue.StatusError, message); err != nil {
			logger.Error("failed to persist run failure", logging.Error(err))
		}
		logger.Error("run failed",
			logging.Error(runErr),
			logging.Alert("run_failure"),
			logging.String("error_kind", services.Kind(runErr)),
			logging.Bool("retryable", services.Retryable(runErr)),
			logging.String(logging.FieldEventType, "run_failure"),
			logging.String(logging.FieldErrorHint, failureHint(runErr)),
		)
		return runErr
	}
}

func (s *Supervisor) enqueuePackaging(ctx context.Context, fileID string, logger *slog.Logger) {
	job, created, err := s.store.EnqueueJob(ctx, queue.LanePackaging, fileID, maxAttempts(s.cfg.Workflow.PackagingMaxRetries))
	if err != nil {
		logging.WarnWithContext(logger, "failed to queue packaging", "packaging_enqueue_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `mediapost package "+fileID+"`"),
			logging.String(logging.FieldImpact, "no streaming package will be built automatically"),
		)
		return
	}
	if created {
		logger.Info("packaging queued", logging.String("job_id", job.ID))
	}
}

// classifyPackagingError maps packager failures onto retry markers.
func classifyPackagingError(err error) error {
	const stage = "packaging"
	if errors.Is(err, hls.ErrNoVariantsSucceeded) {
		return services.Wrap(services.ErrDomain, stage, "package", "every variant failed", err)
	}
	var verr *hls.VariantError
	if errors.As(err, &verr) {
		switch {
		case verr.TimedOut:
			return services.Wrap(services.ErrTimeout, stage, "encode", "variant "+verr.Variant+" timed out", err)
		case verr.Terminal():
			return services.Wrap(services.ErrExternalTool, stage, "encode", "variant "+verr.Variant+" failed", err)
		}
	}
	return services.Wrap(services.ErrTransient, stage, "package", "package failed", err)
}

func failureMessage(err error) string {
	message := strings.TrimSpace(err.Error())
	const limit = 1000
	if len(message) > limit {
		message = message[:limit] + "..."
	}
	return message
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrConfiguration):
		return "check the backend API key, quota, and configuration"
	case errors.Is(err, services.ErrValidation):
		return "check that the source file is a readable media file"
	case errors.Is(err, services.ErrExternalTool), errors.Is(err, services.ErrTimeout):
		return "check ffmpeg and hardware encoder health"
	case services.Retryable(err):
		return "the run will be retried automatically"
	default:
		return "inspect the error message and re-run manually"
	}
}

func maxAttempts(retries int) int {
	return 1 + max(0, retries)
}
