package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediapost/internal/config"
	"mediapost/internal/logging"
	"mediapost/internal/notifications"
	"mediapost/internal/queue"
	"mediapost/internal/services"
)

// LaneRunner executes one lane for one file.
type LaneRunner interface {
	RunTranscription(ctx context.Context, fileID string) error
	RunPackaging(ctx context.Context, fileID string) error
}

type lanePolicy struct {
	workers     int
	retryDelay  time.Duration
	maxAttempts int
}

// Dispatcher drains the persisted job queue with a pool of workers per lane.
// Delivery is at least once: a job interrupted by shutdown or a crash is run
// again, which the supervisor's claim makes safe.
type Dispatcher struct {
	cfg          *config.Config
	store        *queue.Store
	runner       LaneRunner
	notifier     notifications.Service
	heartbeat    *HeartbeatMonitor
	logger       *slog.Logger
	pollInterval time.Duration
	errorBackoff time.Duration
	policies     map[queue.Lane]lanePolicy
	now          func() time.Time

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewDispatcher constructs a dispatcher from workflow configuration.
func NewDispatcher(cfg *config.Config, store *queue.Store, runner LaneRunner, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	wf := cfg.Workflow
	return &Dispatcher{
		cfg:      cfg,
		store:    store,
		runner:   runner,
		notifier: notifications.NewService(cfg.Notifications),
		heartbeat: NewHeartbeatMonitor(store, logger,
			time.Duration(wf.HeartbeatInterval)*time.Second,
			time.Duration(wf.HeartbeatTimeout)*time.Second,
		),
		logger:       logging.NewComponentLogger(logger, "dispatcher"),
		pollInterval: time.Duration(wf.QueuePollInterval) * time.Second,
		errorBackoff: time.Duration(wf.ErrorRetryInterval) * time.Second,
		policies: map[queue.Lane]lanePolicy{
			queue.LaneTranscription: {
				workers:     max(1, wf.TranscriptionWorkers),
				retryDelay:  time.Duration(wf.TranscriptionRetryDelay) * time.Second,
				maxAttempts: maxAttempts(wf.TranscriptionMaxRetries),
			},
			queue.LanePackaging: {
				workers:     max(1, wf.PackagingWorkers),
				retryDelay:  time.Duration(wf.PackagingRetryDelay) * time.Second,
				maxAttempts: maxAttempts(wf.PackagingMaxRetries),
			},
		},
		now: time.Now,
	}
}

// WithNotifier replaces the outcome notifier built from configuration.
func (d *Dispatcher) WithNotifier(notifier notifications.Service) {
	if notifier != nil {
		d.notifier = notifier
	}
}

// Enqueue schedules a lane run. An existing pending or running job for the
// same file and lane is returned instead of creating a duplicate.
func (d *Dispatcher) Enqueue(ctx context.Context, lane queue.Lane, fileID string) (*queue.Job, bool, error) {
	policy, ok := d.policies[lane]
	if !ok {
		return nil, false, fmt.Errorf("unknown lane %q", lane)
	}
	return d.store.EnqueueJob(ctx, lane, fileID, policy.maxAttempts)
}

// Recover resets state left behind by a previous process. It must run
// before any worker starts.
func (d *Dispatcher) Recover(ctx context.Context) error {
	files, err := d.store.ResetStuckProcessing(ctx)
	if err != nil {
		return fmt.Errorf("reset processing files: %w", err)
	}
	jobs, err := d.store.ResetRunningJobs(ctx, d.now().Add(time.Second))
	if err != nil {
		return fmt.Errorf("reset running jobs: %w", err)
	}
	if files > 0 || jobs > 0 {
		d.logger.Info("recovered interrupted work",
			logging.String(logging.FieldEventType, "crash_recovery"),
			logging.Int64("files", files),
			logging.Int64("jobs", jobs),
		)
	}
	return nil
}

// Start launches the lane workers.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("dispatcher already running")
	}
	if err := d.Recover(ctx); err != nil {
		d.mu.Unlock()
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	for _, lane := range queue.Lanes() {
		policy := d.policies[lane]
		for worker := 0; worker < policy.workers; worker++ {
			d.wg.Add(1)
			go d.runWorker(runCtx, lane, worker)
		}
	}
	d.mu.Unlock()
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to be released.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
}

// Running reports whether workers are active.
func (d *Dispatcher) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// LastError returns the most recent job or queue failure.
func (d *Dispatcher) LastError() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastErr
}

func (d *Dispatcher) setLastError(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
}

func (d *Dispatcher) runWorker(ctx context.Context, lane queue.Lane, worker int) {
	defer d.wg.Done()
	logger := d.logger.With(logging.String(logging.FieldLane, string(lane)), logging.Int("worker", worker))

	for {
		if ctx.Err() != nil {
			return
		}
		if worker == 0 {
			if err := d.heartbeat.ReclaimStale(ctx, logger); err != nil && ctx.Err() == nil {
				logger.Warn("reclaim stale runs failed; stuck files may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
		}

		processed, err := d.RunOnce(ctx, lane)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			d.setLastError(err)
			logger.Error("failed to fetch next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			d.wait(ctx, d.errorBackoff)
		case !processed:
			d.wait(ctx, d.pollInterval)
		}
	}
}

func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		delay = time.Second
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// RunOnce claims and runs the next due job in lane. It reports false when
// nothing was due.
func (d *Dispatcher) RunOnce(ctx context.Context, lane queue.Lane) (bool, error) {
	job, err := d.store.ClaimNextJob(ctx, lane, d.now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	d.process(ctx, job)
	return true, nil
}

func (d *Dispatcher) process(ctx context.Context, job *queue.Job) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := d.logger.With(
		logging.String("job_id", job.ID),
		logging.String(logging.FieldFileID, job.FileID),
		logging.String(logging.FieldLane, string(job.Lane)),
		logging.Int("attempt", job.Attempts),
		logging.Int("max_attempts", job.MaxAttempts),
	)

	touch := func(ctx context.Context) error { return d.store.TouchJob(ctx, job.ID) }
	runErr := d.heartbeat.run(ctx, "job:"+job.ID, touch, func() error {
		return d.dispatch(ctx, job)
	})

	persistCtx := context.WithoutCancel(ctx)
	switch {
	case runErr == nil:
		if err := d.store.CompleteJob(persistCtx, job.ID); err != nil {
			logger.Error("failed to complete job", logging.Error(err))
		}
		d.notify(persistCtx, logger, job, nil)
	case errors.Is(runErr, context.Canceled) && ctx.Err() != nil:
		if err := d.store.ReleaseJob(persistCtx, job.ID); err != nil {
			logger.Error("failed to release interrupted job", logging.Error(err))
		}
		logger.Info("job released for redelivery", logging.String(logging.FieldEventType, "job_released"))
	case services.Retryable(runErr) && !job.Exhausted():
		delay := d.policies[job.Lane].retryDelay
		if err := d.store.RescheduleJob(persistCtx, job.ID, d.now().Add(delay), runErr.Error()); err != nil {
			logger.Error("failed to reschedule job", logging.Error(err))
		}
		logging.WarnWithContext(logger, "job failed; retry scheduled", "job_retry_scheduled",
			logging.Error(runErr),
			logging.Duration("retry_in", delay),
			logging.String(logging.FieldErrorHint, "no action needed unless retries are exhausted"),
			logging.String(logging.FieldImpact, "the file stays in error until the retry succeeds"),
		)
		d.setLastError(runErr)
	default:
		if err := d.store.FailJob(persistCtx, job.ID, runErr.Error()); err != nil {
			logger.Error("failed to mark job failed", logging.Error(err))
		}
		logger.Error("job failed permanently",
			logging.Error(runErr),
			logging.String("error_kind", services.Kind(runErr)),
			logging.Alert("job_failed"),
			logging.String(logging.FieldEventType, "job_failed"),
			logging.String(logging.FieldErrorHint, "fix the cause and re-run the lane from the CLI"),
		)
		d.setLastError(runErr)
		d.notify(persistCtx, logger, job, runErr)
	}
}

// notify reports a final job outcome. Delivery problems are only logged.
func (d *Dispatcher) notify(ctx context.Context, logger *slog.Logger, job *queue.Job, runErr error) {
	name := job.FileID
	if file, err := d.store.GetMediaFile(ctx, job.FileID); err == nil && file != nil {
		name = filepath.Base(file.SourcePath)
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var err error
	if runErr == nil {
		err = d.notifier.NotifyLaneCompleted(ctx, string(job.Lane), name)
	} else {
		err = d.notifier.NotifyLaneFailed(ctx, string(job.Lane), name, runErr)
	}
	if err != nil {
		logger.Warn("notification failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, job *queue.Job) error {
	switch job.Lane {
	case queue.LaneTranscription:
		return d.runner.RunTranscription(ctx, job.FileID)
	case queue.LanePackaging:
		return d.runner.RunPackaging(ctx, job.FileID)
	default:
		return services.Wrap(services.ErrConfiguration, "dispatch", "route", "unknown lane "+string(job.Lane), nil)
	}
}
