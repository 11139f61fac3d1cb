package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"mediapost/internal/config"
	"mediapost/internal/logging"
	"mediapost/internal/queue"
	"mediapost/internal/workflow"
)

// LockFileName is created in the log directory while a daemon is running.
const LockFileName = "mediapostd.lock"

// Daemon runs the dispatcher and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *queue.Store
	dispatcher *workflow.Dispatcher

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	LastError    string
	Files        map[queue.Status]int
	Jobs         map[queue.JobStatus]int
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon around an already-wired dispatcher.
func New(cfg *config.Config, store *queue.Store, dispatcher *workflow.Dispatcher, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || dispatcher == nil {
		return nil, errors.New("daemon requires config, store, and dispatcher")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := LockPath(cfg)
	return &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		dispatcher: dispatcher,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// LockPath returns the daemon lock file location for cfg.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, LockFileName)
}

// Start acquires the daemon lock and launches the dispatcher.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mediapost daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.dispatcher.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start dispatcher: %w", err)
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("mediapost daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop drains the dispatcher and releases the daemon lock. In-flight jobs
// are returned to the queue.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.dispatcher.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("mediapost daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Status returns the current daemon status with queue counts.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	status := Status{
		Running:      d.running.Load(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if err := d.dispatcher.LastError(); err != nil {
		status.LastError = err.Error()
	}
	files, err := d.store.ListMediaFiles(ctx)
	if err != nil {
		return status, fmt.Errorf("list media files: %w", err)
	}
	status.Files = make(map[queue.Status]int)
	for _, file := range files {
		status.Files[file.Status]++
	}
	jobs, err := d.store.JobCounts(ctx)
	if err != nil {
		return status, err
	}
	status.Jobs = jobs
	return status, nil
}

// IsRunning reports whether another process holds the daemon lock.
func IsRunning(cfg *config.Config) (bool, error) {
	probe := flock.New(LockPath(cfg))
	ok, err := probe.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock: %w", err)
	}
	if ok {
		_ = probe.Unlock()
		return false, nil
	}
	return true, nil
}
