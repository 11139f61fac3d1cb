package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mediapost/internal/logging"
	"mediapost/internal/queue"
)

// HeartbeatMonitor keeps in-flight runs alive and reclaims abandoned ones.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{store: store, logger: logger, interval: interval, timeout: timeout}
}

// ReclaimStale returns lanes and jobs whose heartbeat expired to the queue.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context, logger *slog.Logger) error {
	if h.timeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.timeout)
	files, err := h.store.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		return err
	}
	jobs, err := h.store.ResetRunningJobs(ctx, cutoff)
	if err != nil {
		return err
	}
	if files > 0 || jobs > 0 {
		logger.Info("reclaimed stale runs", logging.Int64("files", files), logging.Int64("jobs", jobs))
	}
	return nil
}

// StartLoop calls beat every interval until ctx is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, name string, beat func(context.Context) error) {
	defer wg.Done()
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.logger, "workflow-heartbeat"))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := beat(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat cancelled", logging.String("target", name))
				} else {
					logger.Warn("heartbeat update failed",
						logging.String("target", name),
						logging.Error(err),
						logging.String(logging.FieldEventType, "heartbeat_failed"),
						logging.String(logging.FieldErrorHint, "check queue database access"),
					)
				}
			}
		}
	}
}

// run executes fn while beating every interval.
func (h *HeartbeatMonitor) run(ctx context.Context, name string, beat func(context.Context) error, fn func() error) error {
	hbCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go h.StartLoop(hbCtx, &wg, name, beat)

	err := fn()
	cancel()
	wg.Wait()
	return err
}
