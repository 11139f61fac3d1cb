package hls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/semaphore"

	"mediapost/internal/config"
	"mediapost/internal/logging"
)

var (
	// ErrNotVideo marks an input without a picture stream.
	ErrNotVideo = errors.New("input has no video stream")
	// ErrMinimumVariantFailed marks a run whose lowest-bandwidth rung failed.
	ErrMinimumVariantFailed = errors.New("minimum quality variant failed")
	// ErrNoVariantsSucceeded marks a run in which every rung failed.
	ErrNoVariantsSucceeded = errors.New("no variants succeeded")
)

// VariantEncoder renders one rung into a package directory.
type VariantEncoder interface {
	Encode(ctx context.Context, input string, variant config.Variant, packageDir string) (VariantResult, error)
}

// Package is a published streaming package.
type Package struct {
	FileID string
	// Dir is the published package directory.
	Dir string
	// MasterPath is the absolute master playlist path.
	MasterPath string
	// StoredPath is the master playlist path relative to the media root.
	StoredPath string
	Variants   []VariantResult
	// Dropped lists higher rungs that failed and were left out.
	Dropped []string
}

// Packager renders the variant ladder and publishes the package.
type Packager struct {
	encoder        VariantEncoder
	variants       []config.Variant
	root           string
	subdir         string
	maxWorkers     int
	variantTimeout time.Duration
	largeFileBytes int64
	lowMemoryBytes uint64
	cpuCount       func() int
	availableMem   func() (uint64, error)
	logger         *slog.Logger
}

// NewPackager builds a packager from configuration.
func NewPackager(cfg *config.Config, encoder VariantEncoder, logger *slog.Logger) *Packager {
	if logger == nil {
		logger = logging.NewNop()
	}
	variants := cfg.Packaging.Variants
	if len(variants) == 0 {
		variants = config.DefaultVariants()
	}
	return &Packager{
		encoder:        encoder,
		variants:       variants,
		root:           cfg.HLSRoot(),
		subdir:         cfg.Packaging.OutputSubdir,
		maxWorkers:     max(1, cfg.Packaging.MaxWorkers),
		variantTimeout: time.Duration(cfg.Packaging.VariantTimeoutSeconds) * time.Second,
		largeFileBytes: cfg.Packaging.LargeFileBytes,
		lowMemoryBytes: cfg.Packaging.LowMemoryBytes,
		cpuCount:       runtime.NumCPU,
		availableMem:   availableMemory,
		logger:         logger,
	}
}

// WithCPUCount overrides CPU discovery (for testing).
func (p *Packager) WithCPUCount(fn func() int) {
	if fn != nil {
		p.cpuCount = fn
	}
}

// WithMemoryReader overrides available-memory discovery (for testing).
func (p *Packager) WithMemoryReader(fn func() (uint64, error)) {
	if fn != nil {
		p.availableMem = fn
	}
}

func availableMemory() (uint64, error) {
	stats, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return stats.Available, nil
}

// Workers returns the encode parallelism for an input of sizeBytes:
// half the CPUs capped by configuration, or one for large inputs and
// memory-starved hosts.
func (p *Packager) Workers(sizeBytes int64) int {
	workers := min(p.maxWorkers, max(1, p.cpuCount()/2))
	if p.largeFileBytes > 0 && sizeBytes > p.largeFileBytes {
		return 1
	}
	if p.lowMemoryBytes > 0 {
		if avail, err := p.availableMem(); err == nil && avail < p.lowMemoryBytes {
			return 1
		}
	}
	return workers
}

// Package renders every rung of input and publishes <hls root>/<fileID>.
// The lowest-bandwidth rung must succeed; higher rungs are dropped on
// failure. Nothing is visible at the destination until the whole package
// succeeds, and a previous package for the file is replaced.
func (p *Packager) Package(ctx context.Context, fileID, input string, sizeBytes int64) (*Package, error) {
	if len(p.variants) == 0 {
		return nil, ErrNoVariantsSucceeded
	}
	variants := append([]config.Variant(nil), p.variants...)
	sort.SliceStable(variants, func(i, j int) bool { return Bandwidth(variants[i]) < Bandwidth(variants[j]) })

	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return nil, fmt.Errorf("create hls root: %w", err)
	}
	staging := filepath.Join(p.root, fileID+".tmp-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	workers := p.Workers(sizeBytes)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("packaging started",
		logging.String(logging.FieldEventType, "packaging_start"),
		logging.Int("variants", len(variants)),
		logging.Int("workers", workers),
	)

	results, errs := p.encodeAll(ctx, input, variants, staging, workers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var succeeded []VariantResult
	var dropped []string
	var failures []error
	for i, variant := range variants {
		if errs[i] != nil {
			failures = append(failures, errs[i])
			dropped = append(dropped, variant.Name)
			continue
		}
		succeeded = append(succeeded, results[i])
	}
	if len(succeeded) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoVariantsSucceeded, errors.Join(failures...))
	}
	if errs[0] != nil {
		return nil, fmt.Errorf("%w: %w", ErrMinimumVariantFailed, errs[0])
	}
	for i, variant := range variants {
		if errs[i] == nil {
			continue
		}
		logging.WarnWithContext(logger, "variant dropped from package", "variant_dropped",
			logging.String("variant", variant.Name),
			logging.Error(errs[i]),
			logging.String(logging.FieldErrorHint, "re-run packaging to restore the variant"),
			logging.String(logging.FieldImpact, "players cannot select this quality"),
		)
		_ = os.RemoveAll(filepath.Join(staging, variant.Name))
	}

	if err := writeMasterPlaylist(filepath.Join(staging, MasterPlaylistName), succeeded); err != nil {
		return nil, fmt.Errorf("write master playlist: %w", err)
	}
	final := filepath.Join(p.root, fileID)
	if err := os.RemoveAll(final); err != nil {
		return nil, fmt.Errorf("remove previous package: %w", err)
	}
	if err := os.Rename(staging, final); err != nil {
		return nil, fmt.Errorf("publish package: %w", err)
	}

	pkg := &Package{
		FileID:     fileID,
		Dir:        final,
		MasterPath: filepath.Join(final, MasterPlaylistName),
		StoredPath: path.Join(strings.Trim(filepath.ToSlash(p.subdir), "/"), fileID, MasterPlaylistName),
		Variants:   succeeded,
		Dropped:    dropped,
	}
	logger.Info("packaging completed",
		logging.String(logging.FieldEventType, "packaging_complete"),
		logging.String("master_playlist", pkg.StoredPath),
		logging.Int("variants", len(succeeded)),
		logging.Int("dropped", len(dropped)),
	)
	return pkg, nil
}

func (p *Packager) encodeAll(ctx context.Context, input string, variants []config.Variant, staging string, workers int) ([]VariantResult, []error) {
	results := make([]VariantResult, len(variants))
	errs := make([]error, len(variants))
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	for i, variant := range variants {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(variants); j++ {
				errs[j] = err
			}
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			results[i], errs[i] = p.encodeOne(ctx, input, variant, staging)
		}()
	}
	wg.Wait()
	return results, errs
}

func (p *Packager) encodeOne(ctx context.Context, input string, variant config.Variant, staging string) (VariantResult, error) {
	encodeCtx := ctx
	if p.variantTimeout > 0 {
		var cancel context.CancelFunc
		encodeCtx, cancel = context.WithTimeout(ctx, p.variantTimeout)
		defer cancel()
	}
	result, err := p.encoder.Encode(encodeCtx, input, variant, staging)
	if err != nil && ctx.Err() == nil && errors.Is(encodeCtx.Err(), context.DeadlineExceeded) {
		var verr *VariantError
		if !errors.As(err, &verr) {
			err = &VariantError{Variant: variant.Name, TimedOut: true, Err: encodeCtx.Err()}
		} else {
			verr.TimedOut = true
		}
	}
	return result, err
}
