package chunking

import (
	"errors"
	"math"
	"os"

	"mediapost/internal/config"
	"mediapost/internal/media/audio"
)

// ErrChunkLimitExceeded is returned when splitting would need more chunk
// extractions than the configured cap allows.
var ErrChunkLimitExceeded = errors.New("chunk limit exceeded")

// Chunk is one contiguous slice of the source, in seconds from its start.
type Chunk struct {
	Index int
	Start float64
	End   float64
	Path  string
}

// Duration returns the chunk length in seconds.
func (c Chunk) Duration() float64 {
	return c.End - c.Start
}

// Plan is the ordered set of chunks covering one source file.
type Plan struct {
	Source   string
	Duration float64
	Chunks   []Chunk
	// Split is false when the source fit the limit and Chunks holds the
	// source itself.
	Split bool
}

// Cleanup removes extracted chunk files. The source is never touched.
func (p *Plan) Cleanup() error {
	if p == nil || !p.Split {
		return nil
	}
	var errs []error
	for _, chunk := range p.Chunks {
		if chunk.Path == "" || chunk.Path == p.Source {
			continue
		}
		if err := os.Remove(chunk.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Settings bounds the planner.
type Settings struct {
	MaxBytes          int64
	SafetyMargin      float64
	MinChunkSeconds   float64
	MaxChunks         int
	SilenceNoiseDB    float64
	SilenceMinSeconds float64
	SnapWindowRatio   float64
}

// SettingsFromConfig builds planner settings for the given payload limit.
func SettingsFromConfig(cfg *config.Config, maxBytes int64) Settings {
	c := cfg.Chunking
	return Settings{
		MaxBytes:          maxBytes,
		SafetyMargin:      c.SafetyMargin,
		MinChunkSeconds:   c.MinChunkSeconds,
		MaxChunks:         c.MaxChunks,
		SilenceNoiseDB:    c.SilenceNoiseDB,
		SilenceMinSeconds: c.SilenceMinSeconds,
		SnapWindowRatio:   c.SnapWindowRatio,
	}
}

// TargetDuration returns the chunk duration expected to fit maxBytes given
// an observed size and duration, floored at minSeconds.
func TargetDuration(sizeBytes, maxBytes int64, duration, margin, minSeconds float64) float64 {
	if sizeBytes <= 0 || duration <= 0 {
		return minSeconds
	}
	target := float64(maxBytes) / float64(sizeBytes) * duration * margin
	return math.Max(target, minSeconds)
}

// Range is a half-open [Start, End) interval in seconds.
type Range struct {
	Start float64
	End   float64
}

// Boundaries cuts [start, end) into consecutive ranges no longer than target.
// Each raw cut at cur+target moves back to the latest silence midpoint in
// [raw - target*windowRatio, raw] that lies after cur; without one the raw
// cut is used. The ranges cover [start, end) with no gaps or overlaps.
//
// A positive minSeconds keeps every range at least that long: when the tail
// after a raw cut would fall short, the remaining span is cut in half
// instead, and a remainder too short to halve is emitted whole even if it
// exceeds target. Snapping never produces a range shorter than minSeconds.
func Boundaries(start, end, target, minSeconds float64, silences []audio.Silence, windowRatio float64) []Range {
	if end <= start {
		return nil
	}
	if target <= 0 {
		return []Range{{Start: start, End: end}}
	}
	window := target * windowRatio

	var ranges []Range
	cur := start
	for end-cur > target {
		raw := cur + target
		if end-raw < minSeconds {
			raw = cur + (end-cur)/2
			if raw-cur < minSeconds {
				break
			}
		}
		cut, snapped := raw, false
		for _, silence := range silences {
			mid := silence.Midpoint()
			if mid-cur < minSeconds || end-mid < minSeconds {
				continue
			}
			if mid <= cur || mid < raw-window || mid > raw {
				continue
			}
			if !snapped || mid > cut {
				cut, snapped = mid, true
			}
		}
		ranges = append(ranges, Range{Start: cur, End: cut})
		cur = cut
	}
	return append(ranges, Range{Start: cur, End: end})
}
