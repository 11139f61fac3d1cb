package ffprobe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrProbe marks a file whose duration could not be determined by either
// ffprobe or a full ffmpeg decode.
var ErrProbe = errors.New("media probe failed")

// Kind classifies a probed file.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".avi":  {},
	".mov":  {},
	".wmv":  {},
	".mkv":  {},
	".webm": {},
}

// KindFromExtension guesses the media kind from the file name alone.
func KindFromExtension(path string) Kind {
	if _, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return KindVideo
	}
	return KindAudio
}

// Probe is the pipeline's view of one media file.
type Probe struct {
	DurationSeconds float64
	SizeBytes       int64
	Kind            Kind
	// Decoded is set when the duration came from the ffmpeg decode fallback.
	Decoded bool
	// NoAudio is set only when ffprobe listed the streams and none was audio.
	NoAudio bool
}

// IsVideo reports whether the file carries a picture stream.
func (p Probe) IsVideo() bool {
	return p.Kind == KindVideo
}

// Prober measures duration, size, and kind for media files.
type Prober struct {
	ffprobeBinary string
	ffmpegBinary  string
	run           commandRunner
}

// NewProber constructs a prober using the given binaries. Empty names fall
// back to ffprobe and ffmpeg on PATH.
func NewProber(ffprobeBinary, ffmpegBinary string) *Prober {
	if strings.TrimSpace(ffprobeBinary) == "" {
		ffprobeBinary = "ffprobe"
	}
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Prober{
		ffprobeBinary: ffprobeBinary,
		ffmpegBinary:  ffmpegBinary,
		run:           defaultCommandRunner,
	}
}

// WithCommandRunner swaps the subprocess runner (for testing). The runner
// returns combined stdout and stderr.
func (p *Prober) WithCommandRunner(run func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	if run != nil {
		p.run = run
	}
}

// Probe inspects path. ffprobe is the primary source; when it fails or
// reports no usable duration the whole file is decoded with ffmpeg to
// measure its length. Both failing yields an error wrapping ErrProbe.
func (p *Prober) Probe(ctx context.Context, path string) (Probe, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Probe{}, fmt.Errorf("%w: %s: %w", ErrProbe, path, err)
	}
	if info.IsDir() {
		return Probe{}, fmt.Errorf("%w: %s is a directory", ErrProbe, path)
	}
	if info.Size() == 0 {
		return Probe{}, fmt.Errorf("%w: %s is empty", ErrProbe, path)
	}

	probe := Probe{SizeBytes: info.Size(), Kind: KindFromExtension(path)}

	result, inspectErr := inspectWith(ctx, p.run, p.ffprobeBinary, path)
	if inspectErr == nil {
		if result.HasVideo() {
			probe.Kind = KindVideo
		} else if result.AudioStreamCount() > 0 {
			probe.Kind = KindAudio
		}
		probe.NoAudio = len(result.Streams) > 0 && result.AudioStreamCount() == 0
		if duration := result.DurationSeconds(); validDuration(duration) {
			probe.DurationSeconds = duration
			return probe, nil
		}
	}

	duration, decodeErr := p.decodeDuration(ctx, path)
	if decodeErr != nil {
		if inspectErr == nil {
			inspectErr = errors.New("ffprobe reported no duration")
		}
		return Probe{}, fmt.Errorf("%w: %s: %w", ErrProbe, path, errors.Join(inspectErr, decodeErr))
	}
	probe.DurationSeconds = duration
	probe.Decoded = true
	return probe, nil
}

var (
	decodeTimePattern     = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	decodeDurationPattern = regexp.MustCompile(`Duration: (\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
)

func (p *Prober) decodeDuration(ctx context.Context, path string) (float64, error) {
	output, err := p.run(ctx, p.ffmpegBinary, "-hide_banner", "-nostdin", "-i", path, "-map", "0:a:0?", "-f", "null", "-")
	if err != nil {
		return 0, fmt.Errorf("ffmpeg decode: %w: %s", err, lastLine(output))
	}
	if duration, ok := ParseDecodeDuration(string(output)); ok {
		return duration, nil
	}
	return 0, errors.New("ffmpeg decode: no duration in output")
}

// ParseDecodeDuration extracts the decoded length from ffmpeg progress
// output. The final time= stamp wins; the container Duration header is used
// when no progress was printed.
func ParseDecodeDuration(output string) (float64, bool) {
	if matches := decodeTimePattern.FindAllStringSubmatch(output, -1); len(matches) > 0 {
		if seconds, ok := clockSeconds(matches[len(matches)-1][1:]); ok && validDuration(seconds) {
			return seconds, true
		}
	}
	if match := decodeDurationPattern.FindStringSubmatch(output); match != nil {
		if seconds, ok := clockSeconds(match[1:]); ok && validDuration(seconds) {
			return seconds, true
		}
	}
	return 0, false
}

func clockSeconds(parts []string) (float64, bool) {
	if len(parts) != 3 {
		return 0, false
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, false
	}
	return float64(hours*3600+minutes*60) + seconds, true
}

func validDuration(value float64) bool {
	return value > 0 && !math.IsNaN(value) && !math.IsInf(value, 0)
}

func lastLine(output []byte) string {
	trimmed := strings.TrimSpace(string(output))
	if idx := strings.LastIndexByte(trimmed, '\n'); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
