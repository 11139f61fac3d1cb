package hls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mediapost/internal/config"
	"mediapost/internal/logging"
)

const (
	// PlaylistName is the per-variant playlist file name.
	PlaylistName = "playlist.m3u8"
	// SegmentPattern names the MPEG-TS segments inside a variant directory.
	SegmentPattern = "segment_%03d.ts"
)

// VariantResult describes one rendered rung.
type VariantResult struct {
	Variant config.Variant
	// Playlist is relative to the package directory.
	Playlist string
	Encoder  string
}

// Bandwidth returns the advertised peak rate in bits per second.
func (r VariantResult) Bandwidth() int {
	return Bandwidth(r.Variant)
}

// Bandwidth is the combined video and audio rate in bits per second.
func Bandwidth(v config.Variant) int {
	return (v.VideoBitrateKbps + v.AudioBitrateKbps) * 1000
}

// VariantError is a failed rung encode.
type VariantError struct {
	Variant  string
	Output   string
	TimedOut bool
	Err      error
}

func (e *VariantError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("variant %s timed out: %v", e.Variant, e.Err)
	}
	if e.Output != "" {
		return fmt.Sprintf("variant %s failed: %v: %s", e.Variant, e.Err, e.Output)
	}
	return fmt.Sprintf("variant %s failed: %v", e.Variant, e.Err)
}

func (e *VariantError) Unwrap() error { return e.Err }

// Terminal reports whether retrying the package on this machine cannot help.
func (e *VariantError) Terminal() bool {
	return e.TimedOut || IsTerminalOutput(e.Output)
}

var terminalMarkers = []string{
	"out of memory",
	"cannot allocate memory",
	"nvenc",
	"qsv",
	"amf",
	"videotoolbox",
	"libcuda",
	"encoder not found",
	"unknown encoder",
	"codec not found",
	"hardware acceleration",
}

// IsTerminalOutput reports whether ffmpeg output names a failure that a
// retry would repeat: memory exhaustion or a broken encoder setup.
func IsTerminalOutput(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range terminalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// EncoderSource picks the video encoder.
type EncoderSource interface {
	Detect(ctx context.Context) Encoder
}

// Transcoder renders ladder rungs with ffmpeg.
type Transcoder struct {
	ffmpegBinary   string
	segmentSeconds int
	encoders       EncoderSource
	run            commandRunner
	logger         *slog.Logger
}

// NewTranscoder constructs a transcoder. A nil encoder source always uses
// the software encoder.
func NewTranscoder(ffmpegBinary string, segmentSeconds int, encoders EncoderSource, logger *slog.Logger) *Transcoder {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if segmentSeconds <= 0 {
		segmentSeconds = 6
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transcoder{
		ffmpegBinary:   ffmpegBinary,
		segmentSeconds: segmentSeconds,
		encoders:       encoders,
		run:            defaultCommandRunner,
		logger:         logger,
	}
}

// WithCommandRunner swaps the subprocess runner (for testing).
func (t *Transcoder) WithCommandRunner(run func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	if run != nil {
		t.run = run
	}
}

// Encode renders variant from input into <packageDir>/<variant name>/.
func (t *Transcoder) Encode(ctx context.Context, input string, variant config.Variant, packageDir string) (VariantResult, error) {
	variantDir := filepath.Join(packageDir, variant.Name)
	if err := os.MkdirAll(variantDir, 0o755); err != nil {
		return VariantResult{}, &VariantError{Variant: variant.Name, Err: err}
	}

	encoder := SoftwareEncoder
	if t.encoders != nil {
		encoder = t.encoders.Detect(ctx)
	}
	logger := t.logger.With(logging.String("variant", variant.Name))

	output, err := t.run(ctx, t.ffmpegBinary, t.BuildArgs(input, variant, encoder, variantDir)...)
	if err != nil && encoder.Hardware && ctx.Err() == nil {
		logging.WarnWithContext(logger, "hardware encode failed; retrying in software", "hardware_encode_fallback",
			logging.String("encoder", encoder.Name),
			logging.Error(err),
			logging.String("output", tail(output, 3)),
			logging.String(logging.FieldErrorHint, "check GPU drivers or set packaging.hardware_acceleration = false"),
			logging.String(logging.FieldImpact, "this variant encodes slower"),
		)
		if clearErr := clearDir(variantDir); clearErr != nil {
			return VariantResult{}, &VariantError{Variant: variant.Name, Err: clearErr}
		}
		encoder = SoftwareEncoder
		output, err = t.run(ctx, t.ffmpegBinary, t.BuildArgs(input, variant, encoder, variantDir)...)
	}
	if err != nil {
		verr := &VariantError{Variant: variant.Name, Output: tail(output, 5), Err: err}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			verr.TimedOut = true
			verr.Err = ctx.Err()
		}
		return VariantResult{}, verr
	}

	playlist := filepath.Join(variantDir, PlaylistName)
	if info, statErr := os.Stat(playlist); statErr != nil || info.Size() == 0 {
		if statErr == nil {
			statErr = errors.New("empty playlist")
		}
		return VariantResult{}, &VariantError{Variant: variant.Name, Err: fmt.Errorf("variant playlist missing: %w", statErr)}
	}
	logger.Debug("variant encoded", logging.String("encoder", encoder.Name))
	return VariantResult{
		Variant:  variant,
		Playlist: variant.Name + "/" + PlaylistName,
		Encoder:  encoder.Name,
	}, nil
}

// BuildArgs returns the ffmpeg arguments for one rung.
func (t *Transcoder) BuildArgs(input string, variant config.Variant, encoder Encoder, variantDir string) []string {
	w, h := strconv.Itoa(variant.Width), strconv.Itoa(variant.Height)
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", input,
		"-map", "0:v:0", "-map", "0:a:0?",
		"-vf", "scale=" + w + ":" + h + ":force_original_aspect_ratio=decrease,pad=" + w + ":" + h + ":(ow-iw)/2:(oh-ih)/2",
		"-c:v", encoder.Codec,
	}
	args = append(args, encoderTuning(encoder)...)
	args = append(args,
		"-b:v", kbps(variant.VideoBitrateKbps),
		"-maxrate", kbps(variant.MaxRateKbps),
		"-bufsize", kbps(variant.BufSizeKbps),
		"-pix_fmt", "yuv420p",
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", t.segmentSeconds),
		"-c:a", "aac", "-b:a", kbps(variant.AudioBitrateKbps), "-ac", "2",
		"-f", "hls",
		"-hls_time", strconv.Itoa(t.segmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_type", "mpegts",
		"-hls_segment_filename", filepath.Join(variantDir, SegmentPattern),
		filepath.Join(variantDir, PlaylistName),
	)
	return args
}

func encoderTuning(encoder Encoder) []string {
	switch encoder.Name {
	case "nvenc":
		return []string{"-preset", "p4"}
	case "qsv":
		return []string{"-preset", "veryfast"}
	case "amf":
		return []string{"-quality", "speed"}
	case "videotoolbox":
		return []string{"-realtime", "1"}
	default:
		return []string{"-preset", "veryfast", "-tune", "zerolatency", "-profile:v", "main"}
	}
}

func kbps(value int) string {
	return strconv.Itoa(value) + "k"
}

func clearDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
