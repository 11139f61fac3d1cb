package hls

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mediapost/internal/logging"
)

// Encoder names an ffmpeg H.264 encoder.
type Encoder struct {
	Name     string
	Codec    string
	Hardware bool
}

// SoftwareEncoder is the libx264 fallback.
var SoftwareEncoder = Encoder{Name: "software", Codec: "libx264"}

// hardwareCandidates lists vendor encoders in preference order.
var hardwareCandidates = []Encoder{
	{Name: "nvenc", Codec: "h264_nvenc", Hardware: true},
	{Name: "qsv", Codec: "h264_qsv", Hardware: true},
	{Name: "amf", Codec: "h264_amf", Hardware: true},
	{Name: "videotoolbox", Codec: "h264_videotoolbox", Hardware: true},
}

const testEncodeTimeout = 10 * time.Second

// Detector discovers a working hardware encoder. An answer is cached only once
// ffmpeg listed its encoders and every test encode ran to completion; a failed
// listing or a cancelled context falls back to software for that call alone.
type Detector struct {
	ffmpegBinary string
	enabled      bool
	run          commandRunner
	logger       *slog.Logger

	mu      sync.Mutex
	settled bool
	encoder Encoder
}

// NewDetector constructs a detector. When enabled is false the software
// encoder is always chosen.
func NewDetector(ffmpegBinary string, enabled bool, logger *slog.Logger) *Detector {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Detector{ffmpegBinary: ffmpegBinary, enabled: enabled, run: defaultCommandRunner, logger: logger}
}

// WithCommandRunner swaps the subprocess runner (for testing).
func (d *Detector) WithCommandRunner(run func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	if run != nil {
		d.run = run
	}
}

// Detect returns the preferred working encoder.
func (d *Detector) Detect(ctx context.Context) Encoder {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return d.encoder
	}
	encoder, settled := d.detect(ctx)
	if !settled {
		return encoder
	}
	d.encoder, d.settled = encoder, true
	d.logger.Info("video encoder selected",
		logging.String("encoder", encoder.Name),
		logging.String("codec", encoder.Codec),
		logging.Bool("hardware", encoder.Hardware),
	)
	return encoder
}

func (d *Detector) detect(ctx context.Context) (Encoder, bool) {
	if !d.enabled {
		return SoftwareEncoder, true
	}
	listing, err := d.run(ctx, d.ffmpegBinary, "-hide_banner", "-encoders")
	if err != nil {
		logging.WarnWithContext(d.logger, "encoder listing failed; using software for this run", "encoder_listing_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the ffmpeg binary"),
			logging.String(logging.FieldImpact, "detection repeats on the next packaging run"),
		)
		return SoftwareEncoder, false
	}
	for _, candidate := range hardwareCandidates {
		if !strings.Contains(string(listing), candidate.Codec) {
			continue
		}
		if d.testEncode(ctx, candidate) {
			return candidate, true
		}
		if ctx.Err() != nil {
			return SoftwareEncoder, false
		}
	}
	return SoftwareEncoder, true
}

// testEncode proves the encoder works on this machine; being listed only
// means ffmpeg was built with it.
func (d *Detector) testEncode(ctx context.Context, candidate Encoder) bool {
	testCtx, cancel := context.WithTimeout(ctx, testEncodeTimeout)
	defer cancel()
	output, err := d.run(testCtx, d.ffmpegBinary,
		"-hide_banner", "-nostdin",
		"-f", "lavfi", "-i", "testsrc=duration=1:size=320x240:rate=30",
		"-c:v", candidate.Codec,
		"-f", "null", "-",
	)
	if err != nil {
		d.logger.Debug("hardware encoder unusable",
			logging.String("encoder", candidate.Name),
			logging.Error(err),
			logging.String("output", tail(output, 3)),
		)
		return false
	}
	return true
}

func tail(output []byte, lines int) string {
	parts := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.Join(parts, " | ")
}
