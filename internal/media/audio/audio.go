package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Output encoding shared by every file this package writes.
const (
	SampleRate = 16000
	Bitrate    = "64k"
	Extension  = ".mp3"
)

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultCommandRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// Tool runs ffmpeg for audio preparation.
type Tool struct {
	ffmpegBinary string
	run          commandRunner
}

// NewTool returns a Tool invoking the given ffmpeg binary.
func NewTool(ffmpegBinary string) *Tool {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Tool{ffmpegBinary: ffmpegBinary, run: defaultCommandRunner}
}

// WithCommandRunner swaps the subprocess runner (for testing).
func (t *Tool) WithCommandRunner(run func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	if run != nil {
		t.run = run
	}
}

// Normalize transcodes the first audio stream of source into dest, dropping
// video and other streams.
func (t *Tool) Normalize(ctx context.Context, source, dest string) error {
	if strings.TrimSpace(source) == "" || strings.TrimSpace(dest) == "" {
		return errors.New("normalize audio: source and destination required")
	}
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-nostdin", "-i", source, "-map", "0:a:0"}
	args = append(args, encodeArgs(dest)...)
	if output, err := t.run(ctx, t.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("ffmpeg normalize: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Extract writes the range [start, start+duration) of source to dest.
func (t *Tool) Extract(ctx context.Context, source string, start, duration float64, dest string) error {
	if duration <= 0 {
		return fmt.Errorf("extract audio: invalid duration %.3f", duration)
	}
	if start < 0 {
		return fmt.Errorf("extract audio: invalid start %.3f", start)
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error", "-nostdin",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-i", source,
		"-map", "0:a:0",
	}
	args = append(args, encodeArgs(dest)...)
	if output, err := t.run(ctx, t.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("ffmpeg extract: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func encodeArgs(dest string) []string {
	return []string{
		"-vn", "-sn", "-dn",
		"-ac", "1",
		"-ar", strconv.Itoa(SampleRate),
		"-c:a", "libmp3lame",
		"-b:a", Bitrate,
		dest,
	}
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
