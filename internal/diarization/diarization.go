package diarization

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"mediapost/internal/config"
)

// Turn is one speaker's continuous stretch of speech, in seconds.
type Turn struct {
	Start   float64
	End     float64
	Speaker string
}

// Diarizer builds a speaker timeline for an audio file.
type Diarizer interface {
	Diarize(ctx context.Context, path string) ([]Turn, error)
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultCommandRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// CommandDiarizer invokes an external tool as
// `<command> <args...> <audio> <rttm>` and parses the RTTM it writes.
type CommandDiarizer struct {
	command string
	args    []string
	timeout time.Duration
	run     commandRunner
}

// NewCommandDiarizer returns a diarizer for the configured command, or nil
// when diarization is disabled.
func NewCommandDiarizer(cfg config.Diarization) *CommandDiarizer {
	if !cfg.Enabled || strings.TrimSpace(cfg.Command) == "" {
		return nil
	}
	return &CommandDiarizer{
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		run:     defaultCommandRunner,
	}
}

// WithCommandRunner swaps the subprocess runner (for testing).
func (d *CommandDiarizer) WithCommandRunner(run func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	if run != nil {
		d.run = run
	}
}

// Diarize runs the command and returns turns sorted by start.
func (d *CommandDiarizer) Diarize(ctx context.Context, path string) ([]Turn, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	outDir, err := os.MkdirTemp(filepath.Dir(path), "diarize-")
	if err != nil {
		return nil, fmt.Errorf("diarize: create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	rttmPath := filepath.Join(outDir, "speakers.rttm")
	args := append(append([]string(nil), d.args...), path, rttmPath)
	if output, err := d.run(ctx, d.command, args...); err != nil {
		return nil, fmt.Errorf("diarize: %s: %w: %s", d.command, err, strings.TrimSpace(string(output)))
	}

	file, err := os.Open(rttmPath)
	if err != nil {
		return nil, fmt.Errorf("diarize: open rttm: %w", err)
	}
	defer file.Close()
	return ParseRTTM(file)
}

// ParseRTTM reads SPEAKER records from RTTM:
//
//	SPEAKER <file> <chan> <start> <duration> <NA> <NA> <speaker> <NA> <NA>
func ParseRTTM(r io.Reader) ([]Turn, error) {
	var turns []Turn
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] != "SPEAKER" {
			continue
		}
		if len(fields) < 8 {
			return nil, fmt.Errorf("rttm line %d: expected at least 8 fields, got %d", line, len(fields))
		}
		start, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("rttm line %d: start: %w", line, err)
		}
		duration, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, fmt.Errorf("rttm line %d: duration: %w", line, err)
		}
		if duration <= 0 {
			continue
		}
		turns = append(turns, Turn{Start: start, End: start + duration, Speaker: fields[7]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, errors.New("rttm contained no speaker turns")
	}
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].Start < turns[j].Start })
	return turns, nil
}

// SpeakerFor returns the speaker whose turns overlap [start, end) the most.
// Overlap is summed per speaker. It returns "" when nothing overlaps. A
// zero-length span matches the turn containing start.
func SpeakerFor(turns []Turn, start, end float64) string {
	if end <= start {
		for _, turn := range turns {
			if start >= turn.Start && start < turn.End {
				return turn.Speaker
			}
		}
		return ""
	}
	totals := make(map[string]float64)
	var (
		best     string
		bestSpan float64
	)
	for _, turn := range turns {
		overlap := min(end, turn.End) - max(start, turn.Start)
		if overlap <= 0 {
			continue
		}
		totals[turn.Speaker] += overlap
		if total := totals[turn.Speaker]; total > bestSpan {
			best, bestSpan = turn.Speaker, total
		}
	}
	return best
}
