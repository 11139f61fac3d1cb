package audio

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Silence is one detected quiet interval in seconds from the start of the file.
type Silence struct {
	Start float64
	End   float64
}

// Midpoint returns the center of the interval.
func (s Silence) Midpoint() float64 {
	return s.Start + (s.End-s.Start)/2
}

// DetectSilence runs ffmpeg's silencedetect filter over the whole file and
// returns the quiet intervals quieter than noiseDB lasting at least minSeconds.
func (t *Tool) DetectSilence(ctx context.Context, path string, noiseDB, minSeconds float64) ([]Silence, error) {
	filter := fmt.Sprintf("silencedetect=noise=%sdB:d=%s",
		strconv.FormatFloat(noiseDB, 'f', -1, 64),
		strconv.FormatFloat(minSeconds, 'f', -1, 64),
	)
	output, err := t.run(ctx, t.ffmpegBinary, "-hide_banner", "-nostats", "-nostdin", "-i", path, "-af", filter, "-f", "null", "-")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg silencedetect: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return ParseSilence(string(output)), nil
}

// ParseSilence extracts silence intervals from silencedetect log output. A
// trailing silence_start without a matching end is dropped.
func ParseSilence(output string) []Silence {
	var (
		silences []Silence
		open     = -1.0
	)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if value, ok := fieldValue(line, "silence_start:"); ok {
			open = value
			continue
		}
		if value, ok := fieldValue(line, "silence_end:"); ok && open >= 0 {
			if value > open {
				silences = append(silences, Silence{Start: open, End: value})
			}
			open = -1
		}
	}
	return silences
}

func fieldValue(line, key string) (float64, bool) {
	idx := strings.Index(line, key)
	if idx < 0 {
		return 0, false
	}
	fields := strings.Fields(line[idx+len(key):])
	if len(fields) == 0 {
		return 0, false
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	if value < 0 {
		value = 0
	}
	return value, true
}
