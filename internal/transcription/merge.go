package transcription

import (
	"math"
	"sort"
	"strings"

	"mediapost/internal/config"
	"mediapost/internal/queue"
)

// Merger consolidates fragments into speaker-coherent segments.
type Merger struct {
	MaxGapSeconds      float64
	MaxDurationSeconds float64
}

// NewMerger returns a merger with the configured bounds.
func NewMerger(cfg config.Merge) Merger {
	return Merger{MaxGapSeconds: cfg.MaxGapSeconds, MaxDurationSeconds: cfg.MaxDurationSeconds}
}

// Merge sorts fragments by start (stable) and folds each into the running
// segment when it has the same speaker, starts no more than MaxGapSeconds
// after the running end, and keeps the span within MaxDurationSeconds.
// A fragment that alone exceeds MaxDurationSeconds is emitted unmerged.
// Blank fragments are dropped, blank speakers become queue.UnknownSpeaker,
// and a segment that overlaps its successor is clamped to the successor's
// start.
func (m Merger) Merge(fragments []Fragment) []Fragment {
	ordered := make([]Fragment, 0, len(fragments))
	for _, fragment := range fragments {
		fragment.Text = strings.TrimSpace(fragment.Text)
		if fragment.Text == "" {
			continue
		}
		fragment.Speaker = normalizeSpeaker(fragment.Speaker)
		if fragment.End < fragment.Start {
			fragment.End = fragment.Start
		}
		ordered = append(ordered, fragment)
	}
	if len(ordered) == 0 {
		return nil
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	merged := make([]Fragment, 0, len(ordered))
	current := ordered[0]
	for _, next := range ordered[1:] {
		if m.canMerge(current, next) {
			current.Text = current.Text + " " + next.Text
			current.End = math.Max(current.End, next.End)
			continue
		}
		if current.End > next.Start {
			current.End = next.Start
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}

func (m Merger) canMerge(current, next Fragment) bool {
	if current.Speaker != next.Speaker {
		return false
	}
	if next.Start-current.End > m.MaxGapSeconds {
		return false
	}
	return next.End-current.Start <= m.MaxDurationSeconds
}

func normalizeSpeaker(speaker string) string {
	if speaker = strings.TrimSpace(speaker); speaker == "" {
		return queue.UnknownSpeaker
	}
	return speaker
}

// ToSegments converts merged fragments into persisted records, rounding
// offsets to whole seconds. Rounding is monotonic, so non-overlapping input
// stays non-overlapping.
func ToSegments(fileID string, fragments []Fragment) []queue.TranscriptSegment {
	segments := make([]queue.TranscriptSegment, 0, len(fragments))
	for i, fragment := range fragments {
		start := int(math.Round(fragment.Start))
		end := max(int(math.Round(fragment.End)), start)
		segments = append(segments, queue.TranscriptSegment{
			FileID:       fileID,
			Position:     i,
			StartSeconds: start,
			EndSeconds:   end,
			Speaker:      fragment.Speaker,
			Text:         fragment.Text,
		})
	}
	return segments
}
