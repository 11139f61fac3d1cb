package chunking_test

import (
	"math"
	"testing"

	"mediapost/internal/chunking"
	"mediapost/internal/media/audio"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func assertCoverage(t *testing.T, ranges []chunking.Range, start, end float64) {
	t.Helper()
	if len(ranges) == 0 {
		t.Fatal("expected at least one range")
	}
	if !approx(ranges[0].Start, start) {
		t.Fatalf("first range starts at %v, want %v", ranges[0].Start, start)
	}
	for i := 1; i < len(ranges); i++ {
		if ranges[i].Start != ranges[i-1].End {
			t.Fatalf("gap or overlap between %+v and %+v", ranges[i-1], ranges[i])
		}
	}
	for _, r := range ranges {
		if r.End <= r.Start {
			t.Fatalf("empty range %+v", r)
		}
	}
	if !approx(ranges[len(ranges)-1].End, end) {
		t.Fatalf("last range ends at %v, want %v", ranges[len(ranges)-1].End, end)
	}
}

func TestBoundariesWithoutSilence(t *testing.T) {
	got := chunking.Boundaries(0, 100, 30, 0, nil, 0.25)
	want := []chunking.Range{{0, 30}, {30, 60}, {60, 90}, {90, 100}}
	if len(got) != len(want) {
		t.Fatalf("got %d ranges, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("range %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBoundariesSnapToLatestSilenceInWindow(t *testing.T) {
	silences := []audio.Silence{
		{Start: 9, End: 11},  // too early for the window
		{Start: 23, End: 24}, // mid 23.5, inside window
		{Start: 24, End: 26}, // mid 25, inside window and later
		{Start: 50, End: 52}, // mid 51
	}
	got := chunking.Boundaries(0, 100, 30, 0, silences, 0.25)
	want := []chunking.Range{{0, 25}, {25, 51}, {51, 81}, {81, 100}}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("range %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBoundariesCoverEveryInput(t *testing.T) {
	silences := []audio.Silence{{Start: 10, End: 12}, {Start: 55, End: 56}, {Start: 200, End: 204}, {Start: 611, End: 612}}
	for _, duration := range []float64{1, 29.9, 30, 30.1, 95.25, 640, 3601.5} {
		for _, target := range []float64{7, 30, 61.3, 500} {
			ranges := chunking.Boundaries(0, duration, target, 0, silences, 0.25)
			assertCoverage(t, ranges, 0, duration)
			for _, r := range ranges {
				if r.End-r.Start > target+1e-9 {
					t.Fatalf("range %+v longer than target %v", r, target)
				}
			}
		}
	}
}

func TestBoundariesOffsetSpan(t *testing.T) {
	ranges := chunking.Boundaries(40, 70, 10, 0, []audio.Silence{{Start: 47, End: 49}}, 0.3)
	assertCoverage(t, ranges, 40, 70)
	if ranges[0].End != 48 {
		t.Fatalf("expected snap to 48, got %+v", ranges[0])
	}
}

func TestBoundariesEmptySpan(t *testing.T) {
	if got := chunking.Boundaries(10, 10, 5, 0, nil, 0.25); got != nil {
		t.Fatalf("expected nil for empty span, got %+v", got)
	}
}

func TestBoundariesBalanceShortTail(t *testing.T) {
	ranges := chunking.Boundaries(0, 88.7, 88.56, 30, nil, 0.25)
	assertCoverage(t, ranges, 0, 88.7)
	if len(ranges) != 2 || !approx(ranges[0].End, 44.35) {
		t.Fatalf("expected two balanced ranges, got %+v", ranges)
	}
}

func TestBoundariesRespectMinimumLength(t *testing.T) {
	const minimum = 30.0
	silences := []audio.Silence{{Start: 58, End: 60}, {Start: 118, End: 119}, {Start: 200, End: 204}, {Start: 611, End: 612}}
	for _, duration := range []float64{10, 61, 88.7, 120.2, 181, 640, 3601.5} {
		for _, target := range []float64{60, 88.56, 500} {
			ranges := chunking.Boundaries(0, duration, target, minimum, silences, 0.25)
			assertCoverage(t, ranges, 0, duration)
			for _, r := range ranges {
				length := r.End - r.Start
				if length < minimum-1e-9 && len(ranges) > 1 {
					t.Fatalf("duration %v target %v: range %+v shorter than %v", duration, target, r, minimum)
				}
				if length > target+1e-9 {
					t.Fatalf("duration %v target %v: range %+v longer than target", duration, target, r)
				}
			}
		}
	}
}

func TestBoundariesKeepShortRemainderWhole(t *testing.T) {
	ranges := chunking.Boundaries(0, 50, 40, 30, nil, 0.25)
	if len(ranges) != 1 || ranges[0] != (chunking.Range{Start: 0, End: 50}) {
		t.Fatalf("expected a single range, got %+v", ranges)
	}
}

func TestTargetDuration(t *testing.T) {
	if got := chunking.TargetDuration(100, 25, 1000, 0.9, 30); !approx(got, 225) {
		t.Fatalf("TargetDuration = %v, want 225", got)
	}
	if got := chunking.TargetDuration(1000, 1, 100, 0.9, 30); got != 30 {
		t.Fatalf("expected floor at minimum, got %v", got)
	}
	if got := chunking.TargetDuration(0, 1, 100, 0.9, 30); got != 30 {
		t.Fatalf("expected minimum for unknown size, got %v", got)
	}
}
