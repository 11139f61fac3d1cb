package hls_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"mediapost/internal/hls"
)

func TestDetectorPrefersFirstWorkingHardwareEncoder(t *testing.T) {
	var calls [][]string
	detector := hls.NewDetector("ffmpeg", true, nil)
	detector.WithCommandRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		calls = append(calls, args)
		if slices.Contains(args, "-encoders") {
			return []byte(" V....D h264_nvenc  NVIDIA NVENC H.264 encoder\n V....D h264_qsv  H.264 (Intel Quick Sync Video)\n"), nil
		}
		if slices.Contains(args, "h264_nvenc") {
			return []byte("Cannot load libcuda.so.1"), errors.New("exit status 1")
		}
		return nil, nil
	})

	got := detector.Detect(context.Background())
	if got.Name != "qsv" || !got.Hardware {
		t.Fatalf("expected qsv, got %+v", got)
	}
	if len(calls) != 3 {
		t.Fatalf("expected listing plus two test encodes, got %d calls", len(calls))
	}

	again := detector.Detect(context.Background())
	if again != got || len(calls) != 3 {
		t.Fatalf("expected cached detection, got %+v after %d calls", again, len(calls))
	}
}

func TestDetectorFallsBackToSoftware(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		listing string
		err     error
	}{
		{name: "disabled", enabled: false},
		{name: "listing fails", enabled: true, err: errors.New("not found")},
		{name: "nothing listed", enabled: true, listing: " V..... libx264 H.264\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detector := hls.NewDetector("", tt.enabled, nil)
			detector.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
				if !tt.enabled {
					t.Fatal("runner should not be called when disabled")
				}
				return []byte(tt.listing), tt.err
			})
			if got := detector.Detect(context.Background()); got != hls.SoftwareEncoder {
				t.Fatalf("expected software encoder, got %+v", got)
			}
		})
	}
}

func TestDetectorRetriesAfterFailedListing(t *testing.T) {
	listings := 0
	detector := hls.NewDetector("ffmpeg", true, nil)
	detector.WithCommandRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		if slices.Contains(args, "-encoders") {
			listings++
			if listings == 1 {
				return nil, errors.New("signal: killed")
			}
			return []byte(" V....D h264_nvenc  NVIDIA NVENC H.264 encoder\n"), nil
		}
		return nil, nil
	})

	if got := detector.Detect(context.Background()); got != hls.SoftwareEncoder {
		t.Fatalf("expected software while the listing fails, got %+v", got)
	}
	if got := detector.Detect(context.Background()); got.Name != "nvenc" {
		t.Fatalf("expected nvenc once the listing succeeds, got %+v", got)
	}
	if got := detector.Detect(context.Background()); got.Name != "nvenc" || listings != 2 {
		t.Fatalf("expected cached nvenc after %d listings, got %+v", listings, got)
	}
}

func TestDetectorDoesNotCacheCancelledDetection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	encodes := 0
	detector := hls.NewDetector("ffmpeg", true, nil)
	detector.WithCommandRunner(func(runCtx context.Context, _ string, args ...string) ([]byte, error) {
		if slices.Contains(args, "-encoders") {
			return []byte(" V....D h264_nvenc  NVIDIA NVENC H.264 encoder\n"), nil
		}
		encodes++
		if encodes == 1 {
			cancel()
			return nil, runCtx.Err()
		}
		return nil, nil
	})

	if got := detector.Detect(ctx); got != hls.SoftwareEncoder {
		t.Fatalf("expected software for the cancelled call, got %+v", got)
	}
	if got := detector.Detect(context.Background()); got.Name != "nvenc" {
		t.Fatalf("expected nvenc on the next call, got %+v", got)
	}
}
