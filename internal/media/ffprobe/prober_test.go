package ffprobe_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"mediapost/internal/media/ffprobe"
	"mediapost/internal/testsupport"
)

const videoJSON = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "channels": 2}
  ],
  "format": {"duration": "95.500000", "size": "2048"}
}`

const coverArtJSON = `{
  "streams": [
    {"index": 0, "codec_type": "audio", "codec_name": "mp3"},
    {"index": 1, "codec_type": "video", "codec_name": "mjpeg", "disposition": {"attached_pic": 1}}
  ],
  "format": {"duration": "12.0"}
}`

func fakeRunner(ffprobeOut string, ffprobeErr error, ffmpegOut string, ffmpegErr error, calls *[]string) func(context.Context, string, ...string) ([]byte, error) {
	return func(_ context.Context, name string, _ ...string) ([]byte, error) {
		*calls = append(*calls, name)
		if name == "ffprobe" {
			return []byte(ffprobeOut), ffprobeErr
		}
		return []byte(ffmpegOut), ffmpegErr
	}
}

func TestProbeUsesFFprobeDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meeting.m4a")
	testsupport.WriteFile(t, path, 4096)

	var calls []string
	prober := ffprobe.NewProber("", "")
	prober.WithCommandRunner(fakeRunner(videoJSON, nil, "", nil, &calls))

	probe, err := prober.Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if probe.DurationSeconds != 95.5 {
		t.Fatalf("unexpected duration %v", probe.DurationSeconds)
	}
	if probe.SizeBytes != 4096 {
		t.Fatalf("expected size from filesystem, got %d", probe.SizeBytes)
	}
	if !probe.IsVideo() {
		t.Fatalf("expected video kind despite audio extension, got %s", probe.Kind)
	}
	if probe.Decoded {
		t.Fatal("did not expect decode fallback")
	}
	if len(calls) != 1 {
		t.Fatalf("expected only ffprobe to run, got %v", calls)
	}
}

func TestProbeIgnoresCoverArt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "talk.mp3")
	testsupport.WriteFile(t, path, 100)

	var calls []string
	prober := ffprobe.NewProber("", "")
	prober.WithCommandRunner(fakeRunner(coverArtJSON, nil, "", nil, &calls))

	probe, err := prober.Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if probe.Kind != ffprobe.KindAudio {
		t.Fatalf("expected audio kind, got %s", probe.Kind)
	}
}

func TestProbeFlagsMissingAudio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screen.mp4")
	testsupport.WriteFile(t, path, 100)

	const silentJSON = `{"streams": [{"index": 0, "codec_type": "video", "codec_name": "h264"}], "format": {"duration": "8.0"}}`
	var calls []string
	prober := ffprobe.NewProber("", "")
	prober.WithCommandRunner(fakeRunner(silentJSON, nil, "", nil, &calls))

	probe, err := prober.Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if !probe.NoAudio || !probe.IsVideo() {
		t.Fatalf("expected video without audio, got %+v", probe)
	}

	prober.WithCommandRunner(fakeRunner(videoJSON, nil, "", nil, &calls))
	if probe, _ := prober.Probe(context.Background(), path); probe.NoAudio {
		t.Fatal("did not expect NoAudio with an audio stream present")
	}
}

func TestProbeFallsBackToDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload.webm")
	testsupport.WriteFile(t, path, 100)

	decodeOutput := "Input #0, matroska,webm\n  Duration: N/A, start: 0.000000\n" +
		"size=N/A time=00:00:30.00 bitrate=N/A speed=100x\n" +
		"size=N/A time=00:01:02.50 bitrate=N/A speed=120x\n"

	var calls []string
	prober := ffprobe.NewProber("", "")
	prober.WithCommandRunner(fakeRunner("", errors.New("exit status 1"), decodeOutput, nil, &calls))

	probe, err := prober.Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if probe.DurationSeconds != 62.5 {
		t.Fatalf("expected decoded duration 62.5, got %v", probe.DurationSeconds)
	}
	if !probe.Decoded {
		t.Fatal("expected decode fallback to be flagged")
	}
	if probe.Kind != ffprobe.KindVideo {
		t.Fatalf("expected kind from extension, got %s", probe.Kind)
	}
}

func TestProbeFailsWhenBothMethodsFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	testsupport.WriteFile(t, path, 100)

	var calls []string
	prober := ffprobe.NewProber("", "")
	prober.WithCommandRunner(fakeRunner("", errors.New("exit status 1"), "Invalid data found", errors.New("exit status 1"), &calls))

	_, err := prober.Probe(context.Background(), path)
	if !errors.Is(err, ffprobe.ErrProbe) {
		t.Fatalf("expected ErrProbe, got %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected ffprobe then ffmpeg, got %v", calls)
	}
}

func TestProbeMissingFile(t *testing.T) {
	prober := ffprobe.NewProber("", "")
	prober.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("runner should not be called for a missing file")
		return nil, nil
	})
	_, err := prober.Probe(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	if !errors.Is(err, ffprobe.ErrProbe) {
		t.Fatalf("expected ErrProbe, got %v", err)
	}
}

func TestParseDecodeDuration(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   float64
		ok     bool
	}{
		{name: "progress", output: "time=00:00:01.00 x\ntime=01:00:05.50 y", want: 3605.5, ok: true},
		{name: "header only", output: "  Duration: 00:02:00.25, start: 0", want: 120.25, ok: true},
		{name: "nothing", output: "error", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ffprobe.ParseDecodeDuration(tt.output)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("ParseDecodeDuration = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestKindFromExtension(t *testing.T) {
	if ffprobe.KindFromExtension("a/B.MKV") != ffprobe.KindVideo {
		t.Fatal("expected mkv to be video")
	}
	if ffprobe.KindFromExtension("a/b.flac") != ffprobe.KindAudio {
		t.Fatal("expected flac to be audio")
	}
}
