package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediapost/internal/config"
	"mediapost/internal/queue"
	"mediapost/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nmedia_root = %q\nwork_dir = %q\nlog_dir = %q\ndatabase_path = %q\n\n[transcription]\nopenai_api_key = %q\n",
		cfg.Paths.MediaRoot,
		cfg.Paths.WorkDir,
		cfg.Paths.LogDir,
		cfg.Paths.DatabasePath,
		cfg.Transcription.OpenAIAPIKey,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected output to contain %q, got:\n%s", substr, output)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Backend: openai")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestAddQueuesTranscription(t *testing.T) {
	env := setupCLITestEnv(t)
	source := filepath.Join(env.cfg.Paths.MediaRoot, "weekly-sync.mp4")
	testsupport.WriteFile(t, source, 2048)

	out, _, err := runCLI(t, env, "add", source)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, out, "Registered ")
	requireContains(t, out, "Queued transcription job")

	out, _, err = runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon running: no")
	requireContains(t, out, "weekly-sync.mp4")
	requireContains(t, out, "unprocessed")

	out, _, err = runCLI(t, env, "jobs")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	requireContains(t, out, "transcription\tpending\t0/4")
}

func TestTranscribeQueueDeduplicates(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	file := testsupport.NewMediaFile(t, store, "talk.mp3")

	out, _, err := runCLI(t, env, "transcribe", "--queue", file.ID)
	if err != nil {
		t.Fatalf("transcribe --queue: %v", err)
	}
	requireContains(t, out, "Queued transcription job")

	out, _, err = runCLI(t, env, "transcribe", "--queue", file.ID)
	if err != nil {
		t.Fatalf("transcribe --queue: %v", err)
	}
	requireContains(t, out, "already queued")

	out, _, err = runCLI(t, env, "package", "--queue", file.ID)
	if err != nil {
		t.Fatalf("package --queue: %v", err)
	}
	requireContains(t, out, "Queued packaging job")
}

func TestTranscribeUnknownFile(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, env, "transcribe", "does-not-exist")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestTranscriptPlainAndJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	file := testsupport.NewMediaFile(t, store, "panel.wav")
	segments := []queue.TranscriptSegment{
		{StartSeconds: 1, EndSeconds: 5, Speaker: "SPEAKER_00", Text: "welcome everyone"},
		{StartSeconds: 3661, EndSeconds: 3670, Speaker: "SPEAKER_01", Text: "thanks"},
	}
	if err := store.ReplaceTranscriptSegments(context.Background(), file.ID, segments); err != nil {
		t.Fatalf("ReplaceTranscriptSegments failed: %v", err)
	}

	out, _, err := runCLI(t, env, "transcript", file.ID)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	requireContains(t, out, "[00:00:01 - 00:00:05] SPEAKER_00: welcome everyone")
	requireContains(t, out, "[01:01:01 - 01:01:10] SPEAKER_01: thanks")

	out, _, err = runCLI(t, env, "transcript", "--json", file.ID)
	if err != nil {
		t.Fatalf("transcript --json: %v", err)
	}
	var views []segmentView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(views) != 2 || views[1].Start != 3661 || views[1].Speaker != "SPEAKER_01" {
		t.Fatalf("unexpected segments %#v", views)
	}
}

func TestStatusJSONFilter(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	first := testsupport.NewMediaFile(t, store, "a.mp3")
	testsupport.NewMediaFile(t, store, "b.mp3")
	if err := store.UpdateStatus(context.Background(), queue.LaneTranscription, first.ID, queue.StatusError, "backend exploded"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	out, _, err := runCLI(t, env, "status", "--json", "--status", "error")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var views []fileView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(views) != 1 || views[0].ID != first.ID || views[0].ErrorMessage != "backend exploded" {
		t.Fatalf("unexpected files %#v", views)
	}

	if _, _, err := runCLI(t, env, "status", "--status", "bogus"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestDepsReportsStubbedBinaries(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "deps")
	if err != nil {
		t.Fatalf("deps: %v\n%s", err, out)
	}
	requireContains(t, out, "FFmpeg\tffmpeg\tok")
	requireContains(t, out, "Media root\tpass")
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00:00"},
		{59, "00:00:59"},
		{3725, "01:02:05"},
	}
	for _, tt := range tests {
		if got := formatClock(tt.seconds); got != tt.want {
			t.Fatalf("formatClock(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestLogsFiltersByFile(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	content := "2026-01-01T00:00:00Z INFO supervisor[1a2b3c4d/transcription]: transcription started\n" +
		"2026-01-01T00:00:01Z INFO supervisor[99999999/packaging]: packaging started\n"
	if err := os.WriteFile(filepath.Join(env.cfg.Paths.LogDir, "mediapost.log"), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, env, "logs", "--file", "1a2b3c4d-0000-4000-8000-000000000000")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "transcription started")
	if strings.Contains(out, "packaging started") {
		t.Fatalf("expected other files to be filtered out, got:\n%s", out)
	}
}

func TestAddCopyImportsFile(t *testing.T) {
	env := setupCLITestEnv(t)
	source := filepath.Join(t.TempDir(), "interview.wav")
	testsupport.WriteFile(t, source, 100)

	out, _, err := runCLI(t, env, "add", "--copy", "--no-transcribe", source)
	if err != nil {
		t.Fatalf("add --copy: %v", err)
	}
	requireContains(t, out, "Registered ")
	if strings.Contains(out, "Queued") {
		t.Fatalf("expected no job with --no-transcribe, got:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.MediaRoot, "uploads", "interview.wav")); err != nil {
		t.Fatalf("expected imported copy: %v", err)
	}
}

func TestTestNotify(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "test-notify")
	if err != nil {
		t.Fatalf("test-notify failed: %v", err)
	}
	requireContains(t, out, "Notifications disabled")

	var title string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = r.Header.Get("Title")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f, err := os.OpenFile(env.configPath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	fmt.Fprintf(f, "\n[notifications]\nntfy_topic = %q\n", server.URL+"/mediapost")
	f.Close()

	out, _, err = runCLI(t, env, "test-notify")
	if err != nil {
		t.Fatalf("test-notify failed: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	if title != "mediapost - Test" {
		t.Fatalf("unexpected title %q", title)
	}
}
