package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"mediapost/internal/config"
	"mediapost/internal/deps"
)

// CheckBackendCredentials verifies that the selected remote backend has an
// API key. The local WhisperX backend always passes.
func CheckBackendCredentials(cfg *config.Config) Result {
	const name = "Transcription backend"
	switch cfg.Transcription.Backend {
	case config.BackendOpenAI:
		if strings.TrimSpace(cfg.Transcription.OpenAIAPIKey) == "" {
			return Result{Name: name, Detail: "openai: api key missing"}
		}
	case config.BackendLemonfox:
		if strings.TrimSpace(cfg.Transcription.LemonfoxAPIKey) == "" {
			return Result{Name: name, Detail: "lemonfox: api key missing"}
		}
	case config.BackendWhisperX:
		return Result{Name: name, Passed: true, Detail: "whisperx (local)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unknown backend %q", cfg.Transcription.Backend)}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Transcription.Backend}
}

// CheckTranscriptionAPI verifies that the remote backend is reachable and
// accepts the configured key by listing its models.
func CheckTranscriptionAPI(ctx context.Context, cfg *config.Config) Result {
	const name = "Transcription API"

	var baseURL, apiKey string
	switch cfg.Transcription.Backend {
	case config.BackendOpenAI:
		baseURL, apiKey = cfg.Transcription.OpenAIBaseURL, cfg.Transcription.OpenAIAPIKey
	case config.BackendLemonfox:
		baseURL, apiKey = cfg.Transcription.LemonfoxBaseURL, cfg.Transcription.LemonfoxAPIKey
	default:
		return Result{Name: name, Passed: true, Detail: "not applicable for " + cfg.Transcription.Backend}
	}
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}
	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Detail: "missing api key"}
	}
	endpoint, err := url.JoinPath(base, "models")
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid base url (%v)", err)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%v)", err)}
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(apiKey))

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeRequestError(err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%d)", resp.StatusCode)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not accessible: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckSystemDeps reports availability of the external binaries the
// pipeline shells out to.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	if cfg == nil {
		return nil
	}
	return deps.CheckBinaries(Requirements(cfg))
}

// Requirements lists the binaries the given configuration needs.
func Requirements(cfg *config.Config) []deps.Requirement {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for audio normalization, chunking, and HLS encoding",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Required for duration and stream inspection",
		},
	}
	if cfg.Transcription.Backend == config.BackendWhisperX {
		requirements = append(requirements, deps.Requirement{
			Name:        "uvx",
			Command:     "uvx",
			Description: "Required for the local WhisperX backend",
		})
	}
	if cfg.Diarization.Enabled {
		requirements = append(requirements, deps.Requirement{
			Name:        "Diarization",
			Command:     cfg.Diarization.Command,
			Description: "Speaker timelines; transcripts fall back to unknown speakers without it",
			Optional:    true,
		})
	}
	return requirements
}

func summarizeRequestError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (API unreachable)"
	}
	return err.Error()
}
