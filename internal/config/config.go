package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	MediaRoot    string `toml:"media_root"`
	WorkDir      string `toml:"work_dir"`
	LogDir       string `toml:"log_dir"`
	DatabasePath string `toml:"database_path"`
}

// Transcription selects and configures the transcription backend.
type Transcription struct {
	Backend               string `toml:"backend"`
	Language              string `toml:"language"`
	MaxUploadBytes        int64  `toml:"max_upload_bytes"`
	MaxRetries            int    `toml:"max_retries"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	OpenAIAPIKey          string `toml:"openai_api_key"`
	OpenAIBaseURL         string `toml:"openai_base_url"`
	OpenAIModel           string `toml:"openai_model"`
	LemonfoxAPIKey        string `toml:"lemonfox_api_key"`
	LemonfoxBaseURL       string `toml:"lemonfox_base_url"`
	WhisperXModel         string `toml:"whisperx_model"`
	WhisperXCUDAEnabled   bool   `toml:"whisperx_cuda_enabled"`
}

// Diarization configures the optional speaker timeline command. The command
// receives the audio path and the RTTM destination as its final arguments.
type Diarization struct {
	Enabled        bool     `toml:"enabled"`
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Chunking contains the size-bounded splitting thresholds.
type Chunking struct {
	SafetyMargin      float64 `toml:"safety_margin"`
	MinChunkSeconds   float64 `toml:"min_chunk_seconds"`
	MaxChunks         int     `toml:"max_chunks"`
	SilenceNoiseDB    float64 `toml:"silence_noise_db"`
	SilenceMinSeconds float64 `toml:"silence_min_seconds"`
	SnapWindowRatio   float64 `toml:"snap_window_ratio"`
}

// Merge bounds transcript segment consolidation.
type Merge struct {
	MaxGapSeconds      float64 `toml:"max_gap_seconds"`
	MaxDurationSeconds float64 `toml:"max_duration_seconds"`
}

// Variant describes one rung of the streaming ladder.
type Variant struct {
	Name             string `toml:"name"`
	Width            int    `toml:"width"`
	Height           int    `toml:"height"`
	VideoBitrateKbps int    `toml:"video_bitrate_kbps"`
	AudioBitrateKbps int    `toml:"audio_bitrate_kbps"`
	MaxRateKbps      int    `toml:"max_rate_kbps"`
	BufSizeKbps      int    `toml:"buf_size_kbps"`
}

// Packaging contains streaming package settings.
type Packaging struct {
	OutputSubdir          string    `toml:"output_subdir"`
	SegmentSeconds        int       `toml:"segment_seconds"`
	MaxWorkers            int       `toml:"max_workers"`
	VariantTimeoutSeconds int       `toml:"variant_timeout_seconds"`
	LargeFileBytes        int64     `toml:"large_file_bytes"`
	LowMemoryBytes        uint64    `toml:"low_memory_bytes"`
	HardwareAcceleration  bool      `toml:"hardware_acceleration"`
	Variants              []Variant `toml:"variants"`
}

// Workflow contains configuration for daemon timing, lanes, and retries.
type Workflow struct {
	QueuePollInterval       int  `toml:"queue_poll_interval"`
	ErrorRetryInterval      int  `toml:"error_retry_interval"`
	HeartbeatInterval       int  `toml:"heartbeat_interval"`
	HeartbeatTimeout        int  `toml:"heartbeat_timeout"`
	TranscriptionWorkers    int  `toml:"transcription_workers"`
	PackagingWorkers        int  `toml:"packaging_workers"`
	TranscriptionRetryDelay int  `toml:"transcription_retry_delay"`
	TranscriptionMaxRetries int  `toml:"transcription_max_retries"`
	PackagingRetryDelay     int  `toml:"packaging_retry_delay"`
	PackagingMaxRetries     int  `toml:"packaging_max_retries"`
	AutoPackage             bool `toml:"auto_package"`
}

// Notifications configures ntfy delivery of pipeline outcomes. An empty topic
// disables notifications.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mediapost.
//
// Configuration sections by subsystem:
//   - Paths: media root, scratch space, logs, and the database file
//   - Transcription: backend selection, credentials, retry bound
//   - Diarization: optional speaker timeline command
//   - Chunking: payload splitting thresholds
//   - Merge: transcript consolidation bounds
//   - Packaging: streaming ladder and encoder pool
//   - Workflow: dispatcher polling, heartbeats, and retry policy
//   - Notifications: optional ntfy topic for pipeline outcomes
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Diarization   Diarization   `toml:"diarization"`
	Chunking      Chunking      `toml:"chunking"`
	Merge         Merge         `toml:"merge"`
	Packaging     Packaging     `toml:"packaging"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediapost.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.MediaRoot, c.Paths.WorkDir, c.Paths.LogDir, c.HLSRoot()}
	if dbDir := filepath.Dir(c.Paths.DatabasePath); dbDir != "" && dbDir != "." {
		dirs = append(dirs, dbDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HLSRoot returns the directory that holds published streaming packages.
func (c *Config) HLSRoot() string {
	return filepath.Join(c.Paths.MediaRoot, c.Packaging.OutputSubdir)
}

// ResolveMediaPath maps a stored media path onto the filesystem. Relative
// paths are anchored at the media root.
func (c *Config) ResolveMediaPath(stored string) string {
	stored = strings.TrimSpace(stored)
	if stored == "" || filepath.IsAbs(stored) {
		return stored
	}
	return filepath.Join(c.Paths.MediaRoot, stored)
}

// FFmpegBinary returns the ffmpeg executable name used for audio and encoding work.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
