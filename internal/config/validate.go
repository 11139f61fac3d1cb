package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateDiarization(); err != nil {
		return err
	}
	if err := c.validateChunking(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validatePackaging(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.MediaRoot) == "" {
		return errors.New("paths.media_root must be set")
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Backend {
	case BackendOpenAI:
		if c.Transcription.OpenAIAPIKey == "" {
			return missingKeyError("transcription.openai_api_key", "OPENAI_API_KEY")
		}
	case BackendLemonfox:
		if c.Transcription.LemonfoxAPIKey == "" {
			return missingKeyError("transcription.lemonfox_api_key", "LEMONFOX_API_KEY")
		}
	case BackendWhisperX:
	default:
		return fmt.Errorf("transcription.backend: unsupported value %q (expected openai, lemonfox, or whisperx)", c.Transcription.Backend)
	}
	if c.Transcription.Backend != BackendWhisperX && c.Transcription.MaxUploadBytes <= 0 {
		return errors.New("transcription.max_upload_bytes must be positive")
	}
	if c.Transcription.MaxRetries <= 0 {
		return errors.New("transcription.max_retries must be positive")
	}
	if c.Transcription.RequestTimeoutSeconds <= 0 {
		return errors.New("transcription.request_timeout_seconds must be positive")
	}
	return nil
}

func missingKeyError(field, env string) error {
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("%s is required. Set %s env var or edit %s (create with 'mediapost config init')", field, env, defaultPath)
}

func (c *Config) validateDiarization() error {
	if !c.Diarization.Enabled {
		return nil
	}
	if c.Diarization.Command == "" {
		return errors.New("diarization.command must be set when diarization is enabled")
	}
	if c.Diarization.TimeoutSeconds <= 0 {
		return errors.New("diarization.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateChunking() error {
	if c.Chunking.SafetyMargin <= 0 || c.Chunking.SafetyMargin > 1 {
		return errors.New("chunking.safety_margin must be in (0, 1]")
	}
	if c.Chunking.MinChunkSeconds <= 0 {
		return errors.New("chunking.min_chunk_seconds must be positive")
	}
	if c.Chunking.MaxChunks <= 0 {
		return errors.New("chunking.max_chunks must be positive")
	}
	if c.Chunking.SilenceMinSeconds <= 0 {
		return errors.New("chunking.silence_min_seconds must be positive")
	}
	if c.Chunking.SnapWindowRatio < 0 || c.Chunking.SnapWindowRatio >= 1 {
		return errors.New("chunking.snap_window_ratio must be in [0, 1)")
	}
	return nil
}

func (c *Config) validateMerge() error {
	if c.Merge.MaxGapSeconds < 0 {
		return errors.New("merge.max_gap_seconds must not be negative")
	}
	if c.Merge.MaxDurationSeconds <= 0 {
		return errors.New("merge.max_duration_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePackaging() error {
	if c.Packaging.SegmentSeconds <= 0 {
		return errors.New("packaging.segment_seconds must be positive")
	}
	if c.Packaging.MaxWorkers <= 0 {
		return errors.New("packaging.max_workers must be positive")
	}
	if c.Packaging.VariantTimeoutSeconds <= 0 {
		return errors.New("packaging.variant_timeout_seconds must be positive")
	}
	seen := make(map[string]struct{}, len(c.Packaging.Variants))
	for i, v := range c.Packaging.Variants {
		if v.Name == "" {
			return fmt.Errorf("packaging.variants[%d].name must be set", i)
		}
		if strings.ContainsAny(v.Name, `/\`) {
			return fmt.Errorf("packaging.variants[%d].name %q must not contain path separators", i, v.Name)
		}
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("packaging.variants: duplicate name %q", v.Name)
		}
		seen[v.Name] = struct{}{}
		if v.Width <= 0 || v.Height <= 0 {
			return fmt.Errorf("packaging.variants[%s]: width and height must be positive", v.Name)
		}
		if v.VideoBitrateKbps <= 0 || v.AudioBitrateKbps <= 0 {
			return fmt.Errorf("packaging.variants[%s]: bitrates must be positive", v.Name)
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	checks := map[string]int{
		"workflow.queue_poll_interval":       c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval":      c.Workflow.ErrorRetryInterval,
		"workflow.heartbeat_interval":        c.Workflow.HeartbeatInterval,
		"workflow.heartbeat_timeout":         c.Workflow.HeartbeatTimeout,
		"workflow.transcription_workers":     c.Workflow.TranscriptionWorkers,
		"workflow.packaging_workers":         c.Workflow.PackagingWorkers,
		"workflow.transcription_retry_delay": c.Workflow.TranscriptionRetryDelay,
		"workflow.packaging_retry_delay":     c.Workflow.PackagingRetryDelay,
	}
	if err := ensurePositiveMap(checks); err != nil {
		return err
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.TranscriptionMaxRetries < 0 || c.Workflow.PackagingMaxRetries < 0 {
		return errors.New("workflow retry bounds must not be negative")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic: expected a full topic URL, got %q", topic)
	}
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		return errors.New("notifications.request_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
