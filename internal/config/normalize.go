package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeTranscription(); err != nil {
		return err
	}
	c.normalizeDiarization()
	c.normalizePackaging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.MediaRoot, err = expandPath(c.Paths.MediaRoot); err != nil {
		return fmt.Errorf("paths.media_root: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		c.Paths.DatabasePath = defaultDatabasePath
	}
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return fmt.Errorf("paths.database_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscription() error {
	c.Transcription.Backend = strings.ToLower(strings.TrimSpace(c.Transcription.Backend))
	if c.Transcription.Backend == "" {
		c.Transcription.Backend = defaultTranscriptionBackend
	}
	if c.Transcription.OpenAIAPIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.Transcription.OpenAIAPIKey = strings.TrimSpace(value)
		}
	}
	if c.Transcription.LemonfoxAPIKey == "" {
		if value, ok := os.LookupEnv("LEMONFOX_API_KEY"); ok {
			c.Transcription.LemonfoxAPIKey = strings.TrimSpace(value)
		}
	}
	c.Transcription.OpenAIBaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.OpenAIBaseURL), "/")
	if c.Transcription.OpenAIBaseURL == "" {
		c.Transcription.OpenAIBaseURL = defaultOpenAIBaseURL
	}
	c.Transcription.LemonfoxBaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.LemonfoxBaseURL), "/")
	if c.Transcription.LemonfoxBaseURL == "" {
		c.Transcription.LemonfoxBaseURL = defaultLemonfoxBaseURL
	}
	if strings.TrimSpace(c.Transcription.OpenAIModel) == "" {
		c.Transcription.OpenAIModel = defaultOpenAIModel
	}
	if strings.TrimSpace(c.Transcription.WhisperXModel) == "" {
		c.Transcription.WhisperXModel = defaultWhisperXModel
	}

	lang, err := canonicalLanguage(c.Transcription.Language)
	if err != nil {
		return fmt.Errorf("transcription.language: %w", err)
	}
	c.Transcription.Language = lang
	return nil
}

// canonicalLanguage reduces a BCP 47 tag ("ja-JP", "en_US") to the
// ISO 639-1 base code the transcription backends expect. Empty means auto-detect.
func canonicalLanguage(value string) (string, error) {
	value = strings.TrimSpace(strings.ReplaceAll(value, "_", "-"))
	if value == "" {
		return "", nil
	}
	tag, err := language.Parse(value)
	if err != nil {
		return "", fmt.Errorf("unrecognized language %q: %w", value, err)
	}
	base, _ := tag.Base()
	return base.String(), nil
}

func (c *Config) normalizeDiarization() {
	c.Diarization.Command = strings.TrimSpace(c.Diarization.Command)
	args := c.Diarization.Args[:0]
	for _, arg := range c.Diarization.Args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Diarization.Args = args
}

func (c *Config) normalizePackaging() {
	c.Packaging.OutputSubdir = strings.Trim(strings.TrimSpace(c.Packaging.OutputSubdir), "/")
	if c.Packaging.OutputSubdir == "" {
		c.Packaging.OutputSubdir = defaultPackagingOutputSubdir
	}
	if len(c.Packaging.Variants) == 0 {
		c.Packaging.Variants = DefaultVariants()
	}
	for i := range c.Packaging.Variants {
		v := &c.Packaging.Variants[i]
		v.Name = strings.TrimSpace(v.Name)
		if v.Name == "" && v.Height > 0 {
			v.Name = fmt.Sprintf("%dp", v.Height)
		}
		if v.MaxRateKbps <= 0 {
			v.MaxRateKbps = v.VideoBitrateKbps * 11 / 10
		}
		if v.BufSizeKbps <= 0 {
			v.BufSizeKbps = v.VideoBitrateKbps * 2
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
