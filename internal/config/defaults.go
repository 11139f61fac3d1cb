package config

const (
	defaultConfigPath                  = "~/.config/mediapost/config.toml"
	defaultMediaRoot                   = "~/.local/share/mediapost/media"
	defaultWorkDir                     = "~/.local/share/mediapost/work"
	defaultLogDir                      = "~/.local/share/mediapost/logs"
	defaultDatabasePath                = "~/.local/share/mediapost/mediapost.db"
	defaultTranscriptionBackend        = BackendOpenAI
	defaultTranscriptionLanguage       = "ja"
	defaultMaxUploadBytes              = 25 * 1024 * 1024
	defaultTranscriptionMaxRetries     = 5
	defaultRequestTimeoutSeconds       = 600
	defaultOpenAIBaseURL               = "https://api.openai.com/v1"
	defaultOpenAIModel                 = "whisper-1"
	defaultLemonfoxBaseURL             = "https://api.lemonfox.ai/v1"
	defaultWhisperXModel               = "large-v3"
	defaultDiarizationTimeoutSeconds   = 1800
	defaultChunkSafetyMargin           = 0.9
	defaultMinChunkSeconds             = 30
	defaultMaxChunks                   = 50
	defaultSilenceNoiseDB              = -30
	defaultSilenceMinSeconds           = 0.5
	defaultSnapWindowRatio             = 0.25
	defaultMergeMaxGapSeconds          = 30
	defaultMergeMaxDurationSeconds     = 30
	defaultPackagingOutputSubdir       = "hls"
	defaultSegmentSeconds              = 6
	defaultPackagingMaxWorkers         = 2
	defaultVariantTimeoutSeconds       = 1800
	defaultLargeFileBytes              = 300 * 1024 * 1024
	defaultLowMemoryBytes              = 2 * 1024 * 1024 * 1024
	defaultQueuePollInterval           = 5
	defaultErrorRetryInterval          = 10
	defaultWorkflowHeartbeatInterval   = 15
	defaultWorkflowHeartbeatTimeout    = 120
	defaultTranscriptionWorkers        = 2
	defaultPackagingWorkers            = 1
	defaultTranscriptionRetryDelay     = 60
	defaultTranscriptionMaxJobRetries  = 3
	defaultPackagingRetryDelay         = 300
	defaultPackagingMaxJobRetries      = 3
	defaultNtfyRequestTimeout          = 10
	defaultLogFormat                   = "console"
	defaultLogLevel                    = "info"
)

// Transcription backend identifiers.
const (
	BackendOpenAI   = "openai"
	BackendLemonfox = "lemonfox"
	BackendWhisperX = "whisperx"
)

// DefaultVariants returns the reference 360p/720p ladder.
func DefaultVariants() []Variant {
	return []Variant{
		{Name: "360p", Width: 640, Height: 360, VideoBitrateKbps: 500, AudioBitrateKbps: 64, MaxRateKbps: 550, BufSizeKbps: 1000},
		{Name: "720p", Width: 1280, Height: 720, VideoBitrateKbps: 1500, AudioBitrateKbps: 128, MaxRateKbps: 1650, BufSizeKbps: 3000},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			MediaRoot:    defaultMediaRoot,
			WorkDir:      defaultWorkDir,
			LogDir:       defaultLogDir,
			DatabasePath: defaultDatabasePath,
		},
		Transcription: Transcription{
			Backend:               defaultTranscriptionBackend,
			Language:              defaultTranscriptionLanguage,
			MaxUploadBytes:        defaultMaxUploadBytes,
			MaxRetries:            defaultTranscriptionMaxRetries,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			OpenAIBaseURL:         defaultOpenAIBaseURL,
			OpenAIModel:           defaultOpenAIModel,
			LemonfoxBaseURL:       defaultLemonfoxBaseURL,
			WhisperXModel:         defaultWhisperXModel,
		},
		Diarization: Diarization{
			TimeoutSeconds: defaultDiarizationTimeoutSeconds,
		},
		Chunking: Chunking{
			SafetyMargin:      defaultChunkSafetyMargin,
			MinChunkSeconds:   defaultMinChunkSeconds,
			MaxChunks:         defaultMaxChunks,
			SilenceNoiseDB:    defaultSilenceNoiseDB,
			SilenceMinSeconds: defaultSilenceMinSeconds,
			SnapWindowRatio:   defaultSnapWindowRatio,
		},
		Merge: Merge{
			MaxGapSeconds:      defaultMergeMaxGapSeconds,
			MaxDurationSeconds: defaultMergeMaxDurationSeconds,
		},
		Packaging: Packaging{
			OutputSubdir:          defaultPackagingOutputSubdir,
			SegmentSeconds:        defaultSegmentSeconds,
			MaxWorkers:            defaultPackagingMaxWorkers,
			VariantTimeoutSeconds: defaultVariantTimeoutSeconds,
			LargeFileBytes:        defaultLargeFileBytes,
			LowMemoryBytes:        defaultLowMemoryBytes,
			HardwareAcceleration:  true,
		},
		Workflow: Workflow{
			QueuePollInterval:       defaultQueuePollInterval,
			ErrorRetryInterval:      defaultErrorRetryInterval,
			HeartbeatInterval:       defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:        defaultWorkflowHeartbeatTimeout,
			TranscriptionWorkers:    defaultTranscriptionWorkers,
			PackagingWorkers:        defaultPackagingWorkers,
			TranscriptionRetryDelay: defaultTranscriptionRetryDelay,
			TranscriptionMaxRetries: defaultTranscriptionMaxJobRetries,
			PackagingRetryDelay:     defaultPackagingRetryDelay,
			PackagingMaxRetries:     defaultPackagingMaxJobRetries,
			AutoPackage:             true,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
