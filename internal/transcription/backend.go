package transcription

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mediapost/internal/config"
	"mediapost/internal/services/whisperx"
)

// Fragment is one time-stamped piece of recognized text. Speaker is empty
// when the backend does not label speakers.
type Fragment struct {
	Start   float64
	End     float64
	Text    string
	Speaker string
}

// Result is a backend response. Backends that only return flat text yield a
// single fragment carrying it.
type Result struct {
	Text      string
	Duration  float64
	Fragments []Fragment
}

// Request describes one audio payload to transcribe.
type Request struct {
	Path     string
	Language string
}

// Backend is a transcription provider.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (Result, error)
	// RateLimitBackoff is the extra wait after a rate-limit response.
	RateLimitBackoff() time.Duration
	// MaxUploadBytes is the payload limit; zero means unlimited.
	MaxUploadBytes() int64
}

// NewBackend constructs the configured backend.
func NewBackend(cfg config.Transcription) (Backend, error) {
	httpClient := &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second}
	switch cfg.Backend {
	case config.BackendOpenAI:
		return NewOpenAIBackend(cfg, httpClient), nil
	case config.BackendLemonfox:
		return NewLemonfoxBackend(cfg, httpClient), nil
	case config.BackendWhisperX:
		svc := whisperx.NewService(whisperx.Config{
			Model:       cfg.WhisperXModel,
			CUDAEnabled: cfg.WhisperXCUDAEnabled,
		})
		return NewWhisperXBackend(svc), nil
	default:
		return nil, fmt.Errorf("unknown transcription backend %q", cfg.Backend)
	}
}
