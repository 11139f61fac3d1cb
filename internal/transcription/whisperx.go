package transcription

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediapost/internal/config"
	"mediapost/internal/services/whisperx"
)

// WhisperXBackend runs WhisperX locally. It has no payload limit and never
// rate limits.
type WhisperXBackend struct {
	svc *whisperx.Service
}

// NewWhisperXBackend wraps a WhisperX service.
func NewWhisperXBackend(svc *whisperx.Service) *WhisperXBackend {
	return &WhisperXBackend{svc: svc}
}

func (b *WhisperXBackend) Name() string                    { return config.BackendWhisperX }
func (b *WhisperXBackend) RateLimitBackoff() time.Duration { return 0 }
func (b *WhisperXBackend) MaxUploadBytes() int64           { return 0 }

// Transcribe runs WhisperX into a scratch directory beside the audio.
// Process failures are reported as generic remote errors so they are retried.
func (b *WhisperXBackend) Transcribe(ctx context.Context, req Request) (Result, error) {
	outDir, err := os.MkdirTemp(filepath.Dir(req.Path), "whisperx-")
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(outDir)

	segments, err := b.svc.TranscribeFile(ctx, req.Path, outDir, req.Language)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, &RemoteError{Backend: b.Name(), Kind: ErrorGeneric, Message: err.Error()}
	}

	result := Result{}
	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		result.Fragments = append(result.Fragments, Fragment{
			Start:   seg.Start,
			End:     seg.End,
			Text:    text,
			Speaker: strings.TrimSpace(seg.Speaker),
		})
		if text != "" {
			texts = append(texts, text)
		}
		result.Duration = max(result.Duration, seg.End)
	}
	result.Text = strings.Join(texts, " ")
	return result, nil
}
