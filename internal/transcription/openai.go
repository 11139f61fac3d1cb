package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediapost/internal/config"
)

const (
	openAIRateLimitWait   = 60 * time.Second
	lemonfoxRateLimitWait = 30 * time.Second
	maxErrorBodyBytes     = 64 * 1024
)

// HTTPBackend talks to an OpenAI-compatible /audio/transcriptions endpoint.
type HTTPBackend struct {
	name          string
	baseURL       string
	apiKey        string
	model         string
	speakerLabels bool
	rateLimitWait time.Duration
	maxUpload     int64
	httpClient    *http.Client
}

// NewOpenAIBackend returns the hosted OpenAI Whisper backend.
func NewOpenAIBackend(cfg config.Transcription, httpClient *http.Client) *HTTPBackend {
	return &HTTPBackend{
		name:          config.BackendOpenAI,
		baseURL:       strings.TrimSpace(cfg.OpenAIBaseURL),
		apiKey:        strings.TrimSpace(cfg.OpenAIAPIKey),
		model:         strings.TrimSpace(cfg.OpenAIModel),
		rateLimitWait: openAIRateLimitWait,
		maxUpload:     cfg.MaxUploadBytes,
		httpClient:    httpClient,
	}
}

// NewLemonfoxBackend returns the Lemonfox backend, which labels speakers.
func NewLemonfoxBackend(cfg config.Transcription, httpClient *http.Client) *HTTPBackend {
	return &HTTPBackend{
		name:          config.BackendLemonfox,
		baseURL:       strings.TrimSpace(cfg.LemonfoxBaseURL),
		apiKey:        strings.TrimSpace(cfg.LemonfoxAPIKey),
		speakerLabels: true,
		rateLimitWait: lemonfoxRateLimitWait,
		maxUpload:     cfg.MaxUploadBytes,
		httpClient:    httpClient,
	}
}

func (b *HTTPBackend) Name() string                    { return b.name }
func (b *HTTPBackend) RateLimitBackoff() time.Duration { return b.rateLimitWait }
func (b *HTTPBackend) MaxUploadBytes() int64           { return b.maxUpload }

type verboseResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Text    string  `json:"text"`
		Speaker string  `json:"speaker"`
	} `json:"segments"`
}

// Transcribe uploads the file as multipart form data.
func (b *HTTPBackend) Transcribe(ctx context.Context, req Request) (Result, error) {
	body, contentType, err := b.buildForm(req)
	if err != nil {
		return Result{}, err
	}
	endpoint, err := url.JoinPath(b.baseURL, "audio", "transcriptions")
	if err != nil {
		return Result{}, fmt.Errorf("%s request: build url: %w", b.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Result{}, fmt.Errorf("%s request: new request: %w", b.name, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%s request: %w", b.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return Result{}, ClassifyResponse(b.name, resp.StatusCode, payload)
	}

	var decoded verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, &RemoteError{Backend: b.name, Kind: ErrorGeneric, StatusCode: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return decoded.result(), nil
}

func (r verboseResponse) result() Result {
	result := Result{Text: strings.TrimSpace(r.Text), Duration: r.Duration}
	for _, seg := range r.Segments {
		result.Fragments = append(result.Fragments, Fragment{
			Start:   seg.Start,
			End:     seg.End,
			Text:    strings.TrimSpace(seg.Text),
			Speaker: strings.TrimSpace(seg.Speaker),
		})
	}
	if len(result.Fragments) == 0 && result.Text != "" {
		result.Fragments = []Fragment{{Start: 0, End: r.Duration, Text: result.Text}}
	}
	return result
}

func (b *HTTPBackend) buildForm(req Request) (io.Reader, string, error) {
	file, err := os.Open(req.Path)
	if err != nil {
		return nil, "", fmt.Errorf("%s request: open audio: %w", b.name, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(req.Path))
	if err != nil {
		return nil, "", fmt.Errorf("%s request: form file: %w", b.name, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("%s request: copy audio: %w", b.name, err)
	}

	fields := [][2]string{
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "segment"},
	}
	if b.model != "" {
		fields = append(fields, [2]string{"model", b.model})
	}
	if lang := strings.TrimSpace(req.Language); lang != "" {
		fields = append(fields, [2]string{"language", lang})
	}
	if b.speakerLabels {
		fields = append(fields, [2]string{"speaker_labels", "true"})
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("%s request: form field %s: %w", b.name, field[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("%s request: close form: %w", b.name, err)
	}
	return &buf, writer.FormDataContentType(), nil
}
